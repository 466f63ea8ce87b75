package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/treegraph/tgraphd/domain/dagconfig"
	"github.com/treegraph/tgraphd/domain/finality/ledger"
	"github.com/treegraph/tgraphd/domain/finality/model"
	"github.com/treegraph/tgraphd/domain/finality/roundstate"
	"github.com/treegraph/tgraphd/domain/finality/signer"
	"github.com/treegraph/tgraphd/domain/finality/testutils"
	"github.com/treegraph/tgraphd/domain/finality/validatorset"
	"github.com/treegraph/tgraphd/infrastructure/db/ledgerdb"
)

type envelope struct {
	from    int
	message model.Message
}

// testNetwork connects engines through an in-memory outbox that is drained
// synchronously by deliverAll
type testNetwork struct {
	t        *testing.T
	params   *dagconfig.Params
	signers  []*signer.Signer
	schedule *validatorset.Schedule
	engines  []*Engine
	dags     []*fakeDAG
	ledgers  []*ledger.Ledger
	outbox   []envelope
}

func testParams() *dagconfig.Params {
	params := dagconfig.DevnetParams
	params.CheckpointSafetyMargin = 2
	params.FinalityRoundTimeout = time.Hour
	return &params
}

func openTestLedger(t *testing.T) *ledger.Ledger {
	db, err := ledgerdb.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	return ledger.New(db)
}

func newTestNetwork(t *testing.T, validatorCount int, dagFor func(i int) *fakeDAG) *testNetwork {
	signers, schedule, err := testutils.GenerateValidators(validatorCount, 1)
	require.NoError(t, err)

	network := &testNetwork{t: t, params: testParams(), signers: signers, schedule: schedule}
	for i, s := range signers {
		network.addEngine(dagFor(i), s, i)
	}
	return network
}

func (n *testNetwork) addEngine(dag *fakeDAG, s *signer.Signer, index int) *Engine {
	checkpointLedger := openTestLedger(n.t)
	e, err := New(n.params, dag, n.schedule, checkpointLedger, s, func(message model.Message) {
		n.outbox = append(n.outbox, envelope{from: index, message: message})
	})
	require.NoError(n.t, err)
	n.engines = append(n.engines, e)
	n.dags = append(n.dags, dag)
	n.ledgers = append(n.ledgers, checkpointLedger)
	return e
}

func (n *testNetwork) start() {
	for _, e := range n.engines {
		require.NoError(n.t, e.start())
	}
	n.deliverAll()
}

// deliverAll delivers every emitted message to every other engine until
// no engine has anything left to say
func (n *testNetwork) deliverAll() {
	for len(n.outbox) > 0 {
		next := n.outbox[0]
		n.outbox = n.outbox[1:]
		for i, e := range n.engines {
			if i == next.from {
				continue
			}
			err := e.handleMessage(next.message)
			if err != nil && !errors.Is(err, model.ErrStaleRound) {
				n.t.Fatalf("engine %d failed handling %s of round %d: %+v",
					i, next.message.Command(), next.message.MessageRound(), err)
			}
		}
	}
}

func (n *testNetwork) timeoutAll() {
	for i, e := range n.engines {
		err := e.onRoundTimeout()
		require.NoError(n.t, err, "engine %d", i)
	}
	n.deliverAll()
}

func (n *testNetwork) leaderIndex(round uint64) int {
	validators, err := n.schedule.ValidatorsAt(round)
	require.NoError(n.t, err)
	leader := validators.Leader(round).PublicKey
	for i, s := range n.signers {
		if s.PublicKey() == leader {
			return i
		}
	}
	n.t.Fatalf("leader of round %d is not in the network", round)
	return -1
}

func TestCommitWithFullQuorum(t *testing.T) {
	base := newFakeDAG(10, 1)
	network := newTestNetwork(t, 4, func(int) *fakeDAG { return base.fork(10, 1) })
	network.start()

	for i := range network.engines {
		latest, found, err := network.ledgers[i].Latest()
		require.NoError(t, err)
		require.True(t, found, "engine %d did not commit", i)
		require.Equal(t, uint64(8), latest.Candidate.Height)
		require.Equal(t, uint64(1), latest.Certificate.Round)
		require.GreaterOrEqual(t, len(latest.Certificate.Votes), 3)

		checkpoint, err := network.dags[i].GetLatestCheckpoint()
		require.NoError(t, err)
		require.True(t, checkpoint.Hash.Equal(chainHash(8, 1)), "engine %d did not move its DAG checkpoint", i)

		round, phase := network.engines[i].Round()
		require.Equal(t, uint64(2), round)
		require.Equal(t, roundstate.ProposalPending, phase, "no candidate is above the new checkpoint")
	}

	for _, dag := range network.dags {
		dag.extend(14, 1)
	}
	network.timeoutAll()
	for i := range network.engines {
		latest, _, err := network.ledgers[i].Latest()
		require.NoError(t, err)
		require.Equal(t, uint64(12), latest.Candidate.Height, "engine %d", i)
		require.Equal(t, uint64(2), latest.Sequence)
	}
}

func TestTwoVotesAndTimeoutStartNewRound(t *testing.T) {
	signers, schedule, err := testutils.GenerateValidators(4, 1)
	require.NoError(t, err)
	validators, err := schedule.ValidatorsAt(1)
	require.NoError(t, err)
	leader := validators.Leader(1).PublicKey

	// The leader and one other validator see chain 1. The remaining two see
	// a fork of it above height 5, so they refuse to vote for its candidate.
	base := newFakeDAG(10, 1)
	network := &testNetwork{t: t, params: testParams(), signers: signers, schedule: schedule}
	agreeing := 0
	for i, s := range signers {
		dag := base.fork(5, 2)
		if s.PublicKey() == leader || (agreeing == 0 && s.PublicKey() != leader) {
			dag = base.fork(10, 1)
			if s.PublicKey() != leader {
				agreeing++
			}
		}
		network.addEngine(dag, s, i)
	}
	network.start()

	leaderIndex := network.leaderIndex(1)
	candidate := network.engines[leaderIndex].round.Proposal().Candidate
	require.Equal(t, uint64(2), network.engines[leaderIndex].collector.VoteStake(1, candidate))
	for i, e := range network.engines {
		round, phase := e.Round()
		require.Equal(t, uint64(1), round, "engine %d", i)
		require.Equal(t, roundstate.Voting, phase, "engine %d", i)
	}

	network.timeoutAll()
	for i, e := range network.engines {
		round, _ := e.Round()
		require.Equal(t, uint64(2), round, "engine %d did not start a new round", i)
		_, found, err := network.ledgers[i].Latest()
		require.NoError(t, err)
		require.False(t, found, "engine %d committed without a quorum", i)
		checkpoint, err := network.dags[i].GetLatestCheckpoint()
		require.NoError(t, err)
		require.Equal(t, uint64(0), checkpoint.Height)
	}

	// A late vote for the abandoned round is ignored
	lateVote, err := signers[0].SignVote(1, candidate)
	require.NoError(t, err)
	err = network.engines[leaderIndex].handleMessage(lateVote)
	require.True(t, errors.Is(err, model.ErrStaleRound))
}

func TestEquivocationIsRecorded(t *testing.T) {
	network := newTestNetwork(t, 4, func(int) *fakeDAG { return newFakeDAG(1, 1) })
	network.start()

	observer := network.engines[0]
	offender := network.signers[1]
	first, err := offender.SignVote(1, testutils.Candidate(1, 1))
	require.NoError(t, err)
	second, err := offender.SignVote(1, testutils.Candidate(1, 2))
	require.NoError(t, err)

	require.NoError(t, observer.handleMessage(first))
	err = observer.handleMessage(second)
	var equivocation model.ErrEquivocatingVote
	require.True(t, errors.As(err, &equivocation), "expected an equivocation, got %v", err)

	evidences, err := network.ledgers[0].Equivocations()
	require.NoError(t, err)
	require.Len(t, evidences, 1)
	require.Equal(t, offender.PublicKey(), evidences[0].Voter)
	require.Equal(t, uint64(0), observer.collector.VoteStake(1, first.Candidate))
}

func TestObserverFollowsCertificates(t *testing.T) {
	base := newFakeDAG(10, 1)
	network := newTestNetwork(t, 4, func(int) *fakeDAG { return base.fork(10, 1) })

	// The observer has not received the certified block yet
	observerDAG := newFakeDAG(6, 1)
	observer := network.addEngine(observerDAG, nil, len(network.signers))
	network.start()

	observerLedger := network.ledgers[len(network.ledgers)-1]
	_, found, err := observerLedger.Latest()
	require.NoError(t, err)
	require.False(t, found, "a certificate for an unknown block was recorded")
	require.NotNil(t, observer.pendingCheckpoint)

	checkpoint, err := observerDAG.GetLatestCheckpoint()
	require.NoError(t, err)
	require.Equal(t, uint64(0), checkpoint.Height)

	observerDAG.lock.Lock()
	observerDAG.extend(10, 1)
	observerDAG.lock.Unlock()
	require.NoError(t, observer.tick())
	require.Nil(t, observer.pendingCheckpoint)

	checkpoint, err = observerDAG.GetLatestCheckpoint()
	require.NoError(t, err)
	require.Equal(t, uint64(8), checkpoint.Height)
	latest, found, err := observerLedger.Latest()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(8), latest.Candidate.Height)
	require.Equal(t, uint64(8), observer.LatestCommitted().Candidate.Height)
}

func quorumCertificate(t *testing.T, signers []*signer.Signer, round uint64,
	candidate *model.Candidate) *model.QuorumCertificate {

	qc := &model.QuorumCertificate{Round: round, Candidate: candidate}
	for _, s := range signers {
		vote, err := s.SignVote(round, candidate)
		require.NoError(t, err)
		qc.Votes = append(qc.Votes, vote)
	}
	return qc
}

func TestConflictingCertificateIsNotCommitted(t *testing.T) {
	signers, schedule, err := testutils.GenerateValidators(4, 1)
	require.NoError(t, err)
	dag := newFakeDAG(10, 1)
	_, err = dag.SetCheckpoint(chainHash(5, 1))
	require.NoError(t, err)
	conflicting := testutils.Candidate(9, 7)
	dag.addConflictingBlock(conflicting.Hash)

	checkpointLedger := openTestLedger(t)
	e, err := New(testParams(), dag, schedule, checkpointLedger, nil, func(model.Message) {})
	require.NoError(t, err)
	require.NoError(t, e.start())

	require.NoError(t, e.handleMessage(quorumCertificate(t, signers[:3], 3, conflicting)))
	round, _ := e.Round()
	require.Equal(t, uint64(4), round)

	// Below the DAG checkpoint but off its pivot chain
	require.NoError(t, e.handleMessage(quorumCertificate(t, signers[:3], 4, testutils.Candidate(3, 7))))
	round, _ = e.Round()
	require.Equal(t, uint64(5), round)

	_, found, err := checkpointLedger.Latest()
	require.NoError(t, err)
	require.False(t, found, "a conflicting certificate was recorded")
	require.Nil(t, e.LatestCommitted())
	checkpoint, err := dag.GetLatestCheckpoint()
	require.NoError(t, err)
	require.True(t, checkpoint.Hash.Equal(chainHash(5, 1)))

	require.NoError(t, e.handleMessage(quorumCertificate(t, signers[:3], 5, testutils.Candidate(7, 1))))
	latest, found, err := checkpointLedger.Latest()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(7), latest.Candidate.Height)
}

func TestStopWaitsForRun(t *testing.T) {
	signers, schedule, err := testutils.GenerateValidators(4, 1)
	require.NoError(t, err)
	e, err := New(testParams(), newFakeDAG(10, 1), schedule, openTestLedger(t), signers[0], func(model.Message) {})
	require.NoError(t, err)

	e.Start(context.Background())
	require.Eventually(t, func() bool {
		round, _ := e.Round()
		return round == 1
	}, 5*time.Second, 10*time.Millisecond)

	e.Stop()
	require.True(t, e.Deliver(&model.Timeout{Round: 1}))
	require.Never(t, func() bool { return len(e.inbound) == 0 }, 100*time.Millisecond, 10*time.Millisecond,
		"the stopped engine still consumes its inbound queue")
	e.Stop()
}

func TestForgedCertificateIsRejected(t *testing.T) {
	network := newTestNetwork(t, 4, func(int) *fakeDAG { return newFakeDAG(10, 1) })
	e := network.engines[0]
	require.NoError(t, e.start())

	candidate := testutils.Candidate(8, 9)
	qc := &model.QuorumCertificate{Round: 1, Candidate: candidate}
	for _, s := range network.signers[:2] {
		vote, err := s.SignVote(1, candidate)
		require.NoError(t, err)
		qc.Votes = append(qc.Votes, vote)
	}
	err := e.handleMessage(qc)
	require.True(t, errors.Is(err, model.ErrInvalidCertificate))

	_, found, err := network.ledgers[0].Latest()
	require.NoError(t, err)
	require.False(t, found)
}

func TestRestartResumesAfterLastSignedRound(t *testing.T) {
	signers, schedule, err := testutils.GenerateValidators(4, 1)
	require.NoError(t, err)
	checkpointLedger := openTestLedger(t)
	require.NoError(t, checkpointLedger.StoreSafetyData(&model.SafetyData{
		LastVotedRound:     5,
		LastVotedCandidate: testutils.Candidate(3, 1),
		LastTimeoutRound:   6,
	}))

	e, err := New(testParams(), newFakeDAG(1, 1), schedule, checkpointLedger, signers[0], func(model.Message) {})
	require.NoError(t, err)
	require.NoError(t, e.start())

	round, _ := e.Round()
	require.Equal(t, uint64(7), round)
}

func TestRunCommitsCheckpoints(t *testing.T) {
	signers, schedule, err := testutils.GenerateValidators(4, 1)
	require.NoError(t, err)
	params := testParams()
	params.FinalityRoundTimeout = 200 * time.Millisecond

	var enginesLock sync.RWMutex
	engines := make([]*Engine, len(signers))
	ledgers := make([]*ledger.Ledger, len(signers))
	for i, s := range signers {
		i := i
		ledgers[i] = openTestLedger(t)
		e, err := New(params, newFakeDAG(10, 1), schedule, ledgers[i], s, func(message model.Message) {
			enginesLock.RLock()
			defer enginesLock.RUnlock()
			for j, other := range engines {
				if j != i {
					other.Deliver(message)
				}
			}
		})
		require.NoError(t, err)
		enginesLock.Lock()
		engines[i] = e
		enginesLock.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	for _, e := range engines {
		e := e
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Run(ctx)
		}()
	}

	require.Eventually(t, func() bool {
		for _, e := range engines {
			latest := e.LatestCommitted()
			if latest == nil || latest.Candidate.Height != 8 {
				return false
			}
		}
		return true
	}, 10*time.Second, 20*time.Millisecond)

	cancel()
	wg.Wait()
}
