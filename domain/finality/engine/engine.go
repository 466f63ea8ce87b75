// Package engine runs the finality rounds of the local node. Each round
// its leader proposes a pivot chain block behind the tip by a safety
// margin, validators vote for it if their own pivot chain agrees, and a
// quorum of stake commits it to the checkpoint ledger and to the DAG as its
// new checkpoint. A round that does not reach a quorum in time is
// abandoned once a quorum of validators timed out.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/consensus/ruleerrors"
	"github.com/treegraph/tgraphd/domain/dagconfig"
	"github.com/treegraph/tgraphd/domain/finality/ledger"
	"github.com/treegraph/tgraphd/domain/finality/model"
	"github.com/treegraph/tgraphd/domain/finality/roundstate"
	"github.com/treegraph/tgraphd/domain/finality/safetyrules"
	"github.com/treegraph/tgraphd/domain/finality/signer"
	"github.com/treegraph/tgraphd/domain/finality/votecollector"
)

const (
	inboundQueueSize = 1000
	// maxFutureRounds bounds how far ahead of the current round messages
	// are buffered
	maxFutureRounds = 10
	minTickInterval = 10 * time.Millisecond
)

// Engine is the finality engine. All of its state is owned by the goroutine
// running Run; other goroutines only interact with it through Deliver.
type Engine struct {
	dag             model.DAG
	schedule        votecollector.ValidatorSchedule
	quorumStake     votecollector.QuorumStakeFunc
	ledger          *ledger.Ledger
	signer          *signer.Signer
	safetyRules     *safetyrules.SafetyRules
	emit            model.Emitter
	collector       *votecollector.VoteCollector
	safetyMargin    uint64
	roundTimeout    time.Duration
	inbound         chan model.Message
	droppedMessages uint64

	round             *roundstate.RoundState
	roundDeadline     time.Time
	proposed          bool
	future            map[uint64][]model.Message
	pendingCheckpoint *model.QuorumCertificate
	now               func() time.Time

	stateLock   sync.RWMutex
	stateRound  uint64
	statePhase  roundstate.Phase
	stateLedger *model.LedgerInfo

	runLock   sync.Mutex
	cancelRun context.CancelFunc
	running   sync.WaitGroup
}

// New returns a new finality engine. A nil validatorSigner makes the engine
// an observer that follows certificates without proposing or voting.
func New(params *dagconfig.Params, dag model.DAG, schedule votecollector.ValidatorSchedule,
	checkpointLedger *ledger.Ledger, validatorSigner *signer.Signer, emit model.Emitter) (*Engine, error) {

	e := &Engine{
		dag:          dag,
		schedule:     schedule,
		quorumStake:  params.QuorumStake,
		ledger:       checkpointLedger,
		signer:       validatorSigner,
		emit:         emit,
		collector:    votecollector.New(schedule, params.QuorumStake),
		safetyMargin: params.CheckpointSafetyMargin,
		roundTimeout: params.FinalityRoundTimeout,
		inbound:      make(chan model.Message, inboundQueueSize),
		future:       make(map[uint64][]model.Message),
		now:          time.Now,
	}
	if validatorSigner != nil {
		safetyRules, err := safetyrules.New(validatorSigner, checkpointLedger)
		if err != nil {
			return nil, err
		}
		e.safetyRules = safetyRules
	}
	return e, nil
}

// Deliver queues an inbound consensus message. It never blocks: when the
// queue is full the message is dropped and false is returned.
func (e *Engine) Deliver(message model.Message) bool {
	select {
	case e.inbound <- message:
		return true
	default:
		e.stateLock.Lock()
		e.droppedMessages++
		e.stateLock.Unlock()
		log.Warnf("Inbound finality queue is full, dropping %s of round %d",
			message.Command(), message.MessageRound())
		return false
	}
}

// Start runs the engine in a new goroutine until ctx is cancelled or Stop
// is called
func (e *Engine) Start(ctx context.Context) {
	e.runLock.Lock()
	defer e.runLock.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	e.cancelRun = cancel
	e.running.Add(1)
	spawn("finalityEngine.Run", func() {
		defer e.running.Done()
		err := e.Run(runCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Criticalf("Finality engine stopped: %+v", err)
		}
	})
}

// Stop cancels the goroutine started by Start and waits for it to return.
// Once Stop returns, the engine no longer touches its DAG or ledger.
func (e *Engine) Stop() {
	e.runLock.Lock()
	cancel := e.cancelRun
	e.cancelRun = nil
	e.runLock.Unlock()

	if cancel != nil {
		cancel()
	}
	e.running.Wait()
}

// Run processes inbound messages and round timeouts until ctx is
// cancelled
func (e *Engine) Run(ctx context.Context) error {
	err := e.start()
	if err != nil {
		return err
	}

	tickInterval := e.roundTimeout / 10
	if tickInterval < minTickInterval {
		tickInterval = minTickInterval
	}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message := <-e.inbound:
			e.logMessageError(message, e.handleMessage(message))
		case <-ticker.C:
			err := e.tick()
			if err != nil {
				return err
			}
		}
	}
}

func (e *Engine) logMessageError(message model.Message, err error) {
	if err == nil {
		return
	}
	var equivocation model.ErrEquivocatingVote
	switch {
	case errors.As(err, &equivocation):
		log.Warnf("Protocol violation: %s", err)
	case errors.Is(err, model.ErrInvalidSignature), errors.Is(err, model.ErrUnknownValidator),
		errors.Is(err, model.ErrInvalidCertificate):
		log.Warnf("Rejected %s of round %d: %s", message.Command(), message.MessageRound(), err)
	default:
		log.Debugf("Ignored %s of round %d: %s", message.Command(), message.MessageRound(), err)
	}
}

// start restores the latest committed checkpoint into the DAG and enters
// the first round this validator has not signed anything in
func (e *Engine) start() error {
	latest, found, err := e.ledger.Latest()
	if err != nil {
		return err
	}
	firstRound := uint64(1)
	if found {
		e.setStateLedger(latest)
		firstRound = latest.Certificate.Round + 1
		_, err := e.applyCheckpoint(latest.Certificate)
		if err != nil {
			return err
		}
	}
	if e.safetyRules != nil {
		safetyData := e.safetyRules.SafetyData()
		if safetyData.LastVotedRound+1 > firstRound {
			firstRound = safetyData.LastVotedRound + 1
		}
		if safetyData.LastTimeoutRound+1 > firstRound {
			firstRound = safetyData.LastTimeoutRound + 1
		}
	}
	return e.startRound(firstRound)
}

func (e *Engine) tick() error {
	if e.pendingCheckpoint != nil {
		err := e.commitCheckpoint(e.pendingCheckpoint)
		if err != nil {
			return err
		}
	}
	if e.round.Phase() == roundstate.ProposalPending && !e.proposed {
		err := e.propose()
		if err != nil {
			return err
		}
	}
	if !e.now().Before(e.roundDeadline) {
		return e.onRoundTimeout()
	}
	return nil
}

func (e *Engine) isValidator(validators *model.ValidatorSet) bool {
	return e.signer != nil && validators.Contains(e.signer.PublicKey())
}

func (e *Engine) startRound(round uint64) error {
	log.Debugf("Entering finality round %d", round)
	e.round = roundstate.New(round)
	e.roundDeadline = e.now().Add(e.roundTimeout)
	e.proposed = false
	e.collector.PruneBelow(round)
	e.updateState()

	err := e.propose()
	if err != nil {
		return err
	}

	buffered := e.future[round]
	for r := range e.future {
		if r <= round {
			delete(e.future, r)
		}
	}
	for _, message := range buffered {
		if e.round.Round() != round {
			// A buffered certificate moved us past this round
			break
		}
		e.logMessageError(message, e.handleMessage(message))
	}
	return nil
}

func (e *Engine) updateState() {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()
	e.stateRound = e.round.Round()
	e.statePhase = e.round.Phase()
}

func (e *Engine) setStateLedger(info *model.LedgerInfo) {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()
	e.stateLedger = info
}

// Round returns the current round and its phase
func (e *Engine) Round() (uint64, roundstate.Phase) {
	e.stateLock.RLock()
	defer e.stateLock.RUnlock()
	return e.stateRound, e.statePhase
}

// LatestCommitted returns the latest checkpoint committed by the engine, or
// nil if none was
func (e *Engine) LatestCommitted() *model.LedgerInfo {
	e.stateLock.RLock()
	defer e.stateLock.RUnlock()
	return e.stateLedger
}

// DroppedMessages returns the number of inbound messages dropped because
// the queue was full
func (e *Engine) DroppedMessages() uint64 {
	e.stateLock.RLock()
	defer e.stateLock.RUnlock()
	return e.droppedMessages
}

// candidate returns the pivot chain block CheckpointSafetyMargin blocks
// behind the pivot tip, or nil if it is not above the latest checkpoint
func (e *Engine) candidate() (*model.Candidate, error) {
	_, tipHeight, err := e.dag.PivotTip()
	if err != nil {
		return nil, err
	}
	if tipHeight < e.safetyMargin {
		return nil, nil
	}
	height := tipHeight - e.safetyMargin

	checkpoint, err := e.dag.GetLatestCheckpoint()
	if err != nil {
		return nil, err
	}
	if height <= checkpoint.Height {
		return nil, nil
	}
	latest := e.LatestCommitted()
	if latest != nil && height <= latest.Candidate.Height {
		return nil, nil
	}
	if e.pendingCheckpoint != nil && height <= e.pendingCheckpoint.Candidate.Height {
		return nil, nil
	}

	hashes, err := e.dag.GetPivotChain(height, height)
	if err != nil {
		return nil, err
	}
	if len(hashes) != 1 {
		return nil, errors.Errorf("expected a single pivot block at height %d, got %d", height, len(hashes))
	}
	return &model.Candidate{Hash: hashes[0], Height: height}, nil
}

// propose proposes a candidate if the local validator leads the current
// round and a candidate is available
func (e *Engine) propose() error {
	if e.signer == nil || e.proposed {
		return nil
	}
	validators, err := e.schedule.ValidatorsAt(e.round.Round())
	if err != nil {
		return err
	}
	if validators.Leader(e.round.Round()).PublicKey != e.signer.PublicKey() {
		return nil
	}
	candidate, err := e.candidate()
	if err != nil {
		return err
	}
	if candidate == nil {
		return nil
	}

	proposal, err := e.signer.SignProposal(e.round.Round(), candidate)
	if err != nil {
		return err
	}
	e.proposed = true
	log.Debugf("Proposing %s at height %d in round %d", candidate.Hash, candidate.Height, proposal.Round)
	e.emit(proposal)
	return e.handleProposal(proposal)
}

// agreesWithLocalPivotChain returns whether candidate is on the local pivot
// chain and above the latest checkpoint
func (e *Engine) agreesWithLocalPivotChain(candidate *model.Candidate) (bool, error) {
	checkpoint, err := e.dag.GetLatestCheckpoint()
	if err != nil {
		return false, err
	}
	if candidate.Height <= checkpoint.Height {
		return false, nil
	}
	_, tipHeight, err := e.dag.PivotTip()
	if err != nil {
		return false, err
	}
	if candidate.Height > tipHeight {
		return false, nil
	}
	hashes, err := e.dag.GetPivotChain(candidate.Height, candidate.Height)
	if err != nil {
		return false, err
	}
	return len(hashes) == 1 && hashes[0].Equal(candidate.Hash), nil
}

func (e *Engine) bufferFutureMessage(message model.Message) error {
	round := message.MessageRound()
	if round > e.round.Round()+maxFutureRounds {
		return errors.Errorf("round %d is too far ahead of round %d", round, e.round.Round())
	}
	e.future[round] = append(e.future[round], message)
	return nil
}

func (e *Engine) handleMessage(message model.Message) error {
	switch m := message.(type) {
	case *model.Proposal:
		return e.handleProposal(m)
	case *model.Vote:
		return e.handleVote(m)
	case *model.Timeout:
		return e.handleTimeout(m)
	case *model.QuorumCertificate:
		return e.handleQuorumCertificate(m)
	case *model.TimeoutCertificate:
		return e.handleTimeoutCertificate(m)
	}
	return errors.Errorf("unsupported finality message %T", message)
}

func (e *Engine) checkRound(message model.Message) (isFuture bool, err error) {
	round := message.MessageRound()
	if round < e.round.Round() {
		return false, errors.Wrapf(model.ErrStaleRound, "%s of round %d in round %d",
			message.Command(), round, e.round.Round())
	}
	return round > e.round.Round(), nil
}

func (e *Engine) handleProposal(proposal *model.Proposal) error {
	isFuture, err := e.checkRound(proposal)
	if err != nil {
		return err
	}
	if isFuture {
		return e.bufferFutureMessage(proposal)
	}

	validators, err := e.schedule.ValidatorsAt(proposal.Round)
	if err != nil {
		return err
	}
	if validators.Leader(proposal.Round).PublicKey != proposal.Proposer {
		return errors.Wrapf(model.ErrUnknownValidator, "%s is not the leader of round %d",
			proposal.Proposer, proposal.Round)
	}
	err = signer.VerifyProposal(proposal)
	if err != nil {
		return err
	}

	err = e.round.AcceptProposal(proposal)
	if err != nil {
		return err
	}
	e.updateState()

	if !e.isValidator(validators) {
		return nil
	}
	agrees, err := e.agreesWithLocalPivotChain(proposal.Candidate)
	if err != nil {
		return err
	}
	if !agrees {
		log.Debugf("Not voting for %s at height %d in round %d: not on the local pivot chain",
			proposal.Candidate.Hash, proposal.Candidate.Height, proposal.Round)
		return nil
	}

	vote, err := e.safetyRules.SignVote(proposal.Round, proposal.Candidate)
	if err != nil {
		return err
	}
	e.emit(vote)
	return e.handleVote(vote)
}

func (e *Engine) handleVote(vote *model.Vote) error {
	isFuture, err := e.checkRound(vote)
	if err != nil {
		return err
	}
	if isFuture {
		return e.bufferFutureMessage(vote)
	}
	if !e.round.IsActive() {
		return nil
	}

	qc, err := e.collector.AddVote(vote)
	if err != nil {
		var equivocation model.ErrEquivocatingVote
		if errors.As(err, &equivocation) {
			recordErr := e.ledger.RecordEquivocation(equivocation.Evidence)
			if recordErr != nil {
				return recordErr
			}
		}
		return err
	}
	if qc == nil {
		return nil
	}
	log.Infof("Round %d reached a quorum for %s at height %d", qc.Round, qc.Candidate.Hash, qc.Candidate.Height)
	e.emit(qc)
	return e.onQuorumCertificate(qc)
}

func (e *Engine) handleTimeout(timeout *model.Timeout) error {
	isFuture, err := e.checkRound(timeout)
	if err != nil {
		return err
	}
	if isFuture {
		return e.bufferFutureMessage(timeout)
	}
	if !e.round.IsActive() {
		return nil
	}

	tc, err := e.collector.AddTimeout(timeout)
	if err != nil {
		return err
	}
	if tc == nil {
		return nil
	}
	e.emit(tc)
	return e.onTimeoutCertificate(tc)
}

func (e *Engine) handleQuorumCertificate(qc *model.QuorumCertificate) error {
	latest := e.LatestCommitted()
	if latest != nil && qc.Candidate.Height <= latest.Candidate.Height {
		return nil
	}
	err := votecollector.VerifyQuorumCertificate(e.schedule, e.quorumStake, qc)
	if err != nil {
		return err
	}
	return e.onQuorumCertificate(qc)
}

func (e *Engine) handleTimeoutCertificate(tc *model.TimeoutCertificate) error {
	if tc.Round < e.round.Round() {
		return nil
	}
	err := votecollector.VerifyTimeoutCertificate(e.schedule, e.quorumStake, tc)
	if err != nil {
		return err
	}
	return e.onTimeoutCertificate(tc)
}

// onQuorumCertificate commits the certified candidate and moves on to the
// round after the certificate's
func (e *Engine) onQuorumCertificate(qc *model.QuorumCertificate) error {
	isCurrentRound := qc.Round == e.round.Round()
	if isCurrentRound {
		err := e.round.ReachQuorum(qc)
		if err != nil {
			return err
		}
	}

	err := e.commitCheckpoint(qc)
	if err != nil {
		return err
	}

	if isCurrentRound {
		err := e.round.Commit()
		if err != nil {
			return err
		}
		e.updateState()
	}
	if qc.Round >= e.round.Round() {
		return e.startRound(qc.Round + 1)
	}
	return nil
}

// commitCheckpoint moves the DAG checkpoint to the certified candidate, then
// records the certificate in the ledger. A candidate the DAG does not know
// yet is retried on every tick and recorded once applied. A candidate that
// does not descend from the DAG checkpoint is never recorded.
func (e *Engine) commitCheckpoint(qc *model.QuorumCertificate) error {
	isPending, err := e.applyCheckpoint(qc)
	if errors.Is(err, ruleerrors.ErrCheckpointViolation) {
		log.Warnf("Certificate of round %d for %s at height %d conflicts with the DAG checkpoint, "+
			"not committing it: %s", qc.Round, qc.Candidate.Hash, qc.Candidate.Height, err)
		return nil
	}
	if err != nil {
		return err
	}
	if isPending {
		return nil
	}

	info, err := e.ledger.Append(qc)
	if errors.Is(err, ledger.ErrNonMonotonicCheckpoint) {
		log.Debugf("Certificate of round %d is not above the latest checkpoint: %s", qc.Round, err)
		return nil
	}
	if err != nil {
		return err
	}
	e.setStateLedger(info)
	log.Infof("Committed checkpoint %s at height %d (ledger sequence %d)",
		info.Candidate.Hash, info.Candidate.Height, info.Sequence)
	return nil
}

// applyCheckpoint moves the DAG checkpoint to the certified candidate.
// isPending is true when the DAG does not know the candidate yet. A
// candidate at or below the DAG checkpoint must be on its pivot chain.
func (e *Engine) applyCheckpoint(qc *model.QuorumCertificate) (isPending bool, err error) {
	checkpoint, err := e.dag.GetLatestCheckpoint()
	if err != nil {
		return false, err
	}
	if checkpoint.Height >= qc.Candidate.Height {
		e.pendingCheckpoint = nil
		hashes, err := e.dag.GetPivotChain(qc.Candidate.Height, qc.Candidate.Height)
		if err != nil {
			return false, err
		}
		if len(hashes) != 1 || !hashes[0].Equal(qc.Candidate.Hash) {
			return false, errors.Wrapf(ruleerrors.ErrCheckpointViolation,
				"candidate %s at height %d is not in the parent chain of the checkpoint %s",
				qc.Candidate.Hash, qc.Candidate.Height, checkpoint.Hash)
		}
		return false, nil
	}

	_, err = e.dag.SetCheckpoint(qc.Candidate.Hash)
	if errors.Is(err, ruleerrors.ErrUnknownBlock) {
		if e.pendingCheckpoint == nil {
			log.Infof("Checkpoint %s at height %d is not in the DAG yet", qc.Candidate.Hash, qc.Candidate.Height)
		}
		e.pendingCheckpoint = qc
		return true, nil
	}
	e.pendingCheckpoint = nil
	if errors.Is(err, ruleerrors.ErrCheckpointViolation) {
		return false, err
	}
	if err != nil {
		return false, errors.Wrapf(err, "failed setting checkpoint %s", qc.Candidate.Hash)
	}
	return false, nil
}

// onRoundTimeout times the current round out and broadcasts a signed
// timeout. While the round stays timed out, the timeout is re-broadcast
// every round timeout.
func (e *Engine) onRoundTimeout() error {
	e.roundDeadline = e.now().Add(e.roundTimeout)
	phase := e.round.Phase()
	if phase == roundstate.ProposalPending || phase == roundstate.Voting {
		log.Infof("Finality round %d timed out in phase %s", e.round.Round(), phase)
		err := e.round.TimeOut()
		if err != nil {
			return err
		}
		e.updateState()
	}
	if e.round.Phase() != roundstate.TimedOut || e.signer == nil {
		return nil
	}

	validators, err := e.schedule.ValidatorsAt(e.round.Round())
	if err != nil {
		return err
	}
	if !e.isValidator(validators) {
		return nil
	}
	timeout, err := e.safetyRules.SignTimeout(e.round.Round())
	if err != nil {
		return err
	}
	e.emit(timeout)
	err = e.handleTimeout(timeout)
	if err != nil && !errors.Is(err, model.ErrStaleRound) {
		return err
	}
	return nil
}

// onTimeoutCertificate abandons the round the certificate proves timed out
// and starts the next one with an updated candidate
func (e *Engine) onTimeoutCertificate(tc *model.TimeoutCertificate) error {
	if tc.Round == e.round.Round() {
		if e.round.Phase() == roundstate.ProposalPending || e.round.Phase() == roundstate.Voting {
			err := e.round.TimeOut()
			if err != nil {
				return err
			}
		}
		err := e.round.Abandon(tc)
		if err != nil {
			return err
		}
		e.updateState()
	}
	log.Infof("Finality round %d abandoned after a timeout quorum", tc.Round)
	return e.startRound(tc.Round + 1)
}
