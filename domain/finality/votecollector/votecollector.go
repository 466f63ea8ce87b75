// Package votecollector tallies signed votes and timeouts by stake and forms
// quorum and timeout certificates.
package votecollector

import (
	"bytes"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/finality/model"
	"github.com/treegraph/tgraphd/domain/finality/signer"
)

// ValidatorSchedule returns the validator set of a round
type ValidatorSchedule interface {
	ValidatorsAt(round uint64) (*model.ValidatorSet, error)
}

// QuorumStakeFunc returns the stake that strictly exceeds the quorum
// fraction of totalStake
type QuorumStakeFunc func(totalStake uint64) uint64

type candidateTally struct {
	candidate *model.Candidate
	votes     map[model.PublicKey]*model.Vote
	stake     uint64
}

type roundTally struct {
	validators   *model.ValidatorSet
	quorum       uint64
	votes        map[model.PublicKey]*model.Vote
	candidates   map[externalapi.DomainHash]*candidateTally
	equivocators map[model.PublicKey]struct{}
	timeouts     map[model.PublicKey]*model.Timeout
	timeoutStake uint64
	qcFormed     bool
	tcFormed     bool
}

// VoteCollector collects the votes and timeouts of every round that was not
// pruned yet
type VoteCollector struct {
	lock        sync.Mutex
	schedule    ValidatorSchedule
	quorumStake QuorumStakeFunc
	rounds      map[uint64]*roundTally
}

// New returns a new VoteCollector
func New(schedule ValidatorSchedule, quorumStake QuorumStakeFunc) *VoteCollector {
	return &VoteCollector{
		schedule:    schedule,
		quorumStake: quorumStake,
		rounds:      make(map[uint64]*roundTally),
	}
}

func (vc *VoteCollector) roundTally(round uint64) (*roundTally, error) {
	tally, ok := vc.rounds[round]
	if ok {
		return tally, nil
	}
	validators, err := vc.schedule.ValidatorsAt(round)
	if err != nil {
		return nil, err
	}
	tally = &roundTally{
		validators:   validators,
		quorum:       vc.quorumStake(validators.TotalStake()),
		votes:        make(map[model.PublicKey]*model.Vote),
		candidates:   make(map[externalapi.DomainHash]*candidateTally),
		equivocators: make(map[model.PublicKey]struct{}),
		timeouts:     make(map[model.PublicKey]*model.Timeout),
	}
	vc.rounds[round] = tally
	return tally, nil
}

// AddVote verifies and counts vote. It returns a quorum certificate the
// first time the votes for a single candidate of the vote's round reach the
// quorum. A validator that votes for two different candidates in the same
// round has both votes excluded from the tally, and the returned error is an
// ErrEquivocatingVote carrying the evidence.
func (vc *VoteCollector) AddVote(vote *model.Vote) (*model.QuorumCertificate, error) {
	vc.lock.Lock()
	defer vc.lock.Unlock()

	tally, err := vc.roundTally(vote.Round)
	if err != nil {
		return nil, err
	}
	stake, ok := tally.validators.Stake(vote.Voter)
	if !ok {
		return nil, errors.Wrapf(model.ErrUnknownValidator, "vote by %s in round %d", vote.Voter, vote.Round)
	}
	err = signer.VerifyVote(vote)
	if err != nil {
		return nil, err
	}

	if _, ok := tally.equivocators[vote.Voter]; ok {
		return nil, nil
	}
	previous, ok := tally.votes[vote.Voter]
	if ok {
		if previous.Candidate.Equal(vote.Candidate) {
			return nil, nil
		}
		tally.equivocators[vote.Voter] = struct{}{}
		previousTally := tally.candidates[*previous.Candidate.Hash]
		delete(previousTally.votes, vote.Voter)
		previousTally.stake -= stake
		return nil, model.NewErrEquivocatingVote(&model.EquivocationEvidence{
			Round:  vote.Round,
			Voter:  vote.Voter,
			First:  previous,
			Second: vote,
		})
	}
	tally.votes[vote.Voter] = vote

	forCandidate, ok := tally.candidates[*vote.Candidate.Hash]
	if !ok {
		forCandidate = &candidateTally{
			candidate: vote.Candidate,
			votes:     make(map[model.PublicKey]*model.Vote),
		}
		tally.candidates[*vote.Candidate.Hash] = forCandidate
	}
	forCandidate.votes[vote.Voter] = vote
	forCandidate.stake += stake
	log.Debugf("Round %d: %s has %d/%d stake", vote.Round, vote.Candidate.Hash, forCandidate.stake, tally.quorum)

	if tally.qcFormed || forCandidate.stake < tally.quorum {
		return nil, nil
	}
	tally.qcFormed = true
	return &model.QuorumCertificate{
		Round:     vote.Round,
		Candidate: forCandidate.candidate,
		Votes:     sortedVotes(forCandidate.votes),
	}, nil
}

// AddTimeout verifies and counts timeout. It returns a timeout certificate
// the first time the timeouts of the round reach the quorum.
func (vc *VoteCollector) AddTimeout(timeout *model.Timeout) (*model.TimeoutCertificate, error) {
	vc.lock.Lock()
	defer vc.lock.Unlock()

	tally, err := vc.roundTally(timeout.Round)
	if err != nil {
		return nil, err
	}
	stake, ok := tally.validators.Stake(timeout.Voter)
	if !ok {
		return nil, errors.Wrapf(model.ErrUnknownValidator, "timeout by %s in round %d", timeout.Voter, timeout.Round)
	}
	err = signer.VerifyTimeout(timeout)
	if err != nil {
		return nil, err
	}
	if _, ok := tally.timeouts[timeout.Voter]; ok {
		return nil, nil
	}
	tally.timeouts[timeout.Voter] = timeout
	tally.timeoutStake += stake
	log.Debugf("Round %d: timeouts have %d/%d stake", timeout.Round, tally.timeoutStake, tally.quorum)

	if tally.tcFormed || tally.timeoutStake < tally.quorum {
		return nil, nil
	}
	tally.tcFormed = true
	return &model.TimeoutCertificate{Round: timeout.Round, Timeouts: sortedTimeouts(tally.timeouts)}, nil
}

// VoteStake returns the stake that voted for candidate in round
func (vc *VoteCollector) VoteStake(round uint64, candidate *model.Candidate) uint64 {
	vc.lock.Lock()
	defer vc.lock.Unlock()

	tally, ok := vc.rounds[round]
	if !ok {
		return 0
	}
	forCandidate, ok := tally.candidates[*candidate.Hash]
	if !ok {
		return 0
	}
	return forCandidate.stake
}

// PruneBelow discards the tallies of every round before round
func (vc *VoteCollector) PruneBelow(round uint64) {
	vc.lock.Lock()
	defer vc.lock.Unlock()

	for r := range vc.rounds {
		if r < round {
			delete(vc.rounds, r)
		}
	}
}

func sortedVotes(votes map[model.PublicKey]*model.Vote) []*model.Vote {
	sorted := make([]*model.Vote, 0, len(votes))
	for _, vote := range votes {
		sorted = append(sorted, vote)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Voter[:], sorted[j].Voter[:]) < 0
	})
	return sorted
}

func sortedTimeouts(timeouts map[model.PublicKey]*model.Timeout) []*model.Timeout {
	sorted := make([]*model.Timeout, 0, len(timeouts))
	for _, timeout := range timeouts {
		sorted = append(sorted, timeout)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Voter[:], sorted[j].Voter[:]) < 0
	})
	return sorted
}
