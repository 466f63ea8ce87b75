// Package roundstate tracks the phase of a single finality round and
// validates transitions between phases.
package roundstate

import (
	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/finality/model"
)

// Phase is the phase of a finality round
type Phase byte

const (
	// ProposalPending is the initial phase: the round waits for its
	// leader's proposal
	ProposalPending Phase = iota
	// Voting means a proposal was accepted and votes are collected
	Voting
	// QuorumReached means a quorum certificate was formed for the round's
	// candidate
	QuorumReached
	// Committed means the certified candidate was written to the ledger
	Committed
	// TimedOut means the round ended without a quorum
	TimedOut
	// NewRound means the round was abandoned in favour of its successor
	NewRound
)

var phaseStrings = map[Phase]string{
	ProposalPending: "ProposalPending",
	Voting:          "Voting",
	QuorumReached:   "QuorumReached",
	Committed:       "Committed",
	TimedOut:        "TimedOut",
	NewRound:        "NewRound",
}

func (p Phase) String() string {
	return phaseStrings[p]
}

var legalTransitions = map[Phase][]Phase{
	ProposalPending: {Voting, QuorumReached, TimedOut},
	Voting:          {QuorumReached, TimedOut},
	QuorumReached:   {Committed},
	Committed:       {},
	TimedOut:        {QuorumReached, NewRound},
	NewRound:        {},
}

// IsFinal returns whether no transition leaves p
func (p Phase) IsFinal() bool {
	return len(legalTransitions[p]) == 0
}

// RoundState is the state of a single finality round
type RoundState struct {
	round     uint64
	phase     Phase
	proposal  *model.Proposal
	candidate *model.Candidate
	qc        *model.QuorumCertificate
	tc        *model.TimeoutCertificate
}

// New returns the state of a round that has just started
func New(round uint64) *RoundState {
	return &RoundState{round: round, phase: ProposalPending}
}

// Round returns the round number
func (rs *RoundState) Round() uint64 {
	return rs.round
}

// Phase returns the current phase of the round
func (rs *RoundState) Phase() Phase {
	return rs.phase
}

// Proposal returns the accepted proposal of the round, if any
func (rs *RoundState) Proposal() *model.Proposal {
	return rs.proposal
}

// QuorumCertificate returns the quorum certificate of the round, if any
func (rs *RoundState) QuorumCertificate() *model.QuorumCertificate {
	return rs.qc
}

// TimeoutCertificate returns the timeout certificate of the round, if any
func (rs *RoundState) TimeoutCertificate() *model.TimeoutCertificate {
	return rs.tc
}

// IsActive returns whether the round still accepts votes and timeouts
func (rs *RoundState) IsActive() bool {
	return rs.phase == ProposalPending || rs.phase == Voting || rs.phase == TimedOut
}

func (rs *RoundState) transition(to Phase) error {
	for _, legal := range legalTransitions[rs.phase] {
		if legal == to {
			log.Tracef("Round %d: %s -> %s", rs.round, rs.phase, to)
			rs.phase = to
			return nil
		}
	}
	return errors.Wrapf(model.ErrIllegalTransition, "round %d: %s -> %s", rs.round, rs.phase, to)
}

// AcceptProposal moves the round from ProposalPending to Voting
func (rs *RoundState) AcceptProposal(proposal *model.Proposal) error {
	if proposal.Round != rs.round {
		return errors.Errorf("proposal of round %d delivered to round %d", proposal.Round, rs.round)
	}
	err := rs.transition(Voting)
	if err != nil {
		return err
	}
	rs.proposal = proposal
	rs.candidate = proposal.Candidate
	return nil
}

// ReachQuorum records the round's quorum certificate. A certificate may
// arrive before the proposal, or after the local timer fired, as long as
// the round was not abandoned.
func (rs *RoundState) ReachQuorum(qc *model.QuorumCertificate) error {
	if qc.Round != rs.round {
		return errors.Errorf("certificate of round %d delivered to round %d", qc.Round, rs.round)
	}
	err := rs.transition(QuorumReached)
	if err != nil {
		return err
	}
	rs.qc = qc
	rs.candidate = qc.Candidate
	return nil
}

// Commit marks the certified candidate as committed
func (rs *RoundState) Commit() error {
	return rs.transition(Committed)
}

// TimeOut marks the round as timed out
func (rs *RoundState) TimeOut() error {
	return rs.transition(TimedOut)
}

// Abandon ends a timed out round given the certificate proving that a
// quorum of validators timed out as well
func (rs *RoundState) Abandon(tc *model.TimeoutCertificate) error {
	if tc.Round != rs.round {
		return errors.Errorf("timeout certificate of round %d delivered to round %d", tc.Round, rs.round)
	}
	err := rs.transition(NewRound)
	if err != nil {
		return err
	}
	rs.tc = tc
	return nil
}
