package model

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidSignature indicates a message whose signature does not
	// verify against its signer's public key
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrUnknownValidator indicates a message signed by a key that is not
	// in the validator set of the message's round
	ErrUnknownValidator = errors.New("unknown validator")

	// ErrStaleRound indicates a message for a round that already ended
	ErrStaleRound = errors.New("stale round")

	// ErrIllegalTransition indicates an attempt to move a round into a
	// phase that does not follow its current phase
	ErrIllegalTransition = errors.New("illegal round transition")

	// ErrUnsafeVote indicates a local attempt to sign a message that
	// conflicts with something this validator already signed
	ErrUnsafeVote = errors.New("unsafe vote")

	// ErrInvalidCertificate indicates a certificate whose signatures do not
	// add up to a quorum
	ErrInvalidCertificate = errors.New("invalid certificate")
)

// ErrEquivocatingVote indicates a validator signed two different
// candidates in the same round
type ErrEquivocatingVote struct {
	Evidence *EquivocationEvidence
}

func (e ErrEquivocatingVote) Error() string {
	return fmt.Sprintf("validator %s equivocated in round %d: voted for %s and %s",
		e.Evidence.Voter, e.Evidence.Round, e.Evidence.First.Candidate.Hash, e.Evidence.Second.Candidate.Hash)
}

// NewErrEquivocatingVote creates a new ErrEquivocatingVote error wrapped
// with a stack trace
func NewErrEquivocatingVote(evidence *EquivocationEvidence) error {
	return errors.WithStack(ErrEquivocatingVote{Evidence: evidence})
}
