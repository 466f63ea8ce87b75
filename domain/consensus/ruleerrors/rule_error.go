package ruleerrors

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

// ErrMalformedDag is the common inner error of every rule error that
// rejects a block for breaking the well-formedness of the DAG.
var ErrMalformedDag = newRuleError("ErrMalformedDag")

// These constants are used to identify a specific RuleError.
var (
	// ErrDuplicateBlock indicates a block with the same hash already
	// exists.
	ErrDuplicateBlock = newMalformedDagError("ErrDuplicateBlock")

	// ErrNoParent indicates that a non-genesis block has no parent
	ErrNoParent = newMalformedDagError("ErrNoParent")

	// ErrInvalidHeight indicates that a block's height is not its parent's
	// height plus one
	ErrInvalidHeight = newMalformedDagError("ErrInvalidHeight")

	// ErrCyclicReference indicates that a block references itself
	ErrCyclicReference = newMalformedDagError("ErrCyclicReference")

	// ErrDuplicateReferee indicates that a block lists the same referee twice
	ErrDuplicateReferee = newMalformedDagError("ErrDuplicateReferee")

	// ErrParentAsReferee indicates that a block lists its parent as a referee
	ErrParentAsReferee = newMalformedDagError("ErrParentAsReferee")

	// ErrTooManyReferees indicates that a block has more referees than allowed
	ErrTooManyReferees = newMalformedDagError("ErrTooManyReferees")

	// ErrMissingTimestamp indicates that a block has no timestamp
	ErrMissingTimestamp = newMalformedDagError("ErrMissingTimestamp")

	// ErrTooManyTransactions indicates that a block has more transactions than allowed
	ErrTooManyTransactions = newMalformedDagError("ErrTooManyTransactions")

	// ErrBadTransactionsRoot indicates that the transactions root in a
	// block header does not match the block's transactions
	ErrBadTransactionsRoot = newMalformedDagError("ErrBadTransactionsRoot")

	// ErrMissingDeferredStateRoot indicates that a block does not declare a
	// deferred state root
	ErrMissingDeferredStateRoot = newMalformedDagError("ErrMissingDeferredStateRoot")

	// ErrGenesisOnInitializedConsensus indicates that a genesis block was
	// submitted to an already initialized consensus
	ErrGenesisOnInitializedConsensus = newMalformedDagError("ErrGenesisOnInitializedConsensus")

	// ErrBelowCheckpoint indicates that a block's parent chain does not
	// contain the latest checkpoint, so it could only change the pivot chain
	// below it
	ErrBelowCheckpoint = newRuleError("ErrBelowCheckpoint")

	// ErrCheckpointViolation indicates an attempt to revert state or the
	// pivot chain past the latest checkpoint
	ErrCheckpointViolation = newRuleError("ErrCheckpointViolation")

	// ErrUnknownBlock indicates that a referenced block is not in the DAG
	ErrUnknownBlock = newRuleError("ErrUnknownBlock")
)

// RuleError identifies a rule violation. It is used to indicate that
// processing of a block failed due to one of the many validation
// rules. The caller can use type assertions to determine if a failure was
// specifically due to a rule violation.
type RuleError struct {
	message string
	inner   error
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	if e.inner != nil {
		return e.message + ": " + e.inner.Error()
	}
	return e.message
}

// Unwrap satisfies the errors.Unwrap interface
func (e RuleError) Unwrap() error {
	return e.inner
}

// Cause satisfies the github.com/pkg/errors.Cause interface
func (e RuleError) Cause() error {
	return e.inner
}

func newRuleError(message string) RuleError {
	return RuleError{message: message, inner: nil}
}

func newMalformedDagError(message string) RuleError {
	return RuleError{message: message, inner: ErrMalformedDag}
}

// IsMalformedDagError returns whether err rejects a block for breaking DAG
// well-formedness
func IsMalformedDagError(err error) bool {
	return errors.Is(err, ErrMalformedDag)
}

// ErrMissingParents indicates a block points to unknown parent or referees.
type ErrMissingParents struct {
	MissingParentHashes []*externalapi.DomainHash
}

func (e ErrMissingParents) Error() string {
	return fmt.Sprintf("missing the following parent hashes: %v", e.MissingParentHashes)
}

// Unwrap marks missing parents as a malformed DAG
func (e ErrMissingParents) Unwrap() error {
	return ErrMalformedDag
}

// NewErrMissingParents creates a new ErrMissingParents error wrapped in a RuleError
func NewErrMissingParents(missingParentHashes []*externalapi.DomainHash) error {
	return errors.WithStack(RuleError{
		message: "ErrMissingParents",
		inner:   ErrMissingParents{missingParentHashes},
	})
}

// ExecutionFault describes an epoch that cannot be executed at all
type ExecutionFault struct {
	Epoch  uint64
	Reason string
}

func (e ExecutionFault) Error() string {
	return fmt.Sprintf("epoch %d: %s", e.Epoch, e.Reason)
}

// NewErrExecutionFault creates a new ExecutionFault error wrapped in a RuleError
func NewErrExecutionFault(epoch uint64, reason string) error {
	return errors.WithStack(RuleError{
		message: "ErrExecutionFault",
		inner:   ExecutionFault{Epoch: epoch, Reason: reason},
	})
}

// IsExecutionFault returns whether err is an ExecutionFault
func IsExecutionFault(err error) bool {
	return errors.As(err, &ExecutionFault{})
}
