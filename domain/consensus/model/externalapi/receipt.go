package externalapi

import "github.com/holiman/uint256"

// ReceiptOutcome is the result of executing a single transaction
type ReceiptOutcome byte

const (
	// ReceiptOutcomeSuccess means the transaction was fully applied
	ReceiptOutcomeSuccess ReceiptOutcome = iota

	// ReceiptOutcomeFailed means the fee was charged and the nonce bumped,
	// but the transfer itself was not applied
	ReceiptOutcomeFailed

	// ReceiptOutcomeSkipped means the transaction had no effect on state
	ReceiptOutcomeSkipped
)

var receiptOutcomeStrings = map[ReceiptOutcome]string{
	ReceiptOutcomeSuccess: "Success",
	ReceiptOutcomeFailed:  "Failed",
	ReceiptOutcomeSkipped: "Skipped",
}

func (outcome ReceiptOutcome) String() string {
	return receiptOutcomeStrings[outcome]
}

// Receipt is the record of a transaction executed as part of an epoch
type Receipt struct {
	TransactionHash *DomainHash
	BlockHash       *DomainHash
	Index           uint32
	Outcome         ReceiptOutcome
	GasUsed         uint64
	FeeCharged      *uint256.Int
	Error           string
}

// Clone returns a clone of Receipt
func (r *Receipt) Clone() *Receipt {
	return &Receipt{
		TransactionHash: r.TransactionHash,
		BlockHash:       r.BlockHash,
		Index:           r.Index,
		Outcome:         r.Outcome,
		GasUsed:         r.GasUsed,
		FeeCharged:      cloneUint256(r.FeeCharged),
		Error:           r.Error,
	}
}

// Equal returns whether r equals to other
func (r *Receipt) Equal(other *Receipt) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.TransactionHash.Equal(other.TransactionHash) &&
		r.BlockHash.Equal(other.BlockHash) &&
		r.Index == other.Index &&
		r.Outcome == other.Outcome &&
		r.GasUsed == other.GasUsed &&
		uint256Equal(r.FeeCharged, other.FeeCharged) &&
		r.Error == other.Error
}

// EpochExecutionResult is the committed result of executing one epoch
type EpochExecutionResult struct {
	Epoch        uint64
	PivotHash    *DomainHash
	StateRoot    *DomainHash
	ReceiptsRoot *DomainHash
	Receipts     []*Receipt
}

// Clone returns a clone of EpochExecutionResult
func (r *EpochExecutionResult) Clone() *EpochExecutionResult {
	receiptsClone := make([]*Receipt, len(r.Receipts))
	for i, receipt := range r.Receipts {
		receiptsClone[i] = receipt.Clone()
	}
	return &EpochExecutionResult{
		Epoch:        r.Epoch,
		PivotHash:    r.PivotHash,
		StateRoot:    r.StateRoot,
		ReceiptsRoot: r.ReceiptsRoot,
		Receipts:     receiptsClone,
	}
}
