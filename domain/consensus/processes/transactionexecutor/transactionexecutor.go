package transactionexecutor

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/ruleerrors"
	"github.com/treegraph/tgraphd/domain/consensus/utils/consensushashing"
)

const (
	// TransactionGas is the gas every transaction pays before its data
	TransactionGas = 21000

	// DataByteGas is the gas paid for every byte of transaction data
	DataByteGas = 16
)

// transactionExecutor applies account transfers. It is deterministic: the
// outcome depends only on the transaction, the state view and the epoch.
type transactionExecutor struct {
	chainID               uint32
	transactionEpochBound uint64
	blockReward           *uint256.Int
}

// New instantiates a new TransactionExecutor
func New(chainID uint32, transactionEpochBound uint64, blockReward uint64) model.TransactionExecutor {
	return &transactionExecutor{
		chainID:               chainID,
		transactionEpochBound: transactionEpochBound,
		blockReward:           uint256.NewInt(blockReward),
	}
}

// IntrinsicGas returns the gas a transaction pays regardless of its outcome
func IntrinsicGas(transaction *externalapi.DomainTransaction) uint64 {
	return TransactionGas + DataByteGas*uint64(len(transaction.Data))
}

// ExecuteTransaction applies transaction to view. A transaction that breaks an
// execution rule yields a Skipped or Failed receipt. Only state access
// failures are returned as errors.
func (te *transactionExecutor) ExecuteTransaction(view model.StateView, transaction *externalapi.DomainTransaction,
	blockHash *externalapi.DomainHash, miner externalapi.DomainAddress, index uint32,
	epochHeight uint64) (*externalapi.Receipt, error) {

	receipt := &externalapi.Receipt{
		TransactionHash: consensushashing.TransactionHash(transaction),
		BlockHash:       blockHash,
		Index:           index,
		FeeCharged:      uint256.NewInt(0),
	}
	skip := func(reason string) (*externalapi.Receipt, error) {
		receipt.Outcome = externalapi.ReceiptOutcomeSkipped
		receipt.Error = reason
		return receipt, nil
	}

	if transaction.ChainID != te.chainID {
		return skip("wrong chain id")
	}
	if !te.isWithinEpochBound(transaction.EpochHeight, epochHeight) {
		return skip("epoch height out of bound")
	}

	sender, err := view.Account(transaction.From)
	if err != nil {
		return nil, err
	}
	if sender.Nonce != transaction.Nonce {
		return skip("nonce mismatch")
	}
	gasUsed := IntrinsicGas(transaction)
	if transaction.GasLimit < gasUsed {
		return skip("gas limit below intrinsic gas")
	}
	fee, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(gasUsed), gasPriceOf(transaction))
	if overflow {
		return skip("fee overflow")
	}
	if sender.Balance.Lt(fee) {
		return skip("cannot pay fee")
	}

	sender.Balance.Sub(sender.Balance, fee)
	sender.Nonce++
	view.SetAccount(transaction.From, sender)
	err = te.credit(view, miner, fee, epochHeight)
	if err != nil {
		return nil, err
	}
	receipt.GasUsed = gasUsed
	receipt.FeeCharged = fee

	value := valueOf(transaction)
	sender, err = view.Account(transaction.From)
	if err != nil {
		return nil, err
	}
	if sender.Balance.Lt(value) {
		receipt.Outcome = externalapi.ReceiptOutcomeFailed
		receipt.Error = "insufficient balance"
		return receipt, nil
	}
	sender.Balance.Sub(sender.Balance, value)
	view.SetAccount(transaction.From, sender)
	err = te.credit(view, transaction.To, value, epochHeight)
	if err != nil {
		return nil, err
	}

	receipt.Outcome = externalapi.ReceiptOutcomeSuccess
	return receipt, nil
}

// ApplyBlockReward credits the block reward to miner
func (te *transactionExecutor) ApplyBlockReward(view model.StateView, miner externalapi.DomainAddress,
	epochHeight uint64) error {

	return te.credit(view, miner, te.blockReward, epochHeight)
}

// credit adds amount to the balance of address. A balance that would pass
// 2^256 makes the whole epoch unexecutable.
func (te *transactionExecutor) credit(view model.StateView, address externalapi.DomainAddress, amount *uint256.Int,
	epochHeight uint64) error {

	if amount.IsZero() {
		return nil
	}
	account, err := view.Account(address)
	if err != nil {
		return err
	}
	_, overflow := account.Balance.AddOverflow(account.Balance, amount)
	if overflow {
		return ruleerrors.NewErrExecutionFault(epochHeight,
			fmt.Sprintf("crediting %s to %s overflows its balance", amount.Dec(), address))
	}
	view.SetAccount(address, account)
	return nil
}

func (te *transactionExecutor) isWithinEpochBound(transactionEpochHeight uint64, epochHeight uint64) bool {
	if transactionEpochHeight > epochHeight {
		return transactionEpochHeight-epochHeight <= te.transactionEpochBound
	}
	return epochHeight-transactionEpochHeight <= te.transactionEpochBound
}

func gasPriceOf(transaction *externalapi.DomainTransaction) *uint256.Int {
	if transaction.GasPrice == nil {
		return uint256.NewInt(0)
	}
	return transaction.GasPrice
}

func valueOf(transaction *externalapi.DomainTransaction) *uint256.Int {
	if transaction.Value == nil {
		return uint256.NewInt(0)
	}
	return transaction.Value
}
