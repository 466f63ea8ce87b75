package serialization

import (
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

// ExecutionResultToBytes encodes an epoch execution result with its receipts
func ExecutionResultToBytes(result *externalapi.EpochExecutionResult) []byte {
	var b []byte
	b = appendVarintField(b, 1, result.Epoch)
	b = appendHashField(b, 2, result.PivotHash)
	b = appendHashField(b, 3, result.StateRoot)
	b = appendHashField(b, 4, result.ReceiptsRoot)
	for _, receipt := range result.Receipts {
		b = appendBytesField(b, 5, receiptToBytes(receipt))
	}
	return b
}

// BytesToExecutionResult decodes a result encoded by ExecutionResultToBytes
func BytesToExecutionResult(resultBytes []byte) (*externalapi.EpochExecutionResult, error) {
	result := &externalapi.EpochExecutionResult{}
	reader := newMessageReader(resultBytes)
	for {
		ok, err := reader.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return result, nil
		}
		switch reader.field() {
		case 1:
			result.Epoch, err = reader.varint()
		case 2:
			result.PivotHash, err = reader.hash()
		case 3:
			result.StateRoot, err = reader.hash()
		case 4:
			result.ReceiptsRoot, err = reader.hash()
		case 5:
			var receiptBytes []byte
			receiptBytes, err = reader.bytes()
			if err != nil {
				return nil, err
			}
			var receipt *externalapi.Receipt
			receipt, err = bytesToReceipt(receiptBytes)
			result.Receipts = append(result.Receipts, receipt)
		default:
			err = reader.skip()
		}
		if err != nil {
			return nil, err
		}
	}
}

func receiptToBytes(receipt *externalapi.Receipt) []byte {
	var b []byte
	b = appendHashField(b, 1, receipt.TransactionHash)
	b = appendHashField(b, 2, receipt.BlockHash)
	b = appendVarintField(b, 3, uint64(receipt.Index))
	b = appendVarintField(b, 4, uint64(receipt.Outcome))
	b = appendVarintField(b, 5, receipt.GasUsed)
	b = appendUint256Field(b, 6, receipt.FeeCharged)
	if receipt.Error != "" {
		b = appendBytesField(b, 7, []byte(receipt.Error))
	}
	return b
}

func bytesToReceipt(receiptBytes []byte) (*externalapi.Receipt, error) {
	receipt := &externalapi.Receipt{}
	reader := newMessageReader(receiptBytes)
	for {
		ok, err := reader.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return receipt, nil
		}
		switch reader.field() {
		case 1:
			receipt.TransactionHash, err = reader.hash()
		case 2:
			receipt.BlockHash, err = reader.hash()
		case 3:
			var index uint64
			index, err = reader.varint()
			receipt.Index = uint32(index)
		case 4:
			var outcome uint64
			outcome, err = reader.varint()
			receipt.Outcome = externalapi.ReceiptOutcome(outcome)
		case 5:
			receipt.GasUsed, err = reader.varint()
		case 6:
			receipt.FeeCharged, err = reader.uint256()
		case 7:
			var errorBytes []byte
			errorBytes, err = reader.bytes()
			receipt.Error = string(errorBytes)
		default:
			err = reader.skip()
		}
		if err != nil {
			return nil, err
		}
	}
}
