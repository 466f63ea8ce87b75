package consensushashing

import (
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/utils/hashes"
)

// TransactionHash returns the given transaction's hash
func TransactionHash(tx *externalapi.DomainTransaction) *externalapi.DomainHash {
	writer := elementWriter{hashes.NewTransactionHashWriter()}
	writer.InfallibleWrite(tx.From[:])
	writer.InfallibleWrite(tx.To[:])
	writer.writeUint256(tx.Value)
	writer.writeUint64(tx.Nonce)
	writer.writeUint64(tx.GasLimit)
	writer.writeUint256(tx.GasPrice)
	writer.writeUint64(tx.EpochHeight)
	writer.writeUint32(tx.ChainID)
	writer.writeBytes(tx.Data)
	return writer.Finalize()
}

// TransactionsRoot returns the merkle root of the given transactions
func TransactionsRoot(transactions []*externalapi.DomainTransaction) *externalapi.DomainHash {
	leaves := make([]*externalapi.DomainHash, len(transactions))
	for i, tx := range transactions {
		leaves[i] = TransactionHash(tx)
	}
	return merkleRoot(leaves)
}

// ReceiptHash returns the given receipt's hash
func ReceiptHash(receipt *externalapi.Receipt) *externalapi.DomainHash {
	writer := elementWriter{hashes.NewReceiptHashWriter()}
	writer.writeHash(receipt.TransactionHash)
	writer.writeHash(receipt.BlockHash)
	writer.writeUint32(receipt.Index)
	writer.InfallibleWrite([]byte{byte(receipt.Outcome)})
	writer.writeUint64(receipt.GasUsed)
	writer.writeUint256(receipt.FeeCharged)
	writer.writeBytes([]byte(receipt.Error))
	return writer.Finalize()
}

// ReceiptsRoot returns the merkle root of the given receipts
func ReceiptsRoot(receipts []*externalapi.Receipt) *externalapi.DomainHash {
	leaves := make([]*externalapi.DomainHash, len(receipts))
	for i, receipt := range receipts {
		leaves[i] = ReceiptHash(receipt)
	}
	return merkleRoot(leaves)
}
