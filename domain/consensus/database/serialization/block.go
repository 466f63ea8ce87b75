package serialization

import (
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

// DomainBlockToBytes encodes a block for storage
func DomainBlockToBytes(block *externalapi.DomainBlock) []byte {
	var b []byte
	b = appendBytesField(b, 1, domainBlockHeaderToBytes(block.Header))
	for _, tx := range block.Transactions {
		b = appendBytesField(b, 2, DomainTransactionToBytes(tx))
	}
	return b
}

// BytesToDomainBlock decodes a block encoded by DomainBlockToBytes
func BytesToDomainBlock(blockBytes []byte) (*externalapi.DomainBlock, error) {
	block := &externalapi.DomainBlock{}
	reader := newMessageReader(blockBytes)
	for {
		ok, err := reader.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch reader.field() {
		case 1:
			headerBytes, err := reader.bytes()
			if err != nil {
				return nil, err
			}
			block.Header, err = bytesToDomainBlockHeader(headerBytes)
			if err != nil {
				return nil, err
			}
		case 2:
			txBytes, err := reader.bytes()
			if err != nil {
				return nil, err
			}
			tx, err := BytesToDomainTransaction(txBytes)
			if err != nil {
				return nil, err
			}
			block.Transactions = append(block.Transactions, tx)
		default:
			err := reader.skip()
			if err != nil {
				return nil, err
			}
		}
	}
	if block.Header == nil {
		block.Header = &externalapi.DomainBlockHeader{}
	}
	return block, nil
}

func domainBlockHeaderToBytes(header *externalapi.DomainBlockHeader) []byte {
	var b []byte
	b = appendHashField(b, 1, header.ParentHash)
	for _, refereeHash := range header.RefereeHashes {
		b = appendHashField(b, 2, refereeHash)
	}
	b = appendVarintField(b, 3, header.Height)
	b = appendVarintField(b, 4, header.Difficulty)
	b = appendVarintField(b, 5, uint64(header.TimeInMilliseconds))
	b = appendVarintField(b, 6, header.Nonce)
	b = appendBytesField(b, 7, header.Miner[:])
	b = appendHashField(b, 8, header.TransactionsRoot)
	b = appendHashField(b, 9, header.DeferredStateRoot)
	return b
}

func bytesToDomainBlockHeader(headerBytes []byte) (*externalapi.DomainBlockHeader, error) {
	header := &externalapi.DomainBlockHeader{}
	reader := newMessageReader(headerBytes)
	for {
		ok, err := reader.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return header, nil
		}
		switch reader.field() {
		case 1:
			header.ParentHash, err = reader.hash()
		case 2:
			var refereeHash *externalapi.DomainHash
			refereeHash, err = reader.hash()
			header.RefereeHashes = append(header.RefereeHashes, refereeHash)
		case 3:
			header.Height, err = reader.varint()
		case 4:
			header.Difficulty, err = reader.varint()
		case 5:
			var timeInMilliseconds uint64
			timeInMilliseconds, err = reader.varint()
			header.TimeInMilliseconds = int64(timeInMilliseconds)
		case 6:
			header.Nonce, err = reader.varint()
		case 7:
			header.Miner, err = reader.address()
		case 8:
			header.TransactionsRoot, err = reader.hash()
		case 9:
			header.DeferredStateRoot, err = reader.hash()
		default:
			err = reader.skip()
		}
		if err != nil {
			return nil, err
		}
	}
}

// DomainTransactionToBytes encodes a transaction
func DomainTransactionToBytes(tx *externalapi.DomainTransaction) []byte {
	var b []byte
	b = appendBytesField(b, 1, tx.From[:])
	b = appendBytesField(b, 2, tx.To[:])
	b = appendUint256Field(b, 3, tx.Value)
	b = appendVarintField(b, 4, tx.Nonce)
	b = appendVarintField(b, 5, tx.GasLimit)
	b = appendUint256Field(b, 6, tx.GasPrice)
	b = appendVarintField(b, 7, tx.EpochHeight)
	b = appendVarintField(b, 8, uint64(tx.ChainID))
	b = appendBytesField(b, 9, tx.Data)
	return b
}

// BytesToDomainTransaction decodes a transaction encoded by DomainTransactionToBytes
func BytesToDomainTransaction(txBytes []byte) (*externalapi.DomainTransaction, error) {
	tx := &externalapi.DomainTransaction{}
	reader := newMessageReader(txBytes)
	for {
		ok, err := reader.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return tx, nil
		}
		switch reader.field() {
		case 1:
			tx.From, err = reader.address()
		case 2:
			tx.To, err = reader.address()
		case 3:
			tx.Value, err = reader.uint256()
		case 4:
			tx.Nonce, err = reader.varint()
		case 5:
			tx.GasLimit, err = reader.varint()
		case 6:
			tx.GasPrice, err = reader.uint256()
		case 7:
			tx.EpochHeight, err = reader.varint()
		case 8:
			var chainID uint64
			chainID, err = reader.varint()
			tx.ChainID = uint32(chainID)
		case 9:
			tx.Data, err = reader.bytes()
		default:
			err = reader.skip()
		}
		if err != nil {
			return nil, err
		}
	}
}
