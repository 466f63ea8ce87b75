package serialization

import (
	"github.com/holiman/uint256"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

// AccountToBytes encodes an account state value
func AccountToBytes(account *externalapi.Account) []byte {
	var b []byte
	b = appendUint256Field(b, 1, account.Balance)
	b = appendVarintField(b, 2, account.Nonce)
	return b
}

// BytesToAccount decodes an account encoded by AccountToBytes
func BytesToAccount(accountBytes []byte) (*externalapi.Account, error) {
	account := &externalapi.Account{}
	reader := newMessageReader(accountBytes)
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
			account.Balance, err = reader.uint256()
		case 2:
			account.Nonce, err = reader.varint()
		default:
			err = reader.skip()
		}
		if err != nil {
			return nil, err
		}
	}
	if account.Balance == nil {
		account.Balance = uint256.NewInt(0)
	}
	return account, nil
}

// StateEntryToBytes encodes a key/value pair as a multiset element
func StateEntryToBytes(key []byte, value []byte) []byte {
	var b []byte
	b = appendBytesField(b, 1, key)
	b = appendBytesField(b, 2, value)
	return b
}

// OptionalValueToBytes encodes a state value that may be absent. It is used
// for the reverse diffs of the state store.
func OptionalValueToBytes(value []byte, found bool) []byte {
	var b []byte
	if !found {
		return appendVarintField(b, 1, 0)
	}
	b = appendVarintField(b, 1, 1)
	return appendBytesField(b, 2, value)
}

// BytesToOptionalValue decodes a value encoded by OptionalValueToBytes
func BytesToOptionalValue(optionalValueBytes []byte) (value []byte, found bool, err error) {
	reader := newMessageReader(optionalValueBytes)
	for {
		ok, err := reader.next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return value, found, nil
		}
		switch reader.field() {
		case 1:
			var present uint64
			present, err = reader.varint()
			found = present == 1
		case 2:
			value, err = reader.bytes()
		default:
			err = reader.skip()
		}
		if err != nil {
			return nil, false, err
		}
	}
}

// CheckpointToBytes encodes a checkpoint
func CheckpointToBytes(checkpoint *externalapi.Checkpoint) []byte {
	var b []byte
	b = appendHashField(b, 1, checkpoint.Hash)
	b = appendVarintField(b, 2, checkpoint.Height)
	return b
}

// BytesToCheckpoint decodes a checkpoint encoded by CheckpointToBytes
func BytesToCheckpoint(checkpointBytes []byte) (*externalapi.Checkpoint, error) {
	checkpoint := &externalapi.Checkpoint{}
	reader := newMessageReader(checkpointBytes)
	for {
		ok, err := reader.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return checkpoint, nil
		}
		switch reader.field() {
		case 1:
			checkpoint.Hash, err = reader.hash()
		case 2:
			checkpoint.Height, err = reader.varint()
		default:
			err = reader.skip()
		}
		if err != nil {
			return nil, err
		}
	}
}

// Uint64ToBytes encodes a counter value
func Uint64ToBytes(value uint64) []byte {
	return appendVarintField(nil, 1, value)
}

// BytesToUint64 decodes a counter value encoded by Uint64ToBytes
func BytesToUint64(valueBytes []byte) (uint64, error) {
	var value uint64
	reader := newMessageReader(valueBytes)
	for {
		ok, err := reader.next()
		if err != nil {
			return 0, err
		}
		if !ok {
			return value, nil
		}
		if reader.field() == 1 {
			value, err = reader.varint()
		} else {
			err = reader.skip()
		}
		if err != nil {
			return 0, err
		}
	}
}
