package binaryserialization

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

// byteOrder keeps numeric keys sorted the same way as their values
var byteOrder = binary.BigEndian

// SerializeUint64 serializes an epoch number, state version or sequence
// number into a database key suffix
func SerializeUint64(value uint64) []byte {
	var keyBytes [8]byte
	byteOrder.PutUint64(keyBytes[:], value)
	return keyBytes[:]
}

// DeserializeUint64 deserializes a key suffix produced by SerializeUint64
func DeserializeUint64(valueBytes []byte) (uint64, error) {
	if len(valueBytes) != 8 {
		return 0, errors.Errorf("expected 8 bytes but got %d", len(valueBytes))
	}
	return byteOrder.Uint64(valueBytes), nil
}

// SerializeHash returns the key suffix of a block hash
func SerializeHash(hash *externalapi.DomainHash) []byte {
	return hash.ByteSlice()
}

// DeserializeHash parses a key suffix produced by SerializeHash
func DeserializeHash(hashBytes []byte) (*externalapi.DomainHash, error) {
	return externalapi.NewDomainHashFromByteSlice(hashBytes)
}
