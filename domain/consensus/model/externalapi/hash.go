package externalapi

import (
	"bytes"
	"encoding/hex"

	"github.com/pkg/errors"
)

// DomainHashSize is the size of a block, transaction or state root hash
const DomainHashSize = 32

// DomainHash is an immutable 32 byte hash. Values are shared by pointer
// across stores so they must never be mutated in place.
type DomainHash struct {
	hashArray [DomainHashSize]byte
}

// NewDomainHashFromByteArray wraps a copy of hashBytes
func NewDomainHashFromByteArray(hashBytes *[DomainHashSize]byte) *DomainHash {
	return &DomainHash{hashArray: *hashBytes}
}

// NewDomainHashFromByteSlice copies hashBytes, which must be exactly
// DomainHashSize long
func NewDomainHashFromByteSlice(hashBytes []byte) (*DomainHash, error) {
	if len(hashBytes) != DomainHashSize {
		return nil, errors.Errorf("a hash is %d bytes long, got %d", DomainHashSize, len(hashBytes))
	}
	hash := &DomainHash{}
	copy(hash.hashArray[:], hashBytes)
	return hash, nil
}

// NewDomainHashFromString parses the hex form returned by String
func NewDomainHashFromString(hashString string) (*DomainHash, error) {
	hashBytes, err := hex.DecodeString(hashString)
	if err != nil {
		return nil, errors.Wrapf(err, "malformed hash %q", hashString)
	}
	return NewDomainHashFromByteSlice(hashBytes)
}

func (hash DomainHash) String() string {
	return hex.EncodeToString(hash.hashArray[:])
}

// ByteArray returns a copy of the hash bytes
func (hash *DomainHash) ByteArray() *[DomainHashSize]byte {
	hashArray := hash.hashArray
	return &hashArray
}

// ByteSlice returns a copy of the hash bytes
func (hash *DomainHash) ByteSlice() []byte {
	return hash.ByteArray()[:]
}

// Equal treats two nil hashes as equal
func (hash *DomainHash) Equal(other *DomainHash) bool {
	if hash == nil || other == nil {
		return hash == other
	}
	return hash.hashArray == other.hashArray
}

// Less orders hashes by their bytes. Pivot selection and epoch ordering
// break ties with it.
func (hash *DomainHash) Less(other *DomainHash) bool {
	return bytes.Compare(hash.hashArray[:], other.hashArray[:]) < 0
}

// CloneHashes copies the slice. The hashes themselves are shared.
func CloneHashes(hashes []*DomainHash) []*DomainHash {
	clone := make([]*DomainHash, len(hashes))
	copy(clone, hashes)
	return clone
}

// HashesEqual compares two hash slices element by element
func HashesEqual(a, b []*DomainHash) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
