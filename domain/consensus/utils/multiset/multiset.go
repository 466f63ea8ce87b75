// Package multiset commits to an unordered collection of state entries with
// MuHash, so a state root can be updated per write instead of rehashing the
// whole state.
package multiset

import (
	"github.com/kaspanet/go-muhash"
	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

// SerializedSize is the length of the bytes returned by Serialize
const SerializedSize = len(muhash.SerializedMuHash{})

type muHashMultiset struct {
	muHash *muhash.MuHash
}

// New returns an empty multiset
func New() model.Multiset {
	return &muHashMultiset{muHash: muhash.NewMuHash()}
}

// FromBytes restores a multiset stored with Serialize
func FromBytes(multisetBytes []byte) (model.Multiset, error) {
	if len(multisetBytes) != SerializedSize {
		return nil, errors.Errorf("a serialized multiset is %d bytes long, got %d",
			SerializedSize, len(multisetBytes))
	}
	var serialized muhash.SerializedMuHash
	copy(serialized[:], multisetBytes)
	muHash, err := muhash.DeserializeMuHash(&serialized)
	if err != nil {
		return nil, errors.Wrap(err, "malformed multiset")
	}
	return &muHashMultiset{muHash: muHash}, nil
}

func (m *muHashMultiset) Add(entry []byte) {
	m.muHash.Add(entry)
}

func (m *muHashMultiset) Remove(entry []byte) {
	m.muHash.Remove(entry)
}

func (m *muHashMultiset) Hash() *externalapi.DomainHash {
	finalized := m.muHash.Finalize()
	return externalapi.NewDomainHashFromByteArray(finalized.AsArray())
}

func (m *muHashMultiset) Serialize() []byte {
	serialized := m.muHash.Serialize()
	return serialized[:]
}

func (m *muHashMultiset) Clone() model.Multiset {
	return &muHashMultiset{muHash: m.muHash.Clone()}
}
