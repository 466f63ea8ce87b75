package consensushashing

import (
	"encoding/binary"

	"github.com/holiman/uint256"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/utils/hashes"
)

// elementWriter writes fixed-layout fields into a hash writer. Variable
// length fields are length prefixed so that no two encodings collide.
type elementWriter struct {
	hashes.HashWriter
}

func (w elementWriter) writeUint64(value uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	w.InfallibleWrite(buf[:])
}

func (w elementWriter) writeUint32(value uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	w.InfallibleWrite(buf[:])
}

func (w elementWriter) writeBytes(value []byte) {
	w.writeUint64(uint64(len(value)))
	w.InfallibleWrite(value)
}

// writeHash writes a presence byte followed by the hash, so that a nil hash
// and the zero hash differ
func (w elementWriter) writeHash(hash *externalapi.DomainHash) {
	if hash == nil {
		w.InfallibleWrite([]byte{0})
		return
	}
	w.InfallibleWrite([]byte{1})
	w.InfallibleWrite(hash.ByteSlice())
}

func (w elementWriter) writeUint256(value *uint256.Int) {
	if value == nil {
		value = uint256.NewInt(0)
	}
	bytes32 := value.Bytes32()
	w.InfallibleWrite(bytes32[:])
}
