package serialization

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

// messageReader walks the fields of a protobuf-encoded message
type messageReader struct {
	b   []byte
	num protowire.Number
	typ protowire.Type
}

func newMessageReader(b []byte) *messageReader {
	return &messageReader{b: b}
}

// next advances to the next field. It returns false once the message is
// exhausted.
func (r *messageReader) next() (bool, error) {
	if len(r.b) == 0 {
		return false, nil
	}
	num, typ, n := protowire.ConsumeTag(r.b)
	if n < 0 {
		return false, errors.WithStack(protowire.ParseError(n))
	}
	r.b = r.b[n:]
	r.num, r.typ = num, typ
	return true, nil
}

func (r *messageReader) field() protowire.Number {
	return r.num
}

func (r *messageReader) varint() (uint64, error) {
	if r.typ != protowire.VarintType {
		return 0, errors.Errorf("field %d: expected varint, got wire type %d", r.num, r.typ)
	}
	value, n := protowire.ConsumeVarint(r.b)
	if n < 0 {
		return 0, errors.WithStack(protowire.ParseError(n))
	}
	r.b = r.b[n:]
	return value, nil
}

func (r *messageReader) bytes() ([]byte, error) {
	if r.typ != protowire.BytesType {
		return nil, errors.Errorf("field %d: expected bytes, got wire type %d", r.num, r.typ)
	}
	value, n := protowire.ConsumeBytes(r.b)
	if n < 0 {
		return nil, errors.WithStack(protowire.ParseError(n))
	}
	r.b = r.b[n:]
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	return valueCopy, nil
}

func (r *messageReader) hash() (*externalapi.DomainHash, error) {
	hashBytes, err := r.bytes()
	if err != nil {
		return nil, err
	}
	return externalapi.NewDomainHashFromByteSlice(hashBytes)
}

func (r *messageReader) uint256() (*uint256.Int, error) {
	valueBytes, err := r.bytes()
	if err != nil {
		return nil, err
	}
	if len(valueBytes) > 32 {
		return nil, errors.Errorf("field %d: uint256 is %d bytes long", r.num, len(valueBytes))
	}
	return new(uint256.Int).SetBytes(valueBytes), nil
}

func (r *messageReader) address() (externalapi.DomainAddress, error) {
	var address externalapi.DomainAddress
	addressBytes, err := r.bytes()
	if err != nil {
		return address, err
	}
	if len(addressBytes) != externalapi.DomainAddressSize {
		return address, errors.Errorf("field %d: address is %d bytes long", r.num, len(addressBytes))
	}
	copy(address[:], addressBytes)
	return address, nil
}

// skip discards the value of an unknown field
func (r *messageReader) skip() error {
	n := protowire.ConsumeFieldValue(r.num, r.typ, r.b)
	if n < 0 {
		return errors.WithStack(protowire.ParseError(n))
	}
	r.b = r.b[n:]
	return nil
}

func appendVarintField(b []byte, num protowire.Number, value uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, value)
}

func appendBytesField(b []byte, num protowire.Number, value []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, value)
}

func appendHashField(b []byte, num protowire.Number, hash *externalapi.DomainHash) []byte {
	if hash == nil {
		return b
	}
	return appendBytesField(b, num, hash.ByteSlice())
}

func appendUint256Field(b []byte, num protowire.Number, value *uint256.Int) []byte {
	if value == nil {
		return b
	}
	return appendBytesField(b, num, value.Bytes())
}
