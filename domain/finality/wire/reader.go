package wire

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/finality/model"
)

type fieldReader struct {
	b   []byte
	num protowire.Number
	typ protowire.Type
}

func (r *fieldReader) next() (bool, error) {
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

func (r *fieldReader) varint() (uint64, error) {
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

func (r *fieldReader) bytes() ([]byte, error) {
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

func (r *fieldReader) hash() (*externalapi.DomainHash, error) {
	hashBytes, err := r.bytes()
	if err != nil {
		return nil, err
	}
	return externalapi.NewDomainHashFromByteSlice(hashBytes)
}

func (r *fieldReader) publicKey() (model.PublicKey, error) {
	var publicKey model.PublicKey
	keyBytes, err := r.bytes()
	if err != nil {
		return publicKey, err
	}
	if len(keyBytes) != model.PublicKeySize {
		return publicKey, errors.Errorf("field %d: public key is %d bytes long", r.num, len(keyBytes))
	}
	copy(publicKey[:], keyBytes)
	return publicKey, nil
}

func (r *fieldReader) skip() error {
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
