package serialization

import (
	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

// EpochToBytes encodes a linearized epoch
func EpochToBytes(epoch *model.Epoch) []byte {
	var b []byte
	b = appendVarintField(b, 1, epoch.Number)
	b = appendHashField(b, 2, epoch.PivotHash)
	for _, blockHash := range epoch.BlockHashes {
		b = appendHashField(b, 3, blockHash)
	}
	return b
}

// BytesToEpoch decodes an epoch encoded by EpochToBytes
func BytesToEpoch(epochBytes []byte) (*model.Epoch, error) {
	epoch := &model.Epoch{}
	reader := newMessageReader(epochBytes)
	for {
		ok, err := reader.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return epoch, nil
		}
		switch reader.field() {
		case 1:
			epoch.Number, err = reader.varint()
		case 2:
			epoch.PivotHash, err = reader.hash()
		case 3:
			var blockHash *externalapi.DomainHash
			blockHash, err = reader.hash()
			epoch.BlockHashes = append(epoch.BlockHashes, blockHash)
		default:
			err = reader.skip()
		}
		if err != nil {
			return nil, err
		}
	}
}
