package consensushashing

import (
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/utils/hashes"
)

// BlockHash returns the given block's hash
func BlockHash(block *externalapi.DomainBlock) *externalapi.DomainHash {
	return HeaderHash(block.Header)
}

// HeaderHash returns the given header's hash
func HeaderHash(header *externalapi.DomainBlockHeader) *externalapi.DomainHash {
	writer := elementWriter{hashes.NewBlockHashWriter()}
	writer.writeHash(header.ParentHash)
	writer.writeUint64(uint64(len(header.RefereeHashes)))
	for _, refereeHash := range header.RefereeHashes {
		writer.writeHash(refereeHash)
	}
	writer.writeUint64(header.Height)
	writer.writeUint64(header.Difficulty)
	writer.writeUint64(uint64(header.TimeInMilliseconds))
	writer.writeUint64(header.Nonce)
	writer.InfallibleWrite(header.Miner[:])
	writer.writeHash(header.TransactionsRoot)
	writer.writeHash(header.DeferredStateRoot)
	return writer.Finalize()
}
