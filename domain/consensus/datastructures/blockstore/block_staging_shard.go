package blockstore

import (
	"github.com/treegraph/tgraphd/domain/consensus/database/binaryserialization"
	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

type blockStagingShard struct {
	store      *blockStore
	toAdd      map[externalapi.DomainHash]*externalapi.DomainBlock
	addedOrder []*externalapi.DomainHash
}

func (bs *blockStore) stagingShard(stagingArea *model.StagingArea) *blockStagingShard {
	return stagingArea.GetOrCreateShard(bs.shardID, func() model.StagingShard {
		return &blockStagingShard{
			store: bs,
			toAdd: make(map[externalapi.DomainHash]*externalapi.DomainBlock),
		}
	}).(*blockStagingShard)
}

func (bss *blockStagingShard) Commit(dbTx model.DBTransaction) error {
	for i, hash := range bss.addedOrder {
		block := bss.toAdd[*hash]
		err := dbTx.Put(bss.store.hashAsKey(hash), bss.store.serializeBlock(block))
		if err != nil {
			return err
		}

		sequence := bss.store.countCached + uint64(i)
		err = dbTx.Put(sequenceBucket.Key(binaryserialization.SerializeUint64(sequence)),
			binaryserialization.SerializeHash(hash))
		if err != nil {
			return err
		}
	}

	return dbTx.Put(countKey, bss.store.serializeBlockCount(bss.store.count(bss)))
}

// PostCommit publishes the committed blocks to the cache and the count
func (bss *blockStagingShard) PostCommit() {
	for _, hash := range bss.addedOrder {
		bss.store.cache.Add(hash, bss.toAdd[*hash])
	}
	bss.store.countCached = bss.store.count(bss)
}

func (bss *blockStagingShard) isStaged() bool {
	return len(bss.toAdd) != 0
}
