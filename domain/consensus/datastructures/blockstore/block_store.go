package blockstore

import (
	"github.com/treegraph/tgraphd/domain/consensus/database"
	"github.com/treegraph/tgraphd/domain/consensus/database/binaryserialization"
	"github.com/treegraph/tgraphd/domain/consensus/database/serialization"
	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/utils/lrucache"
)

var bucket = database.MakeBucket([]byte("blocks"))
var sequenceBucket = database.MakeBucket([]byte("block-sequence"))
var countKey = database.MakeBucket(nil).Key([]byte("blocks-count"))

// blockStore represents a store of blocks. Besides the blocks themselves it
// keeps the order in which they were inserted, so that the in-memory DAG can
// be rebuilt parents-first.
type blockStore struct {
	shardID     model.StagingShardID
	cache       *lrucache.LRUCache
	countCached uint64
}

// New instantiates a new BlockStore
func New(dbContext model.DBReader, cacheSize int, preallocate bool) (model.BlockStore, error) {
	blockStore := &blockStore{
		shardID: "BlockStore",
		cache:   lrucache.New(cacheSize, preallocate),
	}

	err := blockStore.initializeCount(dbContext)
	if err != nil {
		return nil, err
	}

	return blockStore, nil
}

func (bs *blockStore) initializeCount(dbContext model.DBReader) error {
	count := uint64(0)
	hasCountBytes, err := dbContext.Has(countKey)
	if err != nil {
		return err
	}
	if hasCountBytes {
		countBytes, err := dbContext.Get(countKey)
		if err != nil {
			return err
		}
		count, err = bs.deserializeBlockCount(countBytes)
		if err != nil {
			return err
		}
	}
	bs.countCached = count
	return nil
}

// Stage stages the given block for the given blockHash
func (bs *blockStore) Stage(stagingArea *model.StagingArea, blockHash *externalapi.DomainHash, block *externalapi.DomainBlock) {
	stagingShard := bs.stagingShard(stagingArea)
	if _, ok := stagingShard.toAdd[*blockHash]; ok {
		return
	}
	stagingShard.toAdd[*blockHash] = block.Clone()
	stagingShard.addedOrder = append(stagingShard.addedOrder, blockHash)
}

func (bs *blockStore) IsStaged(stagingArea *model.StagingArea) bool {
	return bs.stagingShard(stagingArea).isStaged()
}

// Block gets the block associated with the given blockHash
func (bs *blockStore) Block(dbContext model.DBReader, stagingArea *model.StagingArea, blockHash *externalapi.DomainHash) (*externalapi.DomainBlock, error) {
	stagingShard := bs.stagingShard(stagingArea)

	return bs.block(dbContext, stagingShard, blockHash)
}

func (bs *blockStore) block(dbContext model.DBReader, stagingShard *blockStagingShard, blockHash *externalapi.DomainHash) (*externalapi.DomainBlock, error) {
	if block, ok := stagingShard.toAdd[*blockHash]; ok {
		return block.Clone(), nil
	}

	if block, ok := bs.cache.Get(blockHash); ok {
		return block.(*externalapi.DomainBlock).Clone(), nil
	}

	blockBytes, err := dbContext.Get(bs.hashAsKey(blockHash))
	if err != nil {
		return nil, err
	}

	block, err := serialization.BytesToDomainBlock(blockBytes)
	if err != nil {
		return nil, err
	}
	bs.cache.Add(blockHash, block)
	return block.Clone(), nil
}

// HasBlock returns whether a block with a given hash exists in the store.
func (bs *blockStore) HasBlock(dbContext model.DBReader, stagingArea *model.StagingArea, blockHash *externalapi.DomainHash) (bool, error) {
	stagingShard := bs.stagingShard(stagingArea)

	if _, ok := stagingShard.toAdd[*blockHash]; ok {
		return true, nil
	}

	if bs.cache.Has(blockHash) {
		return true, nil
	}

	return dbContext.Has(bs.hashAsKey(blockHash))
}

// Blocks gets the blocks associated with the given blockHashes
func (bs *blockStore) Blocks(dbContext model.DBReader, stagingArea *model.StagingArea, blockHashes []*externalapi.DomainHash) ([]*externalapi.DomainBlock, error) {
	stagingShard := bs.stagingShard(stagingArea)

	blocks := make([]*externalapi.DomainBlock, len(blockHashes))
	for i, hash := range blockHashes {
		var err error
		blocks[i], err = bs.block(dbContext, stagingShard, hash)
		if err != nil {
			return nil, err
		}
	}
	return blocks, nil
}

// Count returns the number of blocks in the store, staged ones included
func (bs *blockStore) Count(stagingArea *model.StagingArea) uint64 {
	stagingShard := bs.stagingShard(stagingArea)
	return bs.count(stagingShard)
}

func (bs *blockStore) count(stagingShard *blockStagingShard) uint64 {
	return bs.countCached + uint64(len(stagingShard.toAdd))
}

// BlockHashesInInsertionOrder returns the hashes of all committed blocks in
// the order they were inserted
func (bs *blockStore) BlockHashesInInsertionOrder(dbContext model.DBReader) ([]*externalapi.DomainHash, error) {
	cursor, err := dbContext.Cursor(sequenceBucket)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	blockHashes := make([]*externalapi.DomainHash, 0, bs.countCached)
	for ok := cursor.First(); ok; ok = cursor.Next() {
		hashBytes, err := cursor.Value()
		if err != nil {
			return nil, err
		}
		blockHash, err := binaryserialization.DeserializeHash(hashBytes)
		if err != nil {
			return nil, err
		}
		blockHashes = append(blockHashes, blockHash)
	}
	return blockHashes, nil
}

func (bs *blockStore) serializeBlock(block *externalapi.DomainBlock) []byte {
	return serialization.DomainBlockToBytes(block)
}

func (bs *blockStore) hashAsKey(hash *externalapi.DomainHash) model.DBKey {
	return bucket.Key(hash.ByteSlice())
}

func (bs *blockStore) deserializeBlockCount(countBytes []byte) (uint64, error) {
	return serialization.BytesToUint64(countBytes)
}

func (bs *blockStore) serializeBlockCount(count uint64) []byte {
	return serialization.Uint64ToBytes(count)
}
