package statestore

import (
	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/consensus/database"
	"github.com/treegraph/tgraphd/domain/consensus/database/binaryserialization"
	"github.com/treegraph/tgraphd/domain/consensus/database/serialization"
	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/utils/multiset"
)

var currentBucket = database.MakeBucket([]byte("state-current"))
var diffBucket = database.MakeBucket([]byte("state-diff"))
var multisetBucket = database.MakeBucket([]byte("state-multiset"))
var tipVersionKey = database.MakeBucket(nil).Key([]byte("state-tip-version"))
var lowestVersionKey = database.MakeBucket(nil).Key([]byte("state-lowest-version"))

// stateStore keeps the latest state materialized under currentBucket. Each
// version v > 0 has a reverse diff holding, for every key v changed, the value
// the key had at v-1. Each version also has the serialized multiset of all of
// its entries, from which its commitment is derived.
type stateStore struct {
	shardID model.StagingShardID
}

// New instantiates a new StateStore
func New() model.StateStore {
	return &stateStore{shardID: "StateStore"}
}

func (ss *stateStore) IsStaged(stagingArea *model.StagingArea) bool {
	return ss.stagingShard(stagingArea).isStaged()
}

// StageVersion stages version as changeSet applied on top of the tip
// version, and returns the commitment of the new version
func (ss *stateStore) StageVersion(dbContext model.DBReader, stagingArea *model.StagingArea, version uint64,
	changeSet *model.StateChangeSet) (*externalapi.DomainHash, error) {

	stagingShard := ss.stagingShard(stagingArea)
	if stagingShard.versionChanged {
		return nil, errors.Errorf("the state version was already changed in this staging area")
	}

	tip, exists, err := ss.TipVersion(dbContext)
	if err != nil {
		return nil, err
	}
	var stateMultiset model.Multiset
	if exists {
		if version != tip+1 {
			return nil, errors.Errorf("cannot stage state version %d on top of tip version %d", version, tip)
		}
		stateMultiset, err = ss.multiset(dbContext, tip)
		if err != nil {
			return nil, err
		}
	} else {
		if version != 0 {
			return nil, errors.Errorf("the first state version must be 0, got %d", version)
		}
		stateMultiset = multiset.New()
	}

	for _, key := range changeSet.SortedKeys() {
		newValue, isDeleted, _ := changeSet.Get(key)

		previousValue, found, err := ss.currentValue(dbContext, key)
		if err != nil {
			return nil, err
		}
		stagingShard.put(versionDiffBucket(version).Key(key), serialization.OptionalValueToBytes(previousValue, found))
		if found {
			stateMultiset.Remove(serialization.StateEntryToBytes(key, previousValue))
		}

		if isDeleted {
			stagingShard.delete(currentBucket.Key(key))
			continue
		}
		stateMultiset.Add(serialization.StateEntryToBytes(key, newValue))
		stagingShard.put(currentBucket.Key(key), newValue)
	}

	stagingShard.put(versionAsKey(multisetBucket, version), stateMultiset.Serialize())
	stagingShard.put(tipVersionKey, serialization.Uint64ToBytes(version))
	if !exists {
		stagingShard.put(lowestVersionKey, serialization.Uint64ToBytes(version))
	}
	stagingShard.versionChanged = true

	return stateMultiset.Hash(), nil
}

// StageRollback stages reverting the state to toVersion. Rolling back to the
// tip version or above it does nothing.
func (ss *stateStore) StageRollback(dbContext model.DBReader, stagingArea *model.StagingArea, toVersion uint64) error {
	stagingShard := ss.stagingShard(stagingArea)
	if stagingShard.versionChanged {
		return errors.Errorf("the state version was already changed in this staging area")
	}

	tip, exists, err := ss.TipVersion(dbContext)
	if err != nil {
		return err
	}
	if !exists || toVersion >= tip {
		return nil
	}
	lowest, err := ss.LowestVersion(dbContext)
	if err != nil {
		return err
	}
	if toVersion < lowest {
		return errors.Errorf("cannot roll back to version %d: versions below %d are pruned", toVersion, lowest)
	}

	type restoredValue struct {
		value []byte
		found bool
	}
	restored := make(map[string]restoredValue)
	var restoredOrder []string
	for version := tip; version > toVersion; version-- {
		err := ss.forEachDiffEntry(dbContext, version, func(key []byte, valueBytes []byte) error {
			value, found, err := serialization.BytesToOptionalValue(valueBytes)
			if err != nil {
				return err
			}
			if _, ok := restored[string(key)]; !ok {
				restoredOrder = append(restoredOrder, string(key))
			}
			restored[string(key)] = restoredValue{value: value, found: found}
			stagingShard.delete(versionDiffBucket(version).Key(key))
			return nil
		})
		if err != nil {
			return err
		}
		stagingShard.delete(versionAsKey(multisetBucket, version))
	}

	for _, key := range restoredOrder {
		restoredValue := restored[key]
		if restoredValue.found {
			stagingShard.put(currentBucket.Key([]byte(key)), restoredValue.value)
		} else {
			stagingShard.delete(currentBucket.Key([]byte(key)))
		}
	}
	stagingShard.put(tipVersionKey, serialization.Uint64ToBytes(toVersion))
	stagingShard.versionChanged = true

	log.Debugf("Staged state rollback from version %d to %d (%d keys restored)", tip, toVersion, len(restoredOrder))
	return nil
}

// StagePrune stages discarding everything needed only to read versions below
// belowVersion
func (ss *stateStore) StagePrune(dbContext model.DBReader, stagingArea *model.StagingArea, belowVersion uint64) error {
	stagingShard := ss.stagingShard(stagingArea)

	tip, exists, err := ss.TipVersion(dbContext)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if belowVersion > tip {
		belowVersion = tip
	}
	lowest, err := ss.LowestVersion(dbContext)
	if err != nil {
		return err
	}
	if belowVersion <= lowest {
		return nil
	}

	for version := lowest + 1; version <= belowVersion; version++ {
		err := ss.forEachDiffEntry(dbContext, version, func(key []byte, _ []byte) error {
			stagingShard.delete(versionDiffBucket(version).Key(key))
			return nil
		})
		if err != nil {
			return err
		}
	}
	for version := lowest; version < belowVersion; version++ {
		stagingShard.delete(versionAsKey(multisetBucket, version))
	}
	stagingShard.put(lowestVersionKey, serialization.Uint64ToBytes(belowVersion))

	log.Debugf("Staged pruning of state versions %d to %d", lowest, belowVersion-1)
	return nil
}

// Get returns the value of key at the given version
func (ss *stateStore) Get(dbContext model.DBReader, version uint64, key []byte) ([]byte, bool, error) {
	tip, exists, err := ss.TipVersion(dbContext)
	if err != nil {
		return nil, false, err
	}
	if !exists || version > tip {
		return nil, false, errors.Wrapf(database.ErrNotFound, "state version %d does not exist", version)
	}
	lowest, err := ss.LowestVersion(dbContext)
	if err != nil {
		return nil, false, err
	}
	if version < lowest {
		return nil, false, errors.Wrapf(database.ErrNotFound, "state version %d is pruned", version)
	}

	value, found, err := ss.currentValue(dbContext, key)
	if err != nil {
		return nil, false, err
	}
	for diffVersion := tip; diffVersion > version; diffVersion-- {
		diffBytes, err := dbContext.Get(versionDiffBucket(diffVersion).Key(key))
		if database.IsNotFoundError(err) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		value, found, err = serialization.BytesToOptionalValue(diffBytes)
		if err != nil {
			return nil, false, err
		}
	}
	return value, found, nil
}

// TipVersion returns the latest committed version
func (ss *stateStore) TipVersion(dbContext model.DBReader) (uint64, bool, error) {
	tipBytes, err := dbContext.Get(tipVersionKey)
	if database.IsNotFoundError(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	tip, err := serialization.BytesToUint64(tipBytes)
	if err != nil {
		return 0, false, err
	}
	return tip, true, nil
}

// LowestVersion returns the lowest version that can still be read
func (ss *stateStore) LowestVersion(dbContext model.DBReader) (uint64, error) {
	lowestBytes, err := dbContext.Get(lowestVersionKey)
	if err != nil {
		return 0, err
	}
	return serialization.BytesToUint64(lowestBytes)
}

// Commitment returns the commitment of the given version
func (ss *stateStore) Commitment(dbContext model.DBReader, version uint64) (*externalapi.DomainHash, error) {
	stateMultiset, err := ss.multiset(dbContext, version)
	if err != nil {
		return nil, err
	}
	return stateMultiset.Hash(), nil
}

func (ss *stateStore) multiset(dbContext model.DBReader, version uint64) (model.Multiset, error) {
	multisetBytes, err := dbContext.Get(versionAsKey(multisetBucket, version))
	if err != nil {
		return nil, err
	}
	return multiset.FromBytes(multisetBytes)
}

func (ss *stateStore) currentValue(dbContext model.DBReader, key []byte) ([]byte, bool, error) {
	value, err := dbContext.Get(currentBucket.Key(key))
	if database.IsNotFoundError(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (ss *stateStore) forEachDiffEntry(dbContext model.DBReader, version uint64,
	fn func(key []byte, valueBytes []byte) error) error {

	cursor, err := dbContext.Cursor(versionDiffBucket(version))
	if err != nil {
		return err
	}
	defer cursor.Close()

	for ok := cursor.First(); ok; ok = cursor.Next() {
		dbKey, err := cursor.Key()
		if err != nil {
			return err
		}
		valueBytes, err := cursor.Value()
		if err != nil {
			return err
		}
		key := make([]byte, len(dbKey.Suffix()))
		copy(key, dbKey.Suffix())
		valueCopy := make([]byte, len(valueBytes))
		copy(valueCopy, valueBytes)

		err = fn(key, valueCopy)
		if err != nil {
			return err
		}
	}
	return nil
}

func versionDiffBucket(version uint64) model.DBBucket {
	return diffBucket.Bucket(binaryserialization.SerializeUint64(version))
}

func versionAsKey(bucket model.DBBucket, version uint64) model.DBKey {
	return bucket.Key(binaryserialization.SerializeUint64(version))
}
