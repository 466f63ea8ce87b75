// Package ledger is the append-only record of committed checkpoints. It
// also keeps the local validator's safety data and the equivocation
// evidence gathered for slashing.
package ledger

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/finality/model"
	"github.com/treegraph/tgraphd/domain/finality/wire"
	"github.com/treegraph/tgraphd/infrastructure/db/database"
	"github.com/treegraph/tgraphd/infrastructure/db/ledgerdb"
)

var (
	checkpointsBucket        = []byte("checkpoints")
	checkpointByHashBucket   = []byte("checkpoint-by-hash")
	checkpointByHeightBucket = []byte("checkpoint-by-height")
	safetyBucket             = []byte("safety")
	safetyDataKey            = []byte("safety-data")
	equivocationsBucket      = []byte("equivocations")
)

// ErrNonMonotonicCheckpoint indicates an attempt to commit a checkpoint
// that is not above the latest committed one
var ErrNonMonotonicCheckpoint = errors.New("checkpoint is not above the latest committed checkpoint")

// Ledger is the checkpoint ledger
type Ledger struct {
	db *ledgerdb.LedgerDB
}

// New returns a Ledger stored in db
func New(db *ledgerdb.LedgerDB) *Ledger {
	return &Ledger{db: db}
}

func heightKey(height uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, height)
	return key
}

// Append commits the candidate certified by qc as the next checkpoint.
// Appending the latest checkpoint again returns its existing entry.
func (l *Ledger) Append(qc *model.QuorumCertificate) (*model.LedgerInfo, error) {
	var info *model.LedgerInfo
	err := l.db.Update(func(tx *ledgerdb.Tx) error {
		latest, found, err := latestInTx(tx)
		if err != nil {
			return err
		}
		if found {
			if latest.Candidate.Equal(qc.Candidate) {
				info = latest
				return nil
			}
			if qc.Candidate.Height <= latest.Candidate.Height {
				return errors.Wrapf(ErrNonMonotonicCheckpoint, "candidate %s at height %d, latest "+
					"checkpoint %s at height %d", qc.Candidate.Hash, qc.Candidate.Height,
					latest.Candidate.Hash, latest.Candidate.Height)
			}
		}

		info = &model.LedgerInfo{Candidate: qc.Candidate, Certificate: qc}
		if found {
			info.Sequence = latest.Sequence + 1
		} else {
			info.Sequence = 1
		}
		sequence, err := tx.Append(checkpointsBucket, wire.EncodeLedgerInfo(info))
		if err != nil {
			return err
		}
		if sequence != info.Sequence {
			return errors.Errorf("checkpoint log is at sequence %d, expected %d", sequence, info.Sequence)
		}
		sequenceKey := ledgerdb.SequenceKey(sequence)
		err = tx.Put(checkpointByHashBucket, qc.Candidate.Hash.ByteSlice(), sequenceKey)
		if err != nil {
			return err
		}
		return tx.Put(checkpointByHeightBucket, heightKey(qc.Candidate.Height), sequenceKey)
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func latestInTx(tx *ledgerdb.Tx) (*model.LedgerInfo, bool, error) {
	_, value, err := tx.Last(checkpointsBucket)
	if database.IsNotFoundError(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	info, err := wire.DecodeLedgerInfo(value)
	if err != nil {
		return nil, false, err
	}
	return info, true, nil
}

// Latest returns the latest committed checkpoint. found is false if no
// checkpoint was committed yet.
func (l *Ledger) Latest() (info *model.LedgerInfo, found bool, err error) {
	err = l.db.View(func(tx *ledgerdb.Tx) error {
		info, found, err = latestInTx(tx)
		return err
	})
	return info, found, err
}

func (l *Ledger) bySequenceIndex(bucket []byte, key []byte) (*model.LedgerInfo, error) {
	var info *model.LedgerInfo
	err := l.db.View(func(tx *ledgerdb.Tx) error {
		sequenceKey, err := tx.Get(bucket, key)
		if err != nil {
			return err
		}
		value, err := tx.Get(checkpointsBucket, sequenceKey)
		if err != nil {
			return err
		}
		info, err = wire.DecodeLedgerInfo(value)
		return err
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// ByHeight returns the checkpoint committed at the given pivot height, or
// database.ErrNotFound
func (l *Ledger) ByHeight(height uint64) (*model.LedgerInfo, error) {
	return l.bySequenceIndex(checkpointByHeightBucket, heightKey(height))
}

// ByHash returns the checkpoint of the given block, or database.ErrNotFound
func (l *Ledger) ByHash(blockHash *externalapi.DomainHash) (*model.LedgerInfo, error) {
	return l.bySequenceIndex(checkpointByHashBucket, blockHash.ByteSlice())
}

// All returns every committed checkpoint in commit order
func (l *Ledger) All() ([]*model.LedgerInfo, error) {
	var infos []*model.LedgerInfo
	err := l.db.View(func(tx *ledgerdb.Tx) error {
		return tx.ForEach(checkpointsBucket, func(_, value []byte) error {
			info, err := wire.DecodeLedgerInfo(value)
			if err != nil {
				return err
			}
			infos = append(infos, info)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// SafetyData returns the persisted safety data, or empty safety data if
// none was stored
func (l *Ledger) SafetyData() (*model.SafetyData, error) {
	var data *model.SafetyData
	err := l.db.View(func(tx *ledgerdb.Tx) error {
		value, err := tx.Get(safetyBucket, safetyDataKey)
		if database.IsNotFoundError(err) {
			data = &model.SafetyData{}
			return nil
		}
		if err != nil {
			return err
		}
		data, err = wire.DecodeSafetyData(value)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// StoreSafetyData persists safetyData
func (l *Ledger) StoreSafetyData(safetyData *model.SafetyData) error {
	return l.db.Update(func(tx *ledgerdb.Tx) error {
		return tx.Put(safetyBucket, safetyDataKey, wire.EncodeSafetyData(safetyData))
	})
}

// RecordEquivocation appends evidence to the equivocation log
func (l *Ledger) RecordEquivocation(evidence *model.EquivocationEvidence) error {
	return l.db.Update(func(tx *ledgerdb.Tx) error {
		_, err := tx.Append(equivocationsBucket, wire.EncodeEquivocationEvidence(evidence))
		return err
	})
}

// Equivocations returns all recorded equivocation evidence
func (l *Ledger) Equivocations() ([]*model.EquivocationEvidence, error) {
	var evidences []*model.EquivocationEvidence
	err := l.db.View(func(tx *ledgerdb.Tx) error {
		return tx.ForEach(equivocationsBucket, func(_, value []byte) error {
			evidence, err := wire.DecodeEquivocationEvidence(value)
			if err != nil {
				return err
			}
			evidences = append(evidences, evidence)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return evidences, nil
}
