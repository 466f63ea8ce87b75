package ledgerdb

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/treegraph/tgraphd/infrastructure/db/database"
)

const openTimeout = time.Second

// LedgerDB is an append-only record store backed by bbolt. Logs are kept in
// buckets keyed by a big-endian sequence number starting at 1. Side tables
// (indexes, small mutable records) live in regular buckets.
type LedgerDB struct {
	db *bolt.DB
}

// Open opens (creating if needed) the ledger database at the given path.
func Open(path string) (*LedgerDB, error) {
	err := os.MkdirAll(filepath.Dir(path), 0700)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, errors.Wrapf(err, "failed opening ledger database %s", path)
	}
	log.Debugf("Opened ledger database at %s", path)
	return &LedgerDB{db: db}, nil
}

// Close closes the ledger database.
func (l *LedgerDB) Close() error {
	return errors.WithStack(l.db.Close())
}

// Update runs fn inside a read-write transaction. All writes made by fn are
// committed atomically, or discarded if fn returns an error.
func (l *LedgerDB) Update(fn func(tx *Tx) error) error {
	return l.db.Update(func(boltTx *bolt.Tx) error {
		return fn(&Tx{boltTx: boltTx})
	})
}

// View runs fn inside a read-only transaction.
func (l *LedgerDB) View(fn func(tx *Tx) error) error {
	return l.db.View(func(boltTx *bolt.Tx) error {
		return fn(&Tx{boltTx: boltTx})
	})
}

// Tx is a ledger database transaction
type Tx struct {
	boltTx *bolt.Tx
}

// Append appends value to the log kept in the given bucket and returns its
// sequence number.
func (tx *Tx) Append(bucketName []byte, value []byte) (uint64, error) {
	bucket, err := tx.boltTx.CreateBucketIfNotExists(bucketName)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	sequence, err := bucket.NextSequence()
	if err != nil {
		return 0, errors.WithStack(err)
	}
	key := SequenceKey(sequence)
	if bucket.Get(key) != nil {
		return 0, errors.Errorf("log %s already has an entry at sequence %d", bucketName, sequence)
	}
	err = bucket.Put(key, value)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return sequence, nil
}

// Put sets key to value in the given bucket.
func (tx *Tx) Put(bucketName []byte, key []byte, value []byte) error {
	bucket, err := tx.boltTx.CreateBucketIfNotExists(bucketName)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(bucket.Put(key, value))
}

// Get returns a copy of the value stored under key in the given bucket, or
// database.ErrNotFound.
func (tx *Tx) Get(bucketName []byte, key []byte) ([]byte, error) {
	bucket := tx.boltTx.Bucket(bucketName)
	if bucket == nil {
		return nil, errors.Wrapf(database.ErrNotFound, "bucket %s not found", bucketName)
	}
	value := bucket.Get(key)
	if value == nil {
		return nil, errors.Wrapf(database.ErrNotFound, "key %x not found in %s", key, bucketName)
	}
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	return valueCopy, nil
}

// Last returns the sequence number and a copy of the last entry of the log
// kept in the given bucket, or database.ErrNotFound if the log is empty.
func (tx *Tx) Last(bucketName []byte) (uint64, []byte, error) {
	bucket := tx.boltTx.Bucket(bucketName)
	if bucket == nil {
		return 0, nil, errors.Wrapf(database.ErrNotFound, "log %s is empty", bucketName)
	}
	key, value := bucket.Cursor().Last()
	if key == nil {
		return 0, nil, errors.Wrapf(database.ErrNotFound, "log %s is empty", bucketName)
	}
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	return binary.BigEndian.Uint64(key), valueCopy, nil
}

// ForEach calls fn for every entry of the given bucket in key order. The
// slices passed to fn are only valid for the duration of the call.
func (tx *Tx) ForEach(bucketName []byte, fn func(key, value []byte) error) error {
	bucket := tx.boltTx.Bucket(bucketName)
	if bucket == nil {
		return nil
	}
	return bucket.ForEach(fn)
}

// SequenceKey returns the key under which the log entry with the given
// sequence number is stored.
func SequenceKey(sequence uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, sequence)
	return key
}
