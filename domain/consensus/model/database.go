package model

// DBKey addresses a single record inside a DBBucket
type DBKey interface {
	Bytes() []byte
	Bucket() DBBucket
	Suffix() []byte
}

// DBBucket is a key prefix grouping the records of one store, such as
// blocks, epochs or receipts
type DBBucket interface {
	Bucket(bucketBytes []byte) DBBucket
	Key(suffix []byte) DBKey
	Path() []byte
}

// DBCursor walks the records of a bucket in key order. Epoch and state
// stores rely on that order to rebuild themselves on startup.
type DBCursor interface {
	// First and Next position the cursor and report whether a record is
	// available. Both panic on a closed cursor.
	First() bool
	Next() bool

	// Seek positions the cursor on key, returning ErrNotFound when the
	// bucket has no such record.
	Seek(key DBKey) error

	// Key and Value return ErrNotFound once the cursor is exhausted.
	Key() (DBKey, error)
	Value() ([]byte, error)

	Close() error
}

// DBReader is the read side shared by the database and its transactions
type DBReader interface {
	// Get returns ErrNotFound for a missing key
	Get(key DBKey) ([]byte, error)
	Has(key DBKey) (bool, error)
	Cursor(bucket DBBucket) (DBCursor, error)
}

// DBWriter adds writes to DBReader. Put overwrites and Delete of a missing
// key is not an error.
type DBWriter interface {
	DBReader
	Put(key DBKey, value []byte) error
	Delete(key DBKey) error
}

// DBTransaction groups the writes of one staging area commit so that a
// block, its epoch and its execution results land together or not at all.
type DBTransaction interface {
	DBWriter
	Commit() error
	Rollback() error

	// RollbackUnlessClosed is meant to be deferred right after Begin
	RollbackUnlessClosed() error
}

// DBManager is the consensus view of the underlying database
type DBManager interface {
	DBWriter
	Begin() (DBTransaction, error)
}
