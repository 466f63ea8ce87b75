package ledgerdb

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/treegraph/tgraphd/infrastructure/db/database"
)

func prepareLedgerForTest(t *testing.T, testName string) (*LedgerDB, func()) {
	dir, err := os.MkdirTemp("", testName)
	if err != nil {
		t.Fatalf("%s: MkdirTemp unexpectedly failed: %s", testName, err)
	}
	ledger, err := Open(filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatalf("%s: Open unexpectedly failed: %s", testName, err)
	}
	return ledger, func() {
		err := ledger.Close()
		if err != nil {
			t.Fatalf("%s: Close unexpectedly failed: %s", testName, err)
		}
		_ = os.RemoveAll(dir)
	}
}

func TestAppendAndLast(t *testing.T) {
	ledger, teardown := prepareLedgerForTest(t, "TestAppendAndLast")
	defer teardown()

	logName := []byte("checkpoints")
	err := ledger.View(func(tx *Tx) error {
		_, _, err := tx.Last(logName)
		return err
	})
	if !database.IsNotFoundError(err) {
		t.Fatalf("TestAppendAndLast: expected ErrNotFound on an empty log, got: %+v", err)
	}

	for i, entry := range [][]byte{[]byte("first"), []byte("second"), []byte("third")} {
		var sequence uint64
		err := ledger.Update(func(tx *Tx) error {
			var err error
			sequence, err = tx.Append(logName, entry)
			return err
		})
		if err != nil {
			t.Fatalf("TestAppendAndLast: Append unexpectedly failed: %+v", err)
		}
		if sequence != uint64(i+1) {
			t.Fatalf("TestAppendAndLast: expected sequence %d, got %d", i+1, sequence)
		}
	}

	err = ledger.View(func(tx *Tx) error {
		sequence, value, err := tx.Last(logName)
		if err != nil {
			return err
		}
		if sequence != 3 || !bytes.Equal(value, []byte("third")) {
			t.Fatalf("TestAppendAndLast: unexpected last entry %d: %s", sequence, value)
		}
		first, err := tx.Get(logName, SequenceKey(1))
		if err != nil {
			return err
		}
		if !bytes.Equal(first, []byte("first")) {
			t.Fatalf("TestAppendAndLast: unexpected first entry: %s", first)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("TestAppendAndLast: View unexpectedly failed: %+v", err)
	}
}

func TestUpdateIsAtomic(t *testing.T) {
	ledger, teardown := prepareLedgerForTest(t, "TestUpdateIsAtomic")
	defer teardown()

	logName := []byte("checkpoints")
	indexName := []byte("checkpoint-index")
	err := ledger.Update(func(tx *Tx) error {
		_, err := tx.Append(logName, []byte("entry"))
		if err != nil {
			return err
		}
		err = tx.Put(indexName, []byte("hash"), SequenceKey(1))
		if err != nil {
			return err
		}
		return os.ErrInvalid
	})
	if err == nil {
		t.Fatalf("TestUpdateIsAtomic: expected Update to return the callback error")
	}

	err = ledger.View(func(tx *Tx) error {
		_, err := tx.Get(indexName, []byte("hash"))
		return err
	})
	if !database.IsNotFoundError(err) {
		t.Fatalf("TestUpdateIsAtomic: index entry of a failed update is visible: %+v", err)
	}
}
