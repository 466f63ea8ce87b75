package blocklogger

import (
	"testing"
	"time"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/infrastructure/logger"
)

func TestLogBlockRateLimit(t *testing.T) {
	blockLogger := New(logger.RegisterSubSystem("BDAG"))
	current := time.Unix(1000, 0)
	blockLogger.lastBlockLogTime = current
	blockLogger.now = func() time.Time { return current }

	block := &externalapi.DomainBlock{
		Header:       &externalapi.DomainBlockHeader{TimeInMilliseconds: 1},
		Transactions: []*externalapi.DomainTransaction{{}, {}},
	}

	if blockLogger.LogBlock(block, 1) {
		t.Fatalf("TestLogBlockRateLimit: a block logged right away")
	}
	current = current.Add(logInterval)
	if !blockLogger.LogBlock(block, 2) {
		t.Fatalf("TestLogBlockRateLimit: no log after the interval elapsed")
	}
	if blockLogger.receivedBlocks != 0 || blockLogger.receivedTxs != 0 {
		t.Fatalf("TestLogBlockRateLimit: counters were not reset")
	}
	if blockLogger.LogBlock(block, 3) {
		t.Fatalf("TestLogBlockRateLimit: logged twice within the interval")
	}
	if blockLogger.receivedTxs != 2 {
		t.Fatalf("TestLogBlockRateLimit: expected 2 transactions counted, got %d", blockLogger.receivedTxs)
	}
}
