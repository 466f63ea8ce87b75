package blocklogger

import (
	"sync"
	"time"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/infrastructure/logger"
)

const logInterval = 10 * time.Second

// BlockLogger periodically logs how many blocks and transactions were
// processed, to show progress to the user without spamming the log
type BlockLogger struct {
	log *logger.Logger

	mtx              sync.Mutex
	receivedBlocks   int64
	receivedTxs      int64
	lastBlockLogTime time.Time
	now              func() time.Time
}

// New returns a BlockLogger that writes to the given logger
func New(log *logger.Logger) *BlockLogger {
	return &BlockLogger{
		log:              log,
		lastBlockLogTime: time.Now(),
		now:              time.Now,
	}
}

// LogBlock records a processed block. At most one message is written every
// 10 seconds, with the totals since the previous one.
func (bl *BlockLogger) LogBlock(block *externalapi.DomainBlock, pivotHeight uint64) bool {
	bl.mtx.Lock()
	defer bl.mtx.Unlock()

	bl.receivedBlocks++
	bl.receivedTxs += int64(len(block.Transactions))

	now := bl.now()
	duration := now.Sub(bl.lastBlockLogTime)
	if duration < logInterval {
		return false
	}

	blockStr := "blocks"
	if bl.receivedBlocks == 1 {
		blockStr = "block"
	}
	txStr := "transactions"
	if bl.receivedTxs == 1 {
		txStr = "transaction"
	}

	bl.log.Infof("Processed %d %s in the last %s (%d %s, pivot height %d, %s)",
		bl.receivedBlocks, blockStr, duration.Round(10*time.Millisecond), bl.receivedTxs, txStr,
		pivotHeight, time.UnixMilli(block.Header.TimeInMilliseconds))

	bl.receivedBlocks = 0
	bl.receivedTxs = 0
	bl.lastBlockLogTime = now
	return true
}
