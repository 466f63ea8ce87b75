package executionpipeline

import (
	"context"
	"sync"

	"github.com/treegraph/tgraphd/domain/consensus/model"
)

// EpochSource returns the linearized epoch with the given number
type EpochSource func(epochNumber uint64) (*model.Epoch, error)

// executionPipeline executes queued epochs one at a time. A rollback request
// pre-empts the epoch in flight: its result is discarded and the rollback is
// applied before anything else runs.
//
// Every rollback request bumps generation. An execution is only committed if
// no rollback was requested since it started.
type executionPipeline struct {
	executionCoordinator model.ExecutionCoordinator
	epochSource          EpochSource

	lock               sync.Mutex
	queue              []uint64
	hasPendingRollback bool
	rollbackTarget     uint64
	generation         uint64
	cancelInFlight     context.CancelFunc
	fatalError         error

	wakeUp  chan struct{}
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// New instantiates a new ExecutionPipeline
func New(executionCoordinator model.ExecutionCoordinator, epochSource EpochSource) model.ExecutionPipeline {
	return &executionPipeline{
		executionCoordinator: executionCoordinator,
		epochSource:          epochSource,
		wakeUp:               make(chan struct{}, 1),
	}
}

// Enqueue schedules the given epochs for execution, in order
func (ep *executionPipeline) Enqueue(epochs ...uint64) {
	if len(epochs) == 0 {
		return
	}
	ep.lock.Lock()
	ep.queue = append(ep.queue, epochs...)
	ep.lock.Unlock()
	ep.signal()
}

// RequestRollback schedules a rollback of the state to the given epoch,
// cancels the execution in flight and drops every queued epoch above it
func (ep *executionPipeline) RequestRollback(epoch uint64) {
	ep.lock.Lock()
	ep.generation++
	if !ep.hasPendingRollback || epoch < ep.rollbackTarget {
		ep.rollbackTarget = epoch
	}
	ep.hasPendingRollback = true

	keptQueue := ep.queue[:0]
	for _, queued := range ep.queue {
		if queued <= epoch {
			keptQueue = append(keptQueue, queued)
		}
	}
	ep.queue = keptQueue

	if ep.cancelInFlight != nil {
		ep.cancelInFlight()
	}
	ep.lock.Unlock()

	log.Debugf("Requested a state rollback to epoch %d", epoch)
	ep.signal()
}

// ProcessPending applies pending rollbacks and executes queued epochs until
// the queue is empty. It returns the first fatal error it hits, and keeps
// returning it on later calls.
func (ep *executionPipeline) ProcessPending(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ep.lock.Lock()
		if ep.fatalError != nil {
			ep.lock.Unlock()
			return ep.fatalError
		}
		if ep.hasPendingRollback {
			rollbackTarget := ep.rollbackTarget
			ep.hasPendingRollback = false
			ep.lock.Unlock()

			err := ep.executionCoordinator.RollbackTo(rollbackTarget)
			if err != nil {
				return ep.setFatalError(err)
			}
			continue
		}
		if len(ep.queue) == 0 {
			ep.lock.Unlock()
			return nil
		}
		epochNumber := ep.queue[0]
		generation := ep.generation
		executionContext, cancel := context.WithCancel(ctx)
		ep.cancelInFlight = cancel
		ep.lock.Unlock()

		err := ep.processEpoch(executionContext, epochNumber, generation)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if executionContext.Err() != nil {
				log.Debugf("Execution of epoch %d was pre-empted", epochNumber)
				continue
			}
			return ep.setFatalError(err)
		}
	}
}

func (ep *executionPipeline) processEpoch(ctx context.Context, epochNumber uint64, generation uint64) error {
	executedTip, err := ep.executionCoordinator.ExecutedTip()
	if err != nil {
		return err
	}
	if epochNumber <= executedTip {
		ep.popIfUnchanged(epochNumber, generation)
		return nil
	}

	epoch, err := ep.epochSource(epochNumber)
	if err != nil {
		if ep.isStale(generation) {
			return nil
		}
		return err
	}
	execution, err := ep.executionCoordinator.ExecuteEpoch(ctx, epoch)
	if err != nil {
		return err
	}

	ep.lock.Lock()
	defer ep.lock.Unlock()
	if ep.generation != generation {
		log.Debugf("Discarding the execution of epoch %d after a rollback request", epochNumber)
		return nil
	}
	result, err := ep.executionCoordinator.CommitEpoch(execution)
	if err != nil {
		return err
	}
	ep.queue = ep.queue[1:]
	log.Infof("Executed epoch %d (pivot %s, %d receipts, state root %s)",
		result.Epoch, result.PivotHash, len(result.Receipts), result.StateRoot)
	return nil
}

func (ep *executionPipeline) popIfUnchanged(epochNumber uint64, generation uint64) {
	ep.lock.Lock()
	defer ep.lock.Unlock()
	if ep.generation == generation && len(ep.queue) > 0 && ep.queue[0] == epochNumber {
		ep.queue = ep.queue[1:]
	}
}

func (ep *executionPipeline) isStale(generation uint64) bool {
	ep.lock.Lock()
	defer ep.lock.Unlock()
	return ep.generation != generation
}

func (ep *executionPipeline) setFatalError(err error) error {
	ep.lock.Lock()
	defer ep.lock.Unlock()
	log.Criticalf("Epoch execution stopped: %+v", err)
	ep.fatalError = err
	return err
}

// FatalError returns the error that stopped the pipeline, if any
func (ep *executionPipeline) FatalError() error {
	ep.lock.Lock()
	defer ep.lock.Unlock()
	return ep.fatalError
}

// Start runs ProcessPending in a background goroutine whenever new work
// arrives, until ctx is done or Stop is called
func (ep *executionPipeline) Start(ctx context.Context) {
	ctx, ep.cancel = context.WithCancel(ctx)
	ep.running.Add(1)
	spawn("executionPipeline.run", func() {
		defer ep.running.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ep.wakeUp:
			}
			err := ep.ProcessPending(ctx)
			if err != nil && ctx.Err() == nil {
				return
			}
		}
	})
	ep.signal()
}

// Stop stops the background goroutine and waits for it to exit
func (ep *executionPipeline) Stop() {
	if ep.cancel == nil {
		return
	}
	ep.cancel()
	ep.running.Wait()
}

func (ep *executionPipeline) signal() {
	select {
	case ep.wakeUp <- struct{}{}:
	default:
	}
}
