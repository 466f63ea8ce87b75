package executionpipeline

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/ruleerrors"
)

type fakeCoordinator struct {
	executedTip  uint64
	committed    []uint64
	rollbacks    []uint64
	beforeReturn func(ctx context.Context, epoch uint64) error
}

func (fc *fakeCoordinator) InitializeGenesisState(*externalapi.DomainHash) error {
	return nil
}

func (fc *fakeCoordinator) ExecuteEpoch(ctx context.Context, epoch *model.Epoch) (*model.EpochExecution, error) {
	if epoch.Number != fc.executedTip+1 {
		return nil, ruleerrors.NewErrExecutionFault(epoch.Number, "the predecessor state version is missing")
	}
	if fc.beforeReturn != nil {
		err := fc.beforeReturn(ctx, epoch.Number)
		if err != nil {
			return nil, err
		}
	}
	return &model.EpochExecution{Epoch: epoch.Number, PivotHash: epoch.PivotHash}, nil
}

func (fc *fakeCoordinator) CommitEpoch(execution *model.EpochExecution) (*externalapi.EpochExecutionResult, error) {
	fc.executedTip = execution.Epoch
	fc.committed = append(fc.committed, execution.Epoch)
	return &externalapi.EpochExecutionResult{
		Epoch:     execution.Epoch,
		PivotHash: execution.PivotHash,
		StateRoot: &externalapi.DomainHash{},
	}, nil
}

func (fc *fakeCoordinator) RollbackTo(epoch uint64) error {
	fc.rollbacks = append(fc.rollbacks, epoch)
	if epoch < fc.executedTip {
		fc.executedTip = epoch
	}
	return nil
}

func (fc *fakeCoordinator) ExecutedTip() (uint64, error) {
	return fc.executedTip, nil
}

func (fc *fakeCoordinator) Account(uint64, externalapi.DomainAddress) (*externalapi.Account, error) {
	return externalapi.NewEmptyAccount(), nil
}

func epochSource(epochNumber uint64) (*model.Epoch, error) {
	return &model.Epoch{Number: epochNumber, PivotHash: &externalapi.DomainHash{}}, nil
}

func requireEpochs(t *testing.T, testName string, actual []uint64, expected ...uint64) {
	if len(actual) != len(expected) {
		t.Fatalf("%s: expected %v, got %v", testName, expected, actual)
	}
	for i := range expected {
		if actual[i] != expected[i] {
			t.Fatalf("%s: expected %v, got %v", testName, expected, actual)
		}
	}
}

func TestEpochsExecuteInOrder(t *testing.T) {
	coordinator := &fakeCoordinator{}
	pipeline := New(coordinator, epochSource)

	pipeline.Enqueue(1, 2)
	pipeline.Enqueue(3)
	err := pipeline.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("TestEpochsExecuteInOrder: ProcessPending: %s", err)
	}
	requireEpochs(t, "TestEpochsExecuteInOrder", coordinator.committed, 1, 2, 3)

	// Already executed epochs are skipped
	pipeline.Enqueue(2, 3, 4)
	err = pipeline.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("TestEpochsExecuteInOrder: ProcessPending: %s", err)
	}
	requireEpochs(t, "TestEpochsExecuteInOrder", coordinator.committed, 1, 2, 3, 4)
}

func TestRollbackPreemptsExecution(t *testing.T) {
	coordinator := &fakeCoordinator{}
	pipeline := New(coordinator, epochSource)

	coordinator.beforeReturn = func(ctx context.Context, epoch uint64) error {
		if epoch != 3 {
			return nil
		}
		coordinator.beforeReturn = nil
		pipeline.RequestRollback(1)
		if ctx.Err() == nil {
			t.Fatalf("TestRollbackPreemptsExecution: the rollback request must cancel the execution in flight")
		}
		return errors.WithStack(ctx.Err())
	}

	pipeline.Enqueue(1, 2, 3, 4)
	err := pipeline.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("TestRollbackPreemptsExecution: ProcessPending: %s", err)
	}
	requireEpochs(t, "TestRollbackPreemptsExecution", coordinator.committed, 1, 2)
	requireEpochs(t, "TestRollbackPreemptsExecution", coordinator.rollbacks, 1)
	if coordinator.executedTip != 1 {
		t.Fatalf("TestRollbackPreemptsExecution: expected executed tip 1, got %d", coordinator.executedTip)
	}

	pipeline.Enqueue(2, 3)
	err = pipeline.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("TestRollbackPreemptsExecution: ProcessPending: %s", err)
	}
	requireEpochs(t, "TestRollbackPreemptsExecution", coordinator.committed, 1, 2, 2, 3)
}

func TestExecutionFaultIsFatal(t *testing.T) {
	coordinator := &fakeCoordinator{}
	pipeline := New(coordinator, epochSource)

	pipeline.Enqueue(2)
	err := pipeline.ProcessPending(context.Background())
	if !ruleerrors.IsExecutionFault(err) {
		t.Fatalf("TestExecutionFaultIsFatal: expected an execution fault, got %v", err)
	}
	if !ruleerrors.IsExecutionFault(pipeline.FatalError()) {
		t.Fatalf("TestExecutionFaultIsFatal: FatalError must keep the execution fault, got %v", pipeline.FatalError())
	}

	pipeline.Enqueue(1)
	err = pipeline.ProcessPending(context.Background())
	if err == nil {
		t.Fatalf("TestExecutionFaultIsFatal: the pipeline must stay stopped after a fatal error")
	}
}

func TestStartProcessesInBackground(t *testing.T) {
	coordinator := &fakeCoordinator{}
	committed := make(chan uint64, 10)
	coordinator.beforeReturn = func(_ context.Context, epoch uint64) error {
		committed <- epoch
		return nil
	}
	pipeline := New(coordinator, epochSource)
	pipeline.Start(context.Background())
	defer pipeline.Stop()

	pipeline.Enqueue(1, 2)
	for _, expected := range []uint64{1, 2} {
		select {
		case epoch := <-committed:
			if epoch != expected {
				t.Fatalf("TestStartProcessesInBackground: expected epoch %d, got %d", expected, epoch)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("TestStartProcessesInBackground: timed out waiting for epoch %d", expected)
		}
	}
}
