package model

import "context"

// ExecutionPipeline executes epochs in order, one at a time, and applies
// rollbacks requested by pivot chain reorganizations
type ExecutionPipeline interface {
	Enqueue(epochs ...uint64)
	RequestRollback(epoch uint64)
	ProcessPending(ctx context.Context) error
	Start(ctx context.Context)
	Stop()
	FatalError() error
}
