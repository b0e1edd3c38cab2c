package bulk

import (
	"context"

	"github.com/koustreak/bulkhelpers/internal/database"
	"github.com/koustreak/bulkhelpers/internal/errs"
)

// Pending is the result of a non-blocking bulk operation.
type Pending[T any] struct {
	done   chan struct{}
	result []T
	err    error
}

func start[T any](fn func() ([]T, error)) *Pending[T] {
	p := &Pending[T]{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.result, p.err = fn()
	}()
	return p
}

// Done is closed once the operation has finished.
func (p *Pending[T]) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the operation finishes or ctx ends. Giving up on the
// wait does not stop the operation; cancel the context the operation was
// started with for that.
func (p *Pending[T]) Wait(ctx context.Context) ([]T, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return nil, errs.Wrap(errs.ErrKindTimeout, "waiting for bulk operation", ctx.Err())
	}
}

// BulkInsertAsync runs BulkInsert without blocking the caller. Cancelling
// ctx aborts the transfer; the transaction must then be rolled back.
func (e *Engine[T]) BulkInsertAsync(ctx context.Context, entities []T, tableName string, tx database.Tx) *Pending[T] {
	return start(func() ([]T, error) {
		return e.BulkInsert(ctx, entities, tableName, tx)
	})
}

// BulkUpdateAsync runs BulkUpdate without blocking the caller.
func (e *Engine[T]) BulkUpdateAsync(ctx context.Context, entities []T, tableName string, tx database.Tx) *Pending[T] {
	return start(func() ([]T, error) {
		return e.BulkUpdate(ctx, entities, tableName, tx)
	})
}

// BulkInsertOrUpdateAsync runs BulkInsertOrUpdate without blocking the
// caller.
func (e *Engine[T]) BulkInsertOrUpdateAsync(ctx context.Context, entities []T, tableName string, tx database.Tx) *Pending[T] {
	return start(func() ([]T, error) {
		return e.BulkInsertOrUpdate(ctx, entities, tableName, tx)
	})
}
