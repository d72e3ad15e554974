package tx

import (
	"context"
	"sync"
	"time"

	dErrors "civicdesk/pkg/domain-errors"
)

const defaultMemoryTxTimeout = 5 * time.Second

type memoryTxKey struct{}

// MemoryTransactor serializes units of work against in-memory stores with a
// coarse lock. It gives isolation, not rollback: services validate before
// writing so a failing unit of work leaves nothing behind.
type MemoryTransactor struct {
	mu      sync.Mutex
	timeout time.Duration
}

func NewMemoryTransactor() *MemoryTransactor {
	return &MemoryTransactor{timeout: defaultMemoryTxTimeout}
}

func (t *MemoryTransactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if ctx.Value(memoryTxKey{}) == t {
		return fn(ctx)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(context.WithValue(ctx, memoryTxKey{}, t))
}
