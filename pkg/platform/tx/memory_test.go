package tx

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "civicdesk/pkg/domain-errors"
)

func TestMemoryTransactor(t *testing.T) {
	t.Run("serializes concurrent units of work", func(t *testing.T) {
		tx := NewMemoryTransactor()
		counter := 0
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = tx.RunInTx(context.Background(), func(ctx context.Context) error {
					v := counter
					counter = v + 1
					return nil
				})
			}()
		}
		wg.Wait()
		assert.Equal(t, 50, counter)
	})

	t.Run("nested calls join the outer unit of work", func(t *testing.T) {
		tx := NewMemoryTransactor()
		ran := false
		err := tx.RunInTx(context.Background(), func(ctx context.Context) error {
			return tx.RunInTx(ctx, func(context.Context) error {
				ran = true
				return nil
			})
		})
		require.NoError(t, err)
		assert.True(t, ran)
	})

	t.Run("cancelled context is rejected", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := NewMemoryTransactor().RunInTx(ctx, func(context.Context) error { return nil })
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	})
}
