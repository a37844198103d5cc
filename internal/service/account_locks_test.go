package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountLocksSerializeSameKey(t *testing.T) {
	locks := newAccountLocks()
	var inside, maxInside atomic.Int32

	var wg conc.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Go(func() {
			ctx := context.Background()
			_, release, err := locks.Lock(ctx, ctx, "a")
			require.NoError(t, err)
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			release()
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Empty(t, locks.slots)
}

func TestAccountLocksAreReentrantThroughContext(t *testing.T) {
	locks := newAccountLocks()
	ctx := context.Background()

	held, release, err := locks.Lock(ctx, ctx, "a", "b")
	require.NoError(t, err)
	defer release()

	wait, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, innerRelease, err := locks.Lock(held, wait, "b", "a")
	require.NoError(t, err)
	innerRelease()

	_, _, err = locks.Lock(ctx, wait, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAccountLocksReleaseIsIdempotent(t *testing.T) {
	locks := newAccountLocks()
	ctx := context.Background()

	_, release, err := locks.Lock(ctx, ctx, "a")
	require.NoError(t, err)
	release()
	release()

	_, release, err = locks.Lock(ctx, ctx, "a")
	require.NoError(t, err)
	release()
	assert.Empty(t, locks.slots)
}
