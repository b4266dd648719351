package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tomb "gopkg.in/tomb.v2"
)

func TestPool_SubmitProcessesRequest(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	_, err := h.Engine.CreateMarket(ctx, "PLTR", "Palantir")
	require.NoError(t, err)

	pool := NewPool(h, 2)
	tm, tctx := tomb.WithContext(ctx)
	tm.Go(func() error {
		return pool.Run(tm)
	})

	out, err := pool.Submit(tctx, "account create alice hunter2")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")

	out, err = pool.Submit(tctx, "buy PLTR 10 25.00 alice hunter2")
	require.NoError(t, err)
	assert.Contains(t, out, "PENDING")

	tm.Kill(nil)
	_ = tm.Wait()
}

func TestPool_SubmitExitSignal(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	pool := NewPool(h, 1)
	tm, tctx := tomb.WithContext(ctx)
	tm.Go(func() error {
		return pool.Run(tm)
	})

	_, err := pool.Submit(tctx, "exit")
	assert.ErrorIs(t, err, ErrExit)

	tm.Kill(nil)
	_ = tm.Wait()
}
