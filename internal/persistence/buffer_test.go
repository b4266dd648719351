package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmarket/exchange/internal/common"
)

func TestBuffer_PendingCacheTracksLifecycle(t *testing.T) {
	b := NewBuffer(16)
	ctx := context.Background()
	now := time.Now()

	order := common.Order{OrderID: 1, Symbol: "PLTR", Side: common.Buy, Quantity: 10, Price: 25.00, UserID: 1, Status: common.Pending, TimePlaced: now, TimeUpdated: now}
	require.NoError(t, b.Enqueue(ctx, Event{Kind: OrderInserted, Order: &order, At: now}))

	got, ok := b.PendingOrder(1)
	require.True(t, ok)
	assert.Equal(t, uint64(0), got.Filled)

	require.NoError(t, b.Enqueue(ctx, Event{Kind: OrderFilled, OrderID: 1, NewFilled: 4, At: now}))
	got, ok = b.PendingOrder(1)
	require.True(t, ok)
	assert.Equal(t, uint64(4), got.Filled)

	require.NoError(t, b.Enqueue(ctx, Event{Kind: OrderCompleted, OrderID: 1, At: now}))
	_, ok = b.PendingOrder(1)
	assert.False(t, ok, "a completed order leaves the pending cache")
}

func TestBuffer_CancelledOrderLeavesPendingCache(t *testing.T) {
	b := NewBuffer(16)
	ctx := context.Background()
	now := time.Now()

	order := common.Order{OrderID: 2, Symbol: "PLTR", Side: common.Sell, Quantity: 5, Price: 10.00, UserID: 1, TimePlaced: now, TimeUpdated: now}
	require.NoError(t, b.Enqueue(ctx, Event{Kind: OrderInserted, Order: &order, At: now}))
	require.NoError(t, b.Enqueue(ctx, Event{Kind: OrderCancelled, OrderID: 2, At: now}))

	_, ok := b.PendingOrder(2)
	assert.False(t, ok)
}

func TestBuffer_HaltedReflectsState(t *testing.T) {
	b := NewBuffer(16)
	assert.False(t, b.Halted())
	b.Halt()
	assert.True(t, b.Halted())
}

func TestBuffer_DrainRespectsBatchMax(t *testing.T) {
	b := NewBuffer(64)
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Enqueue(ctx, Event{Kind: OrderIDMinted, MintedID: uint64(i), At: now}))
	}

	batch, more := b.drain(ctx, 5, time.Second)
	assert.Len(t, batch, 5)
	assert.True(t, more)
}

func TestBuffer_DrainRespectsBatchInterval(t *testing.T) {
	b := NewBuffer(64)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, b.Enqueue(ctx, Event{Kind: OrderIDMinted, MintedID: 1, At: now}))

	batch, more := b.drain(ctx, 4096, 10*time.Millisecond)
	assert.Len(t, batch, 1)
	assert.True(t, more)
}

func TestBuffer_SeedPending(t *testing.T) {
	b := NewBuffer(16)
	now := time.Now()
	b.SeedPending([]common.Order{
		{OrderID: 1, Symbol: "PLTR", TimePlaced: now, TimeUpdated: now},
		{OrderID: 2, Symbol: "MP", TimePlaced: now, TimeUpdated: now},
	})
	_, ok := b.PendingOrder(1)
	assert.True(t, ok)
	_, ok = b.PendingOrder(2)
	assert.True(t, ok)
}
