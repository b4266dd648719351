package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmarket/exchange/internal/common"
)

func TestMemStore_ApplyBatchBuysFKOrder(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.CreateMarket(ctx, "PLTR", "Palantir"))

	now := time.Now()
	order := common.Order{OrderID: 1, Symbol: "PLTR", Side: common.Buy, Quantity: 10, Price: 25.00, UserID: 1, Status: common.Pending, TimePlaced: now, TimeUpdated: now}
	price := 25.00

	events := []Event{
		{Kind: MarketStatsDeltaKind, StatsDelta: &MarketStatsDelta{Symbol: "PLTR", DeltaTotalBuys: 1, LatestPrice: &price}},
		{Kind: OrderInserted, Order: &order, At: now},
		{Kind: OrderIDMinted, MintedID: 1},
	}
	require.NoError(t, store.ApplyBatch(ctx, events))

	pending, err := store.LoadPendingOrders(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, uint64(1), pending[0].OrderID)

	markets, err := store.LoadMarkets(ctx)
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, uint64(1), markets[0].Stats.TotalBuys)
	require.NotNil(t, markets[0].LatestPrice)
	assert.Equal(t, 25.00, *markets[0].LatestPrice)

	total, err := store.LoadExchangeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)
}

func TestMemStore_AccountCreateAndDuplicate(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	acc, err := store.CreateAccount(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.NotZero(t, acc.ID)

	_, err = store.CreateAccount(ctx, "alice", "other")
	assert.Error(t, err)

	got, ok, err := store.GetAccount(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, acc.ID, got.ID)

	_, ok, err = store.GetAccount(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}
