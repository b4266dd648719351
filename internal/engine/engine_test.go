package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmarket/exchange/internal/common"
	"github.com/oakmarket/exchange/internal/persistence"
	"github.com/oakmarket/exchange/internal/xerrors"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store := persistence.NewMemStore()
	buffer := persistence.NewBuffer(1024)
	eng := NewEngine(store, buffer)
	require.NoError(t, eng.Recover(context.Background()))
	return eng
}

func mustCreateMarket(t *testing.T, eng *Engine, symbol, name string) {
	t.Helper()
	_, err := eng.CreateMarket(context.Background(), symbol, name)
	require.NoError(t, err)
}

// S1: buy PLTR 10 25.00 alice, then sell PLTR 4 25.00 bob.
func TestScenario_S1_PartialFillPriceImprovementNone(t *testing.T) {
	eng := newTestEngine(t)
	mustCreateMarket(t, eng, "PLTR", "Palantir")
	ctx := context.Background()

	buy, _, err := eng.PlaceOrder(ctx, "PLTR", common.Buy, 10, 25.00, 1)
	require.NoError(t, err)
	assert.Equal(t, common.Pending, buy.Status)

	sell, trades, err := eng.PlaceOrder(ctx, "PLTR", common.Sell, 4, 25.00, 2)
	require.NoError(t, err)

	require.Len(t, trades, 1)
	assert.Equal(t, uint64(4), trades[0].Quantity)
	assert.Equal(t, 25.00, trades[0].Price)
	assert.Equal(t, common.Complete, sell.Status)

	market, ok := eng.Registry().Get("PLTR")
	require.True(t, ok)
	info := market.Info()
	require.NotNil(t, info.LatestPrice)
	assert.Equal(t, 25.00, *info.LatestPrice)
	assert.Equal(t, uint64(0), info.Stats.FilledBuys)
	assert.Equal(t, uint64(1), info.Stats.FilledSells)

	bestBid, _ := market.TopOfBook()
	require.NotNil(t, bestBid)
	assert.Equal(t, uint64(6), bestBid.Remaining)
}

// S2: sell MP 7 32.00 alice rests with no trade.
func TestScenario_S2_RestsNoTrade(t *testing.T) {
	eng := newTestEngine(t)
	mustCreateMarket(t, eng, "MP", "MarketMaker")
	ctx := context.Background()

	order, trades, err := eng.PlaceOrder(ctx, "MP", common.Sell, 7, 32.00, 1)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, common.Pending, order.Status)

	market, _ := eng.Registry().Get("MP")
	info := market.Info()
	assert.Nil(t, info.LatestPrice)
	assert.Equal(t, uint64(1), info.Stats.TotalSells)
}

// S3: buy DM 18 14.00 alice, then sell DM 2 14.00 bob.
func TestScenario_S3_PartialFillBuyRemainsPending(t *testing.T) {
	eng := newTestEngine(t)
	mustCreateMarket(t, eng, "DM", "DraftMachine")
	ctx := context.Background()

	_, _, err := eng.PlaceOrder(ctx, "DM", common.Buy, 18, 14.00, 1)
	require.NoError(t, err)
	sell, trades, err := eng.PlaceOrder(ctx, "DM", common.Sell, 2, 14.00, 2)
	require.NoError(t, err)

	require.Len(t, trades, 1)
	assert.Equal(t, uint64(2), trades[0].Quantity)
	assert.Equal(t, common.Complete, sell.Status)

	market, _ := eng.Registry().Get("DM")
	info := market.Info()
	assert.Equal(t, uint64(1), info.Stats.TotalBuys)
	assert.Equal(t, uint64(1), info.Stats.TotalSells)
	assert.Equal(t, uint64(1), info.Stats.FilledSells)
	assert.Equal(t, uint64(0), info.Stats.FilledBuys)

	bestBid, _ := market.TopOfBook()
	require.NotNil(t, bestBid)
	assert.Equal(t, uint64(16), bestBid.Remaining)
}

// S4: self-trade guard. alice resting buy, alice submits a crossing sell;
// no trade, the sell rests instead.
func TestScenario_S4_SelfTradeGuardRestsInstead(t *testing.T) {
	eng := newTestEngine(t)
	mustCreateMarket(t, eng, "PLTR", "Palantir")
	ctx := context.Background()

	_, _, err := eng.PlaceOrder(ctx, "PLTR", common.Buy, 10, 25.00, 1)
	require.NoError(t, err)

	sell, trades, err := eng.PlaceOrder(ctx, "PLTR", common.Sell, 5, 25.00, 1)
	require.NoError(t, err)

	assert.Empty(t, trades, "self-trade guard must prevent a match against one's own resting order")
	assert.Equal(t, common.Pending, sell.Status)

	market, _ := eng.Registry().Get("PLTR")
	bestBid, bestAsk := market.TopOfBook()
	require.NotNil(t, bestBid)
	assert.Equal(t, uint64(10), bestBid.Remaining, "the resting buy must be untouched")
	require.NotNil(t, bestAsk)
	assert.Equal(t, uint64(5), bestAsk.Remaining)
}

// Self-trade guard must still match a non-self order behind a self-owned
// one, and the self-owned resting order's priority must be restored.
func TestSelfTradeGuard_SkipsOwnOrderMatchesNext(t *testing.T) {
	eng := newTestEngine(t)
	mustCreateMarket(t, eng, "PLTR", "Palantir")
	ctx := context.Background()

	_, _, err := eng.PlaceOrder(ctx, "PLTR", common.Buy, 5, 25.00, 1) // alice, seq 1
	require.NoError(t, err)
	_, _, err = eng.PlaceOrder(ctx, "PLTR", common.Buy, 5, 25.00, 2) // bob, seq 2
	require.NoError(t, err)

	_, trades, err := eng.PlaceOrder(ctx, "PLTR", common.Sell, 5, 25.00, 1) // alice sells
	require.NoError(t, err)

	require.Len(t, trades, 1)
	assert.Equal(t, uint64(2), trades[0].FilledUID, "must match bob's order, not alice's own")

	market, _ := eng.Registry().Get("PLTR")
	bestBid, _ := market.TopOfBook()
	require.NotNil(t, bestBid, "alice's lifted resting order must be reinserted")
	assert.Equal(t, uint64(1), bestBid.UserID)
	assert.Equal(t, uint64(5), bestBid.Remaining)
}

// S5: price improvement flows to the aggressor.
func TestScenario_S5_PriceImprovement(t *testing.T) {
	eng := newTestEngine(t)
	mustCreateMarket(t, eng, "X", "X Corp")
	ctx := context.Background()

	_, _, err := eng.PlaceOrder(ctx, "X", common.Sell, 1, 24.00, 1)
	require.NoError(t, err)

	_, trades, err := eng.PlaceOrder(ctx, "X", common.Buy, 1, 30.00, 2)
	require.NoError(t, err)

	require.Len(t, trades, 1)
	assert.Equal(t, 24.00, trades[0].Price, "trade price must be the resting order's price, not the aggressor's")
}

// S6: cancel after a partial fill leaves the filled quantity untouched.
func TestScenario_S6_CancelAfterPartialFill(t *testing.T) {
	eng := newTestEngine(t)
	mustCreateMarket(t, eng, "PLTR", "Palantir")
	ctx := context.Background()

	buy, _, err := eng.PlaceOrder(ctx, "PLTR", common.Buy, 10, 25.00, 1)
	require.NoError(t, err)
	_, _, err = eng.PlaceOrder(ctx, "PLTR", common.Sell, 4, 25.00, 2)
	require.NoError(t, err)

	require.NoError(t, eng.Cancel(ctx, "PLTR", 1, buy.OrderID))

	market, _ := eng.Registry().Get("PLTR")
	bestBid, _ := market.TopOfBook()
	assert.Nil(t, bestBid)

	_, pending := eng.PendingOrder(buy.OrderID)
	assert.False(t, pending, "a cancelled order must leave the pending cache")
}

func TestCancel_UnknownMarket(t *testing.T) {
	eng := newTestEngine(t)
	err := eng.Cancel(context.Background(), "NOPE", 1, 1)
	assert.ErrorIs(t, err, xerrors.ErrUnknownMarket)
}

func TestCancel_NotPending(t *testing.T) {
	eng := newTestEngine(t)
	mustCreateMarket(t, eng, "PLTR", "Palantir")
	err := eng.Cancel(context.Background(), "PLTR", 1, 999)
	assert.ErrorIs(t, err, xerrors.ErrNotPending)
}

func TestCancel_NotOwner(t *testing.T) {
	eng := newTestEngine(t)
	mustCreateMarket(t, eng, "PLTR", "Palantir")
	ctx := context.Background()
	order, _, err := eng.PlaceOrder(ctx, "PLTR", common.Buy, 10, 25.00, 1)
	require.NoError(t, err)

	err = eng.Cancel(ctx, "PLTR", 2, order.OrderID)
	assert.ErrorIs(t, err, xerrors.ErrNotOwner)
}

func TestPlaceOrder_ValidationRejectsZeroQtyOrNonPositivePrice(t *testing.T) {
	eng := newTestEngine(t)
	mustCreateMarket(t, eng, "PLTR", "Palantir")
	ctx := context.Background()

	_, _, err := eng.PlaceOrder(ctx, "PLTR", common.Buy, 0, 25.00, 1)
	assert.ErrorIs(t, err, xerrors.ErrValidation)

	_, _, err = eng.PlaceOrder(ctx, "PLTR", common.Buy, 10, 0, 1)
	assert.ErrorIs(t, err, xerrors.ErrValidation)
}

func TestPlaceOrder_UnknownMarket(t *testing.T) {
	eng := newTestEngine(t)
	_, _, err := eng.PlaceOrder(context.Background(), "NOPE", common.Buy, 10, 25.00, 1)
	assert.ErrorIs(t, err, xerrors.ErrUnknownMarket)
}

// Invariant: order ids are unique and strictly increasing.
func TestOrderIDsAreMonotonic(t *testing.T) {
	eng := newTestEngine(t)
	mustCreateMarket(t, eng, "PLTR", "Palantir")
	ctx := context.Background()

	var last uint64
	for i := 0; i < 20; i++ {
		o, _, err := eng.PlaceOrder(ctx, "PLTR", common.Buy, 1, 10.00, 1)
		require.NoError(t, err)
		assert.Greater(t, o.OrderID, last)
		last = o.OrderID
	}
}

// Invariant: a sweep across multiple resting orders never leaves the
// aggressor's completed remainder in the book.
func TestSweepAcrossMultipleRestingOrdersNeverRestsAZeroRemainder(t *testing.T) {
	eng := newTestEngine(t)
	mustCreateMarket(t, eng, "PLTR", "Palantir")
	ctx := context.Background()

	_, _, err := eng.PlaceOrder(ctx, "PLTR", common.Sell, 5, 10.00, 1)
	require.NoError(t, err)
	_, _, err = eng.PlaceOrder(ctx, "PLTR", common.Sell, 5, 10.00, 2)
	require.NoError(t, err)

	buy, trades, err := eng.PlaceOrder(ctx, "PLTR", common.Buy, 10, 10.00, 3)
	require.NoError(t, err)

	assert.Len(t, trades, 2)
	assert.Equal(t, common.Complete, buy.Status)

	market, _ := eng.Registry().Get("PLTR")
	assert.Equal(t, 0, market.book.Len(common.Sell))
}

func TestServiceUnavailableWhenBufferHalted(t *testing.T) {
	eng := newTestEngine(t)
	mustCreateMarket(t, eng, "PLTR", "Palantir")
	eng.buffer.Halt()

	_, _, err := eng.PlaceOrder(context.Background(), "PLTR", common.Buy, 10, 25.00, 1)
	assert.ErrorIs(t, err, xerrors.ErrServiceUnavailable)

	err = eng.Cancel(context.Background(), "PLTR", 1, 1)
	assert.ErrorIs(t, err, xerrors.ErrServiceUnavailable)
}
