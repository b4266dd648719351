package engine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oakmarket/exchange/internal/common"
	"github.com/oakmarket/exchange/internal/persistence"
	"github.com/oakmarket/exchange/internal/xerrors"
)

// Engine is the top-level orchestrator: it owns the Registry of markets,
// mints order ids, and turns each Market.Place/Cancel outcome into the
// ordered, FK-respecting sequence of persistence events a match produces. It also
// keeps the one piece of state a Market cannot: the cumulative filled
// quantity of every order currently resting, since book.Entry only tracks
// what remains.
type Engine struct {
	registry *Registry
	buffer   *persistence.Buffer
	store    persistence.Store

	nextOrderID atomic.Uint64

	mu     sync.Mutex
	filled map[uint64]uint64 // orderID -> cumulative filled, while pending.
}

// NewEngine wires a fresh Engine around a Store and Buffer. Call Recover
// before accepting any request so order ids, market stats and the
// pending-order cache are seeded from durable state.
func NewEngine(store persistence.Store, buffer *persistence.Buffer) *Engine {
	return &Engine{
		registry: NewRegistry(),
		buffer:   buffer,
		store:    store,
		filled:   make(map[uint64]uint64),
	}
}

func (e *Engine) Registry() *Registry         { return e.registry }
func (e *Engine) Store() persistence.Store    { return e.store }
func (e *Engine) Buffer() *persistence.Buffer { return e.buffer }

// Recover rebuilds in-memory state from the durable store: the order id
// counter, every market's stats and latest price, and every PENDING
// order's resting place in its market's book. It must run once, before
// the engine starts accepting PlaceOrder/Cancel calls.
func (e *Engine) Recover(ctx context.Context) error {
	total, err := e.store.LoadExchangeStats(ctx)
	if err != nil {
		return err
	}
	e.nextOrderID.Store(total)

	markets, err := e.store.LoadMarkets(ctx)
	if err != nil {
		return err
	}
	for _, mi := range markets {
		m, _ := e.registry.CreateMarket(mi.Symbol, mi.Name)
		m.RestoreStats(mi.Stats, mi.LatestPrice)
	}

	pending, err := e.store.LoadPendingOrders(ctx)
	if err != nil {
		return err
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].OrderID < pending[j].OrderID })
	for _, o := range pending {
		m, ok := e.registry.Get(o.Symbol)
		if !ok {
			continue // order references a market no longer present; nothing sane to restore it into.
		}
		m.Restore(o.OrderID, o.UserID, o.Side, o.Price, o.Remaining())
		e.setFilled(o.OrderID, o.Filled)
	}
	e.buffer.SeedPending(pending)
	return nil
}

// CreateMarket persists a new market and registers it, for the
// ticker-ingestion path. Idempotent: an already-known symbol is a no-op.
func (e *Engine) CreateMarket(ctx context.Context, symbol, name string) (*Market, error) {
	if err := e.store.CreateMarket(ctx, symbol, name); err != nil {
		return nil, err
	}
	m, _ := e.registry.CreateMarket(symbol, name)
	return m, nil
}

// PlaceOrder validates, mints an order id, matches it against symbol's
// book, and persists the full sequence of events the match produced:
// OrderInserted, one OrderFilled (+ OrderCompleted) per order touched,
// one TradeExecuted per fill, the aggregate MarketStatsDelta, and the
// OrderIdMinted watermark bump, in that order.
func (e *Engine) PlaceOrder(ctx context.Context, symbol string, side common.Side, qty uint64, price float64, userID uint64) (common.Order, []common.ExecutedTrade, error) {
	if e.buffer.Halted() {
		return common.Order{}, nil, xerrors.ErrServiceUnavailable
	}
	if qty == 0 || price <= 0 {
		return common.Order{}, nil, xerrors.ErrValidation
	}
	market, ok := e.registry.Get(symbol)
	if !ok {
		return common.Order{}, nil, xerrors.ErrUnknownMarket
	}

	orderID := e.nextOrderID.Add(1)
	now := time.Now()

	initial := common.Order{
		OrderID:     orderID,
		Symbol:      symbol,
		Side:        side,
		Quantity:    qty,
		Price:       price,
		UserID:      userID,
		Status:      common.Pending,
		TimePlaced:  now,
		TimeUpdated: now,
	}
	if err := e.buffer.Enqueue(ctx, persistence.Event{Kind: persistence.OrderInserted, Order: &initial, At: now}); err != nil {
		return common.Order{}, nil, err
	}
	e.setFilled(orderID, 0)

	final, trades, deltas, newLatest := market.Place(orderID, userID, side, qty, price, now)

	for _, d := range deltas {
		newFilled := e.addFilled(d.OrderID, d.DeltaFilled)
		if err := e.buffer.Enqueue(ctx, persistence.Event{Kind: persistence.OrderFilled, OrderID: d.OrderID, NewFilled: newFilled, At: d.At}); err != nil {
			return common.Order{}, nil, err
		}
		if d.Completed {
			if err := e.buffer.Enqueue(ctx, persistence.Event{Kind: persistence.OrderCompleted, OrderID: d.OrderID, At: d.At}); err != nil {
				return common.Order{}, nil, err
			}
			e.clearFilled(d.OrderID)
		}
	}

	for i := range trades {
		t := trades[i]
		if err := e.buffer.Enqueue(ctx, persistence.Event{Kind: persistence.TradeExecuted, Trade: &t, At: t.ExecutedAt}); err != nil {
			return common.Order{}, nil, err
		}
	}

	delta := &persistence.MarketStatsDelta{Symbol: symbol, LatestPrice: newLatest}
	if side == common.Buy {
		delta.DeltaTotalBuys = 1
	} else {
		delta.DeltaTotalSells = 1
	}
	for _, d := range deltas {
		if !d.Completed {
			continue
		}
		if d.Side == common.Buy {
			delta.DeltaFilledBuys++
		} else {
			delta.DeltaFilledSells++
		}
	}
	if err := e.buffer.Enqueue(ctx, persistence.Event{Kind: persistence.MarketStatsDeltaKind, StatsDelta: delta, At: now}); err != nil {
		return common.Order{}, nil, err
	}

	if err := e.buffer.Enqueue(ctx, persistence.Event{Kind: persistence.OrderIDMinted, MintedID: orderID, At: now}); err != nil {
		return common.Order{}, nil, err
	}

	return final, trades, nil
}

// Cancel cancels the unfilled remainder of orderID in symbol, on behalf
// of userID.
func (e *Engine) Cancel(ctx context.Context, symbol string, userID, orderID uint64) error {
	if e.buffer.Halted() {
		return xerrors.ErrServiceUnavailable
	}
	market, ok := e.registry.Get(symbol)
	if !ok {
		return xerrors.ErrUnknownMarket
	}
	if err := market.Cancel(orderID, userID); err != nil {
		return err
	}
	e.clearFilled(orderID)
	return e.buffer.Enqueue(ctx, persistence.Event{Kind: persistence.OrderCancelled, OrderID: orderID, At: time.Now()})
}

// PendingOrder returns the live snapshot of orderID from the buffer's
// pending-order cache if it is still resting, without a DB round trip.
func (e *Engine) PendingOrder(orderID uint64) (common.Order, bool) {
	return e.buffer.PendingOrder(orderID)
}

func (e *Engine) setFilled(orderID, v uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filled[orderID] = v
}

func (e *Engine) addFilled(orderID, delta uint64) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filled[orderID] += delta
	return e.filled[orderID]
}

func (e *Engine) clearFilled(orderID uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.filled, orderID)
}
