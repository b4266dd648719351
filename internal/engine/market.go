// Package engine implements the matching engine and market registry: the
// per-symbol order books kept price/time priority ordered, the matching
// algorithm (price-cross, self-trade guard, price improvement), and the
// cancel path.
package engine

import (
	"sync"
	"time"

	"github.com/oakmarket/exchange/internal/book"
	"github.com/oakmarket/exchange/internal/common"
	"github.com/oakmarket/exchange/internal/xerrors"
)

// OrderDelta describes how much of an order (resting or the aggressor
// itself) was matched during a single Place call, and whether that match
// completed it. The book only tracks remaining quantity, not the order's
// full persisted record, so deltas — not absolute filled counts — are
// what Market reports; Engine owns the authoritative order records and
// turns a delta into the new_filled value persistence events need.
type OrderDelta struct {
	OrderID     uint64
	Side        common.Side
	DeltaFilled uint64
	Completed   bool
	At          time.Time
}

// Market is one symbol's tradable state: its order book, running
// statistics, latest trade price, and the per-user index of resting order
// ids (read through PendingOrderIDs).
type Market struct {
	mu sync.Mutex

	Symbol string
	Name   string

	stats       common.MarketStats
	latestPrice *float64

	book *book.Book

	pendingByUser map[uint64]map[uint64]struct{}
}

// NewMarket creates an empty market for symbol.
func NewMarket(symbol, name string) *Market {
	return &Market{
		Symbol:        symbol,
		Name:          name,
		book:          book.New(),
		pendingByUser: make(map[uint64]map[uint64]struct{}),
	}
}

// Info returns a read-only snapshot of the market's identity and counters.
func (m *Market) Info() common.MarketInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	var price *float64
	if m.latestPrice != nil {
		p := *m.latestPrice
		price = &p
	}
	return common.MarketInfo{
		Symbol:      m.Symbol,
		Name:        m.Name,
		Stats:       m.stats,
		LatestPrice: price,
	}
}

// TopOfBook returns the best bid and best ask entries, or nil on an empty
// side, for the `show` command.
func (m *Market) TopOfBook() (bestBid, bestAsk *book.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.book.PeekBest(common.Buy), m.book.PeekBest(common.Sell)
}

// PendingOrderIDs lists a user's currently resting order ids in this market.
func (m *Market) PendingOrderIDs(userID uint64) []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.pendingByUser[userID]
	if !ok {
		return nil
	}
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// Restore re-inserts a previously-persisted PENDING order into the book
// at startup, preserving price/time priority by inserting in order-id
// ascending order (order ids are minted in global submission order, so
// ascending order_id reproduces the original per-market arrival order).
// It does not touch stats or latest price; RestoreStats does that once,
// from the durable Markets row.
func (m *Market) Restore(orderID, userID uint64, side common.Side, price float64, remaining uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.book.Insert(orderID, userID, m.Symbol, side, price, remaining)
	m.addPending(userID, orderID)
}

// RestoreStats sets the market's counters and latest price from the
// durable store at startup.
func (m *Market) RestoreStats(stats common.MarketStats, latestPrice *float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = stats
	m.latestPrice = latestPrice
}

func (m *Market) addPending(userID, orderID uint64) {
	set, ok := m.pendingByUser[userID]
	if !ok {
		set = make(map[uint64]struct{})
		m.pendingByUser[userID] = set
	}
	set[orderID] = struct{}{}
}

func (m *Market) removePending(userID, orderID uint64) {
	set, ok := m.pendingByUser[userID]
	if !ok {
		return
	}
	delete(set, orderID)
	if len(set) == 0 {
		delete(m.pendingByUser, userID)
	}
}

// Place runs the matching algorithm for a freshly-minted aggressor order.
// It returns the aggressor's final state, the trades it produced (one per
// resting order it consumed), and a delta per order whose filled quantity
// or status changed (the aggressor included).
//
// total_{buys,sells} is incremented for the aggressor's side before
// matching begins, so the counters reflect attempted volume even for
// orders that cross nothing. filled_{buys,sells} is incremented whenever
// an order (resting or aggressor) transitions to COMPLETE. Self-trade
// candidates are lifted out of the book, matching continues against the
// next candidate, and everything lifted is reinserted at its original
// priority once the aggressor is done.
func (m *Market) Place(orderID, userID uint64, side common.Side, qty uint64, price float64, now time.Time) (
	final common.Order,
	trades []common.ExecutedTrade,
	deltas []OrderDelta,
	newLatestPrice *float64,
) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if side == common.Buy {
		m.stats.TotalBuys++
	} else {
		m.stats.TotalSells++
	}

	opposite := common.Sell
	if side == common.Sell {
		opposite = common.Buy
	}

	var held []*book.Entry
	var lastTradePrice *float64
	remaining := qty
	var filled uint64

	for remaining > 0 {
		top := m.book.PeekBest(opposite)
		if top == nil {
			break
		}
		if side == common.Buy && top.Price > price {
			break
		}
		if side == common.Sell && top.Price < price {
			break
		}
		if top.UserID == userID {
			// Self-trade guard: lift the self-owned entry out of the way
			// and keep scanning; everything lifted is restored once the
			// aggressor stops, at its original arrival priority.
			held = append(held, m.book.PopTop(opposite))
			continue
		}

		resting := m.book.PopTop(opposite)
		tradeQty := min(remaining, resting.Remaining)
		resting.Remaining -= tradeQty
		remaining -= tradeQty
		filled += tradeQty

		trades = append(trades, common.ExecutedTrade{
			Symbol:     m.Symbol,
			Side:       side,
			Price:      resting.Price, // price improvement flows to the aggressor
			FilledOID:  resting.OrderID,
			FilledUID:  resting.UserID,
			FillerOID:  orderID,
			FillerUID:  userID,
			Quantity:   tradeQty,
			ExecutedAt: now,
		})
		tp := resting.Price
		lastTradePrice = &tp

		completed := resting.Remaining == 0
		if completed {
			m.removePending(resting.UserID, resting.OrderID)
			if resting.Side == common.Buy {
				m.stats.FilledBuys++
			} else {
				m.stats.FilledSells++
			}
		} else {
			m.book.Reinsert(resting)
		}
		deltas = append(deltas, OrderDelta{OrderID: resting.OrderID, Side: resting.Side, DeltaFilled: tradeQty, Completed: completed, At: now})
	}

	for _, e := range held {
		m.book.Reinsert(e)
	}

	final = common.Order{
		OrderID:     orderID,
		Symbol:      m.Symbol,
		Side:        side,
		Quantity:    qty,
		Filled:      filled,
		Price:       price,
		UserID:      userID,
		TimePlaced:  now,
		TimeUpdated: now,
	}

	if remaining > 0 {
		final.Status = common.Pending
		m.book.Insert(orderID, userID, m.Symbol, side, price, remaining)
		m.addPending(userID, orderID)
	} else {
		final.Status = common.Complete
		if side == common.Buy {
			m.stats.FilledBuys++
		} else {
			m.stats.FilledSells++
		}
	}
	deltas = append(deltas, OrderDelta{OrderID: orderID, Side: side, DeltaFilled: filled, Completed: final.Status == common.Complete, At: now})

	if lastTradePrice != nil {
		m.latestPrice = lastTradePrice
	}

	return final, trades, deltas, lastTradePrice
}

// Cancel locates orderID among the resting entries, verifies ownership,
// and lazily removes it from the book. The already-filled portion of the
// order is immutable; only the unfilled remainder is cancelled. Counters
// are left untouched: a cancelled order's attempted volume still counts.
func (m *Market) Cancel(orderID, userID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.book.Find(orderID)
	if !ok {
		return xerrors.ErrNotPending
	}
	if e.UserID != userID {
		return xerrors.ErrNotOwner
	}
	m.book.MarkCancelled(orderID)
	m.removePending(userID, orderID)
	return nil
}

func min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
