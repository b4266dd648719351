package persistence

import (
	"context"
	"sync"

	"github.com/oakmarket/exchange/internal/common"
	"github.com/oakmarket/exchange/internal/xerrors"
)

// MemStore is an in-memory Store, used by package tests across the repo
// (internal/engine, internal/account, internal/dispatch) instead of
// standing up a real Postgres instance for every test. It applies events
// with the same FK-respecting bucket semantics ApplyBatch uses against
// Postgres, just against plain Go maps.
type MemStore struct {
	mu sync.Mutex

	totalOrders uint64
	markets     map[string]*common.MarketInfo
	orders      map[uint64]*common.Order
	pending     map[uint64]struct{}
	trades      []common.ExecutedTrade

	nextAccountID uint64
	accountsByID  map[uint64]*common.Account
	accountsByUsr map[string]uint64
}

// NewMemStore creates an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{
		markets:       make(map[string]*common.MarketInfo),
		orders:        make(map[uint64]*common.Order),
		pending:       make(map[uint64]struct{}),
		accountsByID:  make(map[uint64]*common.Account),
		accountsByUsr: make(map[string]uint64),
	}
}

func (m *MemStore) Migrate(ctx context.Context) error { return nil }

func (m *MemStore) LoadExchangeStats(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalOrders, nil
}

func (m *MemStore) LoadMarkets(ctx context.Context) ([]common.MarketInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]common.MarketInfo, 0, len(m.markets))
	for _, mi := range m.markets {
		out = append(out, *mi)
	}
	return out, nil
}

func (m *MemStore) LoadPendingOrders(ctx context.Context) ([]common.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]common.Order, 0, len(m.pending))
	for id := range m.pending {
		out = append(out, *m.orders[id])
	}
	return out, nil
}

func (m *MemStore) CreateMarket(ctx context.Context, symbol, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.markets[symbol]; ok {
		return nil
	}
	m.markets[symbol] = &common.MarketInfo{Symbol: symbol, Name: name}
	return nil
}

func (m *MemStore) CreateAccount(ctx context.Context, username, password string) (common.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accountsByUsr[username]; ok {
		return common.Account{}, xerrors.ErrUsernameTaken
	}
	m.nextAccountID++
	acc := common.Account{ID: m.nextAccountID, Username: username, Password: password}
	m.accountsByID[acc.ID] = &acc
	m.accountsByUsr[username] = acc.ID
	return acc, nil
}

func (m *MemStore) GetAccount(ctx context.Context, username string) (common.Account, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.accountsByUsr[username]
	if !ok {
		return common.Account{}, false, nil
	}
	return *m.accountsByID[id], true, nil
}

func (m *MemStore) ListOrdersByUser(ctx context.Context, userID uint64) ([]common.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []common.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *MemStore) ListTrades(ctx context.Context, symbol string) ([]common.ExecutedTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []common.ExecutedTrade
	for _, t := range m.trades {
		if t.Symbol == symbol {
			out = append(out, t)
		}
	}
	return out, nil
}

// ApplyBatch mirrors sqlStore.ApplyBatch's bucket ordering against the
// in-memory maps instead of a SQL transaction.
func (m *MemStore) ApplyBatch(ctx context.Context, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buckets := make([][]Event, 5)
	for _, ev := range events {
		b := ev.Kind.bucket()
		buckets[b] = append(buckets[b], ev)
	}

	for _, ev := range buckets[0] {
		o := *ev.Order
		m.orders[o.OrderID] = &o
		m.pending[o.OrderID] = struct{}{}
	}
	for _, ev := range buckets[1] {
		switch ev.Kind {
		case OrderFilled:
			if o, ok := m.orders[ev.OrderID]; ok {
				o.Filled = ev.NewFilled
				o.TimeUpdated = ev.At
			}
		case OrderCompleted:
			if o, ok := m.orders[ev.OrderID]; ok {
				o.Status = common.Complete
				o.TimeUpdated = ev.At
			}
			delete(m.pending, ev.OrderID)
		case OrderCancelled:
			if o, ok := m.orders[ev.OrderID]; ok {
				o.Status = common.Cancelled
				o.TimeUpdated = ev.At
			}
			delete(m.pending, ev.OrderID)
		}
	}
	for _, ev := range buckets[2] {
		m.trades = append(m.trades, *ev.Trade)
	}
	for _, ev := range buckets[3] {
		d := ev.StatsDelta
		mi, ok := m.markets[d.Symbol]
		if !ok {
			continue
		}
		mi.Stats.TotalBuys += d.DeltaTotalBuys
		mi.Stats.TotalSells += d.DeltaTotalSells
		mi.Stats.FilledBuys += d.DeltaFilledBuys
		mi.Stats.FilledSells += d.DeltaFilledSells
		if d.LatestPrice != nil {
			mi.LatestPrice = d.LatestPrice
		}
	}
	for _, ev := range buckets[4] {
		if ev.MintedID > m.totalOrders {
			m.totalOrders = ev.MintedID
		}
	}
	return nil
}
