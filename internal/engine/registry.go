package engine

import (
	"sync"

	"github.com/tidwall/btree"
)

// Registry is the concurrent symbol -> Market map. Reads take the
// read-lock only long enough to grab a *Market pointer; all further
// mutation happens through that Market's own lock, so different symbols
// never contend with each other. Market creation is rare (the `upgrade_db`
// path) and takes the registry's write lock.
type Registry struct {
	mu      sync.RWMutex
	markets map[string]*Market

	// symbols is an ordered index of known tickers, so Symbols lists them
	// deterministically instead of depending on Go's randomized map
	// iteration order.
	symbols *btree.BTreeG[string]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		markets: make(map[string]*Market),
		symbols: btree.NewBTreeG(func(a, b string) bool { return a < b }),
	}
}

// Get returns the market for symbol, if registered.
func (r *Registry) Get(symbol string) (*Market, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[symbol]
	return m, ok
}

// CreateMarket registers a new market. It is idempotent: creating a
// symbol that already exists returns the existing Market and false.
func (r *Registry) CreateMarket(symbol, name string) (m *Market, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.markets[symbol]; ok {
		return existing, false
	}
	m = NewMarket(symbol, name)
	r.markets[symbol] = m
	r.symbols.Set(symbol)
	return m, true
}

// Symbols returns every registered ticker in ascending order.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, r.symbols.Len())
	r.symbols.Scan(func(s string) bool {
		out = append(out, s)
		return true
	})
	return out
}
