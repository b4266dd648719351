// Package persistence is the write-back plane: a bounded queue of typed
// mutation events, a batching writer that commits them to Postgres inside
// foreign-key-respecting transactions, and a read-through cache of
// pending orders used to rebuild books after a restart.
package persistence

import (
	"time"

	"github.com/oakmarket/exchange/internal/common"
)

// Kind discriminates the seven mutation event types the engine emits.
// ApplyBatch groups a batch by Kind before applying it, because the *order
// within a transaction* that respects foreign keys is not necessarily the
// order events were produced in across a whole batch: OrderInserted rows
// must exist before any OrderFilled/Completed/Cancelled/TradeExecuted row
// can reference them.
type Kind int

const (
	OrderInserted Kind = iota
	OrderFilled
	OrderCompleted
	OrderCancelled
	TradeExecuted
	MarketStatsDeltaKind
	OrderIDMinted
)

// bucket returns the FK-respecting application order for a Kind:
// OrderInserted -> OrderFilled/Completed/Cancelled -> TradeExecuted ->
// MarketStatsDelta -> OrderIdMinted.
func (k Kind) bucket() int {
	switch k {
	case OrderInserted:
		return 0
	case OrderFilled, OrderCompleted, OrderCancelled:
		return 1
	case TradeExecuted:
		return 2
	case MarketStatsDeltaKind:
		return 3
	case OrderIDMinted:
		return 4
	default:
		return 5
	}
}

// MarketStatsDelta is applied as Markets.total_* / filled_* += delta, and
// latest_price is set outright when non-nil.
type MarketStatsDelta struct {
	Symbol          string
	DeltaTotalBuys  uint64
	DeltaTotalSells uint64
	DeltaFilledBuys uint64
	DeltaFilledSells uint64
	LatestPrice     *float64
}

// Event is a single persistence mutation, tagged by Kind. Only the fields
// relevant to that Kind are populated; see the Kind constants above.
type Event struct {
	Kind Kind

	Order     *common.Order // OrderInserted: full snapshot at submission (PENDING, filled 0).
	OrderID   uint64        // OrderFilled/Completed/Cancelled.
	NewFilled uint64        // OrderFilled.
	At        time.Time

	Trade *common.ExecutedTrade // TradeExecuted.

	StatsDelta *MarketStatsDelta // MarketStatsDeltaKind.

	MintedID uint64 // OrderIDMinted: idempotent set-to-max of ExchangeStats.total_orders.
}
