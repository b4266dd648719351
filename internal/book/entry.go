// Package book implements the per-market order book: two priority queues
// (bids, a max-heap by price then arrival order; asks, a min-heap by price
// then arrival order), each holding the resting orders on that side.
//
// Cancellation is lazy: a cancelled Entry is marked and skipped on pop
// rather than spliced out of the underlying heap array.
package book

import "github.com/oakmarket/exchange/internal/common"

// Entry is a resting order's working copy inside the book: just enough
// state for matching and cancel, keyed by OrderID.
type Entry struct {
	OrderID   uint64
	UserID    uint64
	Symbol    string
	Side      common.Side
	Price     float64
	Remaining uint64
	Seq       uint64 // Per-market arrival sequence; the tie-break, never wall-clock.

	cancelled bool
	index     int // position in its heap's backing slice, maintained by container/heap.
}

// Cancelled reports whether this entry carries a lazy-deletion marker.
func (e *Entry) Cancelled() bool {
	return e.cancelled
}
