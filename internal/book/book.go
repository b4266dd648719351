package book

import (
	"container/heap"

	"github.com/oakmarket/exchange/internal/common"
)

// Book is one market's two-sided order book: a bid max-heap, an ask
// min-heap, a per-market arrival-sequence counter, and an index from
// order id to its resting Entry (used by cancel and by point lookups).
type Book struct {
	bids bidHeap
	asks askHeap
	seq  uint64

	byID map[uint64]*Entry
}

// New creates an empty book.
func New() *Book {
	return &Book{byID: make(map[uint64]*Entry)}
}

// Insert places a new resting order on the side dictated by side, assigning
// the next arrival sequence number.
func (b *Book) Insert(orderID, userID uint64, symbol string, side common.Side, price float64, remaining uint64) *Entry {
	b.seq++
	e := &Entry{
		OrderID:   orderID,
		UserID:    userID,
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Remaining: remaining,
		Seq:       b.seq,
	}
	b.push(side, e)
	b.byID[orderID] = e
	return e
}

func (b *Book) push(side common.Side, e *Entry) {
	if side == common.Buy {
		heap.Push(&b.bids, e)
	} else {
		heap.Push(&b.asks, e)
	}
}

// PeekBest returns the extreme (best-priced, earliest) non-cancelled entry
// on the given side, or nil if the side is empty. Cancelled entries
// encountered at the top are popped and discarded as a side effect —
// skip-on-pop lazy deletion.
func (b *Book) PeekBest(side common.Side) *Entry {
	b.dropCancelledTop(side)
	if side == common.Buy {
		if len(b.bids) == 0 {
			return nil
		}
		return b.bids[0]
	}
	if len(b.asks) == 0 {
		return nil
	}
	return b.asks[0]
}

func (b *Book) dropCancelledTop(side common.Side) {
	if side == common.Buy {
		for len(b.bids) > 0 && b.bids[0].cancelled {
			e := heap.Pop(&b.bids).(*Entry)
			delete(b.byID, e.OrderID)
		}
		return
	}
	for len(b.asks) > 0 && b.asks[0].cancelled {
		e := heap.Pop(&b.asks).(*Entry)
		delete(b.byID, e.OrderID)
	}
}

// PopTop removes and returns the current top-of-book entry for side
// (after skipping any cancelled entries), or nil if empty. Used once the
// matching loop has decided an entry's remaining quantity has hit zero, or
// to temporarily lift a self-owned entry out of the way (see Reinsert).
func (b *Book) PopTop(side common.Side) *Entry {
	e := b.PeekBest(side)
	if e == nil {
		return nil
	}
	if side == common.Buy {
		heap.Pop(&b.bids)
	} else {
		heap.Pop(&b.asks)
	}
	delete(b.byID, e.OrderID)
	return e
}

// Reinsert pushes a previously-popped entry back onto its side, preserving
// its original Seq (and therefore its original time priority). Used both
// for a partially-filled resting order and for the self-trade guard's
// temporarily-lifted candidates.
func (b *Book) Reinsert(e *Entry) {
	b.push(e.Side, e)
	b.byID[e.OrderID] = e
}

// MarkCancelled sets the lazy-deletion marker on the order's resting
// entry. If the entry is currently at the top of its side, it is popped
// immediately. Returns false if the order is not currently resting.
func (b *Book) MarkCancelled(orderID uint64) bool {
	e, ok := b.byID[orderID]
	if !ok {
		return false
	}
	e.cancelled = true
	delete(b.byID, orderID)
	b.dropCancelledTop(e.Side)
	return true
}

// Find returns the resting entry for orderID, if any (not cancelled).
func (b *Book) Find(orderID uint64) (*Entry, bool) {
	e, ok := b.byID[orderID]
	if !ok || e.cancelled {
		return nil, false
	}
	return e, true
}

// Snapshot returns the non-cancelled entries on a side in heap array order
// (not necessarily fully price-time sorted beyond the top), for
// introspection. Callers that need strict ordering should drain a copy of
// the heap instead.
func (b *Book) Snapshot(side common.Side) []*Entry {
	b.dropCancelledTop(side)
	var src []*Entry
	if side == common.Buy {
		src = b.bids
	} else {
		src = b.asks
	}
	out := make([]*Entry, 0, len(src))
	for _, e := range src {
		if !e.cancelled {
			out = append(out, e)
		}
	}
	return out
}

// Len reports how many non-cancelled entries rest on the given side.
// Lazy deletion only pops a cancelled entry once it reaches the top, so a
// cancelled entry buried deeper in the heap must still be filtered here,
// the same way Snapshot does.
func (b *Book) Len(side common.Side) int {
	var src []*Entry
	if side == common.Buy {
		src = b.bids
	} else {
		src = b.asks
	}
	n := 0
	for _, e := range src {
		if !e.cancelled {
			n++
		}
	}
	return n
}
