package persistence

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oakmarket/exchange/internal/common"
)

// Default batching policy for the writer's flush cadence.
const (
	DefaultBatchMax      = 4096
	DefaultBatchInterval = 50 * time.Millisecond
	DefaultQueueCapacity = 1 << 16
)

// Buffer is the bounded MPMC mutation queue sitting between the matching
// engine and the durable store. Producers (the engine, under a market's
// lock) call Enqueue; a Writer goroutine drains it in batches. When the
// queue is full, Enqueue blocks — a synchronous slowdown rather than an
// error. When persistence has hit a fatal,
// unretryable failure, Halted() reports true and every new request must
// be rejected with SERVICE_UNAVAILABLE without ever touching Enqueue.
//
// Buffer also owns the read-through cache of pending orders: every
// OrderInserted/Filled/Completed/Cancelled event updates it synchronously
// (before the event is even queued for the writer), so point lookups
// through PendingOrder never wait on the batch writer's flush cadence.
type Buffer struct {
	events chan Event

	halted atomic.Bool

	mu      sync.RWMutex
	pending map[uint64]*common.Order // orderID -> live PENDING snapshot
}

// NewBuffer creates a Buffer with the given queue capacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Buffer{
		events:  make(chan Event, capacity),
		pending: make(map[uint64]*common.Order),
	}
}

// Halted reports whether persistence has permanently failed.
func (b *Buffer) Halted() bool {
	return b.halted.Load()
}

// Halt marks persistence as permanently failed; every subsequent Enqueue
// still accepted (so in-flight work can finish) but new requests should
// be rejected upstream with SERVICE_UNAVAILABLE by checking Halted first.
func (b *Buffer) Halt() {
	b.halted.Store(true)
}

// Enqueue pushes an event onto the queue, blocking while the queue is
// full (backpressure) or until ctx is cancelled. It also applies the
// event to the pending-order cache synchronously.
func (b *Buffer) Enqueue(ctx context.Context, ev Event) error {
	b.apply(ev)
	select {
	case b.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Buffer) apply(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch ev.Kind {
	case OrderInserted:
		o := *ev.Order
		b.pending[o.OrderID] = &o
	case OrderFilled:
		if o, ok := b.pending[ev.OrderID]; ok {
			o.Filled = ev.NewFilled
			o.TimeUpdated = ev.At
		}
	case OrderCompleted, OrderCancelled:
		delete(b.pending, ev.OrderID)
	}
}

// PendingOrder returns the live in-memory snapshot of a PENDING order, for
// point lookups that must not wait on the batch writer.
func (b *Buffer) PendingOrder(orderID uint64) (common.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.pending[orderID]
	if !ok {
		return common.Order{}, false
	}
	return *o, true
}

// SeedPending populates the cache at startup from the durable store's
// PendingOrders join, before the engine starts accepting requests.
func (b *Buffer) SeedPending(orders []common.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range orders {
		o := orders[i]
		b.pending[o.OrderID] = &o
	}
}

// drain blocks until at least one event is available, then keeps collecting
// until the batch holds max events or interval elapses, whichever comes first.
// This implements the BATCH_MAX / BATCH_INTERVAL flush policy.
func (b *Buffer) drain(ctx context.Context, max int, interval time.Duration) ([]Event, bool) {
	var batch []Event
	select {
	case ev, ok := <-b.events:
		if !ok {
			return batch, false
		}
		batch = append(batch, ev)
	case <-ctx.Done():
		return batch, false
	}

	deadline := time.NewTimer(interval)
	defer deadline.Stop()
	for len(batch) < max {
		select {
		case ev, ok := <-b.events:
			if !ok {
				return batch, false
			}
			batch = append(batch, ev)
		case <-deadline.C:
			return batch, true
		case <-ctx.Done():
			return batch, false
		}
	}
	return batch, true
}

// drainNonBlocking collects up to max events currently queued without
// waiting for more to arrive. Used once the writer has been told to stop,
// to flush whatever is still sitting in the channel before it returns.
func (b *Buffer) drainNonBlocking(max int) []Event {
	var batch []Event
	for len(batch) < max {
		select {
		case ev, ok := <-b.events:
			if !ok {
				return batch
			}
			batch = append(batch, ev)
		default:
			return batch
		}
	}
	return batch
}
