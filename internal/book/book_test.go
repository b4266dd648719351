package book

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oakmarket/exchange/internal/common"
)

func TestPeekBest_PricePriority(t *testing.T) {
	b := New()
	b.Insert(1, 100, "PLTR", common.Buy, 24.00, 10)
	b.Insert(2, 100, "PLTR", common.Buy, 25.00, 10)
	b.Insert(3, 100, "PLTR", common.Buy, 24.50, 10)

	top := b.PeekBest(common.Buy)
	assert.Equal(t, 25.00, top.Price, "highest bid should be on top")
}

func TestPeekBest_TimePriorityOnTie(t *testing.T) {
	b := New()
	first := b.Insert(1, 100, "PLTR", common.Sell, 10.00, 5)
	b.Insert(2, 101, "PLTR", common.Sell, 10.00, 5)

	top := b.PeekBest(common.Sell)
	assert.Equal(t, first.OrderID, top.OrderID, "earliest arrival wins a price tie")
}

func TestAsksMinHeap(t *testing.T) {
	b := New()
	b.Insert(1, 1, "MP", common.Sell, 32.00, 7)
	b.Insert(2, 1, "MP", common.Sell, 30.00, 7)
	b.Insert(3, 1, "MP", common.Sell, 31.00, 7)

	top := b.PeekBest(common.Sell)
	assert.Equal(t, 30.00, top.Price, "lowest ask should be on top")
}

func TestMarkCancelled_SkipOnPop(t *testing.T) {
	b := New()
	b.Insert(1, 1, "DM", common.Buy, 14.00, 18)
	b.Insert(2, 1, "DM", common.Buy, 14.00, 2)

	assert.True(t, b.MarkCancelled(1))

	top := b.PeekBest(common.Buy)
	assert.Equal(t, uint64(2), top.OrderID, "cancelled top entry must be skipped, not returned")

	_, ok := b.Find(1)
	assert.False(t, ok, "a cancelled entry is no longer findable")
}

func TestMarkCancelled_UnknownOrder(t *testing.T) {
	b := New()
	assert.False(t, b.MarkCancelled(999))
}

func TestPopTopThenReinsertPreservesPriority(t *testing.T) {
	b := New()
	b.Insert(1, 1, "DM", common.Sell, 14.00, 10) // seq 1, earliest
	b.Insert(2, 2, "DM", common.Sell, 14.00, 10) // seq 2

	lifted := b.PopTop(common.Sell)
	assert.Equal(t, uint64(1), lifted.OrderID)

	top := b.PeekBest(common.Sell)
	assert.Equal(t, uint64(2), top.OrderID)

	b.Reinsert(lifted)
	top = b.PeekBest(common.Sell)
	assert.Equal(t, uint64(1), top.OrderID, "reinsert must restore original arrival priority")
}

func TestFindReturnsFalseForCancelledEntry(t *testing.T) {
	b := New()
	b.Insert(1, 1, "DM", common.Buy, 14.00, 10)
	b.MarkCancelled(1)
	_, ok := b.Find(1)
	assert.False(t, ok)
}

func TestLenAndSnapshotExcludeCancelled(t *testing.T) {
	b := New()
	b.Insert(1, 1, "DM", common.Buy, 14.00, 10)
	b.Insert(2, 1, "DM", common.Buy, 13.00, 10)
	b.MarkCancelled(2)

	assert.Equal(t, 1, b.Len(common.Buy))
	snap := b.Snapshot(common.Buy)
	assert.Len(t, snap, 1)
	assert.Equal(t, uint64(1), snap[0].OrderID)
}

func TestPeekBestEmptySide(t *testing.T) {
	b := New()
	assert.Nil(t, b.PeekBest(common.Buy))
	assert.Nil(t, b.PeekBest(common.Sell))
	assert.Nil(t, b.PopTop(common.Buy))
}
