package internal

import (
	"container/heap"
	"time"
)

// DueItem is one entry in a DueHeap: an opaque key ordered by When.
type DueItem struct {
	Key  any
	When time.Time
}

// dueSlice implements container/heap.Interface ordered by When ascending.
type dueSlice []DueItem

func (s dueSlice) Len() int            { return len(s) }
func (s dueSlice) Less(i, j int) bool  { return s[i].When.Before(s[j].When) }
func (s dueSlice) Swap(i, j int)       { s[i], s[j] = s[j], s[i] }
func (s *dueSlice) Push(x any)         { *s = append(*s, x.(DueItem)) }
func (s *dueSlice) Pop() any {
	old := *s
	n := len(old)
	item := old[n-1]
	*s = old[:n-1]
	return item
}

// DueHeap is a min-heap of DueItem ordered by When, used by the Scheduler
// to track the next instant any registered schedule.Entry must fire.
//
// Not safe for concurrent use; the Scheduler serializes access on its own
// goroutine.
type DueHeap struct {
	items dueSlice
}

// NewDueHeap returns an empty DueHeap.
func NewDueHeap() *DueHeap {
	h := &DueHeap{}
	heap.Init(&h.items)
	return h
}

// Push adds an item.
func (h *DueHeap) Push(key any, when time.Time) {
	heap.Push(&h.items, DueItem{Key: key, When: when})
}

// Peek returns the earliest item without removing it. ok is false if the
// heap is empty.
func (h *DueHeap) Peek() (item DueItem, ok bool) {
	if len(h.items) == 0 {
		return DueItem{}, false
	}
	return h.items[0], true
}

// Pop removes and returns the earliest item. ok is false if the heap is
// empty.
func (h *DueHeap) Pop() (item DueItem, ok bool) {
	if len(h.items) == 0 {
		return DueItem{}, false
	}
	return heap.Pop(&h.items).(DueItem), true
}

// Len returns the number of items in the heap.
func (h *DueHeap) Len() int { return len(h.items) }
