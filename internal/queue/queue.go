// Package queue provides a thread-safe generic priority queue. Lower
// priority values dequeue first.
package queue

import (
	"container/heap"
	"sync"
)

type item[T any] struct {
	value    T
	priority int
	index    int
}

type itemHeap[T any] []*item[T]

func (h itemHeap[T]) Len() int { return len(h) }

func (h itemHeap[T]) Less(i, j int) bool {
	return h[i].priority < h[j].priority
}

func (h itemHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap[T]) Push(x any) {
	it := x.(*item[T])
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// PriorityQueue orders values by an integer priority, smallest first.
type PriorityQueue[T any] struct {
	heap itemHeap[T]
	mu   sync.Mutex
}

func NewPriorityQueue[T any]() *PriorityQueue[T] {
	pq := &PriorityQueue[T]{heap: make(itemHeap[T], 0)}
	heap.Init(&pq.heap)
	return pq
}

func (pq *PriorityQueue[T]) Len() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return pq.heap.Len()
}

func (pq *PriorityQueue[T]) Enqueue(value T, priority int) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	heap.Push(&pq.heap, &item[T]{value: value, priority: priority})
}

// Dequeue removes and returns the lowest-priority-value item. The second
// return is false when the queue is empty.
func (pq *PriorityQueue[T]) Dequeue() (T, bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	if pq.heap.Len() == 0 {
		var zero T
		return zero, false
	}
	return heap.Pop(&pq.heap).(*item[T]).value, true
}

// DequeueAll drains the queue in priority order.
func (pq *PriorityQueue[T]) DequeueAll() []T {
	items := make([]T, 0, pq.Len())
	for {
		v, ok := pq.Dequeue()
		if !ok {
			return items
		}
		items = append(items, v)
	}
}
