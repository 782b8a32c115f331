package orchestrator

import (
	"container/heap"
	"sort"
)

type queueEntry struct {
	item WorkItem
	seq  int64
}

// workQueue is a heap ordered by priority, highest first, then by sequence.
type workQueue []*queueEntry

func (q workQueue) Len() int { return len(q) }

func (q workQueue) Less(i, j int) bool {
	if q[i].item.Priority != q[j].item.Priority {
		return q[i].item.Priority > q[j].item.Priority
	}
	return q[i].seq < q[j].seq
}

func (q workQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *workQueue) Push(x any) { *q = append(*q, x.(*queueEntry)) }

func (q *workQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

// pending is the FIFO-within-priority queue with a front for deferred items.
type pending struct {
	heap  workQueue
	next  int64
	front int64
}

func (p *pending) push(item WorkItem) {
	p.next++
	heap.Push(&p.heap, &queueEntry{item: item, seq: p.next})
}

// pushFront puts item ahead of everything else of its priority.
func (p *pending) pushFront(item WorkItem) {
	p.front--
	heap.Push(&p.heap, &queueEntry{item: item, seq: p.front})
}

func (p *pending) pop() (WorkItem, bool) {
	if p.heap.Len() == 0 {
		return WorkItem{}, false
	}
	return heap.Pop(&p.heap).(*queueEntry).item, true
}

func (p *pending) peek() (WorkItem, bool) {
	if p.heap.Len() == 0 {
		return WorkItem{}, false
	}
	return p.heap[0].item, true
}

func (p *pending) len() int { return p.heap.Len() }

// items returns the queue contents in pop order.
func (p *pending) items() []WorkItem {
	sorted := make(workQueue, len(p.heap))
	copy(sorted, p.heap)
	sort.Slice(sorted, func(i, j int) bool { return sorted.Less(i, j) })
	out := make([]WorkItem, len(sorted))
	for i, e := range sorted {
		out[i] = e.item
	}
	return out
}
