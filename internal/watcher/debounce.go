package watcher

import (
	"container/heap"
	"time"
)

// deadlineQueue orders pending directories by the time their quiet period
// ends. Refreshing a directory moves it back in the queue.
type deadlineQueue struct {
	items []*deadline
	index map[string]*deadline
	seq   uint64
}

type deadline struct {
	dir string
	at  time.Time
	seq uint64 // tie-break: earlier activity first
	pos int
}

func newDeadlineQueue() *deadlineQueue {
	return &deadlineQueue{index: make(map[string]*deadline)}
}

// Touch sets dir's deadline to at, inserting it when absent.
func (q *deadlineQueue) Touch(dir string, at time.Time) {
	q.seq++
	if d, ok := q.index[dir]; ok {
		d.at = at
		d.seq = q.seq
		heap.Fix(q, d.pos)
		return
	}
	d := &deadline{dir: dir, at: at, seq: q.seq}
	q.index[dir] = d
	heap.Push(q, d)
}

// PopDue removes and returns, in deadline order, every directory whose
// deadline is at or before now.
func (q *deadlineQueue) PopDue(now time.Time) []string {
	var due []string
	for len(q.items) > 0 && !q.items[0].at.After(now) {
		d := heap.Pop(q).(*deadline)
		delete(q.index, d.dir)
		due = append(due, d.dir)
	}
	return due
}

// Reset empties the queue.
func (q *deadlineQueue) Reset() {
	q.items = nil
	q.index = make(map[string]*deadline)
}

// heap.Interface

func (q *deadlineQueue) Len() int { return len(q.items) }

func (q *deadlineQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.at.Equal(b.at) {
		return a.seq < b.seq
	}
	return a.at.Before(b.at)
}

func (q *deadlineQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].pos = i
	q.items[j].pos = j
}

func (q *deadlineQueue) Push(x any) {
	d := x.(*deadline)
	d.pos = len(q.items)
	q.items = append(q.items, d)
}

func (q *deadlineQueue) Pop() any {
	old := q.items
	n := len(old)
	d := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	d.pos = -1
	return d
}
