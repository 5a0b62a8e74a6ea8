package scheduler

import (
	"container/heap"
	"time"
)

type entry struct {
	cmd Command
	seq uint64
}

// commandHeap orders entries by due time, then arrival.
type commandHeap []entry

func (h commandHeap) Len() int { return len(h) }

func (h commandHeap) Less(i, j int) bool {
	if h[i].cmd.Due.Equal(h[j].cmd.Due) {
		return h[i].seq < h[j].seq
	}
	return h[i].cmd.Due.Before(h[j].cmd.Due)
}

func (h commandHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *commandHeap) Push(x interface{}) {
	*h = append(*h, x.(entry))
}

func (h *commandHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Queue is a min-heap of commands keyed by due time. It is owned by the
// application loop and not safe for concurrent use.
type Queue struct {
	items commandHeap
	seq   uint64
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	heap.Init(&q.items)
	return q
}

// Push schedules c at c.Due.
func (q *Queue) Push(c Command) {
	q.seq++
	heap.Push(&q.items, entry{cmd: c, seq: q.seq})
}

// Len returns the number of pending commands.
func (q *Queue) Len() int {
	return q.items.Len()
}

// Peek returns the earliest pending command.
func (q *Queue) Peek() (Command, bool) {
	if len(q.items) == 0 {
		return Command{}, false
	}
	return q.items[0].cmd, true
}

// Due removes and returns, in due-time order, every command due at or
// before now.
func (q *Queue) Due(now time.Time) []Command {
	var out []Command
	for len(q.items) > 0 && !q.items[0].cmd.Due.After(now) {
		out = append(out, heap.Pop(&q.items).(entry).cmd)
	}
	return out
}

// Clear drops every pending command.
func (q *Queue) Clear() {
	q.items = q.items[:0]
}
