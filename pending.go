package raft

import (
	"container/list"
	"sync"
)

// pendingQueue is Component C6, an ordered FIFO of Commands whose
// assignedIndex has not yet been observed committed. It is a strict
// index-ordered queue rather than the teacher's map-keyed inflight
// (inflight.go): the Commit Calculator here reports one monotonically
// increasing index for the whole cluster rather than a per-entry commit
// count, so draining head-first is sufficient and cheaper than a map.
//
// enqueue runs on the client goroutine calling Submit (leader.go:108) while
// completeUpTo and abandon run on whatever goroutine is driving response
// handling (leader.go, called concurrently with the heartbeat driver per
// §5); guard entries the same way progressTable guards its map.
type pendingQueue struct {
	mu      sync.Mutex
	entries *list.List // of *Command
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{entries: list.New()}
}

// enqueue records cmd as awaiting commit. Per §4.6, only Commands carrying
// a completion handle are tracked; fire-and-forget commands (an empty Nop,
// most of the time) have nothing waiting on them.
func (q *pendingQueue) enqueue(cmd *Command) {
	if cmd.Completion == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries.PushBack(cmd)
}

// completeUpTo resolves, in order, every pending command whose
// AssignedIndex is at most n, satisfying testable property 5 (strictly
// increasing AssignedIndex order).
func (q *pendingQueue) completeUpTo(n uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		front := q.entries.Front()
		if front == nil {
			return
		}
		cmd := front.Value.(*Command)
		if cmd.AssignedIndex > n {
			return
		}
		q.entries.Remove(front)
		cmd.Completion.complete(nil)
	}
}

// abandon resolves every pending command with err, used when the enclosing
// role machine rejects outstanding work on step-down (§3 Lifecycle:
// "unresolved pending-command completions are left for ... the step-down
// handler to reject").
func (q *pendingQueue) abandon(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		front := q.entries.Front()
		if front == nil {
			return
		}
		cmd := front.Value.(*Command)
		q.entries.Remove(front)
		cmd.Completion.complete(err)
	}
}

// len reports the number of unresolved pending commands, for tests and
// metrics.
func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries.Len()
}
