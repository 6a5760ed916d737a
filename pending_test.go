package raft

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestCommand(index uint64) *Command {
	return &Command{
		Kind:          KindClient,
		AssignedIndex: index,
		Completion:    NewCompletionHandle(),
	}
}

// TestPendingQueue_S6_NopNotEnqueued mirrors scenario S6: the leadership-start
// Nop is only enqueued if it carries a completion, which it typically does
// not.
func TestPendingQueue_S6_NopNotEnqueued(t *testing.T) {
	q := newPendingQueue()
	nop := &Command{Kind: KindNop, AssignedIndex: 1}
	q.enqueue(nop)
	require.Equal(t, 0, q.len())
}

func TestPendingQueue_CompleteUpTo_FIFOOrder(t *testing.T) {
	q := newPendingQueue()
	a, b, c := newTestCommand(3), newTestCommand(5), newTestCommand(9)
	q.enqueue(a)
	q.enqueue(b)
	q.enqueue(c)

	q.completeUpTo(5)

	require.NoError(t, a.Completion.Error())
	require.NoError(t, b.Completion.Error())
	require.Equal(t, 1, q.len())

	q.completeUpTo(9)
	require.NoError(t, c.Completion.Error())
	require.Equal(t, 0, q.len())
}

func TestPendingQueue_CompleteUpTo_StopsAtGap(t *testing.T) {
	q := newPendingQueue()
	a, b := newTestCommand(3), newTestCommand(10)
	q.enqueue(a)
	q.enqueue(b)

	q.completeUpTo(5)
	require.Equal(t, 1, q.len(), "b should remain since its assignedIndex exceeds N")
}

// TestPendingQueue_ConcurrentEnqueueAndComplete mirrors §5's "response
// handling may execute concurrently with the heartbeat driver and with each
// other" by running Submit-side enqueues against completeUpTo drains on
// separate goroutines, the same shape leader.go's Submit and
// attemptCommitAdvance run in. Run with -race to catch a regression of the
// mutex guarding pendingQueue.entries.
func TestPendingQueue_ConcurrentEnqueueAndComplete(t *testing.T) {
	q := newPendingQueue()

	const n = 200
	cmds := make([]*Command, n)
	for i := range cmds {
		cmds[i] = newTestCommand(uint64(i + 1))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, c := range cmds {
			q.enqueue(c)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.completeUpTo(uint64(n))
		}
	}()
	wg.Wait()

	q.completeUpTo(uint64(n))
	require.Equal(t, 0, q.len())
	for _, c := range cmds {
		require.NoError(t, c.Completion.Error())
	}
}

func TestPendingQueue_Abandon(t *testing.T) {
	q := newPendingQueue()
	a := newTestCommand(1)
	q.enqueue(a)

	q.abandon(ErrLeadershipLost)
	require.ErrorIs(t, a.Completion.Error(), ErrLeadershipLost)
	require.Equal(t, 0, q.len())
}
