package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogCache_HitAndMiss(t *testing.T) {
	store := newInmemLog()
	cache := newLogCache(2, store)

	idx1, err := cache.AppendToLeaderLog(1, KindClient, []byte("a"))
	require.NoError(t, err)
	idx2, err := cache.AppendToLeaderLog(1, KindClient, []byte("b"))
	require.NoError(t, err)
	idx3, err := cache.AppendToLeaderLog(1, KindClient, []byte("c"))
	require.NoError(t, err)

	// Capacity is 2, so idx1 should have been evicted from the ring buffer
	// but must still be readable through the backing store.
	e1, err := cache.GetLogEntry(idx1)
	require.NoError(t, err)
	require.Equal(t, []byte("a"), e1.Payload)

	e2, err := cache.GetLogEntry(idx2)
	require.NoError(t, err)
	require.Equal(t, []byte("b"), e2.Payload)

	e3, err := cache.GetLogEntry(idx3)
	require.NoError(t, err)
	require.Equal(t, []byte("c"), e3.Payload)
}

func TestLogCache_DelegatesLastLogEntryAndSnapshot(t *testing.T) {
	store := newInmemLog()
	cache := newLogCache(4, store)

	_, err := cache.AppendToLeaderLog(1, KindClient, nil)
	require.NoError(t, err)

	last, err := cache.LastLogEntry()
	require.NoError(t, err)
	require.NotNil(t, last)

	store.setLastSnapshot(&SnapshotMeta{Index: 5, Term: 1})
	meta, err := cache.GetLastSnapshot()
	require.NoError(t, err)
	require.Equal(t, uint64(5), meta.Index)
}
