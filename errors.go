package raft

import "errors"

var (
	// ErrNotLeader is returned when an operation can't be completed on a
	// follower or candidate node.
	ErrNotLeader = errors.New("node is not the leader")

	// ErrLeadershipLost is returned when a leader steps down (observes a
	// higher term, or is disposed) before a pending command is committed.
	ErrLeadershipLost = errors.New("leadership lost while committing log")

	// ErrLogNotFound is returned by a PersistentLog when the requested
	// index has never been stored, or has already been compacted away.
	ErrLogNotFound = errors.New("log not found")

	// ErrPipelineShutdown names a transport shut down under an in-flight
	// send. Nothing in this package returns it; tcpTransport reports its
	// own shutdown with ErrTransportShutdown.
	ErrPipelineShutdown = errors.New("transport is shutdown")

	// ErrSnapshotInFlight names a peer currently receiving a snapshot.
	// Nothing in this package returns it; the Replicator skips such a peer
	// without an error.
	ErrSnapshotInFlight = errors.New("snapshot install already in flight for peer")
)
