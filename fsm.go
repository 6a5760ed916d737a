package raft

import "io"

// StateMachine is the collaborator described in §6: an applier of
// committed log entries that can also produce a point-in-time snapshot.
// This generalizes the teacher's minimal FSM (fsm.go), which only ever
// exposed ApplyLog, to the snapshot-writer contract the Replicator's
// snapshot two-phase handshake depends on.
type StateMachine interface {
	// ApplyLog applies one committed LogEntry. Called strictly in index
	// order by the Response Handler's commit-advance step.
	ApplyLog(entry *LogEntry)

	// GetSnapshotWriter acquires a consistent point-in-time view of the
	// state machine for streaming to a lagging peer. The returned
	// SnapshotWriter must be released exactly once via its Release method,
	// even if WriteSnapshot is never called.
	GetSnapshotWriter() (SnapshotWriter, error)
}

// SnapshotWriter is a scoped handle over one snapshot: its metadata is
// fixed at acquisition time, and WriteSnapshot may be invoked at most once,
// from the Replicator's pre-armed streamer closure (§4.3).
type SnapshotWriter interface {
	Index() uint64
	Term() uint64
	WriteSnapshot(w io.Writer) error
	Release()
}
