package raft

import "io"

// ServerID uniquely identifies a server for all time; comparisons are
// case-insensitive (see normalizeID).
type ServerID string

// AppendEntriesRequest carries a batch of log entries (possibly empty, for a
// pure heartbeat) from the leader to one follower.
type AppendEntriesRequest struct {
	Term         uint64
	LeaderID     ServerID
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []*LogEntry
	LeaderCommit uint64
	From         ServerID
}

// AppendEntriesResponse is a follower's reply to AppendEntriesRequest.
type AppendEntriesResponse struct {
	CurrentTerm uint64
	Success     bool
	LastLogIndex uint64
	Source       ServerID
	LeaderID     ServerID
}

// CanInstallSnapshotRequest probes a follower before the (potentially slow)
// snapshot stream is started.
type CanInstallSnapshotRequest struct {
	From     ServerID
	LeaderID ServerID
	Index    uint64
	Term     uint64
}

// CanInstallSnapshotResponse is a follower's reply to the probe.
type CanInstallSnapshotResponse struct {
	From                  ServerID
	Success               bool
	IsCurrentlyInstalling bool
	Index                 uint64
	Term                  uint64
}

// InstallSnapshotRequest is the header sent immediately before the snapshot
// byte stream produced by the state machine's snapshot writer.
type InstallSnapshotRequest struct {
	Term              uint64
	LastIncludedIndex uint64
	LastIncludedTerm  uint64
	From              ServerID
}

// RequestVoteRequest shares the RPC envelope with the Leader's messages but
// is originated by a Candidate; the Leader core never sends one, only
// forwards knowledge of a higher term when it appears in an
// AppendEntriesResponse.
type RequestVoteRequest struct {
	Term         uint64
	CandidateID  ServerID
	LastLogIndex uint64
	LastLogTerm  uint64
}

// RequestVoteResponse completes the envelope described in spec §6.
type RequestVoteResponse struct {
	Term    uint64
	Granted bool
}

// RPC pairs an inbound command with the means to answer it, mirroring the
// teacher's transport-agnostic RPC envelope (transport.go). Reader is set
// only for an inbound InstallSnapshotRequest, positioned at the start of the
// streamed snapshot bytes.
type RPC struct {
	Command  interface{}
	Reader   io.Reader
	RespChan chan<- RPCResponse
}

// RPCResponse captures both a response and a potential error.
type RPCResponse struct {
	Response interface{}
	Error    error
}

// Respond answers an RPC exactly once.
func (r RPC) Respond(resp interface{}, err error) {
	r.RespChan <- RPCResponse{Response: resp, Error: err}
}
