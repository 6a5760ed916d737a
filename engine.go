package raft

import (
	"context"
	"time"
)

// Engine is the collaborator described in §6: the role machine that owns a
// LeaderState for the duration of one term of leadership. The Leader core
// never mutates term or role state directly, it always asks the Engine to
// do so, which is what lets a higher-term observation or heartbeat timeout
// be handled uniformly with the Candidate and Follower roles that live
// outside this module's scope.
type Engine interface {
	// Name identifies this server, used as the AppendEntriesRequest.From
	// and CanInstallSnapshotRequest.From field.
	Name() ServerID

	// MessageTimeout and MaxEntriesPerRequest report the Engine's own
	// values for these options. LeaderState does not call them: it reads
	// both from the *Config passed to NewLeaderState.
	MessageTimeout() time.Duration
	MaxEntriesPerRequest() uint32

	// CommitIndex returns the highest index this server has applied.
	CommitIndex() uint64

	// CurrentTopology returns the presently active topology. ChangingTopology
	// returns the second topology active during joint consensus, and false
	// if none is in progress.
	CurrentTopology() Topology
	ChangingTopology() (Topology, bool)

	// CancellationToken returns a context cancelled when this server's role
	// changes away from Leader, tying the heartbeat driver's lifetime to
	// the Engine's own (§5).
	CancellationToken() context.Context

	// UpdateCurrentTerm is invoked when a response reveals a higher term;
	// the Engine is responsible for persisting it and transitioning to
	// Follower.
	UpdateCurrentTerm(term uint64, leaderID ServerID)

	// ApplyCommits applies log entries (from, to] to the state machine and
	// advances the Engine's own CommitIndex.
	ApplyCommits(from, to uint64) error

	// Observe delivers an Observation synchronously to every registered
	// observer (§4.2/§4.3).
	Observe(obs Observation)
}
