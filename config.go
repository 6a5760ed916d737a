package raft

import (
	"time"

	hclog "github.com/hashicorp/go-hclog"
)

// Config carries the options the Leader core consumes (spec §6): the
// heartbeat/replication cadence and the AppendEntries batch cap. Election
// and candidate timing live outside this core's scope and have no fields
// here.
type Config struct {
	// LocalID is this server's identity. LeaderState does not read it: the
	// `self`/`from` identity in outbound messages and the key skipped when
	// fanning out both come from Engine.Name().
	LocalID ServerID

	// MessageTimeout bounds one election timeout. The heartbeat period is
	// MessageTimeout/6 (§4.2): "the divisor six guarantees roughly six
	// heartbeats per election timeout".
	MessageTimeout time.Duration

	// MaxEntriesPerRequest caps the batch size of one AppendEntriesRequest.
	MaxEntriesPerRequest uint32

	// Logger receives structured Leader-core log lines. If nil, a default
	// hclog.Logger writing to os.Stderr at Info level is used.
	Logger hclog.Logger
}

// DefaultConfig returns sane defaults for a single-datacenter deployment,
// mirroring the teacher's DefaultConfig (config.go).
func DefaultConfig() *Config {
	return &Config{
		MessageTimeout:       1 * time.Second,
		MaxEntriesPerRequest: 64,
	}
}

func (c *Config) logger() hclog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return hclog.Default().Named("raft")
}

func (c *Config) heartbeatInterval() time.Duration {
	return c.MessageTimeout / 6
}
