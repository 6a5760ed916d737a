package raft

import (
	"io"
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

// newRaftLogger builds an hclog.Logger with this module's naming and level
// conventions, for callers that don't have a Config in hand yet (mainly
// cmd/raftd and tests). Config.logger (config.go) is the entry point every
// collaborator actually uses once constructed.
func newRaftLogger(w io.Writer, level hclog.Level) hclog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "raft",
		Level:  level,
		Output: w,
	})
}

// newTestLogger returns a Debug-level logger tagged for a specific test
// server, following the teacher's NewRaftLoggerForTesting convention
// (logger.go) of distinguishing multiple in-process instances by name.
func newTestLogger(w io.Writer, tag string) hclog.Logger {
	return newRaftLogger(w, hclog.Debug).Named(tag)
}
