package raft

import "github.com/google/uuid"

// CompletionHandle is the promise a submitted Command carries. It is
// resolved exactly once: with a nil error when the command's assigned log
// index is observed committed (Pending-Command Queue drain), or with an
// error when the enclosing role machine rejects it on step-down.
//
// This is the direct descendant of the teacher's logFuture (future.go),
// generalized so the Leader core never has to know about *Raft or *FSM.
type CompletionHandle struct {
	errCh chan error
	err   error
}

// NewCompletionHandle allocates a handle ready to be attached to a Command.
func NewCompletionHandle() *CompletionHandle {
	return &CompletionHandle{errCh: make(chan error, 1)}
}

// Error blocks until the handle is resolved and returns the result.
// Safe to call more than once.
func (c *CompletionHandle) Error() error {
	if c.errCh == nil {
		return c.err
	}
	c.err = <-c.errCh
	c.errCh = nil
	return c.err
}

// complete resolves the handle. Only the Pending-Command Queue or the
// enclosing role machine may call this, and only once.
func (c *CompletionHandle) complete(err error) {
	if c.errCh == nil {
		return
	}
	c.err = err
	c.errCh <- err
	close(c.errCh)
	c.errCh = nil
}

// Command is a client submission awaiting a log position, per spec §3.
// RequestID is an ambient addition: a caller-supplied correlation ID
// (github.com/google/uuid) so structured log lines and metrics can be tied
// to one client request across append, replication, and commit.
type Command struct {
	Payload      []byte
	Kind         LogKind
	RequestID    uuid.UUID
	AssignedIndex uint64
	Completion   *CompletionHandle
}
