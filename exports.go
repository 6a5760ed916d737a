package raft

import (
	"time"

	hclog "github.com/hashicorp/go-hclog"
)

// BoltLogStore is the exported handle around the bolt-backed PersistentLog,
// wrapped only so cmd/raftd can call Close on shutdown; PersistentLog itself
// has no Close method since an in-memory implementation has nothing to
// release.
type BoltLogStore struct {
	*boltLogStore
}

// NewBoltLogStore opens (creating if necessary) a durable PersistentLog at
// path, for use by cmd/raftd and any other out-of-module caller that cannot
// reach this package's unexported constructors directly.
func NewBoltLogStore(path string) (*BoltLogStore, error) {
	b, err := newBoltLogStore(path)
	if err != nil {
		return nil, err
	}
	return &BoltLogStore{boltLogStore: b}, nil
}

// NewInmemFSM constructs the demo key/value StateMachine, exported for
// cmd/raftd and single-process examples.
func NewInmemFSM() StateMachine {
	return newInmemFSM()
}

// TCPTransport is the exported handle cmd/raftd uses to both satisfy the
// Transport interface and register peer addresses learned from a topology,
// a capability outside Transport's own minimal surface (§6).
type TCPTransport struct {
	*tcpTransport
}

// NewTCPTransport binds bindAddr and returns a Transport implementation
// backed by pooled, MsgPack-framed TCP connections.
func NewTCPTransport(local ServerID, bindAddr string, maxPool int, timeout time.Duration, logger hclog.Logger) (*TCPTransport, error) {
	t, err := newTCPTransport(local, bindAddr, maxPool, timeout, logger)
	if err != nil {
		return nil, err
	}
	return &TCPTransport{tcpTransport: t}, nil
}

// RegisterPeer records the dial address for id, learned out of band (a
// config file, a topology entry) since this module's topology change driver
// is out of scope.
func (t *TCPTransport) RegisterPeer(id ServerID, addr string) {
	t.registerPeer(id, addr)
}
