package raft

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// inmemTransport implements Transport entirely in memory, for tests and for
// the reference Engine's single-process demos. It is a ServerID-addressed
// descendant of the teacher's InmemTransport (inmem_transport.go): the
// Connect/Disconnect peer-routing table is unchanged in spirit, but the RPC
// call surface is the fire-and-forget Send/Stream pair described in
// transport.go rather than typed AppendEntries/RequestVote methods.
type inmemTransport struct {
	mu         sync.RWMutex
	consumerCh chan RPC
	localAddr  ServerID
	peers      map[ServerID]*inmemTransport
	linkHooks  map[ServerID]linkHook
}

// linkHook lets a test simulate an unreliable link to one peer: delay
// models reordering/latency (Send delivers from a goroutine after delay
// instead of synchronously), drop simulates a lost message entirely. This
// is what exercises §5's "the transport may reorder or delay messages
// arbitrarily, but the model above already treats each message as
// idempotent" note without needing a second Transport implementation.
type linkHook struct {
	delay time.Duration
	drop  bool
}

// newInmemTransport constructs a transport bound to localAddr with no peers
// connected yet.
func newInmemTransport(localAddr ServerID) *inmemTransport {
	return &inmemTransport{
		consumerCh: make(chan RPC, 16),
		localAddr:  normalizeID(localAddr),
		peers:      make(map[ServerID]*inmemTransport),
		linkHooks:  make(map[ServerID]linkHook),
	}
}

// SetLinkHook installs delay/drop behavior for every message this transport
// sends to peer, until cleared with ClearLinkHook.
func (i *inmemTransport) SetLinkHook(peer ServerID, delay time.Duration, drop bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.linkHooks[normalizeID(peer)] = linkHook{delay: delay, drop: drop}
}

// ClearLinkHook restores normal synchronous delivery to peer.
func (i *inmemTransport) ClearLinkHook(peer ServerID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.linkHooks, normalizeID(peer))
}

func (i *inmemTransport) linkHookFor(peer ServerID) (linkHook, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	h, ok := i.linkHooks[normalizeID(peer)]
	return h, ok
}

func (i *inmemTransport) Consumer() <-chan RPC {
	return i.consumerCh
}

func (i *inmemTransport) LocalAddr() ServerID {
	return i.localAddr
}

func (i *inmemTransport) Send(peer ServerID, msg interface{}) error {
	i.mu.RLock()
	target, ok := i.peers[normalizeID(peer)]
	i.mu.RUnlock()
	if !ok {
		return fmt.Errorf("raft: no route to peer %q", peer)
	}

	if hook, ok := i.linkHookFor(peer); ok {
		if hook.drop {
			return nil
		}
		if hook.delay > 0 {
			go i.deliver(target, msg, hook.delay)
			return nil
		}
	}

	return i.deliverNow(target, msg)
}

func (i *inmemTransport) deliverNow(target *inmemTransport, msg interface{}) error {
	respCh := make(chan RPCResponse, 1)
	select {
	case target.consumerCh <- RPC{Command: msg, RespChan: respCh}:
	default:
		return fmt.Errorf("raft: peer consumer queue full")
	}
	return nil
}

// deliver is used for the delayed/reordering path: it runs in its own
// goroutine so concurrent delayed sends to the same peer can complete out of
// submission order, matching §5's note that the transport may reorder
// messages.
func (i *inmemTransport) deliver(target *inmemTransport, msg interface{}, delay time.Duration) {
	time.Sleep(delay)
	respCh := make(chan RPCResponse, 1)
	select {
	case target.consumerCh <- RPC{Command: msg, RespChan: respCh}:
	default:
	}
}

// Stream copies body's bytes to the target's consumer as a single
// InstallSnapshot RPC command carrying header and the buffered payload.
// A real deployment uses tcpTransport for this; inmemTransport buffers the
// whole body since tests never exercise multi-gigabyte snapshots.
func (i *inmemTransport) Stream(ctx context.Context, peer ServerID, header interface{}, body io.WriterTo) error {
	i.mu.RLock()
	target, ok := i.peers[normalizeID(peer)]
	i.mu.RUnlock()
	if !ok {
		return fmt.Errorf("raft: no route to peer %q", peer)
	}

	var buf bytes.Buffer
	if _, err := body.WriteTo(&buf); err != nil {
		return err
	}

	respCh := make(chan RPCResponse, 1)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case target.consumerCh <- RPC{Command: header, Reader: bytes.NewReader(buf.Bytes()), RespChan: respCh}:
	}
	return nil
}

func (i *inmemTransport) Close() error {
	return nil
}

// Connect wires this transport to trans so it can route to trans's peer ID.
func (i *inmemTransport) Connect(peer ServerID, trans *inmemTransport) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.peers[normalizeID(peer)] = trans
}

// Disconnect removes a route.
func (i *inmemTransport) Disconnect(peer ServerID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.peers, normalizeID(peer))
}

// DisconnectAll clears every route, simulating a full network partition.
func (i *inmemTransport) DisconnectAll() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.peers = make(map[ServerID]*inmemTransport)
}
