package raft

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-msgpack/v2/codec"
)

const (
	rpcAppendEntries uint8 = iota
	rpcCanInstallSnapshot
	rpcInstallSnapshot
	rpcRequestVote
)

// ErrTransportShutdown is returned by any tcpTransport method invoked after
// Close.
var ErrTransportShutdown = errors.New("raft: transport shutdown")

// tcpTransport is a condensed, ServerID-addressed descendant of the
// teacher's NetworkTransport (net_transport.go): a byte-tagged, MsgPack
// framed protocol over pooled TCP connections. It folds NetworkTransport
// and its StreamLayer abstraction into one type since this module only
// ever runs over plain TCP, never TLS.
type tcpTransport struct {
	local ServerID

	connPoolLock sync.Mutex
	connPool     map[ServerID][]*tcpConn
	maxPool      int

	peerAddr     map[ServerID]string
	peerAddrLock sync.RWMutex

	consumeCh chan RPC

	listener net.Listener
	logger   hclog.Logger
	timeout  time.Duration

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex
}

type tcpConn struct {
	target ServerID
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	dec    *codec.Decoder
	enc    *codec.Encoder
}

func (c *tcpConn) Release() error {
	return c.conn.Close()
}

// newTCPTransport binds bindAddr and starts accepting connections. The
// transport starts with no peer addresses; each one is added with
// registerPeer.
func newTCPTransport(local ServerID, bindAddr string, maxPool int, timeout time.Duration, logger hclog.Logger) (*tcpTransport, error) {
	listener, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = hclog.Default().Named("raft-net")
	}
	t := &tcpTransport{
		local:      normalizeID(local),
		connPool:   make(map[ServerID][]*tcpConn),
		maxPool:    maxPool,
		peerAddr:   make(map[ServerID]string),
		consumeCh:  make(chan RPC, 64),
		listener:   listener,
		logger:     logger,
		timeout:    timeout,
		shutdownCh: make(chan struct{}),
	}
	go t.listen()
	return t, nil
}

// registerPeer records the dial address for a ServerID discovered through a
// topology change. Both ends of a connection must know each other's
// address; a real deployment learns these from the Topology's Server
// entries rather than out of band.
func (t *tcpTransport) registerPeer(id ServerID, addr string) {
	t.peerAddrLock.Lock()
	defer t.peerAddrLock.Unlock()
	t.peerAddr[normalizeID(id)] = addr
}

func (t *tcpTransport) Consumer() <-chan RPC {
	return t.consumeCh
}

func (t *tcpTransport) LocalAddr() ServerID {
	return t.local
}

func (t *tcpTransport) Close() error {
	t.shutdownLock.Lock()
	defer t.shutdownLock.Unlock()
	if !t.shutdown {
		close(t.shutdownCh)
		t.listener.Close()
		t.shutdown = true
	}
	return nil
}

func (t *tcpTransport) getPooledConn(target ServerID) *tcpConn {
	t.connPoolLock.Lock()
	defer t.connPoolLock.Unlock()
	conns, ok := t.connPool[target]
	if !ok || len(conns) == 0 {
		return nil
	}
	var conn *tcpConn
	num := len(conns)
	conn, conns[num-1] = conns[num-1], nil
	t.connPool[target] = conns[:num-1]
	return conn
}

func (t *tcpTransport) getConn(target ServerID) (*tcpConn, error) {
	if conn := t.getPooledConn(target); conn != nil {
		return conn, nil
	}

	t.peerAddrLock.RLock()
	addr, ok := t.peerAddr[normalizeID(target)]
	t.peerAddrLock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("raft: no known address for peer %q", target)
	}

	conn, err := net.DialTimeout("tcp", addr, t.timeout)
	if err != nil {
		return nil, err
	}
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	return &tcpConn{
		target: target,
		conn:   conn,
		r:      r,
		w:      w,
		dec:    codec.NewDecoder(r, msgpackHandle),
		enc:    codec.NewEncoder(w, msgpackHandle),
	}, nil
}

func (t *tcpTransport) returnConn(conn *tcpConn) {
	t.connPoolLock.Lock()
	defer t.connPoolLock.Unlock()
	conns := t.connPool[conn.target]
	if len(conns) < t.maxPool {
		t.connPool[conn.target] = append(conns, conn)
	} else {
		conn.Release()
	}
}

func rpcTypeFor(msg interface{}) (uint8, error) {
	switch msg.(type) {
	case *AppendEntriesRequest:
		return rpcAppendEntries, nil
	case *CanInstallSnapshotRequest:
		return rpcCanInstallSnapshot, nil
	case *RequestVoteRequest:
		return rpcRequestVote, nil
	default:
		return 0, fmt.Errorf("raft: unsupported message type %T for Send", msg)
	}
}

// Send implements Transport.Send: dial (or reuse) a pooled connection,
// write the type byte and MsgPack body, and discard the reply. Only
// *AppendEntriesRequest, *CanInstallSnapshotRequest and *RequestVoteRequest
// are accepted; any other message, the response types included, is rejected
// with an error, and handleCommand decodes only those request types.
func (t *tcpTransport) Send(peer ServerID, msg interface{}) error {
	rpcType, err := rpcTypeFor(msg)
	if err != nil {
		return err
	}

	conn, err := t.getConn(peer)
	if err != nil {
		return err
	}

	if t.timeout > 0 {
		conn.conn.SetDeadline(time.Now().Add(t.timeout))
	}

	if err := conn.w.WriteByte(rpcType); err != nil {
		conn.Release()
		return err
	}
	if err := conn.enc.Encode(msg); err != nil {
		conn.Release()
		return err
	}
	if err := conn.w.Flush(); err != nil {
		conn.Release()
		return err
	}

	t.returnConn(conn)
	return nil
}

// Stream sends the InstallSnapshot header followed by the full snapshot
// byte stream, closing the connection afterward per the teacher's own
// comment in net_transport.go: "that socket is not re-used as the
// connection state is not known if there is an error."
func (t *tcpTransport) Stream(ctx context.Context, peer ServerID, header interface{}, body io.WriterTo) error {
	conn, err := t.getConn(peer)
	if err != nil {
		return err
	}
	defer conn.Release()

	if dl, ok := ctx.Deadline(); ok {
		conn.conn.SetDeadline(dl)
	}

	if err := conn.w.WriteByte(rpcInstallSnapshot); err != nil {
		return err
	}
	if err := conn.enc.Encode(header); err != nil {
		return err
	}
	if _, err := body.WriteTo(conn.w); err != nil {
		return err
	}
	return conn.w.Flush()
}

func (t *tcpTransport) listen() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.shutdownCh:
				return
			default:
			}
			t.logger.Error("failed to accept connection", "error", err)
			continue
		}
		go t.handleConn(conn)
	}
}

func (t *tcpTransport) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	dec := codec.NewDecoder(r, msgpackHandle)

	for {
		if err := t.handleCommand(r, dec); err != nil {
			if err != io.EOF {
				t.logger.Error("failed to decode incoming command", "error", err)
			}
			return
		}
	}
}

func (t *tcpTransport) handleCommand(r *bufio.Reader, dec *codec.Decoder) error {
	rpcType, err := r.ReadByte()
	if err != nil {
		return err
	}

	respCh := make(chan RPCResponse, 1)
	rpc := RPC{RespChan: respCh}

	switch rpcType {
	case rpcAppendEntries:
		var req AppendEntriesRequest
		if err := dec.Decode(&req); err != nil {
			return err
		}
		rpc.Command = &req
	case rpcCanInstallSnapshot:
		var req CanInstallSnapshotRequest
		if err := dec.Decode(&req); err != nil {
			return err
		}
		rpc.Command = &req
	case rpcRequestVote:
		var req RequestVoteRequest
		if err := dec.Decode(&req); err != nil {
			return err
		}
		rpc.Command = &req
	case rpcInstallSnapshot:
		var req InstallSnapshotRequest
		if err := dec.Decode(&req); err != nil {
			return err
		}
		rpc.Command = &req
		rpc.Reader = r
	default:
		return fmt.Errorf("raft: unknown rpc type %d", rpcType)
	}

	select {
	case t.consumeCh <- rpc:
	case <-t.shutdownCh:
		return ErrTransportShutdown
	}

	if rpcType == rpcInstallSnapshot {
		// The InstallSnapshot body was consumed straight from r by whoever
		// received rpc; there is no separate reply to write on this
		// connection, matching the one-shot-socket comment above.
		<-respCh
		return nil
	}

	// For everything else this module treats replies as ordinary outbound
	// Sends dispatched by the Engine, so this connection carries no reply;
	// drop it once the inbound command has been dispatched.
	<-respCh
	return nil
}
