package raft

import (
	"context"
	"io"
)

// Transport is the collaborator described in §6: the Leader core never
// dials a socket directly, it hands messages to a Transport and receives
// inbound RPCs (and their eventual peer responses) over Consumer(). This
// generalizes the teacher's net.Addr-keyed Transport (transport.go) to the
// ServerID-keyed addressing this module uses everywhere else.
//
// AppendEntries and RequestVote-style calls are fire-and-forget from the
// Leader core's point of view (§6 DESIGN NOTES): Send does not return the
// peer's reply. The reply arrives later as an inbound RPC on the same
// Consumer() channel any collaborator's transport reads from, and it is the
// enclosing Engine's message pump that recognizes the reply and routes it
// to the Response Handler (C4). This mirrors how the teacher's own
// Transport implementations are driven from raft.go's main loop rather than
// from within replication.go itself.
type Transport interface {
	// Send transmits msg to peer without waiting for a reply. msg is one of
	// *AppendEntriesRequest, *CanInstallSnapshotRequest, *RequestVoteRequest,
	// or a *…Response being relayed back to a caller.
	Send(peer ServerID, msg interface{}) error

	// Stream opens a long-lived byte pipe to peer, writes header (MsgPack
	// encoded) followed by the full contents of body, and returns once the
	// transfer completes or ctx is cancelled. This is how InstallSnapshot's
	// payload moves, since it can be arbitrarily large and must not block
	// behind Send's request/response framing.
	Stream(ctx context.Context, peer ServerID, header interface{}, body io.WriterTo) error

	// Consumer returns the channel of inbound RPCs: requests originated by
	// peers, and responses to this server's own outbound Sends.
	Consumer() <-chan RPC

	// LocalAddr identifies this transport's own endpoint.
	LocalAddr() ServerID

	// Close releases any resources (listeners, dialed connections) held by
	// the transport.
	Close() error
}
