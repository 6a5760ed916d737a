package raft

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"
)

func TestInmemTransport_SendRoundTrip(t *testing.T) {
	defer leaktest.Check(t)()

	a := newInmemTransport("a")
	b := newInmemTransport("b")
	a.Connect("b", b)

	req := &AppendEntriesRequest{Term: 1, From: "a"}
	require.NoError(t, a.Send("b", req))

	select {
	case rpc := <-b.Consumer():
		got, ok := rpc.Command.(*AppendEntriesRequest)
		require.True(t, ok)
		require.Equal(t, uint64(1), got.Term)
		rpc.Respond(&AppendEntriesResponse{Success: true}, nil)
	case <-time.After(time.Second):
		t.Fatal("b never received the RPC")
	}
}

func TestInmemTransport_NoRouteReturnsError(t *testing.T) {
	a := newInmemTransport("a")
	err := a.Send("ghost", &AppendEntriesRequest{})
	require.Error(t, err)
}

func TestInmemTransport_DisconnectAll(t *testing.T) {
	a := newInmemTransport("a")
	b := newInmemTransport("b")
	a.Connect("b", b)
	a.DisconnectAll()

	err := a.Send("b", &AppendEntriesRequest{})
	require.Error(t, err)
}

func TestInmemTransport_Stream(t *testing.T) {
	defer leaktest.Check(t)()

	a := newInmemTransport("a")
	b := newInmemTransport("b")
	a.Connect("b", b)

	body := strWriterTo("snapshot-bytes")
	go func() {
		err := a.Stream(context.Background(), "b", &InstallSnapshotRequest{Term: 1}, body)
		require.NoError(t, err)
	}()

	select {
	case rpc := <-b.Consumer():
		hdr, ok := rpc.Command.(*InstallSnapshotRequest)
		require.True(t, ok)
		require.Equal(t, uint64(1), hdr.Term)
		buf := make([]byte, len("snapshot-bytes"))
		n, err := rpc.Reader.Read(buf)
		require.NoError(t, err)
		require.Equal(t, "snapshot-bytes", string(buf[:n]))
		rpc.Respond(nil, nil)
	case <-time.After(time.Second):
		t.Fatal("b never received the stream")
	}
}

func TestInmemTransport_LinkHook_DropsMessages(t *testing.T) {
	a := newInmemTransport("a")
	b := newInmemTransport("b")
	a.Connect("b", b)
	a.SetLinkHook("b", 0, true)

	require.NoError(t, a.Send("b", &AppendEntriesRequest{Term: 1}))

	select {
	case <-b.Consumer():
		t.Fatal("b should never have received a dropped message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInmemTransport_LinkHook_ReordersDelayedMessages(t *testing.T) {
	a := newInmemTransport("a")
	b := newInmemTransport("b")
	a.Connect("b", b)

	a.SetLinkHook("b", 40*time.Millisecond, false)
	require.NoError(t, a.Send("b", &AppendEntriesRequest{Term: 1}))
	a.ClearLinkHook("b")
	require.NoError(t, a.Send("b", &AppendEntriesRequest{Term: 2}))

	first := <-b.Consumer()
	req, ok := first.Command.(*AppendEntriesRequest)
	require.True(t, ok)
	require.Equal(t, uint64(2), req.Term, "the undelayed second send should arrive before the delayed first one")
	first.Respond(nil, nil)

	second := <-b.Consumer()
	req2 := second.Command.(*AppendEntriesRequest)
	require.Equal(t, uint64(1), req2.Term)
	second.Respond(nil, nil)
}

type strWriterTo string

func (s strWriterTo) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write([]byte(s))
	return int64(n), err
}
