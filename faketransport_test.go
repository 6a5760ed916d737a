package raft

import (
	"context"
	"io"
	"sync"
)

// fakeTransport records every message handed to Send/Stream without putting
// anything on a wire, so replication tests can assert on what the Leader
// core decided to send without a real inmemTransport pair.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []sentMessage
	streamed []streamedMessage
	sendErr  error
	streamErr error
}

type sentMessage struct {
	peer ServerID
	msg  interface{}
}

type streamedMessage struct {
	peer   ServerID
	header interface{}
	body   []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (f *fakeTransport) Send(peer ServerID, msg interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{peer: peer, msg: msg})
	return f.sendErr
}

func (f *fakeTransport) Stream(ctx context.Context, peer ServerID, header interface{}, body io.WriterTo) error {
	var buf writerToBuffer
	if _, err := body.WriteTo(&buf); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamed = append(f.streamed, streamedMessage{peer: peer, header: header, body: buf.data})
	return f.streamErr
}

func (f *fakeTransport) Consumer() <-chan RPC { return nil }
func (f *fakeTransport) LocalAddr() ServerID  { return "" }
func (f *fakeTransport) Close() error         { return nil }

func (f *fakeTransport) lastSent() (ServerID, interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return "", nil
	}
	last := f.sent[len(f.sent)-1]
	return last.peer, last.msg
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) streamedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streamed)
}

func (f *fakeTransport) lastStreamed() (ServerID, interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streamed) == 0 {
		return "", nil
	}
	last := f.streamed[len(f.streamed)-1]
	return last.peer, last.header
}

func (f *fakeTransport) lastStreamedBody() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streamed) == 0 {
		return nil
	}
	return f.streamed[len(f.streamed)-1].body
}

// writerToBuffer is a tiny io.Writer sink, avoiding a bytes.Buffer import
// collision with callers that already alias bytes in the same test binary.
type writerToBuffer struct {
	data []byte
}

func (w *writerToBuffer) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}
