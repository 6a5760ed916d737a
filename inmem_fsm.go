package raft

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"
)

// inmemFSM is a minimal demo StateMachine that applies each committed
// entry's Payload as a "key\x00value" pair into an in-memory map. It exists
// to give cmd/raftd and the collaborator tests something concrete to drive
// commit advance against, in the same spirit as the teacher's MockFSM
// (fuzzy/fsm.go) but trimmed to what this module's tests need.
type inmemFSM struct {
	mu           sync.Mutex
	data         map[string]string
	lastApplied  uint64
	appliedTerm  uint64
}

func newInmemFSM() *inmemFSM {
	return &inmemFSM{data: make(map[string]string)}
}

func (f *inmemFSM) ApplyLog(entry *LogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastApplied = entry.Index
	f.appliedTerm = entry.Term
	if entry.Kind != KindClient || len(entry.Payload) == 0 {
		return
	}
	parts := bytes.SplitN(entry.Payload, []byte{0}, 2)
	if len(parts) != 2 {
		return
	}
	f.data[string(parts[0])] = string(parts[1])
}

func (f *inmemFSM) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

func (f *inmemFSM) GetSnapshotWriter() (SnapshotWriter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshot := make(map[string]string, len(f.data))
	for k, v := range f.data {
		snapshot[k] = v
	}
	return &inmemSnapshotWriter{
		index: f.lastApplied,
		term:  f.appliedTerm,
		data:  snapshot,
	}, nil
}

// inmemSnapshotWriter serializes the snapshot as one MsgPack-encoded
// key/value map preceded by its 8-byte big-endian length, using the same
// MsgPack handle util.go already requires for the wire format, rather than
// inventing a second format.
type inmemSnapshotWriter struct {
	index uint64
	term  uint64
	data  map[string]string

	once sync.Once
}

func (s *inmemSnapshotWriter) Index() uint64 { return s.index }
func (s *inmemSnapshotWriter) Term() uint64  { return s.term }

func (s *inmemSnapshotWriter) WriteSnapshot(w io.Writer) error {
	buf, err := encodeMsgPack(s.data)
	if err != nil {
		return err
	}
	var lenPrefix [8]byte
	binary.BigEndian.PutUint64(lenPrefix[:], uint64(len(buf)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

func (s *inmemSnapshotWriter) Release() {
	s.once.Do(func() {})
}

// restoreInmemFSM is the receiving half of WriteSnapshot, used by a
// follower-side FSM (out of this module's Leader-only scope, but kept
// alongside the writer since both must agree on the wire format).
func restoreInmemFSM(r io.Reader) (map[string]string, error) {
	var lenPrefix [8]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint64(lenPrefix[:])
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	var data map[string]string
	if err := decodeMsgPack(buf, &data); err != nil {
		return nil, err
	}
	return data, nil
}
