package raft

import (
	"context"
	"io"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
)

// peerProgress is one peer's replication bookkeeping, kept together so a
// response handler can update both fields atomically (invariant P1).
type peerProgress struct {
	nextIndex  uint64
	matchIndex uint64
}

// snapshotStream is the "pre-armed but not started" streamer described in
// §4.3: a closure that opens a snapshot reader and streams it, created
// eagerly so a peer can be marked in-flight atomically with its creation,
// but only invoked once CanInstallSnapshotResponse authorizes it (§4.4).
type snapshotStream struct {
	run     func(ctx context.Context)
	cancel  func()
	started bool // set by takeSnapshotStream; guarded by progressTable.mu
}

// progressTable is Component C1. All fields are guarded by one mutex, per
// DESIGN NOTES §9: "a single mutex guarding {nextIndex, matchIndex,
// snapshotsInFlight} together; contention is negligible at cluster scale."
type progressTable struct {
	mu       sync.Mutex
	self     ServerID
	progress map[ServerID]*peerProgress
	inFlight map[ServerID]*snapshotStream
	logger   hclog.Logger
}

func newProgressTable(self ServerID, logger hclog.Logger) *progressTable {
	return &progressTable{
		self:     normalizeID(self),
		progress: make(map[ServerID]*peerProgress),
		inFlight: make(map[ServerID]*snapshotStream),
		logger:   logger,
	}
}

// initialize sets nextIndex[p] = lastLogIndex+1, matchIndex[p] = 0 for every
// voter, then seals the local identity's own entry per invariant P3
// (matchIndex[self] = lastLogIndex, nextIndex[self] = lastLogIndex+1).
func (pt *progressTable) initialize(lastLogIndex uint64, voters []ServerID) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.progress = make(map[ServerID]*peerProgress, len(voters))
	for _, v := range voters {
		id := normalizeID(v)
		pt.progress[id] = &peerProgress{nextIndex: lastLogIndex + 1, matchIndex: 0}
	}
	pt.progress[pt.self] = &peerProgress{nextIndex: lastLogIndex + 1, matchIndex: lastLogIndex}
}

// ensurePeer lazily adds a peer newly introduced by a joint-consensus entry,
// starting it at the leader's current last-log position.
func (pt *progressTable) ensurePeer(peer ServerID, lastLogIndex uint64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	id := normalizeID(peer)
	if _, ok := pt.progress[id]; !ok {
		pt.progress[id] = &peerProgress{nextIndex: lastLogIndex + 1, matchIndex: 0}
	}
}

// noteSelfAppend keeps invariant P3 true whenever the leader appends an
// entry to its own log.
func (pt *progressTable) noteSelfAppend(index uint64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.progress[pt.self] = &peerProgress{nextIndex: index + 1, matchIndex: index}
}

// nextIndex returns nextIndex[peer], or 1 if the peer is unknown.
func (pt *progressTable) nextIndex(peer ServerID) uint64 {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if p, ok := pt.progress[normalizeID(peer)]; ok {
		return p.nextIndex
	}
	return 1
}

// recordSuccess implements §4.1 record_success.
func (pt *progressTable) recordSuccess(peer ServerID, lastLogIndex uint64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	id := normalizeID(peer)
	p, ok := pt.progress[id]
	if !ok {
		p = &peerProgress{}
		pt.progress[id] = p
	}
	p.matchIndex = lastLogIndex
	p.nextIndex = lastLogIndex + 1
}

// recordRejection implements §4.1 record_rejection: decrement-by-one,
// clamped at 1 (invariant P2).
func (pt *progressTable) recordRejection(peer ServerID) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	id := normalizeID(peer)
	p, ok := pt.progress[id]
	if !ok {
		return
	}
	if p.nextIndex > 1 {
		p.nextIndex--
	}
	if p.matchIndex >= p.nextIndex {
		p.matchIndex = p.nextIndex - 1
	}
}

// setMatchAndNext is used by the CanInstallSnapshotResponse refusal path
// (§4.4): the follower reports it has already progressed past the
// snapshot, so the leader adopts that as ground truth.
func (pt *progressTable) setMatchAndNext(peer ServerID, index uint64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.progress[normalizeID(peer)] = &peerProgress{nextIndex: index + 1, matchIndex: index}
}

// matchIndexes returns a snapshot of every known voter's matchIndex, for
// the Commit Calculator.
func (pt *progressTable) matchIndexes() map[ServerID]uint64 {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	out := make(map[ServerID]uint64, len(pt.progress))
	for id, p := range pt.progress {
		out[id] = p.matchIndex
	}
	return out
}

// isSnapshotInFlight implements invariant P4's read side.
func (pt *progressTable) isSnapshotInFlight(peer ServerID) bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	_, ok := pt.inFlight[normalizeID(peer)]
	return ok
}

// markSnapshotStarted marks peer in-flight with the given pre-armed
// streamer handle. Must be called before any probe is sent, so no
// concurrent replication decision can slip an AppendEntries in first.
func (pt *progressTable) markSnapshotStarted(peer ServerID, s *snapshotStream) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.inFlight[normalizeID(peer)] = s
}

// markSnapshotFinished clears the in-flight flag. Safe to call more than
// once: abort and completion may race. Used by the streamer's own
// completion path (replication.go), where the transfer already ran to
// completion or failure and there is nothing left to cancel.
func (pt *progressTable) markSnapshotFinished(peer ServerID) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	delete(pt.inFlight, normalizeID(peer))
}

// abandonSnapshot cancels the pre-armed streamer's derived context (if one
// was ever armed) before clearing the in-flight flag, for the refusal and
// already-installing paths in HandleCanInstallSnapshotResponse where the
// streamer created in beginSnapshotTransfer is discarded without ever
// running.
func (pt *progressTable) abandonSnapshot(peer ServerID) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	id := normalizeID(peer)
	if s, ok := pt.inFlight[id]; ok && s.cancel != nil {
		s.cancel()
	}
	delete(pt.inFlight, id)
}

// takeSnapshotStream returns the pre-armed streamer for peer, if any. Used
// by the response handler once CanInstallSnapshotResponse authorizes the
// transfer. A streamer is handed out only once; later calls return nil. The
// peer stays in-flight until the streamer's completion path calls
// markSnapshotFinished.
func (pt *progressTable) takeSnapshotStream(peer ServerID) *snapshotStream {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	s := pt.inFlight[normalizeID(peer)]
	if s == nil || s.started {
		return nil
	}
	s.started = true
	return s
}

// The remainder of this file is the snapshot transfer's own progress
// reporter, adapted from the teacher's snapshotRestoreMonitor
// (progress.go): same hclog.Logger + ticker + context.WithCancel
// lifecycle, now describing an outbound stream to a follower instead of an
// inbound restore.

const snapshotStreamReportInterval = 10 * time.Second

type snapshotStreamMonitor struct {
	logger hclog.Logger
	peer   ServerID
	cr     CountingReader
	size   int64

	once   sync.Once
	cancel func()
	doneCh chan struct{}
}

func startSnapshotStreamMonitor(logger hclog.Logger, peer ServerID, cr CountingReader, size int64) *snapshotStreamMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	m := &snapshotStreamMonitor{
		logger: logger,
		peer:   peer,
		cr:     cr,
		size:   size,
		cancel: cancel,
		doneCh: make(chan struct{}),
	}
	go m.run(ctx)
	return m
}

func (m *snapshotStreamMonitor) run(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(snapshotStreamReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runOnce()
		}
	}
}

func (m *snapshotStreamMonitor) runOnce() {
	sent := m.cr.Count()
	pct := float64(0)
	if m.size > 0 {
		pct = float64(100*sent) / float64(m.size)
	}
	m.logger.Info("snapshot transfer progress",
		"peer", m.peer,
		"sent-bytes", sent,
		"percent-complete", hclog.Fmt("%0.2f%%", pct),
	)
}

func (m *snapshotStreamMonitor) StopAndWait() {
	m.once.Do(func() {
		m.cancel()
		<-m.doneCh
	})
}

// CountingReader wraps an io.Reader to expose a running byte count for
// progress reporting.
type CountingReader interface {
	io.Reader
	Count() int64
}

type countingReader struct {
	reader io.Reader

	mu    sync.Mutex
	bytes int64
}

func (r *countingReader) Read(p []byte) (n int, err error) {
	n, err = r.reader.Read(p)
	r.mu.Lock()
	r.bytes += int64(n)
	r.mu.Unlock()
	return n, err
}

func (r *countingReader) Count() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytes
}

// WriteTo satisfies io.WriterTo so a countingReader can be handed directly
// to Transport.Stream. It hides r's own WriteTo behind a bare io.Reader so
// io.Copy takes the buffered-loop path instead of re-asserting r as a
// WriterTo and recursing into this method; the copy still goes through
// r.Read, so Count keeps advancing while the transfer is in progress.
func (r *countingReader) WriteTo(w io.Writer) (int64, error) {
	return io.Copy(w, struct{ io.Reader }{r})
}

func newCountingReader(r io.Reader) *countingReader {
	return &countingReader{reader: r}
}
