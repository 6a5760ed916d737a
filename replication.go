package raft

import (
	"bytes"
	"context"
	"time"

	metrics "github.com/armon/go-metrics"
)

// runHeartbeatLoop is Component C2: a single cooperative task that fans out
// replication to every peer, emits HeartbeatSent, and sleeps for
// messageTimeout/6, until cancelled. Grounded on the teacher's replicate
// (replication.go) in spirit only — the teacher's version is a per-peer
// long-running goroutine woken by a trigger channel, where this module
// instead centralizes the fan-out in one loop per §4.2's description of "a
// single cooperative task".
func (l *LeaderState) runHeartbeatLoop() {
	defer close(l.doneCh)

	interval := l.config.heartbeatInterval()
	l.saturation.sleeping()

	for {
		select {
		case <-l.ctx.Done():
			return
		default:
		}

		l.saturation.working()
		l.fanOutOnce()
		l.engine.Observe(Observation{Type: HeartbeatSent})
		metrics.IncrCounter([]string{"raft", "leader", "heartbeat"}, 1)
		l.saturation.sleeping()

		select {
		case <-l.ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// fanOutOnce implements §4.2's peer-set computation and dispatches
// replicateToPeer for each, honouring cancellation between peers so
// step-down is bounded by one in-flight send.
func (l *LeaderState) fanOutOnce() {
	current := l.engine.CurrentTopology()
	changing, _ := l.engine.ChangingTopology()
	self := normalizeID(l.engine.Name())

	for _, peer := range unionVoterIDs(current, changing) {
		if peer == self {
			continue
		}
		select {
		case <-l.ctx.Done():
			return
		default:
		}
		l.replicateToPeer(peer)
	}
}

// replicateToPeer is Component C3's per-peer decision procedure (§4.3).
func (l *LeaderState) replicateToPeer(peer ServerID) {
	if l.progress.isSnapshotInFlight(peer) {
		return
	}

	nextIndex := l.progress.nextIndex(peer)

	snapshotMeta, err := l.log.GetLastSnapshot()
	if err != nil {
		l.logger.Error("failed to read snapshot metadata", "error", err)
		return
	}

	if snapshotMeta != nil && nextIndex < snapshotMeta.Index {
		l.beginSnapshotTransfer(peer, snapshotMeta)
		return
	}

	l.sendAppendEntries(peer, nextIndex)
}

// beginSnapshotTransfer implements §4.3 step 3: arm a streamer, mark the
// peer in-flight, and probe before actually starting the transfer.
func (l *LeaderState) beginSnapshotTransfer(peer ServerID, snapshotMeta *SnapshotMeta) {
	streamCtx, streamCancel := context.WithCancel(l.ctx)

	stream := &snapshotStream{
		cancel: streamCancel,
		run: func(context.Context) {
			defer l.progress.markSnapshotFinished(peer)
			l.runSnapshotStreamer(streamCtx, peer, snapshotMeta)
		},
	}

	l.progress.markSnapshotStarted(peer, stream)

	req := &CanInstallSnapshotRequest{
		From:     l.engine.Name(),
		LeaderID: l.engine.Name(),
		Index:    snapshotMeta.Index,
		Term:     snapshotMeta.Term,
	}
	if err := l.transport.Send(peer, req); err != nil {
		l.logger.Warn("failed to send snapshot probe", "peer", peer, "error", err)
		l.progress.abandonSnapshot(peer)
	}
}

// runSnapshotStreamer performs the actual transfer once
// CanInstallSnapshotResponse authorizes it, reporting progress with the
// same hclog+ticker idiom the teacher uses for snapshot restoration
// (progress.go).
func (l *LeaderState) runSnapshotStreamer(ctx context.Context, peer ServerID, meta *SnapshotMeta) {
	writer, err := l.fsm.GetSnapshotWriter()
	if err != nil {
		l.logger.Error("failed to open snapshot writer", "peer", peer, "error", err)
		return
	}
	defer writer.Release()

	var buf bytes.Buffer
	if err := writer.WriteSnapshot(&buf); err != nil {
		l.logger.Error("failed to serialize snapshot", "peer", peer, "error", err)
		return
	}

	cr := newCountingReader(bytes.NewReader(buf.Bytes()))
	monitor := startSnapshotStreamMonitor(l.logger, peer, cr, int64(buf.Len()))
	defer monitor.StopAndWait()

	header := &InstallSnapshotRequest{
		Term:              l.term,
		LastIncludedIndex: writer.Index(),
		LastIncludedTerm:  writer.Term(),
		From:              l.engine.Name(),
	}

	timer := time.Now()
	if err := l.transport.Stream(ctx, peer, header, cr); err != nil {
		l.logger.Warn("snapshot transfer failed", "peer", peer, "error", err)
		return
	}
	metrics.MeasureSince([]string{"raft", "replication", "installSnapshot", string(peer)}, timer)
	l.progress.setMatchAndNext(peer, meta.Index)
}

// sendAppendEntries implements §4.3 step 4-6, the normal replication path.
func (l *LeaderState) sendAppendEntries(peer ServerID, nextIndex uint64) {
	entries, err := l.log.LogEntriesAfter(nextIndex-1, int(l.config.MaxEntriesPerRequest))
	if err != nil {
		l.logger.Error("failed to read log entries for replication", "peer", peer, "error", err)
		return
	}

	var prevIndex, prevTerm uint64
	if len(entries) == 0 {
		last, err := l.log.LastLogEntry()
		if err != nil {
			l.logger.Error("failed to read last log entry", "peer", peer, "error", err)
			return
		}
		if last != nil {
			prevIndex, prevTerm = last.Index, last.Term
		}
	} else {
		if entries[0].Index > 1 {
			prev, err := l.log.GetLogEntry(entries[0].Index - 1)
			if err != nil {
				l.logger.Error("failed to read previous log entry", "peer", peer, "error", err)
				return
			}
			if prev != nil {
				prevIndex, prevTerm = prev.Index, prev.Term
			}
		}
	}

	req := &AppendEntriesRequest{
		Term:         l.term,
		LeaderID:     l.engine.Name(),
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		LeaderCommit: l.engine.CommitIndex(),
		From:         l.engine.Name(),
	}

	timer := time.Now()
	if err := l.transport.Send(peer, req); err != nil {
		l.logger.Warn("failed to send append entries", "peer", peer, "error", err)
		return
	}
	metrics.MeasureSince([]string{"raft", "replication", "appendEntries", "rpc", string(peer)}, timer)
	if len(entries) > 0 {
		metrics.IncrCounter([]string{"raft", "replication", "appendEntries", "logs", string(peer)}, float32(len(entries)))
	}

	l.engine.Observe(Observation{Type: EntriesAppended, Peer: peer, Entries: entries})
}
