package raft

import (
	"context"
	"sync"
	"time"
)

// fakeEngine is a minimal Engine used by leader/replication tests. It is
// grounded on the same "small fake collaborator" style the teacher uses in
// its own package-level tests (commitment_test.go builds a bare
// Configuration by hand rather than a full *Raft).
type fakeEngine struct {
	mu sync.Mutex

	name       ServerID
	current    Topology
	changing   Topology
	hasChange  bool
	commitIdx  uint64
	appliedFSM StateMachine
	log        PersistentLog

	msgTimeout time.Duration
	maxEntries uint32

	ctx    context.Context
	cancel context.CancelFunc

	termUpdates []termUpdate
	observed    []Observation
}

type termUpdate struct {
	term     uint64
	leaderID ServerID
}

func newFakeEngine(name ServerID, current Topology, log PersistentLog, fsm StateMachine) *fakeEngine {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeEngine{
		name:       name,
		current:    current,
		log:        log,
		appliedFSM: fsm,
		msgTimeout: 60 * time.Second, // slow heartbeat by default; tests drive rounds manually
		maxEntries: 64,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (e *fakeEngine) Name() ServerID                     { return e.name }
func (e *fakeEngine) MessageTimeout() time.Duration       { return e.msgTimeout }
func (e *fakeEngine) MaxEntriesPerRequest() uint32        { return e.maxEntries }
func (e *fakeEngine) CancellationToken() context.Context  { return e.ctx }

func (e *fakeEngine) CommitIndex() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commitIdx
}

func (e *fakeEngine) CurrentTopology() Topology {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *fakeEngine) ChangingTopology() (Topology, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.changing, e.hasChange
}

func (e *fakeEngine) setChanging(t Topology) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changing = t
	e.hasChange = true
}

func (e *fakeEngine) UpdateCurrentTerm(term uint64, leaderID ServerID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.termUpdates = append(e.termUpdates, termUpdate{term: term, leaderID: leaderID})
}

func (e *fakeEngine) ApplyCommits(from, to uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for idx := from + 1; idx <= to; idx++ {
		entry, err := e.log.GetLogEntry(idx)
		if err != nil {
			return err
		}
		e.appliedFSM.ApplyLog(entry)
	}
	e.commitIdx = to
	return nil
}

func (e *fakeEngine) Observe(obs Observation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observed = append(e.observed, obs)
}

func (e *fakeEngine) termUpdateCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.termUpdates)
}
