// Command raftd runs a single node of the Leader replication core with a
// fixed, statically configured topology. It exists to give the module a
// runnable entry point; election, Candidate, and Follower behavior are out
// of this module's scope, so raftd assumes leadership immediately and never
// steps down on its own — a real deployment would drive that decision from
// an election module wired in front of this Engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"go.uber.org/multierr"

	raft "github.com/coreraft/raft"
)

func main() {
	flagset := flag.NewFlagSet("raftd", flag.ExitOnError)
	var (
		id           string
		bindAddr     string
		peersFlag    string
		dataDir      string
		msgTimeoutMs int
	)
	flagset.StringVar(&id, "id", "", "this server's ID")
	flagset.StringVar(&bindAddr, "bind", "127.0.0.1:9000", "address to bind the transport listener to")
	flagset.StringVar(&peersFlag, "peers", "", "comma-separated id=addr pairs for the rest of the cluster")
	flagset.StringVar(&dataDir, "data", "raftd.db", "path to the bolt-backed log store")
	flagset.IntVar(&msgTimeoutMs, "message-timeout-ms", 1000, "message timeout in milliseconds")
	if err := flagset.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if id == "" {
		fmt.Fprintln(os.Stderr, "raftd: -id is required")
		os.Exit(2)
	}

	logger := hclog.New(&hclog.LoggerOptions{Name: "raftd", Level: hclog.Info})

	topology, err := parseTopology(id, peersFlag)
	if err != nil {
		logger.Error("invalid -peers", "error", err)
		os.Exit(2)
	}

	logStore, err := raft.NewBoltLogStore(dataDir)
	if err != nil {
		logger.Error("failed to open log store", "path", dataDir, "error", err)
		os.Exit(2)
	}

	transport, err := raft.NewTCPTransport(raft.ServerID(id), bindAddr, 4, time.Duration(msgTimeoutMs)*time.Millisecond, logger)
	if err != nil {
		logger.Error("failed to bind transport", "addr", bindAddr, "error", err)
		os.Exit(2)
	}
	for peerID, addr := range topology.peerAddrs {
		transport.RegisterPeer(raft.ServerID(peerID), addr)
	}

	fsm := raft.NewInmemFSM()

	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(id)
	config.MessageTimeout = time.Duration(msgTimeoutMs) * time.Millisecond
	config.Logger = logger

	engine := newStaticLeaderEngine(raft.ServerID(id), topology.configuration, logger)

	leader, err := raft.NewLeaderState(engine, logStore, fsm, transport, config, 1)
	if err != nil {
		logger.Error("failed to start leader", "error", err)
		os.Exit(2)
	}

	pump := newMessagePump(leader, transport, logger)
	go pump.run()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	<-sigCh

	logger.Info("shutting down")
	pump.stop()

	var errs error
	if err := leader.Dispose(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := transport.Close(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := logStore.Close(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if errs != nil {
		logger.Error("errors during shutdown", "error", errs)
		os.Exit(1)
	}
}

type parsedTopology struct {
	configuration raft.Topology
	peerAddrs     map[string]string
}

// parseTopology reads "id=addr,id=addr,..." pairs and adds the local id as a
// voter with no address of its own (the transport never dials itself).
func parseTopology(self, peers string) (parsedTopology, error) {
	out := parsedTopology{
		configuration: raft.Topology{Servers: []raft.Server{{Suffrage: raft.Voter, ID: raft.ServerID(self)}}},
		peerAddrs:     make(map[string]string),
	}
	if peers == "" {
		return out, nil
	}
	for _, pair := range strings.Split(peers, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return parsedTopology{}, fmt.Errorf("raftd: malformed -peers entry %q, want id=addr", pair)
		}
		out.configuration.Servers = append(out.configuration.Servers, raft.Server{Suffrage: raft.Voter, ID: raft.ServerID(parts[0]), Address: parts[1]})
		out.peerAddrs[parts[0]] = parts[1]
	}
	return out, nil
}

// staticLeaderEngine is the thin Engine this binary supplies since election
// and step-down are out of scope: the topology never changes, the term
// never advances past 1, and UpdateCurrentTerm logs the observed term and
// cancels the engine's context, which stops the Leader's heartbeat driver.
type staticLeaderEngine struct {
	mu        sync.Mutex
	name      raft.ServerID
	topology  raft.Topology
	commitIdx uint64
	logger    hclog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func newStaticLeaderEngine(name raft.ServerID, topology raft.Topology, logger hclog.Logger) *staticLeaderEngine {
	ctx, cancel := context.WithCancel(context.Background())
	return &staticLeaderEngine{name: name, topology: topology, logger: logger, ctx: ctx, cancel: cancel}
}

func (e *staticLeaderEngine) Name() raft.ServerID                { return e.name }
func (e *staticLeaderEngine) MessageTimeout() time.Duration      { return time.Second }
func (e *staticLeaderEngine) MaxEntriesPerRequest() uint32       { return 64 }
func (e *staticLeaderEngine) CancellationToken() context.Context { return e.ctx }

func (e *staticLeaderEngine) CommitIndex() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commitIdx
}

func (e *staticLeaderEngine) CurrentTopology() raft.Topology {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.topology
}

func (e *staticLeaderEngine) ChangingTopology() (raft.Topology, bool) {
	return raft.Topology{}, false
}

func (e *staticLeaderEngine) UpdateCurrentTerm(term uint64, leaderID raft.ServerID) {
	e.logger.Warn("observed higher term; a full role machine would step down here", "term", term, "leader", leaderID)
	e.cancel()
}

func (e *staticLeaderEngine) ApplyCommits(from, to uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commitIdx = to
	return nil
}

func (e *staticLeaderEngine) Observe(obs raft.Observation) {
	switch obs.Type {
	case raft.HeartbeatSent:
		e.logger.Debug("heartbeat sent")
	case raft.EntriesAppended:
		e.logger.Debug("entries appended", "peer", obs.Peer, "count", len(obs.Entries))
	}
}

// messagePump reads inbound RPCs off the transport and routes responses to
// the Leader's Response Handler, mirroring the role the teacher's raft.go
// main loop plays between NetworkTransport and its own handlers.
type messagePump struct {
	leader    *raft.LeaderState
	transport raft.Transport
	logger    hclog.Logger
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func newMessagePump(leader *raft.LeaderState, transport raft.Transport, logger hclog.Logger) *messagePump {
	return &messagePump{leader: leader, transport: transport, logger: logger, stopCh: make(chan struct{}), doneCh: make(chan struct{})}
}

func (p *messagePump) run() {
	defer close(p.doneCh)
	for {
		select {
		case <-p.stopCh:
			return
		case rpc, ok := <-p.transport.Consumer():
			if !ok {
				return
			}
			p.dispatch(rpc)
		}
	}
}

func (p *messagePump) dispatch(rpc raft.RPC) {
	switch msg := rpc.Command.(type) {
	case *raft.AppendEntriesResponse:
		p.leader.HandleAppendEntriesResponse(msg)
		rpc.Respond(nil, nil)
	case *raft.CanInstallSnapshotResponse:
		p.leader.HandleCanInstallSnapshotResponse(msg)
		rpc.Respond(nil, nil)
	default:
		p.logger.Warn("raftd received a request type it does not serve (Follower behavior is out of scope)", "type", fmt.Sprintf("%T", msg))
		rpc.Respond(nil, fmt.Errorf("raftd: unsupported request type %T", msg))
	}
}

func (p *messagePump) stop() {
	close(p.stopCh)
	<-p.doneCh
}
