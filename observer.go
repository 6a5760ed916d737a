package raft

import "sync"

// ObservationType distinguishes the two events the Leader core emits.
// EntriesAppended mirrors what a follower would observe on receipt (§4.3
// step 6), letting a subscriber react as if the leader were also a follower
// of itself.
type ObservationType int

const (
	HeartbeatSent ObservationType = iota
	EntriesAppended
)

// Observation is delivered synchronously to every registered observer.
type Observation struct {
	Type    ObservationType
	Peer    ServerID
	Entries []*LogEntry
}

// observerRegistry generalizes the teacher's single-channel observer
// (observer.go) into a list of subscribers, per spec §4.2/DESIGN NOTES:
// "implement as a list of subscribers invoked synchronously after the
// emission." Each send is non-blocking so a slow or absent subscriber can
// never stall the heartbeat driver.
type observerRegistry struct {
	mu        sync.RWMutex
	observers []chan<- Observation
}

// register adds a subscriber. The returned channel is never closed by the
// registry; callers own its lifecycle.
func (o *observerRegistry) register(ch chan<- Observation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, ch)
}

// deregister removes a previously registered subscriber.
func (o *observerRegistry) deregister(ch chan<- Observation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, c := range o.observers {
		if c == ch {
			o.observers = append(o.observers[:i], o.observers[i+1:]...)
			return
		}
	}
}

// emit delivers obs to every subscriber without blocking.
func (o *observerRegistry) emit(obs Observation) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, ch := range o.observers {
		select {
		case ch <- obs:
		default:
		}
	}
}
