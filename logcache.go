package raft

import "sync"

// logCache wraps a PersistentLog with a ring buffer providing fast access
// to the most recently appended entries, adapted from the teacher's
// logCache (log_cache.go). The Replicator re-reads the tail of the log on
// every heartbeat round for every peer that is caught up; a logCache in
// front of its PersistentLog serves those single-index reads from memory.
// NewLeaderState uses the PersistentLog it is given as is and does not add
// a logCache itself.
type logCache struct {
	store PersistentLog

	l          sync.RWMutex
	cache      []*LogEntry
	current    int
	lastLogIdx uint64
}

func newLogCache(capacity int, store PersistentLog) *logCache {
	return &logCache{
		cache: make([]*LogEntry, 0, capacity),
		store: store,
	}
}

func (c *logCache) getFromCache(index uint64) (*LogEntry, bool) {
	c.l.RLock()
	defer c.l.RUnlock()

	if index > c.lastLogIdx || (c.lastLogIdx-index) >= uint64(len(c.cache)) {
		return nil, false
	}

	last := c.current - 1
	m := last - int(c.lastLogIdx-index)
	n := cap(c.cache)
	entry := c.cache[((m%n)+n)%n]
	return entry, entry.Index == index
}

// cacheEntry should be called with strictly monotonically increasing
// indexes, otherwise the cache will not be effective.
func (c *logCache) cacheEntry(entry *LogEntry) {
	c.l.Lock()
	defer c.l.Unlock()

	if len(c.cache) < cap(c.cache) {
		c.cache = append(c.cache, entry)
	} else {
		c.cache[c.current] = entry
	}
	c.lastLogIdx = entry.Index
	c.current = (c.current + 1) % cap(c.cache)
}

func (c *logCache) LastLogEntry() (*LogEntry, error) {
	return c.store.LastLogEntry()
}

func (c *logCache) GetLogEntry(index uint64) (*LogEntry, error) {
	if cached, ok := c.getFromCache(index); ok {
		return cached, nil
	}
	return c.store.GetLogEntry(index)
}

// LogEntriesAfter is not cache-accelerated: it is a range read and the ring
// buffer only helps single-index lookups. It always delegates to the
// backing store.
func (c *logCache) LogEntriesAfter(after uint64, maxEntries int) ([]*LogEntry, error) {
	return c.store.LogEntriesAfter(after, maxEntries)
}

func (c *logCache) AppendToLeaderLog(term uint64, kind LogKind, payload []byte) (uint64, error) {
	index, err := c.store.AppendToLeaderLog(term, kind, payload)
	if err != nil {
		return 0, err
	}
	c.cacheEntry(&LogEntry{Index: index, Term: term, Kind: kind, Payload: payload})
	return index, nil
}

func (c *logCache) GetLastSnapshot() (*SnapshotMeta, error) {
	return c.store.GetLastSnapshot()
}

func (c *logCache) CurrentTerm() uint64 {
	return c.store.CurrentTerm()
}
