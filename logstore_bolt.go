package raft

import (
	"encoding/binary"
	"fmt"

	"github.com/boltdb/bolt"
)

var (
	logsBucketName = []byte("logs")
	metaBucketName = []byte("meta")

	metaKeySnapshot    = []byte("last_snapshot")
	metaKeyCurrentTerm = []byte("current_term")
)

// boltLogStore is a durable PersistentLog backed by boltdb/bolt, grounded
// on sushantsondhi-raft-col733's DbLogStore (persistent/logstore.go): one
// bucket keyed by big-endian index for log entries, generalized here with a
// second bucket for the snapshot-metadata and current-term fields
// PersistentLog also exposes.
type boltLogStore struct {
	db *bolt.DB
}

func newBoltLogStore(path string) (*boltLogStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(logsBucketName); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &boltLogStore{db: db}, nil
}

func (b *boltLogStore) Close() error {
	return b.db.Close()
}

func indexKey(index uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, index)
	return key
}

func (b *boltLogStore) LastLogEntry() (*LogEntry, error) {
	var entry *LogEntry
	err := b.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(logsBucketName).Cursor()
		key, val := cursor.Last()
		if key == nil {
			return nil
		}
		var e LogEntry
		if err := decodeMsgPack(val, &e); err != nil {
			return err
		}
		entry = &e
		return nil
	})
	return entry, err
}

func (b *boltLogStore) GetLogEntry(index uint64) (*LogEntry, error) {
	var entry LogEntry
	err := b.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(logsBucketName).Get(indexKey(index))
		if val == nil {
			return ErrLogNotFound
		}
		return decodeMsgPack(val, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (b *boltLogStore) LogEntriesAfter(after uint64, maxEntries int) ([]*LogEntry, error) {
	var out []*LogEntry
	err := b.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(logsBucketName).Cursor()
		start := indexKey(after + 1)
		for k, v := cursor.Seek(start); k != nil && len(out) < maxEntries; k, v = cursor.Next() {
			var e LogEntry
			if err := decodeMsgPack(v, &e); err != nil {
				return err
			}
			out = append(out, &e)
		}
		return nil
	})
	return out, err
}

func (b *boltLogStore) AppendToLeaderLog(term uint64, kind LogKind, payload []byte) (uint64, error) {
	var assigned uint64
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(logsBucketName)
		lastIndex := bucket.Stats().KeyN
		cursor := bucket.Cursor()
		var currentHigh uint64
		if k, _ := cursor.Last(); k != nil {
			currentHigh = binary.BigEndian.Uint64(k)
		}
		if uint64(lastIndex) > 0 && currentHigh == 0 {
			return fmt.Errorf("raft: corrupt log store, non-empty bucket with zero high-water index")
		}
		assigned = currentHigh + 1

		entry := &LogEntry{Index: assigned, Term: term, Kind: kind, Payload: payload}
		val, err := encodeMsgPack(entry)
		if err != nil {
			return err
		}
		if err := bucket.Put(indexKey(assigned), val); err != nil {
			return err
		}
		return b.putUint64(tx, metaKeyCurrentTerm, term)
	})
	if err != nil {
		return 0, err
	}
	return assigned, nil
}

func (b *boltLogStore) putUint64(tx *bolt.Tx, key []byte, v uint64) error {
	current := tx.Bucket(metaBucketName).Get(key)
	if current != nil && binary.BigEndian.Uint64(current) >= v {
		return nil
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return tx.Bucket(metaBucketName).Put(key, buf)
}

func (b *boltLogStore) GetLastSnapshot() (*SnapshotMeta, error) {
	var meta *SnapshotMeta
	err := b.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(metaBucketName).Get(metaKeySnapshot)
		if val == nil {
			return nil
		}
		var m SnapshotMeta
		if err := decodeMsgPack(val, &m); err != nil {
			return err
		}
		meta = &m
		return nil
	})
	return meta, err
}

// setLastSnapshot records that the log has been compacted up to meta, for
// use by an out-of-scope compaction routine or by tests.
func (b *boltLogStore) setLastSnapshot(meta SnapshotMeta) error {
	buf, err := encodeMsgPack(meta)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucketName).Put(metaKeySnapshot, buf)
	})
}

func (b *boltLogStore) CurrentTerm() uint64 {
	var term uint64
	b.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(metaBucketName).Get(metaKeyCurrentTerm)
		if val != nil {
			term = binary.BigEndian.Uint64(val)
		}
		return nil
	})
	return term
}

// setCurrentTerm lets the enclosing engine stamp the term at leadership
// start, before any entry has actually been appended in it.
func (b *boltLogStore) setCurrentTerm(term uint64) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return b.putUint64(tx, metaKeyCurrentTerm, term)
	})
}
