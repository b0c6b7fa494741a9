// Package archive stores raw tilemap snapshots in a Pebble key/value store
// for offline tear analysis. The acquisition loop hands snapshots off
// without blocking; a single writer goroutine owns all Pebble writes.
package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

const (
	snapshotPrefix = "s|"

	defaultQueueDepth   = 256
	defaultMaxSnapshots = 100000
)

var errClosed = errors.New("archive: store is closed")

// Snapshot is one archived raw read.
type Snapshot struct {
	Time     time.Time
	Accepted bool
	Raw      []byte
}

// Store is the Pebble-backed snapshot archive.
type Store struct {
	db    *pebble.DB
	queue chan Snapshot
	done  chan struct{}

	mu     sync.Mutex
	closed bool
	count  int
	max    int
}

// Open creates or reopens the archive at dir. maxSnapshots caps how many
// snapshots one session may add; zero or negative takes the default cap.
func Open(dir string, maxSnapshots int) (*Store, error) {
	if dir == "" {
		return nil, errors.New("archive: directory is empty")
	}
	if maxSnapshots <= 0 {
		maxSnapshots = defaultMaxSnapshots
	}
	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("archive: %s exists and is not a directory", dir)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("archive: stat path: %w", err)
	}

	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	s := &Store{
		db:    db,
		queue: make(chan Snapshot, defaultQueueDepth),
		done:  make(chan struct{}),
		max:   maxSnapshots,
	}
	go s.writeLoop()
	return s, nil
}

// Add queues a snapshot for archival without blocking; drops when the
// writer is behind or the session cap is reached.
func (s *Store) Add(ts time.Time, raw []byte, accepted bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.closed || s.count >= s.max {
		s.mu.Unlock()
		return
	}
	s.count++
	s.mu.Unlock()

	snap := Snapshot{Time: ts, Accepted: accepted, Raw: append([]byte(nil), raw...)}
	select {
	case s.queue <- snap:
	default:
		// Keep the hot path non-blocking; a dropped archive entry is
		// cheaper than a delayed sample.
	}
}

func (s *Store) writeLoop() {
	defer close(s.done)
	for snap := range s.queue {
		key := snapshotKey(snap.Time)
		value := make([]byte, 1+len(snap.Raw))
		if snap.Accepted {
			value[0] = 1
		}
		copy(value[1:], snap.Raw)
		if err := s.db.Set(key, value, pebble.NoSync); err != nil {
			log.Printf("Archive: set failed: %v", err)
		}
	}
}

func snapshotKey(ts time.Time) []byte {
	key := make([]byte, len(snapshotPrefix)+8)
	copy(key, snapshotPrefix)
	binary.BigEndian.PutUint64(key[len(snapshotPrefix):], uint64(ts.UnixNano()))
	return key
}

// Entries returns all archived snapshots in time order. Intended for
// offline analysis tools and tests, not the hot path.
func (s *Store) Entries() ([]Snapshot, error) {
	if s == nil || s.db == nil {
		return nil, errClosed
	}
	lower := []byte(snapshotPrefix)
	upper := []byte(snapshotPrefix)
	upper = append(upper[:len(upper):len(upper)], 0xFF)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("archive: iterator: %w", err)
	}
	defer iter.Close()

	var out []Snapshot
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		value := iter.Value()
		if len(key) != len(snapshotPrefix)+8 || len(value) < 1 {
			continue
		}
		nanos := binary.BigEndian.Uint64(key[len(snapshotPrefix):])
		out = append(out, Snapshot{
			Time:     time.Unix(0, int64(nanos)).UTC(),
			Accepted: value[0] == 1,
			Raw:      append([]byte(nil), value[1:]...),
		})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("archive: iterate: %w", err)
	}
	return out, nil
}

// Close drains the write queue and closes the database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.queue)
	<-s.done
	return s.db.Close()
}
