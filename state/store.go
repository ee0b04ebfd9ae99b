package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"swapring/core/canonical"
	"swapring/storage"
)

var snapshotKey = []byte("swapring/state/snapshot")

// Store owns the state snapshot behind a single-writer lock. All engine
// mutations run inside Update so events flush atomically with the state
// change that produced them; reads observe the snapshot at their moment of
// access.
type Store struct {
	mu   sync.Mutex
	db   storage.Database
	snap *Snapshot
	last []byte
}

// Open loads the snapshot from the backend, starting empty when none is
// persisted yet.
func Open(db storage.Database) (*Store, error) {
	store := &Store{db: db}
	raw, err := db.Get(snapshotKey)
	switch {
	case err == nil:
		snap := &Snapshot{}
		if err := json.Unmarshal(raw, snap); err != nil {
			return nil, fmt.Errorf("state: decode snapshot: %w", err)
		}
		snap.ensure()
		store.snap = snap
		store.last = raw
	case errors.Is(err, storage.ErrKeyNotFound):
		store.snap = NewSnapshot()
	default:
		return nil, fmt.Errorf("state: load snapshot: %w", err)
	}
	return store, nil
}

// Update runs fn under the writer lock and persists the canonical snapshot
// when fn succeeds. When fn fails the snapshot is rolled back to its last
// persisted form, so a failed operation leaves no partial mutation behind.
func (s *Store) Update(fn func(*Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.snap); err != nil {
		s.rollback()
		return err
	}
	return s.persist()
}

// View runs fn with read access under the same lock; the snapshot must not
// be mutated.
func (s *Store) View(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.snap)
}

func (s *Store) persist() error {
	enc, err := canonical.Marshal(s.snap)
	if err != nil {
		s.rollback()
		return fmt.Errorf("state: encode snapshot: %w", err)
	}
	if err := s.db.Put(snapshotKey, enc); err != nil {
		s.rollback()
		return fmt.Errorf("state: persist snapshot: %w", err)
	}
	s.last = enc
	return nil
}

func (s *Store) rollback() {
	if s.last == nil {
		s.snap = NewSnapshot()
		return
	}
	snap := &Snapshot{}
	if err := json.Unmarshal(s.last, snap); err != nil {
		// Last persisted bytes came from our own canonical encoder, so a
		// decode failure means the backend corrupted them.
		panic(fmt.Sprintf("state: rollback decode: %v", err))
	}
	snap.ensure()
	s.snap = snap
}
