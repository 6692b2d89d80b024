package memory

import (
	"context"
	"sync"

	"github.com/xraph/tickledger"
	"github.com/xraph/tickledger/id"
	"github.com/xraph/tickledger/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store keeps snapshots in process memory. Snapshots are deep-copied on the
// way in and out so callers cannot alias stored state.
type Store struct {
	mu sync.RWMutex

	snapshots map[string]*store.Snapshot
	saves     int
}

func New() *Store {
	return &Store{
		snapshots: make(map[string]*store.Snapshot),
	}
}

func (s *Store) SaveSnapshot(_ context.Context, snap *store.Snapshot) error {
	if snap.InstanceID.IsNil() {
		return tickledger.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snap.InstanceID.String()] = snap.Clone()
	s.saves++
	return nil
}

func (s *Store) LoadSnapshot(_ context.Context, instanceID id.InstanceID) (*store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if snap, ok := s.snapshots[instanceID.String()]; ok {
		return snap.Clone(), nil
	}
	return nil, tickledger.ErrSnapshotNotFound
}

func (s *Store) DeleteSnapshot(_ context.Context, instanceID id.InstanceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snapshots[instanceID.String()]; !ok {
		return tickledger.ErrSnapshotNotFound
	}
	delete(s.snapshots, instanceID.String())
	return nil
}

// Saves returns how many snapshots have been written.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}
