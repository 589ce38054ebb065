package storage

import (
	"context"
	"sync"

	"github.com/foliotrace/foliotrace/pkg/session"
)

// MemoryStore keeps snapshots in a mutex-guarded map. It is the default
// backend and the one embedding callers get when they configure nothing.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]*session.Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snaps: make(map[string]*session.Snapshot),
	}
}

// Save stores a deep copy of the snapshot so later mutations by the caller
// cannot leak into stored state.
func (s *MemoryStore) Save(ctx context.Context, snap *session.Snapshot) error {
	if err := validateID(snap.ID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.ID] = snap.Clone()
	return nil
}

// Get returns a deep copy of the stored snapshot, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, id string) (*session.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[id]
	if !ok {
		return nil, ErrNotFound
	}
	return snap.Clone(), nil
}

// List enumerates stored sessions, most recent activity first.
func (s *MemoryStore) List(ctx context.Context) ([]SessionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	infos := make([]SessionInfo, 0, len(s.snaps))
	for _, snap := range s.snaps {
		infos = append(infos, infoFor(snap, 0))
	}
	s.mu.RUnlock()

	sortByActivity(infos)
	return infos, nil
}

// Delete removes a stored snapshot, or returns ErrNotFound.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snaps[id]; !ok {
		return ErrNotFound
	}
	delete(s.snaps, id)
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Name implements Store.
func (s *MemoryStore) Name() string { return TypeMemory }

// Close drops all stored snapshots.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = make(map[string]*session.Snapshot)
	return nil
}

// Len reports the number of stored snapshots.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snaps)
}
