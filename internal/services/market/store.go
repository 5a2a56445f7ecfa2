// Package market holds the latest depth snapshot per instrument pair and
// decides whether a snapshot is fresh enough to act on.
package market

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/basisalpha/basisbot/internal/domain"
)

// SnapshotStore keeps the most recent MarketSnapshot per instrument pair.
// The feed goroutine is the only writer; strategy cycles only read.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]*domain.MarketSnapshot
	logger    *zap.Logger
}

// NewSnapshotStore creates an empty store.
func NewSnapshotStore(logger *zap.Logger) *SnapshotStore {
	return &SnapshotStore{
		snapshots: make(map[string]*domain.MarketSnapshot),
		logger:    logger,
	}
}

// Put records a snapshot. Snapshots older than the stored one for the same
// pair are dropped: per-pair timestamps are monotonically non-decreasing.
func (s *SnapshotStore) Put(snap *domain.MarketSnapshot) {
	if snap == nil {
		return
	}

	key := snap.Pair.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.snapshots[key]; ok && snap.Timestamp.Before(prev.Timestamp) {
		s.logger.Debug("dropping out-of-order snapshot",
			zap.String("pair", snap.Pair.String()),
			zap.Time("snapshot_ts", snap.Timestamp),
			zap.Time("stored_ts", prev.Timestamp))
		return
	}
	s.snapshots[key] = snap
}

// Latest returns the stored snapshot for the pair, or false when none exists.
func (s *SnapshotStore) Latest(key string) (*domain.MarketSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[key]
	return snap, ok
}

// All returns every stored snapshot.
func (s *SnapshotStore) All() []*domain.MarketSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.MarketSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap)
	}
	return out
}

// Run drains the feed channel into the store until the context is cancelled
// or the channel closes. Ingestion never blocks on strategy logic.
func (s *SnapshotStore) Run(ctx context.Context, feed <-chan *domain.MarketSnapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-feed:
			if !ok {
				return
			}
			s.Put(snap)
		}
	}
}
