package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

const (
	DefaultDir   = "./wal/legpairs"
	segmentLimit = 1000
	maxSegments  = 100

	recordKeyPrefix = "leg_pair_"
)

// WALStore persists terminal LegPair outcomes in a write-ahead log.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed audit store.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "legpair_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init audit WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save appends the record to the WAL.
func (s *WALStore) Save(record Record) error {
	if s == nil || s.wal == nil {
		return errors.New("audit store is not initialized")
	}
	if record.LegPairID == "" {
		return errors.New("audit record leg pair id is required")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal audit record")
	}

	key := fmt.Sprintf("%s%s", recordKeyPrefix, record.LegPairID)

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// RecordsAfter returns all audit records written after the provided index.
func (s *WALStore) RecordsAfter(index uint64) ([]Record, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("audit store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]Record, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(key, recordKeyPrefix) {
			continue
		}

		var record Record
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, errors.Wrap(err, "decode audit record")
		}
		records = append(records, record)
	}

	return records, nil
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("audit store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
