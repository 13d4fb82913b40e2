package storage

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore keeps run history in process memory. It satisfies Store
// for runs that want history queries without a database file.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	generations map[string][]GenerationRecord
	champions   map[string]ChampionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.generations = make(map[string][]GenerationRecord)
	s.champions = make(map[string]ChampionRecord)
	return nil
}

func (s *MemoryStore) SaveGeneration(_ context.Context, rec GenerationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}

	recs := s.generations[rec.RunID]
	for i, existing := range recs {
		if existing.Generation == rec.Generation {
			recs[i] = rec
			return nil
		}
	}
	s.generations[rec.RunID] = append(recs, rec)
	return nil
}

func (s *MemoryStore) Generations(_ context.Context, runID string) ([]GenerationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, false, errors.New("store is not initialized")
	}

	recs, ok := s.generations[runID]
	if !ok {
		return nil, false, nil
	}
	out := make([]GenerationRecord, len(recs))
	copy(out, recs)
	return out, true, nil
}

func (s *MemoryStore) SaveChampion(_ context.Context, rec ChampionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}

	s.champions[rec.RunID] = rec
	return nil
}

func (s *MemoryStore) Champion(_ context.Context, runID string) (ChampionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return ChampionRecord{}, false, errors.New("store is not initialized")
	}

	rec, ok := s.champions[runID]
	return rec, ok, nil
}
