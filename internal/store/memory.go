package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"

	"github.com/i474232898/weather-odds/internal/weather"
)

var (
	// ErrNotFound is returned when no result is stored under a query id.
	ErrNotFound = eris.New("query_id not found")
	// ErrExists is returned when a query id is saved twice.
	ErrExists = eris.New("query_id already stored")
)

type entry struct {
	result  *weather.Result
	savedAt time.Time
}

// MemoryStore is a concurrency-safe in-memory result store. Entries are
// write-once and removed by Prune once they exceed the retention limits.
type MemoryStore struct {
	mu sync.RWMutex

	data  map[string]entry
	order []string // insertion order, oldest first

	// retention configuration
	maxEntries int           // max number of stored results (0 = unlimited)
	maxAge     time.Duration // max age of a result (0 = unlimited)
	clock      clockwork.Clock
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxEntries is <= 0, it is treated as unlimited.
func NewMemoryStore(maxEntries int, maxAge time.Duration, clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		data:       make(map[string]entry),
		maxEntries: maxEntries,
		maxAge:     maxAge,
		clock:      clock,
	}
}

// Save stores result under its query id. An id is never overwritten.
func (s *MemoryStore) Save(_ context.Context, result *weather.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[result.QueryID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, result.QueryID)
	}
	s.data[result.QueryID] = entry{result: result, savedAt: s.clock.Now()}
	s.order = append(s.order, result.QueryID)

	// Enforce retention by count.
	if s.maxEntries > 0 && len(s.order) > s.maxEntries {
		over := len(s.order) - s.maxEntries
		for _, id := range s.order[:over] {
			delete(s.data, id)
		}
		s.order = s.order[over:]
	}
	return nil
}

// Get returns the stored result for queryID.
func (s *MemoryStore) Get(_ context.Context, queryID string) (*weather.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[queryID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, queryID)
	}
	return e.result, nil
}

// Prune removes results older than the max age and returns how many were
// dropped.
func (s *MemoryStore) Prune(_ context.Context) (int, error) {
	if s.maxAge <= 0 {
		return 0, nil
	}
	cutoff := s.clock.Now().Add(-s.maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	i := 0
	for ; i < len(s.order); i++ {
		if !s.data[s.order[i]].savedAt.Before(cutoff) {
			break
		}
		delete(s.data, s.order[i])
	}
	s.order = s.order[i:]
	return i, nil
}

// Len reports how many results are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
