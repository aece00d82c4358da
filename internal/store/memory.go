package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/i474232898/tripcast/internal/board"
)

var (
	// ErrNotFound is returned when no board has the given id.
	ErrNotFound = errors.New("board not found")
)

// MemoryStore is a concurrency-safe in-memory registry of boards.
type MemoryStore struct {
	mu sync.RWMutex

	// key: board id
	boards map[string]*board.Board

	// retention configuration
	maxBoards int           // max number of live boards
	maxAge    time.Duration // idle time after which a board is pruned

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxBoards is <= 0, it is treated as unlimited.
func NewMemoryStore(maxBoards int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		boards:    make(map[string]*board.Board),
		maxBoards: maxBoards,
		maxAge:    maxAge,
		now:       time.Now,
	}
}

// Save registers a board and enforces retention by count, evicting the
// least recently active boards first.
func (s *MemoryStore) Save(b *board.Board) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.boards[b.ID()] = b

	if s.maxBoards <= 0 || len(s.boards) <= s.maxBoards {
		return
	}

	others := make([]*board.Board, 0, len(s.boards))
	for id, other := range s.boards {
		if id != b.ID() {
			others = append(others, other)
		}
	}
	sort.Slice(others, func(i, j int) bool {
		return others[i].LastActive().Before(others[j].LastActive())
	})

	over := len(s.boards) - s.maxBoards
	for _, victim := range others[:over] {
		s.evict(victim, "capacity")
	}
}

// Get returns a board and marks it active.
func (s *MemoryStore) Get(id string) (*board.Board, error) {
	s.mu.RLock()
	b, ok := s.boards[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	b.Touch()
	return b, nil
}

// Delete removes a board.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.boards[id]
	if !ok {
		return ErrNotFound
	}
	s.evict(b, "deleted")
	return nil
}

// All returns every live board, oldest first.
func (s *MemoryStore) All() []*board.Board {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*board.Board, 0, len(s.boards))
	for _, b := range s.boards {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt().Before(result[j].CreatedAt())
	})
	return result
}

// Len returns the number of live boards.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.boards)
}

// Prune enforces retention by age and returns how many boards were removed.
func (s *MemoryStore) Prune() int {
	if s.maxAge <= 0 {
		return 0
	}

	cutoff := s.now().Add(-s.maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, b := range s.boards {
		if b.LastActive().Before(cutoff) {
			s.evict(b, "idle")
			removed++
		}
	}
	return removed
}

// evict must be called with mu held.
func (s *MemoryStore) evict(b *board.Board, reason string) {
	delete(s.boards, b.ID())
	b.Close()
	log.Debug().Str("board", b.ID()).Str("reason", reason).Msg("board removed")
}
