package session

import (
	"context"
	"slices"
	"sort"
	"sync"

	"voice-quiz-server/internal/domain/evaluation"
)

type memoryStore struct {
	mu     sync.RWMutex
	items  map[string]GameSession
	active map[string]string
}

// NewMemory builds an in-memory session store.
func NewMemory() Store {
	return &memoryStore{
		items:  make(map[string]GameSession),
		active: make(map[string]string),
	}
}

func (s *memoryStore) Create(_ context.Context, gs GameSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[gs.ID]; exists {
		return ErrActiveExists
	}
	if gs.State == StateInProgress {
		if _, exists := s.active[gs.pairKey()]; exists {
			return ErrActiveExists
		}
		s.active[gs.pairKey()] = gs.ID
	}
	s.items[gs.ID] = clone(gs)
	return nil
}

func (s *memoryStore) GetActive(_ context.Context, userID, quizID string) (GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.active[pairKey(userID, quizID)]
	if !ok {
		return GameSession{}, ErrNotFound
	}
	return clone(s.items[id]), nil
}

func (s *memoryStore) Get(_ context.Context, id string) (GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	gs, ok := s.items[id]
	if !ok {
		return GameSession{}, ErrNotFound
	}
	return clone(gs), nil
}

func (s *memoryStore) Update(_ context.Context, id string, fn func(*GameSession) error) (GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items[id]
	if !ok {
		return GameSession{}, ErrNotFound
	}
	next := clone(current)
	if err := fn(&next); err != nil {
		return GameSession{}, err
	}

	if current.State == StateInProgress && next.State != StateInProgress {
		delete(s.active, current.pairKey())
	}
	s.items[id] = next
	return clone(next), nil
}

func (s *memoryStore) ListByUser(_ context.Context, userID string) ([]GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]GameSession, 0)
	for _, gs := range s.items {
		if gs.UserID == userID {
			out = append(out, clone(gs))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}

// clone deep-copies gs so callers never share maps, slices or evaluations
// with the stored record.
func clone(gs GameSession) GameSession {
	if gs.Recordings != nil {
		recs := make(map[int]RecordingPayload, len(gs.Recordings))
		for k, v := range gs.Recordings {
			if v.Evaluation != nil {
				ev := *v.Evaluation
				v.Evaluation = &ev
			}
			recs[k] = v
		}
		gs.Recordings = recs
	}
	if gs.Summary != nil {
		sum := *gs.Summary
		if sum.LevelCounts != nil {
			counts := make(map[evaluation.Level]int, len(sum.LevelCounts))
			for level, n := range sum.LevelCounts {
				counts[level] = n
			}
			sum.LevelCounts = counts
		}
		sum.KeyInsights = slices.Clone(sum.KeyInsights)
		gs.Summary = &sum
	}
	return gs
}

func sortNewestFirst(list []GameSession) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].StartedAt.After(list[j].StartedAt)
	})
}
