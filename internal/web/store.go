package web

import (
	"sync"
	"time"
)

// maxHistory bounds the in-memory session history.
const maxHistory = 100

// Store provides thread-safe in-memory storage for the Q&A session.
// History is per-process and single-user; nothing is persisted.
type Store struct {
	mu        sync.RWMutex
	exchanges []Exchange
	questions int
	ingests   int
}

// NewStore creates a new Store instance.
func NewStore() *Store {
	return &Store{
		exchanges: make([]Exchange, 0, maxHistory),
	}
}

// AddExchange appends a completed exchange, evicting the oldest entries
// beyond maxHistory.
func (s *Store) AddExchange(e Exchange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exchanges = append(s.exchanges, e)
	s.questions++
	if len(s.exchanges) > maxHistory {
		s.exchanges = s.exchanges[len(s.exchanges)-maxHistory:]
	}
}

// History returns up to limit exchanges, most recent first. limit <= 0
// returns everything retained.
func (s *Store) History(limit int) []Exchange {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.exchanges)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]Exchange, 0, n)
	for i := len(s.exchanges) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.exchanges[i])
	}
	return out
}

// Clear drops the session history and resets the question count.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges = s.exchanges[:0]
	s.questions = 0
}

// RecordIngest counts a completed document ingest.
func (s *Store) RecordIngest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingests++
}

// Stats computes aggregate statistics over the retained history.
// Store-level fields only; the server fills in index readiness.
func (s *Store) Stats() SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// questions counts every exchange ever added; the per-answer
	// aggregates below cover only the retained window.
	stats := SessionStats{
		QuestionsAsked:    s.questions,
		DocumentsIngested: s.ingests,
	}

	var totalDuration time.Duration
	for _, e := range s.exchanges {
		if e.Grounded {
			stats.GroundedAnswers++
		}
		stats.TotalTokens += e.Tokens
		totalDuration += e.Duration
	}
	if len(s.exchanges) > 0 {
		stats.AvgDuration = totalDuration.Seconds() / float64(len(s.exchanges))
	}

	return stats
}
