package memory

import (
	"context"
	"sync"
	"time"

	"github.com/smallnest/ragflow/rag"
)

// Store persists conversation turns per session.
type Store interface {
	// Append adds turns to the end of a session.
	Append(ctx context.Context, sessionID string, turns ...rag.ConversationTurn) error
	// Recent returns at most n of the latest turns, oldest first.
	Recent(ctx context.Context, sessionID string, n int) ([]rag.ConversationTurn, error)
	// Clear removes a session.
	Clear(ctx context.Context, sessionID string) error
	// GetStats reports usage across sessions.
	GetStats(ctx context.Context) (*Stats, error)
}

// Stats contains statistics about memory usage
type Stats struct {
	Sessions   int
	TotalTurns int
}

// DefaultWindowSize is the number of turns kept per session in memory.
const DefaultWindowSize = 50

// SlidingWindowMemory keeps only the most recent turns of each session
type SlidingWindowMemory struct {
	mu         sync.RWMutex
	sessions   map[string][]rag.ConversationTurn
	windowSize int
	now        func() time.Time
}

var _ Store = (*SlidingWindowMemory)(nil)

// NewSlidingWindowMemory creates a new sliding window memory
func NewSlidingWindowMemory(windowSize int) *SlidingWindowMemory {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &SlidingWindowMemory{
		sessions:   make(map[string][]rag.ConversationTurn),
		windowSize: windowSize,
		now:        time.Now,
	}
}

// Append implements Store
func (s *SlidingWindowMemory) Append(ctx context.Context, sessionID string, turns ...rag.ConversationTurn) error {
	if sessionID == "" {
		return rag.NewConfigError("session_id", "must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	window := s.sessions[sessionID]
	for _, turn := range turns {
		if turn.Timestamp.IsZero() {
			turn.Timestamp = s.now()
		}
		window = append(window, turn)
	}
	if len(window) > s.windowSize {
		window = append([]rag.ConversationTurn(nil), window[len(window)-s.windowSize:]...)
	}
	s.sessions[sessionID] = window
	return nil
}

// Recent implements Store
func (s *SlidingWindowMemory) Recent(ctx context.Context, sessionID string, n int) ([]rag.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	last := rag.LastTurns(s.sessions[sessionID], n)
	return append([]rag.ConversationTurn(nil), last...), nil
}

// Clear implements Store
func (s *SlidingWindowMemory) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// GetStats implements Store
func (s *SlidingWindowMemory) GetStats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{Sessions: len(s.sessions)}
	for _, turns := range s.sessions {
		stats.TotalTurns += len(turns)
	}
	return stats, nil
}
