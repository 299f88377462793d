// Package conversation keeps the recent reasoning-loop history of each chat
// so follow-up messages have context. History is bounded in length and
// forgotten after a period of inactivity.
package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/agentoven/larder/internal/reasoning"
)

const (
	DefaultMaxMessages = 20
	DefaultTTL         = 15 * time.Minute
)

// Store holds per-chat message history.
type Store interface {
	Get(ctx context.Context, chatID int64) ([]reasoning.Message, error)
	Append(ctx context.Context, chatID int64, msgs ...reasoning.Message) error
	Clear(ctx context.Context, chatID int64) error
}

type entry struct {
	messages     []reasoning.Message
	lastActivity time.Time
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[int64]*entry
	max     int
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a MemoryStore. Non-positive limits use the
// defaults.
func NewMemoryStore(maxMessages int, ttl time.Duration) *MemoryStore {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{entries: make(map[int64]*entry), max: maxMessages, ttl: ttl, now: time.Now}
}

// SetClock replaces the time source. Used by tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *MemoryStore) Get(_ context.Context, chatID int64) ([]reasoning.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(chatID)
	if e == nil {
		return nil, nil
	}
	return append([]reasoning.Message(nil), e.messages...), nil
}

func (s *MemoryStore) Append(_ context.Context, chatID int64, msgs ...reasoning.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var existing []reasoning.Message
	if e := s.live(chatID); e != nil {
		existing = e.messages
	}
	combined := append(append([]reasoning.Message(nil), existing...), msgs...)
	s.entries[chatID] = &entry{messages: Trim(combined, s.max), lastActivity: s.now()}
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, chatID int64) error {
	s.mu.Lock()
	delete(s.entries, chatID)
	s.mu.Unlock()
	return nil
}

// Sweep drops every idle conversation and returns how many it removed.
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id := range s.entries {
		if s.live(id) == nil {
			n++
		}
	}
	return n, nil
}

// live returns the entry for chatID, deleting it when idle. Caller holds mu.
func (s *MemoryStore) live(chatID int64) *entry {
	e, ok := s.entries[chatID]
	if !ok {
		return nil
	}
	if s.now().Sub(e.lastActivity) > s.ttl {
		delete(s.entries, chatID)
		return nil
	}
	return e
}

// Trim keeps the last max messages and then drops leading messages until
// the history opens with a plain user turn. A history that starts with an
// assistant turn or an orphaned tool result is rejected by the API.
func Trim(msgs []reasoning.Message, max int) []reasoning.Message {
	if len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}
	for len(msgs) > 0 && !opensTurn(msgs[0]) {
		msgs = msgs[1:]
	}
	return msgs
}

func opensTurn(m reasoning.Message) bool {
	if m.Role != reasoning.RoleUser {
		return false
	}
	for _, b := range m.Content {
		if b.Type == reasoning.BlockToolResult {
			return false
		}
	}
	return true
}
