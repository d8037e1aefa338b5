// Package session keeps server-side chat conversations: the bounded turn
// history sent with each extraction and the draft record the extracted
// updates are merged into.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/skilldash/internal/extraction"
	"github.com/ent0n29/skilldash/internal/skill"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrEnded    = errors.New("session ended")
)

type Session struct {
	ID             string
	UserID         string
	Status         Status
	History        []extraction.Turn
	Draft          skill.Draft
	TurnCount      int
	StartedAt      time.Time
	LastActivityAt time.Time
}

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	inactivityTimeout time.Duration
	onExpire          func(*Session)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 10 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Create(userID string) *Session {
	if userID == "" {
		userID = skill.DefaultUserID
	}
	now := time.Now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return clone(s)
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// RecordExchange appends a user turn and the assistant reply, keeps the
// last MaxHistoryTurns turns and merges update into the draft.
func (m *Manager) RecordExchange(sessionID, message, reply string, update *skill.Update) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Status != StatusActive {
		return nil, ErrEnded
	}
	s.History = append(s.History,
		extraction.Turn{Role: extraction.RoleUser, Content: message},
		extraction.Turn{Role: extraction.RoleAssistant, Content: reply},
	)
	if over := len(s.History) - extraction.MaxHistoryTurns; over > 0 {
		s.History = append([]extraction.Turn(nil), s.History[over:]...)
	}
	if update != nil {
		s.Draft = update.Apply(s.Draft)
	}
	s.TurnCount++
	s.LastActivityAt = time.Now().UTC()
	return clone(s), nil
}

// SetDraft replaces the draft, e.g. with a voice extraction.
func (m *Manager) SetDraft(sessionID string, d skill.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.Draft = d
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// Reset clears the history and the draft.
func (m *Manager) Reset(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.History = nil
	s.Draft = skill.Draft{}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	s.Status = StatusEnded
	s.LastActivityAt = time.Now().UTC()
	return clone(s), nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

// Snapshot renders s for clients.
func (m *Manager) Snapshot(s *Session) Snapshot {
	history := s.History
	if history == nil {
		history = []extraction.Turn{}
	}
	return Snapshot{
		SessionID:       s.ID,
		UserID:          s.UserID,
		Status:          s.Status,
		History:         history,
		Draft:           s.Draft,
		TurnCount:       s.TurnCount,
		StartedAt:       s.StartedAt,
		LastActivityAt:  s.LastActivityAt,
		InactivityTTLMS: m.inactivityTimeout.Milliseconds(),
	}
}

// expireInactive ends idle sessions and forgets ended ones once they have
// been idle for another full timeout.
func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		idle := now.Sub(s.LastActivityAt)
		if idle < m.inactivityTimeout {
			continue
		}
		if s.Status == StatusEnded {
			delete(m.sessions, id)
			continue
		}
		s.Status = StatusEnded
		s.LastActivityAt = now
		expired = append(expired, clone(s))
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	c.History = append([]extraction.Turn(nil), s.History...)
	return &c
}
