package skill

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process skill store for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]Skill
	now     func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]map[string]Skill),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemoryStore) List(_ context.Context, userID string) ([]Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byID := s.records[userID]
	out := make([]Skill, 0, len(byID))
	for _, rec := range byID {
		out = append(out, rec)
	}
	// Newest first, matching the postgres ordering.
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) Get(_ context.Context, userID, id string) (Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID][id]
	if !ok {
		return Skill{}, ErrNotFound
	}
	return rec, nil
}

func (s *InMemoryStore) Create(_ context.Context, userID string, d Draft) (Skill, error) {
	d, err := d.Normalize()
	if err != nil {
		return Skill{}, err
	}
	now := s.now()
	rec := Skill{
		ID:               uuid.NewString(),
		UserID:           userID,
		Name:             d.Name,
		Level:            d.Level,
		Category:         d.Category,
		ExperienceMonths: d.ExperienceMonths,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records[userID] == nil {
		s.records[userID] = make(map[string]Skill)
	}
	s.records[userID][rec.ID] = rec
	return rec, nil
}

func (s *InMemoryStore) Update(_ context.Context, userID, id string, u Update) (Skill, error) {
	u, err := u.Normalize()
	if err != nil {
		return Skill{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID][id]
	if !ok {
		return Skill{}, ErrNotFound
	}
	d := u.Apply(rec.Draft())
	rec.Name = d.Name
	rec.Level = d.Level
	rec.Category = d.Category
	rec.ExperienceMonths = d.ExperienceMonths
	rec.UpdatedAt = s.now()
	s.records[userID][id] = rec
	return rec, nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[userID][id]; !ok {
		return ErrNotFound
	}
	delete(s.records[userID], id)
	return nil
}

func (s *InMemoryStore) Categories(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, rec := range s.records[userID] {
		if _, ok := seen[rec.Category]; ok {
			continue
		}
		seen[rec.Category] = struct{}{}
		out = append(out, rec.Category)
	}
	sort.Strings(out)
	return out, nil
}

func (s *InMemoryStore) Mode() string { return "in-memory" }

func (s *InMemoryStore) Close() error { return nil }
