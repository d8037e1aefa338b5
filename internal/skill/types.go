package skill

import (
	"context"
	"errors"
	"time"
)

// Well-known categories the extraction prompts steer the model towards.
// Stored records may still carry any non-empty category.
const (
	CategoryFrontend       = "Frontend"
	CategoryBackend        = "Backend"
	CategoryLanguage       = "Language"
	CategoryInfrastructure = "Infrastructure"
)

// Categories lists the well-known categories in display order.
var Categories = []string{
	CategoryFrontend,
	CategoryBackend,
	CategoryLanguage,
	CategoryInfrastructure,
}

const (
	MinLevel       = 1
	MaxLevel       = 5
	MaxNameLen     = 100
	MaxCategoryLen = 50
	DefaultUserID  = "anonymous"
)

var ErrNotFound = errors.New("skill not found")

// Draft is a complete skill record that has not been persisted yet.
type Draft struct {
	Name             string `json:"name"`
	Level            int    `json:"level"`
	Category         string `json:"category"`
	ExperienceMonths int    `json:"experience_months"`
}

// Update is a partial skill record. A nil field is absent and must not
// overwrite the corresponding field of the record it is merged into.
type Update struct {
	Name             *string `json:"name,omitempty"`
	Level            *int    `json:"level,omitempty"`
	Category         *string `json:"category,omitempty"`
	ExperienceMonths *int    `json:"experience_months,omitempty"`
}

// Skill is a persisted skill record.
type Skill struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Name             string    `json:"name"`
	Level            int       `json:"level"`
	Category         string    `json:"category"`
	ExperienceMonths int       `json:"experience_months"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Store persists skill records per user.
type Store interface {
	List(ctx context.Context, userID string) ([]Skill, error)
	Get(ctx context.Context, userID, id string) (Skill, error)
	Create(ctx context.Context, userID string, d Draft) (Skill, error)
	Update(ctx context.Context, userID, id string, u Update) (Skill, error)
	Delete(ctx context.Context, userID, id string) error
	Categories(ctx context.Context, userID string) ([]string, error)
	Mode() string
	Close() error
}

// Pinger is implemented by stores backed by a remote or file database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// IsEmpty reports whether no field is present.
func (u Update) IsEmpty() bool {
	return u.Name == nil && u.Level == nil && u.Category == nil && u.ExperienceMonths == nil
}

// Apply merges the present fields of u into d.
func (u Update) Apply(d Draft) Draft {
	if u.Name != nil {
		d.Name = *u.Name
	}
	if u.Level != nil {
		d.Level = *u.Level
	}
	if u.Category != nil {
		d.Category = *u.Category
	}
	if u.ExperienceMonths != nil {
		d.ExperienceMonths = *u.ExperienceMonths
	}
	return d
}

// Draft returns the mutable fields of s.
func (s Skill) Draft() Draft {
	return Draft{
		Name:             s.Name,
		Level:            s.Level,
		Category:         s.Category,
		ExperienceMonths: s.ExperienceMonths,
	}
}
