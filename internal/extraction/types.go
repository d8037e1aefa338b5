// Package extraction turns free-form chat turns and voice transcripts into
// skill records by delegating to a completion model.
package extraction

import (
	"context"
	"unicode/utf8"

	"github.com/ent0n29/skilldash/internal/policy"
	"github.com/ent0n29/skilldash/internal/skill"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	// MaxHistoryTurns bounds the history a caller may submit with a turn.
	MaxHistoryTurns = 20
	// PromptHistoryTurns is the suffix of history rendered into a prompt.
	PromptHistoryTurns = 6
	MaxMessageRunes    = policy.MaxInputRunes
)

// Turn is one message of a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is one chat turn submitted for extraction.
type ChatRequest struct {
	ClientKey string
	Message   string
	History   []Turn
}

// Result is the outcome of one chat turn. Update is nil when the turn
// revealed no field.
type Result struct {
	Reply  string
	Update *skill.Update
}

// Limiter admits or rejects a request for a client key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Model returns a completion for a prompt.
type Model interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Validate checks the request shape. It runs before any limited or
// external resource is touched.
func (r ChatRequest) Validate() error {
	if r.Message == "" {
		return &ValidationError{Field: "message", Reason: "is required"}
	}
	if utf8.RuneCountInString(r.Message) > MaxMessageRunes {
		return &ValidationError{Field: "message", Reason: "is too long (max 500 characters)"}
	}
	if policy.Sanitize(r.Message) == "" {
		return &ValidationError{Field: "message", Reason: "contains no usable text"}
	}
	if len(r.History) > MaxHistoryTurns {
		return &ValidationError{Field: "history", Reason: "has more than 20 turns"}
	}
	for _, t := range r.History {
		if t.Role != RoleUser && t.Role != RoleAssistant {
			return &ValidationError{Field: "history", Reason: "role must be user or assistant"}
		}
	}
	return nil
}
