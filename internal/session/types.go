package session

import (
	"time"

	"github.com/ent0n29/skilldash/internal/extraction"
	"github.com/ent0n29/skilldash/internal/skill"
)

// CreateRequest defines payload for creating a chat session.
type CreateRequest struct {
	UserID string `json:"user_id"`
}

// Snapshot is the client view of a session.
type Snapshot struct {
	SessionID       string            `json:"session_id"`
	UserID          string            `json:"user_id"`
	Status          Status            `json:"status"`
	History         []extraction.Turn `json:"history"`
	Draft           skill.Draft       `json:"draft"`
	TurnCount       int               `json:"turn_count"`
	StartedAt       time.Time         `json:"started_at"`
	LastActivityAt  time.Time         `json:"last_activity_at"`
	InactivityTTLMS int64             `json:"inactivity_ttl_ms"`
}
