// Package transcript archives redacted chat turns per session. Archived turns
// are for review only and are never fed back into a prompt.
package transcript

import (
	"context"
	"time"
)

// Record stores a single archived user or assistant turn.
type Record struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	ProfileID   string    `json:"profile_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists and retrieves archived turns.
type Store interface {
	SaveTurn(ctx context.Context, record Record) error
	SessionTurns(ctx context.Context, sessionID string) ([]Record, error)
	Close() error
}
