package transcript

import (
	"context"
	"fmt"

	"github.com/antoniostano/baziview/internal/chat"
	"github.com/antoniostano/baziview/internal/policy"
)

// Archiver redacts turns before handing them to a Store.
type Archiver struct {
	store Store
}

func NewArchiver(store Store) *Archiver {
	return &Archiver{store: store}
}

// Archive stores turns in order under sessionID.
func (a *Archiver) Archive(ctx context.Context, sessionID, profileID string, turns ...chat.Turn) error {
	if a == nil || a.store == nil {
		return nil
	}
	for _, t := range turns {
		content, redacted := policy.RedactPII(t.Text)
		if err := a.store.SaveTurn(ctx, Record{
			SessionID:   sessionID,
			ProfileID:   profileID,
			Role:        string(t.Role),
			Content:     content,
			PIIRedacted: redacted,
		}); err != nil {
			return fmt.Errorf("archive %s turn: %w", t.Role, err)
		}
	}
	return nil
}

// Turns returns the archived turns of a session.
func (a *Archiver) Turns(ctx context.Context, sessionID string) ([]Record, error) {
	if a == nil || a.store == nil {
		return nil, nil
	}
	return a.store.SessionTurns(ctx, sessionID)
}
