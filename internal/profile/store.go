// Package profile persists BAZI profiles keyed by their sanitized name.
package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/antoniostano/baziview/internal/bazi"
)

// ErrNotFound is returned by Load for an unknown id.
var ErrNotFound = fmt.Errorf("profile %w", bazi.ErrLookupMiss)

// Store saves and loads profiles. Save overwrites any profile with the same
// id; the last writer wins.
type Store interface {
	Save(ctx context.Context, p bazi.Profile) error
	Load(ctx context.Context, id string) (bazi.Profile, error)
	LoadAll(ctx context.Context) ([]bazi.Profile, error)
	Close() error
}

// Options selects a store backend.
type Options struct {
	DatabaseURL string
	SQLitePath  string
	Dir         string
}

// NewStore picks postgres, then sqlite, then the JSON directory, and falls
// back to memory when nothing is configured.
func NewStore(ctx context.Context, opts Options) (Store, error) {
	switch {
	case strings.TrimSpace(opts.DatabaseURL) != "":
		return NewPostgresStore(ctx, opts.DatabaseURL)
	case strings.TrimSpace(opts.SQLitePath) != "":
		return NewSQLiteStore(opts.SQLitePath)
	case strings.TrimSpace(opts.Dir) != "":
		return NewFileStore(opts.Dir)
	default:
		return NewInMemoryStore(), nil
	}
}

func notFound(id string) error {
	return fmt.Errorf("%w: %q", ErrNotFound, id)
}
