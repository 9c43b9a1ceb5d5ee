package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/antoniostano/baziview/internal/bazi"
)

// FileStore keeps one JSON document per profile in a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create profiles dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) Save(_ context.Context, p bazi.Profile) error {
	if bazi.ProfileID(p.ID) != p.ID || p.ID == "" {
		return fmt.Errorf("save profile: invalid id %q", p.ID)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, p.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save profile: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(p.ID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context, id string) (bazi.Profile, error) {
	if id == "" || bazi.ProfileID(id) != id {
		return bazi.Profile{}, notFound(id)
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return bazi.Profile{}, notFound(id)
	}
	if err != nil {
		return bazi.Profile{}, fmt.Errorf("read profile %s: %w", id, err)
	}
	var p bazi.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return bazi.Profile{}, fmt.Errorf("decode profile %s: %w", id, err)
	}
	return p, nil
}

// LoadAll returns every readable profile sorted by id. Unreadable files are
// logged and skipped.
func (s *FileStore) LoadAll(ctx context.Context) ([]bazi.Profile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	out := make([]bazi.Profile, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		p, err := s.Load(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			slog.Warn("profile: skipping unreadable file", "file", name, "err", err)
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *FileStore) Close() error { return nil }
