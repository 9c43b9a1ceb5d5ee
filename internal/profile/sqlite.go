package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/antoniostano/baziview/internal/bazi"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	birth_date TEXT NOT NULL,
	birth_time TEXT NOT NULL,
	timezone TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	chart TEXT,
	analysis TEXT,
	created_at TEXT NOT NULL
);`

// SQLiteStore persists profiles in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps writers serialized inside database/sql.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, p bazi.Profile) error {
	chart, err := encodeChart(p.Chart)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO profiles
			(id, name, birth_date, birth_time, timezone, location, chart, analysis, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.BirthDate, p.BirthTime, p.Timezone, p.Location,
		chart, p.Analysis, p.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

const sqliteSelect = `SELECT id, name, birth_date, birth_time, timezone, location, chart, analysis, created_at FROM profiles`

func (s *SQLiteStore) Load(ctx context.Context, id string) (bazi.Profile, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelect+` WHERE id = ?`, id)
	p, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return bazi.Profile{}, notFound(id)
	}
	if err != nil {
		return bazi.Profile{}, fmt.Errorf("load profile %s: %w", id, err)
	}
	return p, nil
}

func (s *SQLiteStore) LoadAll(ctx context.Context) ([]bazi.Profile, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelect+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var out []bazi.Profile
	for rows.Next() {
		p, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row scanner) (bazi.Profile, error) {
	var (
		p         bazi.Profile
		chart     sql.NullString
		analysis  sql.NullString
		createdAt string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.BirthDate, &p.BirthTime, &p.Timezone, &p.Location, &chart, &analysis, &createdAt); err != nil {
		return bazi.Profile{}, err
	}
	if chart.Valid {
		c, err := decodeChart([]byte(chart.String))
		if err != nil {
			return bazi.Profile{}, err
		}
		p.Chart = c
	}
	if analysis.Valid {
		a := analysis.String
		p.Analysis = &a
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return bazi.Profile{}, fmt.Errorf("parse created_at: %w", err)
	}
	p.CreatedAt = t
	return p, nil
}

func encodeChart(c *bazi.Chart) (*string, error) {
	if c == nil {
		return nil, nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal chart: %w", err)
	}
	s := string(data)
	return &s, nil
}

func decodeChart(data []byte) (*bazi.Chart, error) {
	var c bazi.Chart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode chart: %w", err)
	}
	return &c, nil
}
