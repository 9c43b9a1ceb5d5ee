package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/antoniostano/baziview/internal/bazi"
)

// PostgresStore persists profiles in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bazi_profiles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			birth_date TEXT NOT NULL,
			birth_time TEXT NOT NULL,
			timezone TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			chart JSONB,
			analysis TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, p bazi.Profile) error {
	chart, err := encodeChart(p.Chart)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO bazi_profiles (id, name, birth_date, birth_time, timezone, location, chart, analysis, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			birth_date = EXCLUDED.birth_date,
			birth_time = EXCLUDED.birth_time,
			timezone = EXCLUDED.timezone,
			location = EXCLUDED.location,
			chart = EXCLUDED.chart,
			analysis = EXCLUDED.analysis,
			created_at = EXCLUDED.created_at`,
		p.ID, p.Name, p.BirthDate, p.BirthTime, p.Timezone, p.Location, chart, p.Analysis, p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

const postgresSelect = `SELECT id, name, birth_date, birth_time, timezone, location, chart::text, analysis, created_at FROM bazi_profiles`

func (s *PostgresStore) Load(ctx context.Context, id string) (bazi.Profile, error) {
	p, err := scanPostgres(s.pool.QueryRow(ctx, postgresSelect+` WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return bazi.Profile{}, notFound(id)
	}
	if err != nil {
		return bazi.Profile{}, fmt.Errorf("load profile %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) LoadAll(ctx context.Context) ([]bazi.Profile, error) {
	rows, err := s.pool.Query(ctx, postgresSelect+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var out []bazi.Profile
	for rows.Next() {
		p, err := scanPostgres(rows)
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

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPostgres(row pgx.Row) (bazi.Profile, error) {
	var (
		p     bazi.Profile
		chart *string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.BirthDate, &p.BirthTime, &p.Timezone, &p.Location, &chart, &p.Analysis, &p.CreatedAt); err != nil {
		return bazi.Profile{}, err
	}
	if chart != nil {
		c, err := decodeChart([]byte(*chart))
		if err != nil {
			return bazi.Profile{}, err
		}
		p.Chart = c
	}
	return p, nil
}
