// Package postgres provides the Postgres-backed media catalog.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/filmmeta/internal/crawler"
)

// DefaultTable holds catalog rows when no table is configured.
const DefaultTable = "media_records"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used by the catalog.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// CatalogStore creates media records keyed by url, skipping urls that are
// already present.
type CatalogStore struct {
	pool  execCloser
	table string
}

// NewCatalogStore connects a pool using cfg.
func NewCatalogStore(ctx context.Context, cfg Config) (*CatalogStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &CatalogStore{pool: pool, table: table}, nil
}

// NewCatalogStoreWithPool wraps an existing pool, mostly for tests.
func NewCatalogStoreWithPool(pool execCloser, table string) (*CatalogStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &CatalogStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	return tableNameOr(table, DefaultTable)
}

func tableNameOr(table, fallback string) (string, error) {
	if table == "" {
		table = fallback
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Runs returns a run history store sharing the catalog's pool.
func (s *CatalogStore) Runs(table string) (*RunStore, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("catalog store is not configured")
	}
	return NewRunStoreWithPool(s.pool, table)
}

// Close releases the pool.
func (s *CatalogStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the catalog table when it does not exist.
func (s *CatalogStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("catalog store is not configured")
	}
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	url              TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	description      TEXT,
	alternate_titles TEXT[] NOT NULL DEFAULT '{}',
	genres           TEXT[] NOT NULL DEFAULT '{}',
	themes           TEXT[] NOT NULL DEFAULT '{}',
	countries        TEXT[] NOT NULL DEFAULT '{}',
	cast_members     TEXT[] NOT NULL DEFAULT '{}',
	crew             JSONB NOT NULL DEFAULT '{}',
	release_year     INTEGER,
	runtime_minutes  INTEGER,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create catalog table: %w", err)
	}
	return nil
}

// CreateIfAbsent inserts rec unless a row with the same url exists. It
// reports whether a row was created.
func (s *CatalogStore) CreateIfAbsent(ctx context.Context, rec crawler.MediaRecord) (bool, error) {
	if s == nil || s.pool == nil {
		return false, fmt.Errorf("catalog store is not configured")
	}
	if rec.URL == "" {
		return false, fmt.Errorf("record url is required")
	}
	crewJSON, err := json.Marshal(rec.Crew)
	if err != nil {
		return false, fmt.Errorf("marshal crew: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	url,
	title,
	description,
	alternate_titles,
	genres,
	themes,
	countries,
	cast_members,
	crew,
	release_year,
	runtime_minutes
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (url) DO NOTHING`, s.table)

	args := []any{
		rec.URL,
		rec.Title,
		rec.Description,
		nonNil(rec.AlternateTitles),
		nonNil(rec.Genres),
		nonNil(rec.Themes),
		nonNil(rec.Countries),
		nonNil(rec.Cast),
		crewJSON,
		rec.ReleaseYear,
		rec.RuntimeMinutes,
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert media record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
