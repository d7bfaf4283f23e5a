package versionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vk/setupgrid/internal/semver"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS setup_versions (
  item_type TEXT NOT NULL,
  full_name TEXT NOT NULL,
  version TEXT NOT NULL,
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  PRIMARY KEY (item_type, full_name)
);
`

// Postgres stores versions in the setup_versions table. Reads go through an
// LRU cache that is updated on every successful write.
type Postgres struct {
	db    *sql.DB
	cache *lru.Cache[string, semver.Version]

	// createSchema runs until it succeeds once.
	schemaMu     sync.Mutex
	schemaReady  bool
	createSchema func(ctx context.Context) error
}

// NewPostgres connects to dsn through the pgx driver.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("versionstore: postgres backend requires a DSN")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("versionstore: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("versionstore: ping postgres: %w", err)
	}
	return NewPostgresDB(db)
}

// NewPostgresDB wraps an already opened database.
func NewPostgresDB(db *sql.DB) (*Postgres, error) {
	cache, err := lru.New[string, semver.Version](1024)
	if err != nil {
		return nil, err
	}
	p := &Postgres{db: db, cache: cache}
	p.createSchema = func(ctx context.Context) error {
		_, err := db.ExecContext(ctx, postgresSchema)
		return err
	}
	return p, nil
}

// ensureSchema creates the table on first use. A failed attempt is retried
// by the next call.
func (p *Postgres) ensureSchema(ctx context.Context) error {
	p.schemaMu.Lock()
	defer p.schemaMu.Unlock()
	if p.schemaReady {
		return nil
	}
	if err := p.createSchema(ctx); err != nil {
		return err
	}
	p.schemaReady = true
	return nil
}

func (p *Postgres) GetVersion(ctx context.Context, itemType, fullName string) (semver.Version, error) {
	if err := checkKey(itemType, fullName); err != nil {
		return semver.Version{}, err
	}
	key := Key(itemType, fullName)
	if v, ok := p.cache.Get(key); ok {
		return v, nil
	}
	if err := p.ensureSchema(ctx); err != nil {
		return semver.Version{}, fmt.Errorf("versionstore: ensure schema: %w", err)
	}

	var raw string
	err := p.db.QueryRowContext(ctx,
		`SELECT version FROM setup_versions WHERE item_type = $1 AND full_name = $2`,
		itemType, fullName).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return semver.Version{}, nil
	}
	if err != nil {
		return semver.Version{}, fmt.Errorf("versionstore: get %s: %w", key, err)
	}
	v, err := semver.ParseVersion(raw)
	if err != nil {
		return semver.Version{}, fmt.Errorf("versionstore: stored version of %s: %w", key, err)
	}
	p.cache.Add(key, v)
	return v, nil
}

func (p *Postgres) SetVersion(ctx context.Context, itemType, fullName string, v semver.Version) error {
	if err := checkKey(itemType, fullName); err != nil {
		return err
	}
	if err := checkVersion(v); err != nil {
		return err
	}
	if err := p.ensureSchema(ctx); err != nil {
		return fmt.Errorf("versionstore: ensure schema: %w", err)
	}
	_, err := p.db.ExecContext(ctx, `
INSERT INTO setup_versions (item_type, full_name, version, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (item_type, full_name)
DO UPDATE SET version = EXCLUDED.version, updated_at = EXCLUDED.updated_at`,
		itemType, fullName, v.String())
	if err != nil {
		p.cache.Remove(Key(itemType, fullName))
		return fmt.Errorf("versionstore: set %s: %w", Key(itemType, fullName), err)
	}
	p.cache.Add(Key(itemType, fullName), v)
	return nil
}

func (p *Postgres) List(ctx context.Context) ([]Record, error) {
	if err := p.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("versionstore: ensure schema: %w", err)
	}
	rows, err := p.db.QueryContext(ctx, `SELECT item_type, full_name, version FROM setup_versions ORDER BY item_type, full_name`)
	if err != nil {
		return nil, fmt.Errorf("versionstore: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var raw string
		if err := rows.Scan(&r.ItemType, &r.FullName, &raw); err != nil {
			return nil, err
		}
		if r.Version, err = semver.ParseVersion(raw); err != nil {
			return nil, fmt.Errorf("versionstore: stored version of %s: %w", Key(r.ItemType, r.FullName), err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
