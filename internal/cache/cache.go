// Package cache is a WAL-mode SQLite content-addressed build cache for
// ksc-server. Each row is keyed by the SHA-256 of the source unit and holds
// both generated files, so a cache hit skips
// the full parse/check/ir/codegen pipeline entirely.
package cache

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// Cache is a WAL-mode SQLite-backed build artifact cache. Safe for
// concurrent use; SQLite allows only one writer, so the pool is limited to a
// single connection and writers serialize through it the way the teacher's
// alert queue does.
type Cache struct {
	db      *sql.DB
	maxSize int
}

// Open opens (or creates) the SQLite database at path, enables WAL journal
// mode, and applies the schema. maxEntries <= 0 disables eviction.
func Open(path string, maxEntries int) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open %q: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous = NORMAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: set synchronous = NORMAL: %w", err)
	}
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: apply schema: %w", err)
	}

	return &Cache{db: db, maxSize: maxEntries}, nil
}

const ddl = `
CREATE TABLE IF NOT EXISTS build_artifacts (
    source_hash   TEXT    PRIMARY KEY,
    unit          TEXT    NOT NULL,
    kernel_c      TEXT    NOT NULL,
    user_c        TEXT    NOT NULL,
    created_at    TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
`

// Artifact is one cached build result.
type Artifact struct {
	Unit    string
	KernelC string
	UserC   string
}

// Get returns the cached artifact for sourceHash, or ok=false on a miss.
func (c *Cache) Get(ctx context.Context, sourceHash string) (Artifact, bool, error) {
	var a Artifact
	err := c.db.QueryRowContext(ctx,
		`SELECT unit, kernel_c, user_c FROM build_artifacts WHERE source_hash = ?`, sourceHash,
	).Scan(&a.Unit, &a.KernelC, &a.UserC)
	if err == sql.ErrNoRows {
		return Artifact{}, false, nil
	}
	if err != nil {
		return Artifact{}, false, fmt.Errorf("cache: get %q: %w", sourceHash, err)
	}
	return a, true, nil
}

// Put stores a under sourceHash, replacing any existing entry, then evicts
// the oldest rows past maxSize when eviction is enabled.
func (c *Cache) Put(ctx context.Context, sourceHash string, a Artifact) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO build_artifacts (source_hash, unit, kernel_c, user_c)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(source_hash) DO UPDATE SET
		     unit = excluded.unit, kernel_c = excluded.kernel_c, user_c = excluded.user_c,
		     created_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		sourceHash, a.Unit, a.KernelC, a.UserC,
	)
	if err != nil {
		return fmt.Errorf("cache: put %q: %w", sourceHash, err)
	}
	return c.evict(ctx)
}

func (c *Cache) evict(ctx context.Context) error {
	if c.maxSize <= 0 {
		return nil
	}
	_, err := c.db.ExecContext(ctx, `
		DELETE FROM build_artifacts WHERE source_hash IN (
			SELECT source_hash FROM build_artifacts
			ORDER BY created_at DESC
			LIMIT -1 OFFSET ?
		)`, c.maxSize)
	if err != nil {
		return fmt.Errorf("cache: evict: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
