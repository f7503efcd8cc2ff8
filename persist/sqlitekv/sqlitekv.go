// Package sqlitekv is a SQLite-backed persist.KV. One table holds every
// origin's records; a Scope pins reads and writes to a single origin, the
// way a browser scopes localStorage.
package sqlitekv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/restyle/dbopen"
	"github.com/hazyhaar/restyle/idgen"
	"github.com/hazyhaar/restyle/persist"
)

// Schema creates the kv_store table.
const Schema = `
CREATE TABLE IF NOT EXISTS kv_store (
	scope      TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	value      BLOB    NOT NULL,
	revision   TEXT    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (scope, key)
);
`

// Store wraps the database holding kv_store.
type Store struct {
	db     *sql.DB
	newRev idgen.Generator
	logger *slog.Logger
}

// Open opens (or creates) the database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("sqlitekv: %w", err)
	}
	return newStore(db, logger), nil
}

// New wraps an already opened database, creating kv_store if needed.
func New(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("sqlitekv: schema: %w", err)
	}
	return newStore(db, logger), nil
}

func newStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, newRev: idgen.Prefixed("rev_", idgen.Default), logger: logger}
}

// DB exposes the handle so other tables can share the file.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Scope returns a KV view restricted to scope.
func (s *Store) Scope(scope string) *Scope {
	return &Scope{store: s, scope: scope}
}

// Scope is one origin's slice of kv_store.
type Scope struct {
	store *Store
	scope string
}

var _ persist.KV = (*Scope)(nil)

// Name returns the scope string.
func (sc *Scope) Name() string { return sc.scope }

func (sc *Scope) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := sc.store.db.QueryRowContext(ctx,
		`SELECT value FROM kv_store WHERE scope = ? AND key = ?`, sc.scope, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlitekv: get %s/%s: %w", sc.scope, key, err)
	}
	return value, true, nil
}

// Put overwrites key. Every write gets a fresh revision.
func (sc *Scope) Put(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	rev := sc.store.newRev()
	_, err := dbopen.Exec(ctx, sc.store.db, `
		INSERT INTO kv_store (scope, key, value, revision, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(scope, key) DO UPDATE SET
			value = excluded.value,
			revision = excluded.revision,
			updated_at = excluded.updated_at`,
		sc.scope, key, value, rev, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlitekv: put %s/%s: %w", sc.scope, key, err)
	}
	sc.store.logger.Debug("sqlitekv: put", "scope", sc.scope, "key", key, "revision", rev, "bytes", len(value))
	return nil
}

// Revision returns the revision id of the last write to key.
func (sc *Scope) Revision(ctx context.Context, key string) (string, error) {
	var rev string
	err := sc.store.db.QueryRowContext(ctx,
		`SELECT revision FROM kv_store WHERE scope = ? AND key = ?`, sc.scope, key,
	).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlitekv: revision %s/%s: %w", sc.scope, key, err)
	}
	return rev, nil
}

// Origin reduces rawURL to scheme://host[:port], the scope a browser would
// give the page's storage.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("sqlitekv: origin: %w", err)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("sqlitekv: origin: %q has no scheme", rawURL)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "file" && u.Host == "" {
		return "", fmt.Errorf("sqlitekv: origin: %q has no host", rawURL)
	}
	return scheme + "://" + strings.ToLower(u.Host), nil
}
