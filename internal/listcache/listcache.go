// Package listcache keeps downloaded sequence listings in a local SQLite file.
//
// Each body is stored with its BLAKE3 digest and download time. A body whose
// digest no longer matches is dropped and reported as a miss, and an optional
// TTL turns old rows into misses so that growing sequences are re-fetched.
//
// The default build uses the pure Go modernc.org/sqlite driver; build with
// -tags cgo_sqlite to use mattn/go-sqlite3 instead.
package listcache

import (
	"context"
	"database/sql"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	aerrors "github.com/FocuswithJustin/alimerge/core/errors"
	"github.com/FocuswithJustin/alimerge/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS listings (
	seq_id     TEXT PRIMARY KEY,
	body       BLOB NOT NULL,
	digest     TEXT NOT NULL,
	fetched_at INTEGER NOT NULL
)`

// Store is a listing cache backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	ttl  time.Duration
	now  func() time.Time
}

// Stats summarises the cache contents.
type Stats struct {
	Path    string    `json:"path"`
	Driver  string    `json:"driver"`
	Entries int64     `json:"entries"`
	Bytes   int64     `json:"bytes"`
	Oldest  time.Time `json:"oldest,omitempty"`
	Newest  time.Time `json:"newest,omitempty"`
}

// Option configures a Store.
type Option func(*Store)

// WithTTL makes entries older than ttl count as misses. Zero keeps entries forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open opens or creates the cache database at path.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, aerrors.NewValidation("cache path", path, "empty")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, aerrors.NewIO("create cache directory", dir, err)
		}
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, aerrors.NewIO("open cache", path, err)
	}
	// A single connection serialises writers and keeps the pragmas below in effect.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA busy_timeout = 5000",
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, aerrors.NewIO("initialise cache", path, err)
		}
	}

	s := &Store{
		db:   db,
		path: path,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Digest returns the hex BLAKE3 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached body for id. Expired and corrupt entries are misses.
func (s *Store) Get(ctx context.Context, id string) ([]byte, bool, error) {
	var (
		body      []byte
		digest    string
		fetchedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT body, digest, fetched_at FROM listings WHERE seq_id = ?", id,
	).Scan(&body, &digest, &fetchedAt)
	if aerrors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, aerrors.Wrapf(err, "reading cached listing %s", id)
	}

	if s.ttl > 0 && s.now().Sub(time.Unix(fetchedAt, 0)) > s.ttl {
		logging.CacheEvent(ctx, "expired", id)
		return nil, false, nil
	}

	if got := Digest(body); got != digest {
		logging.CacheCorrupt(ctx, id, digest, got)
		if err := s.Delete(ctx, id); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	return body, true, nil
}

// Put stores body for id, replacing any previous entry.
func (s *Store) Put(ctx context.Context, id string, body []byte) error {
	if body == nil {
		body = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO listings (seq_id, body, digest, fetched_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(seq_id) DO UPDATE SET
			body = excluded.body,
			digest = excluded.digest,
			fetched_at = excluded.fetched_at`,
		id, body, Digest(body), s.now().Unix(),
	)
	if err != nil {
		return aerrors.Wrapf(err, "storing listing %s", id)
	}
	return nil
}

// Delete removes the entry for id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM listings WHERE seq_id = ?", id); err != nil {
		return aerrors.Wrapf(err, "deleting listing %s", id)
	}
	return nil
}

// Stats reports entry count, stored bytes and the age range.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var (
		count          int64
		bytes          int64
		oldest, newest sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(LENGTH(body)), 0), MIN(fetched_at), MAX(fetched_at) FROM listings",
	).Scan(&count, &bytes, &oldest, &newest)
	if err != nil {
		return Stats{}, aerrors.Wrap(err, "reading cache stats")
	}

	st := Stats{
		Path:    s.path,
		Driver:  driverType,
		Entries: count,
		Bytes:   bytes,
	}
	if oldest.Valid {
		st.Oldest = time.Unix(oldest.Int64, 0)
	}
	if newest.Valid {
		st.Newest = time.Unix(newest.Int64, 0)
	}
	return st, nil
}

// Clear removes every entry and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM listings")
	if err != nil {
		return 0, aerrors.Wrap(err, "clearing cache")
	}
	return res.RowsAffected()
}

// Prune removes entries downloaded more than olderThan ago.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan).Unix()
	res, err := s.db.ExecContext(ctx, "DELETE FROM listings WHERE fetched_at < ?", cutoff)
	if err != nil {
		return 0, aerrors.Wrap(err, "pruning cache")
	}
	return res.RowsAffected()
}
