// CLAUDE:SUMMARY Canonical/alias registry on SQLite: existence oracle, alias lookup, save with feed merging, resolution log.
// CLAUDE:EXPORTS Registry, Feed, Resolution, Open, New, ErrNotFound, Status constants
// Package registry stores canonical feed URLs and the aliases that led to
// them. It is the existence oracle of the canonicalization engine and the
// fast path of the service layer: an alias seen before never costs a fetch.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/feedcanon/dbopen"
	"github.com/hazyhaar/feedcanon/idgen"
)

// ErrNotFound is returned when a URL is neither a canonical URL nor an alias.
var ErrNotFound = errors.New("registry: not found")

// Resolution statuses.
const (
	StatusResolved   = "resolved"   // engine ran and found a canonical URL
	StatusCached     = "cached"     // answered from the alias table
	StatusUnresolved = "unresolved" // no feed could be established
	StatusFailed     = "failed"     // aborted (cancelled, hook or storage error)
)

// Feed is a canonical feed URL with its known aliases.
type Feed struct {
	ID           string   `json:"id"`
	CanonicalURL string   `json:"canonical_url"`
	Aliases      []string `json:"aliases,omitempty"`
	CreatedAt    int64    `json:"created_at"`
	UpdatedAt    int64    `json:"updated_at"`
}

// Resolution is one entry of the resolution log.
type Resolution struct {
	ID           string `json:"id"`
	InputURL     string `json:"input_url"`
	CanonicalURL string `json:"canonical_url,omitempty"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	ResolvedAt   int64  `json:"resolved_at"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithIDGenerator overrides the row ID generator. Default: idgen.Default.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(r *Registry) { r.newID = gen }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry is safe for concurrent use.
type Registry struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// Open opens (or creates) the registry database at path.
// The caller must blank-import the SQLite driver.
func Open(path string, opts ...Option) (*Registry, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return newRegistry(db, opts), nil
}

// New wraps an already-open database and applies the schema.
func New(db *sql.DB, opts ...Option) (*Registry, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("registry: schema: %w", err)
	}
	return newRegistry(db, opts), nil
}

func newRegistry(db *sql.DB, opts []Option) *Registry {
	r := &Registry{db: db, newID: idgen.Default, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// DB returns the underlying database.
func (r *Registry) DB() *sql.DB { return r.db }

// Close closes the database.
func (r *Registry) Close() error { return r.db.Close() }

// Lookup reports whether url is a stored canonical URL. It implements the
// engine's existence oracle.
func (r *Registry) Lookup(ctx context.Context, url string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feeds WHERE canonical_url = ?`, url).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("registry: lookup: %w", err)
	}
	return n > 0, nil
}

// Canonical returns the canonical URL stored for url, which may be a
// canonical URL itself or a known alias.
func (r *Registry) Canonical(ctx context.Context, url string) (string, error) {
	var canonical string
	err := r.db.QueryRowContext(ctx,
		`SELECT canonical_url FROM feeds WHERE canonical_url = ?
		UNION ALL
		SELECT f.canonical_url FROM aliases a JOIN feeds f ON f.id = a.feed_id WHERE a.url = ?
		LIMIT 1`, url, url).Scan(&canonical)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("registry: canonical: %w", err)
	}
	return canonical, nil
}

// Feed returns the feed stored under canonical with its aliases.
func (r *Registry) Feed(ctx context.Context, canonical string) (*Feed, error) {
	f := &Feed{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, canonical_url, created_at, updated_at FROM feeds WHERE canonical_url = ?`,
		canonical).Scan(&f.ID, &f.CanonicalURL, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: feed: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT url FROM aliases WHERE feed_id = ? ORDER BY created_at, url`, f.ID)
	if err != nil {
		return nil, fmt.Errorf("registry: aliases: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		f.Aliases = append(f.Aliases, u)
	}
	return f, rows.Err()
}

// Save records canonical and points every alias at it. An alias that was
// itself a canonical URL has its feed merged into this one.
func (r *Registry) Save(ctx context.Context, canonical string, aliases ...string) (*Feed, error) {
	if canonical == "" {
		return nil, fmt.Errorf("registry: save: empty canonical URL")
	}
	now := r.now().UnixMilli()
	var feedID string
	err := dbopen.RunTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM feeds WHERE canonical_url = ?`, canonical).Scan(&feedID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			feedID = r.newID()
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO feeds (id, canonical_url, created_at, updated_at) VALUES (?, ?, ?, ?)`,
				feedID, canonical, now, now); err != nil {
				return fmt.Errorf("insert feed: %w", err)
			}
			// A URL that was an alias is now canonical.
			if _, err := tx.ExecContext(ctx, `DELETE FROM aliases WHERE url = ?`, canonical); err != nil {
				return fmt.Errorf("drop alias: %w", err)
			}
		case err != nil:
			return fmt.Errorf("select feed: %w", err)
		default:
			if _, err := tx.ExecContext(ctx,
				`UPDATE feeds SET updated_at = ? WHERE id = ?`, now, feedID); err != nil {
				return fmt.Errorf("touch feed: %w", err)
			}
		}

		for _, alias := range aliases {
			if alias == "" || alias == canonical {
				continue
			}
			if err := mergeFeedInto(ctx, tx, alias, feedID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO aliases (url, feed_id, created_at) VALUES (?, ?, ?)
				ON CONFLICT(url) DO UPDATE SET feed_id = excluded.feed_id`,
				alias, feedID, now); err != nil {
				return fmt.Errorf("upsert alias: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("registry: save: %w", err)
	}
	return r.Feed(ctx, canonical)
}

// mergeFeedInto folds the feed whose canonical URL is url (if any, and if
// different) into targetID: its aliases move over and its row is deleted.
func mergeFeedInto(ctx context.Context, tx *sql.Tx, url, targetID string) error {
	var oldID string
	err := tx.QueryRowContext(ctx, `SELECT id FROM feeds WHERE canonical_url = ?`, url).Scan(&oldID)
	if errors.Is(err, sql.ErrNoRows) || oldID == targetID {
		return nil
	}
	if err != nil {
		return fmt.Errorf("select merged feed: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE aliases SET feed_id = ? WHERE feed_id = ?`, targetID, oldID); err != nil {
		return fmt.Errorf("move aliases: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM feeds WHERE id = ?`, oldID); err != nil {
		return fmt.Errorf("delete merged feed: %w", err)
	}
	return nil
}

// LogResolution appends to the resolution log. ID and ResolvedAt are
// filled in when zero.
func (r *Registry) LogResolution(ctx context.Context, res Resolution) error {
	if res.ID == "" {
		res.ID = r.newID()
	}
	if res.ResolvedAt == 0 {
		res.ResolvedAt = r.now().UnixMilli()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO resolutions (id, input_url, canonical_url, status, error_message, duration_ms, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.InputURL, res.CanonicalURL, res.Status, res.Error, res.DurationMs, res.ResolvedAt)
	if err != nil {
		return fmt.Errorf("registry: log resolution: %w", err)
	}
	return nil
}

// Resolutions returns the most recent log entries, newest first.
// limit <= 0 means 50.
func (r *Registry) Resolutions(ctx context.Context, limit int) ([]Resolution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, input_url, canonical_url, status, error_message, duration_ms, resolved_at
		FROM resolutions ORDER BY resolved_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("registry: resolutions: %w", err)
	}
	defer rows.Close()

	var out []Resolution
	for rows.Next() {
		var res Resolution
		if err := rows.Scan(&res.ID, &res.InputURL, &res.CanonicalURL, &res.Status,
			&res.Error, &res.DurationMs, &res.ResolvedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
