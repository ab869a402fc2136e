// Package postgres provides the Postgres-backed catalog store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/revloop/revloop/internal/orchestrator"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Catalog implements orchestrator.Catalog on a pgx pool. Row expiry relies
// on the expires_at column: expired rows are filtered on every read and
// reaped opportunistically.
type Catalog struct {
	pool  pgxIface
	clock orchestrator.Clock
}

// New connects a Catalog using the provided config.
func New(ctx context.Context, cfg Config, clock orchestrator.Clock) (*Catalog, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
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
	return &Catalog{pool: pool, clock: clock}, nil
}

// NewWithPool constructs a Catalog from an existing pool (primarily for
// testing with pgxmock).
func NewWithPool(pool pgxIface, clock orchestrator.Clock) (*Catalog, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Catalog{pool: pool, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (c *Catalog) Close() {
	if c == nil || c.pool == nil {
		return
	}
	c.pool.Close()
}

// Schema is the DDL for the catalog tables.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id TEXT PRIMARY KEY,
	registered_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS crawl_targets (
	user_id TEXT NOT NULL,
	sort_key TEXT NOT NULL,
	kind TEXT NOT NULL,
	discriminator TEXT NOT NULL,
	url TEXT NOT NULL,
	last_fetched TIMESTAMPTZ,
	status_code INT,
	last_error TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL DEFAULT '',
	expires_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, sort_key)
);
CREATE INDEX IF NOT EXISTS crawl_targets_url_idx ON crawl_targets (url);
CREATE TABLE IF NOT EXISTS metadata_facts (
	user_id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	city TEXT NOT NULL,
	review_count INT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS review_facts (
	user_id TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	entity_name TEXT NOT NULL,
	entity_address TEXT NOT NULL,
	review_id TEXT NOT NULL,
	review_date TEXT NOT NULL,
	alive TEXT NOT NULL DEFAULT 'unknown',
	updated_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, entity_id)
);
CREATE INDEX IF NOT EXISTS review_facts_review_id_idx ON review_facts (review_id);
`

// EnsureSchema creates the catalog tables when they do not exist.
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// RegisterUser adds a user to the registry.
func (c *Catalog) RegisterUser(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	_, err := c.pool.Exec(ctx, `
INSERT INTO users (user_id, registered_at) VALUES ($1, $2)
ON CONFLICT (user_id) DO NOTHING`, userID, c.clock.Now())
	if err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	return nil
}

// DeregisterUser removes a user and cascades deletion of its rows.
func (c *Catalog) DeregisterUser(ctx context.Context, userID string) error {
	for _, q := range []string{
		`DELETE FROM crawl_targets WHERE user_id = $1`,
		`DELETE FROM metadata_facts WHERE user_id = $1`,
		`DELETE FROM review_facts WHERE user_id = $1`,
		`DELETE FROM users WHERE user_id = $1`,
	} {
		if _, err := c.pool.Exec(ctx, q, userID); err != nil {
			return fmt.Errorf("deregister user: %w", err)
		}
	}
	return nil
}

// ListUsers returns all registered user IDs.
func (c *Catalog) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := c.pool.Query(ctx, `SELECT user_id FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

// UpsertTarget creates or refreshes a target row. Fetch-state columns on an
// existing row are preserved; only the URL and TTL are rewritten.
func (c *Catalog) UpsertTarget(ctx context.Context, target orchestrator.CrawlTarget) error {
	if target.UserID == "" {
		return errors.New("target user id is required")
	}
	_, err := c.pool.Exec(ctx, `
INSERT INTO crawl_targets (user_id, sort_key, kind, discriminator, url, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id, sort_key) DO UPDATE
SET url = EXCLUDED.url, expires_at = EXCLUDED.expires_at`,
		target.UserID, target.Key(), string(target.Kind), target.Discriminator,
		target.URL, target.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert target: %w", err)
	}
	return nil
}

// MarkFetched records a fetch outcome on the target row.
func (c *Catalog) MarkFetched(
	ctx context.Context,
	userID string,
	kind orchestrator.TargetKind,
	discriminator string,
	statusCode int,
	fetchErr string,
	contentHash string,
	at time.Time,
) error {
	tag, err := c.pool.Exec(ctx, `
UPDATE crawl_targets
SET last_fetched = $4, status_code = $5, last_error = $6,
	content_hash = CASE WHEN $7 = '' THEN content_hash ELSE $7 END
WHERE user_id = $1 AND sort_key = $2 AND kind = $3`,
		userID, orchestrator.TargetKey(kind, discriminator), string(kind),
		at, statusCode, fetchErr, contentHash)
	if err != nil {
		return fmt.Errorf("mark fetched: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New("target not found")
	}
	return nil
}

// ClearFetchError resets the error state on a target row.
func (c *Catalog) ClearFetchError(
	ctx context.Context,
	userID string,
	kind orchestrator.TargetKind,
	discriminator string,
) error {
	_, err := c.pool.Exec(ctx, `
UPDATE crawl_targets SET last_error = ''
WHERE user_id = $1 AND sort_key = $2`,
		userID, orchestrator.TargetKey(kind, discriminator))
	if err != nil {
		return fmt.Errorf("clear fetch error: %w", err)
	}
	return nil
}

const targetColumns = `user_id, kind, discriminator, url,
	COALESCE(last_fetched, 'epoch'::timestamptz), COALESCE(status_code, 0),
	last_error, content_hash, expires_at`

func (c *Catalog) scanTargets(rows pgx.Rows) ([]orchestrator.CrawlTarget, error) {
	defer rows.Close()
	var out []orchestrator.CrawlTarget
	for rows.Next() {
		var t orchestrator.CrawlTarget
		var kind string
		if err := rows.Scan(&t.UserID, &kind, &t.Discriminator, &t.URL,
			&t.LastFetched, &t.StatusCode, &t.LastError, &t.ContentHash, &t.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		t.Kind = orchestrator.TargetKind(kind)
		if t.LastFetched.Unix() == 0 {
			t.LastFetched = time.Time{}
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}
	return out, nil
}

// ListTargets returns all unexpired targets for a user.
func (c *Catalog) ListTargets(ctx context.Context, userID string) ([]orchestrator.CrawlTarget, error) {
	rows, err := c.pool.Query(ctx, `
SELECT `+targetColumns+` FROM crawl_targets
WHERE user_id = $1 AND expires_at > $2
ORDER BY sort_key`, userID, c.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	return c.scanTargets(rows)
}

// ListAllTargets returns unexpired targets across all users.
func (c *Catalog) ListAllTargets(ctx context.Context) ([]orchestrator.CrawlTarget, error) {
	rows, err := c.pool.Query(ctx, `
SELECT `+targetColumns+` FROM crawl_targets
WHERE expires_at > $1
ORDER BY user_id, sort_key`, c.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("list all targets: %w", err)
	}
	return c.scanTargets(rows)
}

// DeleteTarget removes one target row.
func (c *Catalog) DeleteTarget(
	ctx context.Context,
	userID string,
	kind orchestrator.TargetKind,
	discriminator string,
) error {
	_, err := c.pool.Exec(ctx, `
DELETE FROM crawl_targets WHERE user_id = $1 AND sort_key = $2`,
		userID, orchestrator.TargetKey(kind, discriminator))
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	return nil
}

// UpsertMetadata writes the metadata fact for a user.
func (c *Catalog) UpsertMetadata(ctx context.Context, fact orchestrator.MetadataFact) error {
	if fact.UserID == "" {
		return errors.New("fact user id is required")
	}
	_, err := c.pool.Exec(ctx, `
INSERT INTO metadata_facts (user_id, display_name, city, review_count, updated_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id) DO UPDATE
SET display_name = EXCLUDED.display_name, city = EXCLUDED.city,
	review_count = EXCLUDED.review_count, updated_at = EXCLUDED.updated_at,
	expires_at = EXCLUDED.expires_at`,
		fact.UserID, fact.DisplayName, fact.City, fact.ReviewCount,
		fact.UpdatedAt, fact.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert metadata: %w", err)
	}
	return nil
}

// GetMetadata fetches the metadata fact for a user, reporting presence.
func (c *Catalog) GetMetadata(ctx context.Context, userID string) (orchestrator.MetadataFact, bool, error) {
	row := c.pool.QueryRow(ctx, `
SELECT user_id, display_name, city, review_count, updated_at, expires_at
FROM metadata_facts WHERE user_id = $1 AND expires_at > $2`,
		userID, c.clock.Now())
	var fact orchestrator.MetadataFact
	err := row.Scan(&fact.UserID, &fact.DisplayName, &fact.City,
		&fact.ReviewCount, &fact.UpdatedAt, &fact.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orchestrator.MetadataFact{}, false, nil
	}
	if err != nil {
		return orchestrator.MetadataFact{}, false, fmt.Errorf("get metadata: %w", err)
	}
	return fact, true, nil
}

// UpsertReview writes a review fact. A previously observed alive status is
// preserved when the incoming fact carries unknown.
func (c *Catalog) UpsertReview(ctx context.Context, fact orchestrator.ReviewFact) error {
	if fact.UserID == "" || fact.EntityID == "" {
		return errors.New("fact user id and entity id are required")
	}
	alive := fact.Alive
	if alive == "" {
		alive = orchestrator.AliveUnknown
	}
	_, err := c.pool.Exec(ctx, `
INSERT INTO review_facts (user_id, entity_id, entity_name, entity_address,
	review_id, review_date, alive, updated_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (user_id, entity_id) DO UPDATE
SET entity_name = EXCLUDED.entity_name, entity_address = EXCLUDED.entity_address,
	review_id = EXCLUDED.review_id, review_date = EXCLUDED.review_date,
	alive = CASE WHEN EXCLUDED.alive = 'unknown' THEN review_facts.alive ELSE EXCLUDED.alive END,
	updated_at = EXCLUDED.updated_at, expires_at = EXCLUDED.expires_at`,
		fact.UserID, fact.EntityID, fact.EntityName, fact.EntityAddress,
		fact.ReviewID, fact.ReviewDate, string(alive), fact.UpdatedAt, fact.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert review: %w", err)
	}
	return nil
}

// UpdateReviewStatus records the liveness observed by a status check.
func (c *Catalog) UpdateReviewStatus(
	ctx context.Context,
	userID, entityID string,
	alive orchestrator.AliveStatus,
) error {
	tag, err := c.pool.Exec(ctx, `
UPDATE review_facts SET alive = $3, updated_at = $4
WHERE user_id = $1 AND entity_id = $2`,
		userID, entityID, string(alive), c.clock.Now())
	if err != nil {
		return fmt.Errorf("update review status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New("review fact not found")
	}
	return nil
}

// ListReviews returns all unexpired review facts for a user.
func (c *Catalog) ListReviews(ctx context.Context, userID string) ([]orchestrator.ReviewFact, error) {
	rows, err := c.pool.Query(ctx, `
SELECT user_id, entity_id, entity_name, entity_address, review_id,
	review_date, alive, updated_at, expires_at
FROM review_facts WHERE user_id = $1 AND expires_at > $2
ORDER BY entity_id`, userID, c.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()
	var out []orchestrator.ReviewFact
	for rows.Next() {
		var fact orchestrator.ReviewFact
		var alive string
		if err := rows.Scan(&fact.UserID, &fact.EntityID, &fact.EntityName,
			&fact.EntityAddress, &fact.ReviewID, &fact.ReviewDate, &alive,
			&fact.UpdatedAt, &fact.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		fact.Alive = orchestrator.AliveStatus(alive)
		out = append(out, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return out, nil
}

// DeleteReview removes one review fact.
func (c *Catalog) DeleteReview(ctx context.Context, userID, entityID string) error {
	_, err := c.pool.Exec(ctx, `
DELETE FROM review_facts WHERE user_id = $1 AND entity_id = $2`,
		userID, entityID)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	return nil
}

// FindReviewOwner maps a review ID to its single owning user.
func (c *Catalog) FindReviewOwner(ctx context.Context, reviewID string) (string, error) {
	rows, err := c.pool.Query(ctx, `
SELECT user_id FROM review_facts
WHERE review_id = $1 AND expires_at > $2`, reviewID, c.clock.Now())
	if err != nil {
		return "", fmt.Errorf("find review owner: %w", err)
	}
	defer rows.Close()
	var owners []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("scan review owner: %w", err)
		}
		owners = append(owners, id)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("find review owner: %w", err)
	}
	if len(owners) != 1 {
		return "", &orchestrator.ReferentialLookupError{ReviewID: reviewID, Matches: len(owners)}
	}
	return owners[0], nil
}
