// Package memory provides an in-memory catalog for development/testing.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/revloop/revloop/internal/orchestrator"
)

// Catalog implements orchestrator.Catalog with mutex-guarded maps. Row TTLs
// are honored lazily: expired rows are skipped on read and dropped on write
// paths that touch them, mirroring how the production store expires rows.
type Catalog struct {
	mu       sync.RWMutex
	clock    orchestrator.Clock
	users    map[string]struct{}
	targets  map[string]map[string]orchestrator.CrawlTarget
	metadata map[string]orchestrator.MetadataFact
	reviews  map[string]map[string]orchestrator.ReviewFact
}

// New constructs an empty Catalog.
func New(clock orchestrator.Clock) *Catalog {
	return &Catalog{
		clock:    clock,
		users:    make(map[string]struct{}),
		targets:  make(map[string]map[string]orchestrator.CrawlTarget),
		metadata: make(map[string]orchestrator.MetadataFact),
		reviews:  make(map[string]map[string]orchestrator.ReviewFact),
	}
}

func (c *Catalog) expired(expiresAt time.Time) bool {
	return !expiresAt.IsZero() && !c.clock.Now().Before(expiresAt)
}

// RegisterUser adds a user to the registry.
func (c *Catalog) RegisterUser(_ context.Context, userID string) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[userID] = struct{}{}
	return nil
}

// DeregisterUser removes a user and cascades deletion of its targets and
// facts.
func (c *Catalog) DeregisterUser(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, userID)
	delete(c.targets, userID)
	delete(c.metadata, userID)
	delete(c.reviews, userID)
	return nil
}

// ListUsers returns all registered user IDs.
func (c *Catalog) ListUsers(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.users))
	for id := range c.users {
		out = append(out, id)
	}
	return out, nil
}

// UpsertTarget creates or refreshes a target row, preserving fetch state on
// an existing row and bumping the TTL.
func (c *Catalog) UpsertTarget(_ context.Context, target orchestrator.CrawlTarget) error {
	if target.UserID == "" {
		return errors.New("target user id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, ok := c.targets[target.UserID]
	if !ok {
		rows = make(map[string]orchestrator.CrawlTarget)
		c.targets[target.UserID] = rows
	}
	if existing, ok := rows[target.Key()]; ok && !c.expired(existing.ExpiresAt) {
		existing.URL = target.URL
		existing.ExpiresAt = target.ExpiresAt
		rows[target.Key()] = existing
		return nil
	}
	rows[target.Key()] = target
	return nil
}

// MarkFetched records a fetch outcome on an existing target row.
func (c *Catalog) MarkFetched(
	_ context.Context,
	userID string,
	kind orchestrator.TargetKind,
	discriminator string,
	statusCode int,
	fetchErr string,
	contentHash string,
	at time.Time,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := orchestrator.TargetKey(kind, discriminator)
	target, ok := c.targets[userID][key]
	if !ok {
		return errors.New("target not found")
	}
	target.LastFetched = at
	target.StatusCode = statusCode
	target.LastError = fetchErr
	if contentHash != "" {
		target.ContentHash = contentHash
	}
	c.targets[userID][key] = target
	return nil
}

// ClearFetchError resets a target's error state.
func (c *Catalog) ClearFetchError(
	_ context.Context,
	userID string,
	kind orchestrator.TargetKind,
	discriminator string,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := orchestrator.TargetKey(kind, discriminator)
	target, ok := c.targets[userID][key]
	if !ok {
		return errors.New("target not found")
	}
	target.LastError = ""
	c.targets[userID][key] = target
	return nil
}

// ListTargets returns all live targets for a user.
func (c *Catalog) ListTargets(_ context.Context, userID string) ([]orchestrator.CrawlTarget, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []orchestrator.CrawlTarget
	for _, target := range c.targets[userID] {
		if c.expired(target.ExpiresAt) {
			continue
		}
		out = append(out, target)
	}
	return out, nil
}

// ListAllTargets returns live targets across every user.
func (c *Catalog) ListAllTargets(_ context.Context) ([]orchestrator.CrawlTarget, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []orchestrator.CrawlTarget
	for _, rows := range c.targets {
		for _, target := range rows {
			if c.expired(target.ExpiresAt) {
				continue
			}
			out = append(out, target)
		}
	}
	return out, nil
}

// DeleteTarget removes one target row.
func (c *Catalog) DeleteTarget(
	_ context.Context,
	userID string,
	kind orchestrator.TargetKind,
	discriminator string,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.targets[userID], orchestrator.TargetKey(kind, discriminator))
	return nil
}

// UpsertMetadata writes the metadata fact for a user.
func (c *Catalog) UpsertMetadata(_ context.Context, fact orchestrator.MetadataFact) error {
	if fact.UserID == "" {
		return errors.New("fact user id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[fact.UserID] = fact
	return nil
}

// GetMetadata fetches the metadata fact for a user, reporting presence.
func (c *Catalog) GetMetadata(_ context.Context, userID string) (orchestrator.MetadataFact, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fact, ok := c.metadata[userID]
	if !ok || c.expired(fact.ExpiresAt) {
		return orchestrator.MetadataFact{}, false, nil
	}
	return fact, true, nil
}

// UpsertReview writes a review fact, preserving a previously observed alive
// status when the incoming fact carries none.
func (c *Catalog) UpsertReview(_ context.Context, fact orchestrator.ReviewFact) error {
	if fact.UserID == "" || fact.EntityID == "" {
		return errors.New("fact user id and entity id are required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, ok := c.reviews[fact.UserID]
	if !ok {
		rows = make(map[string]orchestrator.ReviewFact)
		c.reviews[fact.UserID] = rows
	}
	if existing, ok := rows[fact.EntityID]; ok {
		if fact.Alive == "" || fact.Alive == orchestrator.AliveUnknown {
			fact.Alive = existing.Alive
		}
	} else if fact.Alive == "" {
		fact.Alive = orchestrator.AliveUnknown
	}
	rows[fact.EntityID] = fact
	return nil
}

// UpdateReviewStatus records the liveness observed by a status check.
func (c *Catalog) UpdateReviewStatus(
	_ context.Context,
	userID, entityID string,
	alive orchestrator.AliveStatus,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fact, ok := c.reviews[userID][entityID]
	if !ok {
		return errors.New("review fact not found")
	}
	fact.Alive = alive
	c.reviews[userID][entityID] = fact
	return nil
}

// ListReviews returns all live review facts for a user.
func (c *Catalog) ListReviews(_ context.Context, userID string) ([]orchestrator.ReviewFact, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []orchestrator.ReviewFact
	for _, fact := range c.reviews[userID] {
		if c.expired(fact.ExpiresAt) {
			continue
		}
		out = append(out, fact)
	}
	return out, nil
}

// DeleteReview removes one review fact.
func (c *Catalog) DeleteReview(_ context.Context, userID, entityID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.reviews[userID], entityID)
	return nil
}

// FindReviewOwner maps a review ID to its owning user.
func (c *Catalog) FindReviewOwner(_ context.Context, reviewID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var owners []string
	for userID, rows := range c.reviews {
		for _, fact := range rows {
			if fact.ReviewID == reviewID && !c.expired(fact.ExpiresAt) {
				owners = append(owners, userID)
			}
		}
	}
	if len(owners) != 1 {
		return "", &orchestrator.ReferentialLookupError{ReviewID: reviewID, Matches: len(owners)}
	}
	return owners[0], nil
}
