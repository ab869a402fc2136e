// Package orchestrator defines core types shared across subsystems.
package orchestrator

import "time"

// TargetKind identifies which of the three page families a crawl target
// belongs to.
type TargetKind string

// Target kinds persisted in the catalog store.
const (
	KindMetadata     TargetKind = "metadata"
	KindReviewPage   TargetKind = "review_page"
	KindReviewStatus TargetKind = "review_status"
)

// PageSize is the number of reviews the site renders per listing page.
const PageSize = 10

// StatusTransportError is the sentinel status code recorded when an HTTP
// request produced no response at all.
const StatusTransportError = -1

// CrawlTarget is one URL the engine intends to fetch periodically. The
// (UserID, Kind, Discriminator) triple is the catalog key; at most one row
// exists per triple.
type CrawlTarget struct {
	UserID        string     `json:"user_id"`
	Kind          TargetKind `json:"kind"`
	Discriminator string     `json:"discriminator"`
	URL           string     `json:"url"`
	LastFetched   time.Time  `json:"last_fetched,omitempty"`
	StatusCode    int        `json:"status_code,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	ContentHash   string     `json:"content_hash,omitempty"`
	ExpiresAt     time.Time  `json:"expires_at"`
}

// Key returns the catalog sort key for the target.
func (t CrawlTarget) Key() string {
	return TargetKey(t.Kind, t.Discriminator)
}

// TargetKey builds the catalog sort key for a (kind, discriminator) pair.
// Metadata targets have no discriminator and collapse to the bare kind.
func TargetKey(kind TargetKind, discriminator string) string {
	if discriminator == "" {
		return string(kind)
	}
	return string(kind) + "#" + discriminator
}

// AliveStatus is the tri-state liveness of a review as last observed by a
// status-page check.
type AliveStatus string

// Alive status values. A review starts unknown and stays that way until the
// first status page for it is parsed.
const (
	AliveUnknown AliveStatus = "unknown"
	AliveYes     AliveStatus = "alive"
	AliveNo      AliveStatus = "dead"
)

// MetadataFact is the profile-level knowledge extracted from a user's
// metadata page.
type MetadataFact struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	City        string    `json:"city"`
	ReviewCount int       `json:"review_count"`
	UpdatedAt   time.Time `json:"updated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ReviewFact is one review extracted from a listing page. EntityID is unique
// per user; ReviewID is globally unique and is the join key used to map an
// asynchronously checked status page back to its owner.
type ReviewFact struct {
	UserID        string      `json:"user_id"`
	EntityID      string      `json:"entity_id"`
	EntityName    string      `json:"entity_name"`
	EntityAddress string      `json:"entity_address"`
	ReviewID      string      `json:"review_id"`
	ReviewDate    string      `json:"review_date"`
	Alive         AliveStatus `json:"alive"`
	UpdatedAt     time.Time   `json:"updated_at"`
	ExpiresAt     time.Time   `json:"expires_at"`
}

// FetchOutcome is the result of one fetch unit of work inside a batch.
type FetchOutcome struct {
	Target     CrawlTarget
	StatusCode int
	Bytes      int
	Err        error
}

// SweepReport summarizes one reconciliation pass for a user.
type SweepReport struct {
	UserID         string `json:"user_id"`
	TargetsDeleted int    `json:"targets_deleted"`
	FactsDeleted   int    `json:"facts_deleted"`
}
