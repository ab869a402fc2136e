// Package notify defines the change-notification events that chain the
// pipeline stages together. Delivery is at least once on every transport, so
// all consumers must be idempotent.
package notify

import "github.com/revloop/revloop/internal/orchestrator"

// Topics used by the engine.
const (
	TopicFactChanged = "fact-changed"
	TopicPageStored  = "page-stored"
)

// FactKind discriminates the payload union of a FactChanged event.
type FactKind string

// Fact kinds carried by FactChanged events.
const (
	FactKindMetadata FactKind = "metadata"
	FactKindReview   FactKind = "review"
)

// FactChanged is published whenever a fact row is written. The discovery
// engine reacts to it by expanding the user's crawl target set.
type FactChanged struct {
	ID       string                     `json:"id"`
	UserID   string                     `json:"user_id"`
	Kind     FactKind                   `json:"kind"`
	Metadata *orchestrator.MetadataFact `json:"metadata,omitempty"`
	Review   *orchestrator.ReviewFact   `json:"review,omitempty"`
}

// PageStored is published whenever a raw page is written. Parser dispatch
// reacts to it by extracting and upserting the derived fact.
type PageStored struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	URI  string `json:"uri"`
	Hash string `json:"hash"`
}
