package parser

import (
	"context"
	"fmt"
	"time"

	"github.com/revloop/revloop/internal/notify"
	"github.com/revloop/revloop/internal/orchestrator"
)

// Deps bundles the collaborators every extractor needs.
type Deps struct {
	Facts     orchestrator.FactStore
	Publisher orchestrator.Publisher
	IDGen     orchestrator.IDGenerator
	Clock     orchestrator.Clock
	FactTTL   time.Duration
}


// publishFactChange emits a fact-changed event when a publisher is wired.
func (d Deps) publishFactChange(ctx context.Context, event notify.FactChanged) error {
	if d.Publisher == nil {
		return nil
	}
	id, err := d.IDGen.NewID()
	if err != nil {
		return fmt.Errorf("generate event id: %w", err)
	}
	event.ID = id
	if _, err := d.Publisher.Publish(ctx, notify.TopicFactChanged, event); err != nil {
		return fmt.Errorf("publish fact-changed: %w", err)
	}
	return nil
}
