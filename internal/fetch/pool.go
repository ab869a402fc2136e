// Package fetch implements the bounded-concurrency fetch pipeline over the
// catalog's crawl targets.
package fetch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/revloop/revloop/internal/metrics"
	"github.com/revloop/revloop/internal/notify"
	"github.com/revloop/revloop/internal/orchestrator"
)

// Config controls batch selection and fan-out.
type Config struct {
	BatchSize   int
	Concurrency int
}

// Pool drains the oldest unfetched targets and fetches them with per-item
// fault isolation. Every target's outcome is persisted individually, so a
// partially completed batch is safe to resume on the next invocation.
type Pool struct {
	targets   orchestrator.TargetStore
	pages     orchestrator.PageStore
	fetcher   orchestrator.Fetcher
	publisher orchestrator.Publisher
	hasher    orchestrator.Hasher
	clock     orchestrator.Clock
	idGen     orchestrator.IDGenerator
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Pool.
func New(
	targets orchestrator.TargetStore,
	pages orchestrator.PageStore,
	fetcher orchestrator.Fetcher,
	publisher orchestrator.Publisher,
	hasher orchestrator.Hasher,
	clock orchestrator.Clock,
	idGen orchestrator.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Pool {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		targets:   targets,
		pages:     pages,
		fetcher:   fetcher,
		publisher: publisher,
		hasher:    hasher,
		clock:     clock,
		idGen:     idGen,
		cfg:       cfg,
		logger:    logger,
	}
}

// GatherBatch selects the least-recently-fetched targets across all users,
// excluding any target carrying a recorded error. A never-fetched target
// has a zero timestamp and sorts first.
func (p *Pool) GatherBatch(ctx context.Context) ([]orchestrator.CrawlTarget, error) {
	all, err := p.targets.ListAllTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	batch := make([]orchestrator.CrawlTarget, 0, len(all))
	for _, target := range all {
		if target.LastError != "" {
			continue
		}
		batch = append(batch, target)
	}
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].LastFetched.Before(batch[j].LastFetched)
	})
	if len(batch) > p.cfg.BatchSize {
		batch = batch[:p.cfg.BatchSize]
	}
	return batch, nil
}

// Run gathers one batch and fetches every target in it concurrently. It
// returns normally when all targets were attempted and reports an aggregate
// BatchError iff at least one item failed; a single bad URL never blocks or
// rolls back the successes of the rest.
func (p *Pool) Run(ctx context.Context) error {
	batch, err := p.GatherBatch(ctx)
	if err != nil {
		return err
	}
	p.logger.Info("fetch batch gathered", zap.Int("targets", len(batch)))
	if len(batch) == 0 {
		return nil
	}

	outcomes := make([]orchestrator.FetchOutcome, len(batch))
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Concurrency)
	for i, target := range batch {
		g.Go(func() error {
			outcomes[i] = p.processTarget(ctx, target)
			return nil
		})
	}
	// Units report through outcomes, never through the group error.
	_ = g.Wait()

	var errs []error
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			metrics.ObserveBatchFailure("fetch")
			errs = append(errs, outcome.Err)
		}
	}
	if len(errs) > 0 {
		return &orchestrator.BatchError{Op: "fetch batch", Failed: len(errs), Errs: errs}
	}
	return nil
}

// ResetErrors clears the recorded error state of every target so failed
// targets re-enter automatic batch selection.
func (p *Pool) ResetErrors(ctx context.Context) (int, error) {
	all, err := p.targets.ListAllTargets(ctx)
	if err != nil {
		return 0, fmt.Errorf("list targets: %w", err)
	}
	cleared := 0
	for _, target := range all {
		if target.LastError == "" {
			continue
		}
		if err := p.targets.ClearFetchError(ctx, target.UserID, target.Kind, target.Discriminator); err != nil {
			return cleared, fmt.Errorf("clear fetch error: %w", err)
		}
		cleared++
	}
	return cleared, nil
}

func (p *Pool) processTarget(ctx context.Context, target orchestrator.CrawlTarget) orchestrator.FetchOutcome {
	result, err := p.fetcher.Fetch(ctx, target.URL)
	now := p.clock.Now()

	if err != nil {
		p.recordOutcome(ctx, target, orchestrator.StatusTransportError, err.Error(), "", now)
		metrics.ObserveFetch(orchestrator.StatusTransportError, 0)
		p.logger.Error("fetch transport failure",
			zap.String("url", target.URL), zap.Error(err))
		return orchestrator.FetchOutcome{Target: target, StatusCode: orchestrator.StatusTransportError, Err: err}
	}

	metrics.ObserveFetch(result.StatusCode, len(result.Body))
	if result.StatusCode < 200 || result.StatusCode > 299 {
		fetchErr := &orchestrator.FetchError{URL: target.URL, StatusCode: result.StatusCode}
		p.recordOutcome(ctx, target, result.StatusCode, fetchErr.Error(), "", now)
		p.logger.Warn("fetch returned non-2xx",
			zap.String("url", target.URL), zap.Int("status", result.StatusCode))
		return orchestrator.FetchOutcome{Target: target, StatusCode: result.StatusCode, Err: fetchErr}
	}

	if err := p.persistPage(ctx, target, result, now); err != nil {
		p.recordOutcome(ctx, target, result.StatusCode, err.Error(), "", now)
		p.logger.Error("persist page failed",
			zap.String("url", target.URL), zap.Error(err))
		return orchestrator.FetchOutcome{Target: target, StatusCode: result.StatusCode, Err: err}
	}

	p.logger.Debug("target fetched",
		zap.String("url", target.URL),
		zap.Int("status", result.StatusCode),
		zap.Int("bytes", len(result.Body)),
	)
	return orchestrator.FetchOutcome{Target: target, StatusCode: result.StatusCode, Bytes: len(result.Body)}
}

func (p *Pool) persistPage(
	ctx context.Context,
	target orchestrator.CrawlTarget,
	result orchestrator.FetchResult,
	now time.Time,
) error {
	hash, err := p.hasher.Hash(result.Body)
	if err != nil {
		return fmt.Errorf("hash body: %w", err)
	}
	uri, err := p.pages.PutPage(ctx, target.URL, result.Body)
	if err != nil {
		return fmt.Errorf("put page: %w", err)
	}
	p.recordOutcome(ctx, target, result.StatusCode, "", hash, now)

	if p.publisher == nil {
		return nil
	}
	eventID, err := p.idGen.NewID()
	if err != nil {
		return fmt.Errorf("generate event id: %w", err)
	}
	event := notify.PageStored{ID: eventID, URL: target.URL, URI: uri, Hash: hash}
	if _, err := p.publisher.Publish(ctx, notify.TopicPageStored, event); err != nil {
		return fmt.Errorf("publish page-stored: %w", err)
	}
	return nil
}

func (p *Pool) recordOutcome(
	ctx context.Context,
	target orchestrator.CrawlTarget,
	statusCode int,
	fetchErr string,
	hash string,
	at time.Time,
) {
	err := p.targets.MarkFetched(ctx, target.UserID, target.Kind, target.Discriminator,
		statusCode, fetchErr, hash, at)
	if err != nil {
		p.logger.Error("mark fetched failed",
			zap.String("url", target.URL), zap.Error(err))
	}
}
