package cmd

import (
	"github.com/revloop/revloop/internal/app"
	"github.com/revloop/revloop/internal/discovery"
	"github.com/revloop/revloop/internal/fetch"
	"github.com/revloop/revloop/internal/parser"
	"github.com/revloop/revloop/internal/sweeper"
)

// buildDiscovery wires the discovery engine from app services.
func buildDiscovery(a *app.App) *discovery.Engine {
	return discovery.New(a.Catalog, a.Clock, a.Config.TTL.TargetTTL(), a.Logger.Named("discovery"))
}

// buildFetchPool wires the fetch worker pool from app services.
func buildFetchPool(a *app.App) *fetch.Pool {
	return fetch.New(
		a.Catalog,
		a.Pages,
		a.Fetcher,
		a.Publisher,
		a.Hasher,
		a.Clock,
		a.IDGen,
		fetch.Config{
			BatchSize:   a.Config.Crawler.BatchSize,
			Concurrency: a.Config.Crawler.FetchConcurrency,
		},
		a.Logger.Named("fetch"),
	)
}

// buildDispatcher wires the parser dispatcher with its extractor set.
func buildDispatcher(a *app.App) *parser.Dispatcher {
	deps := parser.Deps{
		Facts:     a.Catalog,
		Publisher: a.Publisher,
		IDGen:     a.IDGen,
		Clock:     a.Clock,
		FactTTL:   a.Config.TTL.FactTTL(),
	}
	return parser.NewDispatcher(
		a.Pages,
		parser.NewMetadataExtractor(deps),
		parser.NewReviewListExtractor(deps),
		parser.NewReviewStatusExtractor(deps),
		a.Logger.Named("parser"),
	)
}

// buildSweeper wires the reconciliation sweeper from app services.
func buildSweeper(a *app.App) *sweeper.Sweeper {
	return sweeper.New(
		a.Catalog,
		a.Fetcher,
		sweeper.Config{Concurrency: a.Config.Crawler.SweepConcurrency},
		a.Logger.Named("sweeper"),
	)
}
