// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	gcpubsub "cloud.google.com/go/pubsub"

	catalogmem "github.com/revloop/revloop/internal/catalog/memory"
	catalogpg "github.com/revloop/revloop/internal/catalog/postgres"
	"github.com/revloop/revloop/internal/clock/system"
	"github.com/revloop/revloop/internal/config"
	collyfetcher "github.com/revloop/revloop/internal/fetcher/colly"
	"github.com/revloop/revloop/internal/hash/sha256"
	"github.com/revloop/revloop/internal/id/uuid"
	"github.com/revloop/revloop/internal/logging"
	"github.com/revloop/revloop/internal/metrics"
	notifymem "github.com/revloop/revloop/internal/notify/memory"
	notifyps "github.com/revloop/revloop/internal/notify/pubsub"
	"github.com/revloop/revloop/internal/orchestrator"
	pagegcs "github.com/revloop/revloop/internal/pagestore/gcs"
	pagelocal "github.com/revloop/revloop/internal/pagestore/local"
	pagemem "github.com/revloop/revloop/internal/pagestore/memory"
)

// App holds the shared, long-lived services for the engine. It is
// initialized once at startup and passed to the components that need it.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Clock     orchestrator.Clock
	Hasher    orchestrator.Hasher
	IDGen     orchestrator.IDGenerator
	Catalog   orchestrator.Catalog
	Pages     orchestrator.PageStore
	Publisher orchestrator.Publisher
	Fetcher   orchestrator.Fetcher

	// Bus is non-nil when the notify provider is "memory"; the run mode
	// consumes change notifications from it.
	Bus *notifymem.Bus

	closers []func()
}

// New creates and initializes an App from configuration. It fails fast if
// any critical service cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	a := &App{
		Config: cfg,
		Logger: logger,
		Clock:  system.New(),
		Hasher: sha256.New(),
		IDGen:  uuid.NewGenerator(),
	}

	if err := a.initCatalog(ctx, cfg); err != nil {
		return nil, err
	}
	if err := a.initPageStore(ctx, cfg); err != nil {
		return nil, err
	}
	if err := a.initPublisher(ctx, cfg); err != nil {
		return nil, err
	}

	a.Fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   time.Duration(cfg.Crawler.TimeoutSeconds) * time.Second,
		Delay:     cfg.Crawler.Delay(),
	})

	logger.Info("application services initialized",
		zap.String("catalog", cfg.Storage.CatalogProvider),
		zap.String("pages", cfg.Storage.PageProvider),
		zap.String("notify", cfg.Notify.Provider),
	)
	return a, nil
}

func (a *App) initCatalog(ctx context.Context, cfg config.Config) error {
	switch cfg.Storage.CatalogProvider {
	case "postgres":
		store, err := catalogpg.New(ctx, catalogpg.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		}, a.Clock)
		if err != nil {
			return fmt.Errorf("init postgres catalog: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return fmt.Errorf("init postgres catalog: %w", err)
		}
		a.Catalog = store
		a.closers = append(a.closers, store.Close)
	case "memory":
		a.Catalog = catalogmem.New(a.Clock)
	default:
		return fmt.Errorf("unknown catalog provider: %s", cfg.Storage.CatalogProvider)
	}
	return nil
}

func (a *App) initPageStore(ctx context.Context, cfg config.Config) error {
	switch cfg.Storage.PageProvider {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		store, err := pagegcs.New(client, pagegcs.Config{
			Bucket:      cfg.Storage.GCSBucket,
			ContentType: cfg.Storage.ContentType,
		})
		if err != nil {
			return fmt.Errorf("init gcs page store: %w", err)
		}
		a.Pages = store
		a.closers = append(a.closers, func() { _ = client.Close() })
	case "local":
		store, err := pagelocal.New(pagelocal.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			return fmt.Errorf("init local page store: %w", err)
		}
		a.Pages = store
	case "memory":
		a.Pages = pagemem.New()
	default:
		return fmt.Errorf("unknown page provider: %s", cfg.Storage.PageProvider)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context, cfg config.Config) error {
	switch cfg.Notify.Provider {
	case "pubsub":
		client, err := gcpubsub.NewClient(ctx, cfg.Notify.ProjectID)
		if err != nil {
			return fmt.Errorf("init pubsub client: %w", err)
		}
		pub, err := notifyps.New(client)
		if err != nil {
			return fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.Publisher = pub
		a.closers = append(a.closers, func() { _ = pub.Close() })
	case "memory":
		bus := notifymem.NewBus(cfg.Notify.BufferSize)
		a.Publisher = bus
		a.Bus = bus
		a.closers = append(a.closers, bus.Close)
	default:
		return fmt.Errorf("unknown notify provider: %s", cfg.Notify.Provider)
	}
	return nil
}

// Close gracefully shuts down all services in the container.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	// Flushing the logger buffer is best-effort; stderr sync can fail.
	_ = a.Logger.Sync()
}
