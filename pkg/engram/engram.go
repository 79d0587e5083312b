// Package engram assembles the memory subsystem from configuration: the
// embedding provider, the memory store, the searcher and the session
// manager, wired to a shared event bus.
package engram

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/corticalco/engram/pkg/config"
	"github.com/corticalco/engram/pkg/embeddings"
	embeddingutils "github.com/corticalco/engram/pkg/embeddings/utils"
	"github.com/corticalco/engram/pkg/eventstream"
	"github.com/corticalco/engram/pkg/memory"
	"github.com/corticalco/engram/pkg/memory/local"
	"github.com/corticalco/engram/pkg/memory/search"
	"github.com/corticalco/engram/pkg/session"
	persistnop "github.com/corticalco/engram/pkg/session/persist/nop"
	persistsqlite "github.com/corticalco/engram/pkg/session/persist/sqlite"
)

// System is the assembled memory subsystem.
type System struct {
	Embedder  embeddings.Embedder
	Bus       *eventstream.Bus
	Driver    memory.Driver
	Searcher  *search.Searcher
	Sessions  *session.Manager
	persister session.Persister

	logger *zap.Logger
}

// New builds a System from the given configuration. The session manager's
// background sweep is not started; call Sessions.Start when long-running.
func New(cfg *config.Config, logger *zap.Logger) (*System, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		Dimensions:   int(cfg.Embedding.Dimensions),
	})
	if err != nil {
		return nil, fmt.Errorf("building embedder: %w", err)
	}

	bus := eventstream.NewBus(eventstream.BusConfig{Logger: logger})

	driver, err := local.NewDriver(local.Config{
		Embedder:               embedder,
		Publisher:              bus,
		StorageLimit:           cfg.Memory.StorageLimitBytes,
		SearchLatencyThreshold: time.Duration(cfg.Memory.SearchLatencyThresholdMs) * time.Millisecond,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("building memory driver: %w", err)
	}

	searcher := search.NewSearcher(driver, search.Config{
		SimilarityWeight: cfg.Search.SimilarityWeight,
		ImportanceWeight: cfg.Search.ImportanceWeight,
		RecencyWeight:    cfg.Search.RecencyWeight,
		BoostRecent:      cfg.Search.RecencyWeight > 0,
		Threshold:        cfg.Search.Threshold,
		MaxResults:       cfg.Search.MaxResults,
		CacheTTL:         time.Duration(cfg.Search.CacheTTLSeconds) * time.Second,
		CacheSize:        cfg.Search.CacheSize,
		HistorySize:      cfg.Search.HistorySize,
		Publisher:        bus,
	}, logger)

	persister, err := newPersister(cfg)
	if err != nil {
		return nil, fmt.Errorf("building persister: %w", err)
	}

	sessions := session.NewManager(driver, searcher, session.Config{
		IdleTimeout:        time.Duration(cfg.Session.IdleTimeoutMinutes) * time.Minute,
		MaxSessionDuration: time.Duration(cfg.Session.MaxDurationHours) * time.Hour,
		WindowMaxSize:      cfg.Session.WindowMaxSize,
		WindowMaxTokens:    cfg.Session.WindowMaxTokens,
		WindowStrategy:     session.WindowStrategy(cfg.Session.WindowStrategy),
		ShortTermCap:       cfg.Session.ShortTermCap,
		PromotionThreshold: cfg.Session.PromotionThreshold,
		CleanupInterval:    time.Duration(cfg.Session.CleanupIntervalSeconds) * time.Second,
		Persister:          persister,
		Publisher:          bus,
	}, logger)

	return &System{
		Embedder:  embedder,
		Bus:       bus,
		Driver:    driver,
		Searcher:  searcher,
		Sessions:  sessions,
		persister: persister,
		logger:    logger,
	}, nil
}

func newPersister(cfg *config.Config) (session.Persister, error) {
	switch cfg.Persist.Provider {
	case "", "nop":
		return persistnop.NewPersister(), nil
	case "sqlite":
		path := cfg.Persist.SQLitePath
		if path == "" {
			path = "engram.db"
		}
		return persistsqlite.NewPersister(path)
	default:
		return nil, fmt.Errorf("unsupported persist provider: %s", cfg.Persist.Provider)
	}
}

// Close shuts the system down in dependency order: the session manager
// flushes persistence, then the driver, persister, embedder and event bus
// release their resources.
func (s *System) Close(ctx context.Context) error {
	s.Sessions.Stop(ctx)

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(s.Driver.Close())
	record(s.persister.Close())
	record(s.Embedder.Close())
	record(s.Bus.Close())

	return firstErr
}
