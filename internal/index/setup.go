package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// Stack is an Index together with the source and clients it was opened
// with.
type Stack struct {
	Index    *Index
	Source   Source
	HTTP     *HTTPSource
	Redis    *pkgredis.Client
	Postgres *postgres.Client

	cfg     config.IndexConfig
	closers []io.Closer
	logger  *slog.Logger
}

// Setup opens the index described by cfg. A shard cache that cannot reach
// Redis is skipped with a warning; every other failure is returned.
func Setup(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Stack, error) {
	s := &Stack{cfg: cfg.Index, logger: logger.WithComponent("index-setup")}

	switch cfg.Index.Source {
	case "dir":
		s.Source = NewDirSource(cfg.Index.Root, cfg.Index.Manifest)
	case "http":
		src, err := NewHTTPSource(HTTPSourceConfig{
			BaseURL:  cfg.Index.Root,
			Manifest: cfg.Index.Manifest,
			RetryMax: cfg.Index.RetryMax,
			Client:   &http.Client{Timeout: cfg.Index.FetchTimeout},
			Breaker: resilience.CircuitBreakerConfig{
				OnStateChange: func(name string, to resilience.State) {
					if m != nil {
						m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
					}
				},
			},
		})
		if err != nil {
			return nil, err
		}
		s.HTTP = src
		s.Source = src
	case "postgres":
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pg)
		if err := pg.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		s.Postgres = pg
		s.Source = NewPostgresSource(pg, cfg.Index.Build, cfg.Index.Manifest)
	default:
		return nil, fmt.Errorf("unknown index source %q", cfg.Index.Source)
	}

	if cfg.Index.CacheShards {
		rc, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			s.logger.Warn("redis unavailable, shard caching disabled", "error", err)
		} else {
			s.closers = append(s.closers, rc)
			s.Redis = rc
			s.Source = NewCachedSource(s.Source, rc, cfg.Index.Build, cfg.Redis.CacheTTL, m)
			s.logger.Info("shard cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	idx, err := Open(ctx, cfg.Index.Manifest, s.Source, Options{FetchTimeout: cfg.Index.FetchTimeout, Metrics: m})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Index = idx
	s.logger.Info("index opened",
		"source", cfg.Index.Source,
		"root", cfg.Index.Root,
		"build", cfg.Index.Build,
		"shards", len(idx.Manifest().Routes()),
	)

	if cfg.Index.Preload != "" {
		start := time.Now()
		errs := idx.Warm(ctx, cfg.Index.Preload)
		for _, err := range errs {
			s.logger.Warn("preload failed", "error", err)
		}
		s.logger.Info("index preloaded", "chars", cfg.Index.Preload, "failures", len(errs), "took", time.Since(start))
	}
	return s, nil
}

// Reload re-reads the manifest and drops every loaded shard.
func (s *Stack) Reload(ctx context.Context) error {
	return Reloader(s.Index, s.cfg.Manifest, s.Source)(ctx)
}

// Invalidate removes the build's cached shard payloads. It is a no-op
// without a shard cache.
func (s *Stack) Invalidate(ctx context.Context) (int64, error) {
	if s.Redis == nil {
		return 0, nil
	}
	return s.Redis.FlushByPattern(ctx, CachePattern(s.cfg.Build))
}

// Watch reloads the index whenever a local build directory changes. It
// returns at once for other sources or when watching is off.
func (s *Stack) Watch(ctx context.Context, debounce time.Duration) error {
	if !s.cfg.Watch || s.cfg.Source != "dir" {
		return nil
	}
	w, err := NewWatcher(s.cfg.Root, debounce, func(ctx context.Context) error {
		if _, err := s.Invalidate(ctx); err != nil {
			s.logger.Warn("shard cache invalidation failed", "error", err)
		}
		return s.Reload(ctx)
	})
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

// RegisterChecks adds health checks for the index and the clients behind it.
func (s *Stack) RegisterChecks(checker *health.Checker) {
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		counts := s.Index.Counts()
		msg := fmt.Sprintf("%d loaded, %d failed, %d not loaded", counts[Loaded], counts[Failed], counts[NotLoaded])
		if counts[Failed] > 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: msg}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: msg}
	})
	if s.Redis != nil {
		checker.Register("redis", health.Ping(s.Redis.Ping, health.StatusDegraded))
	}
	if s.Postgres != nil {
		checker.Register("postgres", health.Ping(s.Postgres.Ping, health.StatusDown))
	}
	if s.HTTP != nil {
		checker.Register("shard_http", func(ctx context.Context) health.ComponentHealth {
			if st := s.HTTP.BreakerState(); st != resilience.StateClosed {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit " + st.String()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
}

// Close releases the clients in reverse order of opening.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}
