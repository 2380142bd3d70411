package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard/codec"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// Source fetches the raw bytes of a build's manifest and shards.
type Source interface {
	FetchManifest(ctx context.Context) ([]byte, error)
	Fetch(ctx context.Context, id shard.ID, format codec.Format) ([]byte, error)
}

// DirSource reads a build from a local directory such as Doxygen's
// html/search output.
type DirSource struct {
	root     string
	manifest string
}

func NewDirSource(root, manifest string) *DirSource {
	return &DirSource{root: root, manifest: manifest}
}

func (s *DirSource) FetchManifest(ctx context.Context) ([]byte, error) {
	return s.read(ctx, s.manifest)
}

func (s *DirSource) Fetch(ctx context.Context, id shard.ID, format codec.Format) ([]byte, error) {
	return s.read(ctx, id.String()+format.Extension())
}

func (s *DirSource) read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s not found in %s", apperrors.ErrShardUnavailable, name, s.root)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

// HTTPSourceConfig configures an HTTPSource.
type HTTPSourceConfig struct {
	BaseURL     string
	Manifest    string
	RetryMax    int
	Client      *http.Client
	Breaker     resilience.CircuitBreakerConfig
	MaxBodySize int64
}

// HTTPSource fetches a build published on a static web server. Requests go
// through a circuit breaker and are retried with backoff; 4xx responses are
// not retried.
type HTTPSource struct {
	base     *url.URL
	manifest string
	client   *http.Client
	breaker  *resilience.CircuitBreaker
	retry    resilience.RetryConfig
	maxBody  int64
	logger   *slog.Logger
}

func NewHTTPSource(cfg HTTPSourceConfig) (*HTTPSource, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base url %q: %v", apperrors.ErrInvalidInput, cfg.BaseURL, err)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	maxBody := cfg.MaxBodySize
	if maxBody <= 0 {
		maxBody = 64 << 20
	}
	return &HTTPSource{
		base:     base,
		manifest: cfg.Manifest,
		client:   client,
		breaker:  resilience.NewCircuitBreaker("shard-http", cfg.Breaker),
		retry:    resilience.RetryConfig{MaxAttempts: cfg.RetryMax, InitialDelay: 100 * time.Millisecond},
		maxBody:  maxBody,
		logger:   slog.Default().With("component", "http-source"),
	}, nil
}

func (s *HTTPSource) FetchManifest(ctx context.Context) ([]byte, error) {
	return s.get(ctx, s.manifest)
}

func (s *HTTPSource) Fetch(ctx context.Context, id shard.ID, format codec.Format) ([]byte, error) {
	return s.get(ctx, id.String()+format.Extension())
}

func (s *HTTPSource) get(ctx context.Context, name string) ([]byte, error) {
	target := s.base.ResolveReference(&url.URL{Path: name}).String()
	var body []byte
	err := resilience.Retry(ctx, "fetch "+name, s.retry, func() error {
		return s.breaker.Execute(func() error {
			data, err := s.do(ctx, target)
			if err != nil {
				return err
			}
			body = data
			return nil
		})
	})
	if err != nil {
		s.logger.Warn("fetch failed", "url", target, "error", err)
		return nil, err
	}
	return body, nil
}

func (s *HTTPSource) do(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("building request: %w", err))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrShardUnavailable, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, resilience.Permanent(fmt.Errorf("%w: GET %s: %s", apperrors.ErrShardUnavailable, target, resp.Status))
	default:
		return nil, fmt.Errorf("%w: GET %s: %s", apperrors.ErrShardUnavailable, target, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", apperrors.ErrShardUnavailable, target, err)
	}
	if int64(len(data)) > s.maxBody {
		return nil, resilience.Permanent(fmt.Errorf("%w: %s exceeds %d bytes", apperrors.ErrInvalidShard, target, s.maxBody))
	}
	return data, nil
}

// BreakerState reports the circuit breaker state for health checks.
func (s *HTTPSource) BreakerState() resilience.State {
	return s.breaker.State()
}

// PayloadStore is the subset of the postgres client a PostgresSource needs.
type PayloadStore interface {
	LoadPayload(ctx context.Context, build, name string) ([]byte, error)
}

// PostgresSource reads a build from the search_shards table, keyed by build
// and file name.
type PostgresSource struct {
	store    PayloadStore
	build    string
	manifest string
}

func NewPostgresSource(store PayloadStore, build, manifest string) *PostgresSource {
	return &PostgresSource{store: store, build: build, manifest: manifest}
}

func (s *PostgresSource) FetchManifest(ctx context.Context) ([]byte, error) {
	return s.load(ctx, s.manifest)
}

func (s *PostgresSource) Fetch(ctx context.Context, id shard.ID, format codec.Format) ([]byte, error) {
	return s.load(ctx, id.String()+format.Extension())
}

func (s *PostgresSource) load(ctx context.Context, name string) ([]byte, error) {
	data, err := s.store.LoadPayload(ctx, s.build, name)
	if errors.Is(err, postgres.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrShardUnavailable, err)
	}
	return data, err
}

// PayloadCache is the subset of the redis client a CachedSource needs.
type PayloadCache interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedSource keeps shard payloads in Redis in front of a slower Source.
// Cache errors are logged and fall through to the inner source. Manifests
// are never cached so a rebuilt tree is picked up on reset.
type CachedSource struct {
	inner   Source
	cache   PayloadCache
	build   string
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewCachedSource(inner Source, cache PayloadCache, build string, ttl time.Duration, m *metrics.Metrics) *CachedSource {
	return &CachedSource{
		inner:   inner,
		cache:   cache,
		build:   build,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "shard-cache"),
	}
}

func (s *CachedSource) FetchManifest(ctx context.Context) ([]byte, error) {
	return s.inner.FetchManifest(ctx)
}

func (s *CachedSource) Fetch(ctx context.Context, id shard.ID, format codec.Format) ([]byte, error) {
	key := CacheKey(s.build, id, format)
	data, err := s.cache.GetBytes(ctx, key)
	switch {
	case err == nil:
		s.count("hit")
		return data, nil
	case pkgredis.IsNilError(err):
		s.count("miss")
	default:
		s.count("error")
		s.logger.Error("cache get failed", "key", key, "error", err)
	}

	data, err = s.inner.Fetch(ctx, id, format)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetBytes(ctx, key, data, s.ttl); err != nil {
		s.logger.Error("cache set failed", "key", key, "error", err)
	}
	return data, nil
}

func (s *CachedSource) count(result string) {
	if s.metrics != nil {
		s.metrics.ShardCacheTotal.WithLabelValues(result).Inc()
	}
}

// CacheKey is the Redis key holding a shard payload.
func CacheKey(build string, id shard.ID, format codec.Format) string {
	return fmt.Sprintf("docsearch:shard:%s:%s%s", build, id, format.Extension())
}

// CachePattern matches every cached payload of a build.
func CachePattern(build string) string {
	return fmt.Sprintf("docsearch:shard:%s:*", build)
}
