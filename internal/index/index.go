// Package index owns the lazily loaded set of shards for one documentation
// build. Shards are fetched on first use, each at most once at a time, and
// stay resident until the index is reset.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard/codec"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// LoadState is the lifecycle of one shard.
type LoadState int

const (
	NotLoaded LoadState = iota
	Loading
	Loaded
	Failed
)

func (s LoadState) String() string {
	switch s {
	case NotLoaded:
		return "not_loaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// LoadError reports a shard that could not be fetched or decoded. It
// matches apperrors.ErrShardUnavailable and the underlying cause.
type LoadError struct {
	ShardID shard.ID
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading shard %s: %v", e.ShardID, e.Err)
}

func (e *LoadError) Unwrap() []error {
	return []error{apperrors.ErrShardUnavailable, e.Err}
}

// Options tunes an Index.
type Options struct {
	// FetchTimeout bounds one fetch+decode. Loads are detached from the
	// caller's context so an abandoned query does not poison a shard shared
	// with other callers.
	FetchTimeout time.Duration
	Metrics      *metrics.Metrics
}

type slot struct {
	state LoadState
	shard *shard.Shard
	err   error
	at    time.Time
}

// Index is safe for concurrent use.
type Index struct {
	source  Source
	opts    Options
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	manifest *Manifest
	slots    map[shard.ID]*slot
	epoch    uint64
}

// New creates an Index over manifest whose shards are read from source.
func New(manifest *Manifest, source Source, opts Options) *Index {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	return &Index{
		source:   source,
		opts:     opts,
		logger:   slog.Default().With("component", "index"),
		metrics:  opts.Metrics,
		manifest: manifest,
		slots:    make(map[shard.ID]*slot),
	}
}

// Open fetches and parses the manifest from source, then creates the Index.
func Open(ctx context.Context, manifestName string, source Source, opts Options) (*Index, error) {
	m, err := FetchManifest(ctx, manifestName, source)
	if err != nil {
		return nil, err
	}
	return New(m, source, opts), nil
}

// FetchManifest reads and parses the manifest from source.
func FetchManifest(ctx context.Context, manifestName string, source Source) (*Manifest, error) {
	data, err := source.FetchManifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest: %w", err)
	}
	m, err := ParseManifest(manifestName, data)
	if err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", manifestName, err)
	}
	return m, nil
}

// Manifest returns the current manifest.
func (idx *Index) Manifest() *Manifest {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.manifest
}

// Resolve returns the shards that can hold keys starting with prefix. It
// depends on the manifest only, never on which shards are loaded.
func (idx *Index) Resolve(prefix string) []shard.ID {
	return idx.Manifest().ResolveShardsFor(prefix)
}

// State reports the load state of a shard.
func (idx *Index) State(id shard.ID) LoadState {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if s, ok := idx.slots[id]; ok {
		return s.state
	}
	return NotLoaded
}

// EnsureLoaded returns the shard, fetching and decoding it if needed.
// Concurrent callers for the same shard share a single load. A failed shard
// is retried by the next caller. If ctx ends first the caller gets a
// LoadError wrapping ctx.Err() while the shared load runs on.
func (idx *Index) EnsureLoaded(ctx context.Context, id shard.ID) (*shard.Shard, error) {
	idx.mu.Lock()
	route, ok := idx.manifest.Route(id)
	if !ok {
		idx.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownShard, id)
	}
	s := idx.slot(id)
	if s.state == Loaded {
		sh := s.shard
		idx.mu.Unlock()
		return sh, nil
	}
	s.state = Loading
	epoch := idx.epoch
	format := idx.manifest.Format()
	idx.mu.Unlock()

	key := fmt.Sprintf("%d/%s", epoch, id)
	ch := idx.group.DoChan(key, func() (any, error) {
		return idx.load(route, format, epoch)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*shard.Shard), nil
	case <-ctx.Done():
		return nil, &LoadError{ShardID: id, Err: ctx.Err()}
	}
}

func (idx *Index) load(route Route, format codec.Format, epoch uint64) (*shard.Shard, error) {
	id := route.ID
	idx.mu.Lock()
	if s := idx.slots[id]; s != nil && s.state == Loaded && idx.epoch == epoch {
		sh := s.shard
		idx.mu.Unlock()
		return sh, nil
	}
	idx.mu.Unlock()

	start := time.Now()
	sh, err := resilience.Timeout(context.Background(), idx.opts.FetchTimeout, "load "+id.String(),
		func(ctx context.Context) (*shard.Shard, error) {
			data, err := idx.source.Fetch(ctx, id, format)
			if err != nil {
				return nil, err
			}
			return codec.Decode(format, id, route.Kind, data)
		})
	elapsed := time.Since(start)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.epoch != epoch {
		// Reset happened mid-flight: hand the result to the waiting callers
		// but keep it out of the new epoch.
		if err != nil {
			return nil, &LoadError{ShardID: id, Err: err}
		}
		return sh, nil
	}
	s := idx.slot(id)
	s.at = time.Now()
	if err != nil {
		s.state = Failed
		s.err = err
		idx.observe("error", elapsed)
		idx.logger.Warn("shard load failed", "shard", id.String(), "duration", elapsed, "error", err)
		return nil, &LoadError{ShardID: id, Err: err}
	}
	s.state = Loaded
	s.shard = sh
	s.err = nil
	idx.observe("ok", elapsed)
	if idx.metrics != nil {
		idx.metrics.LoadedShards.Inc()
	}
	idx.logger.Debug("shard loaded", "shard", id.String(), "entries", sh.Len(), "duration", elapsed)
	return sh, nil
}

func (idx *Index) slot(id shard.ID) *slot {
	s, ok := idx.slots[id]
	if !ok {
		s = &slot{}
		idx.slots[id] = s
	}
	return s
}

func (idx *Index) observe(status string, d time.Duration) {
	if idx.metrics == nil {
		return
	}
	idx.metrics.ShardLoadsTotal.WithLabelValues(status).Inc()
	idx.metrics.ShardLoadDuration.Observe(d.Seconds())
}

// Reset drops every loaded shard. A non-nil manifest replaces the current
// one, which is how a rebuilt documentation tree is picked up. Loads in
// flight finish for their callers but are not installed.
func (idx *Index) Reset(manifest *Manifest) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if manifest != nil {
		idx.manifest = manifest
	}
	idx.epoch++
	idx.slots = make(map[shard.ID]*slot)
	if idx.metrics != nil {
		idx.metrics.LoadedShards.Set(0)
	}
	idx.logger.Info("index reset", "epoch", idx.epoch, "shards", len(idx.manifest.routes))
}

// ShardStatus is one row of Snapshot.
type ShardStatus struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	State     string    `json:"state"`
	Entries   int       `json:"entries,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Snapshot lists every manifest shard with its load state, in manifest
// order.
func (idx *Index) Snapshot() []ShardStatus {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	out := make([]ShardStatus, 0, len(idx.manifest.routes))
	for _, r := range idx.manifest.routes {
		st := ShardStatus{ID: r.ID.String(), Kind: string(r.Kind), State: NotLoaded.String()}
		if s, ok := idx.slots[r.ID]; ok {
			st.State = s.state.String()
			st.UpdatedAt = s.at
			if s.shard != nil {
				st.Entries = s.shard.Len()
			}
			if s.err != nil {
				st.Error = s.err.Error()
			}
		}
		out = append(out, st)
	}
	return out
}

// Counts tallies shards by state.
func (idx *Index) Counts() map[LoadState]int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	counts := make(map[LoadState]int, 4)
	for _, r := range idx.manifest.routes {
		if s, ok := idx.slots[r.ID]; ok {
			counts[s.state]++
		} else {
			counts[NotLoaded]++
		}
	}
	return counts
}

// Warm loads every shard for the given leading characters, returning the
// failures sorted by shard.
func (idx *Index) Warm(ctx context.Context, chars string) []error {
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	seen := make(map[shard.ID]bool)
	for _, c := range chars {
		for _, id := range idx.Resolve(string(c)) {
			if seen[id] {
				continue
			}
			seen[id] = true
			wg.Add(1)
			go func(id shard.ID) {
				defer wg.Done()
				if _, err := idx.EnsureLoaded(ctx, id); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}(id)
		}
	}
	wg.Wait()
	sort.Slice(errs, func(i, j int) bool {
		var a, b *LoadError
		if errors.As(errs[i], &a) && errors.As(errs[j], &b) {
			return a.ShardID.String() < b.ShardID.String()
		}
		return errs[i].Error() < errs[j].Error()
	})
	return errs
}
