// Package query runs incremental symbol searches against a lazily loaded
// index: resolve candidate shards, load them in parallel, match by prefix
// and fall back to substring, then rank and deduplicate.
package query

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

// Index is what the engine needs from the shard registry.
type Index interface {
	Resolve(prefix string) []shard.ID
	EnsureLoaded(ctx context.Context, id shard.ID) (*shard.Shard, error)
}

// Options tunes matching policy.
type Options struct {
	// MinResults triggers the substring pass when prefix matching finds
	// fewer rows than this.
	MinResults int
	// MaxResults truncates the ranked rows. Zero keeps everything.
	MaxResults int
	Metrics    *metrics.Metrics
}

// Engine is safe for concurrent use.
type Engine struct {
	index   Index
	opts    Options
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(index Index, opts Options) *Engine {
	if opts.MinResults < 0 {
		opts.MinResults = 0
	}
	return &Engine{
		index:   index,
		opts:    opts,
		metrics: opts.Metrics,
		logger:  slog.Default().With("component", "query-engine"),
	}
}

// Search never fails: no matches is an empty ResultSet and shards that fail
// to load only make the result partial. Against unchanged loaded shards the
// same text always yields the same rows in the same order.
func (e *Engine) Search(ctx context.Context, text string, generation uint64) *ResultSet {
	start := time.Now()
	rs := Empty(text, generation)
	if rs.Normalized == "" {
		e.observe("empty_query", rs, start)
		return rs
	}

	ctx, span := tracing.StartChildSpan(ctx, "query.search")
	defer span.End()
	span.SetAttr("query", rs.Normalized)

	ids := e.index.Resolve(rs.Normalized)
	shards := e.load(ctx, ids, rs)

	var matches []Match
	for i, sh := range shards {
		if sh == nil {
			continue
		}
		for _, entry := range sh.LookupPrefix(rs.Normalized) {
			matches = append(matches, e.match(entry, PrefixMatch, ids[i], rs.Normalized))
		}
	}
	if len(matches) < e.opts.MinResults {
		for i, sh := range shards {
			if sh == nil {
				continue
			}
			for _, entry := range sh.LookupSubstring(rs.Normalized) {
				if strings.HasPrefix(entry.Key, rs.Normalized) {
					continue
				}
				matches = append(matches, e.match(entry, SubstringMatch, ids[i], rs.Normalized))
			}
		}
	}

	ranked := rank(matches)
	if e.opts.MaxResults > 0 && len(ranked) > e.opts.MaxResults {
		ranked = ranked[:e.opts.MaxResults]
		rs.Truncated = true
	}
	rs.Matches = append(rs.Matches, ranked...)

	span.SetAttr("shards", len(ids))
	span.SetAttr("results", len(rs.Matches))
	outcome := "hit"
	switch {
	case rs.Partial:
		outcome = "partial"
	case len(rs.Matches) == 0:
		outcome = "zero_result"
	}
	e.observe(outcome, rs, start)
	e.logger.Debug("search executed",
		"query", rs.Normalized,
		"generation", generation,
		"shards_queried", len(ids),
		"shards_failed", len(rs.FailedShards),
		"results", len(rs.Matches),
	)
	return rs
}

// load ensures every candidate shard in parallel. A failed shard leaves a
// nil slot and is recorded on rs; the others are unaffected.
func (e *Engine) load(ctx context.Context, ids []shard.ID, rs *ResultSet) []*shard.Shard {
	shards := make([]*shard.Shard, len(ids))
	errs := make([]error, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			shards[i], errs[i] = e.index.EnsureLoaded(ctx, id)
			return nil
		})
	}
	g.Wait()
	for i, err := range errs {
		if err == nil {
			continue
		}
		shards[i] = nil
		rs.Partial = true
		rs.FailedShards = append(rs.FailedShards, ids[i])
		e.logger.Warn("shard unavailable, returning partial results",
			"shard", ids[i].String(), "error", err)
	}
	return shards
}

func (e *Engine) match(entry symbol.Entry, t MatchType, id shard.ID, normalized string) Match {
	span, _ := symbol.MatchSpan(entry.DisplayName, normalized)
	return Match{
		Entry: entry,
		Span:  span,
		Score: score(t, entry.DisplayName),
		Type:  t,
		Shard: id,
	}
}

func (e *Engine) observe(outcome string, rs *ResultSet, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	e.metrics.SearchLatency.Observe(time.Since(start).Seconds())
	e.metrics.SearchResultsCount.Observe(float64(len(rs.Matches)))
}
