package analytics

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	TotalSelections   int64        `json:"total_selections"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	PartialCount      int64        `json:"partial_count"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []Ranked     `json:"top_queries"`
	ZeroResultQueries []Ranked     `json:"zero_result_queries"`
	TopSelections     []Ranked     `json:"top_selections"`
	FailingShards     []Ranked     `json:"failing_shards"`
	SelectionRate     float64      `json:"selection_rate"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
}

// Ranked is one row of a top-N table: a normalized query, a selected
// entry key or a shard id.
type Ranked struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// maxLatencySamples bounds memory; older samples are overwritten.
const maxLatencySamples = 10000

// Aggregator keeps running statistics over search events.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	totalSelections   int64
	zeroResults       int64
	partials          int64
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	selections        map[string]int64
	shardFailures     map[string]int64
	startTime         time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		selections:        make(map[string]int64),
		shardFailures:     make(map[string]int64),
		startTime:         time.Now(),
	}
}

// Record folds one event into the statistics.
func (a *Aggregator) Record(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if event.Type == EventSelect {
		a.totalSelections++
		a.selections[event.SelectedKey]++
		return
	}
	a.totalSearches++
	a.queryCounts[event.Normalized]++
	switch event.Type {
	case EventZeroResult:
		a.zeroResults++
		a.zeroResultQueries[event.Normalized]++
	case EventPartial:
		a.partials++
		for _, id := range event.FailedShards {
			a.shardFailures[id]++
		}
	}
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
}

// HandleEvent adapts the aggregator to a Kafka consumer. Undecodable
// messages are logged by the consumer and skipped.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			return err
		}
		agg.Record(event)
		return nil
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches,
		TotalSelections: a.totalSelections,
		ZeroResultCount: a.zeroResults,
		PartialCount:    a.partials,
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	stats.TopSelections = topN(a.selections, 10)
	stats.FailingShards = topN(a.shardFailures, 10)
	if a.totalSearches > 0 {
		stats.SelectionRate = float64(a.totalSelections) / float64(a.totalSearches)
	}
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}

	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []Ranked {
	result := make([]Ranked, 0, len(counts))
	for key, count := range counts {
		result = append(result, Ranked{Key: key, Count: count})
	}
	slices.SortFunc(result, func(a, b Ranked) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
