package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/query"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return p.err
}

func (p *fakePublisher) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestCollectorBatchesAndFlushesOnClose(t *testing.T) {
	pub := &fakePublisher{}
	agg := NewAggregator()
	c := NewCollector(pub, CollectorConfig{BatchSize: 2, FlushInterval: time.Hour}, agg)
	c.Start(context.Background())

	for _, q := range []string{"vec", "map", "set"} {
		c.Track(SearchEvent{Type: EventSearch, Query: q, Normalized: q})
	}
	require.Eventually(t, func() bool { return pub.total() == 2 }, time.Second, time.Millisecond)

	c.Close()
	assert.Equal(t, 3, pub.total())
	assert.Equal(t, "vec", pub.batches[0][0].Key)
	assert.Equal(t, string(EventSearch), pub.batches[0][0].Headers["type"])
	assert.Equal(t, int64(3), agg.Stats().TotalSearches)

	c.Track(SearchEvent{Type: EventSearch, Normalized: "late"})
	assert.Equal(t, 3, pub.total())
	assert.Equal(t, int64(4), agg.Stats().TotalSearches)
}

func TestCollectorFlushesOnInterval(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	c := NewCollector(pub, CollectorConfig{BatchSize: 100, FlushInterval: 10 * time.Millisecond})
	c.Start(context.Background())
	defer c.Close()

	c.Track(SearchEvent{Type: EventSearch, Normalized: "vec"})
	require.Eventually(t, func() bool { return pub.total() == 1 }, time.Second, time.Millisecond)
}

func TestCollectorWithoutPublisher(t *testing.T) {
	agg := NewAggregator()
	c := NewCollector(nil, CollectorConfig{}, agg)
	c.Start(context.Background())
	c.Track(SearchEvent{Type: EventZeroResult, Normalized: "zzz"})
	c.Close()
	assert.Equal(t, int64(1), agg.Stats().ZeroResultCount)
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < 3; i++ {
		agg.Record(SearchEvent{Type: EventSearch, Normalized: "vec", LatencyMs: int64(10 * (i + 1))})
	}
	agg.Record(SearchEvent{Type: EventZeroResult, Normalized: "zzz", LatencyMs: 5})
	agg.Record(SearchEvent{Type: EventPartial, Normalized: "map", LatencyMs: 40, FailedShards: []string{"classes_c"}})
	agg.Record(SearchEvent{Type: EventSelect, SelectedKey: "vector"})

	stats := agg.Stats()
	assert.Equal(t, int64(5), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.TotalSelections)
	assert.Equal(t, int64(1), stats.ZeroResultCount)
	assert.Equal(t, int64(1), stats.PartialCount)
	assert.Equal(t, Ranked{Key: "vec", Count: 3}, stats.TopQueries[0])
	assert.Equal(t, []Ranked{{Key: "zzz", Count: 1}}, stats.ZeroResultQueries)
	assert.Equal(t, []Ranked{{Key: "vector", Count: 1}}, stats.TopSelections)
	assert.Equal(t, []Ranked{{Key: "classes_c", Count: 1}}, stats.FailingShards)
	assert.InDelta(t, 0.2, stats.SelectionRate, 0.001)
	assert.InDelta(t, 21.0, stats.AvgLatencyMs, 0.001)
	assert.Equal(t, int64(40), stats.P99LatencyMs)
}

func TestHandleEvent(t *testing.T) {
	agg := NewAggregator()
	h := HandleEvent(agg)

	value, err := json.Marshal(SearchEvent{Type: EventSearch, Normalized: "vec"})
	require.NoError(t, err)
	require.NoError(t, h(context.Background(), []byte("vec"), value))
	assert.Error(t, h(context.Background(), nil, []byte("{")))
	assert.Equal(t, int64(1), agg.Stats().TotalSearches)
}

func TestNewSearchEvent(t *testing.T) {
	rs := query.Empty("Vec", 4)
	rs.Partial = true
	rs.FailedShards = []shard.ID{{Category: "classes", Bucket: 0x15}}
	ev := NewSearchEvent(rs, "http", 12*time.Millisecond)
	assert.Equal(t, EventPartial, ev.Type)
	assert.Equal(t, "vec", ev.Normalized)
	assert.Equal(t, []string{"classes_15"}, ev.FailedShards)
	assert.Equal(t, int64(12), ev.LatencyMs)

	assert.Equal(t, EventZeroResult, NewSearchEvent(query.Empty("zzz", 1), "tui", 0).Type)

	sel := NewSelectEvent("vec", symbol.NewEntry("Vector", symbol.KindClass, symbol.Target{LocationURL: "v.html"}), "tui")
	assert.Equal(t, "vector", sel.SelectedKey)
	assert.Equal(t, "v.html", sel.LocationURL)
}

func TestStatsHandler(t *testing.T) {
	agg := NewAggregator()
	agg.Record(SearchEvent{Type: EventSearch, Normalized: "vec"})
	rec := httptest.NewRecorder()
	NewHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var stats AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.TotalSearches)
}
