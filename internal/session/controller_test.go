package session

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/query"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

// fakeClock fires timers when Advance moves past their deadline.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

// fakeSearcher records queries and optionally blocks each one until released.
type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	gates   map[string]chan struct{}
	results map[string][]symbol.Entry
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{
		gates: map[string]chan struct{}{},
		results: map[string][]symbol.Entry{
			"vec": {
				symbol.NewEntry("vector", symbol.KindClass, symbol.Target{LocationURL: "loc1"}),
				symbol.NewEntry("vectoriterator", symbol.KindClass, symbol.Target{LocationURL: "loc2"}),
			},
			"map": {
				symbol.NewEntry("map", symbol.KindClass, symbol.Target{LocationURL: "loc3"}),
			},
		},
	}
}

func (s *fakeSearcher) hold(text string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.gates[text] = ch
	return ch
}

func (s *fakeSearcher) Search(ctx context.Context, text string, generation uint64) *query.ResultSet {
	s.mu.Lock()
	s.queries = append(s.queries, text)
	gate := s.gates[text]
	entries := s.results[symbol.Normalize(text)]
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}
	rs := query.Empty(text, generation)
	for _, e := range entries {
		rs.Matches = append(rs.Matches, query.Match{Entry: e, Type: query.PrefixMatch})
	}
	return rs
}

func (s *fakeSearcher) issued() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

type recorder struct {
	mu        sync.Mutex
	published []*query.ResultSet
	navigated []symbol.Entry
}

func (r *recorder) Publish(rs *query.ResultSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, rs)
}

func (r *recorder) Navigate(e symbol.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.navigated = append(r.navigated, e)
}

func (r *recorder) generations() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, len(r.published))
	for i, rs := range r.published {
		out[i] = rs.Generation
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.published)
}

const debounce = 250 * time.Millisecond

func newController(t *testing.T) (*Controller, *fakeClock, *fakeSearcher, *recorder) {
	t.Helper()
	clock := &fakeClock{}
	searcher := newFakeSearcher()
	rec := &recorder{}
	c := New(searcher, rec, Options{Debounce: debounce, Clock: clock})
	t.Cleanup(c.Close)
	return c, clock, searcher, rec
}

func settled(c *Controller) func() bool {
	return func() bool { return c.State() == Settled }
}

func TestDebounceIssuesOneQuery(t *testing.T) {
	c, clock, searcher, rec := newController(t)

	c.Input("v")
	clock.Advance(100 * time.Millisecond)
	c.Input("ve")
	clock.Advance(100 * time.Millisecond)
	c.Input("vec")
	clock.Advance(200 * time.Millisecond)
	assert.Empty(t, searcher.issued())
	assert.Equal(t, Idle, c.State())

	clock.Advance(50 * time.Millisecond)
	require.Eventually(t, settled(c), time.Second, time.Millisecond)

	assert.Equal(t, []string{"vec"}, searcher.issued())
	assert.Equal(t, []uint64{1}, rec.generations())
	assert.Equal(t, 2, c.Results().Len())
	assert.Equal(t, 0, c.Cursor())
}

func TestInputUnchangedAfterNormalizeIsNoop(t *testing.T) {
	c, clock, searcher, _ := newController(t)

	c.Input("vec")
	clock.Advance(debounce)
	require.Eventually(t, settled(c), time.Second, time.Millisecond)

	c.Input("Vec")
	c.Input("vec::")
	clock.Advance(debounce)
	assert.Equal(t, []string{"vec"}, searcher.issued())
	assert.Equal(t, uint64(1), c.Generation())
}

func TestStaleResultsAreDiscarded(t *testing.T) {
	clock := &fakeClock{}
	searcher := newFakeSearcher()
	rec := &recorder{}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	c := New(searcher, rec, Options{Debounce: debounce, Clock: clock, Metrics: m})
	t.Cleanup(c.Close)

	slow := searcher.hold("vec")
	c.Input("vec")
	clock.Advance(debounce)
	require.Eventually(t, func() bool { return c.State() == Pending }, time.Second, time.Millisecond)

	c.Input("map")
	clock.Advance(debounce)
	require.Eventually(t, settled(c), time.Second, time.Millisecond)
	assert.Equal(t, []uint64{3}, rec.generations())

	close(slow)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.StaleResultsTotal) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []uint64{3}, rec.generations())
	assert.Equal(t, "map", c.Results().Query)
}

func TestResultsArrivingDuringNewDebounceAreDiscarded(t *testing.T) {
	clock := &fakeClock{}
	searcher := newFakeSearcher()
	rec := &recorder{}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	c := New(searcher, rec, Options{Debounce: debounce, Clock: clock, Metrics: m})
	t.Cleanup(c.Close)

	slow := searcher.hold("vec")
	c.Input("vec")
	clock.Advance(debounce)
	require.Eventually(t, func() bool { return c.State() == Pending }, time.Second, time.Millisecond)

	c.Input("map")
	assert.Equal(t, uint64(2), c.Generation())
	close(slow)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.StaleResultsTotal) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, 0, rec.count())
	assert.Equal(t, Pending, c.State())

	clock.Advance(debounce)
	require.Eventually(t, settled(c), time.Second, time.Millisecond)
	assert.Equal(t, []string{"vec", "map"}, searcher.issued())
	assert.Equal(t, []uint64{3}, rec.generations())
	assert.Equal(t, "map", c.Results().Query)
}

func TestPublishedGenerationsIncrease(t *testing.T) {
	c, clock, _, rec := newController(t)
	for _, text := range []string{"vec", "map", "", "vec", "zz"} {
		c.Input(text)
		clock.Advance(debounce)
		gen := c.Generation()
		require.Eventually(t, func() bool {
			rs := c.Results()
			return rs != nil && rs.Generation == gen
		}, time.Second, time.Millisecond)
	}
	gens := rec.generations()
	require.Len(t, gens, 5)
	for i := 1; i < len(gens); i++ {
		assert.Greater(t, gens[i], gens[i-1])
	}
}

func TestClearingInputGoesIdle(t *testing.T) {
	c, clock, searcher, rec := newController(t)

	c.Input("vec")
	clock.Advance(debounce)
	require.Eventually(t, settled(c), time.Second, time.Millisecond)

	c.Input("ma")
	c.Input("")
	assert.Equal(t, Idle, c.State())
	require.Equal(t, 2, rec.count())
	assert.Equal(t, 0, c.Results().Len())
	assert.Equal(t, -1, c.Cursor())

	clock.Advance(debounce)
	assert.Equal(t, []string{"vec"}, searcher.issued())
}

func TestClearingInputDiscardsInFlightQuery(t *testing.T) {
	c, clock, searcher, rec := newController(t)
	slow := searcher.hold("vec")

	c.Input("vec")
	clock.Advance(debounce)
	require.Eventually(t, func() bool { return c.State() == Pending }, time.Second, time.Millisecond)
	c.Input("")
	close(slow)

	require.Eventually(t, func() bool { return len(searcher.issued()) == 1 }, time.Second, time.Millisecond)
	c.Close()
	assert.Equal(t, []uint64{2}, rec.generations())
	assert.Equal(t, Idle, c.State())
}

func TestNavigation(t *testing.T) {
	c, clock, _, rec := newController(t)
	assert.Equal(t, -1, c.Next())
	assert.Equal(t, -1, c.Prev())
	_, err := c.SelectCurrent()
	assert.ErrorIs(t, err, apperrors.ErrNoSelection)

	c.Input("vec")
	clock.Advance(debounce)
	require.Eventually(t, settled(c), time.Second, time.Millisecond)

	assert.Equal(t, 1, c.Next())
	assert.Equal(t, 1, c.Next())
	assert.Equal(t, 0, c.Prev())
	assert.Equal(t, 0, c.Prev())
	assert.Equal(t, 1, c.Next())

	entry, err := c.SelectCurrent()
	require.NoError(t, err)
	assert.Equal(t, "vectoriterator", entry.Key)
	assert.Equal(t, Idle, c.State())
	require.Len(t, rec.navigated, 1)
	assert.Equal(t, "loc2", rec.navigated[0].Targets[0].LocationURL)

	_, err = c.Select(5)
	assert.ErrorIs(t, err, apperrors.ErrNoSelection)
	entry, err = c.Select(0)
	require.NoError(t, err)
	assert.Equal(t, "vector", entry.Key)
	assert.Equal(t, 0, c.Cursor())
}

func TestCloseStopsPublishing(t *testing.T) {
	c, clock, searcher, rec := newController(t)
	c.Input("vec")
	c.Close()
	clock.Advance(debounce)
	c.Input("map")
	clock.Advance(debounce)

	assert.Empty(t, searcher.issued())
	assert.Equal(t, 0, rec.count())
}

func TestRealClockDebounce(t *testing.T) {
	searcher := newFakeSearcher()
	rec := &recorder{}
	c := New(searcher, rec, Options{Debounce: 20 * time.Millisecond})
	defer c.Close()

	c.Input("v")
	c.Input("ve")
	c.Input("vec")
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"vec"}, searcher.issued())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "State(9)", State(9).String())
}
