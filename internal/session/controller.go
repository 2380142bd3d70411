// Package session holds the single "current search" of an interactive
// viewer: it debounces keystrokes, tags each issued query with a generation,
// publishes only the newest result set and moves a cursor over it.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/query"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

// State of the controller.
type State int

const (
	Idle State = iota
	Pending
	Settled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Settled:
		return "settled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Searcher runs one query. *query.Engine satisfies it.
type Searcher interface {
	Search(ctx context.Context, text string, generation uint64) *query.ResultSet
}

// Renderer receives published result sets and selections. Its methods are
// called with the controller lock held, in generation order, and must not
// block or call back into the controller.
type Renderer interface {
	Publish(rs *query.ResultSet)
	Navigate(entry symbol.Entry)
}

// Options tunes a Controller.
type Options struct {
	Debounce time.Duration
	Clock    Clock
	Metrics  *metrics.Metrics
}

// Controller is safe for concurrent use.
type Controller struct {
	searcher Searcher
	renderer Renderer
	debounce time.Duration
	clock    Clock
	metrics  *metrics.Metrics
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	state      State
	lastText   string
	generation uint64
	timer      Timer
	timerToken uint64
	results    *query.ResultSet
	cursor     int
	closed     bool
}

func New(searcher Searcher, renderer Renderer, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Debounce < 0 {
		opts.Debounce = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		searcher: searcher,
		renderer: renderer,
		debounce: opts.Debounce,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		logger:   slog.Default().With("component", "session"),
		ctx:      ctx,
		cancel:   cancel,
		cursor:   -1,
	}
}

// Input handles the current contents of the search box. Text that
// normalizes to the last processed text is ignored. Empty text publishes an
// empty result set at once; anything else restarts the debounce timer and,
// while a query is in flight, moves to a new generation so its results are
// dropped.
func (c *Controller) Input(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	norm := symbol.Normalize(text)
	if norm == c.lastText {
		return
	}
	c.lastText = norm
	c.stopTimer()

	if norm == "" {
		c.generation++
		c.publish(query.Empty(text, c.generation))
		c.state = Idle
		return
	}

	if c.state == Pending {
		// The in-flight query answers text the user has already changed.
		c.generation++
	}
	c.timerToken++
	token := c.timerToken
	c.timer = c.clock.AfterFunc(c.debounce, func() { c.fire(token, text) })
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerToken++
}

// fire issues the debounced query unless newer input replaced its timer.
func (c *Controller) fire(token uint64, text string) {
	c.mu.Lock()
	if c.closed || token != c.timerToken {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.generation++
	gen := c.generation
	c.state = Pending
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		rs := c.searcher.Search(c.ctx, text, gen)
		c.deliver(rs)
	}()
}

// deliver publishes rs if no newer query was issued since it started.
func (c *Controller) deliver(rs *query.ResultSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || rs == nil || rs.Generation != c.generation {
		if c.metrics != nil {
			c.metrics.StaleResultsTotal.Inc()
		}
		if rs != nil {
			c.logger.Debug("discarding stale results", "generation", rs.Generation, "current", c.generation)
		}
		return
	}
	c.publish(rs)
	c.state = Settled
}

func (c *Controller) publish(rs *query.ResultSet) {
	c.results = rs
	c.cursor = -1
	if rs.Len() > 0 {
		c.cursor = 0
	}
	c.renderer.Publish(rs)
}

// Next moves the cursor down one row, stopping at the last row. It returns
// the new cursor, or -1 when nothing is published.
func (c *Controller) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.results.Len() == 0 {
		return -1
	}
	if c.cursor < c.results.Len()-1 {
		c.cursor++
	}
	return c.cursor
}

// Prev moves the cursor up one row, stopping at the first row.
func (c *Controller) Prev() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.results.Len() == 0 {
		return -1
	}
	if c.cursor > 0 {
		c.cursor--
	}
	return c.cursor
}

// Select hands row i of the published result set to the renderer and
// returns the controller to Idle.
func (c *Controller) Select(i int) (symbol.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectLocked(i)
}

// SelectCurrent selects the row under the cursor.
func (c *Controller) SelectCurrent() (symbol.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectLocked(c.cursor)
}

func (c *Controller) selectLocked(i int) (symbol.Entry, error) {
	if i < 0 || i >= c.results.Len() {
		return symbol.Entry{}, fmt.Errorf("%w: row %d of %d", apperrors.ErrNoSelection, i, c.results.Len())
	}
	entry := c.results.Matches[i].Entry
	c.cursor = i
	c.state = Idle
	c.renderer.Navigate(entry)
	return entry, nil
}

func (c *Controller) Cursor() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Generation is the generation of the most recently issued query.
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Results is the last published result set, or nil.
func (c *Controller) Results() *query.ResultSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results
}

// Close stops the debounce timer, cancels running searches and waits for
// them to return. Nothing is published after Close.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimer()
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}
