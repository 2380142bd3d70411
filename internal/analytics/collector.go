package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// Publisher writes a batch of events. *kafka.Producer satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Recorder consumes events in process. *Aggregator satisfies it.
type Recorder interface {
	Record(event SearchEvent)
}

// CollectorConfig tunes batching.
type CollectorConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Collector buffers events and flushes them to a Publisher when a batch
// fills or the flush interval passes. Track never blocks: events are
// dropped when the buffer is full. Recorders see every event synchronously.
type Collector struct {
	publisher Publisher
	recorders []Recorder
	cfg       CollectorConfig
	eventCh   chan SearchEvent
	logger    *slog.Logger
	done      chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewCollector creates a Collector. publisher may be nil when Kafka is
// disabled.
func NewCollector(publisher Publisher, cfg CollectorConfig, recorders ...Recorder) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	return &Collector{
		publisher: publisher,
		recorders: recorders,
		cfg:       cfg,
		eventCh:   make(chan SearchEvent, cfg.BufferSize),
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

// Start launches the flush loop. It runs until Close is called or ctx ends,
// flushing what is buffered before returning.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.cfg.FlushInterval)
		defer ticker.Stop()
		batch := make([]kafka.Event, 0, c.cfg.BatchSize)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					c.flush(batch)
					return
				}
				batch = append(batch, toKafka(event))
				if len(batch) >= c.cfg.BatchSize {
					c.flush(batch)
					batch = batch[:0]
				}
			case <-ticker.C:
				c.flush(batch)
				batch = batch[:0]
			case <-ctx.Done():
				batch = c.drain(batch)
				c.flush(batch)
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", c.cfg.BufferSize,
		"batch_size", c.cfg.BatchSize,
		"flush_interval", c.cfg.FlushInterval,
	)
}

// Track records event. It is safe to call after Close; the event is then
// only seen by recorders.
func (c *Collector) Track(event SearchEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	for _, r := range c.recorders {
		r.Record(event)
	}
	if c.publisher == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the final flush.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.eventCh)
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) drain(batch []kafka.Event) []kafka.Event {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return batch
			}
			batch = append(batch, toKafka(event))
		default:
			return batch
		}
	}
}

func (c *Collector) flush(batch []kafka.Event) {
	if len(batch) == 0 || c.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
		return
	}
	c.logger.Debug("batch flushed", "events", len(batch))
}

func toKafka(event SearchEvent) kafka.Event {
	return kafka.Event{
		Key:     event.Normalized,
		Value:   event,
		Headers: map[string]string{"type": string(event.Type), "origin": event.Origin},
	}
}
