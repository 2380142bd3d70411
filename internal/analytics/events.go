// Package analytics records what users search for and pick: a collector
// batches events to Kafka, and an aggregator turns the event stream into
// query statistics served over HTTP.
package analytics

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/query"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
)

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventPartial    EventType = "partial"
	EventSelect     EventType = "select"
)

// SearchEvent describes one published result set or one selection.
type SearchEvent struct {
	Type         EventType `json:"type"`
	Origin       string    `json:"origin"`
	Build        string    `json:"build"`
	Query        string    `json:"query"`
	Normalized   string    `json:"normalized"`
	Generation   uint64    `json:"generation"`
	Returned     int       `json:"returned"`
	FailedShards []string  `json:"failed_shards,omitempty"`
	SelectedKey  string    `json:"selected_key,omitempty"`
	LocationURL  string    `json:"location_url,omitempty"`
	LatencyMs    int64     `json:"latency_ms"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id,omitempty"`
}

// NewSearchEvent describes a result set as an event.
func NewSearchEvent(rs *query.ResultSet, origin string, latency time.Duration) SearchEvent {
	event := SearchEvent{
		Type:       EventSearch,
		Origin:     origin,
		Query:      rs.Query,
		Normalized: rs.Normalized,
		Generation: rs.Generation,
		Returned:   rs.Len(),
		LatencyMs:  latency.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
	switch {
	case rs.Partial:
		event.Type = EventPartial
	case rs.Len() == 0:
		event.Type = EventZeroResult
	}
	for _, id := range rs.FailedShards {
		event.FailedShards = append(event.FailedShards, id.String())
	}
	return event
}

// NewSelectEvent describes the choice of entry after searching for text.
func NewSelectEvent(text string, entry symbol.Entry, origin string) SearchEvent {
	event := SearchEvent{
		Type:        EventSelect,
		Origin:      origin,
		Query:       text,
		Normalized:  symbol.Normalize(text),
		SelectedKey: entry.Key,
		Timestamp:   time.Now().UTC(),
	}
	if len(entry.Targets) > 0 {
		event.LocationURL = entry.Targets[0].LocationURL
	}
	return event
}
