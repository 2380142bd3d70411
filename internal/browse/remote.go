package browse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/query"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// Remote searches through a running searcher service instead of a local
// index.
type Remote struct {
	base   *url.URL
	client *http.Client
	retry  resilience.RetryConfig
	logger *slog.Logger
}

func NewRemote(baseURL string, timeout time.Duration) (*Remote, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing searcher url: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Remote{
		base:   u,
		client: &http.Client{Timeout: timeout},
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Multiplier:   2,
		},
		logger: slog.Default().With("component", "remote-searcher"),
	}, nil
}

// Search never fails. When the service cannot be reached the result is an
// empty partial set.
func (r *Remote) Search(ctx context.Context, text string, generation uint64) *query.ResultSet {
	params := url.Values{"q": {text}, "gen": {strconv.FormatUint(generation, 10)}}
	target := r.base.JoinPath("/api/v1/search")
	target.RawQuery = params.Encode()

	var rs query.ResultSet
	err := resilience.Retry(ctx, "remote search", r.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return resilience.Permanent(err)
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("searcher returned %s", resp.Status)
			if resp.StatusCode < 500 {
				return resilience.Permanent(err)
			}
			return err
		}
		rs = query.ResultSet{}
		return json.NewDecoder(resp.Body).Decode(&rs)
	})
	if err != nil {
		r.logger.Warn("remote search failed", "query", text, "error", err)
		out := query.Empty(text, generation)
		out.Partial = true
		return out
	}
	rs.Generation = generation
	if rs.Matches == nil {
		rs.Matches = []query.Match{}
	}
	return &rs
}

// ReportSelection tells the service which entry was opened for text.
func (r *Remote) ReportSelection(ctx context.Context, text string, entry symbol.Entry) error {
	body, err := json.Marshal(map[string]any{"query": text, "entry": entry})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base.JoinPath("/api/v1/select").String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("reporting selection: %s", resp.Status)
	}
	return nil
}
