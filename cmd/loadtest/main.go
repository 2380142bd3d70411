// Command loadtest drives the search API the way interactive clients do:
// simulated users type symbol names one keystroke at a time and each
// settled prefix becomes a search with a rising generation number.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var defaultSymbols = []string{
	"GenericValue",
	"GenericDocument",
	"MemoryPoolAllocator",
	"RAPIDJSON_ASSERT",
	"operator<<",
	"vector",
	"VectorIterator",
	"Realloc",
	"ParseStream",
	"~GenericValue",
	"StringBuffer",
	"Writer::Key",
}

type options struct {
	baseURL   string
	users     int
	duration  time.Duration
	keystroke time.Duration
	debounce  time.Duration
	limit     int
	symbols   []string
}

// sample is one completed search. depth is the typed prefix length in
// runes: short prefixes touch the most shards and dominate cold latency.
type sample struct {
	depth   int
	latency time.Duration
	status  int
	partial bool
	empty   bool
	failed  bool
}

type recorder struct {
	mu      sync.Mutex
	samples []sample
}

func (r *recorder) add(s sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.samples)
}

func main() {
	var opts options
	var symbols string
	flag.StringVar(&opts.baseURL, "url", "http://localhost:8080", "base URL of the search service")
	flag.IntVar(&opts.users, "concurrency", 10, "number of simulated users")
	flag.DurationVar(&opts.duration, "duration", 30*time.Second, "test duration")
	flag.DurationVar(&opts.keystroke, "keystroke", 80*time.Millisecond, "delay between keystrokes per user (0 = as fast as possible)")
	flag.DurationVar(&opts.debounce, "debounce", 0, "client debounce; keystrokes faster than this only search the final prefix")
	flag.IntVar(&opts.limit, "limit", 20, "rows requested per search")
	flag.StringVar(&symbols, "symbols", "", "comma-separated symbol names to type (default built-in list)")
	flag.Parse()

	opts.symbols = defaultSymbols
	if symbols != "" {
		opts.symbols = strings.Split(symbols, ",")
	}

	fmt.Printf("target %s, %d users for %s, keystroke %s, debounce %s, %d symbols\n",
		opts.baseURL, opts.users, opts.duration, opts.keystroke, opts.debounce, len(opts.symbols))

	rec := run(opts)
	if !report(rec.snapshot(), opts.duration) {
		fmt.Fprintln(os.Stderr, "no searches completed; is the searcher running?")
		os.Exit(1)
	}
}

func run(opts options) *recorder {
	rec := &recorder{}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.users * 2,
			MaxIdleConnsPerHost: opts.users * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), opts.duration)
	defer cancel()

	var wg sync.WaitGroup
	for u := 0; u < opts.users; u++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			typeSymbols(ctx, client, opts, u, rec)
		}()
	}
	wg.Wait()
	return rec
}

// typeSymbols cycles through the symbol list starting at offset. With a
// debounce longer than the keystroke interval only whole names are sent,
// which is what a debounced session controller would issue.
func typeSymbols(ctx context.Context, client *http.Client, opts options, offset int, rec *recorder) {
	limit := rate.Inf
	if opts.keystroke > 0 {
		limit = rate.Every(opts.keystroke)
	}
	keys := rate.NewLimiter(limit, 1)
	collapse := opts.debounce > 0 && opts.keystroke < opts.debounce

	var gen uint64
	for i := offset; ; i++ {
		name := []rune(opts.symbols[i%len(opts.symbols)])
		for n := 1; n <= len(name); n++ {
			if err := keys.Wait(ctx); err != nil {
				return
			}
			gen++
			if collapse && n < len(name) {
				continue
			}
			s, ok := search(ctx, client, opts, string(name[:n]), gen)
			if !ok {
				return
			}
			rec.add(s)
		}
	}
}

func search(ctx context.Context, client *http.Client, opts options, text string, gen uint64) (sample, bool) {
	params := url.Values{
		"q":     {text},
		"gen":   {strconv.FormatUint(gen, 10)},
		"limit": {strconv.Itoa(opts.limit)},
	}
	s := sample{depth: len([]rune(text))}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.baseURL+"/api/v1/search?"+params.Encode(), nil)
	if err != nil {
		s.failed = true
		return s, true
	}
	start := time.Now()
	resp, err := client.Do(req)
	s.latency = time.Since(start)
	if err != nil {
		s.failed = true
		return s, ctx.Err() == nil
	}
	defer resp.Body.Close()

	s.status = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		s.failed = true
		return s, true
	}
	var body struct {
		Partial bool `json:"partial"`
		Total   int  `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		s.failed = true
		return s, true
	}
	s.partial = body.Partial
	s.empty = body.Total == 0
	return s, true
}

// report prints totals, latency by prefix depth and status codes. It
// returns false when nothing was recorded.
func report(samples []sample, elapsed time.Duration) bool {
	if len(samples) == 0 {
		return false
	}
	var failed, partial, empty int
	codes := map[int]int{}
	byDepth := map[int][]time.Duration{}
	var all []time.Duration
	for _, s := range samples {
		codes[s.status]++
		switch {
		case s.failed:
			failed++
			continue
		case s.partial:
			partial++
		}
		if s.empty {
			empty++
		}
		d := min(s.depth, 4)
		byDepth[d] = append(byDepth[d], s.latency)
		all = append(all, s.latency)
	}

	fmt.Println()
	fmt.Printf("searches   %d (%.1f/s)\n", len(samples), float64(len(samples))/elapsed.Seconds())
	fmt.Printf("failed     %d (%.2f%%)\n", failed, 100*float64(failed)/float64(len(samples)))
	fmt.Printf("partial    %d\n", partial)
	fmt.Printf("no results %d\n", empty)

	fmt.Println()
	fmt.Printf("%-8s %8s %10s %10s %10s %10s\n", "prefix", "count", "p50", "p90", "p99", "max")
	printRow("all", all)
	for d := 1; d <= 4; d++ {
		label := strconv.Itoa(d)
		if d == 4 {
			label = "4+"
		}
		printRow(label, byDepth[d])
	}

	fmt.Println()
	statuses := make([]int, 0, len(codes))
	for code := range codes {
		statuses = append(statuses, code)
	}
	slices.Sort(statuses)
	for _, code := range statuses {
		label := strconv.Itoa(code)
		if code == 0 {
			label = "transport error"
		}
		fmt.Printf("  %s: %d\n", label, codes[code])
	}
	return true
}

func printRow(label string, latencies []time.Duration) {
	if len(latencies) == 0 {
		return
	}
	slices.Sort(latencies)
	fmt.Printf("%-8s %8d %10s %10s %10s %10s\n", label, len(latencies),
		percentile(latencies, 50), percentile(latencies, 90), percentile(latencies, 99),
		latencies[len(latencies)-1])
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx].Round(time.Microsecond)
}
