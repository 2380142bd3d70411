// Package shardpack converts a documentation build into checksummed segment
// shards and a YAML manifest that any index source can serve.
package shardpack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard/codec"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

// ManifestName is the file name of the manifest Convert produces.
const ManifestName = "manifest.yaml"

type Options struct {
	Concurrency int
}

// Result is a converted build.
type Result struct {
	Manifest *index.Manifest
	Payloads []postgres.Payload
	// Skipped lists shards named by the source manifest that could not be
	// fetched. They are left out of the new manifest.
	Skipped []shard.ID
	Entries int
}

// Convert reads every shard the source manifest names and re-encodes it as
// a segment. A shard the source does not have is skipped; a shard that is
// present but cannot be decoded fails the conversion.
func Convert(ctx context.Context, src index.Source, manifestName string, opts Options) (*Result, error) {
	m, err := index.FetchManifest(ctx, manifestName, src)
	if err != nil {
		return nil, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	log := logger.WithComponent("shardpack")

	routes := m.Routes()
	segments := make([][]byte, len(routes))
	counts := make([]int, len(routes))
	missing := make([]bool, len(routes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, r := range routes {
		g.Go(func() error {
			data, err := src.Fetch(gctx, r.ID, m.Format())
			if errors.Is(err, apperrors.ErrShardUnavailable) {
				log.Warn("shard missing from source, skipping", "shard", r.ID)
				missing[i] = true
				return nil
			}
			if err != nil {
				return fmt.Errorf("fetching %s: %w", r.ID, err)
			}
			sh, err := codec.Decode(m.Format(), r.ID, r.Kind, data)
			if err != nil {
				return err
			}
			entries := make([]symbol.Entry, sh.Len())
			for j := range entries {
				entries[j] = sh.Entry(j)
			}
			var buf bytes.Buffer
			if err := codec.EncodeSegment(&buf, entries); err != nil {
				return fmt.Errorf("encoding %s: %w", r.ID, err)
			}
			segments[i] = buf.Bytes()
			counts[i] = len(entries)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{}
	var kept []index.Route
	for i, r := range routes {
		if missing[i] {
			res.Skipped = append(res.Skipped, r.ID)
			continue
		}
		kept = append(kept, r)
		res.Entries += counts[i]
		res.Payloads = append(res.Payloads, postgres.Payload{
			Name:   r.ID.String() + codec.FormatSegment.Extension(),
			Format: string(codec.FormatSegment),
			Data:   segments[i],
		})
	}
	res.Manifest, err = index.NewManifest(codec.FormatSegment, kept)
	if err != nil {
		return nil, err
	}
	manifest, err := yaml.Marshal(res.Manifest)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	res.Payloads = append(res.Payloads, postgres.Payload{Name: ManifestName, Format: "manifest", Data: manifest})

	log.Info("build converted",
		"shards", len(kept),
		"skipped", len(res.Skipped),
		"entries", res.Entries,
	)
	return res, nil
}

// WriteDir writes every payload into dir. Each file is written to a
// temporary name and renamed so readers never see a partial shard.
func (r *Result) WriteDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	for _, p := range r.Payloads {
		path := filepath.Join(dir, p.Name)
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, p.Data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", p.Name, err)
		}
		if err := os.Rename(tmp, path); err != nil {
			return fmt.Errorf("renaming %s: %w", p.Name, err)
		}
	}
	return nil
}

// PayloadWriter is the subset of the postgres client Store needs.
type PayloadWriter interface {
	StorePayloads(ctx context.Context, build string, payloads []postgres.Payload) error
}

// Store replaces the stored payloads of build with r's.
func (r *Result) Store(ctx context.Context, w PayloadWriter, build string) error {
	return w.StorePayloads(ctx, build, r.Payloads)
}
