package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shardpack"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to config file (needed for -store)")
	in := flag.String("in", "docs/html/search", "Doxygen search directory or base URL")
	manifest := flag.String("manifest", "searchdata.js", "manifest file name inside -in")
	out := flag.String("out", "", "directory to write segments and manifest.yaml into")
	store := flag.Bool("store", false, "store the converted build in postgres")
	build := flag.String("build", "", "build name for -store (defaults to index.build)")
	concurrency := flag.Int("concurrency", 0, "parallel shard conversions (default GOMAXPROCS)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, "text")

	if *out == "" && !*store {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -out, -store or both")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var src index.Source = index.NewDirSource(*in, *manifest)
	if u := *in; strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		src, err = index.NewHTTPSource(index.HTTPSourceConfig{BaseURL: u, Manifest: *manifest, RetryMax: cfg.Index.RetryMax})
		if err != nil {
			slog.Error("invalid source", "error", err)
			os.Exit(1)
		}
	}

	start := time.Now()
	res, err := shardpack.Convert(ctx, src, *manifest, shardpack.Options{Concurrency: *concurrency})
	if err != nil {
		slog.Error("conversion failed", "error", err)
		os.Exit(1)
	}

	if *out != "" {
		if err := res.WriteDir(*out); err != nil {
			slog.Error("writing output failed", "error", err)
			os.Exit(1)
		}
		slog.Info("segments written", "dir", *out, "files", len(res.Payloads))
	}

	if *store {
		name := *build
		if name == "" {
			name = cfg.Index.Build
		}
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("migration failed", "error", err)
			os.Exit(1)
		}
		if err := res.Store(ctx, pg, name); err != nil {
			slog.Error("storing build failed", "build", name, "error", err)
			os.Exit(1)
		}
		slog.Info("build stored", "build", name, "payloads", len(res.Payloads))
	}

	slog.Info("shardpack done",
		"entries", res.Entries,
		"skipped", len(res.Skipped),
		"took", time.Since(start).Round(time.Millisecond),
	)
}
