package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/browse"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/query"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/session"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	remoteURL := flag.String("remote", "", "search through a running searcher at this URL instead of a local index")
	root := flag.String("root", "", "override index.root")
	debounce := flag.Duration("debounce", 0, "override session.debounce")
	keepOpen := flag.Bool("keep-open", false, "keep running after a result is opened")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *root != "" {
		cfg.Index.Root = *root
	}
	if *debounce > 0 {
		cfg.Session.Debounce = *debounce
	}

	logFile := cfg.Logging.File
	if logFile == "" {
		logFile = "symbrowse.log"
	}
	closer := logger.SetupFile(cfg.Logging.Level, cfg.Logging.Format, logger.FileOptions{
		Path:       logFile,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	var searcher session.Searcher
	var onOpen func(text string, entry symbol.Entry)

	if *remoteURL != "" {
		remote, err := browse.NewRemote(*remoteURL, cfg.Index.FetchTimeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		searcher = remote
		onOpen = func(text string, entry symbol.Entry) {
			go func() {
				reportCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				defer cancel()
				if err := remote.ReportSelection(reportCtx, text, entry); err != nil {
					slog.Warn("failed to report selection", "error", err)
				}
			}()
		}
		slog.Info("browsing remote searcher", "url", *remoteURL)
	} else {
		stack, err := index.Setup(ctx, cfg, m)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open index: %v\n", err)
			os.Exit(1)
		}
		defer stack.Close()
		go func() {
			if err := stack.Watch(ctx, cfg.Session.Debounce*4); err != nil {
				slog.Error("build watcher error", "error", err)
			}
		}()
		searcher = query.New(stack.Index, query.Options{
			MinResults: cfg.Search.MinResults,
			MaxResults: cfg.Search.MaxResults,
			Metrics:    m,
		})

		var publisher analytics.Publisher
		if cfg.Kafka.Enabled {
			producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.SearchEvents)
			defer producer.Close()
			publisher = producer
		}
		collector := analytics.NewCollector(publisher, analytics.CollectorConfig{})
		collector.Start(ctx)
		defer collector.Close()
		onOpen = func(text string, entry symbol.Entry) {
			event := analytics.NewSelectEvent(text, entry, "tui")
			event.Build = cfg.Index.Build
			collector.Track(event)
		}
	}

	bridge := &browse.Bridge{}
	ctrl := session.New(searcher, bridge, session.Options{Debounce: cfg.Session.Debounce, Metrics: m})
	defer ctrl.Close()

	model := browse.New(ctrl, browse.Options{QuitOnOpen: !*keepOpen, OnOpen: onOpen})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	bridge.Attach(program.Send)

	final, err := program.Run()
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "symbrowse: %v\n", err)
		os.Exit(1)
	}
	if fm, ok := final.(browse.Model); ok {
		if entry, ok := fm.Opened(); ok && len(entry.Targets) > 0 {
			for _, t := range entry.Targets {
				fmt.Printf("%s\t%s\n", t.LocationURL, t.ContainerLabel)
			}
		}
	}
}
