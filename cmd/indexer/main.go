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

	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/metrics"
)

// The indexer builds (or reuses) the persisted index for the configured
// corpus, announces it on index.complete and exits.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer", "store", cfg.Store.Driver, "corpus_dir", cfg.Corpus.Dir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("indexer failed", "error", err)
		os.Exit(1)
	}
	slog.Info("indexer finished")
}

func run(ctx context.Context, cfg *config.Config) error {
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	src := corpus.NewDirSource(cfg.Corpus.Dir)
	engine := indexer.NewEngine(st, src, indexer.WithMetrics(metrics.New(nil)))
	defer engine.Close()

	c, err := corpus.Load(ctx, src)
	if err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}
	outcome, err := engine.Build(ctx, c)
	if err != nil {
		return err
	}

	summary, err := engine.Summary(ctx)
	if err != nil {
		slog.Warn("reading store summary failed", "error", err)
	} else {
		slog.Info("index summary",
			"driver", summary.Driver,
			"documents", summary.Documents,
			"terms", summary.Terms,
			"postings", summary.Postings,
		)
	}

	if !cfg.Kafka.Enabled {
		return nil
	}
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
	defer producer.Close()

	event := analytics.BuildEvent(outcome)
	pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := producer.Publish(pubCtx, kafka.Event{Key: outcome.BuildID, Value: event}); err != nil {
		return fmt.Errorf("announcing build %s: %w", outcome.BuildID, err)
	}
	slog.Info("index.complete published", "build_id", outcome.BuildID, "topic", cfg.Kafka.Topics.IndexComplete)

	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()
	if err := analyticsProducer.Publish(pubCtx, kafka.Event{Key: outcome.BuildID, Value: event}); err != nil {
		slog.Warn("publishing build analytics failed", "build_id", outcome.BuildID, "error", err)
	}
	return nil
}
