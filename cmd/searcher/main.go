package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/pkg/sqlite"
)

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
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"corpus_dir", cfg.Corpus.Dir,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		metrics.StartServer(ctx, cfg.Metrics.Port)
	}

	st, err := store.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open index store", "error", err)
		os.Exit(1)
	}
	src := corpus.NewDirSource(cfg.Corpus.Dir)
	engine := indexer.NewEngine(st, src, indexer.WithMetrics(m))
	defer engine.Close()

	c, err := corpus.Load(ctx, src)
	if err != nil {
		slog.Error("failed to load corpus", "error", err)
		os.Exit(1)
	}
	outcome, err := engine.Build(ctx, c)
	if err != nil {
		slog.Error("failed to build index", "error", err)
		os.Exit(1)
	}

	var (
		queryCache  *cache.QueryCache
		redisClient *pkgredis.Client
	)
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			breaker := resilience.NewBreaker("redis", resilience.BreakerConfig{FailureThreshold: 5, Cooldown: 30 * time.Second})
			m.GaugeFunc("cache", "breaker_state", "Redis circuit breaker state (0 closed, 1 open, 2 half-open).",
				func() float64 { return float64(breaker.State()) })
			queryCache = cache.New(cache.Guarded(redisClient, breaker, 250*time.Millisecond), cfg.Redis.CacheTTL, m)
			queryCache.SetComputeTimeout(cfg.Server.RequestTimeout)
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var reloader *consumer.Reloader
	if queryCache != nil {
		reloader = consumer.NewReloader(engine, src, queryCache)
	} else {
		reloader = consumer.NewReloader(engine, src, nil)
	}

	aggregator := analytics.NewAggregator()
	var publisher analytics.Publisher = aggregator
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		publisher = producer

		analyticsConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(aggregator))
		go func() {
			if err := analyticsConsumer.Start(ctx); err != nil {
				slog.Error("analytics consumer error", "error", err)
			}
		}()

		// every replica must see index.complete, so each gets its own group
		reloadGroup := cfg.Kafka.ConsumerGroup + "-reload"
		if host, err := os.Hostname(); err == nil {
			reloadGroup = cfg.Kafka.ConsumerGroup + "-" + host
		}
		reloadConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, consumer.HandleIndexComplete(reloader),
			kafka.WithGroupID(reloadGroup))
		go func() {
			if err := reloadConsumer.Start(ctx); err != nil {
				slog.Error("index.complete consumer error", "error", err)
			}
		}()
		slog.Info("kafka enabled",
			"brokers", cfg.Kafka.Brokers,
			"analytics_topic", cfg.Kafka.Topics.AnalyticsEvents,
			"index_topic", cfg.Kafka.Topics.IndexComplete,
		)
	}
	collector := analytics.NewCollector(publisher, cfg.Analytics)
	collector.Start(ctx)
	defer collector.Close()
	m.GaugeFunc("analytics", "dropped_events", "Analytics events dropped because the collector buffer was full.",
		func() float64 { return float64(collector.Dropped()) })
	collector.Track(outcome.BuildID, analytics.BuildEvent(outcome))

	var snapshots *analytics.SnapshotStore
	if cfg.Analytics.SnapshotPath != "" {
		db, err := sqlite.New(ctx, config.SQLiteConfig{Path: cfg.Analytics.SnapshotPath})
		if err != nil {
			slog.Warn("analytics snapshots disabled", "error", err)
		} else {
			defer db.Close()
			if snapshots, err = analytics.NewSnapshotStore(ctx, db); err != nil {
				slog.Warn("analytics snapshots disabled", "error", err)
				snapshots = nil
			} else {
				snapshots.StartPeriodicSave(ctx, aggregator, cfg.Analytics.SnapshotInterval)
			}
		}
	}

	checker := health.NewChecker()
	checker.Register("index_store", health.PingCheck(engine.Ping, health.StatusDown))
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		stats := engine.Stats()
		if stats.DocumentCount == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "index is empty"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d documents", stats.DocumentCount)}
	})
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient.Ping, health.StatusDegraded))
	}

	scorer := ranker.NewScorer(engine, ranker.Params{K1: cfg.Search.K1, B: cfg.Search.B})
	exec := executor.New(scorer, engine, cfg.Search, executor.WithMetrics(m))
	opts := []handler.Option{
		handler.WithCollector(collector),
		handler.WithReloader(reloader),
		handler.WithMetrics(m),
	}
	if queryCache != nil {
		opts = append(opts, handler.WithCache(queryCache))
	}
	h := handler.New(exec, engine, opts...)
	analyticsH := analytics.NewHandler(aggregator, snapshots)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", analyticsH.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		limiter.StartSweeper(ctx, 5*time.Minute)
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.CORS(cfg.Server.CORSOrigins)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
