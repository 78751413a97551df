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

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/auth/apikey"
	authmw "github.com/Adithya-Monish-Kumar-K/repository-search/internal/auth/middleware"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/admin"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/notify"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/txn"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("indexer service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("indexer service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting indexer service", "port", cfg.Server.Port, "data_dir", cfg.Indexer.DataDir)
	m := metrics.New()
	if cfg.Metrics.Enabled {
		if err := metrics.StartServer(ctx, cfg.Metrics.Port, "indexer"); err != nil {
			return err
		}
	}

	dict, err := dictionary.LoadFile(cfg.Dictionary.ModelPath)
	if err != nil {
		return err
	}
	defaultLocale, err := locale.Parse(cfg.Search.DefaultLocale)
	if err != nil {
		return fmt.Errorf("search.defaultLocale: %w", err)
	}
	analyzers, err := tokenizer.NewRegistry(tokenizer.Options{DefaultLocale: defaultLocale})
	if err != nil {
		return err
	}
	mode, err := txn.ParseMode(cfg.Indexer.DefaultIndexMode)
	if err != nil {
		return fmt.Errorf("indexer.defaultIndexMode: %w", err)
	}

	checker := health.NewChecker(0)
	var (
		nodes   repository.NodeService
		changes repository.ChangeSource
		status  consumer.StatusRecorder
		keys    apikey.Store = apikey.NewMemoryStore()
	)
	if cfg.Postgres.Enabled {
		client, err := postgres.New(cfg.Postgres)
		if err != nil {
			return err
		}
		defer client.Close()
		repo := repository.NewPostgres(client)
		statusStore := consumer.NewPostgresStatus(client)
		keyStore := apikey.NewPostgresStore(client)
		for _, migrate := range []func(context.Context) error{repo.Migrate, statusStore.Migrate, keyStore.Migrate} {
			if err := migrate(ctx); err != nil {
				return err
			}
		}
		nodes, changes, status, keys = repo, repo, statusStore, keyStore
		checker.Register("postgres", health.FromError(client.Ping, false))
		slog.Info("postgres repository connected", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	} else {
		repo := repository.NewMemory()
		nodes, changes = repo, repo
		slog.Warn("postgres disabled, indexing from an empty in-memory repository")
	}

	router, err := store.NewRouter(cfg.Indexer)
	if err != nil {
		return fmt.Errorf("creating store router: %w", err)
	}
	defer router.Close()
	router.StartCompaction(ctx)
	checker.Register("index", func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d stores open", len(router.Stores()))}
	})

	mgr := txn.NewManager(router, txn.Services{
		Nodes:   nodes,
		Changes: changes,
		Builder: document.NewBuilder(dict, analyzers, nodes, repository.NewFileContent(cfg.Indexer.ContentRoot)),
		Metrics: m,
	})
	proc := consumer.NewProcessor(mgr, status, mode)

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexEvents)
		defer producer.Close()
		notifier := notify.New(producer, 1024)
		mgr.OnIndexed(notifier.Callback())
		go notifier.Run(ctx)

		nodeEvents := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.NodeEvents, consumer.HandleMessage(proc), m)
		if topic := cfg.Kafka.Topics.DeadLetter; topic != "" {
			deadLetter := kafka.NewProducer(cfg.Kafka, topic)
			defer deadLetter.Close()
			nodeEvents.WithDeadLetter(deadLetter)
		}
		go func() {
			if err := nodeEvents.Start(ctx); err != nil {
				slog.Error("node event consumer error", "error", err)
			}
		}()
		slog.Info("consuming node events",
			"topic", cfg.Kafka.Topics.NodeEvents,
			"group", cfg.Kafka.ConsumerGroup,
			"dead_letter", cfg.Kafka.Topics.DeadLetter,
			"mode", mode.String(),
		)
	}
	go mgr.Run(ctx)

	mux := http.NewServeMux()
	admin.New(proc, mgr).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = middleware.Timeout(cfg.Server.RequestTimeout)(mux)
	if cfg.Auth.Enabled {
		limiter := ratelimit.New(cfg.Auth.RateLimitWindow)
		go limiter.Run(ctx)
		chain = authmw.RateLimit(limiter)(chain)
		chain = authmw.Authenticate(apikey.NewValidator(keys))(chain)
	}
	chain = middleware.CORS(cfg.Server.CORSOrigins)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = tracing.Middleware(cfg.Tracing)(chain)
	chain = middleware.RequestID(chain)

	return serve(ctx, cfg.Server, chain, "indexer")
}

func serve(ctx context.Context, cfg config.ServerConfig, h http.Handler, name string) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info(name+" service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}
