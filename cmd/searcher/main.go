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

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/auth"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/auth/apikey"
	authmw "github.com/Adithya-Monish-Kumar-K/repository-search/internal/auth/middleware"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/notify"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/txn"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/redis"
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
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting search service", "port", cfg.Server.Port, "data_dir", cfg.Indexer.DataDir)
	m := metrics.New()
	if cfg.Metrics.Enabled {
		if err := metrics.StartServer(ctx, cfg.Metrics.Port, "searcher"); err != nil {
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

	// the indexer service owns the data directory
	indexCfg := cfg.Indexer
	indexCfg.ReadOnly = true
	router, err := store.NewRouter(indexCfg)
	if err != nil {
		return fmt.Errorf("opening stores: %w", err)
	}
	defer router.Close()

	checker := health.NewChecker(0)
	checker.Register("index", func(context.Context) health.ComponentHealth {
		n := len(router.Stores())
		if n == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "no stores indexed yet"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d stores open", n)}
	})

	var (
		perms executor.PermissionEvaluator
		keys  apikey.Store = apikey.NewMemoryStore()
	)
	if cfg.Postgres.Enabled {
		client, err := postgres.New(cfg.Postgres)
		if err != nil {
			return err
		}
		defer client.Close()
		keyStore := apikey.NewPostgresStore(client)
		if err := keyStore.Migrate(ctx); err != nil {
			return err
		}
		perms, keys = auth.NewReadEvaluator(repository.NewPostgres(client)), keyStore
		checker.Register("postgres", health.FromError(client.Ping, false))
	} else {
		slog.Warn("postgres disabled, permission checks allow every node")
	}

	exec := executor.New(executor.Options{
		Dictionary:  dict,
		Analyzers:   analyzers,
		Router:      router,
		Permissions: perms,
		Search:      cfg.Search,
		Metrics:     m,
	})

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis, m)
			checker.Register("redis", health.FromError(redisClient.Ping, true))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	invalidate := func(ctx context.Context, s repository.StoreRef) {
		if queryCache == nil {
			return
		}
		if _, err := queryCache.InvalidateStore(ctx, s); err != nil {
			slog.Warn("cache invalidation failed", "store", s, "error", err)
		}
	}
	router.StartRefresh(ctx, cfg.Indexer.RefreshInterval, func() {
		for _, s := range router.Stores() {
			invalidate(ctx, s)
		}
	})
	if cfg.Kafka.Enabled {
		// every searcher instance needs every event
		group := cfg.Kafka
		host, _ := os.Hostname()
		group.ConsumerGroup = fmt.Sprintf("%s-searcher-%s", cfg.Kafka.ConsumerGroup, host)
		indexEvents := kafka.NewConsumer(group, cfg.Kafka.Topics.IndexEvents,
			notify.HandleEvents(func(ctx context.Context, ev notify.IndexEvent) error {
				if ev.Error != "" {
					slog.Warn("indexing failed upstream", "store", ev.Store, "error", ev.Error)
				}
				router.RefreshAll()
				invalidate(ctx, ev.Store)
				return nil
			}), m)
		go func() {
			if err := indexEvents.Start(ctx); err != nil {
				slog.Error("index event consumer error", "error", err)
			}
		}()
		slog.Info("consuming index events", "topic", cfg.Kafka.Topics.IndexEvents, "group", group.ConsumerGroup)
	}

	mux := http.NewServeMux()
	handler.New(exec, queryCache, txn.NewManager(router, txn.Services{})).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = middleware.Timeout(cfg.Search.TimeoutPerQuery)(mux)
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

	return serve(ctx, cfg.Server, chain, "search")
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
