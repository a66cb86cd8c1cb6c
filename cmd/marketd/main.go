// Package main implements marketd, the NFT marketplace daemon: a
// listing-and-escrow engine over an ERC-721 asset contract, exposed as a REST
// API with a websocket event feed.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/nftbay/marketplace/internal/audit"
	"github.com/nftbay/marketplace/internal/chain/evm"
	"github.com/nftbay/marketplace/internal/config"
	"github.com/nftbay/marketplace/internal/domain/market"
	"github.com/nftbay/marketplace/internal/events"
	"github.com/nftbay/marketplace/internal/httpapi"
	"github.com/nftbay/marketplace/internal/marketplace"
	"github.com/nftbay/marketplace/internal/metrics"
	"github.com/nftbay/marketplace/internal/middleware"
	"github.com/nftbay/marketplace/internal/platform/migrations"
	"github.com/nftbay/marketplace/internal/storage"
	"github.com/nftbay/marketplace/internal/storage/memory"
	"github.com/nftbay/marketplace/internal/storage/postgres"
	"github.com/nftbay/marketplace/internal/storage/rediscache"
	"github.com/nftbay/marketplace/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	if v := os.Getenv("MARKET_CONFIG"); v != "" && *configPath == "" {
		*configPath = v
	}

	log := logger.NewDefault("marketd")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Error("configuration invalid")
		os.Exit(1)
	}

	// Stores: postgres when a database URL is configured, in-memory otherwise.
	var listings storage.ListingStore
	var proceeds storage.ProceedsStore
	if cfg.Database.URL != "" {
		db, err := postgres.Open(cfg.Database.URL)
		if err != nil {
			log.WithError(err).Error("database connection failed")
			os.Exit(1)
		}
		defer db.Close()
		if err := migrations.Apply(db.DB); err != nil {
			log.WithError(err).Error("migration failed")
			os.Exit(1)
		}
		store := postgres.New(db)
		listings, proceeds = store, store
		log.Info("using postgres store")
	} else {
		store := memory.New()
		listings, proceeds = store, store
		log.Warn("using in-memory store, state is lost on restart")
	}

	// Optional redis read-through cache in front of the listing store.
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		listings = rediscache.New(listings, rdb, cfg.Redis.TTL, logger.NewDefault("listing-cache"))
		log.Infof("listing cache enabled via %s", cfg.Redis.Addr)
	}

	chainClient, err := evm.NewClient(evm.Config{
		Endpoint:          cfg.Chain.Endpoint,
		Operator:          market.Address(cfg.Chain.Operator),
		RequestsPerSecond: cfg.Chain.RequestsPerSecond,
	}, logger.NewDefault("evm"))
	if err != nil {
		log.WithError(err).Error("chain client setup failed")
		os.Exit(1)
	}

	m := metrics.New()
	hub := events.NewHub(logger.NewDefault("events"))
	defer hub.Close()

	emitter := marketplace.MultiEmitter{
		marketplace.NewLogEmitter(logger.NewDefault("market-events")),
		m,
		hub,
	}

	engine := marketplace.New(listings, proceeds, chainClient, chainClient, market.Address(cfg.Chain.Operator), emitter, logger.NewDefault("marketplace"))

	auditor := audit.New(listings, chainClient, m, logger.NewDefault("audit"))
	if cfg.Audit.Schedule != "" {
		if err := auditor.Start(cfg.Audit.Schedule); err != nil {
			log.WithError(err).Error("auditor setup failed")
			os.Exit(1)
		}
		defer auditor.Stop()
	}

	router := httpapi.NewHandler(engine, m, logger.NewDefault("httpapi"))
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	router.Handle("/events", hub).Methods(http.MethodGet)

	auth := middleware.NewAuthMiddleware([]byte(cfg.Auth.Secret), logger.NewDefault("auth"), []string{"/healthz", "/metrics", "/events"})
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger.NewDefault("ratelimit"))

	router.Use(middleware.LoggingMiddleware(logger.NewDefault("http")))
	router.Use(middleware.MetricsMiddleware(m))

	var handler http.Handler = router
	handler = limiter.Handler(handler)
	handler = auth.Handler(handler)
	handler = middleware.CORS(cfg.CORS.AllowedOrigins)(handler)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Infof("marketd listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Error("server error")
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown error")
	}
}
