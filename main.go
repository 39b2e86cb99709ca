package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"campus-server/config"
	"campus-server/handlers"
	"campus-server/services"
	"campus-server/store"
	"campus-server/utils/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logr := logger.New("campus-server", cfg.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	docs, closeStore, err := initStore(ctx, cfg.Store, logr)
	if err != nil {
		logr.WithError(err).Fatal("Failed to initialize document store")
	}
	defer closeStore()

	cache, locker, closeRedis := initRedis(ctx, cfg.Redis, logr)
	defer closeRedis()

	events, closeNATS := initEvents(cfg.NATS, logr)
	defer closeNATS()

	// Services
	userService := services.NewUserService(docs, cache, services.UserServiceConfig{
		CacheTTL:  cfg.Redis.CacheTTL,
		JWTSecret: cfg.Auth.JWTSecret,
		TokenTTL:  cfg.Auth.TokenTTL,
	}, logr)
	monumentService := services.NewMonumentService(docs, cache, cfg.Redis.CacheTTL, logr)
	badgeService := services.NewBadgeService(docs, userService, monumentService, logr)
	ledger := services.NewInteractionLedger(docs, userService, events, logr)
	graph := services.NewSocialGraph(docs, locker, userService, events, logr)
	selector := services.NewRecommendationSelector(graph, monumentService, userService)

	if n, err := monumentService.Seed(ctx, cfg.Monuments.SeedFile); err != nil {
		logr.WithError(err).Warn("Failed to seed monuments")
	} else if n > 0 {
		logr.WithField("count", n).Info("Seeded monuments")
	}

	router := handlers.NewRouter(handlers.Handlers{
		Auth:      handlers.NewAuthHandler(userService),
		Monuments: handlers.NewMonumentHandler(monumentService, cfg.Monuments.DefaultTopK),
		Social:    handlers.NewSocialHandler(graph, selector),
		Badges:    handlers.NewBadgeHandler(badgeService, ledger),
		Me:        handlers.NewMeHandler(userService, badgeService, selector, cfg.Monuments.DefaultTopK),
	}, handlers.RouterConfig{
		JWTSecret:    cfg.Auth.JWTSecret,
		AdminUserIDs: cfg.Auth.AdminUserIDs,
	}, logr)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logr.WithField("addr", cfg.Server.Addr).Info("Server starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.WithError(err).Fatal("HTTP server error")
		}
	}()

	<-shutdown
	logr.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logr.WithError(err).Error("HTTP server shutdown error")
	}
	logr.Info("Shutdown complete")
}

// initStore connects MongoDB, or returns the in-process store for local runs.
func initStore(ctx context.Context, cfg config.StoreConfig, logr logrus.FieldLogger) (store.DocumentStore, func(), error) {
	if cfg.Driver == "memory" {
		logr.Warn("Using in-memory document store; data is lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	mongoStore, err := store.NewMongoStore(connectCtx, cfg.MongoURI, cfg.Database, logr)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to connect to MongoDB: %w", err)
	}
	if err := mongoStore.EnsureIndexes(connectCtx); err != nil {
		return nil, nil, fmt.Errorf("unable to create indexes: %w", err)
	}
	closeFn := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoStore.Close(closeCtx); err != nil {
			logr.WithError(err).Warn("MongoDB disconnect error")
		}
	}
	return mongoStore, closeFn, nil
}

// initRedis returns the Redis-backed cache and pair lock, falling back to
// in-process versions when Redis is not configured or unreachable.
func initRedis(ctx context.Context, cfg config.RedisConfig, logr logrus.FieldLogger) (store.Cache, store.Locker, func()) {
	if cfg.Addr == "" {
		logr.Info("REDIS_ADDR not set; using in-process cache and locks")
		return store.NewMemoryCache(), store.NewKeyedMutex(), func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logr.WithError(err).Warn("Redis unreachable; using in-process cache and locks")
		rdb.Close()
		return store.NewMemoryCache(), store.NewKeyedMutex(), func() {}
	}

	logr.WithField("addr", cfg.Addr).Info("Connected to Redis")
	return store.NewRedisCache(rdb), store.NewRedisLocker(rdb, cfg.LockTTL, logr), func() { rdb.Close() }
}

// initEvents connects NATS for domain events. Without NATS_URL events are
// dropped.
func initEvents(cfg config.NATSConfig, logr logrus.FieldLogger) (services.Publisher, func()) {
	if cfg.URL == "" {
		logr.Info("NATS_URL not set; domain events are disabled")
		return services.NopPublisher{}, func() {}
	}

	options := []nats.Option{
		nats.Name("campus-server"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logr.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logr.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logr.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		logr.WithError(err).Warn("Unable to connect to NATS; domain events are disabled")
		return services.NopPublisher{}, func() {}
	}
	return services.NewNATSPublisher(nc), func() {
		if err := nc.Drain(); err != nil {
			logr.WithError(err).Warn("NATS drain error")
		}
	}
}
