package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/itskum47/monforge/monapi/config"
	"github.com/itskum47/monforge/monapi/idempotency"
	"github.com/itskum47/monforge/monapi/notify"
	"github.com/itskum47/monforge/monapi/store"
	"github.com/itskum47/monforge/monapi/streaming"
)

func main() {
	configPath := flag.String("config", config.GetEnvOrDefault("MONAPI_CONFIG", ""), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "monapi: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "monapi: build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage: Postgres when a DSN is configured, memory otherwise.
	var s store.Store
	if cfg.Postgres.DSN != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			logger.Fatal("connect postgres", zap.Error(err))
		}
		defer pg.Close()
		if cfg.Postgres.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				logger.Fatal("migrate postgres", zap.Error(err))
			}
		}
		s = pg
		logger.Info("using postgres store")
	} else {
		s = store.NewMemoryStore()
		logger.Warn("no postgres dsn configured, using in-memory store")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	var (
		idem     idempotency.Store
		converge notify.ConvergeStore
	)
	redisUp := rdb.Ping(ctx).Err() == nil
	if !redisUp {
		logger.Warn("redis unreachable, idempotency keys and converge windows stay local",
			zap.String("addr", cfg.Redis.Addr))
		memIdem := idempotency.NewMemoryStore(cfg.Limits.IdempotencyTTL)
		go memIdem.RunSweeper(ctx, cfg.Limits.IdempotencyTTL)
		idem = memIdem
		converge = notify.NewMemoryConvergeStore()
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
		idem = idempotency.NewRedisStore(rdb, cfg.Limits.IdempotencyTTL, func(err error) {
			logger.Warn("idempotency store", zap.Error(err))
		})
		converge = notify.NewRedisConvergeStore(rdb, cfg.Notify.QueuePrefix)
	}

	// Validate already rejected bad keys.
	types, _ := cfg.NotifyTypes()
	queue := notify.NewRedisQueue(rdb, cfg.Notify.QueuePrefix)
	dispatcher := notify.NewDispatcher(
		notify.NewBreakerQueue(queue, cfg.Notify.BreakerFailures, cfg.Notify.BreakerCooldown),
		notify.NewStaticDirectory(cfg.Notify.Users, cfg.Notify.Teams),
		types,
		cfg.Notify.Links,
		logger.Named("notify"),
		notify.WithConverger(notify.NewConverger(converge)),
		notify.WithCallbacks(queue),
	)

	var bus interface {
		streaming.Publisher
		streaming.Subscriber
	}
	if redisUp {
		bus = streaming.NewRedisBus(rdb, cfg.Notify.QueuePrefix+"events:", logger.Named("events"))
	} else {
		bus = streaming.NewBus()
	}
	publisher := streaming.Fanout{streaming.NewLogPublisher(logger.Named("events")), bus}
	defer publisher.Close()

	screens := NewScreenService(s, publisher, logger.Named("screens"))
	api := NewAPI(cfg, s, screens, dispatcher, idem, logger)
	if _, err := api.wsHub.Watch(bus); err != nil {
		logger.Fatal("watch screen events", zap.Error(err))
	}
	go api.wsHub.Run(ctx)

	if cfg.Auth.Disabled {
		logger.Warn("authentication disabled")
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("monapi listening", zap.String("addr", cfg.HTTP.Listen))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}
