package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-core/internal/config"
	"github.com/iliyamo/cinema-booking-core/internal/database"
	"github.com/iliyamo/cinema-booking-core/internal/handler"
	"github.com/iliyamo/cinema-booking-core/internal/middleware"
	"github.com/iliyamo/cinema-booking-core/internal/queue"
	"github.com/iliyamo/cinema-booking-core/internal/repository"
	"github.com/iliyamo/cinema-booking-core/internal/router"
	"github.com/iliyamo/cinema-booking-core/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional outside development

	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("config: %v", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		stdlog.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Production() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier := service.Notifier(service.NopNotifier{})
	if cfg.RabbitURL != "" {
		pub := queue.NewPublisher(cfg.RabbitURL, cfg.PublishBuffer, logger.Named("publisher"))
		go pub.Run(ctx)
		notifier = pub
		if cfg.ConsumerEnabled {
			c := &queue.Consumer{URL: cfg.RabbitURL, Dir: cfg.ConsumerLogDir, Log: logger.Named("consumer")}
			go func() { _ = c.Run(ctx) }()
		}
	} else {
		logger.Info("RABBITMQ_URL not set; booking events are not published")
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithHoldTTL(cfg.HoldTTL),
		service.WithMaxHoldTTL(cfg.HoldMaxTTL),
		service.WithNotifier(notifier),
	}
	reaper := service.NewReaper(store, opts...)
	holds := service.NewHoldManager(store, reaper, opts...)
	inventory := service.NewInventory(store, reaper, opts...)
	bookings := service.NewBookings(store, opts...)
	payments := service.NewPayments(store, opts...)

	sched, err := service.StartSweeper(reaper, cfg.ReaperSweepInterval)
	if err != nil {
		return err
	}
	if sched != nil {
		defer func() { _ = sched.Shutdown() }()
	}

	mw, err := buildMiddleware(cfg, logger)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			logger.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency))
			return nil
		},
	}))

	router.Register(e, router.Handlers{
		Holds:    handler.NewHoldHandler(holds, inventory, logger),
		Bookings: handler.NewBookingHandler(bookings, logger),
		Payments: handler.NewPaymentHandler(payments, bookings, logger),
		Admin:    handler.NewAdminHandler(inventory, logger),
	}, mw)

	errc := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repository.Store, func(), error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("using in-memory store; data is lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	}
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	return repository.NewMySQLStore(db, cfg.DBTxTimeout), func() { _ = db.Close() }, nil
}

// buildMiddleware sets up the Redis backed rate limiter and report cache.
// Both are disabled when Redis is unreachable.
func buildMiddleware(cfg config.Config, logger *zap.Logger) (router.Middleware, error) {
	mw := router.Middleware{JWTSecret: cfg.JWTSecret}
	rcfg, err := config.LoadRedisConfig()
	if err != nil {
		return mw, err
	}
	rdb := config.NewRedisClient(rcfg)
	if rdb == nil {
		logger.Warn("redis unreachable; rate limiting and report cache disabled", zap.String("addr", rcfg.Address()))
		return mw, nil
	}
	rl, err := config.LoadRateLimitConfig()
	if err != nil {
		return mw, err
	}
	cc, err := config.LoadCacheConfig()
	if err != nil {
		return mw, err
	}
	mw.RateLimit = middleware.NewTokenBucket(rl, rdb, logger.Named("ratelimit"))
	mw.Cache = middleware.NewRedisCache(cc, rdb, logger.Named("cache"))
	return mw, nil
}
