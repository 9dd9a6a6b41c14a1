package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"opd/token-service/internal/app"
	"opd/token-service/internal/cache"
	"opd/token-service/internal/config"
	"opd/token-service/internal/httpapi"
	"opd/token-service/internal/queue"
	"opd/token-service/internal/store"
	"opd/token-service/internal/store/memory"
	"opd/token-service/internal/store/postgres"
	"opd/token-service/internal/telemetry"
)

const serviceName = "token-service"

func main() {
	cfg := config.Load()
	logger := app.NewLogger(cfg.Environment)
	defer func() { _ = logger.Sync() }()

	shutdownTracing := telemetry.Setup(context.Background(), serviceName, logger)

	var st store.Store
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, running on the in-memory store; data is lost on restart")
		st = memory.NewStore()
	} else {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()

		if cfg.Migrate {
			migrator, err := app.NewMigrator(pool, cfg.MigrationsDir, logger)
			if err != nil {
				logger.Fatal("init migrator", zap.Error(err))
			}
			if err := migrator.Up(context.Background()); err != nil {
				logger.Fatal("run migrations", zap.Error(err))
			}
			_ = migrator.Close()
		}
		st = postgres.NewStore(pool)
	}

	var boards *cache.Board
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, queue board cache degraded", zap.Error(err))
		}
		cancel()
		boards = cache.NewBoard(client, cfg.BoardTTL, logger)
	}

	serviceOptions := queue.Options{
		Weights: queue.Weights{
			Emergency: cfg.WeightEmergency,
			Priority:  cfg.WeightPriority,
			FollowUp:  cfg.WeightFollowUp,
			Online:    cfg.WeightOnline,
			WalkIn:    cfg.WeightWalkIn,
		},
		AvgConsultationMinutes: cfg.AvgConsultationMinutes,
		DefaultMaxCapacity:     cfg.DefaultMaxCapacity,
		Logger:                 logger,
	}
	if boards != nil {
		serviceOptions.Board = boards
	}
	svc := queue.NewService(st, serviceOptions)

	handlerOptions := httpapi.Options{Logger: logger}
	if boards != nil {
		handlerOptions.Boards = boards
	}
	handler := httpapi.NewHandler(svc, handlerOptions)

	if cfg.NoShowTimeout > 0 {
		// No sweep runs inside the service; whoever operates it marks
		// no-shows through the status endpoint.
		logger.Info("no-show timeout configured but not enforced in-process",
			zap.Duration("timeout", cfg.NoShowTimeout))
	}

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      otelhttp.NewHandler(httpapi.LoggingMiddleware(logger, handler.Routes()), serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("token-service listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}
}
