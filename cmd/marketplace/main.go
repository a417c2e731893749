// Package main запускает HTTP-сервер сервиса маркетплейса.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/marketplace-system/internal/cache"
	"github.com/mmeshcher/marketplace-system/internal/cart"
	"github.com/mmeshcher/marketplace-system/internal/config"
	"github.com/mmeshcher/marketplace-system/internal/gateway"
	"github.com/mmeshcher/marketplace-system/internal/handler"
	"github.com/mmeshcher/marketplace-system/internal/middleware"
	"github.com/mmeshcher/marketplace-system/internal/repository"
	"github.com/mmeshcher/marketplace-system/internal/service"
	"github.com/mmeshcher/marketplace-system/internal/taskqueue"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancel()
		sugar.Fatalw("redis initialization error", "error", err.Error())
	}
	cancel()

	viewCache := cache.NewRedisCache(redisClient)
	invalidator := cache.NewInvalidator(viewCache, logger)
	sessions := cart.NewSessions(redisClient)

	queue := taskqueue.NewQueue(redisClient)
	gatewayClient := gateway.NewClient(queue, cfg.GatewayAddress)

	svc := service.NewService(repo, sessions, gatewayClient, viewCache, invalidator, logger)
	defer svc.Close()

	events := make(chan taskqueue.Event, 64)
	worker := taskqueue.NewWorker(queue, gatewayClient, svc, events, cfg.PaymentWorkers, logger)
	monitor := taskqueue.NewMonitor(events, svc, logger)

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	mockAPI := gateway.NewMockAPI(cfg.GatewayDelay)
	h := handler.NewHandler(svc, logger, authMiddleware, mockAPI)

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: h.SetupRouter(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Воркеры платёжного шлюза
	g.Go(func() error {
		return worker.Run(ctx)
	})

	// Монитор событий платёжных задач
	g.Go(func() error {
		return monitor.Run(ctx)
	})

	// Периодический прогон задач импорта цен
	g.Go(func() error {
		return svc.RunImportSweeper(ctx)
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting marketplace server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
