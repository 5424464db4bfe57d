// Package main запускает HTTP-сервер магазина.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ntarasau/vapeshop-backend/internal/cache"
	"github.com/ntarasau/vapeshop-backend/internal/config"
	"github.com/ntarasau/vapeshop-backend/internal/handler"
	"github.com/ntarasau/vapeshop-backend/internal/middleware"
	"github.com/ntarasau/vapeshop-backend/internal/repository"
	"github.com/ntarasau/vapeshop-backend/internal/service"
	"github.com/ntarasau/vapeshop-backend/internal/telegram"
)

const catalogCacheTTL = 10 * time.Second

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

	var notifier service.Notifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifier = telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramChatID)
	}

	var catalogCache service.CatalogCache
	if cfg.RedisAddress != "" {
		c, err := cache.New(cfg.RedisAddress, catalogCacheTTL)
		if err != nil {
			// Кэш необязателен, витрина работает напрямую из БД.
			sugar.Warnw("catalog cache unavailable", "error", err.Error())
		} else {
			defer c.Close()
			catalogCache = c
		}
	}

	svc := service.NewService(repo, notifier, catalogCache, cfg.AdminPassword, logger)
	defer svc.Close()

	adminAuth := middleware.NewAdminAuth(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, adminAuth)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting vapeshop server", "addr", cfg.RunAddress)
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
