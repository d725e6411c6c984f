// Package main запускает HTTP-сервер сервиса kycgate.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/kycgate/internal/config"
	"github.com/mmeshcher/kycgate/internal/handler"
	"github.com/mmeshcher/kycgate/internal/kycprovider"
	"github.com/mmeshcher/kycgate/internal/middleware"
	"github.com/mmeshcher/kycgate/internal/ratelimit"
	"github.com/mmeshcher/kycgate/internal/repository"
	"github.com/mmeshcher/kycgate/internal/service"
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

	var kycClient *kycprovider.Client
	if cfg.KYC.ProviderAddress != "" {
		kycClient = kycprovider.NewClient(cfg.KYC.ProviderAddress, cfg.KYC.APIKey)
	}

	templateTiers, err := cfg.KYC.Tiers()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}
	if len(templateTiers) == 0 {
		sugar.Warn("no kyc templates are mapped to tiers, approved inquiries will not upgrade users")
	}

	svc := service.NewService(repo, kycClient, logger, service.Options{
		StoreTimeout:     cfg.StoreTimeout,
		VolumeFailClosed: cfg.VolumeFailClosed,
		TemplateTiers:    templateTiers,
	})
	defer svc.Close()

	opts := handler.Options{
		KYC:        cfg.KYC,
		AdminToken: cfg.AdminToken,
	}

	if cfg.RedisAddress != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			sugar.Warnw("redis is not reachable, requests will not be limited until it recovers", "error", err.Error())
		}
		cancel()

		limiter, err := ratelimit.NewLimiter(rdb, "kycgate:ratelimit", cfg.WaitlistRateLimit, time.Minute)
		if err != nil {
			sugar.Fatalw("rate limiter initialization error", "error", err.Error())
		}
		opts.Limiter = limiter
	} else {
		sugar.Warn("redis address is not set, rate limiting disabled")
	}

	if cfg.AdminToken == "" {
		sugar.Warn("admin token is not set, admin endpoints are disabled")
	}
	if cfg.KYC.WebhookSecret == "" {
		sugar.Warn("kyc webhook secret is not set, webhooks will be rejected")
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret, cfg.SecureCookie)
	h := handler.NewHandler(svc, logger, authMiddleware, opts)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		svc.StartInquirySync(ctx, 0)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting kycgate server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

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
