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

	"github.com/magstore/email-receipts/internal/api"
	"github.com/magstore/email-receipts/internal/api/handler"
	"github.com/magstore/email-receipts/internal/core/ports"
	"github.com/magstore/email-receipts/internal/core/service"
	"github.com/magstore/email-receipts/internal/infrastructure/config"
	"github.com/magstore/email-receipts/internal/infrastructure/db/memory"
	"github.com/magstore/email-receipts/internal/infrastructure/db/postgres"
	redisdb "github.com/magstore/email-receipts/internal/infrastructure/db/redis"
	"github.com/magstore/email-receipts/internal/infrastructure/mailer/brevo"
	"github.com/magstore/email-receipts/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "email-receipts: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "email-receipts",
	})
	for _, w := range cfg.SecurityWarnings() {
		log.Warn().Msg(w)
	}

	// --- Storage ---
	var (
		users   ports.UserRepository
		sent    ports.SentEmailRepository
		pingers = map[string]handler.Pinger{}
	)
	if cfg.Postgres.URL != "" {
		db, err := postgres.Connect(ctx, postgres.Config{DSN: cfg.Postgres.URL, Log: logger.Component("postgres")})
		if err != nil {
			return err
		}
		defer postgres.Close(db)

		if err := postgres.Migrate(db); err != nil {
			return err
		}
		users = postgres.NewUserRepository(db)
		sent = postgres.NewSentEmailRepository(db)
		pingers["postgres"] = postgres.NewPinger(db)
		log.Info().Msg("using postgres store")
	} else {
		store := memory.NewStore()
		users, sent = store, store
		log.Info().Msg("using in-memory store")
	}

	var revoker service.TokenRevoker
	if cfg.Redis.Addr != "" {
		rdb, err := redisdb.Connect(ctx, redisdb.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()

		revoker = redisdb.NewSessionRevoker(rdb)
		pingers["redis"] = redisdb.NewPinger(rdb)
	}

	// --- Services ---
	limiter := service.NewLoginLimiter(cfg.Limits.LoginMaxFailures, cfg.Limits.LoginWindow)
	authService := service.NewAuthService(users, limiter, logger.Component("auth"))

	created, err := authService.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.Email)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		log.Warn().Str("username", cfg.Admin.Username).Msg("admin account created, change its password")
	}

	sessions := service.NewSessionTokens(cfg.Session.Secret, cfg.Session.TTL, revoker)

	mailer := brevo.NewClient(brevo.Config{
		APIKey:      cfg.Provider.APIKey,
		BaseURL:     cfg.Provider.BaseURL,
		SenderEmail: cfg.Provider.SenderEmail,
		SenderName:  cfg.Provider.SenderName,
		Timeout:     cfg.Provider.Timeout,
	})
	composer := service.NewReceiptComposer(cfg.Provider.SenderName, cfg.Provider.MagazineName)
	dispatchService := service.NewDispatchService(mailer, sent, composer, logger.Component("dispatch"))

	// --- HTTP ---
	e, err := api.NewRouter(api.Dependencies{
		Auth:          authService,
		Sessions:      sessions,
		Dispatch:      dispatchService,
		Pingers:       pingers,
		Log:           logger.Component("http"),
		SecureCookies: cfg.IsProduction(),
		SessionTTL:    cfg.Session.TTL,
		MaxCSVBytes:   cfg.Limits.MaxCSVBytes,

		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Bool("provider_configured", cfg.ProviderConfigured()).Msg("email receipts server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
