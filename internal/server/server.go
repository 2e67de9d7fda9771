// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"

	"github.com/acrispin/identity/internal/config"
	"github.com/acrispin/identity/internal/database"
	"github.com/acrispin/identity/internal/handlers"
	"github.com/acrispin/identity/internal/models"
	"github.com/acrispin/identity/internal/repository"
	"github.com/acrispin/identity/internal/services/auth"
	"github.com/acrispin/identity/internal/services/email"
	"github.com/acrispin/identity/internal/services/oauth"
)

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return err
	}

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"frontend_url", cfg.Server.FrontendURL,
	)

	// Database (migrations run on open)
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	repo := repository.New(db)

	// Services
	mailer, err := email.NewService(&cfg.SMTP, cfg.Server.FrontendURL)
	if err != nil {
		return fmt.Errorf("failed to create email service: %w", err)
	}
	exchanger := oauth.NewGoogleExchanger(&cfg.Google)
	issuer := auth.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	svc := auth.NewService(repo, issuer, mailer, exchanger, cfg.Tokens)

	// Seed data
	if err := seed(ctx, repo, svc, cfg); err != nil {
		return fmt.Errorf("failed to seed database: %w", err)
	}

	go reapExpiredTokens(ctx, repo)

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e)
	setupRoutes(e, svc, repo)

	return startWithGracefulShutdown(ctx, e, cfg)
}

// seed loads the countries master table and the default admin account.
func seed(ctx context.Context, repo *repository.Repository, svc *auth.Service, cfg *config.Config) error {
	countries := []models.Country{
		{Name: "United States", Code: "USA"},
		{Name: "Mexico", Code: "MEX"},
		{Name: "Spain", Code: "ESP"},
		{Name: "Argentina", Code: "ARG"},
	}
	if err := repo.SeedCountries(ctx, countries); err != nil {
		return err
	}
	return svc.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password)
}

// reapExpiredTokens removes verification tokens past expiry, once at
// startup and then hourly, until the context is cancelled.
func reapExpiredTokens(ctx context.Context, repo *repository.Repository) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		if err := repo.DeleteExpiredVerificationTokens(ctx); err != nil {
			slog.Error("token_reaper_failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func setupRoutes(e *echo.Echo, svc *auth.Service, repo *repository.Repository) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group("/api/v1")
	handlers.NewAuth(svc).Register(api.Group("/auth"))
	handlers.NewCountries(repo).Register(api)
}

func startWithGracefulShutdown(ctx context.Context, e *echo.Echo, cfg *config.Config) error {
	errChan := make(chan error, 1)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		slog.Info("Server running", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
