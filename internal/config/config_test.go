// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/urfave/cli/v3"
)

func TestFlags(t *testing.T) {
	flags := Flags()

	// Should have all expected flags
	assert.NotEmpty(t, flags)

	flagNames := make(map[string]bool)
	for _, f := range flags {
		for _, name := range f.Names() {
			flagNames[name] = true
		}
	}

	assert.True(t, flagNames["host"], "should have host flag")
	assert.True(t, flagNames["port"], "should have port flag")
	assert.True(t, flagNames["frontend-url"], "should have frontend-url flag")
	assert.True(t, flagNames["log-level"], "should have log-level flag")
	assert.True(t, flagNames["database-dsn"], "should have database-dsn flag")
	assert.True(t, flagNames["jwt-secret"], "should have jwt-secret flag")
	assert.True(t, flagNames["google-client-id"], "should have google-client-id flag")
	assert.True(t, flagNames["smtp-host"], "should have smtp-host flag")
	assert.True(t, flagNames["admin-email"], "should have admin-email flag")
}

func TestNewFromCLI(t *testing.T) {
	app := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg := NewFromCLI(cmd)

			// Verify defaults are applied
			assert.NotNil(t, cfg)
			assert.Equal(t, "localhost", cfg.Server.Host)
			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "info", cfg.Log.Level)
			assert.Equal(t, "text", cfg.Log.Format)
			assert.Equal(t, 30*time.Minute, cfg.JWT.AccessTokenTTL)
			assert.Equal(t, 24*time.Hour, cfg.Tokens.VerificationTTL)
			assert.Equal(t, 24*time.Hour, cfg.Tokens.PasswordResetTTL)
			assert.Equal(t, "postmessage", cfg.Google.RedirectURL)
			assert.Equal(t, "admin@example.com", cfg.Admin.Email)

			return nil
		},
	}

	err := app.Run(context.Background(), []string{"test"})
	assert.NoError(t, err)
}

func TestNewFromCLI_WithCustomValues(t *testing.T) {
	app := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg := NewFromCLI(cmd)

			assert.Equal(t, "0.0.0.0", cfg.Server.Host)
			assert.Equal(t, 9000, cfg.Server.Port)
			assert.Equal(t, "https://app.example.com", cfg.Server.FrontendURL)
			assert.Equal(t, "debug", cfg.Log.Level)
			assert.Equal(t, "./data/test.db", cfg.Database.DSN)
			assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenTTL)

			return nil
		},
	}

	args := []string{
		"test",
		"--host", "0.0.0.0",
		"--port", "9000",
		"--frontend-url", "https://app.example.com",
		"--log-level", "debug",
		"--database-dsn", "./data/test.db",
		"--access-token-minutes", "15",
	}
	err := app.Run(context.Background(), args)
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		JWT: JWTConfig{Secret: "secret", AccessTokenTTL: 30 * time.Minute},
	}

	assert.NoError(t, cfg.Validate())
}

func TestValidate_MissingSecret(t *testing.T) {
	cfg := &Config{
		JWT: JWTConfig{AccessTokenTTL: 30 * time.Minute},
	}

	assert.Error(t, cfg.Validate())
}

func TestValidate_NonPositiveTTL(t *testing.T) {
	cfg := &Config{
		JWT: JWTConfig{Secret: "secret"},
	}

	assert.Error(t, cfg.Validate())
}
