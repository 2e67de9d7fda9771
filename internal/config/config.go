// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Tokens   TokenConfig
	SMTP     SMTPConfig
	Google   GoogleConfig
	Admin    AdminConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	FrontendURL string // Base URL used in verification/reset links
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

// JWTConfig holds the signing secret and lifetime for access tokens. The
// secret is read once at startup; rotating it invalidates every outstanding
// token.
type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

// TokenConfig holds lifetimes for single-use verification tokens.
type TokenConfig struct {
	VerificationTTL  time.Duration // email verification
	PasswordResetTTL time.Duration
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// AdminConfig describes the default administrative account created at
// startup when no admin exists yet.
type AdminConfig struct {
	Email    string
	Password string
}

func NewFromCLI(cmd *cli.Command) *Config {
	return &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			FrontendURL: cmd.String("frontend-url"),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		JWT: JWTConfig{
			Secret:         cmd.String("jwt-secret"),
			AccessTokenTTL: time.Duration(cmd.Int("access-token-minutes")) * time.Minute,
		},
		Tokens: TokenConfig{
			VerificationTTL:  time.Duration(cmd.Int("verification-token-hours")) * time.Hour,
			PasswordResetTTL: time.Duration(cmd.Int("password-reset-token-hours")) * time.Hour,
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		Google: GoogleConfig{
			ClientID:     cmd.String("google-client-id"),
			ClientSecret: cmd.String("google-client-secret"),
			RedirectURL:  cmd.String("google-redirect-url"),
		},
		Admin: AdminConfig{
			Email:    cmd.String("admin-email"),
			Password: cmd.String("admin-password"),
		},
	}
}

// Validate checks settings that have no workable default.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required (set JWT_SECRET)")
	}
	if c.JWT.AccessTokenTTL <= 0 {
		return fmt.Errorf("access token lifetime must be positive")
	}
	return nil
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "frontend-url",
			Value:   "http://localhost:3000",
			Usage:   "Frontend base URL used in verification and reset links",
			Sources: cli.NewValueSourceChain(cli.EnvVar("FRONTEND_URL"), toml.TOML("server.frontend_url", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/identity.db",
			Usage:   "Database DSN",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		&cli.StringFlag{
			Name:    "jwt-secret",
			Usage:   "Secret key for signing access tokens",
			Sources: cli.NewValueSourceChain(cli.EnvVar("JWT_SECRET"), toml.TOML("jwt.secret", configFile)),
		},
		&cli.IntFlag{
			Name:    "access-token-minutes",
			Value:   30,
			Usage:   "Access token lifetime in minutes",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ACCESS_TOKEN_MINUTES"), toml.TOML("jwt.access_token_minutes", configFile)),
		},
		&cli.IntFlag{
			Name:    "verification-token-hours",
			Value:   24,
			Usage:   "Email verification token lifetime in hours",
			Sources: cli.NewValueSourceChain(cli.EnvVar("VERIFICATION_TOKEN_HOURS"), toml.TOML("tokens.verification_hours", configFile)),
		},
		&cli.IntFlag{
			Name:    "password-reset-token-hours",
			Value:   24,
			Usage:   "Password reset token lifetime in hours",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PASSWORD_RESET_TOKEN_HOURS"), toml.TOML("tokens.password_reset_hours", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host (emails are logged when empty)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Value:   "noreply@localhost",
			Usage:   "From address for outgoing mail",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Usage:   "Display name for outgoing mail",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Use TLS for SMTP",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		&cli.StringFlag{
			Name:    "google-client-id",
			Usage:   "Google OAuth client id",
			Sources: cli.NewValueSourceChain(cli.EnvVar("GOOGLE_CLIENT_ID"), toml.TOML("google.client_id", configFile)),
		},
		&cli.StringFlag{
			Name:    "google-client-secret",
			Usage:   "Google OAuth client secret",
			Sources: cli.NewValueSourceChain(cli.EnvVar("GOOGLE_CLIENT_SECRET"), toml.TOML("google.client_secret", configFile)),
		},
		&cli.StringFlag{
			Name:    "google-redirect-url",
			Value:   "postmessage",
			Usage:   "Redirect URI registered for the auth-code flow",
			Sources: cli.NewValueSourceChain(cli.EnvVar("GOOGLE_REDIRECT_URL"), toml.TOML("google.redirect_url", configFile)),
		},
		&cli.StringFlag{
			Name:    "admin-email",
			Value:   "admin@example.com",
			Usage:   "Email of the default admin account",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ADMIN_EMAIL"), toml.TOML("admin.email", configFile)),
		},
		&cli.StringFlag{
			Name:    "admin-password",
			Usage:   "Password of the default admin account (seeding is skipped when empty)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ADMIN_PASSWORD"), toml.TOML("admin.password", configFile)),
		},
	}
}
