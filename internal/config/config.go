package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type OAuthProvider struct {
	Key         string
	Secret      string
	CallbackURL string `validate:"omitempty,url"`
}

type Config struct {
	Addr           string `validate:"required"`
	DatabasePath   string `validate:"required"`
	MigrationsPath string `validate:"required"`

	SessionLifetime    time.Duration `validate:"gt=0"`
	StandingsCacheTTL  time.Duration `validate:"gt=0"`
	CacheSweepInterval time.Duration `validate:"gt=0"`
	KickoffInterval    time.Duration `validate:"gt=0"`

	// AdminEmails are promoted to admin when they log in through OAuth.
	// Nobody else, guests included, ever gets the admin role.
	AdminEmails []string `validate:"dive,email"`

	Discord OAuthProvider
	Google  OAuthProvider
}

// Load reads .env if present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		Addr:           getEnv("ADDR", ":8080"),
		DatabasePath:   getEnv("DATABASE_PATH", "quiniela.db"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		AdminEmails:    getList("ADMIN_EMAILS"),
		Discord: OAuthProvider{
			Key:         os.Getenv("DISCORD_KEY"),
			Secret:      os.Getenv("DISCORD_SECRET"),
			CallbackURL: os.Getenv("DISCORD_CALLBACK_URL"),
		},
		Google: OAuthProvider{
			Key:         os.Getenv("GOOGLE_KEY"),
			Secret:      os.Getenv("GOOGLE_SECRET"),
			CallbackURL: os.Getenv("GOOGLE_CALLBACK_URL"),
		},
	}

	var err error
	if cfg.SessionLifetime, err = getDuration("SESSION_LIFETIME", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.StandingsCacheTTL, err = getDuration("STANDINGS_CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheSweepInterval, err = getDuration("CACHE_SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.KickoffInterval, err = getDuration("KICKOFF_INTERVAL", time.Minute); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// getList splits a comma separated variable into lower-cased, trimmed
// values.
func getList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
