// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults match a local llama.cpp server in OpenAI-compatible mode.
const (
	DefaultEmbedBaseURL = "http://127.0.0.1:8080/v1"
	DefaultEmbedModel   = "embed-model"
	DefaultEmbedDim     = 768
	DefaultEmbedTimeout = 60 * time.Second
)

// Config is the resolved runtime configuration.
type Config struct {
	DBPath       string // empty means derive from the indexed root
	EmbedBaseURL string
	EmbedModel   string
	EmbedAPIKey  string
	EmbedDim     int
	EmbedTimeout time.Duration
}

// Load reads .env (if present) and the CINDER_* environment variables,
// applying defaults for anything unset.
func Load() Config {
	// Missing .env is fine; real environments set variables directly.
	_ = godotenv.Load()

	return Config{
		DBPath:       os.Getenv("CINDER_DB"),
		EmbedBaseURL: envOr("CINDER_EMBED_BASE_URL", DefaultEmbedBaseURL),
		EmbedModel:   envOr("CINDER_EMBED_MODEL", DefaultEmbedModel),
		EmbedAPIKey:  os.Getenv("CINDER_EMBED_API_KEY"),
		EmbedDim:     envInt("CINDER_EMBED_DIM", DefaultEmbedDim),
		EmbedTimeout: envDuration("CINDER_EMBED_TIMEOUT", DefaultEmbedTimeout),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
