/*
Package config loads server configuration from the environment.

PURPOSE:
  Reads a .env file if present, then the process environment, with sane
  defaults for local development. Command-line flags in cmd/server take
  precedence over everything here.

VARIABLES:
  PORT       HTTP server port            (default "8080")
  DB_PATH    SQLite database path        (default "dairy.db")
  LOG_LEVEL  zap level: debug/info/warn  (default "info")
*/
package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds the server's runtime settings.
type Config struct {
	Port     string
	DBPath   string
	LogLevel string
}

// Load reads .env (if present) and the environment. A missing .env file
// is not an error.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:     getEnv("PORT", "8080"),
		DBPath:   getEnv("DB_PATH", "dairy.db"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
