// Package config loads server configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

const (
	defaultPort    = "8080"
	defaultLogName = "recipe_share_info"
)

// Config holds the runtime configuration of the server.
type Config struct {
	// ProjectID is the Google Cloud project hosting Firestore, Pub/Sub and
	// Cloud Logging.
	ProjectID string
	// Port is the HTTP listen port.
	Port string
	// LogName is the Cloud Logging log name.
	LogName string
}

// Load reads configuration from a .env file if one is present, then from the
// environment. Missing optional values fall back to defaults; a missing
// project ID is allowed so that emulator-backed local runs work.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		// No .env file is the normal case in deployed environments.
		log.Println("no .env file loaded, using environment as-is")
	}
	cfg := &Config{
		ProjectID: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		Port:      os.Getenv("PORT"),
		LogName:   os.Getenv("RECIPE_LOG_NAME"),
	}
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.LogName == "" {
		cfg.LogName = defaultLogName
	}
	return cfg
}
