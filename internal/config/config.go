package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for the agent.
type Config struct {
	// APIURL is the REST API endpoint for authentication and session
	// renewal.
	APIURL string `env:"RECIPE_API_URL" envDefault:"https://api.recipesync.app/api"`

	// SyncURL is the sync server endpoint the engine connects to.
	SyncURL string `env:"RECIPE_SYNC_URL" envDefault:"https://sync.recipesync.app"`

	// RecipesDir is the local folder to synchronize. The daemon starts
	// without it but the sync loop will not, so leaving it unset keeps
	// the agent authenticated-only.
	RecipesDir string `env:"RECIPE_DIR"`

	// SyncInterval is the pause between periodic sync passes.
	SyncInterval time.Duration `env:"SYNC_INTERVAL" envDefault:"5m"`

	// DownloadOnly disables uploading local changes.
	DownloadOnly bool `env:"DOWNLOAD_ONLY" envDefault:"false"`

	// DeviceName identifies this client to the sync server. Defaults to
	// the system hostname.
	DeviceName string `env:"DEVICE_NAME"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables. It first attempts
// to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.DeviceName == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "recipe-sync"
		}

		cfg.DeviceName = hostname
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// The recipes dir feeds path checks downstream that rely on prefix
	// comparison, so resolve it to an absolute path up front.
	if cfg.RecipesDir != "" {
		absDir, err := filepath.Abs(cfg.RecipesDir)
		if err != nil {
			return nil, fmt.Errorf("resolving recipes dir to absolute path: %w", err)
		}

		cfg.RecipesDir = absDir
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("RECIPE_API_URL must not be empty")
	}

	if c.SyncURL == "" {
		return fmt.Errorf("RECIPE_SYNC_URL must not be empty")
	}

	if c.SyncInterval < time.Second {
		return fmt.Errorf("SYNC_INTERVAL must be at least 1s, got %s", c.SyncInterval)
	}

	return nil
}

// WebBaseURL returns the service's web base URL, used to build the
// interactive login page URL. The API URL conventionally ends in /api;
// stripping it yields the web origin.
func (c *Config) WebBaseURL() string {
	return strings.TrimSuffix(c.APIURL, "/api")
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
