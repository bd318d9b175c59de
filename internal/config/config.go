// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	// Engine tuning
	ConcentrationLimitPct float64 // Max single-position share of portfolio value after a fill
	DriftThresholdPct     float64 // Drift above which a rebalance is recommended
	FillQueueSize         int     // Buffered capacity of the execution queue

	// PriceFeedURL is the base URL of the external price feed. When empty
	// the price refresh job is not scheduled and catalog prices are static.
	PriceFeedURL string

	// Backup settings (optional; backups disabled when Bucket is empty)
	Backup BackupConfig
}

// BackupConfig holds off-site ledger backup configuration.
// Endpoint is set for S3-compatible stores (e.g. Cloudflare R2, MinIO);
// leave empty for AWS S3 proper.
type BackupConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory with fallback logic:
	// 1. STEWARD_DATA_DIR environment variable
	// 2. ./data next to the working directory
	// Always resolved to an absolute path, created if missing.
	dataDir := getEnv("STEWARD_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:               absDataDir,
		Port:                  getEnvAsInt("STEWARD_PORT", 8010),
		DevMode:               getEnvAsBool("DEV_MODE", false),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		ConcentrationLimitPct: getEnvAsFloat("CONCENTRATION_LIMIT_PCT", 25.0),
		DriftThresholdPct:     getEnvAsFloat("DRIFT_THRESHOLD_PCT", 8.0),
		FillQueueSize:         getEnvAsInt("FILL_QUEUE_SIZE", 256),
		PriceFeedURL:          getEnv("PRICE_FEED_URL", ""),
		Backup: BackupConfig{
			Bucket:    getEnv("BACKUP_BUCKET", ""),
			Region:    getEnv("BACKUP_REGION", "auto"),
			Endpoint:  getEnv("BACKUP_ENDPOINT", ""),
			AccessKey: getEnv("BACKUP_ACCESS_KEY", ""),
			SecretKey: getEnv("BACKUP_SECRET_KEY", ""),
			Prefix:    getEnv("BACKUP_PREFIX", "steward"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.ConcentrationLimitPct <= 0 || c.ConcentrationLimitPct > 100 {
		return fmt.Errorf("concentration limit must be in (0, 100], got %.2f", c.ConcentrationLimitPct)
	}
	if c.DriftThresholdPct < 0 {
		return fmt.Errorf("drift threshold must not be negative, got %.2f", c.DriftThresholdPct)
	}
	if c.FillQueueSize <= 0 {
		return fmt.Errorf("fill queue size must be positive, got %d", c.FillQueueSize)
	}
	return nil
}

// BackupEnabled reports whether off-site backups are configured
func (c *Config) BackupEnabled() bool {
	return c.Backup.Bucket != ""
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
