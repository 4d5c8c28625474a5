package config

import (
	"os"
	"strconv"
	"time"

	"faersignal/domain/signal"
	"faersignal/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Signal   SignalConfig
	RxNorm   RxNormConfig
	OpenFDA  OpenFDAConfig
	Paths    PathConfig
}

// DatabaseConfig holds database connection settings. An empty URL runs the
// service without postgres; runs are then kept in memory.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// Enabled reports whether a database URL was supplied.
func (d DatabaseConfig) Enabled() bool { return d.URL != "" }

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// SignalConfig holds the default batch settings.
type SignalConfig struct {
	Mode        signal.Mode
	Ranking     signal.Ranking
	MinA        int
	SuspectOnly bool
	ApplyFDR    bool
	Workers     int
}

// RxNormConfig configures the drug name normalizer.
type RxNormConfig struct {
	BaseURL     string
	RPS         float64
	CacheSize   int
	Timeout     time.Duration
	MaxFailures uint32
}

// OpenFDAConfig configures the drug/event API client used by etl.
type OpenFDAConfig struct {
	BaseURL     string
	APIKey      string
	RPS         float64
	Timeout     time.Duration
	MaxFailures uint32
	Retries     int
}

// PathConfig holds file system paths
type PathConfig struct {
	ExportDir string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database: loadDatabaseConfig(),
		Server:   loadServerConfig(),
		RxNorm:   loadRxNormConfig(),
		OpenFDA:  loadOpenFDAConfig(),
		Paths:    loadPathConfig(),
	}

	signalConfig, err := loadSignalConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load signal configuration")
	}
	config.Signal = *signalConfig

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             os.Getenv("DATABASE_URL"),
		MaxOpenConns:    getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		ConnMaxLifetime: getEnvDurationOrDefault("DB_CONN_MAX_LIFETIME", 30*time.Minute),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),
	}
}

func loadSignalConfig() (*SignalConfig, error) {
	mode, err := signal.ParseMode(os.Getenv("SIGNAL_MODE"))
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	ranking, err := signal.ParseRanking(os.Getenv("RANKING"))
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}

	return &SignalConfig{
		Mode:        mode,
		Ranking:     ranking,
		MinA:        getEnvIntOrDefault("MIN_A", signal.DefaultMinA),
		SuspectOnly: getEnvBoolOrDefault("SUSPECT_ONLY", true),
		ApplyFDR:    getEnvBoolOrDefault("APPLY_FDR", true),
		Workers:     getEnvIntOrDefault("BATCH_WORKERS", 4),
	}, nil
}

func loadRxNormConfig() RxNormConfig {
	return RxNormConfig{
		BaseURL:     getEnvOrDefault("RXNORM_BASE_URL", "https://rxnav.nlm.nih.gov/REST"),
		RPS:         getEnvFloatOrDefault("RXNORM_RPS", 15),
		CacheSize:   getEnvIntOrDefault("RXNORM_CACHE_SIZE", 5000),
		Timeout:     getEnvDurationOrDefault("RXNORM_TIMEOUT", 15*time.Second),
		MaxFailures: uint32(getEnvIntOrDefault("RXNORM_MAX_FAILURES", 5)),
	}
}

func loadOpenFDAConfig() OpenFDAConfig {
	return OpenFDAConfig{
		BaseURL:     getEnvOrDefault("OPENFDA_BASE_URL", "https://api.fda.gov/drug/event.json"),
		APIKey:      os.Getenv("OPENFDA_API_KEY"),
		RPS:         getEnvFloatOrDefault("OPENFDA_RPS", 4),
		Timeout:     getEnvDurationOrDefault("OPENFDA_TIMEOUT", 30*time.Second),
		MaxFailures: uint32(getEnvIntOrDefault("OPENFDA_MAX_FAILURES", 5)),
		Retries:     getEnvIntOrDefault("OPENFDA_RETRIES", 3),
	}
}

func loadPathConfig() PathConfig {
	return PathConfig{
		ExportDir: getEnvOrDefault("EXPORT_DIR", "./exports"),
	}
}

func validateConfig(config *Config) error {
	if config.Signal.MinA < 0 {
		return errors.ConfigInvalid("MIN_A must be >= 0")
	}
	if config.Signal.Workers < 1 {
		return errors.ConfigInvalid("BATCH_WORKERS must be >= 1")
	}
	if config.RxNorm.RPS <= 0 {
		return errors.ConfigInvalid("RXNORM_RPS must be positive")
	}
	if config.RxNorm.CacheSize < 1 {
		return errors.ConfigInvalid("RXNORM_CACHE_SIZE must be >= 1")
	}
	if config.OpenFDA.RPS <= 0 {
		return errors.ConfigInvalid("OPENFDA_RPS must be positive")
	}
	if config.OpenFDA.Retries < 0 {
		return errors.ConfigInvalid("OPENFDA_RETRIES must be >= 0")
	}
	if config.Server.Port == "" {
		return errors.ConfigInvalid("PORT is required")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
