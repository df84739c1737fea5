package config

import (
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the configuration settings for the resolution service.
//
// Fields:
// - Env: The current environment (e.g., local, development, production).
// - Port: The port for the monitoring server.
// - GatewayType: The lookup gateway to use (nominatim, google).
// - APIKey: The API key for external services (required for Google).
// - Workers: The number of concurrent workers per batch.
// - BatchSize: The maximum number of addresses fetched per poll.
// - Interval: The duration between polls for pending addresses.
// - QueryTimeout: The per-call timeout for lookup and range queries.
// - FuzzyThreshold: The minimum similarity for a fuzzy street match.
// - Database: Configuration settings for the PostgreSQL database.
type Config struct {
	Env            string
	Port           int
	GatewayType    string
	APIKey         string
	Workers        int
	BatchSize      int
	Interval       time.Duration
	QueryTimeout   time.Duration
	FuzzyThreshold float64
	Database       PostgresConfig
}

// PostgresConfig holds the connection details for the PostgreSQL database.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// MustLoad reads configuration from the environment (with an optional .env
// file) and panics on malformed values. All variables carry the PINPOINT_
// prefix.
func MustLoad() *Config {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PINPOINT")
	v.AutomaticEnv()

	v.SetDefault("env", "production")
	v.SetDefault("health_port", "8080")
	v.SetDefault("gateway_type", "nominatim")
	v.SetDefault("workers", "4")
	v.SetDefault("batch_size", "100")
	v.SetDefault("interval", "10m")
	v.SetDefault("query_timeout", "15s")
	v.SetDefault("fuzzy_threshold", "0.80")
	v.SetDefault("db_port", "5432")

	interval, err := time.ParseDuration(v.GetString("interval"))
	if err != nil {
		panic("failed to parse interval from configuration")
	}

	queryTimeout, err := time.ParseDuration(v.GetString("query_timeout"))
	if err != nil {
		panic("failed to parse query timeout from configuration")
	}

	healthPort, err := strconv.Atoi(v.GetString("health_port"))
	if err != nil {
		panic("failed to parse port for monitoring server from configuration")
	}

	workers, err := strconv.Atoi(v.GetString("workers"))
	if err != nil {
		panic("failed to parse workers from configuration, must be an integer")
	}

	batchSize, err := strconv.Atoi(v.GetString("batch_size"))
	if err != nil {
		panic("failed to parse batch size from configuration, must be an integer")
	}

	fuzzyThreshold, err := strconv.ParseFloat(v.GetString("fuzzy_threshold"), 64)
	if err != nil {
		panic("failed to parse fuzzy threshold from configuration, must be a float")
	}

	return &Config{
		Env:            v.GetString("env"),
		Port:           healthPort,
		GatewayType:    v.GetString("gateway_type"),
		APIKey:         v.GetString("gateway_key"),
		Workers:        workers,
		BatchSize:      batchSize,
		Interval:       interval,
		QueryTimeout:   queryTimeout,
		FuzzyThreshold: fuzzyThreshold,
		Database: PostgresConfig{
			Host:     v.GetString("db_host"),
			Port:     v.GetString("db_port"),
			User:     v.GetString("db_username"),
			Password: v.GetString("db_password"),
			Name:     v.GetString("db_name"),
		},
	}
}
