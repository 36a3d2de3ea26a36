// Package config provides application configuration management,
// loading settings from environment variables, .env files and an optional
// YAML threshold profile.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/stuartshay/trajectory-worker/internal/aoi"
	"github.com/stuartshay/trajectory-worker/internal/trajectory"
)

// Config holds all configuration for the application
type Config struct {
	// Service configuration
	ServiceName string
	Environment string
	GRPCPort    string
	HTTPPort    string

	// Database configuration
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	MaxAccuracyM     int

	// Home anchor
	HomeLatitude  float64
	HomeLongitude float64
	HomeRadiusM   float64

	// Optional destination anchor
	HasDest        bool
	DestLatitude   float64
	DestLongitude  float64
	DestRadiusM    float64
	StoresFile     string
	StoreRadiusM   float64
	ThresholdsFile string

	// Processing
	OutputPath    string
	WorkerCount   int
	QueueSize     int
	LocalTimezone string
	SortUnordered bool

	// OpenTelemetry configuration
	OTELEndpoint string
	OTELEnabled  bool

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "trajectory-worker"),
		Environment: getEnv("ENVIRONMENT", "development"),
		GRPCPort:    getEnv("GRPC_PORT", "50051"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),

		PostgresHost:     getEnv("POSTGRES_HOST", "192.168.1.175"),
		PostgresPort:     getEnv("POSTGRES_PORT", "6432"),
		PostgresDB:       getEnv("POSTGRES_DB", "owntracks"),
		PostgresUser:     getEnv("POSTGRES_USER", "development"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "development"),

		StoresFile:     getEnv("STORES_FILE", ""),
		ThresholdsFile: getEnv("THRESHOLDS_FILE", ""),
		OutputPath:     getEnv("OUTPUT_PATH", getEnv("CSV_OUTPUT_PATH", "/data/csv")),
		LocalTimezone:  getEnv("LOCAL_TIMEZONE", ""),
		OTELEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	floats := []struct {
		key, def string
		dst      *float64
	}{
		{"HOME_LATITUDE", "40.736097", &cfg.HomeLatitude},
		{"HOME_LONGITUDE", "-74.039373", &cfg.HomeLongitude},
		{"HOME_RADIUS_M", "50", &cfg.HomeRadiusM},
		{"DEST_RADIUS_M", "50", &cfg.DestRadiusM},
		{"STORE_RADIUS_M", "50", &cfg.StoreRadiusM},
	}
	for _, f := range floats {
		v, err := parseFloat(f.key, f.def)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", f.key, err)
		}
		*f.dst = v
	}

	ints := []struct {
		key, def string
		dst      *int
	}{
		{"WORKER_COUNT", "5", &cfg.WorkerCount},
		{"QUEUE_SIZE", "100", &cfg.QueueSize},
		{"MAX_ACCURACY_M", "0", &cfg.MaxAccuracyM},
	}
	for _, i := range ints {
		v, err := strconv.Atoi(getEnv(i.key, i.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", i.key, err)
		}
		*i.dst = v
	}

	var err error
	if cfg.SortUnordered, err = parseBool("SORT_UNORDERED", "true"); err != nil {
		return nil, fmt.Errorf("invalid SORT_UNORDERED: %w", err)
	}
	if cfg.OTELEnabled, err = parseBool("OTEL_ENABLED", "true"); err != nil {
		return nil, fmt.Errorf("invalid OTEL_ENABLED: %w", err)
	}

	// The destination is configured only when both coordinates are set
	if os.Getenv("DEST_LATITUDE") != "" || os.Getenv("DEST_LONGITUDE") != "" {
		if cfg.DestLatitude, err = parseFloat("DEST_LATITUDE", ""); err != nil {
			return nil, fmt.Errorf("invalid DEST_LATITUDE: %w", err)
		}
		if cfg.DestLongitude, err = parseFloat("DEST_LONGITUDE", ""); err != nil {
			return nil, fmt.Errorf("invalid DEST_LONGITUDE: %w", err)
		}
		cfg.HasDest = true
	}

	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("invalid WORKER_COUNT: must be at least 1")
	}

	return cfg, nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s sslmode=disable",
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDB,
		c.PostgresUser,
		c.PostgresPassword,
	)
}

// Anchors builds the home, destination and store geofences
func (c *Config) Anchors() (trajectory.Anchors, error) {
	home := aoi.New("home", c.HomeLatitude, c.HomeLongitude, c.HomeRadiusM)
	anchors := trajectory.Anchors{Home: &home}

	if c.HasDest {
		dest := aoi.New("dest", c.DestLatitude, c.DestLongitude, c.DestRadiusM)
		anchors.Dest = &dest
	}

	if c.StoresFile != "" {
		f, err := os.Open(c.StoresFile)
		if err != nil {
			return trajectory.Anchors{}, fmt.Errorf("failed to open stores file: %w", err)
		}
		defer func() { _ = f.Close() }()

		stores, err := aoi.LoadStores(f, c.StoreRadiusM)
		if err != nil {
			return trajectory.Anchors{}, err
		}
		anchors.Stores = stores
	}
	return anchors, nil
}

// Params returns the analysis thresholds, overlaid with the threshold
// profile when one is configured
func (c *Config) Params() (trajectory.Params, error) {
	return LoadParamsFile(c.ThresholdsFile)
}

// LoadParamsFile reads a threshold profile. An empty path yields the
// defaults.
func LoadParamsFile(path string) (trajectory.Params, error) {
	if path == "" {
		return trajectory.DefaultParams(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return trajectory.Params{}, fmt.Errorf("failed to open thresholds file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadParams(f)
}

// LoadParams decodes a YAML threshold profile over the defaults. Keys that
// are absent keep their default value; unknown keys are rejected.
func LoadParams(r io.Reader) (trajectory.Params, error) {
	params := trajectory.DefaultParams()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&params); err != nil && !errors.Is(err, io.EOF) {
		return trajectory.Params{}, fmt.Errorf("failed to parse thresholds: %w", err)
	}
	if err := validateParams(params); err != nil {
		return trajectory.Params{}, err
	}
	return params, nil
}

func validateParams(p trajectory.Params) error {
	switch {
	case p.Trip.MinPause > p.Trip.MaxPause:
		return fmt.Errorf("invalid thresholds: trip.min_pause %.0f exceeds trip.max_pause %.0f", p.Trip.MinPause, p.Trip.MaxPause)
	case p.Filter.MaxSignalLoss <= 0:
		return fmt.Errorf("invalid thresholds: invalid_fixes.max_sloss must be positive")
	case p.Trip.Lookback <= 0:
		return fmt.Errorf("invalid thresholds: trip.lookback must be positive")
	case len(p.Speed) == 0:
		return fmt.Errorf("invalid thresholds: at least one speed cutoff is required")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseFloat parses a float64 from an environment variable or default value
func parseFloat(key, defaultValue string) (float64, error) {
	value := getEnv(key, defaultValue)
	return strconv.ParseFloat(value, 64)
}

// parseBool parses a bool from an environment variable or default value
func parseBool(key, defaultValue string) (bool, error) {
	value := getEnv(key, defaultValue)
	return strconv.ParseBool(value)
}
