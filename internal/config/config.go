// Package config reads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/logaware/backend/internal/detector"
	"github.com/logaware/backend/internal/models"
)

// ErrInvalidConfig is returned when an environment value cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	DefaultMaxUploadBytes = 50 << 20
	DefaultMaxRecords     = 100_000
	DefaultCacheSize      = 16
	DefaultPort           = "8080"
	DefaultCORSOrigin     = "http://localhost:5173"
)

// Config holds every setting of the server and the CLI.
type Config struct {
	Detector       detector.Config
	Policy         models.Policy
	MaxUploadBytes int64
	MaxRecords     int
	CacheSize      int

	Port       string
	GinMode    string
	LogLevel   string
	LogFile    string
	JWTSecret  string
	CORSOrigin string
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		Detector:       detector.DefaultConfig(),
		Policy:         models.PolicyUnion,
		MaxUploadBytes: DefaultMaxUploadBytes,
		MaxRecords:     DefaultMaxRecords,
		CacheSize:      DefaultCacheSize,
		Port:           DefaultPort,
		LogLevel:       "INFO",
		CORSOrigin:     DefaultCORSOrigin,
	}
}

// Load reads a .env file if one exists, then the process environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults for unset keys.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()
	var errs []error

	intVar := func(key string, dst *int) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s=%q is not an integer", key, v))
			return
		}
		*dst = n
	}

	intVar("LOF_NEIGHBORS", &cfg.Detector.Neighbors)
	intVar("IFOREST_TREES", &cfg.Detector.Trees)
	intVar("IFOREST_SAMPLE_SIZE", &cfg.Detector.SampleSize)
	intVar("IFOREST_MAX_DEPTH", &cfg.Detector.MaxDepth)
	intVar("DETECTOR_WORKERS", &cfg.Detector.Workers)
	intVar("MAX_RECORDS", &cfg.MaxRecords)
	intVar("CACHE_SIZE", &cfg.CacheSize)

	if v := strings.TrimSpace(getenv("IFOREST_SEED")); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("IFOREST_SEED=%q is not an integer", v))
		} else {
			cfg.Detector.Seed = seed
		}
	}
	if v := strings.TrimSpace(getenv("MAX_UPLOAD_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES=%q is not an integer", v))
		} else {
			cfg.MaxUploadBytes = n
		}
	}
	if v := getenv("CONTAMINATION"); v != "" {
		c, err := detector.ParseContamination(v)
		if err != nil {
			errs = append(errs, err)
		} else {
			cfg.Detector.Contamination = c
		}
	}
	if v := getenv("CONSOLIDATION_POLICY"); v != "" {
		p, err := models.ParsePolicy(v)
		if err != nil {
			errs = append(errs, err)
		} else {
			cfg.Policy = p
		}
	}

	if v := getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToUpper(v)
	}
	if v := getenv("CORS_ORIGIN"); v != "" {
		cfg.CORSOrigin = v
	}
	cfg.GinMode = getenv("GIN_MODE")
	cfg.LogFile = getenv("LOG_FILE")
	cfg.JWTSecret = getenv("JWT_SECRET")

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges that parsing alone does not cover.
func (c Config) Validate() error {
	if err := c.Detector.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("%w: MAX_UPLOAD_BYTES must be positive, got %d", ErrInvalidConfig, c.MaxUploadBytes)
	}
	if c.MaxRecords <= 0 {
		return fmt.Errorf("%w: MAX_RECORDS must be positive, got %d", ErrInvalidConfig, c.MaxRecords)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("%w: CACHE_SIZE must be positive, got %d", ErrInvalidConfig, c.CacheSize)
	}
	if _, err := models.ParsePolicy(string(c.Policy)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// DetectorConfig returns the engine settings.
func (c Config) DetectorConfig() detector.Config {
	return c.Detector
}
