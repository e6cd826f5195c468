package config

import (
	"os"
	"strconv"

	"corrcov/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Correction CorrectionConfig
	Server     ServerConfig
	Database   DatabaseConfig
	Data       DataConfig
}

// CorrectionConfig holds defaults for the coverage-correction engine
type CorrectionConfig struct {
	PriorW      float64 // prior standard deviation of the true effect size
	NRep        int     // Monte-Carlo replicates per causal hypothesis
	PP0Min      float64 // minimum prior posterior probability for a hypothesis to be simulated
	Accuracy    float64 // bisection convergence tolerance on corrected coverage
	MaxIter     int     // bisection iteration bound
	Workers     int64   // concurrent hypothesis simulations
	CIRepeats   int     // full-correction repeats for the confidence-interval estimator
	CILevel     float64 // confidence level for the interval estimator
	DefaultSeed uint64  // seed used when the caller does not supply one
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds database connection settings. URL is optional: without
// it the API runs with run persistence disabled.
type DatabaseConfig struct {
	URL string
}

// DataConfig holds data ingestion settings
type DataConfig struct {
	RegionFile string // workbook (.xlsx/.csv) with per-variant summary statistics
	LDFile     string // optional separate workbook holding the LD matrix
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Correction: CorrectionConfig{
			PriorW:      getEnvFloatOrDefault("CORRCOV_PRIOR_W", 0.2),
			NRep:        getEnvIntOrDefault("CORRCOV_NREP", 1000),
			PP0Min:      getEnvFloatOrDefault("CORRCOV_PP0MIN", 0.001),
			Accuracy:    getEnvFloatOrDefault("CORRCOV_ACCURACY", 0.005),
			MaxIter:     getEnvIntOrDefault("CORRCOV_MAX_ITER", 20),
			Workers:     int64(getEnvIntOrDefault("CORRCOV_WORKERS", 4)),
			CIRepeats:   getEnvIntOrDefault("CORRCOV_CI_REPEATS", 100),
			CILevel:     getEnvFloatOrDefault("CORRCOV_CI_LEVEL", 0.95),
			DefaultSeed: uint64(getEnvIntOrDefault("CORRCOV_SEED", 1)),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
		Database: DatabaseConfig{
			URL: getEnvOrDefault("DATABASE_URL", ""),
		},
		Data: DataConfig{
			RegionFile: getEnvOrDefault("REGION_FILE", ""),
			LDFile:     getEnvOrDefault("LD_FILE", ""),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func validateConfig(config *Config) error {
	c := config.Correction
	if c.PriorW <= 0 {
		return errors.ConfigInvalid("CORRCOV_PRIOR_W must be positive")
	}
	if c.NRep <= 0 {
		return errors.ConfigInvalid("CORRCOV_NREP must be positive")
	}
	if c.PP0Min < 0 || c.PP0Min >= 1 {
		return errors.ConfigInvalid("CORRCOV_PP0MIN must be in [0, 1)")
	}
	if c.Accuracy <= 0 {
		return errors.ConfigInvalid("CORRCOV_ACCURACY must be positive")
	}
	if c.MaxIter <= 0 {
		return errors.ConfigInvalid("CORRCOV_MAX_ITER must be positive")
	}
	if c.Workers <= 0 {
		return errors.ConfigInvalid("CORRCOV_WORKERS must be positive")
	}
	if c.CIRepeats <= 1 {
		return errors.ConfigInvalid("CORRCOV_CI_REPEATS must be at least 2")
	}
	if c.CILevel <= 0 || c.CILevel >= 1 {
		return errors.ConfigInvalid("CORRCOV_CI_LEVEL must be in (0, 1)")
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
