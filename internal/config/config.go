// Package config holds the small typed helpers used to read runtime
// configuration from the environment. The CLI layers viper on top of
// this for flag binding; the API server reads the environment directly.
package config

import (
	"os"
	"strconv"
	"time"
)

// GetEnv gets an environment variable or returns a default value.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt parses an integer environment variable, falling back to the
// default on absence or parse failure.
func GetEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// GetEnvBool parses a boolean environment variable, falling back to the
// default on absence or parse failure.
func GetEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// GetEnvDuration parses a duration environment variable such as "5m" or
// "1h30m", falling back to the default on absence or parse failure.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// IsDevelopment reports whether ENVIRONMENT names a development
// deployment.
func IsDevelopment() bool {
	env := os.Getenv("ENVIRONMENT")
	return env == "development" || env == "dev"
}
