package config

import (
	"os"
	"strconv"
)

// Config holds the application configuration.
type Config struct {
	Server struct {
		Port int
		Host string
	}
	MocapAPI struct {
		BaseURL string
		Timeout int // seconds
	}
	Logging struct {
		Level string
	}
	Environment string
}

// LoadConfig reads the configuration from environment variables.
func LoadConfig() *Config {
	cfg := &Config{}

	cfg.Server.Port = getEnvInt("SERVER_PORT", 8080)
	cfg.Server.Host = getEnv("SERVER_HOST", "0.0.0.0")

	// The mocap backend runs on the therapist's machine next to this server.
	cfg.MocapAPI.BaseURL = getEnv("MOCAP_API_BASE_URL", "http://localhost:5050")
	cfg.MocapAPI.Timeout = getEnvInt("MOCAP_API_TIMEOUT_SECONDS", 300)

	cfg.Logging.Level = getEnv("LOG_LEVEL", "info")
	cfg.Environment = getEnv("ENVIRONMENT", "development")

	return cfg
}

// getEnv returns the environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the int environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
