package utils

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration for both binaries
type Config struct {
	// Coordinator
	CoordinatorHost string
	CoordinatorPort int
	HistoryPath     string
	LivenessTimeout time.Duration
	ReapInterval    time.Duration

	// Discovery
	DiscoveryPort      int
	DiscoveryBroadcast string
	DiscoveryWindow    time.Duration

	// Agent
	MasterURL         string
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	TrainCommand      string
	TrainWorkDir      string
	ModelsDir         string

	// Logging
	LogLevel string
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() *Config {
	return &Config{
		// Coordinator
		CoordinatorHost: getEnv("COORDINATOR_HOST", "0.0.0.0"),
		CoordinatorPort: getEnvAsInt("COORDINATOR_PORT", 5000),
		HistoryPath:     getEnv("HISTORY_DB_PATH", "trainfleet.db"),
		LivenessTimeout: getEnvAsDuration("LIVENESS_TIMEOUT", 5*time.Minute),
		ReapInterval:    getEnvAsDuration("REAP_INTERVAL", 1*time.Minute),

		// Discovery
		DiscoveryPort:      getEnvAsInt("DISCOVERY_PORT", 5001),
		DiscoveryBroadcast: getEnv("DISCOVERY_BROADCAST", "255.255.255.255"),
		DiscoveryWindow:    getEnvAsDuration("DISCOVERY_WINDOW", 3*time.Second),

		// Agent
		MasterURL:         getEnv("MASTER_URL", ""),
		PollInterval:      getEnvAsDuration("POLL_INTERVAL", 30*time.Second),
		HeartbeatInterval: getEnvAsDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		TrainCommand:      getEnv("TRAIN_COMMAND", "python3 train.py"),
		TrainWorkDir:      getEnv("TRAIN_WORKDIR", "."),
		ModelsDir:         getEnv("MODELS_DIR", "models"),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsDuration gets an environment variable as a duration or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetLogLevel converts the configured log level string to a LogLevel
func (c *Config) GetLogLevel() LogLevel {
	return ParseLevel(c.LogLevel)
}
