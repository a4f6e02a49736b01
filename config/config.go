// Package config provides configuration for the chatdesk client and the
// development backend.
package config

import (
	"os"
	"strconv"
)

// Config holds the runtime configuration. Everything comes from the
// environment with sensible defaults; main loads a .env file first when
// one is present.
type Config struct {
	// Client settings
	BackendURL string
	StateDB    string // SQLite database holding the persisted client state

	// Development backend (chatdesk serve)
	ListenPort int
	BackendDB  string

	// AI upstream used by the development backend. With no API key the
	// backend answers with a canned local response.
	PerplexityAPIKey string
	PerplexityModel  string
	CompanyName      string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		BackendURL:       getEnv("CHATDESK_BACKEND_URL", "http://localhost:8000"),
		StateDB:          getEnv("CHATDESK_STATE_DB", "chatdesk_state.db"),
		ListenPort:       getEnvInt("CHATDESK_PORT", 8000),
		BackendDB:        getEnv("CHATDESK_BACKEND_DB", "chatdesk_backend.db"),
		PerplexityAPIKey: getEnv("PERPLEXITY_API_KEY", ""),
		PerplexityModel:  getEnv("PERPLEXITY_MODEL", "sonar"),
		CompanyName:      getEnv("COMPANY_NAME", "Ankit Solutions"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
