package config

import (
	"os"
	"strings"
)

// parseEnv reads the variables a .env-style deployment provides.
// PORT is a bare port number and becomes ":PORT".
func parseEnv(config *Config) {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.EndpointAddrHTTP = ":" + strings.TrimPrefix(port, ":")
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		config.DatabaseDSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		config.SecretKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
}
