// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ClientConfig holds settings for the messenger client.
type ClientConfig struct {
	ServerURL      string
	PageSize       int
	RequestTimeout time.Duration
	ReducerTimeout time.Duration
}

// ServerConfig holds settings for the dev server.
type ServerConfig struct {
	Host      string
	Port      int
	JWTSecret string
}

// Config holds the complete application configuration
type Config struct {
	Client *ClientConfig
	Server *ServerConfig
	Debug  bool
}

// DefaultClientConfig provides default client settings
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL:      "http://localhost:8080",
		PageSize:       30,
		RequestTimeout: 10 * time.Second,
		ReducerTimeout: 5 * time.Second,
	}
}

// DefaultServerConfig provides default dev-server settings
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:      "0.0.0.0",
		Port:      8080,
		JWTSecret: "alumni-messenger-dev-secret",
	}
}

// LoadConfig loads configuration from environment variables and applies defaults
func LoadConfig() (*Config, error) {
	// Try to load .env file from the usual locations; a missing file is fine.
	envLocations := []string{
		".env",       // Current directory
		"../../.env", // Project root when running from cmd/*
	}

	envLoaded := false
	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			envLoaded = true
			break
		}
	}
	if !envLoaded {
		_ = godotenv.Load()
	}

	clientConfig := DefaultClientConfig()

	if url := os.Getenv("MESSENGER_SERVER_URL"); url != "" {
		clientConfig.ServerURL = url
	}

	if sizeStr := os.Getenv("MESSENGER_PAGE_SIZE"); sizeStr != "" {
		size, err := strconv.Atoi(sizeStr)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("invalid MESSENGER_PAGE_SIZE: %q", sizeStr)
		}
		clientConfig.PageSize = size
	}

	if timeoutStr := os.Getenv("MESSENGER_REQUEST_TIMEOUT"); timeoutStr != "" {
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return nil, fmt.Errorf("invalid MESSENGER_REQUEST_TIMEOUT: %q", timeoutStr)
		}
		clientConfig.RequestTimeout = timeout
	}

	serverConfig := DefaultServerConfig()

	if host := os.Getenv("HOST"); host != "" {
		serverConfig.Host = host
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			serverConfig.Port = port
		}
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		serverConfig.JWTSecret = secret
	}

	config := &Config{
		Client: clientConfig,
		Server: serverConfig,
		Debug:  os.Getenv("DEBUG") == "true",
	}

	return config, nil
}
