// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	APIBaseURL     string
	OwnerID        string
	DBPath         string
	SecretsPath    string
	ListenAddr     string
	SyncInterval   time.Duration
	FetchLimit     int
	DevicePlatform string

	// IdentityToken and IdentityProvider are optional: when both are set and
	// no session exists yet, the daemon performs the one-time identity token
	// exchange at startup. The interactive sign-in flow that produces the
	// token lives outside this process.
	IdentityToken    string
	IdentityProvider string
}

// HasIdentityToken returns true when both IdentityToken and IdentityProvider
// are set, meaning the daemon can bootstrap a session at startup.
func (c *Config) HasIdentityToken() bool {
	return c.IdentityToken != "" && c.IdentityProvider != ""
}

// Load reads configuration from environment variables and returns a validated
// Config. VITALSYNC_API_BASE_URL and VITALSYNC_OWNER_ID are required; their
// absence is a configuration error that fails startup loudly. Optional
// variables with defaults: VITALSYNC_DB_PATH (vitalsync.db),
// VITALSYNC_SECRETS_PATH (vitalsync.secrets.json),
// VITALSYNC_LISTEN_ADDR (127.0.0.1:8089), VITALSYNC_SYNC_INTERVAL (15m),
// VITALSYNC_FETCH_LIMIT (50), VITALSYNC_DEVICE_PLATFORM (runtime.GOOS).
func Load() (*Config, error) {
	apiBaseURL := os.Getenv("VITALSYNC_API_BASE_URL")
	if apiBaseURL == "" {
		return nil, fmt.Errorf("VITALSYNC_API_BASE_URL is required")
	}

	ownerID := os.Getenv("VITALSYNC_OWNER_ID")
	if ownerID == "" {
		return nil, fmt.Errorf("VITALSYNC_OWNER_ID is required")
	}

	dbPath := "vitalsync.db"
	if v, ok := os.LookupEnv("VITALSYNC_DB_PATH"); ok {
		dbPath = v
	}

	secretsPath := "vitalsync.secrets.json"
	if v, ok := os.LookupEnv("VITALSYNC_SECRETS_PATH"); ok {
		secretsPath = v
	}

	listenAddr := "127.0.0.1:8089"
	if v, ok := os.LookupEnv("VITALSYNC_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	syncInterval := 15 * time.Minute
	if v, ok := os.LookupEnv("VITALSYNC_SYNC_INTERVAL"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("VITALSYNC_SYNC_INTERVAL has invalid duration %q: %w", v, err)
		}
		syncInterval = parsed
	}

	fetchLimit := 50
	if v, ok := os.LookupEnv("VITALSYNC_FETCH_LIMIT"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("VITALSYNC_FETCH_LIMIT has invalid value %q", v)
		}
		fetchLimit = parsed
	}

	platform := runtime.GOOS
	if v, ok := os.LookupEnv("VITALSYNC_DEVICE_PLATFORM"); ok {
		platform = v
	}

	identityToken := os.Getenv("VITALSYNC_IDENTITY_TOKEN")
	identityProvider := os.Getenv("VITALSYNC_IDENTITY_PROVIDER")
	if identityToken != "" && identityProvider == "" {
		return nil, fmt.Errorf("VITALSYNC_IDENTITY_PROVIDER is required when VITALSYNC_IDENTITY_TOKEN is set")
	}

	return &Config{
		APIBaseURL:     apiBaseURL,
		OwnerID:        ownerID,
		DBPath:         dbPath,
		SecretsPath:    secretsPath,
		ListenAddr:     listenAddr,
		SyncInterval:   syncInterval,
		FetchLimit:     fetchLimit,
		DevicePlatform: platform,

		IdentityToken:    identityToken,
		IdentityProvider: identityProvider,
	}, nil
}
