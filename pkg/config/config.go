// Package config loads the dispensing engine's environment-driven
// configuration surface (spec.md §6).
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds the service configuration for cmd/dispensed and cmd/dispensectl.
type Config struct {
	ClaimSwitchURL  string
	PDMPProviderURL string
	// RegistryURLByState maps a two-letter state code to its IIS registry URL,
	// populated from REGISTRY_URL_<STATE> environment variables.
	RegistryURLByState map[string]string
	SuggestorProvider  string
	DBURL              string
	// RedisURL selects the distributed Locker backend (pkg/concurrency/redislock)
	// for multi-worker deployments. Left empty, cmd/dispensed falls back to the
	// in-process KeyedLocker, correct for a single-node deployment only.
	RedisURL       string
	ClockSkewMaxMS int64
	LogLevel       string

	// JWTSigningSecret verifies bearer tokens issued to pharmacy staff.
	// Falls back to a fixed dev value so cmd/dispensed boots out of the box;
	// production deployments must set JWT_SIGNING_SECRET.
	JWTSigningSecret string
	// HTTPAddr is where the engine's API is served; HealthAddr is the
	// separate liveness-probe listener, mirroring the split the rest of
	// the stack uses between its main port and its health port.
	HTTPAddr   string
	HealthAddr string
}

const registryURLPrefix = "REGISTRY_URL_"

// Load reads configuration from the process environment, applying the same
// defaults-with-fallback pattern the rest of the stack uses for local
// development.
func Load() *Config {
	cfg := &Config{
		ClaimSwitchURL:     getenvDefault("CLAIM_SWITCH_URL", "https://claimswitch.local/v1"),
		PDMPProviderURL:    getenvDefault("PDMP_PROVIDER_URL", "https://pdmp.local/v1"),
		RegistryURLByState: loadRegistryURLs(os.Environ()),
		SuggestorProvider:  getenvDefault("SUGGESTOR_PROVIDER", "none"),
		// DBURL is left empty by default: cmd/dispensed falls back to a
		// single-file SQLite "lite mode" store when no postgres DSN is
		// configured, the same env-driven degrade the rest of the stack uses.
		DBURL:              getenvDefault("DB_URL", ""),
		RedisURL:           getenvDefault("REDIS_URL", ""),
		ClockSkewMaxMS:     getenvInt64Default("CLOCK_SKEW_MAX_MS", 5000),
		LogLevel:           getenvDefault("LOG_LEVEL", "INFO"),
		JWTSigningSecret:   getenvDefault("JWT_SIGNING_SECRET", "dev-insecure-signing-secret"),
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		HealthAddr:         getenvDefault("HEALTH_ADDR", ":8081"),
	}
	return cfg
}

func loadRegistryURLs(environ []string) map[string]string {
	urls := make(map[string]string)
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, registryURLPrefix) {
			continue
		}
		state := strings.TrimPrefix(k, registryURLPrefix)
		if state == "" || v == "" {
			continue
		}
		urls[state] = v
	}
	return urls
}

// RegistryURL returns the configured IIS registry URL for a two-letter state
// code, or ok=false when the pharmacy hasn't configured that state.
func (c *Config) RegistryURL(state string) (string, bool) {
	u, ok := c.RegistryURLByState[strings.ToUpper(state)]
	return u, ok
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64Default(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
