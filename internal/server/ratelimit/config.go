package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ScopeCompile groups every endpoint that starts a compiler process.
const ScopeCompile = "compile"

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (supports prefix matching)
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
	Scope  string        // Endpoints with the same scope share one bucket per client
}

// Tier is a limit shared by a group of endpoints.
type Tier struct {
	Limit  int
	Window time.Duration
	Burst  int
}

// LoadConfig loads rate limiting configuration from environment variables.
func LoadConfig() *Config {
	enabled := getEnvBool("RATE_LIMIT_ENABLED", true)
	if !enabled {
		return &Config{
			Enabled: false,
		}
	}

	defaultLimit := getEnvInt("RATE_LIMIT_DEFAULT_LIMIT", 1000)
	defaultWindow := getEnvDuration("RATE_LIMIT_DEFAULT_WINDOW", time.Minute)
	cleanupInterval := getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute)

	compile := Tier{
		Limit:  getEnvInt("RATE_LIMIT_COMPILE_LIMIT", 30),
		Window: getEnvDuration("RATE_LIMIT_COMPILE_WINDOW", time.Minute),
		Burst:  getEnvInt("RATE_LIMIT_COMPILE_BURST", 5),
	}

	whitelist := parseIPList(getEnvString("RATE_LIMIT_WHITELIST", ""))
	blacklist := parseIPList(getEnvString("RATE_LIMIT_BLACKLIST", ""))

	return &Config{
		Enabled:         enabled,
		DefaultLimit:    defaultLimit,
		DefaultWindow:   defaultWindow,
		CleanupInterval: cleanupInterval,
		Whitelist:       whitelist,
		Blacklist:       blacklist,
		EndpointConfigs: DefaultEndpointConfigs(compile),
	}
}

// DefaultEndpointConfigs returns the endpoint-specific configurations.
// Every compile route draws from the same per-client bucket.
func DefaultEndpointConfigs(compile Tier) []EndpointConfig {
	tier := func(path, method string) EndpointConfig {
		return EndpointConfig{
			Path: path, Method: method,
			Limit: compile.Limit, Window: compile.Window, Burst: compile.Burst,
			Scope: ScopeCompile,
		}
	}
	return []EndpointConfig{
		// Tier 1: compiler invocations
		tier("/templates/", "POST"),
		tier("/compile", "POST"),
		tier("/compile-template-direct", "POST"),

		// Tier 2: configuration writes
		{Path: "/templates/", Method: "PUT", Limit: 100, Window: time.Minute, Burst: 10},

		// Tier 3: read operations - handled by default limit
		// Tier 4: health check (unlimited) - handled by special case in matcher
	}
}

// getEnvString gets an environment variable as a string with a default value.
func getEnvString(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer with a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as a boolean with a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as a duration with a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// parseIPList parses a comma-separated list of IP addresses into a map.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
