package ratelimit

import (
	"strings"
	"time"
)

// Defaults for API traffic: 100 requests per client every 15 minutes.
const (
	DefaultLimit           = 100
	DefaultWindow          = 15 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute
	DefaultPathPrefix      = "/api/"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (supports prefix matching)
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	// PathPrefix restricts limiting to matching paths. Empty limits every path.
	PathPrefix      string
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// DefaultConfig returns the API limits with the endpoint overrides applied.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		DefaultLimit:    DefaultLimit,
		DefaultWindow:   DefaultWindow,
		CleanupInterval: DefaultCleanupInterval,
		PathPrefix:      DefaultPathPrefix,
		Whitelist:       map[string]bool{},
		Blacklist:       map[string]bool{},
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the default endpoint-specific configurations.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// each accepted request starts a pipeline run
		{Path: "/api/research", Method: "POST", Limit: 10, Window: time.Hour, Burst: 3},

		{Path: "/api/users/register", Method: "POST", Limit: 20, Window: 15 * time.Minute, Burst: 5},
		{Path: "/api/users/login", Method: "POST", Limit: 20, Window: 15 * time.Minute, Burst: 5},
	}
}

// ParseIPList parses a comma-separated list of IP addresses into a set.
func ParseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			result[ip] = true
		}
	}
	return result
}
