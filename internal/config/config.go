package config

import (
	"os"
	"strings"

	"paygate/internal/domain/payment"
)

// Config is loaded once from the environment at process start and treated
// as immutable afterward.
type Config struct {
	ServiceName string
	Env         string
	Addr        string

	// BaseURL is the public base URL of this service, used to build the
	// success/failure/callback URLs handed to gateways.
	BaseURL string

	// Store selects the payment repository: memory, sqlite or redis.
	Store      string
	SQLitePath string
	RedisURL   string

	// Backends lists the enabled backend keys with their option bags.
	Backends map[string]payment.Settings
}

// Load reads the configuration from environment variables. Backend keys
// come from PAYGATE_BACKENDS (comma-separated); each backend's option bag
// is collected from PAYGATE_BACKEND_<KEY>_<OPTION> variables, with OPTION
// lowercased (PAYGATE_BACKEND_DUMMY_METHOD=REST -> dummy's "method").
func Load() *Config {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "paygate"),
		Env:         getEnv("ENV", "dev"),
		Addr:        getEnv("ADDR", ":8080"),
		BaseURL:     strings.TrimRight(getEnv("PAYGATE_BASE_URL", "http://localhost:8080"), "/"),
		Store:       getEnv("PAYGATE_STORE", "memory"),
		SQLitePath:  getEnv("PAYGATE_SQLITE_PATH", "paygate.db"),
		RedisURL:    getEnv("REDIS_URL", "127.0.0.1:6379"),
		Backends:    make(map[string]payment.Settings),
	}

	for _, key := range strings.Split(getEnv("PAYGATE_BACKENDS", "dummy"), ",") {
		key = strings.TrimSpace(strings.ToLower(key))
		if key == "" {
			continue
		}
		cfg.Backends[key] = backendSettings(key)
	}

	return cfg
}

// Production reports whether paywall calls should hit production endpoints
// instead of sandbox ones.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// Backend returns the option bag for key; absent backends get an empty bag
// so callers can rely on Settings.Get defaults.
func (c *Config) Backend(key string) payment.Settings {
	if s, ok := c.Backends[key]; ok {
		return s
	}
	return payment.Settings{}
}

func backendSettings(key string) payment.Settings {
	prefix := "PAYGATE_BACKEND_" + strings.ToUpper(key) + "_"
	settings := payment.Settings{}
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		option := strings.ToLower(strings.TrimPrefix(name, prefix))
		if option == "" {
			continue
		}
		settings[option] = value
	}
	return settings
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
