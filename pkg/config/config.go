package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trading core.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	// Gateway settings file (YAML), see LoadGateways.
	GatewayConfig string
	// Overrides aging_exchanges from the gateway file when AGING_EXCHANGES is
	// set, even to "". Nil when unset.
	AgingExchanges *[]string
	// Registry health check period; 0 disables it.
	HealthInterval time.Duration

	// Log and data directories
	LogDir    string
	LoadDir   string
	BackupDir string

	// Order/trade journal; empty disables it.
	JournalDBPath string

	// Auth
	JWTSecret string

	Debug bool
	Env   string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	var aging *[]string
	if raw, ok := os.LookupEnv("AGING_EXCHANGES"); ok {
		names := splitAndTrim(strings.ToUpper(raw))
		if _, err := ParseExchanges(names); err != nil {
			return nil, fmt.Errorf("AGING_EXCHANGES: %w", err)
		}
		aging = &names
	}

	return &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:       getEnv("GRPC_ADDR", ":9090"),
		GatewayConfig:  getEnv("GATEWAY_CONFIG", "./config/gateways.yaml"),
		AgingExchanges: aging,
		HealthInterval: getEnvDuration("GATEWAY_HEALTH_INTERVAL", 30*time.Second),
		LogDir:         getEnv("LOG_DIR", "./logs"),
		LoadDir:        getEnv("LOAD_DIR", "./orders"),
		BackupDir:      getEnv("BACKUP_DIR", "./backup"),
		JournalDBPath:  os.Getenv("JOURNAL_DB_PATH"),
		JWTSecret:      getEnv("JWT_SECRET", "dev-secret"),
		Debug:          getEnvBool("DEBUG", false),
		Env:            strings.ToLower(getEnv("ENV", "development")),
	}, nil
}

// IsProduction reports whether ENV is "production".
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
