package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	StorageOracle = "oracle"
	StorageMemory = "memory"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  OracleConfig
	JWT       JWTConfig
	Billing   BillingConfig
	Invoicing InvoicingConfig
	NATS      NATSConfig
	Cache     CacheConfig
	Storage   string
	// OwnershipSeed is a JSON file of ownership tables loaded by the memory backend
	OwnershipSeed string
	CORS          []string
	LogLevel      string
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxHeaderBytes  int
	ShutdownTimeout time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret string
	// PrivilegedRole is the roles claim value allowed to override the
	// pending balance guard and trigger billing runs
	PrivilegedRole string
}

// BillingConfig drives the scheduled billing run
type BillingConfig struct {
	Tenants        []string
	Concurrency    int
	Interval       time.Duration
	CurrencyPlaces int32
}

// InvoicingConfig points at the external ledger. An empty BaseURL keeps
// invoice numbers local.
type InvoicingConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// NATSConfig enables audit and property release events. An empty URL
// logs events instead.
type NATSConfig struct {
	URL           string
	Stream        string
	SubjectPrefix string
}

// CacheConfig sizes the ownership table cache
type CacheConfig struct {
	MaxEntries int64
	TTL        time.Duration
}

// Load loads configuration from environment variables, reading a .env file
// first when one exists.
// Panics if required configuration is missing
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	storage := strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", StorageOracle))
	if storage != StorageOracle && storage != StorageMemory {
		panic(fmt.Sprintf("unsupported STORAGE_BACKEND %q", storage))
	}

	return &Config{
		Server: ServerConfig{
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getDurationOrDefault("SERVER_IDLE_TIMEOUT", 60*time.Second),
			MaxHeaderBytes:  getIntOrDefault("SERVER_MAX_HEADER_BYTES", 1<<20),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: OracleConfig{
			Host:            getEnvOrDefault("ORACLE_HOST", "localhost"),
			Port:            getEnvOrDefault("ORACLE_PORT", "1521"),
			Service:         getEnvOrDefault("ORACLE_SERVICE", "ORCL"),
			User:            os.Getenv("ORACLE_USER"),
			Password:        os.Getenv("ORACLE_PASSWORD"),
			MaxOpenConns:    getIntOrDefault("ORACLE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntOrDefault("ORACLE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationOrDefault("ORACLE_CONN_MAX_LIFETIME", 5*time.Minute),
			WalletPath:      os.Getenv("ORACLE_WALLET_PATH"),
			TNSAlias:        os.Getenv("ORACLE_TNS_ALIAS"),
		},
		JWT: JWTConfig{
			Secret:         requireEnv("JWT_SECRET"),
			PrivilegedRole: getEnvOrDefault("JWT_PRIVILEGED_ROLE", "billing_admin"),
		},
		Billing: BillingConfig{
			Tenants:        getStringSliceOrDefault("BILLING_TENANTS", nil),
			Concurrency:    getIntOrDefault("BILLING_CONCURRENCY", 4),
			Interval:       getDurationOrDefault("BILLING_INTERVAL", time.Hour),
			CurrencyPlaces: int32(getIntOrDefault("BILLING_CURRENCY_PLACES", 2)),
		},
		Invoicing: InvoicingConfig{
			BaseURL: os.Getenv("INVOICING_BASE_URL"),
			Token:   os.Getenv("INVOICING_TOKEN"),
			Timeout: getDurationOrDefault("INVOICING_TIMEOUT", 10*time.Second),
		},
		NATS: NATSConfig{
			URL:           os.Getenv("NATS_URL"),
			Stream:        getEnvOrDefault("NATS_STREAM", "LEASEBILL"),
			SubjectPrefix: getEnvOrDefault("NATS_SUBJECT_PREFIX", "leasebill"),
		},
		Cache: CacheConfig{
			MaxEntries: int64(getIntOrDefault("OWNERSHIP_CACHE_MAX_ENTRIES", 10000)),
			TTL:        getDurationOrDefault("OWNERSHIP_CACHE_TTL", 5*time.Minute),
		},
		Storage:       storage,
		OwnershipSeed: os.Getenv("OWNERSHIP_SEED_FILE"),
		CORS:          getStringSliceOrDefault("CORS_ALLOWED_ORIGINS", nil),
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
	}
}

// requireEnv returns the value of the environment variable or panics if not set
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getStringSliceOrDefault splits a comma separated variable, dropping blanks
func getStringSliceOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
