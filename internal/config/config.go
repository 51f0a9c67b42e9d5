package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string // empty disables the gRPC health server

	// DB
	Env    string // "dev" | "prod"
	DBPath string // e.g. "./data/gymgate.db"

	// Credential issuance
	CredentialStore string // "sqlite" | "postgres"
	PostgresDSN     string

	// Display-name cache; empty RedisAddr disables it.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NameCacheTTL  time.Duration

	KnownStations        []string
	AllowUnknownStations bool

	LegacyLookup  string // "fields" | "raw"
	LookupTimeout time.Duration

	// Audit retention
	AuditRetentionDays int // 0 = keep forever
	PruneIntervalHours int // how often the pruner runs (default 6)

	JWTSecret string // empty disables operator auth
	LogLevel  string
}

// FromEnv loads an optional .env file and then reads GYMGATE_* variables.
// Invalid values fall back to their defaults.
func FromEnv() Config {
	_ = godotenv.Load()

	env := strings.ToLower(getenvDefault("GYMGATE_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	credStore := strings.ToLower(getenvDefault("GYMGATE_CREDENTIAL_STORE", "sqlite"))
	if credStore != "sqlite" && credStore != "postgres" {
		credStore = "sqlite"
	}

	legacy := strings.ToLower(getenvDefault("GYMGATE_LEGACY_LOOKUP", "fields"))
	if legacy != "fields" && legacy != "raw" {
		legacy = "fields"
	}

	return Config{
		HTTPAddr: getenvDefault("GYMGATE_HTTP_ADDR", ":8080"),
		GRPCAddr: getenvRaw("GYMGATE_GRPC_ADDR", ":9090"),
		Env:      env,
		DBPath:   getenvDefault("GYMGATE_DB_PATH", "./data/gymgate.db"),

		CredentialStore: credStore,
		PostgresDSN:     os.Getenv("GYMGATE_POSTGRES_DSN"),

		RedisAddr:     strings.TrimSpace(os.Getenv("GYMGATE_REDIS_ADDR")),
		RedisPassword: os.Getenv("GYMGATE_REDIS_PASSWORD"),
		RedisDB:       getenvInt("GYMGATE_REDIS_DB", 0),
		NameCacheTTL:  time.Duration(getenvInt("GYMGATE_NAME_CACHE_TTL_SECONDS", 300)) * time.Second,

		KnownStations:        splitCSV(os.Getenv("GYMGATE_KNOWN_STATIONS")),
		AllowUnknownStations: getenvBool("GYMGATE_ALLOW_UNKNOWN_STATIONS"),

		LegacyLookup:  legacy,
		LookupTimeout: time.Duration(getenvInt("GYMGATE_LOOKUP_TIMEOUT_MS", 3000)) * time.Millisecond,

		AuditRetentionDays: getenvInt("GYMGATE_AUDIT_RETENTION_DAYS", 90),
		PruneIntervalHours: getenvInt("GYMGATE_PRUNE_INTERVAL_HOURS", 6),

		JWTSecret: os.Getenv("GYMGATE_JWT_SECRET"),
		LogLevel:  getenvDefault("GYMGATE_LOG_LEVEL", "info"),
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// getenvRaw distinguishes unset (default) from set-but-empty (disabled).
func getenvRaw(key, def string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return strings.TrimSpace(v)
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvBool(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	return strings.EqualFold(v, "true") || v == "1"
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
