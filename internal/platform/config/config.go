package config

import (
	"os"
	"strings"
	"time"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string
	HTTPPort    string
	PostgresDSN string
	RedisAddr   string

	OracleURL        string
	CallbackEndpoint string

	OwnerPrincipal   string
	ManagerPrincipal string
	OraclePrincipal  string

	RefundOnRejection    bool
	EnableOutboxRelay    bool
	EnableTimeoutSweeper bool
	VerificationTTL      time.Duration
	WorkerInterval       time.Duration
}

func Load() (Config, error) {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "tollgate"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	owner := os.Getenv("OWNER_PRINCIPAL")
	if owner == "" {
		owner = "owner"
	}

	manager := os.Getenv("MANAGER_PRINCIPAL")
	if manager == "" {
		manager = "subscription-manager"
	}

	oraclePrincipal := os.Getenv("ORACLE_PRINCIPAL")
	if oraclePrincipal == "" {
		oraclePrincipal = "oracle"
	}

	return Config{
		ServiceName: service,
		HTTPPort:    port,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),

		OracleURL:        os.Getenv("ORACLE_URL"),
		CallbackEndpoint: os.Getenv("CALLBACK_ENDPOINT"),

		OwnerPrincipal:   owner,
		ManagerPrincipal: manager,
		OraclePrincipal:  oraclePrincipal,

		RefundOnRejection:    envBool("REFUND_ON_REJECTION", false),
		EnableOutboxRelay:    envBool("ENABLE_OUTBOX_RELAY", true),
		EnableTimeoutSweeper: envBool("ENABLE_TIMEOUT_SWEEPER", false),
		VerificationTTL:      envDuration("VERIFICATION_TTL", 24*time.Hour),
		WorkerInterval:       envDuration("WORKER_INTERVAL", 5*time.Second),
	}, nil
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
