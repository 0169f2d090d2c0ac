package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer        string        // Issuer label for session tokens and authenticator apps
	SessionSecret string        // HMAC secret for session tokens (min 32 bytes; generated if empty)
	SessionTTL    time.Duration // Session token lifetime (default: 12h)

	DatabaseFile string // Path to SQLite database file (default: ./warden.db)
	PepperFile   string // Path to password pepper file (default: ./pepper)
	SealKeyFile  string // Optional: path to the TOTP secret sealing key file

	RedisAddr string // Optional: redis address for the shared MFA attempt counter

	InviteTTL        time.Duration // Invite lifetime (default: 72h)
	ResetTTL         time.Duration // Reset token lifetime (default: 1h)
	MFAMaxAttempts   int           // Failed challenges allowed per window (default: 5)
	MFAAttemptWindow time.Duration // Challenge lockout window (default: 5m)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expiry sweep interval (default: 1h)
}

func LoadConfig() Config {
	return Config{
		Issuer:        getEnvOrDefault("WARDEN_ISSUER", "warden"),
		SessionSecret: os.Getenv("WARDEN_SESSION_SECRET"),
		SessionTTL:    getEnvDurationOrDefault("WARDEN_SESSION_TTL", 12*time.Hour),

		DatabaseFile: getEnvOrDefault("WARDEN_DATABASE_FILE", "warden.db"),
		PepperFile:   getEnvOrDefault("WARDEN_PEPPER_FILE", "pepper"),
		SealKeyFile:  os.Getenv("WARDEN_SEAL_KEY_FILE"),

		RedisAddr: os.Getenv("WARDEN_REDIS_ADDR"),

		InviteTTL:        getEnvDurationOrDefault("WARDEN_INVITE_TTL", 72*time.Hour),
		ResetTTL:         getEnvDurationOrDefault("WARDEN_RESET_TTL", 1*time.Hour),
		MFAMaxAttempts:   getEnvIntOrDefault("WARDEN_MFA_MAX_ATTEMPTS", 5),
		MFAAttemptWindow: getEnvDurationOrDefault("WARDEN_MFA_ATTEMPT_WINDOW", 5*time.Minute),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	return defaultValue
}
