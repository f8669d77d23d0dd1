package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang/glog"
	"github.com/joho/godotenv"
)

type Config struct {
	DBHost    string
	DBPort    string
	DBName    string
	DBSSLMode string

	ServerPort    string
	JWTSecret     string
	JWTExpiration time.Duration

	RosterPath string
	// PrivilegedUser may terminate its own stale sessions at login.
	PrivilegedUser string

	ListenMode    string
	PollInterval  time.Duration
	WaitTimeout   time.Duration
	CursorRetries int
	LookupWorkers int
	UndoLimit     int

	StrictRowContext bool
	SQLLogLevel      string
}

const (
	ListenModeWait = "wait"
	ListenModePoll = "poll"
)

func Load() *Config {
	// .env is optional, real environment wins
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getEnv("DB_PORT", "5432"),
		DBName:           getEnv("DB_NAME", "work_allocation"),
		DBSSLMode:        getEnv("DB_SSLMODE", "disable"),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		JWTSecret:        getEnv("JWT_SECRET", "your-super-secret-key-change-in-production"),
		JWTExpiration:    getDuration("JWT_EXPIRATION", 12*time.Hour),
		RosterPath:       getEnv("ROSTER_PATH", "roster.csv"),
		PrivilegedUser:   getEnv("PRIVILEGED_USER", "postgres"),
		ListenMode:       getEnv("LISTEN_MODE", ListenModeWait),
		PollInterval:     getDuration("POLL_INTERVAL", time.Second),
		WaitTimeout:      getDuration("WAIT_TIMEOUT", 5*time.Second),
		CursorRetries:    getInt("CURSOR_RETRIES", 2),
		LookupWorkers:    getInt("LOOKUP_WORKERS", 4),
		UndoLimit:        getInt("UNDO_LIMIT", 0),
		StrictRowContext: getBool("ACCESS_STRICT_ROW_CONTEXT", false),
		SQLLogLevel:      getEnv("SQL_LOG_LEVEL", "warn"),
	}

	if cfg.ListenMode != ListenModeWait && cfg.ListenMode != ListenModePoll {
		glog.Warningf("unknown LISTEN_MODE %q, using %q", cfg.ListenMode, ListenModeWait)
		cfg.ListenMode = ListenModeWait
	}
	return cfg
}

// DSN is the server address without credentials. Every user connects with
// their own employee login, which is set on the parsed config and never
// written into this string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		glog.Warningf("invalid %s=%q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		glog.Warningf("invalid %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		glog.Warningf("invalid %s=%q, using %t", key, value, defaultValue)
		return defaultValue
	}
	return b
}
