// Package config provides centralized configuration management.
package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TetherEnv holds all tether environment variables.
type TetherEnv struct {
	// ServerURL is the orchestration server base URL (TETHER_SERVER_URL)
	ServerURL string

	// SessionID is the default session to attach (TETHER_SESSION_ID)
	SessionID string

	// Token is the bearer token for the server (TETHER_TOKEN)
	Token string

	// PageSize is the pagination window (TETHER_PAGE_SIZE)
	PageSize int

	// OperationTimeout bounds remote mutations (TETHER_OP_TIMEOUT)
	OperationTimeout time.Duration

	// Debug enables verbose logging (TETHER_DEBUG)
	Debug bool
}

var (
	env     *TetherEnv
	envOnce sync.Once
)

// DefaultPageSize is used when TETHER_PAGE_SIZE is unset or invalid.
const DefaultPageSize = 50

// DefaultOperationTimeout bounds remote mutations. Orchestration calls can
// trigger server-side automations, so this is deliberately generous.
const DefaultOperationTimeout = 15 * time.Second

// Env returns the singleton environment configuration.
// Thread-safe, loads once on first call.
func Env() *TetherEnv {
	envOnce.Do(func() {
		env = &TetherEnv{
			ServerURL:        getEnvDefault("TETHER_SERVER_URL", "http://localhost:7600"),
			SessionID:        os.Getenv("TETHER_SESSION_ID"),
			Token:            os.Getenv("TETHER_TOKEN"),
			PageSize:         getEnvInt("TETHER_PAGE_SIZE", DefaultPageSize),
			OperationTimeout: getEnvDuration("TETHER_OP_TIMEOUT", DefaultOperationTimeout),
			Debug:            os.Getenv("TETHER_DEBUG") == "1",
		}
	})
	return env
}

// ResetEnv resets the cached environment (for testing).
func ResetEnv() {
	envOnce = sync.Once{}
	env = nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	if n == 0 {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Paths holds standard tether directory paths.
type Paths struct {
	// Home is the tether home directory (~/.tether)
	Home string

	// Data is the data directory (~/.tether/data)
	Data string

	// Rules is the permission rules file (~/.tether/rules)
	Rules string
}

var (
	paths     *Paths
	pathsOnce sync.Once
)

// GetPaths returns the singleton paths configuration.
func GetPaths() *Paths {
	pathsOnce.Do(func() {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		tetherHome := filepath.Join(home, ".tether")

		paths = &Paths{
			Home:  tetherHome,
			Data:  filepath.Join(tetherHome, "data"),
			Rules: filepath.Join(tetherHome, "rules"),
		}
	})
	return paths
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
