// Package config resolves runtime settings from the environment.
//
// A .env file in the working directory is loaded first; variables already set
// in the process environment take precedence over it.
//
// Data directory:
//
//	Linux:   ~/.config/vivica/
//	macOS:   ~/Library/Application Support/Vivica/
//	Windows: %AppData%\Vivica\
//
// Set VIVICA_DATA_DIR to override.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreJSON   = "json"
)

// DefaultAddr is the listen address of the HTTP server.
const DefaultAddr = ":8080"

// Config holds the resolved settings.
type Config struct {
	GeminiAPIKey     string
	GeminiBaseURL    string
	OpenRouterAPIKey string
	DataDir          string
	Store            string
	Addr             string
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	c := Config{
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:    os.Getenv("GEMINI_BASE_URL"),
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
		DataDir:          os.Getenv("VIVICA_DATA_DIR"),
		Store:            os.Getenv("VIVICA_STORE"),
		Addr:             os.Getenv("VIVICA_ADDR"),
	}
	if c.DataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return Config{}, err
		}
		c.DataDir = dir
	}
	if c.Store == "" {
		c.Store = StoreSQLite
	}
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	return c, c.Validate()
}

// Validate checks field values that have a fixed set of options.
func (c Config) Validate() error {
	switch c.Store {
	case StoreSQLite, StoreJSON:
		return nil
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, StoreSQLite, StoreJSON)
	}
}

// DBPath is the SQLite database location inside the data directory.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "vivica.db")
}

// RecordsDir is the JSON record directory inside the data directory.
func (c Config) RecordsDir() string {
	return filepath.Join(c.DataDir, "records")
}

func defaultDataDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}
	// Linux: lowercase per XDG convention
	if runtime.GOOS == "linux" {
		return filepath.Join(configDir, "vivica"), nil
	}
	return filepath.Join(configDir, "Vivica"), nil
}
