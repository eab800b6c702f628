// Package credential keeps the OpenRouter API key in the OS keychain so it
// does not have to live in the plain-text settings record.
package credential

import (
	"errors"
	"fmt"
	"os"

	zkr "github.com/zalando/go-keyring"
)

const (
	serviceName = "vivica"
	accountName = "openrouter-api-key"
)

// Get returns the stored key, or "" if none has been saved.
func Get() (string, error) {
	key, err := zkr.Get(serviceName, accountName)
	if errors.Is(err, zkr.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("keychain get: %w", err)
	}
	return key, nil
}

// Set stores key. An empty key removes any stored value.
func Set(key string) error {
	if key == "" {
		if err := zkr.Delete(serviceName, accountName); err != nil && !errors.Is(err, zkr.ErrNotFound) {
			return fmt.Errorf("keychain delete: %w", err)
		}
		return nil
	}
	if err := zkr.Set(serviceName, accountName, key); err != nil {
		return fmt.Errorf("keychain set: %w", err)
	}
	return nil
}

// Available returns true if the OS keychain is functional.
// Returns false if VIVICA_KEYRING_DISABLED=1 is set (headless/CI/containers).
func Available() bool {
	if os.Getenv("VIVICA_KEYRING_DISABLED") == "1" {
		return false
	}
	testService := "vivica-keyring-probe"
	testAccount := "probe"
	if err := zkr.Set(testService, testAccount, "ok"); err != nil {
		return false
	}
	_ = zkr.Delete(testService, testAccount)
	return true
}
