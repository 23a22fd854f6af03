package config

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService is the OS keyring service provider API keys are stored under.
const KeyringService = "jobagent"

// SetProviderKey stores an API key for provider in the OS keyring.
func SetProviderKey(provider, key string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return errors.New("provider name is required")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("api key is empty")
	}
	return keyring.Set(KeyringService, provider, strings.TrimSpace(key))
}

// DeleteProviderKey removes a stored key. Missing keys are not an error.
func DeleteProviderKey(provider string) error {
	err := keyring.Delete(KeyringService, strings.ToLower(provider))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// applyKeyring fills an empty provider key from the OS keyring.
// The config file and environment always win.
func (c *Config) applyKeyring() {
	if c.Provider.APIKey != "" || c.Provider.Name == "" || c.Provider.Name == "ollama" {
		return
	}
	key, err := keyring.Get(KeyringService, strings.ToLower(c.Provider.Name))
	switch {
	case err == nil:
		c.Provider.APIKey = key
	case errors.Is(err, keyring.ErrNotFound):
	default:
		slog.Debug("keyring unavailable", "error", err)
	}
}
