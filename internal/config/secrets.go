package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Secrets is the local secrets file, kept separate from config.json so the
// config can be shared or checked in without leaking keys.
//
// NOTE: keep this file chmod 0600.
type Secrets struct {
	// ProviderAPIKeys maps provider id -> API key.
	ProviderAPIKeys map[string]string `json:"provider_api_keys,omitempty"`

	// BraveSearchAPIKey is the Brave web search subscription token.
	BraveSearchAPIKey string `json:"brave_search_api_key,omitempty"`
}

// DefaultSecretsPath returns ~/.research-agent/secrets.json.
func DefaultSecretsPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "research-agent.secrets.json"
	}
	return filepath.Join(home, ".research-agent", "secrets.json")
}

func LoadSecrets(path string) (*Secrets, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Secrets
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ProviderKey returns the API key for a provider id.
func (s *Secrets) ProviderKey(providerID string) (string, error) {
	if s == nil {
		return "", errors.New("nil secrets")
	}
	key := strings.TrimSpace(s.ProviderAPIKeys[strings.TrimSpace(providerID)])
	if key == "" {
		return "", errors.New("missing provider api key")
	}
	return key, nil
}
