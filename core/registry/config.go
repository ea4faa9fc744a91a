package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opensesh/sesh/providers/ai"
	"github.com/opensesh/sesh/providers/ai/anthropic"
	"github.com/opensesh/sesh/providers/ai/openai"
)

// ProviderConfig describes one provider to build. Zero values keep the
// vendor defaults; an empty APIKey falls back to the vendor's environment
// variable.
type ProviderConfig struct {
	Name        string   `yaml:"name" json:"name"`
	APIKey      string   `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Model       string   `yaml:"model,omitempty" json:"model,omitempty"`
	BaseURL     string   `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	MaxTokens   *int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
}

// File is the YAML configuration file layout:
//
//	active: openai
//	providers:
//	  - name: anthropic
//	    model: claude-3-5-haiku-20241022
//	  - name: openai
//	    base_url: http://localhost:11434/v1
//	    temperature: 0.2
type File struct {
	Active    string           `yaml:"active,omitempty"`
	Providers []ProviderConfig `yaml:"providers"`
}

// FromConfig builds a provider for a built-in vendor. Unknown names yield a
// NotConfigured error.
func FromConfig(config ProviderConfig) (*ai.Port, error) {
	var port *ai.Port
	switch config.Name {
	case anthropic.ProviderName:
		port = anthropic.New()
	case openai.ProviderName:
		port = openai.New()
	default:
		return nil, ai.NewNotConfiguredError(config.Name)
	}

	if config.APIKey != "" {
		port.WithAPIKey(config.APIKey)
	}
	if config.BaseURL != "" {
		port.WithBaseURL(config.BaseURL)
	}
	if config.Model != "" {
		port.SetModel(config.Model)
	}
	if config.MaxTokens != nil {
		port.SetMaxTokens(*config.MaxTokens)
	}
	if config.Temperature != nil {
		port.SetTemperature(*config.Temperature)
	}
	return port, nil
}

// FromConfigs registers a provider per config, in order.
func FromConfigs(configs []ProviderConfig) (*Registry, error) {
	registry := New()
	for _, config := range configs {
		port, err := FromConfig(config)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(config.Name, port); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider config: %w", err)
	}
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse provider config %s: %w", path, err)
	}
	return &file, nil
}

// FromFile loads path and builds the registry it describes, honoring its
// active entry.
func FromFile(path string) (*Registry, error) {
	file, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	registry, err := FromConfigs(file.Providers)
	if err != nil {
		return nil, err
	}
	if file.Active != "" {
		if err := registry.SetActive(file.Active); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
