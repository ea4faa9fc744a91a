package registry

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/opensesh/sesh/providers/ai"
	"github.com/opensesh/sesh/providers/ai/anthropic"
	"github.com/opensesh/sesh/providers/ai/openai"
)

// displayNames maps the built-in vendor names to human-readable labels.
var displayNames = map[string]string{
	anthropic.ProviderName: "Anthropic",
	openai.ProviderName:    "OpenAI",
}

// Info describes one registered provider.
type Info struct {
	Name            string   `json:"name" yaml:"name"`
	DisplayName     string   `json:"display_name" yaml:"display_name"`
	Active          bool     `json:"active" yaml:"active"`
	SupportsTools   bool     `json:"supports_tools" yaml:"supports_tools"`
	Model           string   `json:"model" yaml:"model"`
	AvailableModels []string `json:"available_models" yaml:"available_models"`
}

// Registry holds named providers and the active-provider selection.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]ai.Provider
	order     []string
	active    string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{providers: map[string]ai.Provider{}}
}

// Register adds provider under name, replacing any provider already
// registered under it. The first provider registered becomes active.
func (r *Registry) Register(name string, provider ai.Provider) error {
	if name == "" {
		return errors.New("provider name is required")
	}
	if provider == nil {
		return errors.New("provider " + name + " is nil")
	}
	r.register(name, provider)
	return nil
}

// register stores an already validated provider.
func (r *Registry) register(name string, provider ai.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.providers[name] = provider
	if r.active == "" {
		r.active = name
	}
}

func (r *Registry) Get(name string) (ai.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.providers[name]
	return provider, ok
}

// Active returns the active provider, if any provider is registered.
func (r *Registry) Active() (ai.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.providers[r.active]
	return provider, ok
}

func (r *Registry) ActiveName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// SetActive selects the active provider. It fails with a NotConfigured error
// when no provider is registered under name.
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return ai.NewNotConfiguredError(name)
	}
	r.active = name
	return nil
}

// Resolve returns the provider registered under name, or the active one when
// name is empty.
func (r *Registry) Resolve(name string) (ai.Provider, error) {
	if name == "" {
		provider, ok := r.Active()
		if !ok {
			return nil, ai.NewNotConfiguredError("no provider registered")
		}
		return provider, nil
	}
	provider, ok := r.Get(name)
	if !ok {
		return nil, ai.NewNotConfiguredError(name)
	}
	return provider, nil
}

// SetModel changes the model of the provider registered under name.
func (r *Registry) SetModel(name, model string) error {
	provider, ok := r.Get(name)
	if !ok {
		return ai.NewNotConfiguredError(name)
	}
	provider.SetModel(model)
	return nil
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Infos describes every registered provider in registration order.
func (r *Registry) Infos() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		provider := r.providers[name]
		display, ok := displayNames[name]
		if !ok {
			display = name
		}
		infos = append(infos, Info{
			Name:            name,
			DisplayName:     display,
			Active:          name == r.active,
			SupportsTools:   provider.SupportsTools(),
			Model:           provider.Model(),
			AvailableModels: provider.AvailableModels(),
		})
	}
	return infos
}

// FromEnv registers every built-in vendor whose API key environment variable
// is set (ANTHROPIC_API_KEY, OPENAI_API_KEY), Anthropic first. A warning is
// logged when none is.
func FromEnv(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	registry := New()

	for _, port := range []*ai.Port{anthropic.New(), openai.New()} {
		if !port.HasAPIKey() {
			continue
		}
		registry.register(port.Name(), port)
		logger.Info("initialized provider", "provider", port.Name(), "model", port.Model())
	}

	if registry.Len() == 0 {
		logger.Warn("no AI providers configured, set ANTHROPIC_API_KEY or OPENAI_API_KEY")
	}
	return registry
}
