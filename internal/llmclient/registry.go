// internal/llmclient/registry.go
package llmclient

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/seeclaw/internal/config"
)

// Registry holds every configured provider and resolves agent roles to a
// provider plus call parameters. The lock only covers the lookup; the model
// call itself happens outside of it.
type Registry struct {
	mu        sync.Mutex
	logger    *zap.Logger
	providers map[string]Provider
	active    string
	cfg       config.LLMConfig
}

// NewRegistry creates an empty registry bound to the llm configuration.
func NewRegistry(cfg config.LLMConfig, logger *zap.Logger) *Registry {
	return &Registry{
		logger:    logger.Named("llm_registry"),
		providers: make(map[string]Provider),
		active:    cfg.ActiveProvider,
		cfg:       cfg,
	}
}

// NewRegistryFromConfig builds one provider per configured entry.
func NewRegistryFromConfig(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*Registry, error) {
	r := NewRegistry(cfg, logger)
	for id, entry := range cfg.Providers {
		p, err := NewProvider(ctx, id, entry, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create provider %q: %w", id, err)
		}
		r.Register(p)
	}
	return r, nil
}

// Register adds or replaces a provider under its Name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Active returns the active provider.
func (r *Registry) Active() (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked()
}

func (r *Registry) activeLocked() (Provider, error) {
	p, ok := r.providers[r.active]
	if !ok {
		return nil, fmt.Errorf("%w: active provider %q not found in registry", ErrUnknownProvider, r.active)
	}
	return p, nil
}

// SetActive switches the fallback provider.
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("%w: provider %q not registered", ErrUnknownProvider, name)
	}
	r.active = name
	return nil
}

// Names lists the registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CallConfigForRole resolves a role to a provider and call parameters.
//
// A configured role entry wins: its provider must be registered, its
// temperature falls back to the provider's and then to the default. Roles
// without an entry use the active provider with its own model and streaming on.
func (r *Registry) CallConfigForRole(role ModelRole) (Provider, CallConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.cfg.Roles.Lookup(string(role))
	if !ok {
		switch role {
		case RoleRouting, RoleChat, RoleTools, RoleVision:
		default:
			r.logger.Warn("Unknown role, falling back to active provider", zap.String("role", string(role)))
		}
	}

	if ok {
		p, found := r.providers[entry.Provider]
		if !found {
			return nil, CallConfig{}, fmt.Errorf("%w: role %q references provider %q", ErrUnknownProvider, role, entry.Provider)
		}
		pc := r.cfg.Providers[entry.Provider]
		temperature := pc.EffectiveTemperature()
		if entry.Temperature != nil {
			temperature = *entry.Temperature
		}
		model := entry.Model
		if model == "" {
			model = pc.Model
		}
		cc := CallConfig{
			Model:       model,
			Stream:      entry.StreamEnabled(),
			Temperature: temperature,
			MaxTokens:   pc.MaxTokens,
		}
		r.logger.Debug("Resolved role config",
			zap.String("role", string(role)),
			zap.String("provider", entry.Provider),
			zap.String("model", cc.Model),
			zap.Bool("stream", cc.Stream),
			zap.Float64("temperature", cc.Temperature))
		return p, cc, nil
	}

	p, err := r.activeLocked()
	if err != nil {
		return nil, CallConfig{}, err
	}
	cc := CallConfig{Stream: true, Temperature: config.DefaultTemperature}
	if pc, found := r.cfg.Providers[r.active]; found {
		cc.Model = pc.Model
		cc.Temperature = pc.EffectiveTemperature()
		cc.MaxTokens = pc.MaxTokens
	}
	r.logger.Debug("Role not configured, using active provider",
		zap.String("role", string(role)),
		zap.String("provider", r.active),
		zap.String("model", cc.Model))
	return p, cc, nil
}
