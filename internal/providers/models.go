package providers

import (
	"fmt"
	"sync"
)

// ModelKind is the closed set of model families a bot can be configured with.
type ModelKind string

const (
	ModelGPT    ModelKind = "gpt"
	ModelClaude ModelKind = "claude"
	ModelGemini ModelKind = "gemini"
)

// DefaultModelKind is used when a bot is created without an explicit model.
const DefaultModelKind = ModelClaude

// gatewayModels maps each kind to its OpenRouter model ID.
var gatewayModels = map[ModelKind]string{
	ModelGPT:    "openai/gpt-4-turbo",
	ModelClaude: "anthropic/claude-3.5-sonnet",
	ModelGemini: "google/gemini-pro-1.5",
}

// AllModelKinds returns every supported kind in display order.
func AllModelKinds() []ModelKind {
	return []ModelKind{ModelGPT, ModelClaude, ModelGemini}
}

// ParseModelKind validates a stored or user-supplied model id.
func ParseModelKind(s string) (ModelKind, error) {
	k := ModelKind(s)
	if _, ok := gatewayModels[k]; !ok {
		return "", fmt.Errorf("unknown model kind %q", s)
	}
	return k, nil
}

// Valid reports whether k is a known kind.
func (k ModelKind) Valid() bool {
	_, ok := gatewayModels[k]
	return ok
}

// GatewayModel returns the vendor-prefixed model ID used through OpenRouter.
func (k ModelKind) GatewayModel() string { return gatewayModels[k] }

// Registry holds named providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider under its Name().
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not registered", name)
	}
	return p, nil
}

// List returns the registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Route binds a model kind to a concrete provider and model ID.
type Route struct {
	Provider string
	Model    string
}

// ModelRouter is the single dispatch point from ModelKind to backend.
// Kinds without an override go to the gateway provider with their
// vendor-prefixed model ID.
type ModelRouter struct {
	registry  *Registry
	gateway   string
	overrides map[ModelKind]Route
}

func NewModelRouter(reg *Registry, gatewayProvider string) *ModelRouter {
	return &ModelRouter{
		registry:  reg,
		gateway:   gatewayProvider,
		overrides: make(map[ModelKind]Route),
	}
}

// Override sends kind to a different provider (e.g. native Anthropic for claude).
func (m *ModelRouter) Override(kind ModelKind, route Route) {
	m.overrides[kind] = route
}

// Resolve returns the provider and model ID for kind.
func (m *ModelRouter) Resolve(kind ModelKind) (Provider, string, error) {
	if !kind.Valid() {
		return nil, "", fmt.Errorf("unknown model kind %q", kind)
	}
	route, ok := m.overrides[kind]
	if !ok {
		route = Route{Provider: m.gateway, Model: kind.GatewayModel()}
	}
	p, err := m.registry.Get(route.Provider)
	if err != nil {
		return nil, "", err
	}
	return p, route.Model, nil
}

// Gateway returns the gateway provider, used for calls addressed by raw
// model ID (the orchestrator classifier).
func (m *ModelRouter) Gateway() (Provider, error) {
	return m.registry.Get(m.gateway)
}
