// Package agent holds the configuration shape of agents and the role registry
// used to build them from pipeline files.
package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aixgo-dev/dataflow/agent"
)

// ErrUnknownRole is returned when no factory is registered for a role.
var ErrUnknownRole = errors.New("unknown role")

// AgentDef describes one agent of a pipeline file.
type AgentDef struct {
	Name string `yaml:"name"`
	Role string `yaml:"role"`

	// Kind overrides the agent's kind, which defaults to its role. Consumers
	// refer to producers by kind.
	Kind string `yaml:"kind,omitempty"`

	// Inputs are the declared dependencies, in declaration order.
	Inputs []agent.Dependency `yaml:"inputs,omitempty"`

	// Interval is an optional per-step delay, used by slow demo agents.
	Interval Duration `yaml:"interval,omitempty"`

	Extra map[string]any `yaml:",inline"`
}

// KindOrRole returns the configured kind, falling back to the role.
func (d *AgentDef) KindOrRole() string {
	if d.Kind != "" {
		return d.Kind
	}
	return d.Role
}

type Duration struct{ time.Duration }

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *AgentDef) GetString(key, def string) string {
	if v, ok := d.Extra[key].(string); ok {
		return v
	}
	return def
}

// GetInt returns an integer setting. YAML numbers decode as int; floats with no
// fractional part are accepted too.
func (d *AgentDef) GetInt(key string, def int) int {
	switch v := d.Extra[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return def
}

// GetFloat returns a numeric setting as float64.
func (d *AgentDef) GetFloat(key string, def float64) float64 {
	switch v := d.Extra[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

func (d *AgentDef) UnmarshalKey(key string, v any) error {
	raw, exists := d.Extra[key]
	if !exists {
		return nil
	}

	// Marshal the raw value to JSON, then unmarshal into the target
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal key %q: %w", key, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal key %q: %w", key, err)
	}

	return nil
}

// Registry for agent factory functions
type FactoryFunc func(AgentDef) (agent.Agent, error)

// Registry interface allows for testable registry implementations
type Registry interface {
	Register(role string, factory FactoryFunc)
	GetFactory(role string) (FactoryFunc, bool)
}

// DefaultRegistry is the global registry implementation
type DefaultRegistry struct {
	factories map[string]FactoryFunc
	mu        sync.RWMutex
}

var defaultRegistry = &DefaultRegistry{
	factories: make(map[string]FactoryFunc),
}

// NewRegistry creates a new registry instance (useful for testing)
func NewRegistry() *DefaultRegistry {
	return &DefaultRegistry{
		factories: make(map[string]FactoryFunc),
	}
}

func (r *DefaultRegistry) Register(role string, factory FactoryFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[role] = factory
}

func (r *DefaultRegistry) GetFactory(role string) (FactoryFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[role]
	return f, ok
}

// Roles returns the registered roles in no particular order.
func (r *DefaultRegistry) Roles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roles := make([]string, 0, len(r.factories))
	for role := range r.factories {
		roles = append(roles, role)
	}
	return roles
}

// Register registers a factory with the default registry
func Register(role string, factory FactoryFunc) {
	defaultRegistry.Register(role, factory)
}

// GetFactory retrieves a factory from the default registry
func GetFactory(role string) (FactoryFunc, bool) {
	return defaultRegistry.GetFactory(role)
}

// Default returns the default registry.
func Default() *DefaultRegistry {
	return defaultRegistry
}
