package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

var (
	ErrProviderNotFound  = errors.New("provider not found")
	ErrNoDefaultProvider = errors.New("no default provider configured")
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Generate performs a completion request
	Generate(ctx context.Context, req *Request) (*Response, error)

	// SupportsSchema reports whether the provider can constrain its output
	// to a JSON schema
	SupportsSchema() bool
}

// Request represents an LLM request
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	System      string  // System prompt (some providers handle this separately)
	Schema      *Schema // Output schema, honoured when the provider supports it
}

// Schema is a named JSON schema for structured output
type Schema struct {
	Name        string
	Description string
	JSON        json.RawMessage
}

// Map decodes the schema into a generic map
func (s *Schema) Map() (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(s.JSON, &m); err != nil {
		return nil, fmt.Errorf("decode schema %s: %w", s.Name, err)
	}
	return m, nil
}

// Message represents a chat message
type Message struct {
	Role    Role
	Content string
}

// Role represents the role of a message sender
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Response represents an LLM response
type Response struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// Usage tracks token usage
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Registry manages LLM providers. It is built once at startup and passed
// by reference; there is no package-level registry.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	defaultP  string
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// SetDefault sets the default provider
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	r.defaultP = name
	return nil
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return p, nil
}

// Default returns the default provider. Without an explicit default the
// first provider in name order is used, so the choice is stable.
func (r *Registry) Default() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultP != "" {
		if p, ok := r.providers[r.defaultP]; ok {
			return p, nil
		}
	}

	names := r.sortedNames()
	if len(names) == 0 {
		return nil, ErrNoDefaultProvider
	}
	return r.providers[names[0]], nil
}

// List returns all registered provider names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedNames()
}

func (r *Registry) sortedNames() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultName returns the name of the default provider
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.providers[r.defaultP]; ok {
		return r.defaultP
	}
	if names := r.sortedNames(); len(names) > 0 {
		return names[0]
	}
	return ""
}

// Close releases resources held by registered providers
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, p := range r.providers {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}
