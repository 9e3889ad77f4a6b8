package llm

// LLMRegistry defines the interface for LLM provider registry operations
// used by the daemon handlers and the gateway
type LLMRegistry interface {
	// List returns all registered provider names
	List() []string

	// Default returns the default provider
	Default() (Provider, error)

	// DefaultName returns the name of the default provider
	DefaultName() string

	// Get retrieves a provider by name
	Get(name string) (Provider, error)
}

// Ensure Registry implements LLMRegistry
var _ LLMRegistry = (*Registry)(nil)
