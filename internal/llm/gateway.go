package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/nahw/internal/domain"
)

// DefaultInvokeTimeout bounds a single judge call including retries
const DefaultInvokeTimeout = 30 * time.Second

// GatewayConfig holds the per-process settings applied to every call
type GatewayConfig struct {
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
	System      string
	Schema      *Schema
	Logger      *slog.Logger
}

// Gateway sends prompts to a named provider from the registry
type Gateway struct {
	registry LLMRegistry
	cfg      GatewayConfig
	logger   *slog.Logger
}

// ProviderInfo describes a registered provider
type ProviderInfo struct {
	Name           string `json:"name"`
	Default        bool   `json:"default"`
	SupportsSchema bool   `json:"supports_schema"`
}

// NewGateway creates a gateway over registry
func NewGateway(registry LLMRegistry, cfg GatewayConfig) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultInvokeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{registry: registry, cfg: cfg, logger: logger}
}

// ResolveProvider returns the canonical provider name for name. The empty
// string selects the default provider.
func (g *Gateway) ResolveProvider(name string) (string, error) {
	if name == "" {
		p, err := g.registry.Default()
		if err != nil {
			return "", fmt.Errorf("%w: no providers configured", domain.ErrUnknownProvider)
		}
		return p.Name(), nil
	}

	if _, err := g.registry.Get(name); err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownProvider, name)
	}
	return name, nil
}

// Providers lists the registered providers in name order
func (g *Gateway) Providers() []ProviderInfo {
	def := g.registry.DefaultName()
	names := g.registry.List()

	out := make([]ProviderInfo, 0, len(names))
	for _, name := range names {
		p, err := g.registry.Get(name)
		if err != nil {
			continue
		}
		out = append(out, ProviderInfo{
			Name:           name,
			Default:        name == def,
			SupportsSchema: p.SupportsSchema(),
		})
	}
	return out
}

// Invoke sends prompt to the named provider and returns the raw completion
// text unaltered. Failures from the provider are *domain.BackendError.
func (g *Gateway) Invoke(ctx context.Context, prompt, provider string) (string, error) {
	name, err := g.ResolveProvider(provider)
	if err != nil {
		return "", err
	}

	p, err := g.registry.Get(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownProvider, name)
	}

	req := &Request{
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		System:      g.cfg.System,
	}
	if g.cfg.Schema != nil && p.SupportsSchema() {
		req.Schema = g.cfg.Schema
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.Generate(callCtx, req)
	if err != nil {
		// The caller gave up; report that rather than a backend failure
		if ctx.Err() != nil {
			return "", fmt.Errorf("invoke %s: %w", name, ctx.Err())
		}

		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("timed out after %s", g.cfg.Timeout)
		}
		g.logger.Warn("provider call failed",
			"provider", name,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return "", &domain.BackendError{Provider: name, Message: msg, Err: err}
	}

	g.logger.Debug("provider call completed",
		"provider", name,
		"duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)

	return resp.Content, nil
}
