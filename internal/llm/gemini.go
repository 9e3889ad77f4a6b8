package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiProvider implements the Provider interface for Google Gemini
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// GeminiConfig holds configuration for the Gemini provider
type GeminiConfig struct {
	APIKey   string
	Endpoint string // optional API endpoint override
	Model    string // default: gemini-2.5-pro
}

// NewGeminiProvider creates a new Gemini provider. The client is created
// once and shared by all calls.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-pro"
	}

	opts := []option.ClientOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiProvider{client: client, model: cfg.Model}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) SupportsSchema() bool {
	return true
}

func (p *GeminiProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	m, err := p.modelFor(req)
	if err != nil {
		return nil, err
	}

	parts := make([]genai.Part, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role != RoleSystem {
			parts = append(parts, genai.Text(msg.Content))
		}
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, p.wrapError(err)
	}

	text := firstText(resp)
	if text == "" {
		return nil, ErrEmptyCompletion
	}

	out := &Response{Content: text}
	if len(resp.Candidates) > 0 {
		out.FinishReason = resp.Candidates[0].FinishReason.String()
	}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

// modelFor builds a per-call model handle so concurrent calls never share
// generation settings
func (p *GeminiProvider) modelFor(req *Request) (*genai.GenerativeModel, error) {
	name := req.Model
	if name == "" {
		name = p.model
	}

	m := p.client.GenerativeModel(name)
	m.SetTemperature(float32(req.Temperature))
	if req.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	system := req.System
	for _, msg := range req.Messages {
		if msg.Role == RoleSystem {
			system = strings.TrimSpace(system + "\n\n" + msg.Content)
		}
	}
	if system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	if req.Schema != nil {
		raw, err := req.Schema.Map()
		if err != nil {
			return nil, err
		}
		m.ResponseMIMEType = "application/json"
		m.ResponseSchema = geminiSchema(raw)
	}

	return m, nil
}

// geminiSchema converts a JSON schema document into the subset Gemini
// accepts. Unsupported keywords are dropped.
func geminiSchema(raw map[string]any) *genai.Schema {
	if raw == nil {
		return nil
	}

	s := &genai.Schema{}
	switch raw["type"] {
	case "object":
		s.Type = genai.TypeObject
	case "array":
		s.Type = genai.TypeArray
	case "string":
		s.Type = genai.TypeString
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	}

	if d, ok := raw["description"].(string); ok {
		s.Description = d
	}

	if props, ok := raw["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, v := range props {
			if child, ok := v.(map[string]any); ok {
				s.Properties[name] = geminiSchema(child)
			}
		}
	}

	if items, ok := raw["items"].(map[string]any); ok {
		s.Items = geminiSchema(items)
	}

	if req, ok := raw["required"].([]any); ok {
		for _, r := range req {
			if name, ok := r.(string); ok {
				s.Required = append(s.Required, name)
			}
		}
	}

	return s
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func (p *GeminiProvider) wrapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &StatusError{Provider: p.Name(), StatusCode: apiErr.Code, Body: apiErr.Message, Err: err}
	}
	return fmt.Errorf("do request: %w", err)
}

// Close releases the underlying client
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}
