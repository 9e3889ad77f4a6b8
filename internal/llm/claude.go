package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeProvider implements the Provider interface for Anthropic's Claude.
// Structured output is obtained by forcing a single tool call whose input
// schema is the requested schema.
type ClaudeProvider struct {
	client anthropic.Client
	model  string
}

// ClaudeConfig holds configuration for the Claude provider
type ClaudeConfig struct {
	APIKey  string
	BaseURL string // default: https://api.anthropic.com
	Model   string // default: claude-sonnet-4-20250514
}

const claudeDefaultMaxTokens = 2048

// NewClaudeProvider creates a new Claude provider
func NewClaudeProvider(cfg ClaudeConfig) *ClaudeProvider {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(newLLMHTTPClient()),
		// Retries are owned by ResilientProvider
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}

	return &ClaudeProvider{
		client: anthropic.NewClient(opts...),
		model:  cfg.Model,
	}
}

func (p *ClaudeProvider) Name() string {
	return "claude"
}

func (p *ClaudeProvider) SupportsSchema() bool {
	return true
}

func (p *ClaudeProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	params, err := p.buildRequest(req)
	if err != nil {
		return nil, err
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err)
	}

	content, err := p.extractContent(msg, req.Schema)
	if err != nil {
		return nil, err
	}

	return &Response{
		Content:      content,
		FinishReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

func (p *ClaudeProvider) buildRequest(req *Request) (anthropic.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = claudeDefaultMaxTokens
	}

	// Claude takes the system prompt separately
	system := req.System
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	if req.Schema != nil {
		schema, err := req.Schema.Map()
		if err != nil {
			return params, err
		}
		params.Tools = []anthropic.ToolUnionParam{{
			OfTool: &anthropic.ToolParam{
				Name:        req.Schema.Name,
				Description: anthropic.String(schemaToolDescription(req.Schema)),
				InputSchema: toolInputSchema(schema),
			},
		}}
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: req.Schema.Name},
		}
	}

	return params, nil
}

// toolInputSchema keeps the required list and the additionalProperties
// constraint alongside the properties
func toolInputSchema(schema map[string]any) anthropic.ToolInputSchemaParam {
	param := anthropic.ToolInputSchemaParam{
		Properties: schema["properties"],
	}
	if raw, ok := schema["required"].([]any); ok {
		for _, name := range raw {
			if s, ok := name.(string); ok {
				param.Required = append(param.Required, s)
			}
		}
	}
	if extra, ok := schema["additionalProperties"]; ok {
		param.ExtraFields = map[string]any{"additionalProperties": extra}
	}
	return param
}

func schemaToolDescription(s *Schema) string {
	if s.Description != "" {
		return s.Description
	}
	return "Record the result as " + s.Name
}

// extractContent returns the forced tool input when a schema was requested,
// otherwise the concatenated text blocks
func (p *ClaudeProvider) extractContent(msg *anthropic.Message, schema *Schema) (string, error) {
	var text strings.Builder

	for _, block := range msg.Content {
		switch block := block.AsAny().(type) {
		case anthropic.ToolUseBlock:
			if schema != nil && block.Name == schema.Name {
				input, err := json.Marshal(block.Input)
				if err != nil {
					return "", fmt.Errorf("encode tool input: %w", err)
				}
				return string(input), nil
			}
		case anthropic.TextBlock:
			text.WriteString(block.Text)
		}
	}

	if text.Len() == 0 {
		return "", ErrEmptyCompletion
	}
	return text.String(), nil
}

func (p *ClaudeProvider) wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &StatusError{Provider: p.Name(), StatusCode: apiErr.StatusCode, Body: apiErr.Error(), Err: err}
	}
	return fmt.Errorf("do request: %w", err)
}
