package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/felixgeelhaar/nahw/internal/domain"
)

// providerKeyEnv maps provider names to the environment variable carrying
// their API key
var providerKeyEnv = map[string]string{
	"openai": "OPENAI_API_KEY",
	"gemini": "GEMINI_API_KEY",
	"claude": "ANTHROPIC_API_KEY",
}

// LoadDotEnv loads a .env file from the working directory if present.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load %s: %w", strings.Join(existing, ", "), err)
	}
	return nil
}

// ApplyEnv overlays environment variables on cfg
func ApplyEnv(cfg *LocalConfig) {
	for name, key := range providerKeyEnv {
		provider, ok := cfg.LLM.Providers[name]
		if !ok || provider == nil {
			continue
		}
		provider.APIKey = getEnv(key, provider.APIKey)
	}
	cfg.Retrieval.Pinecone.APIKey = getEnv("PINECONE_API_KEY", cfg.Retrieval.Pinecone.APIKey)

	cfg.Daemon.Port = getEnvInt("NAHW_PORT", cfg.Daemon.Port)
	cfg.Daemon.LogLevel = getEnv("NAHW_LOG_LEVEL", cfg.Daemon.LogLevel)
	cfg.LLM.DefaultProvider = getEnv("NAHW_DEFAULT_PROVIDER", cfg.LLM.DefaultProvider)
	cfg.LLM.Temperature = getEnvFloat("NAHW_TEMPERATURE", cfg.LLM.Temperature)
	cfg.Evaluation.Grounding = getEnv("NAHW_GROUNDING", cfg.Evaluation.Grounding)
	cfg.Log.CSVPath = getEnv("NAHW_LOG_PATH", cfg.Log.CSVPath)
	cfg.Lessons.Path = getEnv("NAHW_LESSONS_PATH", cfg.Lessons.Path)
	cfg.Retrieval.IndexPath = getEnv("NAHW_INDEX_PATH", cfg.Retrieval.IndexPath)
	cfg.Log.PostgresURL = getEnv("DATABASE_URL", cfg.Log.PostgresURL)
	cfg.Queue.URL = getEnv("RABBITMQ_URL", cfg.Queue.URL)
	cfg.Queue.Enabled = getEnvBool("NAHW_QUEUE_ENABLED", cfg.Queue.Enabled)
}

// Validate checks cfg before any component is built
func (c *LocalConfig) Validate() error {
	if c.Daemon.Port < 1 || c.Daemon.Port > 65535 {
		return configErr("daemon.port", "must be between 1 and 65535, got %d", c.Daemon.Port)
	}
	if _, err := ParseLogLevel(c.Daemon.LogLevel); err != nil {
		return configErr("daemon.log_level", "%v", err)
	}

	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateRetrieval(); err != nil {
		return err
	}

	if _, err := domain.ParseGroundingPolicy(c.Evaluation.Grounding); err != nil {
		return configErr("evaluation.grounding", "%q is not strict or preferred", c.Evaluation.Grounding)
	}
	if strings.TrimSpace(c.Log.CSVPath) == "" {
		return configErr("log.csv_path", "must not be empty")
	}

	if c.Queue.Enabled {
		if c.Queue.URL == "" {
			return configErr("queue.url", "required when the queue is enabled")
		}
		if c.Queue.Workers < 1 {
			return configErr("queue.workers", "must be at least 1")
		}
	}
	return nil
}

func (c *LocalConfig) validateLLM() error {
	enabled := c.EnabledProviders()
	if len(enabled) == 0 {
		return configErr("llm.providers", "at least one provider must be enabled")
	}

	for _, name := range enabled {
		p := c.LLM.Providers[name]
		if name == "ollama" {
			continue
		}
		if p.APIKey == "" {
			field := "llm.providers." + name + ".api_key"
			if env, ok := providerKeyEnv[name]; ok {
				return configErr(field, "set %s or add it to secrets.yaml", env)
			}
			return configErr(field, "missing API key")
		}
	}

	if name := c.LLM.DefaultProvider; name != "" {
		p, ok := c.LLM.Providers[name]
		if !ok || p == nil || !p.Enabled {
			return configErr("llm.default_provider", "%q is not an enabled provider", name)
		}
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return configErr("llm.temperature", "must be between 0 and 2")
	}
	if c.LLM.TimeoutSeconds < 1 {
		return configErr("llm.timeout_seconds", "must be at least 1")
	}
	if c.LLM.MaxRetries < 0 {
		return configErr("llm.max_retries", "must not be negative")
	}
	return nil
}

func (c *LocalConfig) validateRetrieval() error {
	r := c.Retrieval
	switch r.Backend {
	case BackendSQLite:
	case BackendPinecone:
		if r.Pinecone.APIKey == "" {
			return configErr("retrieval.pinecone.api_key", "set PINECONE_API_KEY or add it to secrets.yaml")
		}
		if r.Pinecone.Index == "" {
			return configErr("retrieval.pinecone.index", "required for the pinecone backend")
		}
	default:
		return configErr("retrieval.backend", "%q is not sqlite or pinecone", r.Backend)
	}

	switch r.Embedder {
	case EmbedderKeyword:
	case EmbedderOpenAI:
		if c.OpenAIKey() == "" {
			return configErr("retrieval.embedder", "openai embedder needs OPENAI_API_KEY")
		}
	default:
		return configErr("retrieval.embedder", "%q is not keyword or openai", r.Embedder)
	}

	if r.TopK < 1 {
		return configErr("retrieval.top_k", "must be at least 1")
	}
	if r.ChunkSize < 1 {
		return configErr("retrieval.chunk_size", "must be at least 1")
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		return configErr("retrieval.chunk_overlap", "must be in [0, chunk_size)")
	}
	return nil
}

// OpenAIKey returns the OpenAI key whether or not the chat provider is enabled
func (c *LocalConfig) OpenAIKey() string {
	if p, ok := c.LLM.Providers["openai"]; ok && p != nil {
		return p.APIKey
	}
	return ""
}

// ParseLogLevel converts a config string to a slog level
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func configErr(field, format string, args ...any) error {
	return &domain.ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
