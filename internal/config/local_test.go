package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// useHome points HOME at a temp dir and clears env overrides
func useHome(t *testing.T) string {
	t.Helper()
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestNahwDir(t *testing.T) {
	dir, err := NahwDir()
	if err != nil {
		t.Fatalf("NahwDir() error = %v", err)
	}
	if filepath.Base(dir) != ".nahw" {
		t.Errorf("NahwDir() = %q, want ending with .nahw", dir)
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("NahwDir() = %q, want absolute path", dir)
	}
}

func TestEnsureNahwDir(t *testing.T) {
	home := useHome(t)

	dir, err := EnsureNahwDir()
	if err != nil {
		t.Fatalf("EnsureNahwDir() error = %v", err)
	}
	if want := filepath.Join(home, ".nahw"); dir != want {
		t.Errorf("EnsureNahwDir() = %q, want %q", dir, want)
	}

	for _, subdir := range []string{"logs", "index"} {
		if _, err := os.Stat(filepath.Join(dir, subdir)); err != nil {
			t.Errorf("EnsureNahwDir() should create %s: %v", subdir, err)
		}
	}
}

func TestDefaultLocalConfig(t *testing.T) {
	cfg := DefaultLocalConfig()

	if cfg.Daemon.Port != 7433 || cfg.Daemon.Bind != "127.0.0.1" || cfg.Daemon.LogLevel != "info" {
		t.Errorf("Daemon = %+v", cfg.Daemon)
	}
	if cfg.LLM.DefaultProvider != "openai" {
		t.Errorf("DefaultProvider = %q", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.TimeoutSeconds != 30 || cfg.LLM.MaxRetries != 1 {
		t.Errorf("timeout/retries = %d/%d", cfg.LLM.TimeoutSeconds, cfg.LLM.MaxRetries)
	}
	if cfg.Retrieval.Backend != BackendSQLite || cfg.Retrieval.TopK != 4 || cfg.Retrieval.Embedder != EmbedderKeyword {
		t.Errorf("Retrieval = %+v", cfg.Retrieval)
	}
	if cfg.Retrieval.ChunkSize != 500 || cfg.Retrieval.ChunkOverlap != 50 {
		t.Errorf("chunking = %d/%d", cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	}
	if cfg.Evaluation.Grounding != "strict" {
		t.Errorf("Grounding = %q", cfg.Evaluation.Grounding)
	}
	if cfg.Log.CSVPath != "eval_dataset.csv" {
		t.Errorf("CSVPath = %q", cfg.Log.CSVPath)
	}
	if cfg.Queue.Enabled {
		t.Error("queue should be disabled by default")
	}
}

func TestDefaultLocalConfig_ProviderDetails(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		model   string
	}{
		{"openai", true, "gpt-4.1"},
		{"gemini", true, "gemini-2.5-pro"},
		{"claude", false, "claude-sonnet-4-20250514"},
		{"ollama", false, "llama3.1"},
	}

	cfg := DefaultLocalConfig()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := cfg.LLM.Providers[tt.name]
			if !ok {
				t.Fatalf("provider %s missing", tt.name)
			}
			if p.Enabled != tt.enabled {
				t.Errorf("Enabled = %v, want %v", p.Enabled, tt.enabled)
			}
			if p.Model != tt.model {
				t.Errorf("Model = %q, want %q", p.Model, tt.model)
			}
		})
	}
}

func TestLoadFile_MissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Daemon.Port != 7433 {
		t.Errorf("Port = %d, want default", cfg.Daemon.Port)
	}
}

func TestLoadFile_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `daemon:
  port: 9999
retrieval:
  top_k: 6
evaluation:
  grounding: preferred
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Daemon.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Daemon.Port)
	}
	if cfg.Daemon.Bind != "127.0.0.1" {
		t.Errorf("Bind = %q, want default kept", cfg.Daemon.Bind)
	}
	if cfg.Retrieval.TopK != 6 || cfg.Retrieval.ChunkSize != 500 {
		t.Errorf("Retrieval = %+v", cfg.Retrieval)
	}
	if cfg.Evaluation.Grounding != "preferred" {
		t.Errorf("Grounding = %q", cfg.Evaluation.Grounding)
	}
}

func TestLoadFile_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("daemon: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile() should fail on invalid YAML")
	}
}

func TestLoadSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.yaml")
	content := `providers:
  claude:
    api_key: sk-claude-test-key
  openai:
    api_key: sk-openai-test-key
  pinecone:
    api_key: pc-test-key
  unknown_provider:
    api_key: ignored
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultLocalConfig()
	if err := loadSecrets(path, cfg); err != nil {
		t.Fatalf("loadSecrets() error = %v", err)
	}

	if cfg.LLM.Providers["claude"].APIKey != "sk-claude-test-key" {
		t.Errorf("claude APIKey = %q", cfg.LLM.Providers["claude"].APIKey)
	}
	if cfg.LLM.Providers["openai"].APIKey != "sk-openai-test-key" {
		t.Errorf("openai APIKey = %q", cfg.LLM.Providers["openai"].APIKey)
	}
	if cfg.Retrieval.Pinecone.APIKey != "pc-test-key" {
		t.Errorf("pinecone APIKey = %q", cfg.Retrieval.Pinecone.APIKey)
	}
	if cfg.LLM.Providers["ollama"].APIKey != "" {
		t.Errorf("ollama APIKey = %q, want empty", cfg.LLM.Providers["ollama"].APIKey)
	}
}

func TestLoadSecrets_NoSecretsFile(t *testing.T) {
	if err := loadSecrets(filepath.Join(t.TempDir(), "secrets.yaml"), DefaultLocalConfig()); err != nil {
		t.Errorf("loadSecrets() should not error when the file is missing: %v", err)
	}
}

func TestLoadSecrets_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.yaml")
	if err := os.WriteFile(path, []byte("invalid: yaml: content:"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := loadSecrets(path, DefaultLocalConfig()); err == nil {
		t.Error("loadSecrets() should error on invalid YAML")
	}
}

func TestLoadLocalConfig_DefaultsWhenNoFile(t *testing.T) {
	useHome(t)

	cfg, err := LoadLocalConfig()
	if err != nil {
		t.Fatalf("LoadLocalConfig() error = %v", err)
	}
	if cfg.Daemon.Port != 7433 {
		t.Errorf("Daemon.Port = %d, want 7433", cfg.Daemon.Port)
	}
}

func TestLoadLocalConfig_ConfigEnvOverridesPath(t *testing.T) {
	useHome(t)

	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("daemon:\n  port: 8123\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NAHW_CONFIG", path)

	cfg, err := LoadLocalConfig()
	if err != nil {
		t.Fatalf("LoadLocalConfig() error = %v", err)
	}
	if cfg.Daemon.Port != 8123 {
		t.Errorf("Daemon.Port = %d, want 8123", cfg.Daemon.Port)
	}
}

func TestLoadLocalConfig_EnvBeatsSecrets(t *testing.T) {
	useHome(t)

	if err := SaveSecrets(map[string]string{"openai": "from-secrets", "gemini": "gm-secret"}); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENAI_API_KEY", "from-env")

	cfg, err := LoadLocalConfig()
	if err != nil {
		t.Fatalf("LoadLocalConfig() error = %v", err)
	}
	if got := cfg.LLM.Providers["openai"].APIKey; got != "from-env" {
		t.Errorf("openai APIKey = %q, want from-env", got)
	}
	if got := cfg.LLM.Providers["gemini"].APIKey; got != "gm-secret" {
		t.Errorf("gemini APIKey = %q, want gm-secret", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestSaveSecrets_Permissions(t *testing.T) {
	home := useHome(t)

	if err := SaveSecrets(map[string]string{"claude": "sk-claude-secret"}); err != nil {
		t.Fatalf("SaveSecrets() error = %v", err)
	}

	path := filepath.Join(home, ".nahw", "secrets.yaml")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("permissions = %o, want 0600", info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var loaded SecretsConfig
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		t.Fatal(err)
	}
	if loaded.Providers["claude"].APIKey != "sk-claude-secret" {
		t.Errorf("claude APIKey = %q", loaded.Providers["claude"].APIKey)
	}
}

func TestSaveSecrets_Merges(t *testing.T) {
	useHome(t)

	if err := SaveSecrets(map[string]string{"openai": "sk-one"}); err != nil {
		t.Fatal(err)
	}
	if err := SaveSecrets(map[string]string{"pinecone": "pc-two"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadLocalConfig()
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.LLM.Providers["openai"].APIKey; got != "sk-one" {
		t.Errorf("openai APIKey = %q, want sk-one", got)
	}
	if got := cfg.Retrieval.Pinecone.APIKey; got != "pc-two" {
		t.Errorf("pinecone APIKey = %q, want pc-two", got)
	}
}

func TestSaveLocalConfig_RoundTrip(t *testing.T) {
	useHome(t)

	cfg := DefaultLocalConfig()
	cfg.Daemon.Port = 7777
	cfg.LLM.DefaultProvider = "gemini"
	cfg.LLM.Providers["openai"].APIKey = "never-written"

	if err := SaveLocalConfig(cfg); err != nil {
		t.Fatalf("SaveLocalConfig() error = %v", err)
	}

	path, err := ConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "never-written") {
		t.Error("API keys must not be written to config.yaml")
	}

	loaded, err := LoadLocalConfig()
	if err != nil {
		t.Fatalf("LoadLocalConfig() error = %v", err)
	}
	if loaded.Daemon.Port != 7777 || loaded.LLM.DefaultProvider != "gemini" {
		t.Errorf("round trip = %+v / %q", loaded.Daemon, loaded.LLM.DefaultProvider)
	}
	if !loaded.LLM.Providers["gemini"].Enabled {
		t.Error("gemini should stay enabled after round trip")
	}
}

func TestIndexFile(t *testing.T) {
	home := useHome(t)

	cfg := DefaultLocalConfig()
	got, err := cfg.IndexFile()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, ".nahw", "index", "textbook.db"); got != want {
		t.Errorf("IndexFile() = %q, want %q", got, want)
	}

	cfg.Retrieval.IndexPath = "/data/index.db"
	if got, _ := cfg.IndexFile(); got != "/data/index.db" {
		t.Errorf("IndexFile() = %q, want explicit path", got)
	}
}
