package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/felixgeelhaar/nahw/internal/config"
	"github.com/felixgeelhaar/nahw/internal/lesson"
	"github.com/felixgeelhaar/nahw/internal/storage/sqlite"
)

// keyNames are the secrets entries that take an API key
var keyNames = []string{"openai", "gemini", "claude", config.BackendPinecone}

// cmdInit initializes nahw for first-time use
func cmdInit() error {
	fmt.Println("nahw - First-Time Setup")
	fmt.Println("=======================")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Creating ~/.nahw directory structure... ")
	nahwDir, err := config.EnsureNahwDir()
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	fmt.Println("✓")

	configPath := filepath.Join(nahwDir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Print("Creating default configuration... ")
		if err := config.SaveLocalConfig(config.DefaultLocalConfig()); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Println("✓")
	} else {
		fmt.Println("Configuration already exists ✓")
	}

	fmt.Println()
	fmt.Println("Model Provider Setup")
	fmt.Println("--------------------")
	fmt.Println("nahw supports: OpenAI, Gemini, Claude (Anthropic) and Ollama (local)")
	fmt.Println()

	cfg, _ := config.LoadLocalConfig()
	keys := make(map[string]string)
	for _, name := range []string{"openai", "gemini"} {
		if cfg != nil && cfg.LLM.Providers[name] != nil && cfg.LLM.Providers[name].APIKey != "" {
			fmt.Printf("%s API key: already configured ✓\n", name)
			continue
		}
		fmt.Printf("Enter %s API key (or press Enter to skip): ", name)
		key, _ := reader.ReadString('\n')
		if key = strings.TrimSpace(key); key != "" {
			keys[name] = key
		}
	}
	if len(keys) > 0 {
		if err := config.SaveSecrets(keys); err != nil {
			fmt.Printf("  ⚠ Failed to save: %v\n", err)
		} else {
			fmt.Println("  ✓ Saved")
		}
	}

	fmt.Println()
	fmt.Println("Setup Complete!")
	fmt.Println("===============")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. nahw ingest textbook.txt            # Index the textbook")
	fmt.Println("  2. nahw doctor                         # Verify configuration")
	fmt.Println("  3. nahw evaluate -lesson lesson1 \"...\" # Grade an answer")
	fmt.Println("  4. nahw start                          # Serve POST /evaluate")
	fmt.Println()
	fmt.Println("For MCP clients, configure the command 'nahw mcp'.")

	return nil
}

// cmdDoctor checks configuration, index and providers
func cmdDoctor() error {
	fmt.Println("Checking nahw setup...")
	allGood := true
	fail := func(format string, args ...any) {
		fmt.Printf("✗ "+format+"\n", args...)
		allGood = false
	}

	fmt.Print("Directory: ")
	nahwDir, err := config.NahwDir()
	if err != nil {
		fail("%v", err)
	} else if _, err := os.Stat(nahwDir); os.IsNotExist(err) {
		fail("not created (run 'nahw init')")
	} else {
		fmt.Printf("✓ %s\n", nahwDir)
	}

	fmt.Print("Config:    ")
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		fail("%v", err)
		return nil
	}
	if err := cfg.Validate(); err != nil {
		fail("%v", err)
	} else {
		fmt.Println("✓ valid")
	}

	fmt.Print("Lessons:   ")
	registry := lesson.NewRegistry(lesson.NewLoader(cfg.Lessons.Path))
	if err := registry.Load(); err != nil {
		fail("%v", err)
	} else {
		fmt.Printf("✓ %d loaded\n", registry.Count())
	}

	fmt.Print("Index:     ")
	if cfg.Retrieval.Backend == config.BackendPinecone {
		fmt.Printf("pinecone index %q\n", cfg.Retrieval.Pinecone.Index)
	} else if path, err := cfg.IndexFile(); err != nil {
		fail("%v", err)
	} else if db, err := sqlite.OpenReadOnly(path); errors.Is(err, sqlite.ErrNotExist) {
		fail("missing %s (run 'nahw ingest <file>')", path)
	} else if err != nil {
		fail("%v", err)
	} else {
		db.Close()
		fmt.Printf("✓ %s\n", path)
	}

	fmt.Println("\nProviders:")
	names := make([]string, 0, len(cfg.LLM.Providers))
	for name := range cfg.LLM.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := cfg.LLM.Providers[name]
		if !p.Enabled {
			continue
		}
		fmt.Printf("  %s: ", name)
		switch {
		case name == "ollama":
			if err := checkOllama(p.URL); err != nil {
				fail("%v", err)
			} else {
				fmt.Printf("✓ available (model: %s)\n", p.Model)
			}
		case p.APIKey != "":
			fmt.Printf("✓ configured (model: %s)\n", p.Model)
		default:
			fail("no API key (run 'nahw provider set-key %s')", name)
		}
	}

	fmt.Print("\nDaemon:    ")
	if isRunning() {
		fmt.Println("✓ running")
	} else {
		fmt.Println("- not running (run 'nahw start')")
	}

	fmt.Println()
	if allGood {
		fmt.Println("All checks passed! ✓")
	} else {
		fmt.Println("Some checks failed. Please fix the issues above.")
	}
	return nil
}

// cmdConfig shows the effective configuration
func cmdConfig() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("nahw Configuration")

	fmt.Println("\nDaemon:")
	fmt.Printf("  bind: %s:%d\n", cfg.Daemon.Bind, cfg.Daemon.Port)
	fmt.Printf("  log_level: %s\n", cfg.Daemon.LogLevel)
	fmt.Printf("  rate_limit_per_minute: %d\n", cfg.Daemon.RateLimitPerMinute)

	fmt.Println("\nLLM:")
	fmt.Printf("  default_provider: %s\n", cfg.LLM.DefaultProvider)
	fmt.Printf("  temperature: %.2f timeout: %ds retries: %d\n", cfg.LLM.Temperature, cfg.LLM.TimeoutSeconds, cfg.LLM.MaxRetries)
	for _, name := range cfg.EnabledProviders() {
		p := cfg.LLM.Providers[name]
		keyStatus := "✗"
		if p.APIKey != "" || name == "ollama" {
			keyStatus = "✓"
		}
		fmt.Printf("  %s: model=%s key=%s\n", name, p.Model, keyStatus)
	}

	fmt.Println("\nRetrieval:")
	fmt.Printf("  backend: %s embedder: %s top_k: %d\n", cfg.Retrieval.Backend, cfg.Retrieval.Embedder, cfg.Retrieval.TopK)
	fmt.Printf("  chunk_size: %d overlap: %d\n", cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	if path, err := cfg.IndexFile(); err == nil && cfg.Retrieval.Backend != config.BackendPinecone {
		fmt.Printf("  index: %s\n", path)
	}

	fmt.Println("\nEvaluation:")
	fmt.Printf("  grounding: %s\n", cfg.Evaluation.Grounding)
	fmt.Printf("  dataset: %s\n", cfg.Log.CSVPath)
	if cfg.Log.SQLitePath != "" {
		fmt.Printf("  sqlite records: %s\n", cfg.Log.SQLitePath)
	}
	if cfg.Log.PostgresURL != "" {
		fmt.Printf("  postgres table: %s\n", cfg.Log.PostgresTable)
	}

	fmt.Println("\nQueue:")
	fmt.Printf("  enabled: %t workers: %d\n", cfg.Queue.Enabled, cfg.Queue.Workers)

	if path, err := config.ConfigPath(); err == nil {
		fmt.Printf("\nConfig path: %s\n", path)
	}
	return nil
}

// cmdProvider manages provider API keys
func cmdProvider(args []string) error {
	if len(args) < 1 {
		return cmdProviderList()
	}

	switch args[0] {
	case "list":
		return cmdProviderList()
	case "set-key":
		if len(args) < 2 {
			return fmt.Errorf("provider name required")
		}
		return cmdProviderSetKey(args[1])
	default:
		return fmt.Errorf("unknown provider command: %s (valid: list, set-key)", args[0])
	}
}

func cmdProviderList() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	names := make([]string, 0, len(cfg.LLM.Providers))
	for name := range cfg.LLM.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Model Providers:")
	for _, name := range names {
		p := cfg.LLM.Providers[name]
		status := "disabled"
		if p.Enabled {
			if p.APIKey != "" || name == "ollama" {
				status = "ready"
			} else {
				status = "needs API key"
			}
		}

		isDefault := ""
		if name == cfg.LLM.DefaultProvider {
			isDefault = " (default)"
		}

		fmt.Printf("  %s%s\n", name, isDefault)
		fmt.Printf("    status: %s\n", status)
		fmt.Printf("    model:  %s\n", p.Model)
		if name == "ollama" && p.URL != "" {
			fmt.Printf("    url:    %s\n", p.URL)
		}
	}
	return nil
}

func cmdProviderSetKey(name string) error {
	if name == "ollama" {
		fmt.Println("Ollama doesn't require an API key.")
		return nil
	}
	valid := false
	for _, n := range keyNames {
		valid = valid || n == name
	}
	if !valid {
		return fmt.Errorf("unknown provider: %s (valid: %s)", name, strings.Join(keyNames, ", "))
	}

	fmt.Printf("Enter %s API key: ", name)
	key, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if key = strings.TrimSpace(key); key == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	if err := config.SaveSecrets(map[string]string{name: key}); err != nil {
		return fmt.Errorf("save secrets: %w", err)
	}

	fmt.Printf("✓ API key saved for %s\n", name)
	fmt.Println("Restart the daemon for changes to take effect.")
	return nil
}
