package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/nahw/internal/bootstrap"
	"github.com/felixgeelhaar/nahw/internal/config"
	mcpserver "github.com/felixgeelhaar/nahw/internal/mcp"
)

// cmdMCP serves the evaluator over MCP on stdio. Stdout belongs to the
// protocol, so logs go to ~/.nahw/logs/mcp.log.
func cmdMCP() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	nahwDir, err := config.EnsureNahwDir()
	if err != nil {
		return err
	}
	logFile, err := os.OpenFile(filepath.Join(nahwDir, "logs", "mcp.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open mcp log: %w", err)
	}
	defer logFile.Close()
	logger := slog.New(slog.NewJSONHandler(logFile, nil))

	ctx, cancel := signalContext()
	defer cancel()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := mcpserver.NewServer(mcpserver.Config{
		Evaluator: app.Evaluations,
		Lessons:   app.Lessons,
		Providers: app.Gateway,
		Version:   Version,
		Logger:    logger,
	})
	return srv.ServeStdio(ctx)
}

func checkOllama(url string) error {
	if url == "" {
		url = "http://localhost:11434"
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(url + "/api/tags")
	if err != nil {
		return fmt.Errorf("not reachable at %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}
