package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/felixgeelhaar/nahw/internal/bootstrap"
	"github.com/felixgeelhaar/nahw/internal/config"
	"github.com/felixgeelhaar/nahw/internal/daemon"
	"github.com/felixgeelhaar/nahw/internal/queue"
)

const (
	pidFileName = "nahwd.pid"
)

func main() {
	if err := run(); err != nil {
		slog.Error("daemon error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	nahwDir, err := config.EnsureNahwDir()
	if err != nil {
		return fmt.Errorf("ensure nahw dir: %w", err)
	}

	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := config.ParseLogLevel(cfg.Daemon.LogLevel)
	if err != nil {
		return err
	}
	logFile, err := setupLogging(nahwDir, level)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logFile.Close()
	logger := slog.Default()

	pidPath := filepath.Join(nahwDir, pidFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	// A missing index is reported per request as 503; the daemon still serves
	// lessons, providers and health.
	if err := app.Warm(ctx); err != nil {
		logger.Warn("textbook index not ready", "retrieval", app.Retriever.String(), "error", err)
	}

	serverCfg := daemon.ServerConfigFromApp(app)

	var consumer *queue.Consumer
	if cfg.Queue.Enabled {
		conn, err := queue.NewConnection(cfg.Queue.URL, logger)
		if err != nil {
			return fmt.Errorf("connect queue: %w", err)
		}
		defer conn.Close()

		serverCfg.Jobs = queue.NewProducer(conn, logger)
		consumer = queue.NewConsumer(conn, queue.NewEvaluationHandler(app.Evaluations), queue.ConsumerConfig{
			Workers:    cfg.Queue.Workers,
			JobTimeout: time.Duration(cfg.Queue.JobTimeoutSeconds) * time.Second,
			Logger:     logger,
		})
		if err := consumer.Start(ctx); err != nil {
			return fmt.Errorf("start queue consumer: %w", err)
		}
		defer consumer.Stop()
	}

	server, err := daemon.NewServer(serverCfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("shutdown error", "error", err)
	}
	if err := <-errCh; err != nil {
		logger.Error("server error", "error", err)
	}

	logger.Info("daemon stopped")
	return nil
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}
