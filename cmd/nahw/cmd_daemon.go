package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/felixgeelhaar/nahw/internal/config"
)

// daemonAddr returns the daemon base URL from the local configuration
func daemonAddr() string {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		cfg = config.DefaultLocalConfig()
	}
	return daemonAddrFor(cfg)
}

func daemonAddrFor(cfg *config.LocalConfig) string {
	host := cfg.Daemon.Bind
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Daemon.Port)
}

var httpClient = &http.Client{Timeout: 2 * time.Second}

// cmdStart starts the daemon in the background
func cmdStart() error {
	if isRunning() {
		fmt.Println("✓ Daemon is already running")
		return nil
	}

	nahwDir, err := config.EnsureNahwDir()
	if err != nil {
		return fmt.Errorf("setup nahw directory: %w", err)
	}

	nahwdPath, err := findDaemonBinary()
	if err != nil {
		return fmt.Errorf("find daemon binary: %w", err)
	}

	cmd := exec.Command(nahwdPath)
	cmd.Dir = nahwDir
	cmd.Stdout = nil
	cmd.Stderr = nil
	configureDaemonProcess(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Print("Starting daemon...")
	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if isRunning() {
			fmt.Println(" ✓")
			fmt.Printf("Daemon running at %s\n", daemonAddr())
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon failed to start (check logs with 'nahw logs')")
}

// cmdStop stops the daemon
func cmdStop() error {
	if !isRunning() {
		fmt.Println("Daemon is not running")
		return nil
	}

	nahwDir, err := config.NahwDir()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Join(nahwDir, pidFile))
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("parse PID: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Print("Stopping daemon...")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isRunning() {
			fmt.Println(" ✓")
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon did not stop gracefully")
}

// daemonStatus mirrors GET /v1/status
type daemonStatus struct {
	Status          string   `json:"status"`
	Version         string   `json:"version"`
	UptimeSeconds   int64    `json:"uptime_seconds"`
	DefaultProvider string   `json:"default_provider"`
	Providers       int      `json:"providers"`
	Lessons         int      `json:"lessons"`
	Retrieval       string   `json:"retrieval"`
	Sinks           []string `json:"sinks"`
	Grounding       string   `json:"grounding"`
	Queue           bool     `json:"queue"`
}

// cmdStatus shows daemon status
func cmdStatus() error {
	if !isRunning() {
		fmt.Println("Status: stopped")
		return nil
	}

	addr := daemonAddr()
	resp, err := httpClient.Get(addr + "/v1/status")
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}
	defer resp.Body.Close()

	var status daemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("parse status: %w", err)
	}

	fmt.Printf("Status:    %s\n", status.Status)
	fmt.Printf("Version:   %s\n", status.Version)
	fmt.Printf("Uptime:    %s\n", time.Duration(status.UptimeSeconds)*time.Second)
	fmt.Printf("Provider:  %s (%d registered)\n", status.DefaultProvider, status.Providers)
	fmt.Printf("Lessons:   %d\n", status.Lessons)
	fmt.Printf("Retrieval: %s (grounding %s)\n", status.Retrieval, status.Grounding)
	fmt.Printf("Sinks:     %s\n", strings.Join(status.Sinks, ", "))
	fmt.Printf("Queue:     %t\n", status.Queue)
	fmt.Printf("Address:   %s\n", addr)

	return nil
}

// cmdLogs prints the tail of the daemon log
func cmdLogs() error {
	nahwDir, err := config.NahwDir()
	if err != nil {
		return err
	}

	logPath := filepath.Join(nahwDir, "logs", "nahwd.log")
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Println("No log file found. Start the daemon first.")
		return nil
	}

	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	offset := max(info.Size()-4096, 0)
	if _, err := file.Seek(offset, 0); err != nil {
		return err
	}

	reader := bufio.NewReader(file)
	if offset > 0 {
		_, _ = reader.ReadString('\n')
	}

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}
	return scanner.Err()
}

// isRunning checks the daemon health endpoint
func isRunning() bool {
	resp, err := httpClient.Get(daemonAddr() + "/v1/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// findDaemonBinary locates the nahwd binary
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath("nahwd"); err == nil {
		return path, nil
	}

	if self, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(self), "nahwd")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	for _, path := range []string{"/usr/local/bin/nahwd", "./nahwd", "./cmd/nahwd/nahwd"} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("nahwd binary not found (build with 'go build ./cmd/nahwd')")
}
