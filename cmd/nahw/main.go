package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/felixgeelhaar/nahw/internal/config"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	pidFile = "nahwd.pid"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = cmdInit()
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "status":
		err = cmdStatus()
	case "logs":
		err = cmdLogs()
	case "doctor":
		err = cmdDoctor()
	case "config":
		err = cmdConfig()
	case "provider", "providers":
		err = cmdProvider(os.Args[2:])
	case "evaluate", "eval":
		err = cmdEvaluate(os.Args[2:])
	case "ingest":
		err = cmdIngest(os.Args[2:])
	case "index":
		err = cmdIndex()
	case "lessons", "lesson":
		err = cmdLessons(os.Args[2:])
	case "log":
		err = cmdLog(os.Args[2:])
	case "mcp":
		err = cmdMCP()
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("nahw %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`nahw - Arabic grammar recall evaluator

Usage:
  nahw <command> [arguments]

Setup Commands:
  init              Initialize nahw (first-time setup)
  doctor            Check configuration, index and providers
  config            Show current configuration
  provider          Manage model providers

Daemon Commands:
  start             Start the nahw daemon
  stop              Stop the nahw daemon
  status            Show daemon status
  logs              View daemon logs

Evaluation Commands:
  evaluate          Grade a learner answer for a lesson
  lessons           List lessons, or show one lesson
  log               Print the evaluation dataset (-sqlite for the SQLite mirror)

Textbook Commands:
  ingest <path>...  Chunk, embed and index textbook files or directories
  index             Show index statistics

Integration Commands:
  mcp               Start MCP server on stdio

Other:
  help              Show this help message
  version           Show version information

Examples:
  nahw ingest textbook.txt
  nahw ingest ./textbook/
  nahw evaluate -lesson lesson1 -provider gemini "هذا للمذكر القريب"
  echo "..." | nahw evaluate -lesson cases
  nahw evaluate -async -lesson cases "الفاعل مرفوع"
  nahw lessons lesson1`)
}

// renderScoreBar draws score out of 100 as a bar
func renderScoreBar(score, width int) string {
	filled := min(max(score*width/100, 0), width)
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}
