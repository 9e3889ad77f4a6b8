package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/felixgeelhaar/nahw/internal/bootstrap"
	"github.com/felixgeelhaar/nahw/internal/config"
	"github.com/felixgeelhaar/nahw/internal/daemon"
	"github.com/felixgeelhaar/nahw/internal/domain"
	"github.com/felixgeelhaar/nahw/internal/evaluation"
	"github.com/felixgeelhaar/nahw/internal/queue"
)

// cliLogger keeps pipeline logs on stderr and out of command output
func cliLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// cmdEvaluate grades one answer, in process or through the daemon
func cmdEvaluate(args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	lessonID := fs.String("lesson", "", "lesson id (required)")
	provider := fs.String("provider", "", "model provider (default from config)")
	grounding := fs.String("grounding", "", "grounding policy: strict or preferred")
	remote := fs.Bool("remote", false, "send the request to the running daemon")
	async := fs.Bool("async", false, "enqueue the job on RabbitMQ and wait for its result")
	asJSON := fs.Bool("json", false, "print the result contract as JSON")
	verbose := fs.Bool("v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *lessonID == "" {
		return fmt.Errorf("-lesson is required (see 'nahw lessons')")
	}

	answer, err := readAnswer(fs.Args(), os.Stdin)
	if err != nil {
		return err
	}
	req := evaluation.Request{
		LearnerAnswer: answer,
		LessonID:      *lessonID,
		Provider:      *provider,
		Grounding:     *grounding,
	}

	ctx, cancel := signalContext()
	defer cancel()

	var resp *daemon.EvaluationResponse
	switch {
	case *async:
		resp, err = evaluateQueued(ctx, req, cliLogger(*verbose))
	case *remote:
		resp, err = evaluateRemote(ctx, daemonAddr(), req)
	default:
		resp, err = evaluateLocal(ctx, req, cliLogger(*verbose))
	}
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(resp.Result)
	}
	printEvaluation(os.Stdout, resp)
	return nil
}

// readAnswer joins positional args, or reads stdin when there are none
func readAnswer(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read answer: %w", err)
	}
	answer := strings.TrimSpace(string(data))
	if answer == "" {
		return "", domain.ErrEmptyAnswer
	}
	return answer, nil
}

func evaluateLocal(ctx context.Context, req evaluation.Request, logger *slog.Logger) (*daemon.EvaluationResponse, error) {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer app.Close()

	eval, err := app.Evaluations.EvaluateRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	return &daemon.EvaluationResponse{
		ID:         eval.ID,
		LessonID:   eval.LessonID,
		Provider:   eval.Provider,
		Result:     eval.Result,
		Tier:       eval.Tier,
		Warnings:   eval.WarningMessages(),
		DurationMS: eval.Duration.Milliseconds(),
	}, nil
}

// evaluateQueued publishes a job for the daemon's queue workers and waits
// on the results queue
func evaluateQueued(ctx context.Context, req evaluation.Request, logger *slog.Logger) (*daemon.EvaluationResponse, error) {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Queue.URL == "" {
		return nil, domain.ErrQueueDisabled
	}

	conn, err := queue.NewConnection(cfg.Queue.URL, logger)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	results := queue.NewResultConsumer(conn, logger)
	if err := results.Start(ctx); err != nil {
		return nil, err
	}
	defer results.Stop()

	wait := time.Duration(cfg.Queue.JobTimeoutSeconds)*time.Second + 30*time.Second
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	job := queue.NewEvaluationJob(req.LessonID, req.LearnerAnswer, req.Provider, req.Grounding)
	producer := queue.NewProducer(conn, logger)
	result, err := results.Await(ctx, job.ID.String(), func(ctx context.Context) error {
		return producer.PublishEvaluationJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}
	return responseFromResult(result)
}

func responseFromResult(r *queue.EvaluationResult) (*daemon.EvaluationResponse, error) {
	if r.Status != queue.StatusCompleted || r.Result == nil {
		return nil, fmt.Errorf("job %s %s (%s): %s", r.JobID, r.Status, r.ErrorKind, r.Error)
	}
	return &daemon.EvaluationResponse{
		ID:         r.EvaluationID,
		LessonID:   r.LessonID,
		Provider:   r.Provider,
		Result:     r.Result,
		Tier:       r.Tier,
		Warnings:   r.Warnings,
		DurationMS: r.DurationMS,
	}, nil
}

// evaluateRemote posts to the daemon's envelope endpoint
func evaluateRemote(ctx context.Context, addr string, req evaluation.Request) (*daemon.EvaluationResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+"/v1/evaluations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s (run 'nahw start'): %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error   string `json:"error"`
			Kind    string `json:"kind"`
			Details string `json:"details"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			return nil, fmt.Errorf("daemon returned %s", resp.Status)
		}
		return nil, fmt.Errorf("%s (%s): %s", apiErr.Error, apiErr.Kind, apiErr.Details)
	}

	var out daemon.EvaluationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &out, nil
}

func printEvaluation(w io.Writer, e *daemon.EvaluationResponse) {
	r := e.Result
	fmt.Fprintf(w, "Lesson:   %s (judge: %s, %dms)\n", e.LessonID, e.Provider, e.DurationMS)
	fmt.Fprintf(w, "Score:    %s %d/100  %s\n", renderScoreBar(r.Score, 20), r.Score, e.Tier)

	printPoints(w, "Correct", "✓", r.CorrectPoints)
	printPoints(w, "Incorrect", "✗", r.IncorrectPoints)
	printPoints(w, "Missed", "·", r.MissedPoints)

	fmt.Fprintf(w, "\nFeedback\n--------\n%s\n", r.GeneratedFeedback)
	fmt.Fprintf(w, "\nRewritten answer\n----------------\n%s\n", r.RewrittenAnswer)

	for _, warn := range e.Warnings {
		fmt.Fprintf(w, "\n⚠ %s\n", warn)
	}
}

func printPoints(w io.Writer, title, mark string, points []string) {
	if len(points) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", title)
	for _, p := range points {
		fmt.Fprintf(w, "  %s %s\n", mark, p)
	}
}

