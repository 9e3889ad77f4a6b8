//go:build integration

package evallog_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/felixgeelhaar/nahw/internal/domain"
	"github.com/felixgeelhaar/nahw/internal/evallog"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres starts a throwaway Postgres and returns its URL
func setupPostgres(t *testing.T) (string, func()) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "nahw",
				"POSTGRES_PASSWORD": "nahw",
				"POSTGRES_DB":       "nahw",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start Postgres container: %v", err)
	}

	cleanup := func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	host, err := container.Host(ctx)
	if err != nil {
		cleanup()
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		cleanup()
		t.Fatalf("container port: %v", err)
	}

	return fmt.Sprintf("postgres://nahw:nahw@%s:%s/nahw?sslmode=disable", host, port.Port()), cleanup
}

func TestIntegration_PostgresSink_Append(t *testing.T) {
	url, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	sink, err := evallog.NewPostgresSink(ctx, url, "eval_records")
	if err != nil {
		t.Fatalf("NewPostgresSink() error = %v", err)
	}
	defer sink.Close()

	for i := 0; i < 3; i++ {
		rec := domain.LogRecord{
			ID:        uuid.New(),
			LessonID:  "cases",
			Provider:  "gemini",
			Prompt:    fmt.Sprintf("prompt %d", i),
			Response:  `{"score":70,"correct_points":[],"incorrect_points":[],"missed_points":[],"generated_feedback":"f","rewritten_answer":"r"}`,
			CreatedAt: time.Now(),
		}
		if err := sink.Append(ctx, rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	n, err := sink.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count() = %d; want 3", n)
	}

	// Reconnecting keeps the existing table
	again, err := evallog.NewPostgresSink(ctx, url, "eval_records")
	if err != nil {
		t.Fatalf("reconnect error = %v", err)
	}
	defer again.Close()
	if n, _ := again.Count(ctx); n != 3 {
		t.Errorf("Count() after reconnect = %d; want 3", n)
	}
}
