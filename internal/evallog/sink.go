// Package evallog appends evaluation records to the dataset sinks: the CSV
// file consumed by the offline rubric scripts plus optional SQLite and
// Postgres mirrors.
package evallog

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/felixgeelhaar/nahw/internal/domain"
)

// Sink persists evaluation records
type Sink interface {
	Name() string
	Append(ctx context.Context, rec domain.LogRecord) error
}

// Fanout appends each record to every configured sink. A failing sink
// does not stop the others.
type Fanout struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewFanout creates a fanout over the given sinks
func NewFanout(logger *slog.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{sinks: sinks, logger: logger}
}

// Append writes rec to all sinks and returns one warning per failure
func (f *Fanout) Append(ctx context.Context, rec domain.LogRecord) []*domain.LoggingWarning {
	var warnings []*domain.LoggingWarning
	for _, s := range f.sinks {
		if err := s.Append(ctx, rec); err != nil {
			f.logger.Warn("evaluation log append failed", "sink", s.Name(), "id", rec.ID, "error", err)
			warnings = append(warnings, &domain.LoggingWarning{Sink: s.Name(), Err: err})
		}
	}
	return warnings
}

// Names lists the sinks in append order
func (f *Fanout) Names() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return names
}

// Close closes every sink that holds resources
func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
