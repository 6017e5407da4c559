package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"registrar/internal/event/metrics"
	"registrar/internal/event/models"
)

// Indexer accepts a freshly folded event state.
type Indexer interface {
	Index(ctx context.Context, event models.IndexedEvent) error
}

// Sink is a named Indexer inside a Fanout.
type Sink struct {
	Name    string
	Indexer Indexer
}

// Fanout pushes each projection to every sink. A failing sink does not stop
// the others; failures are logged, counted and returned joined.
type Fanout struct {
	sinks   []Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type FanoutOption func(*Fanout)

func WithLogger(l *slog.Logger) FanoutOption {
	return func(f *Fanout) {
		f.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) FanoutOption {
	return func(f *Fanout) {
		f.metrics = m
	}
}

func NewFanout(sinks []Sink, opts ...FanoutOption) *Fanout {
	f := &Fanout{sinks: sinks, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fanout) Index(ctx context.Context, event models.IndexedEvent) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Indexer.Index(ctx, event); err != nil {
			f.metrics.IncrementIndexFailure(sink.Name)
			f.logger.WarnContext(ctx, "index publication failed",
				"sink", sink.Name,
				"event_id", event.ID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name, err))
		}
	}
	return errors.Join(errs...)
}
