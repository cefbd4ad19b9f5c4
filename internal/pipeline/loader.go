package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/storm-cmac-service/internal/domain"
	"github.com/couchcryptid/storm-cmac-service/internal/observability"
)

// Recorder stores product events in a secondary sink.
type Recorder interface {
	Record(ctx context.Context, events []domain.ProductEvent) error
}

// FanOutLoader publishes to a primary loader and then records to secondary
// sinks. Only primary failures are returned; secondary failures are logged and
// counted so a flaky catalog never causes duplicate publishes.
type FanOutLoader struct {
	primary     BatchLoader
	secondaries map[string]Recorder
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewFanOutLoader creates a loader. Nil secondaries are skipped.
func NewFanOutLoader(primary BatchLoader, secondaries map[string]Recorder, logger *slog.Logger, metrics *observability.Metrics) *FanOutLoader {
	active := make(map[string]Recorder, len(secondaries))
	for name, r := range secondaries {
		if r != nil {
			active[name] = r
		}
	}
	return &FanOutLoader{primary: primary, secondaries: active, logger: logger, metrics: metrics}
}

func (l *FanOutLoader) LoadBatch(ctx context.Context, events []domain.ProductEvent) error {
	if err := l.primary.LoadBatch(ctx, events); err != nil {
		return err
	}
	for name, r := range l.secondaries {
		if err := r.Record(ctx, events); err != nil {
			l.metrics.SinkErrors.WithLabelValues(name).Inc()
			l.logger.Warn("secondary sink failed", "sink", name, "error", err, "batch_size", len(events))
		}
	}
	return nil
}
