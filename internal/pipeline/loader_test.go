package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-cmac-service/internal/domain"
	"github.com/couchcryptid/storm-cmac-service/internal/pipeline"
)

type mockRecorder struct {
	recorded []domain.ProductEvent
	err      error
}

func (m *mockRecorder) Record(_ context.Context, events []domain.ProductEvent) error {
	if m.err != nil {
		return m.err
	}
	m.recorded = append(m.recorded, events...)
	return nil
}

func TestFanOutLoader_AllSinks(t *testing.T) {
	primary := &mockLoader{}
	cat, influx := &mockRecorder{}, &mockRecorder{}
	l := pipeline.NewFanOutLoader(primary, map[string]pipeline.Recorder{"catalog": cat, "influx": influx}, discardLogger(), newTestMetrics())

	events := []domain.ProductEvent{{ID: "a"}, {ID: "b"}}
	require.NoError(t, l.LoadBatch(context.Background(), events))

	assert.Len(t, primary.snapshot(), 2)
	assert.Equal(t, events, cat.recorded)
	assert.Equal(t, events, influx.recorded)
}

func TestFanOutLoader_PrimaryFailureSkipsSecondaries(t *testing.T) {
	primary := &mockLoader{failures: 1}
	cat := &mockRecorder{}
	l := pipeline.NewFanOutLoader(primary, map[string]pipeline.Recorder{"catalog": cat}, discardLogger(), newTestMetrics())

	err := l.LoadBatch(context.Background(), []domain.ProductEvent{{ID: "a"}})
	require.Error(t, err)
	assert.Empty(t, cat.recorded)
}

func TestFanOutLoader_SecondaryFailureCounted(t *testing.T) {
	metrics := newTestMetrics()
	primary := &mockLoader{}
	l := pipeline.NewFanOutLoader(primary, map[string]pipeline.Recorder{
		"catalog": &mockRecorder{err: errors.New("disk full")},
		"influx":  nil,
	}, discardLogger(), metrics)

	require.NoError(t, l.LoadBatch(context.Background(), []domain.ProductEvent{{ID: "a"}}))
	assert.Len(t, primary.snapshot(), 1)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SinkErrors.WithLabelValues("catalog")), 0)
}
