package influx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-cmac-service/internal/domain"
)

type fakeWriter struct {
	points []*write.Point
	err    error
}

func (f *fakeWriter) WritePoint(_ context.Context, point ...*write.Point) error {
	if f.err != nil {
		return f.err
	}
	f.points = append(f.points, point...)
	return nil
}

func fieldMap(p *write.Point) map[string]interface{} {
	out := map[string]interface{}{}
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func TestRecord_Points(t *testing.T) {
	fw := &fakeWriter{}
	r := &Recorder{writer: fw}
	scan := time.Date(2024, 5, 20, 21, 3, 0, 0, time.UTC)

	err := r.Record(context.Background(), []domain.ProductEvent{{
		ID:         "scan-1",
		Site:       "sgp",
		ScanTime:   scan,
		Rays:       72,
		Gates:      120,
		GateCounts: map[string]int{"rain": 40, "clutter": 12},
		RainRate:   domain.RainStats{Gates: 40, Mean: 3.5, Max: 21.25},
	}})
	require.NoError(t, err)
	require.Len(t, fw.points, 1)

	p := fw.points[0]
	assert.Equal(t, Measurement, p.Name())
	assert.True(t, scan.Equal(p.Time()))
	require.Len(t, p.TagList(), 1)
	assert.Equal(t, "site", p.TagList()[0].Key)
	assert.Equal(t, "sgp", p.TagList()[0].Value)

	fields := fieldMap(p)
	assert.EqualValues(t, 72, fields["rays"])
	assert.EqualValues(t, 40, fields["gates_rain"])
	assert.EqualValues(t, 12, fields["gates_clutter"])
	assert.InDelta(t, 21.25, fields["rain_max_mm_hr"], 1e-9)
	assert.Equal(t, "scan-1", fields["product_id"])
}

func TestRecord_Empty(t *testing.T) {
	fw := &fakeWriter{}
	r := &Recorder{writer: fw}
	require.NoError(t, r.Record(context.Background(), nil))
	assert.Empty(t, fw.points)
}

func TestRecord_Error(t *testing.T) {
	boom := errors.New("influx down")
	r := &Recorder{writer: &fakeWriter{err: boom}}
	err := r.Record(context.Background(), []domain.ProductEvent{{ID: "x"}})
	assert.ErrorIs(t, err, boom)
}
