// Package influx writes per-scan product statistics to InfluxDB.
package influx

import (
	"context"
	"fmt"
	"slices"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/couchcryptid/storm-cmac-service/internal/domain"
)

// Measurement is the InfluxDB measurement holding scan statistics.
const Measurement = "cmac_scan"

// pointWriter is the subset of api.WriteAPIBlocking used by Recorder.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Recorder writes one point per product event.
type Recorder struct {
	client influxdb2.Client
	writer pointWriter
}

// NewRecorder creates a blocking writer for org/bucket at url.
func NewRecorder(url, token, org, bucket string) *Recorder {
	client := influxdb2.NewClient(url, token)
	return &Recorder{
		client: client,
		writer: client.WriteAPIBlocking(org, bucket),
	}
}

// Record writes a point per event, timestamped at the scan time.
func (r *Recorder) Record(ctx context.Context, events []domain.ProductEvent) error {
	if len(events) == 0 {
		return nil
	}
	points := make([]*write.Point, len(events))
	for i, ev := range events {
		points[i] = toPoint(ev)
	}
	if err := r.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write influx points: %w", err)
	}
	return nil
}

// Close releases the client's resources.
func (r *Recorder) Close() {
	if r.client != nil {
		r.client.Close()
	}
}

func toPoint(ev domain.ProductEvent) *write.Point {
	tags := map[string]string{
		"site": ev.Site,
	}
	fields := map[string]interface{}{
		"rays":            ev.Rays,
		"gates":           ev.Gates,
		"rain_gates":      ev.RainRate.Gates,
		"rain_mean_mm_hr": ev.RainRate.Mean,
		"rain_max_mm_hr":  ev.RainRate.Max,
		"product_id":      ev.ID,
	}
	labels := make([]string, 0, len(ev.GateCounts))
	for label := range ev.GateCounts {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	for _, label := range labels {
		fields["gates_"+label] = ev.GateCounts[label]
	}
	return influxdb2.NewPoint(Measurement, tags, fields, ev.ScanTime)
}
