package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidRequest is returned when a scan request lacks a required field.
var ErrInvalidRequest = errors.New("invalid scan request")

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ScanRequest asks the service to process one radar volume.
type ScanRequest struct {
	ID        string `json:"id,omitempty"`
	RadarFile string `json:"radar_file"`
	Sounding  string `json:"sounding"`
	// Output overrides the generated product path.
	Output string `json:"output,omitempty"`
}

// ParseScanRequest decodes a RawEvent's value into a ScanRequest. A request
// without an id gets a random one.
func ParseScanRequest(raw RawEvent) (ScanRequest, error) {
	var req ScanRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return ScanRequest{}, fmt.Errorf("parse scan request: %w", err)
	}
	req.RadarFile = strings.TrimSpace(req.RadarFile)
	req.Sounding = strings.TrimSpace(req.Sounding)
	if req.RadarFile == "" {
		return ScanRequest{}, fmt.Errorf("%w: radar_file is required", ErrInvalidRequest)
	}
	if req.Sounding == "" {
		return ScanRequest{}, fmt.Errorf("%w: sounding is required", ErrInvalidRequest)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	return req, nil
}

// RainStats summarises rain rate over rain gates.
type RainStats struct {
	Gates int     `json:"gates"`
	Mean  float64 `json:"mean_mm_hr"`
	Max   float64 `json:"max_mm_hr"`
}

// ProductEvent describes a processed volume. It is published to the sink topic
// and recorded in the catalog.
type ProductEvent struct {
	ID             string         `json:"id"`
	Site           string         `json:"site"`
	ScanTime       time.Time      `json:"scan_time"`
	RadarFile      string         `json:"radar_file"`
	SoundingSource string         `json:"sounding"`
	OutputPath     string         `json:"output_path"`
	Rays           int            `json:"rays"`
	Gates          int            `json:"gates"`
	GateCounts     map[string]int `json:"gate_counts"`
	RainRate       RainStats      `json:"rain_rate"`
	ProcessedAt    time.Time      `json:"processed_at"`
}

// Summarize builds the product event for a processed volume.
func Summarize(req ScanRequest, vol *Volume, outputPath string) ProductEvent {
	rays, gates := vol.Shape()
	ev := ProductEvent{
		ID:             req.ID,
		Site:           vol.Site,
		ScanTime:       vol.Time,
		RadarFile:      req.RadarFile,
		SoundingSource: req.Sounding,
		OutputPath:     outputPath,
		Rays:           rays,
		Gates:          gates,
		GateCounts:     map[string]int{},
		ProcessedAt:    clock.Now().UTC(),
	}

	gateID, err := vol.Field(FieldGateID)
	if err != nil || gateID.Categories == nil {
		return ev
	}
	ids := gateID.Values()
	for i, v := range ids {
		if gateID.Masked(i) {
			continue
		}
		if label := gateID.Categories.Label(int(v)); label != "" {
			ev.GateCounts[label]++
		}
	}

	rain, err := vol.Field(FieldRainRate)
	if err != nil {
		return ev
	}
	rainID, err := gateID.Categories.ID(CategoryRain)
	if err != nil {
		return ev
	}
	var sum float64
	for i, r := range rain.Values() {
		if rain.Masked(i) || int(ids[i]) != rainID || math.IsNaN(r) {
			continue
		}
		ev.RainRate.Gates++
		sum += r
		ev.RainRate.Max = max(ev.RainRate.Max, r)
	}
	if ev.RainRate.Gates > 0 {
		ev.RainRate.Mean = sum / float64(ev.RainRate.Gates)
	}
	return ev
}
