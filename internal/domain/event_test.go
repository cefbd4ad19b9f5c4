package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScanRequest(t *testing.T) {
	t.Run("complete request", func(t *testing.T) {
		raw := RawEvent{Value: []byte(`{"id":"scan-1","radar_file":" /data/x.nc ","sounding":"/data/s.nc","output":"/out/x.nc"}`)}
		req, err := ParseScanRequest(raw)
		require.NoError(t, err)
		assert.Equal(t, ScanRequest{ID: "scan-1", RadarFile: "/data/x.nc", Sounding: "/data/s.nc", Output: "/out/x.nc"}, req)
	})

	t.Run("generated id", func(t *testing.T) {
		req, err := ParseScanRequest(RawEvent{Value: []byte(`{"radar_file":"x.nc","sounding":"s.nc"}`)})
		require.NoError(t, err)
		assert.Len(t, req.ID, 36)
	})

	tests := []struct {
		name  string
		value string
	}{
		{"invalid json", `{"radar_file":`},
		{"missing radar file", `{"sounding":"s.nc"}`},
		{"missing sounding", `{"radar_file":"x.nc"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScanRequest(RawEvent{Value: []byte(tt.value)})
			require.Error(t, err)
		})
	}
}

func TestSummarize(t *testing.T) {
	now := time.Date(2024, 5, 20, 21, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { SetClock(nil) })

	v := testVolume(1, 4)
	v.Time = now.Add(-time.Hour)

	cats, err := ParseCategoryNotes("0:multi_trip,1:rain,2:snow,3:no_scatter,4:melting,5:clutter")
	require.NoError(t, err)
	gateID := v.NewField(FieldAttrs{})
	gateID.Categories = &cats
	copy(gateID.Values(), []float64{1, 1, 5, 2})
	require.NoError(t, v.AddField(FieldGateID, gateID, true))

	rain := v.NewField(FieldAttrs{})
	copy(rain.Values(), []float64{10, 20, 99, 0})
	require.NoError(t, v.AddField(FieldRainRate, rain, true))

	ev := Summarize(ScanRequest{ID: "scan-1", RadarFile: "x.nc", Sounding: "s.nc"}, v, "/out/x.nc")

	assert.Equal(t, "scan-1", ev.ID)
	assert.Equal(t, "sgp", ev.Site)
	assert.Equal(t, now, ev.ProcessedAt)
	assert.Equal(t, v.Time, ev.ScanTime)
	assert.Equal(t, map[string]int{"rain": 2, "clutter": 1, "snow": 1}, ev.GateCounts)
	assert.Equal(t, RainStats{Gates: 2, Mean: 15, Max: 20}, ev.RainRate)
	assert.Equal(t, 1, ev.Rays)
	assert.Equal(t, 4, ev.Gates)
}

func TestSummarizeWithoutProducts(t *testing.T) {
	ev := Summarize(ScanRequest{ID: "scan-2"}, testVolume(2, 2), "")
	assert.Empty(t, ev.GateCounts)
	assert.Zero(t, ev.RainRate.Gates)
}
