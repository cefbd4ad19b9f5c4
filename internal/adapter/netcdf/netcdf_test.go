package netcdf

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-cmac-service/internal/domain"
	"github.com/couchcryptid/storm-cmac-service/internal/synth"
)

func TestVolumeRoundTrip(t *testing.T) {
	vol := synth.Volume(synth.DefaultOptions())
	vol.Altitude = 315
	vol.Metadata = map[string]any{"site_id": "sgp", "version": 2.0, "tags": []string{"a", "b"}}

	vmax := 5.0
	gateID := vol.NewField(domain.FieldAttrs{Notes: "0:rain,1:snow", ValidMax: &vmax})
	gateID.Values()[3] = 1
	require.NoError(t, vol.AddField(domain.FieldGateID, gateID, false))

	path := filepath.Join(t.TempDir(), "out", "vol.nc")
	require.NoError(t, WriteVolume(path, vol))
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file should be renamed away")

	got, err := ReadVolume(path)
	require.NoError(t, err)

	assert.Equal(t, vol.Site, got.Site)
	assert.True(t, vol.Time.Equal(got.Time))
	assert.InDelta(t, vol.Latitude, got.Latitude, 1e-9)
	assert.InDelta(t, 315.0, got.Altitude, 1e-9)
	assert.Equal(t, vol.SweepStart, got.SweepStart)
	assert.Equal(t, vol.SweepEnd, got.SweepEnd)
	assert.InDeltaSlice(t, vol.Range, got.Range, 1e-3)
	assert.InDeltaSlice(t, vol.Azimuth, got.Azimuth, 1e-3)

	assert.Equal(t, "sgp", got.Metadata["site_id"])
	assert.InDelta(t, 2.0, got.Metadata["version"], 1e-9)
	assert.Equal(t, `["a","b"]`, got.Metadata["tags"])

	require.Len(t, got.Fields, len(vol.Fields))
	refl, err := got.Field(domain.FieldReflectivity)
	require.NoError(t, err)
	want := vol.Fields[domain.FieldReflectivity]
	assert.Equal(t, "dBZ", refl.Attrs.Units)
	for i, x := range want.Values() {
		assert.Equal(t, want.Masked(i), refl.Masked(i), "gate %d mask", i)
		if !want.Masked(i) {
			assert.InDelta(t, x, refl.Values()[i], 1e-3)
		}
	}

	gid, err := got.Field(domain.FieldGateID)
	require.NoError(t, err)
	require.NotNil(t, gid.Categories)
	assert.Equal(t, map[string]int{"rain": 0, "snow": 1}, gid.Categories.AsMap())
	require.NotNil(t, gid.Attrs.ValidMax)
	assert.InDelta(t, 5.0, *gid.Attrs.ValidMax, 1e-9)
}

func TestWriteVolume_Empty(t *testing.T) {
	err := WriteVolume(filepath.Join(t.TempDir(), "x.nc"), &domain.Volume{})
	assert.ErrorIs(t, err, ErrEmptyVolume)
}

func TestReadVolume_Missing(t *testing.T) {
	_, err := ReadVolume(filepath.Join(t.TempDir(), "absent.nc"))
	assert.Error(t, err)
}

func TestReadVolume_NotNetCDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.nc")
	require.NoError(t, os.WriteFile(path, []byte("not a netcdf file"), 0o644))
	_, err := ReadVolume(path)
	assert.Error(t, err)
}

func TestSoundingRoundTrip(t *testing.T) {
	snd := synth.Sounding(synth.DefaultOptions())
	snd.Variables[synth.SoundingTemperature][2] = math.NaN()

	path := filepath.Join(t.TempDir(), "sonde.nc")
	require.NoError(t, WriteSounding(path, &snd))

	got, err := ReadSounding(path)
	require.NoError(t, err)
	assert.Equal(t, path, got.Source)
	require.Contains(t, got.Variables, synth.SoundingHeight)
	temps := got.Variables[synth.SoundingTemperature]
	require.Len(t, temps, len(snd.Variables[synth.SoundingTemperature]))
	assert.True(t, math.IsNaN(temps[2]))
	assert.InDelta(t, 25.0, temps[0], 1e-4)

	prof, err := got.Profile(synth.SoundingTemperature, synth.SoundingHeight)
	require.NoError(t, err)
	fz, ok := prof.FreezingHeight()
	require.True(t, ok)
	assert.InDelta(t, 25/6.5*1000, fz, 1)
}

func TestDecodeSoundingBytes(t *testing.T) {
	snd := synth.Sounding(synth.DefaultOptions())
	path := filepath.Join(t.TempDir(), "sonde.nc")
	require.NoError(t, WriteSounding(path, &snd))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	got, err := DecodeSoundingBytes(data, "http://example.test/sonde.nc")
	require.NoError(t, err)
	assert.Equal(t, "http://example.test/sonde.nc", got.Source)
	assert.Len(t, got.Variables, 2)
}

func TestWriteSounding_Mismatch(t *testing.T) {
	snd := &domain.Sounding{Variables: map[string][]float64{"a": {1, 2}, "b": {1}}}
	err := WriteSounding(filepath.Join(t.TempDir(), "bad.nc"), snd)
	assert.ErrorIs(t, err, domain.ErrShapeMismatch)
}

func TestWriteVolume_OverwritesAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.nc")
	vol := synth.Volume(synth.DefaultOptions())

	require.NoError(t, WriteVolume(path, vol))
	require.NoError(t, WriteVolume(path, vol))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out.nc", entries[0].Name())

	got, err := ReadVolume(path)
	require.NoError(t, err)
	rays, gates := got.Shape()
	wantRays, wantGates := vol.Shape()
	assert.Equal(t, wantRays, rays)
	assert.Equal(t, wantGates, gates)
	assert.InDeltaSlice(t, vol.Range, got.Range, 1e-3)
	assert.Equal(t, vol.SweepStart, got.SweepStart)
}

func TestReadOnlyBuffer_RejectsWrites(t *testing.T) {
	_, err := readOnlyBuffer{}.WriteAt([]byte{1}, 0)
	assert.ErrorIs(t, err, ErrReadOnly)
}
