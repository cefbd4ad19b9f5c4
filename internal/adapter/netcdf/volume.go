// Package netcdf reads and writes radar volumes and soundings as NetCDF-3
// classic files.
//
// Volumes use a CF/Radial-like layout: dimensions time (rays), range (gates),
// sweep and site; each field is a float32 variable on (time, range) whose
// masked gates hold _FillValue.
package netcdf

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/ctessum/cdf"

	"github.com/couchcryptid/storm-cmac-service/internal/domain"
)

// ErrEmptyVolume is returned when writing a volume with no rays or gates.
var ErrEmptyVolume = errors.New("volume has no rays or gates")

const (
	dimTime  = "time"
	dimRange = "range"
	dimSweep = "sweep"
	dimSite  = "site"

	varRange      = "range"
	varAzimuth    = "azimuth"
	varElevation  = "elevation"
	varNyquist    = "nyquist_velocity"
	varSweepStart = "sweep_start_ray_index"
	varSweepEnd   = "sweep_end_ray_index"
	varLatitude   = "latitude"
	varLongitude  = "longitude"
	varAltitude   = "altitude"

	attrTimeCoverage = "time_coverage_start"
	attrSiteName     = "site_name"
	attrConventions  = "Conventions"
)

var reservedGlobals = map[string]bool{
	attrTimeCoverage: true,
	attrSiteName:     true,
	attrConventions:  true,
}

// ReadVolume loads a volume written by WriteVolume, or any file following the
// same layout.
func ReadVolume(path string) (*domain.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open volume: %w", err)
	}
	defer f.Close()

	ff, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("decode volume header %s: %w", path, err)
	}

	v := &domain.Volume{Fields: make(map[string]*domain.Field)}
	coords := []struct {
		name string
		dst  *[]float64
	}{
		{varRange, &v.Range},
		{varAzimuth, &v.Azimuth},
		{varElevation, &v.Elevation},
		{varNyquist, &v.Nyquist},
	}
	for _, c := range coords {
		if *c.dst, err = readFloat64(ff, c.name); err != nil {
			return nil, err
		}
	}
	if v.SweepStart, err = readInts(ff, varSweepStart); err != nil {
		return nil, err
	}
	if v.SweepEnd, err = readInts(ff, varSweepEnd); err != nil {
		return nil, err
	}
	for name, dst := range map[string]*float64{varLatitude: &v.Latitude, varLongitude: &v.Longitude, varAltitude: &v.Altitude} {
		vals, err := readFloat64(ff, name)
		if err != nil {
			return nil, err
		}
		if len(vals) > 0 {
			*dst = vals[0]
		}
	}

	if s, ok := ff.Header.GetAttribute("", attrSiteName).(string); ok {
		v.Site = s
	}
	if s, ok := ff.Header.GetAttribute("", attrTimeCoverage).(string); ok {
		if v.Time, err = time.Parse(time.RFC3339, s); err != nil {
			return nil, fmt.Errorf("parse %s: %w", attrTimeCoverage, err)
		}
	}
	v.Metadata = readGlobals(ff)

	rays, gates := v.Shape()
	for _, name := range ff.Header.Variables() {
		dims := ff.Header.Dimensions(name)
		if len(dims) != 2 || dims[0] != dimTime || dims[1] != dimRange {
			continue
		}
		field, err := readField(ff, name, rays, gates)
		if err != nil {
			return nil, err
		}
		if err := v.AddField(name, field, false); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func readField(ff *cdf.File, name string, rays, gates int) (*domain.Field, error) {
	vals, err := readFloat64(ff, name)
	if err != nil {
		return nil, err
	}
	if len(vals) != rays*gates {
		return nil, fmt.Errorf("%w: %s has %d values", domain.ErrShapeMismatch, name, len(vals))
	}
	attrs := domain.FieldAttrs{
		Units:        stringAttr(ff, name, "units"),
		StandardName: stringAttr(ff, name, "standard_name"),
		LongName:     stringAttr(ff, name, "long_name"),
		Comment:      stringAttr(ff, name, "comment"),
		Notes:        stringAttr(ff, name, "notes"),
		FillValue:    domain.DefaultFillValue,
	}
	if fv, ok := numberAttr(ff, name, "_FillValue"); ok {
		attrs.FillValue = fv
	}
	if vmin, ok := numberAttr(ff, name, "valid_min"); ok {
		attrs.ValidMin = &vmin
	}
	if vmax, ok := numberAttr(ff, name, "valid_max"); ok {
		attrs.ValidMax = &vmax
	}
	if lsd, ok := numberAttr(ff, name, "least_significant_digit"); ok {
		attrs.LeastSignificantDigit = int(lsd)
	}

	field := domain.NewField(rays, gates, attrs)
	fill := float32(attrs.FillValue)
	for i, x := range vals {
		if float32(x) == fill || math.IsNaN(x) {
			field.SetMasked(i, true)
			continue
		}
		field.Values()[i] = x
	}
	if name == domain.FieldGateID && attrs.Notes != "" {
		if cats, err := domain.ParseCategoryNotes(attrs.Notes); err == nil {
			field.Categories = &cats
		}
	}
	return field, nil
}

// WriteVolume writes v to path. The file is written to a sibling temporary
// path and renamed into place.
func WriteVolume(path string, v *domain.Volume) error {
	rays, gates := v.Shape()
	if rays == 0 || gates == 0 {
		return ErrEmptyVolume
	}
	sweeps := len(v.SweepStart)
	if sweeps == 0 {
		sweeps = 1
	}

	names := make([]string, 0, len(v.Fields))
	for name := range v.Fields {
		names = append(names, name)
	}
	slices.Sort(names)

	h := cdf.NewHeader(
		[]string{dimTime, dimRange, dimSweep, dimSite},
		[]int{rays, gates, sweeps, 1},
	)
	h.AddAttribute("", attrConventions, "CF/Radial")
	h.AddAttribute("", attrSiteName, v.Site)
	h.AddAttribute("", attrTimeCoverage, v.Time.UTC().Format(time.RFC3339))
	writeGlobals(h, v.Metadata)

	h.AddVariable(varRange, []string{dimRange}, []float32{0})
	h.AddAttribute(varRange, "units", "meters")
	h.AddVariable(varAzimuth, []string{dimTime}, []float32{0})
	h.AddAttribute(varAzimuth, "units", "degrees")
	h.AddVariable(varElevation, []string{dimTime}, []float32{0})
	h.AddAttribute(varElevation, "units", "degrees")
	h.AddVariable(varNyquist, []string{dimTime}, []float32{0})
	h.AddAttribute(varNyquist, "units", "meters_per_second")
	h.AddVariable(varSweepStart, []string{dimSweep}, []int32{0})
	h.AddVariable(varSweepEnd, []string{dimSweep}, []int32{0})
	h.AddVariable(varLatitude, []string{dimSite}, []float64{0})
	h.AddAttribute(varLatitude, "units", "degrees_north")
	h.AddVariable(varLongitude, []string{dimSite}, []float64{0})
	h.AddAttribute(varLongitude, "units", "degrees_east")
	h.AddVariable(varAltitude, []string{dimSite}, []float64{0})
	h.AddAttribute(varAltitude, "units", "meters")

	for _, name := range names {
		defineField(h, name, v.Fields[name])
	}
	h.Define()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create volume file: %w", err)
	}
	if err := writeBody(out, h, v, names); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close volume file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename volume file: %w", err)
	}
	return nil
}

func defineField(h *cdf.Header, name string, f *domain.Field) {
	h.AddVariable(name, []string{dimTime, dimRange}, []float32{0})
	for attr, val := range map[string]string{
		"units":         f.Attrs.Units,
		"standard_name": f.Attrs.StandardName,
		"long_name":     f.Attrs.LongName,
		"comment":       f.Attrs.Comment,
		"notes":         f.Attrs.Notes,
	} {
		if val != "" {
			h.AddAttribute(name, attr, val)
		}
	}
	h.AddAttribute(name, "_FillValue", []float32{float32(f.Attrs.FillValue)})
	if f.Attrs.ValidMin != nil {
		h.AddAttribute(name, "valid_min", []float32{float32(*f.Attrs.ValidMin)})
	}
	if f.Attrs.ValidMax != nil {
		h.AddAttribute(name, "valid_max", []float32{float32(*f.Attrs.ValidMax)})
	}
	if f.Attrs.LeastSignificantDigit != 0 {
		h.AddAttribute(name, "least_significant_digit", []int32{int32(f.Attrs.LeastSignificantDigit)})
	}
}

func writeBody(out *os.File, h *cdf.Header, v *domain.Volume, names []string) error {
	ff, err := cdf.Create(out, h)
	if err != nil {
		return fmt.Errorf("write volume header: %w", err)
	}

	sweepStart, sweepEnd := toInt32(v.SweepStart), toInt32(v.SweepEnd)
	if len(sweepStart) == 0 {
		rays, _ := v.Shape()
		sweepStart, sweepEnd = []int32{0}, []int32{int32(rays - 1)}
	}
	writes := []struct {
		name string
		data any
	}{
		{varRange, toFloat32(v.Range)},
		{varAzimuth, toFloat32(v.Azimuth)},
		{varElevation, toFloat32(v.Elevation)},
		{varNyquist, toFloat32(v.Nyquist)},
		{varSweepStart, sweepStart},
		{varSweepEnd, sweepEnd},
		{varLatitude, []float64{v.Latitude}},
		{varLongitude, []float64{v.Longitude}},
		{varAltitude, []float64{v.Altitude}},
	}
	for _, name := range names {
		writes = append(writes, struct {
			name string
			data any
		}{name, fieldData(v.Fields[name])})
	}
	for _, w := range writes {
		if err := writeVariable(ff, w.name, w.data); err != nil {
			return err
		}
	}
	return nil
}

// writeVariable writes the whole of a non-record variable. The cdf writer
// reports io.EOF once the variable is full, which is success when every
// element went out.
func writeVariable(ff *cdf.File, name string, data any) error {
	n, err := ff.Writer(name, nil, nil).Write(data)
	if errors.Is(err, io.EOF) && n == sliceLen(data) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("write variable %s: %w", name, err)
	}
	return nil
}

func sliceLen(data any) int {
	switch d := data.(type) {
	case []float32:
		return len(d)
	case []float64:
		return len(d)
	case []int32:
		return len(d)
	}
	return -1
}

func fieldData(f *domain.Field) []float32 {
	vals := f.Values()
	out := make([]float32, len(vals))
	fill := float32(f.Attrs.FillValue)
	for i, x := range vals {
		if f.Masked(i) {
			out[i] = fill
			continue
		}
		out[i] = float32(x)
	}
	return out
}

// writeGlobals stores metadata as global attributes. Strings and numbers are
// written natively; anything else is JSON encoded.
func writeGlobals(h *cdf.Header, meta map[string]any) {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if reservedGlobals[k] {
			continue
		}
		switch val := meta[k].(type) {
		case string:
			if val != "" {
				h.AddAttribute("", k, val)
			}
		case float64:
			h.AddAttribute("", k, []float64{val})
		case float32:
			h.AddAttribute("", k, []float64{float64(val)})
		case int:
			h.AddAttribute("", k, []float64{float64(val)})
		case int64:
			h.AddAttribute("", k, []float64{float64(val)})
		default:
			b, err := json.Marshal(val)
			if err != nil {
				b = []byte(fmt.Sprint(val))
			}
			h.AddAttribute("", k, string(b))
		}
	}
}

func readGlobals(ff *cdf.File) map[string]any {
	meta := make(map[string]any)
	for _, k := range ff.Header.Attributes("") {
		if reservedGlobals[k] {
			continue
		}
		switch val := ff.Header.GetAttribute("", k).(type) {
		case string:
			meta[k] = val
		default:
			nums, ok := numbers(val)
			if !ok {
				continue
			}
			if len(nums) == 1 {
				meta[k] = nums[0]
			} else {
				meta[k] = nums
			}
		}
	}
	return meta
}

func stringAttr(ff *cdf.File, v, name string) string {
	s, _ := ff.Header.GetAttribute(v, name).(string)
	return s
}

func numberAttr(ff *cdf.File, v, name string) (float64, bool) {
	nums, ok := numbers(ff.Header.GetAttribute(v, name))
	if !ok || len(nums) == 0 {
		return 0, false
	}
	return nums[0], true
}

func numbers(val any) ([]float64, bool) {
	switch t := val.(type) {
	case []float64:
		return t, true
	case []float32:
		return widen(t), true
	case []int32:
		return widen(t), true
	case []int16:
		return widen(t), true
	case []int8:
		return widen(t), true
	default:
		return nil, false
	}
}

// readFloat64 reads a whole numeric variable. A missing variable yields nil.
func readFloat64(ff *cdf.File, name string) ([]float64, error) {
	lengths := ff.Header.Lengths(name)
	if len(lengths) == 0 {
		return nil, nil
	}
	r := ff.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("read variable %s: %w", name, err)
	}
	vals, ok := numbers(buf)
	if !ok {
		return nil, fmt.Errorf("read variable %s: unsupported type %T", name, buf)
	}
	return vals, nil
}

func readInts(ff *cdf.File, name string) ([]int, error) {
	vals, err := readFloat64(ff, name)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(vals))
	for i, x := range vals {
		out[i] = int(x)
	}
	return out, nil
}

func widen[T float32 | int32 | int16 | int8](in []T) []float64 {
	out := make([]float64, len(in))
	for i, x := range in {
		out[i] = float64(x)
	}
	return out
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, x := range in {
		out[i] = float32(x)
	}
	return out
}

func toInt32(in []int) []int32 {
	out := make([]int32, len(in))
	for i, x := range in {
		out[i] = int32(x)
	}
	return out
}
