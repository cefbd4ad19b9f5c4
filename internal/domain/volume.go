package domain

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/ctessum/sparse"
)

var (
	// ErrFieldNotFound is returned when a named field is absent from a volume.
	ErrFieldNotFound = errors.New("field not found")
	// ErrFieldExists is returned when adding a field that exists without replace.
	ErrFieldExists = errors.New("field already exists")
	// ErrShapeMismatch is returned when a field's grid differs from the volume grid.
	ErrShapeMismatch = errors.New("field shape does not match volume")
)

// Standard field names read or produced by the CMAC sequence.
const (
	FieldReflectivity          = "reflectivity"
	FieldVelocity              = "velocity"
	FieldCrossCorrelationRatio = "cross_correlation_ratio"
	FieldNormalizedCoherentPow = "normalized_coherent_power"
	FieldDifferentialPhase     = "differential_phase"
	FieldDifferentialRefl      = "differential_reflectivity"

	FieldSoundingTemperature = "sounding_temperature"
	FieldHeight              = "height"
	FieldSNR                 = "signal_to_noise_ratio"
	FieldVelocityTexture     = "velocity_texture"
	FieldGateID              = "gate_id"
	FieldCorrectedVelocity   = "corrected_velocity"
	FieldCorrectedPhiDP      = "corrected_differential_phase"
	FieldFilteredPhiDP       = "filtered_corrected_differential_phase"
	FieldCorrectedKDP        = "corrected_specific_diff_phase"
	FieldFilteredKDP         = "filtered_corrected_specific_diff_phase"
	FieldSpecificAttenuation = "specific_attenuation"
	FieldCorrectedRefl       = "attenuation_corrected_reflectivity"
	FieldRainRate            = "rain_rate_A"
)

// DefaultFillValue marks masked gates when a field has no explicit fill value.
const DefaultFillValue = -9999.0

// FieldAttrs holds the CF-style attributes of a field.
type FieldAttrs struct {
	Units                 string
	StandardName          string
	LongName              string
	Comment               string
	Notes                 string
	ValidMin              *float64
	ValidMax              *float64
	FillValue             float64
	LeastSignificantDigit int
}

// Field is a ray × gate grid with a gate mask and attributes.
type Field struct {
	Data  *sparse.DenseArray
	Mask  []bool
	Attrs FieldAttrs

	// Categories is set on gate classification fields only.
	Categories *Categories
}

// NewField allocates a zeroed rays × gates field with no masked gates.
func NewField(rays, gates int, attrs FieldAttrs) *Field {
	if attrs.FillValue == 0 {
		attrs.FillValue = DefaultFillValue
	}
	return &Field{
		Data:  sparse.ZerosDense(rays, gates),
		Attrs: attrs,
	}
}

// Shape returns the (rays, gates) dimensions of the field.
func (f *Field) Shape() (int, int) {
	if f == nil || f.Data == nil || len(f.Data.Shape) != 2 {
		return 0, 0
	}
	return f.Data.Shape[0], f.Data.Shape[1]
}

// Values exposes the row-major gate values.
func (f *Field) Values() []float64 {
	return f.Data.Elements
}

// Masked reports whether gate i (row-major) is invalid.
func (f *Field) Masked(i int) bool {
	return f.Mask != nil && f.Mask[i]
}

// SetMasked marks gate i invalid or valid, allocating the mask on first use.
func (f *Field) SetMasked(i int, masked bool) {
	if f.Mask == nil {
		if !masked {
			return
		}
		f.Mask = make([]bool, len(f.Data.Elements))
	}
	f.Mask[i] = masked
}

// Clone returns a deep copy of the field.
func (f *Field) Clone() *Field {
	rays, gates := f.Shape()
	out := &Field{
		Data:  sparse.ZerosDense(rays, gates),
		Attrs: f.Attrs,
	}
	copy(out.Data.Elements, f.Data.Elements)
	if f.Mask != nil {
		out.Mask = append([]bool(nil), f.Mask...)
	}
	if f.Attrs.ValidMin != nil {
		v := *f.Attrs.ValidMin
		out.Attrs.ValidMin = &v
	}
	if f.Attrs.ValidMax != nil {
		v := *f.Attrs.ValidMax
		out.Attrs.ValidMax = &v
	}
	if f.Categories != nil {
		c := f.Categories.clone()
		out.Categories = &c
	}
	return out
}

// Volume is one radar volume scan. It is owned by a single caller at a time;
// processing mutates it in place.
type Volume struct {
	Site      string
	Time      time.Time
	Latitude  float64
	Longitude float64
	Altitude  float64

	// Range holds gate-centre distances in metres.
	Range []float64
	// Azimuth, Elevation (degrees) and Nyquist (m/s) are per ray.
	Azimuth   []float64
	Elevation []float64
	Nyquist   []float64

	// SweepStart and SweepEnd are inclusive ray indices of each sweep.
	SweepStart []int
	SweepEnd   []int

	Fields   map[string]*Field
	Metadata map[string]any
}

// Shape returns the (rays, gates) dimensions every field must have.
func (v *Volume) Shape() (int, int) {
	return len(v.Azimuth), len(v.Range)
}

// NewField allocates a field with the volume's grid shape.
func (v *Volume) NewField(attrs FieldAttrs) *Field {
	rays, gates := v.Shape()
	return NewField(rays, gates, attrs)
}

// Field returns the named field or ErrFieldNotFound.
func (v *Volume) Field(name string) (*Field, error) {
	f, ok := v.Fields[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, name)
	}
	return f, nil
}

// AddField stores f under name. Without replace an existing field is an error.
func (v *Volume) AddField(name string, f *Field, replace bool) error {
	rays, gates := v.Shape()
	fr, fg := f.Shape()
	if fr != rays || fg != gates {
		return fmt.Errorf("%w: %s is %dx%d, volume is %dx%d", ErrShapeMismatch, name, fr, fg, rays, gates)
	}
	if f.Mask != nil && len(f.Mask) != rays*gates {
		return fmt.Errorf("%w: %s mask has %d gates", ErrShapeMismatch, name, len(f.Mask))
	}
	if v.Fields == nil {
		v.Fields = make(map[string]*Field)
	}
	if _, ok := v.Fields[name]; ok && !replace {
		return fmt.Errorf("%w: %s", ErrFieldExists, name)
	}
	v.Fields[name] = f
	return nil
}

// ReplaceMetadata clears existing metadata, copies meta in and records the
// invocation command line.
func (v *Volume) ReplaceMetadata(meta map[string]any, commandLine string) {
	v.Metadata = make(map[string]any, len(meta)+1)
	maps.Copy(v.Metadata, meta)
	v.Metadata[MetadataCommandLine] = commandLine
}

// GateSpacing returns the distance between adjacent gates in metres.
func (v *Volume) GateSpacing() float64 {
	if len(v.Range) < 2 {
		return 0
	}
	return v.Range[1] - v.Range[0]
}
