// Package synth builds deterministic synthetic radar volumes and soundings for
// local runs and tests: a rain cell on a noise background, folded Doppler
// velocity, a clutter patch and a standard-atmosphere sounding.
package synth

import (
	"math"
	"time"

	"github.com/couchcryptid/storm-cmac-service/internal/domain"
)

// Sounding variable names used by Sounding.
const (
	SoundingTemperature = "tdry"
	SoundingHeight      = "alt"
	ClutterField        = "xsapr_clutter"
)

// Options shape a synthetic volume.
type Options struct {
	Site            string
	Time            time.Time
	Elevations      []float64
	RaysPerSweep    int
	Gates           int
	GateSpacing     float64
	Nyquist         float64
	CellAzimuth     float64
	CellRange       float64
	CellRadius      float64
	CellPeakRefl    float64
	MaxWind         float64
	MaskedRefl      [][2]int
	ClutterRays     int
	ClutterGates    int
	SurfaceTempC    float64
	LapseRateCPerKm float64
}

// DefaultOptions returns a small two-sweep volume with one rain cell.
func DefaultOptions() Options {
	return Options{
		Site:            "sgp",
		Time:            time.Date(2024, 5, 20, 21, 3, 0, 0, time.UTC),
		Elevations:      []float64{0.5, 8.0},
		RaysPerSweep:    36,
		Gates:           120,
		GateSpacing:     250,
		Nyquist:         10,
		CellAzimuth:     90,
		CellRange:       12000,
		CellRadius:      6000,
		CellPeakRefl:    50,
		MaxWind:         16,
		MaskedRefl:      [][2]int{{9, 40}, {9, 41}, {9, 42}},
		ClutterRays:     3,
		ClutterGates:    4,
		SurfaceTempC:    25,
		LapseRateCPerKm: 6.5,
	}
}

// Volume builds a volume from opts.
func Volume(opts Options) *domain.Volume {
	nSweeps := len(opts.Elevations)
	rays := nSweeps * opts.RaysPerSweep
	gates := opts.Gates

	v := &domain.Volume{
		Site:      opts.Site,
		Time:      opts.Time,
		Latitude:  36.6054,
		Longitude: -97.4855,
		Range:     make([]float64, gates),
		Azimuth:   make([]float64, rays),
		Elevation: make([]float64, rays),
		Nyquist:   make([]float64, rays),
		Fields:    make(map[string]*domain.Field),
		Metadata:  map[string]any{"instrument": "xsapr", "source": "synthetic"},
	}
	for j := range gates {
		v.Range[j] = opts.GateSpacing/2 + opts.GateSpacing*float64(j)
	}
	for s, el := range opts.Elevations {
		v.SweepStart = append(v.SweepStart, s*opts.RaysPerSweep)
		v.SweepEnd = append(v.SweepEnd, (s+1)*opts.RaysPerSweep-1)
		for r := range opts.RaysPerSweep {
			i := s*opts.RaysPerSweep + r
			v.Azimuth[i] = float64(r) * 360 / float64(opts.RaysPerSweep)
			v.Elevation[i] = el
			v.Nyquist[i] = opts.Nyquist
		}
	}

	refl := v.NewField(domain.FieldAttrs{Units: "dBZ", StandardName: "equivalent_reflectivity_factor", LongName: "Reflectivity"})
	vel := v.NewField(domain.FieldAttrs{Units: "meters_per_second", StandardName: "radial_velocity_of_scatterers_away_from_instrument", LongName: "Mean doppler velocity"})
	rho := v.NewField(domain.FieldAttrs{Units: "ratio", StandardName: "cross_correlation_ratio_hv", LongName: "Cross correlation ratio"})
	ncp := v.NewField(domain.FieldAttrs{Units: "ratio", StandardName: "normalized_coherent_power", LongName: "Normalized coherent power"})
	phi := v.NewField(domain.FieldAttrs{Units: "degrees", StandardName: "differential_phase_hv", LongName: "Differential phase"})
	zdr := v.NewField(domain.FieldAttrs{Units: "dB", StandardName: "log_differential_reflectivity_hv", LongName: "Differential reflectivity"})
	clutter := v.NewField(domain.FieldAttrs{Units: "unitless", LongName: "Clutter mask"})

	const systemPhase = 30.0
	dr := opts.GateSpacing / 1000
	for i := range rays {
		az := v.Azimuth[i] * math.Pi / 180
		cellAz := opts.CellAzimuth * math.Pi / 180
		phase := systemPhase
		for j := range gates {
			k := i*gates + j
			rng := v.Range[j]
			// Distance from the cell centre on the ground plane.
			x := rng*math.Sin(az) - opts.CellRange*math.Sin(cellAz)
			y := rng*math.Cos(az) - opts.CellRange*math.Cos(cellAz)
			d := math.Hypot(x, y) / opts.CellRadius
			noise := hash(k)

			if d < 1 {
				z := opts.CellPeakRefl * (1 - d*d)
				z = max(z, 18)
				refl.Values()[k] = z
				rho.Values()[k] = 0.985 + 0.01*noise
				ncp.Values()[k] = 0.9
				kdp := 0.01 * math.Pow(10, 0.05*z) / 10
				phase += 2 * kdp * dr
				truth := opts.MaxWind * math.Sin(az) * min(rng/10000, 1)
				vel.Values()[k] = fold(truth, opts.Nyquist)
				zdr.Values()[k] = 0.5 + z/40
			} else {
				refl.Values()[k] = -15 + 20*math.Log10(rng/1000) + 3*noise
				rho.Values()[k] = 0.3 + 0.3*noise
				ncp.Values()[k] = 0.1 + 0.2*noise
				vel.Values()[k] = opts.Nyquist * (2*noise - 1)
				zdr.Values()[k] = 4 * (noise - 0.5)
			}
			phi.Values()[k] = phase + 4*(hash(k+7919)-0.5)
		}
	}

	for _, rg := range opts.MaskedRefl {
		if rg[0] < rays && rg[1] < gates {
			refl.SetMasked(rg[0]*gates+rg[1], true)
		}
	}
	for i := range min(opts.ClutterRays, rays) {
		for j := range min(opts.ClutterGates, gates) {
			clutter.Values()[i*gates+j] = 1
		}
	}

	v.Fields[domain.FieldReflectivity] = refl
	v.Fields[domain.FieldVelocity] = vel
	v.Fields[domain.FieldCrossCorrelationRatio] = rho
	v.Fields[domain.FieldNormalizedCoherentPow] = ncp
	v.Fields[domain.FieldDifferentialPhase] = phi
	v.Fields[domain.FieldDifferentialRefl] = zdr
	v.Fields[ClutterField] = clutter
	return v
}

// Sounding builds a linear lapse-rate profile from the surface to 20 km.
func Sounding(opts Options) domain.Sounding {
	const top, step = 20000.0, 250.0
	n := int(top/step) + 1
	alt := make([]float64, n)
	tdry := make([]float64, n)
	for i := range n {
		alt[i] = float64(i) * step
		tdry[i] = opts.SurfaceTempC - opts.LapseRateCPerKm*alt[i]/1000
	}
	return domain.Sounding{
		Source:    "synthetic",
		Variables: map[string][]float64{SoundingTemperature: tdry, SoundingHeight: alt},
	}
}

func fold(v, nyq float64) float64 {
	span := 2 * nyq
	return math.Mod(math.Mod(v+nyq, span)+span, span) - nyq
}

// hash maps k to a repeatable value in [0, 1).
func hash(k int) float64 {
	x := math.Sin(float64(k)*12.9898) * 43758.5453
	return x - math.Floor(x)
}
