package correct

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/storm-cmac-service/internal/domain"
)

// Phase processing defaults.
const (
	DefaultNoWrap     = 50
	DefaultKDPWindow  = 11
	systemPhaseGates  = 5
	defaultMinNCP     = 0.5
	defaultMinRhoHV   = 0.8
	defaultLowReflDB  = 10.0
	defaultHighReflDB = 53.0
)

// PhaseProcessor produces a monotone differential phase and the matching
// specific differential phase. Each ray is unwrapped past NoWrap gates, its
// system phase removed, and the good gates below the freezing level fitted by
// isotonic least squares. KDP is half the slope of a sliding linear regression
// of the fitted phase against range.
type PhaseProcessor struct {
	// Offset is added to reflectivity before the good-gate thresholds.
	Offset float64
	NoWrap int
	Window int

	MinNCP   float64
	MinRhoHV float64
	LowRefl  float64
	HighRefl float64
}

// NewPhaseProcessor returns a processor with the default thresholds.
func NewPhaseProcessor(offset float64, noWrap int) PhaseProcessor {
	if noWrap <= 0 {
		noWrap = DefaultNoWrap
	}
	return PhaseProcessor{
		Offset:   offset,
		NoWrap:   noWrap,
		Window:   DefaultKDPWindow,
		MinNCP:   defaultMinNCP,
		MinRhoHV: defaultMinRhoHV,
		LowRefl:  defaultLowReflDB,
		HighRefl: defaultHighReflDB,
	}
}

// Process returns the corrected differential phase (degrees) and specific
// differential phase (degrees/km). fzl is the freezing level in metres.
func (p PhaseProcessor) Process(vol *domain.Volume, fzl float64) (phidp, kdp *domain.Field, err error) {
	names := []string{
		domain.FieldDifferentialPhase,
		domain.FieldReflectivity,
		domain.FieldNormalizedCoherentPow,
		domain.FieldCrossCorrelationRatio,
	}
	in := make([]*domain.Field, len(names))
	for i, name := range names {
		if in[i], err = vol.Field(name); err != nil {
			return nil, nil, fmt.Errorf("phase processing: %w", err)
		}
	}
	rawPhi, refl, ncp, rhv := in[0], in[1], in[2], in[3]

	rays, gates := vol.Shape()
	alts := vol.GateAltitudes()
	rangeKm := make([]float64, gates)
	for j, r := range vol.Range {
		rangeKm[j] = r / 1000
	}

	phidp = vol.NewField(domain.FieldAttrs{
		Units:        "degrees",
		StandardName: "differential_phase_hv",
		LongName:     "Corrected differential phase",
	})
	kdp = vol.NewField(domain.FieldAttrs{
		Units:        "degrees/km",
		StandardName: "specific_differential_phase_hv",
		LongName:     "Corrected specific differential phase",
	})

	ray := make([]float64, gates)
	good := make([]bool, gates)
	for i := range rays {
		row := i * gates
		for j := range gates {
			k := row + j
			ray[j] = rawPhi.Values()[k]
			good[j] = p.goodGate(k, rawPhi, refl, ncp, rhv) && alts[k] < fzl
		}
		unwrapPhase(ray, good, p.NoWrap)
		removeSystemPhase(ray, good)
		fitted := isotonicFit(ray, good)
		copy(phidp.Values()[row:row+gates], fitted)
		slidingKDP(fitted, rangeKm, p.Window, kdp.Values()[row:row+gates])
	}
	return phidp, kdp, nil
}

func (p PhaseProcessor) goodGate(k int, phi, refl, ncp, rhv *domain.Field) bool {
	for _, f := range []*domain.Field{phi, refl, ncp, rhv} {
		if f.Masked(k) || math.IsNaN(f.Values()[k]) {
			return false
		}
	}
	z := refl.Values()[k] + p.Offset
	return ncp.Values()[k] >= p.MinNCP &&
		rhv.Values()[k] >= p.MinRhoHV &&
		z >= p.LowRefl && z <= p.HighRefl
}

// unwrapPhase removes 360° jumps between consecutive good gates beyond noWrap.
func unwrapPhase(ray []float64, good []bool, noWrap int) {
	prev := -1
	var offset float64
	for j := range ray {
		if !good[j] {
			continue
		}
		if prev >= 0 && j > noWrap {
			d := ray[j] + offset - ray[prev]
			switch {
			case d < -180:
				offset += 360 * math.Ceil((-d-180)/360)
			case d > 180:
				offset -= 360 * math.Ceil((d-180)/360)
			}
		}
		ray[j] += offset
		prev = j
	}
}

// removeSystemPhase subtracts the mean of the first good gates of the ray.
func removeSystemPhase(ray []float64, good []bool) {
	var sum float64
	n := 0
	for j := range ray {
		if good[j] {
			sum += ray[j]
			n++
			if n == systemPhaseGates {
				break
			}
		}
	}
	if n == 0 {
		return
	}
	sys := sum / float64(n)
	for j := range ray {
		ray[j] -= sys
	}
}

// isotonicFit returns the non-decreasing least-squares fit of the good gates
// (pool adjacent violators). Other gates hold the fit of the nearest good
// gate before them, or zero at the start of the ray.
func isotonicFit(ray []float64, good []bool) []float64 {
	type block struct {
		sum   float64
		n     int
		first int
	}
	var blocks []block
	for j := range ray {
		if !good[j] {
			continue
		}
		blocks = append(blocks, block{sum: ray[j], n: 1, first: j})
		for len(blocks) > 1 {
			last := blocks[len(blocks)-1]
			prev := blocks[len(blocks)-2]
			if prev.sum/float64(prev.n) <= last.sum/float64(last.n) {
				break
			}
			blocks = blocks[:len(blocks)-2]
			blocks = append(blocks, block{sum: prev.sum + last.sum, n: prev.n + last.n, first: prev.first})
		}
	}

	out := make([]float64, len(ray))
	b := -1
	level := 0.0
	for j := range out {
		for b+1 < len(blocks) && blocks[b+1].first <= j {
			b++
			level = blocks[b].sum / float64(blocks[b].n)
		}
		out[j] = level
	}
	return out
}

// slidingKDP writes half the regression slope of phi against rng over a
// centred window, clamped to be non-negative.
func slidingKDP(phi, rng []float64, window int, out []float64) {
	n := len(phi)
	if window < 2 {
		window = DefaultKDPWindow
	}
	half := window / 2
	for j := range n {
		lo := max(j-half, 0)
		hi := min(j+half+1, n)
		if hi-lo < 2 {
			out[j] = 0
			continue
		}
		_, slope := stat.LinearRegression(rng[lo:hi], phi[lo:hi], nil, false)
		if math.IsNaN(slope) || slope < 0 {
			slope = 0
		}
		out[j] = slope / 2
	}
}
