package correct

import (
	"math"
	"testing"

	"github.com/couchcryptid/storm-cmac-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVolume(rays, gates int) *domain.Volume {
	v := &domain.Volume{
		Range:      make([]float64, gates),
		Azimuth:    make([]float64, rays),
		Elevation:  make([]float64, rays),
		Nyquist:    make([]float64, rays),
		SweepStart: []int{0},
		SweepEnd:   []int{rays - 1},
	}
	for j := range gates {
		v.Range[j] = 250 * float64(j+1)
	}
	for i := range rays {
		v.Azimuth[i] = float64(i) * 360 / float64(rays)
		v.Elevation[i] = 0.5
		v.Nyquist[i] = 10
	}
	return v
}

func fill(t *testing.T, v *domain.Volume, name string, fn func(ray, gate int) float64) *domain.Field {
	t.Helper()
	f := v.NewField(domain.FieldAttrs{})
	_, gates := v.Shape()
	for k := range f.Values() {
		f.Values()[k] = fn(k/gates, k%gates)
	}
	require.NoError(t, v.AddField(name, f, true))
	return f
}

func constant(c float64) func(int, int) float64 {
	return func(int, int) float64 { return c }
}

func TestGateFilter(t *testing.T) {
	v := newVolume(1, 4)
	ids := fill(t, v, domain.FieldGateID, func(_, g int) float64 { return []float64{1, 2, 1, 4}[g] })
	ids.SetMasked(2, true)

	gf := NewGateFilter(v)
	assert.Equal(t, 4, gf.CountIncluded())
	gf.ExcludeAll()
	assert.Equal(t, 0, gf.CountIncluded())

	gf.IncludeEqual(ids, 1)
	assert.True(t, gf.Included(0))
	assert.True(t, gf.Excluded(2), "masked gates are never included")
	assert.Equal(t, []bool{false, true, true, true}, gf.Mask())

	z := fill(t, v, domain.FieldReflectivity, constant(10))
	z.SetMasked(0, true)
	gf.ExcludeMasked(z)
	assert.Equal(t, 0, gf.CountIncluded())
}

func TestCategoryFilter(t *testing.T) {
	v := newVolume(1, 3)
	fill(t, v, domain.FieldGateID, func(_, g int) float64 { return float64(g) })
	cats, err := domain.NewCategories("rain", "snow", "clutter")
	require.NoError(t, err)

	gf, err := CategoryFilter(v, cats, "rain", "snow")
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, true}, gf.Mask())

	_, err = CategoryFilter(v, cats, "melting")
	require.ErrorIs(t, err, domain.ErrUnknownCategory)
}

func fold(v, nyq float64) float64 {
	return math.Mod(math.Mod(v+nyq, 2*nyq)+2*nyq, 2*nyq) - nyq
}

func TestRegionDealiaserRecoversRadialGradient(t *testing.T) {
	v := newVolume(8, 20)
	truth := func(_, g int) float64 { return 0.9 * float64(g) }
	fill(t, v, domain.FieldVelocity, func(r, g int) float64 { return fold(truth(r, g), 10) })

	out, err := NewRegionDealiaser().Dealias(v, NewGateFilter(v))
	require.NoError(t, err)

	_, gates := v.Shape()
	for k, got := range out.Values() {
		assert.InDelta(t, truth(k/gates, k%gates), got, 1e-9, "gate %d", k)
	}
	assert.Equal(t, "meters_per_second", out.Attrs.Units)
}

func TestRegionDealiaserMasksExcludedGates(t *testing.T) {
	v := newVolume(2, 3)
	vel := fill(t, v, domain.FieldVelocity, constant(4))
	vel.SetMasked(5, true)
	gf := NewGateFilter(v)
	gf.ExcludeAll()
	ids := fill(t, v, domain.FieldGateID, func(_, g int) float64 { return float64(g) })
	gf.IncludeEqual(ids, 2)

	out, err := NewRegionDealiaser().Dealias(v, gf)
	require.NoError(t, err)

	assert.Equal(t, []bool{true, true, false, true, true, true}, out.Mask)
	assert.Equal(t, 4.0, out.Values()[2])
}

func TestRegionDealiaserCentering(t *testing.T) {
	v := newVolume(1, 28)
	fill(t, v, domain.FieldVelocity, func(_, g int) float64 {
		switch {
		case g < 10:
			return 8
		case g < 19:
			return -8
		default:
			return -3
		}
	})

	plain := RegionDealiaser{IntervalSplits: 3}
	out, err := plain.Dealias(v, NewGateFilter(v))
	require.NoError(t, err)
	assert.Equal(t, 8.0, out.Values()[0])
	assert.Equal(t, 12.0, out.Values()[10])
	assert.Equal(t, 17.0, out.Values()[27])

	out, err = NewRegionDealiaser().Dealias(v, NewGateFilter(v))
	require.NoError(t, err)
	assert.Equal(t, -12.0, out.Values()[0])
	assert.Equal(t, -8.0, out.Values()[10])
	assert.Equal(t, -3.0, out.Values()[27])
}

func TestRegionDealiaserShapeMismatch(t *testing.T) {
	v := newVolume(2, 2)
	fill(t, v, domain.FieldVelocity, constant(1))
	_, err := NewRegionDealiaser().Dealias(v, NewGateFilter(newVolume(3, 2)))
	require.ErrorIs(t, err, domain.ErrShapeMismatch)
}

func TestIsotonicFit(t *testing.T) {
	got := isotonicFit([]float64{0, 2, 1, 3, 99, 2}, []bool{true, true, true, true, false, true})
	assert.InDeltaSlice(t, []float64{0, 1.5, 1.5, 2.5, 2.5, 2.5}, got, 1e-9)

	got = isotonicFit([]float64{5, 1, 2}, []bool{false, true, true})
	assert.Equal(t, []float64{0, 1, 2}, got)
}

func TestUnwrapPhase(t *testing.T) {
	ray := []float64{170, -175, -160, 170}
	unwrapPhase(ray, []bool{true, true, true, true}, 0)
	assert.Equal(t, []float64{170, 185, 200, 170}, ray)

	ray = []float64{170, -175}
	unwrapPhase(ray, []bool{true, true}, 5)
	assert.Equal(t, []float64{170, -175}, ray, "no unwrapping inside the nowrap gates")
}

func TestSlidingKDP(t *testing.T) {
	rng := []float64{1, 2, 3, 4, 5, 6}
	phi := make([]float64, len(rng))
	for j, r := range rng {
		phi[j] = 4 * r
	}
	out := make([]float64, len(rng))
	slidingKDP(phi, rng, 3, out)
	for _, k := range out {
		assert.InDelta(t, 2, k, 1e-9)
	}

	slidingKDP([]float64{6, 5, 4}, []float64{1, 2, 3}, 3, out[:3])
	assert.Equal(t, []float64{0, 0, 0}, out[:3])
}

func phaseVolume(t *testing.T, gates int, phi func(g int) float64) *domain.Volume {
	t.Helper()
	v := newVolume(2, gates)
	fill(t, v, domain.FieldDifferentialPhase, func(_, g int) float64 { return phi(g) })
	fill(t, v, domain.FieldReflectivity, constant(40))
	fill(t, v, domain.FieldNormalizedCoherentPow, constant(1))
	fill(t, v, domain.FieldCrossCorrelationRatio, constant(0.99))
	return v
}

func TestPhaseProcessor(t *testing.T) {
	v := phaseVolume(t, 40, func(g int) float64 { return 30 + 0.75*float64(g) })

	phidp, kdp, err := NewPhaseProcessor(0, 0).Process(v, 10000)
	require.NoError(t, err)

	// 0.75° per 250 m gate is 3°/km, so KDP is 1.5°/km.
	for _, k := range kdp.Values() {
		assert.InDelta(t, 1.5, k, 1e-6)
	}
	// System phase is the mean of the first five gates.
	assert.InDelta(t, -1.5, phidp.Values()[0], 1e-9)
	assert.Equal(t, "degrees/km", kdp.Attrs.Units)
}

func TestPhaseProcessorHoldsAboveFreezingLevel(t *testing.T) {
	v := phaseVolume(t, 40, func(g int) float64 { return 0.75 * float64(g) })
	alts := v.GateAltitudes()
	fzl := alts[19]

	phidp, _, err := NewPhaseProcessor(0, 0).Process(v, fzl)
	require.NoError(t, err)

	for j := 19; j < 40; j++ {
		assert.Equal(t, phidp.Values()[18], phidp.Values()[j])
	}
}

func TestPhaseProcessorMissingField(t *testing.T) {
	_, _, err := NewPhaseProcessor(0, 0).Process(newVolume(1, 1), 1000)
	require.ErrorIs(t, err, domain.ErrFieldNotFound)
}

func TestZPHI(t *testing.T) {
	const gates = 100
	v := phaseVolume(t, gates, func(g int) float64 { return 0.5 * float64(g) })
	z := v.Fields[domain.FieldReflectivity]
	z.SetMasked(gates-1, true)
	// Drop the far gate so the valid ray ends at gate 98.
	a := NewZPHI(0.06)
	a.DOC = 0

	specAtt, corr, err := a.Correct(v, domain.FieldDifferentialPhase, 0)
	require.NoError(t, err)

	// Two-way PIA over the ray is a·ΔΦ by construction.
	pia := corr.Values()[gates-2] - z.Values()[gates-2]
	assert.InDelta(t, 0.06*0.5*float64(gates-2), pia, 0.05)
	assert.True(t, corr.Masked(gates-1))
	for _, x := range specAtt.Values() {
		assert.GreaterOrEqual(t, x, 0.0)
	}
	assert.Equal(t, "dB/km", specAtt.Attrs.Units)
}

func TestZPHIErrors(t *testing.T) {
	v := phaseVolume(t, 10, func(g int) float64 { return float64(g) })
	_, _, err := NewZPHI(0).Correct(v, domain.FieldDifferentialPhase, 0)
	require.Error(t, err)

	_, _, err = NewZPHI(0.06).Correct(v, domain.FieldFilteredPhiDP, 0)
	require.ErrorIs(t, err, domain.ErrFieldNotFound)
}
