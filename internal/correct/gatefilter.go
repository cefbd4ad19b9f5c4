// Package correct holds the correction algorithms that run after gate
// classification: the gate filter, velocity dealiasing, differential phase
// processing and attenuation correction.
package correct

import (
	"math"

	"github.com/couchcryptid/storm-cmac-service/internal/domain"
)

// GateFilter marks gates as excluded from a correction. A new filter includes
// every gate.
type GateFilter struct {
	rays, gates int
	excluded    []bool
}

// NewGateFilter returns a filter over vol's grid with every gate included.
func NewGateFilter(vol *domain.Volume) *GateFilter {
	rays, gates := vol.Shape()
	return &GateFilter{rays: rays, gates: gates, excluded: make([]bool, rays*gates)}
}

// ExcludeAll excludes every gate.
func (g *GateFilter) ExcludeAll() {
	for i := range g.excluded {
		g.excluded[i] = true
	}
}

// IncludeEqual includes gates where f equals value.
func (g *GateFilter) IncludeEqual(f *domain.Field, value float64) {
	for i, v := range f.Values() {
		if !f.Masked(i) && v == value {
			g.excluded[i] = false
		}
	}
}

// ExcludeMasked excludes gates where f is masked or NaN.
func (g *GateFilter) ExcludeMasked(f *domain.Field) {
	for i, v := range f.Values() {
		if f.Masked(i) || math.IsNaN(v) {
			g.excluded[i] = true
		}
	}
}

// Excluded reports whether gate k (row-major) is excluded.
func (g *GateFilter) Excluded(k int) bool { return g.excluded[k] }

// Included reports whether gate k (row-major) is included.
func (g *GateFilter) Included(k int) bool { return !g.excluded[k] }

// Shape returns the (rays, gates) grid the filter covers.
func (g *GateFilter) Shape() (int, int) { return g.rays, g.gates }

// CountIncluded returns the number of included gates.
func (g *GateFilter) CountIncluded() int {
	n := 0
	for _, ex := range g.excluded {
		if !ex {
			n++
		}
	}
	return n
}

// Mask returns a copy of the exclusion mask, true where excluded.
func (g *GateFilter) Mask() []bool {
	return append([]bool(nil), g.excluded...)
}

// CategoryFilter returns a filter including only gates whose gate_id is one of
// labels.
func CategoryFilter(vol *domain.Volume, cats domain.Categories, labels ...string) (*GateFilter, error) {
	gateID, err := vol.Field(domain.FieldGateID)
	if err != nil {
		return nil, err
	}
	gf := NewGateFilter(vol)
	gf.ExcludeAll()
	for _, label := range labels {
		id, err := cats.ID(label)
		if err != nil {
			return nil, err
		}
		gf.IncludeEqual(gateID, float64(id))
	}
	return gf, nil
}
