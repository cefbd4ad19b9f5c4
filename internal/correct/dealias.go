package correct

import (
	"fmt"
	"math"
	"sort"

	"github.com/couchcryptid/storm-cmac-service/internal/domain"
)

// DefaultIntervalSplits is the number of velocity intervals the Nyquist
// range is split into when finding regions.
const DefaultIntervalSplits = 3

// RegionDealiaser unfolds Doppler velocity by splitting each sweep into
// connected regions of similar velocity and choosing, region by region, the
// number of Nyquist folds that best matches its already-unfolded neighbours.
type RegionDealiaser struct {
	IntervalSplits int
	// Centered shifts each sweep by whole folds so its mean is closest to zero.
	Centered bool
}

// NewRegionDealiaser returns a centered dealiaser with the default interval split.
func NewRegionDealiaser() RegionDealiaser {
	return RegionDealiaser{IntervalSplits: DefaultIntervalSplits, Centered: true}
}

type regionPair struct{ a, b int }

type regionEdge struct {
	// sum accumulates velocity(a) - velocity(b) over boundary gate pairs.
	sum   float64
	count int
}

// Dealias returns the corrected velocity. Gates excluded by gf, or masked in
// the input, are masked in the output.
func (d RegionDealiaser) Dealias(vol *domain.Volume, gf *GateFilter) (*domain.Field, error) {
	vel, err := vol.Field(domain.FieldVelocity)
	if err != nil {
		return nil, fmt.Errorf("dealias: %w", err)
	}
	rays, gates := vol.Shape()
	if gr, gg := gf.Shape(); gr != rays || gg != gates {
		return nil, fmt.Errorf("dealias: %w: gate filter is %dx%d", domain.ErrShapeMismatch, gr, gg)
	}
	splits := d.IntervalSplits
	if splits < 1 {
		splits = DefaultIntervalSplits
	}

	out := vol.NewField(domain.FieldAttrs{
		Units:        "meters_per_second",
		StandardName: "corrected_radial_velocity_of_scatterers_away_from_instrument",
		LongName:     "Corrected mean doppler velocity",
	})
	copy(out.Values(), vel.Values())
	valid := make([]bool, rays*gates)
	for k, v := range vel.Values() {
		valid[k] = gf.Included(k) && !vel.Masked(k) && !math.IsNaN(v)
		if !valid[k] {
			out.SetMasked(k, true)
		}
	}

	for s := range vol.SweepStart {
		d.dealiasSweep(vol, out.Values(), valid, vol.SweepStart[s], vol.SweepEnd[s], splits)
	}
	return out, nil
}

func (d RegionDealiaser) dealiasSweep(vol *domain.Volume, v []float64, valid []bool, start, end, splits int) {
	_, gates := vol.Shape()
	nray := end - start + 1
	if nray <= 0 {
		return
	}
	nyq := sweepNyquist(vol, v, valid, start, end)
	if nyq <= 0 {
		return
	}
	width := 2 * nyq / float64(splits)
	interval := func(x float64) int {
		i := int(math.Floor((x + nyq) / width))
		return min(max(i, 0), splits-1)
	}

	// Label connected regions, azimuth wraps within the sweep.
	label := make([]int, nray*gates)
	for i := range label {
		label[i] = -1
	}
	var sizes []int
	neighbours := func(r, g int) [4][2]int {
		return [4][2]int{
			{(r + 1) % nray, g},
			{(r - 1 + nray) % nray, g},
			{r, g + 1},
			{r, g - 1},
		}
	}
	var stack [][2]int
	for r := range nray {
		for g := range gates {
			k := (start+r)*gates + g
			if !valid[k] || label[r*gates+g] >= 0 {
				continue
			}
			id := len(sizes)
			sizes = append(sizes, 0)
			want := interval(v[k])
			label[r*gates+g] = id
			stack = append(stack[:0], [2]int{r, g})
			for len(stack) > 0 {
				cur := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				sizes[id]++
				for _, nb := range neighbours(cur[0], cur[1]) {
					nr, ng := nb[0], nb[1]
					if ng < 0 || ng >= gates || label[nr*gates+ng] >= 0 {
						continue
					}
					nk := (start+nr)*gates + ng
					if !valid[nk] || interval(v[nk]) != want {
						continue
					}
					label[nr*gates+ng] = id
					stack = append(stack, [2]int{nr, ng})
				}
			}
		}
	}
	if len(sizes) == 0 {
		return
	}

	// Accumulate boundary statistics between regions.
	edges := make(map[regionPair]*regionEdge)
	addEdge := func(a, b int, va, vb float64) {
		if a > b {
			a, b = b, a
			va, vb = vb, va
		}
		e, ok := edges[regionPair{a, b}]
		if !ok {
			e = &regionEdge{}
			edges[regionPair{a, b}] = e
		}
		e.sum += va - vb
		e.count++
	}
	for r := range nray {
		for g := range gates {
			a := label[r*gates+g]
			if a < 0 {
				continue
			}
			va := v[(start+r)*gates+g]
			// Forward neighbours only so each pair is counted once.
			if g+1 < gates {
				if b := label[r*gates+g+1]; b >= 0 && b != a {
					addEdge(a, b, va, v[(start+r)*gates+g+1])
				}
			}
			if nray > 1 {
				nr := (r + 1) % nray
				if nr == r || (nray == 2 && r == 1) {
					continue
				}
				if b := label[nr*gates+g]; b >= 0 && b != a {
					addEdge(a, b, va, v[(start+nr)*gates+g])
				}
			}
		}
	}

	folds := unfoldRegions(sizes, edges, 2*nyq)

	for r := range nray {
		for g := range gates {
			if id := label[r*gates+g]; id >= 0 {
				v[(start+r)*gates+g] += float64(folds[id]) * 2 * nyq
			}
		}
	}

	if d.Centered {
		var sum float64
		n := 0
		for r := range nray {
			for g := range gates {
				if label[r*gates+g] >= 0 {
					sum += v[(start+r)*gates+g]
					n++
				}
			}
		}
		shift := math.Round(sum / float64(n) / (2 * nyq))
		if shift != 0 {
			for r := range nray {
				for g := range gates {
					if label[r*gates+g] >= 0 {
						v[(start+r)*gates+g] -= shift * 2 * nyq
					}
				}
			}
		}
	}
}

// unfoldRegions assigns a fold count to every region. Regions are anchored
// largest first; each step unfolds the unassigned region sharing the longest
// boundary with an assigned one.
func unfoldRegions(sizes []int, edges map[regionPair]*regionEdge, span float64) []int {
	folds := make([]int, len(sizes))
	assigned := make([]bool, len(sizes))

	order := make([]int, len(sizes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return sizes[order[i]] > sizes[order[j]] })

	pairs := make([]regionPair, 0, len(edges))
	for p := range edges {
		pairs = append(pairs, p)
	}
	// Deterministic iteration over map keys.
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].a != pairs[j].a {
			return pairs[i].a < pairs[j].a
		}
		return pairs[i].b < pairs[j].b
	})

	for _, anchor := range order {
		if assigned[anchor] {
			continue
		}
		assigned[anchor] = true
		for {
			best := -1
			bestCount := 0
			for i, p := range pairs {
				if assigned[p.a] == assigned[p.b] {
					continue
				}
				if c := edges[p].count; c > bestCount {
					best, bestCount = i, c
				}
			}
			if best < 0 {
				break
			}
			p := pairs[best]
			e := edges[p]
			mean := e.sum / float64(e.count)
			// mean is v(a) - v(b); solve v(b) + n_b·span ≈ v(a) + n_a·span.
			if assigned[p.a] {
				folds[p.b] = folds[p.a] + int(math.Round(mean/span))
				assigned[p.b] = true
			} else {
				folds[p.a] = folds[p.b] - int(math.Round(mean/span))
				assigned[p.a] = true
			}
		}
	}
	return folds
}

// sweepNyquist returns the sweep's Nyquist velocity, falling back to the
// largest absolute valid velocity when the volume carries none.
func sweepNyquist(vol *domain.Volume, v []float64, valid []bool, start, end int) float64 {
	_, gates := vol.Shape()
	var nyq float64
	for r := start; r <= end; r++ {
		if r < len(vol.Nyquist) {
			nyq = max(nyq, vol.Nyquist[r])
		}
	}
	if nyq > 0 {
		return nyq
	}
	for k := start * gates; k < (end+1)*gates; k++ {
		if valid[k] {
			nyq = max(nyq, math.Abs(v[k]))
		}
	}
	return nyq
}
