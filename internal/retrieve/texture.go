package retrieve

import (
	"fmt"
	"math"
	"slices"

	"github.com/couchcryptid/storm-cmac-service/internal/domain"
)

// DefaultTextureWindow is the ray × gate window of the texture filters.
const DefaultTextureWindow = 4

// VelocityTexture computes the texture of Doppler velocity: the circular
// standard deviation of the velocity phase over a window, smoothed by a
// median filter of the same size. Velocity is treated as an angle with
// period 2·Nyquist.
func VelocityTexture(vol *domain.Volume, window int) (*domain.Field, error) {
	vel, err := vol.Field(domain.FieldVelocity)
	if err != nil {
		return nil, fmt.Errorf("velocity texture: %w", err)
	}
	if window < 1 {
		window = DefaultTextureWindow
	}
	rays, gates := vol.Shape()
	v := vel.Values()

	nyq := make([]float64, rays)
	for i := range rays {
		nyq[i] = vol.Nyquist[i]
		if nyq[i] <= 0 {
			for j := range gates {
				nyq[i] = max(nyq[i], math.Abs(v[i*gates+j]))
			}
		}
	}

	lo := -window / 2
	hi := lo + window
	std := make([]float64, rays*gates)
	for i := range rays {
		for j := range gates {
			var sumSin, sumCos float64
			n := 0
			for di := lo; di < hi; di++ {
				ii := clampIndex(i+di, rays)
				for dj := lo; dj < hi; dj++ {
					k := ii*gates + clampIndex(j+dj, gates)
					if vel.Masked(k) || math.IsNaN(v[k]) || nyq[ii] == 0 {
						continue
					}
					ang := v[k] * math.Pi / nyq[ii]
					sumSin += math.Sin(ang)
					sumCos += math.Cos(ang)
					n++
				}
			}
			if n == 0 {
				continue
			}
			r := math.Hypot(sumSin, sumCos) / float64(n)
			r = min(max(r, 1e-12), 1)
			std[i*gates+j] = math.Sqrt(-2*math.Log(r)) * nyq[i] / math.Pi
		}
	}

	tex := vol.NewField(domain.FieldAttrs{
		Units:        "meters_per_second",
		StandardName: "texture_of_radial_velocity_of_scatters_away_from_instrument",
		LongName:     "Doppler velocity texture",
	})
	medianFilter(std, tex.Values(), rays, gates, window)
	return tex, nil
}

// medianFilter writes the window median of src into dst, clamping at edges.
func medianFilter(src, dst []float64, rows, cols, window int) {
	lo := -window / 2
	hi := lo + window
	buf := make([]float64, 0, window*window)
	for i := range rows {
		for j := range cols {
			buf = buf[:0]
			for di := lo; di < hi; di++ {
				ii := clampIndex(i+di, rows)
				for dj := lo; dj < hi; dj++ {
					buf = append(buf, src[ii*cols+clampIndex(j+dj, cols)])
				}
			}
			slices.Sort(buf)
			n := len(buf)
			if n%2 == 1 {
				dst[i*cols+j] = buf[n/2]
			} else {
				dst[i*cols+j] = (buf[n/2-1] + buf[n/2]) / 2
			}
		}
	}
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
