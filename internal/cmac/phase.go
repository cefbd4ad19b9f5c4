package cmac

import (
	"fmt"

	"github.com/couchcryptid/storm-cmac-service/internal/correct"
	"github.com/couchcryptid/storm-cmac-service/internal/domain"
)

// kdpSmoothGates is the width of the KDP moving average.
const kdpSmoothGates = 5

// FixPhaseFields filters processed phase fields to the gates gf includes.
// KDP is zeroed at excluded or negative gates and smoothed along each ray;
// PhiDP is then rebuilt from the ray's first gate as twice the range
// integral of the smoothed KDP.
func FixPhaseFields(vol *domain.Volume, phidp, kdp *domain.Field, gf *correct.GateFilter) (fphidp, fkdp *domain.Field, err error) {
	rays, gates := vol.Shape()
	if r, g := gf.Shape(); r != rays || g != gates {
		return nil, nil, fmt.Errorf("fix phase: %w: gate filter is %dx%d", domain.ErrShapeMismatch, r, g)
	}
	dr := vol.GateSpacing() / 1000

	fkdp = vol.NewField(domain.FieldAttrs{
		Units:        kdp.Attrs.Units,
		StandardName: kdp.Attrs.StandardName,
		LongName:     "Filtered corrected specific differential phase",
	})
	fphidp = vol.NewField(domain.FieldAttrs{
		Units:        phidp.Attrs.Units,
		StandardName: phidp.Attrs.StandardName,
		LongName:     "Filtered corrected differential phase",
	})

	raw := make([]float64, gates)
	for i := range rays {
		row := i * gates
		for j := range gates {
			k := row + j
			v := kdp.Values()[k]
			if gf.Excluded(k) || kdp.Masked(k) || v < 0 {
				v = 0
			}
			raw[j] = v
		}
		smooth := fkdp.Values()[row : row+gates]
		movingAverage(raw, smooth, kdpSmoothGates)

		phi := fphidp.Values()[row : row+gates]
		acc := phidp.Values()[row]
		for j := range gates {
			acc += 2 * smooth[j] * dr
			phi[j] = acc
		}
	}
	return fphidp, fkdp, nil
}

// movingAverage writes the centred window mean of src into dst. Windows are
// truncated at the ends.
func movingAverage(src, dst []float64, window int) {
	half := window / 2
	for j := range src {
		lo := max(j-half, 0)
		hi := min(j+half+1, len(src))
		var sum float64
		for _, v := range src[lo:hi] {
			sum += v
		}
		dst[j] = sum / float64(hi-lo)
	}
}
