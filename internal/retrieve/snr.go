package retrieve

import (
	"fmt"
	"math"

	"github.com/couchcryptid/storm-cmac-service/internal/domain"
)

// DefaultTopOfAtmosphere is the height (m) above which gates are assumed to
// hold noise only.
const DefaultTopOfAtmosphere = 25000.0

// SNRFromReflectivity estimates signal-to-noise ratio (dB) from reflectivity.
// The range-normalised pseudo power of the weakest gate above toa is taken as
// the noise floor. If no gate reaches toa the weakest gate overall is used.
func SNRFromReflectivity(vol *domain.Volume, toa float64) (*domain.Field, error) {
	refl, err := vol.Field(domain.FieldReflectivity)
	if err != nil {
		return nil, fmt.Errorf("snr: %w", err)
	}
	rays, gates := vol.Shape()
	alts := vol.GateAltitudes()

	snr := vol.NewField(domain.FieldAttrs{
		Units:        "dB",
		StandardName: "signal_to_noise_ratio",
		LongName:     "Signal to noise ratio",
	})
	out := snr.Values()
	z := refl.Values()

	noiseAbove, noiseAll := math.Inf(1), math.Inf(1)
	for i := range rays {
		for j := range gates {
			k := i*gates + j
			if refl.Masked(k) || math.IsNaN(z[k]) || vol.Range[j] <= 0 {
				snr.SetMasked(k, true)
				continue
			}
			p := z[k] - 20*math.Log10(vol.Range[j]/1000)
			out[k] = p
			noiseAll = min(noiseAll, p)
			if alts[k] > toa {
				noiseAbove = min(noiseAbove, p)
			}
		}
	}

	noise := noiseAbove
	if math.IsInf(noise, 1) {
		noise = noiseAll
	}
	if math.IsInf(noise, 1) {
		return snr, nil
	}
	for k := range out {
		if !snr.Masked(k) {
			out[k] -= noise
		}
	}
	return snr, nil
}
