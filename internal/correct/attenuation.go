package correct

import (
	"fmt"
	"math"

	"github.com/couchcryptid/storm-cmac-service/internal/domain"
)

// ZPHI defaults.
const (
	DefaultBeta  = 0.8
	DefaultDOC   = 15
	defaultFZL   = 4000.0
	attenScaling = 0.46
)

// ZPHI estimates specific attenuation with the self-consistent Z-PHI method
// and corrects reflectivity by the two-way path-integrated attenuation.
type ZPHI struct {
	// ACoef relates specific attenuation to KDP (dB/°).
	ACoef float64
	Beta  float64
	// DOC is the number of valid gates dropped from the far end of each ray.
	DOC      int
	MinRhoHV float64
	MinNCP   float64
}

// NewZPHI returns an estimator with the default exponent and thresholds.
func NewZPHI(aCoef float64) ZPHI {
	return ZPHI{
		ACoef:    aCoef,
		Beta:     DefaultBeta,
		DOC:      DefaultDOC,
		MinRhoHV: defaultMinRhoHV,
		MinNCP:   defaultMinNCP,
	}
}

// Correct returns specific attenuation (dB/km) and attenuation corrected
// reflectivity (dBZ) from the named differential phase field. Gates above
// fzl (m) carry no attenuation.
func (a ZPHI) Correct(vol *domain.Volume, phidpField string, fzl float64) (specAtt, corrRefl *domain.Field, err error) {
	if a.ACoef <= 0 {
		return nil, nil, fmt.Errorf("attenuation: a coefficient must be positive, got %v", a.ACoef)
	}
	if fzl <= 0 {
		fzl = defaultFZL
	}
	refl, err := vol.Field(domain.FieldReflectivity)
	if err != nil {
		return nil, nil, fmt.Errorf("attenuation: %w", err)
	}
	phi, err := vol.Field(phidpField)
	if err != nil {
		return nil, nil, fmt.Errorf("attenuation: %w", err)
	}
	ncp, err := vol.Field(domain.FieldNormalizedCoherentPow)
	if err != nil {
		return nil, nil, fmt.Errorf("attenuation: %w", err)
	}
	rhv, err := vol.Field(domain.FieldCrossCorrelationRatio)
	if err != nil {
		return nil, nil, fmt.Errorf("attenuation: %w", err)
	}

	rays, gates := vol.Shape()
	alts := vol.GateAltitudes()
	dr := vol.GateSpacing() / 1000

	specAtt = vol.NewField(domain.FieldAttrs{
		Units:        "dB/km",
		StandardName: "specific_attenuation",
		LongName:     "Specific attenuation",
	})
	corrRefl = vol.NewField(domain.FieldAttrs{
		Units:        "dBZ",
		StandardName: "corrected_equivalent_reflectivity_factor",
		LongName:     "Attenuation corrected reflectivity",
	})

	za := make([]float64, gates)
	integral := make([]float64, gates+1)
	for i := range rays {
		row := i * gates
		end := -1
		for j := range gates {
			k := row + j
			za[j] = 0
			if a.valid(k, refl, phi, ncp, rhv) && alts[k] < fzl {
				za[j] = math.Pow(10, 0.1*a.Beta*refl.Values()[k])
				end = j
			}
		}
		end -= a.DOC
		ai := specAtt.Values()[row : row+gates]
		if end > 0 {
			dphi := phi.Values()[row+end] - phi.Values()[row]
			if dphi > 0 {
				selfCons := math.Pow(10, 0.1*a.Beta*a.ACoef*dphi) - 1
				// integral[j] = 0.46·β·∫ from gate j to end of Za^β.
				integral[end+1] = 0
				for j := end; j >= 0; j-- {
					integral[j] = integral[j+1] + attenScaling*a.Beta*dr*za[j]
				}
				for j := 0; j <= end; j++ {
					denom := integral[0] + selfCons*integral[j]
					if denom > 0 {
						ai[j] = za[j] * selfCons / denom
					}
				}
			}
		}

		var pia float64
		cz := corrRefl.Values()[row : row+gates]
		for j := range gates {
			k := row + j
			pia += 2 * ai[j] * dr
			if refl.Masked(k) || math.IsNaN(refl.Values()[k]) {
				corrRefl.SetMasked(k, true)
				continue
			}
			cz[j] = refl.Values()[k] + pia
		}
	}
	return specAtt, corrRefl, nil
}

func (a ZPHI) valid(k int, refl, phi, ncp, rhv *domain.Field) bool {
	for _, f := range []*domain.Field{refl, phi, ncp, rhv} {
		if f.Masked(k) || math.IsNaN(f.Values()[k]) {
			return false
		}
	}
	return ncp.Values()[k] >= a.MinNCP && rhv.Values()[k] >= a.MinRhoHV
}
