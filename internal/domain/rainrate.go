package domain

import "math"

// Rain-rate power law coefficients for R = a · A^b.
const (
	rainRateCoef     = 51.3
	rainRateExponent = 0.81

	rainRateValidMin = 0.0
	rainRateValidMax = 400.0
)

// RainRate applies R = 51.3 · A^0.81 to one specific attenuation value (dB/km).
func RainRate(specificAttenuation float64) float64 {
	return rainRateCoef * math.Pow(specificAttenuation, rainRateExponent)
}

// RainRateFromAttenuation derives a rain-rate field from specific attenuation.
// Gates where reflMask is set are forced to 0 and left valid; other masked
// attenuation gates stay masked. Values outside the declared valid range are
// kept as computed.
func RainRateFromAttenuation(specAtt *Field, reflMask []bool) *Field {
	rays, gates := specAtt.Shape()
	validMin, validMax := rainRateValidMin, rainRateValidMax
	out := NewField(rays, gates, FieldAttrs{
		Units:                 "mm/hr",
		StandardName:          "rainfall_rate",
		LongName:              "rainfall_rate",
		ValidMin:              &validMin,
		ValidMax:              &validMax,
		FillValue:             specAtt.Attrs.FillValue,
		LeastSignificantDigit: 1,
		Comment: "Rain rate calculated from specific_attenuation, " +
			"R=51.3*specific_attenuation**0.81, note R=0.0 where " +
			"norm coherent power < 0.4 or rhohv < 0.8",
	})

	a := specAtt.Values()
	r := out.Values()
	for i := range a {
		if reflMask != nil && reflMask[i] {
			r[i] = 0
			continue
		}
		if specAtt.Masked(i) {
			out.SetMasked(i, true)
			continue
		}
		r[i] = RainRate(a[i])
	}
	return out
}
