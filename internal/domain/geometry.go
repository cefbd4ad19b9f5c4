package domain

import "math"

// effectiveEarthRadius is the 4/3 Earth radius (m) used for standard refraction.
const effectiveEarthRadius = 4.0 / 3.0 * 6371000.0

// BeamHeight returns the height (m) of the beam centre above the antenna at
// slant range r (m) and elevation el (degrees).
func BeamHeight(r, el float64) float64 {
	sinEl := math.Sin(el * math.Pi / 180)
	ke := effectiveEarthRadius
	return math.Sqrt(r*r+ke*ke+2*r*ke*sinEl) - ke
}

// GateAltitudes returns the altitude (m above sea level) of every gate in
// row-major order.
func (v *Volume) GateAltitudes() []float64 {
	rays, gates := v.Shape()
	out := make([]float64, rays*gates)
	for i := range rays {
		el := v.Elevation[i]
		for j := range gates {
			out[i*gates+j] = BeamHeight(v.Range[j], el) + v.Altitude
		}
	}
	return out
}
