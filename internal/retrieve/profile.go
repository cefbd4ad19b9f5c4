// Package retrieve derives per-gate fields from raw radar moments and a
// sounding: interpolated temperature and height, signal-to-noise ratio,
// velocity texture, the fuzzy-logic gate classification and the freezing level.
package retrieve

import (
	"github.com/couchcryptid/storm-cmac-service/internal/domain"
)

// GateProfile maps a sounding profile onto the gates of vol. It returns the
// interpolated temperature (°C) and the gate height (m above sea level).
func GateProfile(vol *domain.Volume, p domain.Profile) (temperature, height *domain.Field) {
	alts := vol.GateAltitudes()

	height = vol.NewField(domain.FieldAttrs{
		Units:        "meters",
		StandardName: "height",
		LongName:     "Height of radar beam",
	})
	temperature = vol.NewField(domain.FieldAttrs{
		Units:        "deg_C",
		StandardName: "interpolated_profile",
		LongName:     "Interpolated profile",
	})

	h := height.Values()
	t := temperature.Values()
	for i, alt := range alts {
		h[i] = alt
		t[i] = p.TemperatureAt(alt)
	}
	return temperature, height
}
