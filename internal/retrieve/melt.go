package retrieve

import (
	"fmt"
	"math"

	"github.com/couchcryptid/storm-cmac-service/internal/domain"
)

const (
	// maxFreezingLevel caps implausible estimates (m).
	maxFreezingLevel = 5000.0
	// fallbackFreezingLevel replaces estimates above the cap (m).
	fallbackFreezingLevel = 3500.0
)

// FreezingLevel estimates the freezing level (m) from the sounding's 0 °C
// crossing and, when the classifier found melting gates, averages it with the
// lowest melting gate. Estimates above 5000 m, and soundings that never drop
// below freezing, fall back to 3500 m.
func FreezingLevel(vol *domain.Volume, cats domain.Categories, prof domain.Profile) (float64, error) {
	height, err := vol.Field(domain.FieldHeight)
	if err != nil {
		return 0, fmt.Errorf("freezing level: %w", err)
	}
	gateID, err := vol.Field(domain.FieldGateID)
	if err != nil {
		return 0, fmt.Errorf("freezing level: %w", err)
	}
	meltID, err := cats.ID(domain.CategoryMelting)
	if err != nil {
		return 0, fmt.Errorf("freezing level: %w", err)
	}

	fzlSounding, ok := prof.FreezingHeight()
	if !ok {
		return fallbackFreezingLevel, nil
	}

	h := height.Values()
	fzlMelt := math.Inf(1)
	for k, id := range gateID.Values() {
		if !gateID.Masked(k) && int(id) == meltID {
			fzlMelt = min(fzlMelt, h[k])
		}
	}

	fzl := fzlSounding
	if !math.IsInf(fzlMelt, 1) {
		fzl = (fzlSounding + fzlMelt) / 2
	}
	if fzl > maxFreezingLevel {
		fzl = fallbackFreezingLevel
	}
	return fzl, nil
}
