package retrieve

import (
	"fmt"
	"math"

	"github.com/couchcryptid/storm-cmac-service/internal/domain"
)

// Texture limits used when a site does not configure its own.
const (
	DefaultTextureStart = 2.4
	DefaultTextureEnd   = 2.7
)

// classifierLabels is the classifier vocabulary in id order.
var classifierLabels = []string{
	domain.CategoryMultiTrip,
	domain.CategoryRain,
	domain.CategorySnow,
	domain.CategoryNoScatter,
	domain.CategoryMelting,
}

// FuzzyClassifier assigns every gate to the class with the highest product of
// trapezoidal memberships over SNR, ρhv, velocity texture and temperature.
type FuzzyClassifier struct {
	TextureStart float64
	TextureEnd   float64
}

// NewFuzzyClassifier returns a classifier with the given texture limits,
// falling back to the defaults for unset values.
func NewFuzzyClassifier(texStart, texEnd float64) FuzzyClassifier {
	if texStart == 0 && texEnd == 0 {
		texStart, texEnd = DefaultTextureStart, DefaultTextureEnd
	}
	return FuzzyClassifier{TextureStart: texStart, TextureEnd: texEnd}
}

// Classify builds the gate classification field and its category table. The
// SNR, texture, ρhv and temperature fields must already be on vol.
func (c FuzzyClassifier) Classify(vol *domain.Volume) (*domain.Field, domain.Categories, error) {
	cats, err := domain.NewCategories(classifierLabels...)
	if err != nil {
		return nil, domain.Categories{}, err
	}

	inputs := make(map[string]*domain.Field, 4)
	for _, name := range []string{
		domain.FieldSNR,
		domain.FieldVelocityTexture,
		domain.FieldCrossCorrelationRatio,
		domain.FieldSoundingTemperature,
	} {
		f, err := vol.Field(name)
		if err != nil {
			return nil, domain.Categories{}, fmt.Errorf("classify: %w", err)
		}
		inputs[name] = f
	}
	snr := inputs[domain.FieldSNR]
	tex := inputs[domain.FieldVelocityTexture]
	rho := inputs[domain.FieldCrossCorrelationRatio]
	temp := inputs[domain.FieldSoundingTemperature]

	noScatter, _ := cats.ID(domain.CategoryNoScatter)
	validMin, validMax := 0.0, float64(cats.Max())
	out := vol.NewField(domain.FieldAttrs{
		LongName:  "Classification of dominant scatterer",
		Units:     "unitless",
		Notes:     cats.Notes(),
		ValidMin:  &validMin,
		ValidMax:  &validMax,
		FillValue: domain.DefaultFillValue,
	})
	ids := out.Values()

	scores := make([]float64, len(classifierLabels))
	for k := range ids {
		s, ok := value(snr, k)
		if !ok {
			ids[k] = float64(noScatter)
			continue
		}
		t, tOK := value(tex, k)
		r, rOK := value(rho, k)
		tc, tcOK := value(temp, k)

		snrUp := rampUp(s, 5, 10)
		texUp := neutral(tOK, rampUp(t, c.TextureStart, c.TextureEnd))
		texDown := neutral(tOK, 1-rampUp(t, c.TextureStart, c.TextureEnd))
		rhoUp := neutral(rOK, rampUp(r, 0.9, 0.95))
		rhoMelt := neutral(rOK, trapezoid(r, 0.75, 0.85, 0.95, 0.97))
		tWarm := neutral(tcOK, rampUp(tc, 2, 4))
		tCold := neutral(tcOK, 1-rampUp(tc, -1, 0))
		tMelt := neutral(tcOK, trapezoid(tc, -1, 0, 3, 4))

		scores[0] = texUp * snrUp
		scores[1] = texDown * snrUp * rhoUp * tWarm
		scores[2] = texDown * snrUp * tCold
		scores[3] = 1 - snrUp
		scores[4] = texDown * snrUp * rhoMelt * tMelt

		best := noScatter
		bestScore := 0.0
		for id, sc := range scores {
			if sc > bestScore {
				best, bestScore = id, sc
			}
		}
		ids[k] = float64(best)
	}

	out.Categories = &cats
	return out, cats, nil
}

func value(f *domain.Field, k int) (float64, bool) {
	if f.Masked(k) {
		return 0, false
	}
	v := f.Values()[k]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// neutral returns m when the input was valid and 1 otherwise, so a missing
// moment neither favours nor rules out a class.
func neutral(ok bool, m float64) float64 {
	if !ok {
		return 1
	}
	return m
}

// rampUp is 0 below a, 1 above b and linear in between.
func rampUp(x, a, b float64) float64 {
	switch {
	case x <= a:
		return 0
	case x >= b:
		return 1
	default:
		return (x - a) / (b - a)
	}
}

// trapezoid rises over [a,b], is 1 over [b,c] and falls over [c,d].
func trapezoid(x, a, b, c, d float64) float64 {
	switch {
	case x <= a || x >= d:
		return 0
	case x < b:
		return (x - a) / (b - a)
	case x <= c:
		return 1
	default:
		return (d - x) / (d - c)
	}
}
