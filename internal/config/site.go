package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// DefaultClutterField names the manual clutter mask field.
const DefaultClutterField = "xsapr_clutter"

// ErrInvalidSite is returned when a site file fails validation.
var ErrInvalidSite = errors.New("invalid site config")

var validate = validator.New()

// Site holds the per-site CMAC parameters loaded from a TOML file.
type Site struct {
	Name string `toml:"name"`
	// SiteAlt is the antenna altitude in metres above sea level.
	SiteAlt          *float64 `toml:"site_alt" validate:"required"`
	AttenuationACoef float64  `toml:"attenuation_a_coef" validate:"gt=0"`
	ClutterField     string   `toml:"clutter_field"`

	Sonde   Sonde   `toml:"sonde"`
	Texture Texture `toml:"texture"`
	Phase   Phase   `toml:"phase"`

	Metadata map[string]any `toml:"metadata"`
}

// Sonde names the sounding variables holding temperature and height.
type Sonde struct {
	Temperature string `toml:"temperature" validate:"required"`
	Height      string `toml:"height" validate:"required"`
}

// Texture bounds the velocity texture membership of the classifier.
type Texture struct {
	Start float64 `toml:"start" validate:"gte=0"`
	End   float64 `toml:"end" validate:"gtfield=Start"`
}

// Phase configures differential phase processing.
type Phase struct {
	// Offset is added to reflectivity (dB) before the phase thresholds.
	Offset float64 `toml:"offset"`
	NoWrap int     `toml:"nowrap" validate:"gte=0"`
}

// LoadSite reads and validates a site file. Unknown keys are rejected.
func LoadSite(path string) (Site, error) {
	var s Site
	meta, err := toml.DecodeFile(path, &s)
	if err != nil {
		return Site{}, fmt.Errorf("load site config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Site{}, fmt.Errorf("%w: unknown keys: %s", ErrInvalidSite, strings.Join(keys, ", "))
	}
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return Site{}, err
	}
	return s, nil
}

func (s *Site) applyDefaults() {
	if s.ClutterField == "" {
		s.ClutterField = DefaultClutterField
	}
	if s.Texture.Start == 0 && s.Texture.End == 0 {
		s.Texture = Texture{Start: 2.4, End: 2.7}
	}
	if s.Phase.NoWrap == 0 {
		s.Phase.NoWrap = 50
	}
}

// Validate checks required keys and ranges.
func (s Site) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fe.Namespace() + " (" + fe.Tag() + ")"
			}
			return fmt.Errorf("%w: %s", ErrInvalidSite, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %w", ErrInvalidSite, err)
	}
	return nil
}

// Altitude returns the configured site altitude.
func (s Site) Altitude() float64 {
	if s.SiteAlt == nil {
		return 0
	}
	return *s.SiteAlt
}
