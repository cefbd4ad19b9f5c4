package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSite(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "site.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalSite = `
site_alt = 320.0
attenuation_a_coef = 0.17

[sonde]
temperature = "tdry"
height = "alt"
`

func TestLoadSite_Minimal(t *testing.T) {
	s, err := LoadSite(writeSite(t, minimalSite))
	require.NoError(t, err)

	assert.Equal(t, 320.0, s.Altitude())
	assert.Equal(t, 0.17, s.AttenuationACoef)
	assert.Equal(t, Sonde{Temperature: "tdry", Height: "alt"}, s.Sonde)
	assert.Equal(t, DefaultClutterField, s.ClutterField)
	assert.Equal(t, Texture{Start: 2.4, End: 2.7}, s.Texture)
	assert.Equal(t, 50, s.Phase.NoWrap)
	assert.Nil(t, s.Metadata)
}

func TestLoadSite_Full(t *testing.T) {
	s, err := LoadSite(writeSite(t, `
name = "sgp_xsapr_i5"
site_alt = 0.0
attenuation_a_coef = 0.08
clutter_field = "clutter_mask"

[sonde]
temperature = "temp"
height = "height"

[texture]
start = 2.0
end = 3.0

[phase]
offset = 1.5
nowrap = 20

[metadata]
site_id = "sgp"
facility_id = "I5"
`))
	require.NoError(t, err)

	assert.Equal(t, "sgp_xsapr_i5", s.Name)
	require.NotNil(t, s.SiteAlt)
	assert.Equal(t, 0.0, s.Altitude())
	assert.Equal(t, "clutter_mask", s.ClutterField)
	assert.Equal(t, Texture{Start: 2, End: 3}, s.Texture)
	assert.Equal(t, Phase{Offset: 1.5, NoWrap: 20}, s.Phase)
	assert.Equal(t, map[string]any{"site_id": "sgp", "facility_id": "I5"}, s.Metadata)
}

func TestLoadSite_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing site_alt", `
attenuation_a_coef = 0.17
[sonde]
temperature = "tdry"
height = "alt"
`},
		{"missing sonde height", `
site_alt = 1.0
attenuation_a_coef = 0.17
[sonde]
temperature = "tdry"
`},
		{"non-positive coefficient", `
site_alt = 1.0
attenuation_a_coef = 0.0
[sonde]
temperature = "tdry"
height = "alt"
`},
		{"texture end below start", minimalSite + `
[texture]
start = 3.0
end = 2.0
`},
		{"unknown key", minimalSite + `
save_name = "xsapr"
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSite(writeSite(t, tt.body))
			require.ErrorIs(t, err, ErrInvalidSite)
		})
	}
}

func TestLoadSite_Unreadable(t *testing.T) {
	_, err := LoadSite(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	_, err = LoadSite(writeSite(t, "site_alt = "))
	require.Error(t, err)
}

func TestLoadSite_ShippedConfig(t *testing.T) {
	s, err := LoadSite(filepath.Join("..", "..", "configs", "sgp_xsapr.toml"))
	require.NoError(t, err)

	assert.Equal(t, "sgp_xsapr_i4", s.Name)
	assert.Equal(t, 315.0, s.Altitude())
	assert.Equal(t, DefaultClutterField, s.ClutterField)
	assert.Equal(t, Sonde{Temperature: "tdry", Height: "alt"}, s.Sonde)
	assert.Equal(t, "sgp", s.Metadata["site_id"])
}
