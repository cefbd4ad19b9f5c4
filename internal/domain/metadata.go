package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"
)

// MetadataCommandLine is the metadata key holding the invocation command line.
const MetadataCommandLine = "command_line"

// metadataConfigSentinel selects the site configuration's metadata block.
const metadataConfigSentinel = "config"

// ErrUnsupportedMetadataSource is returned for a metadata source specifier that
// is neither a JSON path nor the configuration sentinel.
var ErrUnsupportedMetadataSource = errors.New("unsupported metadata source: provide a .json file or \"config\"")

// ErrMissingSiteMetadata is returned when the configuration source is selected
// but the site has no metadata block.
var ErrMissingSiteMetadata = errors.New("site config has no metadata block")

type metadataKind int

const (
	metadataDefault metadataKind = iota
	metadataFile
	metadataConfig
)

// MetadataSource selects where output provenance metadata comes from.
// The zero value selects the built-in default block.
type MetadataSource struct {
	kind metadataKind
	path string
}

// DefaultMetadataSource selects the built-in default block.
func DefaultMetadataSource() MetadataSource { return MetadataSource{kind: metadataDefault} }

// MetadataFromFile selects the contents of a JSON file.
func MetadataFromFile(path string) MetadataSource {
	return MetadataSource{kind: metadataFile, path: path}
}

// MetadataFromConfig selects the metadata block of the site configuration.
func MetadataFromConfig() MetadataSource { return MetadataSource{kind: metadataConfig} }

// ParseMetadataSource maps a command-line style specifier to a source:
// "" selects the default, a path ending in .json (any case) selects that file,
// and "config" selects the site configuration.
func ParseMetadataSource(s string) (MetadataSource, error) {
	switch {
	case s == "":
		return DefaultMetadataSource(), nil
	case strings.HasSuffix(strings.ToLower(s), ".json"):
		return MetadataFromFile(s), nil
	case s == metadataConfigSentinel:
		return MetadataFromConfig(), nil
	default:
		return MetadataSource{}, fmt.Errorf("%w: %q", ErrUnsupportedMetadataSource, s)
	}
}

// String renders the source in its specifier form.
func (m MetadataSource) String() string {
	switch m.kind {
	case metadataFile:
		return m.path
	case metadataConfig:
		return metadataConfigSentinel
	default:
		return "default"
	}
}

// Resolve returns a fresh metadata map for the source. siteMeta is the site
// configuration's block and is only consulted for the configuration source.
func (m MetadataSource) Resolve(siteMeta map[string]any) (map[string]any, error) {
	switch m.kind {
	case metadataDefault:
		return DefaultMetadata(), nil
	case metadataFile:
		data, err := os.ReadFile(m.path)
		if err != nil {
			return nil, fmt.Errorf("read metadata file: %w", err)
		}
		var meta map[string]any
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("parse metadata file %s: %w", m.path, err)
		}
		return meta, nil
	case metadataConfig:
		if siteMeta == nil {
			return nil, ErrMissingSiteMetadata
		}
		return maps.Clone(siteMeta), nil
	default:
		return nil, ErrUnsupportedMetadataSource
	}
}

// DefaultMetadata returns a copy of the built-in provenance block.
func DefaultMetadata() map[string]any {
	return map[string]any{
		"site_id":    "sgp",
		"data_level": "c1",
		"comment": "This is highly experimental and initial data. There are many " +
			"known and unknown issues. Please do not use before " +
			"contacting the Translator responsible scollis@anl.gov",
		"attributions": "This data is collected by the ARM Climate Research facility. " +
			"Radar system is operated by the radar engineering team " +
			"radar@arm.gov and the data is processed by the precipitation " +
			"radar products team. LP code courtesy of Scott Giangrande " +
			"BNL.",
		"version":      "2.0 lite",
		"vap_name":     "cmac",
		"known_issues": "False phidp jumps in insect regions. Still uses old Giangrande code.",
		"developers":   "Robert Jackson, ANL. Zachary Sherman, ANL.",
		"translator":   "Scott Collis, ANL.",
		"mentors": "Nitin Bharadwaj, PNNL. Bradley Isom, PNNL. " +
			"Joseph Hardin, PNNL. Iosif Lindenmaier, PNNL.",
	}
}
