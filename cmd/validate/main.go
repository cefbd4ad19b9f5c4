// Command validate checks processed CMAC volumes for the output invariants:
// every derived field is present, the gate classification table ends with the
// clutter label, rain rate follows the attenuation power law and the metadata
// block records the command line.
//
// Usage:
//
//	go run ./cmd/validate [-meta data/mock/meta.json] output/*.nc
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/couchcryptid/storm-cmac-service/internal/adapter/netcdf"
	"github.com/couchcryptid/storm-cmac-service/internal/domain"
)

var requiredFields = []string{
	domain.FieldHeight,
	domain.FieldSoundingTemperature,
	domain.FieldSNR,
	domain.FieldVelocityTexture,
	domain.FieldGateID,
	domain.FieldCorrectedVelocity,
	domain.FieldCorrectedPhiDP,
	domain.FieldCorrectedKDP,
	domain.FieldFilteredPhiDP,
	domain.FieldFilteredKDP,
	domain.FieldSpecificAttenuation,
	domain.FieldCorrectedRefl,
	domain.FieldRainRate,
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	metaPath := flag.String("meta", "", "optional JSON file the output metadata must equal (plus command_line)")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	var expected map[string]any
	if *metaPath != "" {
		data, err := os.ReadFile(*metaPath)
		if err == nil {
			err = json.Unmarshal(data, &expected)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load metadata: %v\n", err)
			os.Exit(1)
		}
	}

	code := 0
	for _, path := range flag.Args() {
		if run(path, expected) != 0 {
			code = 1
		}
	}
	os.Exit(code)
}

func run(path string, expected map[string]any) int {
	fmt.Printf("=== CMAC Output Validation: %s ===\n", path)

	vol, err := netcdf.ReadVolume(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read volume: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateFields(vol),
		validateClassification(vol),
		validateRainRate(vol),
		validateMetadata(vol, expected),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	rays, gates := vol.Shape()
	fmt.Printf("Volume: site %s, %d rays x %d gates, %d fields\n", vol.Site, rays, gates, len(vol.Fields))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func validateFields(vol *domain.Volume) *phase {
	p := &phase{name: "Derived fields present"}
	for _, name := range requiredFields {
		if _, err := vol.Field(name); err != nil {
			p.errorf("%v", err)
		}
	}
	return p
}

func validateClassification(vol *domain.Volume) *phase {
	p := &phase{name: "Gate classification table"}
	gateID, err := vol.Field(domain.FieldGateID)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	cats, err := domain.ParseCategoryNotes(gateID.Attrs.Notes)
	if err != nil {
		p.errorf("notes %q: %v", gateID.Attrs.Notes, err)
		return p
	}
	clutterID, err := cats.ID(domain.CategoryClutter)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	if clutterID != cats.Max() {
		p.errorf("clutter id %d is not the largest id %d", clutterID, cats.Max())
	}
	if gateID.Attrs.ValidMax == nil || int(*gateID.Attrs.ValidMax) != clutterID {
		p.errorf("valid_max does not equal clutter id %d", clutterID)
	}
	for i, v := range gateID.Values() {
		if gateID.Masked(i) {
			continue
		}
		if cats.Label(int(v)) == "" {
			p.errorf("gate %d has unknown class %v", i, v)
			break
		}
	}
	return p
}

func validateRainRate(vol *domain.Volume) *phase {
	p := &phase{name: "Rain rate power law"}
	rain, err := vol.Field(domain.FieldRainRate)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	att, err := vol.Field(domain.FieldSpecificAttenuation)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	refl, _ := vol.Field(domain.FieldReflectivity)

	const maxReports = 10
	for i, r := range rain.Values() {
		if len(p.errors) >= maxReports {
			break
		}
		if refl != nil && refl.Masked(i) {
			if rain.Masked(i) || r != 0 {
				p.errorf("gate %d: reflectivity masked but rain rate is %v", i, r)
			}
			continue
		}
		if att.Masked(i) || rain.Masked(i) {
			continue
		}
		want := domain.RainRate(att.Values()[i])
		if math.Abs(r-want) > 1e-3+1e-4*math.Abs(want) {
			p.errorf("gate %d: rain rate %v, expected %v from A=%v", i, r, want, att.Values()[i])
		}
	}
	return p
}

func validateMetadata(vol *domain.Volume, expected map[string]any) *phase {
	p := &phase{name: "Metadata block"}
	if cl, _ := vol.Metadata[domain.MetadataCommandLine].(string); cl == "" {
		p.errorf("missing %s", domain.MetadataCommandLine)
	}
	if expected == nil {
		return p
	}
	for k, want := range expected {
		got, ok := vol.Metadata[k]
		if !ok {
			p.errorf("missing key %q", k)
			continue
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			p.errorf("key %q: got %v, want %v", k, got, want)
		}
	}
	for k := range vol.Metadata {
		if _, ok := expected[k]; !ok && k != domain.MetadataCommandLine {
			p.errorf("unexpected key %q", k)
		}
	}
	return p
}
