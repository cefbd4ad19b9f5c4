// Package domain models a radar volume scan and the CMAC (Corrected Moments in
// Antenna Coordinates) products derived from it.
//
// # Volume Layout
//
// A [Volume] holds moments on a ray × gate grid. Rays are ordered by collection
// time and grouped into sweeps; each sweep is a contiguous ray range given by
// SweepStart/SweepEnd (inclusive). Gates are equally spaced along Range, which
// holds gate-centre distances in metres.
//
//	field.Data.Shape == []int{len(vol.Azimuth), len(vol.Range)}
//
// Every field added to a volume must have that shape. [Volume.AddField] rejects
// anything else with [ErrShapeMismatch].
//
// # Masks
//
// A gate mask marks invalid gates (true = invalid). A nil mask means every gate
// is valid. On disk, masked gates are written as the field's fill value.
//
// # Gate Classification
//
// The classifier labels each gate with an integer category id. The label table
// is carried as [Categories] and written to the field's notes attribute in the
// CF flag style:
//
//	"0:multi_trip,1:rain,2:snow,3:no_scatter,4:melting,5:clutter"
//
// Clutter is not produced by the classifier; it is appended as max id + 1 from a
// static clutter map, and the field's valid_max is raised to match.
//
// # Rain Rate
//
// Rain rate is derived from specific attenuation A (dB/km) with the power law
//
//	R = 51.3 · A^0.81   [mm/hr]
//
// The declared valid range [0, 400] mm/hr is metadata only; values are not
// clipped. Gates with invalid reflectivity are forced to 0.
//
// # Provenance Metadata
//
// Output metadata is replaced wholesale from one [MetadataSource]: the built-in
// default block, a JSON file, or the site configuration. The invocation command
// line is always appended under "command_line".
package domain
