package netcdf

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/ctessum/cdf"

	"github.com/couchcryptid/storm-cmac-service/internal/domain"
)

// ReadSounding loads every 1-D numeric variable of a sounding file.
func ReadSounding(path string) (*domain.Sounding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sounding: %w", err)
	}
	defer f.Close()
	return DecodeSounding(f, path)
}

// ErrReadOnly is returned by writes to an in-memory sounding.
var ErrReadOnly = errors.New("netcdf: read-only buffer")

// readOnlyBuffer satisfies cdf.ReaderWriterAt for bytes that are only decoded.
type readOnlyBuffer struct {
	*bytes.Reader
}

func (readOnlyBuffer) WriteAt([]byte, int64) (int, error) { return 0, ErrReadOnly }

// DecodeSoundingBytes decodes a sounding held in memory, such as an HTTP body.
func DecodeSoundingBytes(data []byte, source string) (*domain.Sounding, error) {
	return DecodeSounding(readOnlyBuffer{bytes.NewReader(data)}, source)
}

// DecodeSounding decodes a sounding from r. Values equal to the variable's
// _FillValue or missing_value become NaN.
func DecodeSounding(r cdf.ReaderWriterAt, source string) (*domain.Sounding, error) {
	ff, err := cdf.Open(r)
	if err != nil {
		return nil, fmt.Errorf("decode sounding %s: %w", source, err)
	}
	snd := &domain.Sounding{Source: source, Variables: make(map[string][]float64)}
	for _, name := range ff.Header.Variables() {
		if len(ff.Header.Dimensions(name)) != 1 {
			continue
		}
		vals, err := readFloat64(ff, name)
		if err != nil {
			continue
		}
		for _, attr := range []string{"_FillValue", "missing_value"} {
			fill, ok := numberAttr(ff, name, attr)
			if !ok {
				continue
			}
			for i, x := range vals {
				if float32(x) == float32(fill) {
					vals[i] = math.NaN()
				}
			}
		}
		snd.Variables[name] = vals
	}
	if len(snd.Variables) == 0 {
		return nil, fmt.Errorf("decode sounding %s: no 1-D variables", source)
	}
	return snd, nil
}

// WriteSounding writes each variable of snd as a float32 series on a shared
// "time" dimension. All variables must have the same length.
func WriteSounding(path string, snd *domain.Sounding) error {
	n := -1
	names := make([]string, 0, len(snd.Variables))
	for name, vals := range snd.Variables {
		if n >= 0 && len(vals) != n {
			return fmt.Errorf("%w: sounding variable %s has %d samples", domain.ErrShapeMismatch, name, len(vals))
		}
		n = len(vals)
		names = append(names, name)
	}
	if n <= 0 {
		return fmt.Errorf("write sounding: no samples")
	}
	slices.Sort(names)

	h := cdf.NewHeader([]string{dimTime}, []int{n})
	h.AddAttribute("", "source", snd.Source)
	for _, name := range names {
		h.AddVariable(name, []string{dimTime}, []float32{0})
		h.AddAttribute(name, "_FillValue", []float32{float32(domain.DefaultFillValue)})
	}
	h.Define()

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create sounding file: %w", err)
	}
	defer out.Close()
	ff, err := cdf.Create(out, h)
	if err != nil {
		return fmt.Errorf("write sounding header: %w", err)
	}
	for _, name := range names {
		data := toFloat32(snd.Variables[name])
		for i, x := range snd.Variables[name] {
			if math.IsNaN(x) {
				data[i] = float32(domain.DefaultFillValue)
			}
		}
		if err := writeVariable(ff, name, data); err != nil {
			return fmt.Errorf("write sounding: %w", err)
		}
	}
	return out.Close()
}
