package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrVariableNotFound is returned when a sounding lacks a configured variable.
var ErrVariableNotFound = errors.New("sounding variable not found")

// Sounding is an atmospheric profile as a set of named 1-D variables.
type Sounding struct {
	Source    string
	Variables map[string][]float64
}

// Profile is a temperature (°C) against height (m) profile sorted by height.
type Profile struct {
	Height      []float64
	Temperature []float64
}

// Profile extracts the temperature/height pair named by the site configuration.
// Samples with a non-finite value in either variable are dropped.
func (s Sounding) Profile(temperatureVar, heightVar string) (Profile, error) {
	temp, ok := s.Variables[temperatureVar]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrVariableNotFound, temperatureVar)
	}
	height, ok := s.Variables[heightVar]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrVariableNotFound, heightVar)
	}
	if len(temp) != len(height) {
		return Profile{}, fmt.Errorf("%w: %s has %d samples, %s has %d",
			ErrShapeMismatch, temperatureVar, len(temp), heightVar, len(height))
	}

	var p Profile
	for i := range temp {
		if !finite(temp[i]) || !finite(height[i]) {
			continue
		}
		p.Height = append(p.Height, height[i])
		p.Temperature = append(p.Temperature, temp[i])
	}
	if len(p.Height) == 0 {
		return Profile{}, fmt.Errorf("sounding %s has no valid samples", s.Source)
	}
	sort.Sort(byHeight(p))
	return p, nil
}

// TemperatureAt linearly interpolates the profile at height h, holding the end
// values outside the sampled range.
func (p Profile) TemperatureAt(h float64) float64 {
	n := len(p.Height)
	if h <= p.Height[0] {
		return p.Temperature[0]
	}
	if h >= p.Height[n-1] {
		return p.Temperature[n-1]
	}
	i := sort.SearchFloat64s(p.Height, h)
	h0, h1 := p.Height[i-1], p.Height[i]
	t0, t1 := p.Temperature[i-1], p.Temperature[i]
	if h1 == h0 {
		return t0
	}
	return t0 + (t1-t0)*(h-h0)/(h1-h0)
}

// FreezingHeight returns the lowest height at which the profile crosses 0 °C,
// interpolated between samples. ok is false if the profile never drops below zero.
func (p Profile) FreezingHeight() (h float64, ok bool) {
	for i := range p.Temperature {
		if p.Temperature[i] > 0 {
			continue
		}
		if i == 0 {
			return p.Height[0], true
		}
		t0, t1 := p.Temperature[i-1], p.Temperature[i]
		h0, h1 := p.Height[i-1], p.Height[i]
		return h0 + (h1-h0)*t0/(t0-t1), true
	}
	return 0, false
}

type byHeight Profile

func (b byHeight) Len() int           { return len(b.Height) }
func (b byHeight) Less(i, j int) bool { return b.Height[i] < b.Height[j] }
func (b byHeight) Swap(i, j int) {
	b.Height[i], b.Height[j] = b.Height[j], b.Height[i]
	b.Temperature[i], b.Temperature[j] = b.Temperature[j], b.Temperature[i]
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
