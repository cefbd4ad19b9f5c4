package domain

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrMalformedNotes is returned when a category notes string cannot be parsed.
	ErrMalformedNotes = errors.New("malformed category notes")
	// ErrUnknownCategory is returned when a label is not in the category table.
	ErrUnknownCategory = errors.New("unknown gate category")
)

// Gate category labels produced by the classifier, plus the clutter override.
const (
	CategoryMultiTrip = "multi_trip"
	CategoryRain      = "rain"
	CategorySnow      = "snow"
	CategoryNoScatter = "no_scatter"
	CategoryMelting   = "melting"
	CategoryClutter   = "clutter"
)

// Categories maps gate category labels to integer ids. The zero value is empty.
// It is built once per run by the classifier and handed to every step that
// needs label lookups.
type Categories struct {
	ids    map[string]int
	labels map[int]string
}

// NewCategories builds a table from labels in id order (labels[i] has id i).
func NewCategories(labels ...string) (Categories, error) {
	var c Categories
	for i, label := range labels {
		if err := c.add(label, i); err != nil {
			return Categories{}, err
		}
	}
	return c, nil
}

// ParseCategoryNotes parses a "id:label,id:label" notes string.
func ParseCategoryNotes(notes string) (Categories, error) {
	var c Categories
	if strings.TrimSpace(notes) == "" {
		return c, fmt.Errorf("%w: empty", ErrMalformedNotes)
	}
	for _, pair := range strings.Split(notes, ",") {
		idStr, label, ok := strings.Cut(pair, ":")
		if !ok {
			return Categories{}, fmt.Errorf("%w: %q has no colon", ErrMalformedNotes, pair)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idStr))
		if err != nil {
			return Categories{}, fmt.Errorf("%w: %q has a non-integer id", ErrMalformedNotes, pair)
		}
		if err := c.add(strings.TrimSpace(label), id); err != nil {
			return Categories{}, err
		}
	}
	return c, nil
}

func (c *Categories) add(label string, id int) error {
	if label == "" {
		return fmt.Errorf("%w: empty label for id %d", ErrMalformedNotes, id)
	}
	if c.ids == nil {
		c.ids = make(map[string]int)
		c.labels = make(map[int]string)
	}
	if _, dup := c.ids[label]; dup {
		return fmt.Errorf("%w: duplicate label %q", ErrMalformedNotes, label)
	}
	if _, dup := c.labels[id]; dup {
		return fmt.Errorf("%w: duplicate id %d", ErrMalformedNotes, id)
	}
	c.ids[label] = id
	c.labels[id] = label
	return nil
}

// ID returns the id of label.
func (c Categories) ID(label string) (int, error) {
	id, ok := c.ids[label]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCategory, label)
	}
	return id, nil
}

// Label returns the label of id, or "" when id is unknown.
func (c Categories) Label(id int) string {
	return c.labels[id]
}

// Len returns the number of categories.
func (c Categories) Len() int {
	return len(c.ids)
}

// Max returns the largest id, or -1 for an empty table.
func (c Categories) Max() int {
	maxID := -1
	for id := range c.labels {
		if id > maxID {
			maxID = id
		}
	}
	return maxID
}

// WithLabel returns a copy of c with label appended as Max()+1, and the new id.
func (c Categories) WithLabel(label string) (Categories, int, error) {
	out := c.clone()
	id := c.Max() + 1
	if err := out.add(label, id); err != nil {
		return Categories{}, 0, err
	}
	return out, id, nil
}

// AsMap returns a label → id copy of the table.
func (c Categories) AsMap() map[string]int {
	out := make(map[string]int, len(c.ids))
	for k, v := range c.ids {
		out[k] = v
	}
	return out
}

// Notes renders the table as an "id:label" list sorted by id.
func (c Categories) Notes() string {
	ids := make([]int, 0, len(c.labels))
	for id := range c.labels {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id) + ":" + c.labels[id]
	}
	return strings.Join(parts, ",")
}

func (c Categories) clone() Categories {
	var out Categories
	for label, id := range c.ids {
		_ = out.add(label, id)
	}
	return out
}
