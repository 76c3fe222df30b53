// Package catalog holds the static sensor metadata the synchronizer needs:
// each sensor's nominal sampling interval, its cadence class, display
// metadata used for cosmetic headers, and per-variable physical-validity
// rules.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidCatalog is returned (wrapped) for any malformed catalog input.
var ErrInvalidCatalog = errors.New("invalid sensor catalog")

// ValidityRule bounds the physically possible values of a variable.
// A nil bound is open.
type ValidityRule struct {
	Min *float64
	Max *float64
}

// Valid reports whether v is inside the rule's bounds. NaN is a missing
// reading rather than an impossible one, so it is always valid.
func (r ValidityRule) Valid(v float64) bool {
	if math.IsNaN(v) {
		return true
	}
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// IsZero reports whether the rule has no bounds at all.
func (r ValidityRule) IsZero() bool {
	return r.Min == nil && r.Max == nil
}

// Entry is one catalogued sensor.
type Entry struct {
	SensorID    string
	DisplayName string
	Unit        string
	Provider    string
	// NominalInterval is zero when the sensor has no declared cadence.
	NominalInterval time.Duration
	Rule            ValidityRule
}

// Catalog is an immutable, ordered set of sensor entries. Entry order is
// the order of the source file and drives output column order.
type Catalog struct {
	entries []Entry
	index   map[string]int
	labels  map[string]string
}

// New validates entries and builds a Catalog.
func New(entries []Entry) (*Catalog, error) {
	c := &Catalog{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		if e.SensorID == "" {
			return nil, fmt.Errorf("%w: entry %d has empty sensor id", ErrInvalidCatalog, i)
		}
		if _, dup := c.index[e.SensorID]; dup {
			return nil, fmt.Errorf("%w: duplicate sensor id %q", ErrInvalidCatalog, e.SensorID)
		}
		if e.NominalInterval < 0 {
			return nil, fmt.Errorf("%w: sensor %q has negative nominal interval %s", ErrInvalidCatalog, e.SensorID, e.NominalInterval)
		}
		if e.Rule.Min != nil && e.Rule.Max != nil && *e.Rule.Min > *e.Rule.Max {
			return nil, fmt.Errorf("%w: sensor %q has min_value %g above max_value %g", ErrInvalidCatalog, e.SensorID, *e.Rule.Min, *e.Rule.Max)
		}
		c.index[e.SensorID] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	c.labels = uniqueLabels(c.entries)
	return c, nil
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Lookup returns the entry for a sensor id.
func (c *Catalog) Lookup(id string) (Entry, bool) {
	i, ok := c.index[id]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Nominal returns the sensor's nominal sampling interval. The second result
// is false for sensors that are not catalogued or have no declared cadence;
// those sensors never contribute a gap.
func (c *Catalog) Nominal(id string) (time.Duration, bool) {
	e, ok := c.Lookup(id)
	if !ok || e.NominalInterval <= 0 {
		return 0, false
	}
	return e.NominalInterval, true
}

// Label returns a human-readable column label, "Display Name (unit)",
// falling back to the sensor id for unknown sensors. Labels are unique
// within the catalog: when two entries share a plain label the provider is
// appended, and the sensor id when that still collides.
func (c *Catalog) Label(id string) string {
	if l, ok := c.labels[id]; ok {
		return l
	}
	return id
}

func plainLabel(e Entry) string {
	switch {
	case e.DisplayName == "":
		return e.SensorID
	case e.Unit == "":
		return e.DisplayName
	}
	return fmt.Sprintf("%s (%s)", e.DisplayName, e.Unit)
}

func uniqueLabels(entries []Entry) map[string]string {
	labels := make(map[string]string, len(entries))
	for _, e := range entries {
		labels[e.SensorID] = plainLabel(e)
	}
	qualify := func(suffix func(Entry) string) {
		count := make(map[string]int, len(labels))
		for _, l := range labels {
			count[l]++
		}
		for _, e := range entries {
			if l := labels[e.SensorID]; count[l] > 1 && suffix(e) != "" {
				labels[e.SensorID] = fmt.Sprintf("%s [%s]", l, suffix(e))
			}
		}
	}
	qualify(func(e Entry) string { return e.Provider })
	qualify(func(e Entry) string { return e.SensorID })
	return labels
}
