package catalog

import (
	"fmt"
	"time"
)

// Class is a sensor's resampling cadence class.
type Class int

const (
	// Unclassified sensors have no nominal interval and are excluded from
	// both resampling grids.
	Unclassified Class = iota
	Fast
	Slow
)

func (c Class) String() string {
	switch c {
	case Fast:
		return "fast"
	case Slow:
		return "slow"
	default:
		return "unclassified"
	}
}

// Schema is the declared wide-table layout: the ordered sensor ids of each
// cadence class and the grid step used for each. It is computed once at
// startup so output column order is a property of configuration.
type Schema struct {
	FastStep time.Duration
	SlowStep time.Duration
	Fast     []string
	Slow     []string
	class    map[string]Class
}

// Schema partitions the catalogued sensors with a declared cadence into the
// fast class (nominal interval at or below fastStep) and the slow class
// (everything slower).
func (c *Catalog) Schema(fastStep, slowStep time.Duration) (Schema, error) {
	if fastStep <= 0 || slowStep <= 0 {
		return Schema{}, fmt.Errorf("grid steps must be positive, got fast=%s slow=%s", fastStep, slowStep)
	}
	if slowStep < fastStep {
		return Schema{}, fmt.Errorf("slow step %s is finer than fast step %s", slowStep, fastStep)
	}
	s := Schema{
		FastStep: fastStep,
		SlowStep: slowStep,
		class:    make(map[string]Class, len(c.entries)),
	}
	for _, e := range c.entries {
		if e.NominalInterval <= 0 {
			continue
		}
		if e.NominalInterval <= fastStep {
			s.Fast = append(s.Fast, e.SensorID)
			s.class[e.SensorID] = Fast
		} else {
			s.Slow = append(s.Slow, e.SensorID)
			s.class[e.SensorID] = Slow
		}
	}
	return s, nil
}

// ClassOf returns the cadence class of a sensor id.
func (s Schema) ClassOf(id string) Class {
	return s.class[id]
}

// Step returns the grid step of a class.
func (s Schema) Step(c Class) time.Duration {
	switch c {
	case Fast:
		return s.FastStep
	case Slow:
		return s.SlowStep
	}
	return 0
}

// Columns returns a copy of the declared column order of a class.
func (s Schema) Columns(c Class) []string {
	var src []string
	switch c {
	case Fast:
		src = s.Fast
	case Slow:
		src = s.Slow
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}
