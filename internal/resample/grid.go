// Package resample places a segment's irregular sensor readings onto a
// uniform time grid by bounded linear interpolation.
package resample

import (
	"fmt"
	"time"
)

// Grid returns start, start+step, ... up to and including end when end
// lands on the grid. Instants are unix nanoseconds.
func Grid(start, end int64, step time.Duration) ([]int64, error) {
	if step <= 0 {
		return nil, fmt.Errorf("grid step must be positive, got %s", step)
	}
	if end < start {
		return nil, fmt.Errorf("grid end %d before start %d", end, start)
	}
	n := (end-start)/int64(step) + 1
	out := make([]int64, n)
	for k := range out {
		out[k] = start + int64(k)*int64(step)
	}
	return out, nil
}
