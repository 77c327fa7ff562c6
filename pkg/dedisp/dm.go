package dedisp

import (
	"fmt"
	"math"
)

// NewDMGrid returns the trial DMs min, min+step, ... strictly below max.
func NewDMGrid(min, max, step float64) ([]float64, error) {
	for _, v := range []float64{min, max, step} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: grid bounds must be finite (min=%g, max=%g, step=%g)", ErrInvalidDM, min, max, step)
		}
	}
	if min < 0 {
		return nil, fmt.Errorf("%w: minimum DM must be non-negative, got %g", ErrInvalidDM, min)
	}
	if step <= 0 {
		return nil, fmt.Errorf("%w: DM step must be positive, got %g", ErrInvalidDM, step)
	}
	if max <= min {
		return nil, fmt.Errorf("%w: empty DM range [%g, %g)", ErrInvalidDM, min, max)
	}
	n := int(math.Ceil((max - min) / step))
	dms := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v := min + float64(i)*step
		if v >= max {
			break
		}
		dms = append(dms, v)
	}
	return dms, nil
}

// ValidateDMs rejects an empty list and any negative or non-finite trial.
func ValidateDMs(dms []float64) error {
	if len(dms) == 0 {
		return fmt.Errorf("%w: no DM trials", ErrInvalidDM)
	}
	for i, dm := range dms {
		if math.IsNaN(dm) || math.IsInf(dm, 0) || dm < 0 {
			return fmt.Errorf("%w: dm[%d]=%g", ErrInvalidDM, i, dm)
		}
	}
	return nil
}
