package dedisp

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAxis         = errors.New("invalid axis")
	ErrInvalidBuffer       = errors.New("invalid visibility buffer")
	ErrInvalidDM           = errors.New("invalid dispersion measure")
	ErrNonFiniteCell       = errors.New("non-finite dedispersed amplitude")
	ErrDegenerateGrid      = errors.New("degenerate significance grid")
	ErrChecksumMismatch    = errors.New("grid checksum mismatch")
	ErrUnsupportedFormat   = errors.New("unsupported format")
	ErrInvalidVisibilities = errors.New("invalid raw visibilities")
)

// CellError reports the trial that produced an unusable value during a search.
type CellError struct {
	DMIndex   int
	TimeIndex int
	DM        float64
	T0        float64
	Err       error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("dm[%d]=%g t0[%d]=%gs: %v", e.DMIndex, e.DM, e.TimeIndex, e.T0, e.Err)
}

func (e *CellError) Unwrap() error {
	return e.Err
}

// DegenerateGridError is returned when the grid statistics cannot normalize
// the map, typically because every computed cell holds the same value.
type DegenerateGridError struct {
	Stage string
	Mean  float64
	Std   float64
	Cells int
}

func (e *DegenerateGridError) Error() string {
	return fmt.Sprintf("%s: %s statistics mean=%g std=%g over %d cells",
		ErrDegenerateGrid.Error(), e.Stage, e.Mean, e.Std, e.Cells)
}

func (e *DegenerateGridError) Is(target error) bool {
	return target == ErrDegenerateGrid
}
