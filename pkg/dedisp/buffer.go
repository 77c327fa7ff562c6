package dedisp

import (
	"fmt"
	"math"
	"math/cmplx"
)

// VisibilityBuffer holds flagged, baseline-averaged amplitudes indexed by
// (time, channel), stored row-major by time. It is never modified after
// construction, so concurrent readers need no locking.
type VisibilityBuffer struct {
	amp  []float64
	nt   int
	nc   int
	Freq FrequencyAxis
	Time TimeAxis
}

// NewVisibilityBuffer validates the shape against both axes. amp is copied.
func NewVisibilityBuffer(amp []float64, freq FrequencyAxis, time TimeAxis) (*VisibilityBuffer, error) {
	nt, nc := time.Len(), freq.Len()
	if nt == 0 || nc == 0 {
		return nil, fmt.Errorf("%w: empty axis (times=%d, channels=%d)", ErrInvalidBuffer, nt, nc)
	}
	if len(amp) != nt*nc {
		return nil, fmt.Errorf("%w: %d amplitudes do not match %d times x %d channels", ErrInvalidBuffer, len(amp), nt, nc)
	}
	own := make([]float64, len(amp))
	for i, v := range amp {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite amplitude at time %d channel %d", ErrInvalidBuffer, i/nc, i%nc)
		}
		own[i] = v
	}
	return &VisibilityBuffer{amp: own, nt: nt, nc: nc, Freq: freq, Time: time}, nil
}

// NewVisibilityBufferFromComplex reduces complex visibilities to amplitudes.
func NewVisibilityBufferFromComplex(vis []complex64, freq FrequencyAxis, time TimeAxis) (*VisibilityBuffer, error) {
	amp := make([]float64, len(vis))
	for i, v := range vis {
		amp[i] = cmplx.Abs(complex128(v))
	}
	return NewVisibilityBuffer(amp, freq, time)
}

func (b *VisibilityBuffer) NumTimes() int    { return b.nt }
func (b *VisibilityBuffer) NumChannels() int { return b.nc }

// At returns the amplitude at time index t and channel index c.
func (b *VisibilityBuffer) At(t, c int) float64 {
	return b.amp[t*b.nc+c]
}

// Row returns the amplitudes of time sample t. Callers must not modify it.
func (b *VisibilityBuffer) Row(t int) []float64 {
	return b.amp[t*b.nc : (t+1)*b.nc]
}

// Window returns n samples starting at start as a buffer of its own, with
// the time axis shifted so that the first returned sample is at 0s. The
// amplitudes are shared with b. n is clipped to the samples available.
func (b *VisibilityBuffer) Window(start, n int) (*VisibilityBuffer, error) {
	if start < 0 || start >= b.nt {
		return nil, fmt.Errorf("%w: window start %d outside %d samples", ErrInvalidBuffer, start, b.nt)
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: window size must be positive, got %d", ErrInvalidBuffer, n)
	}
	if start+n > b.nt {
		n = b.nt - start
	}
	t0 := b.Time.Values[start]
	times := make([]float64, n)
	for i := range times {
		times[i] = b.Time.Values[start+i] - t0
	}
	return &VisibilityBuffer{
		amp:  b.amp[start*b.nc : (start+n)*b.nc],
		nt:   n,
		nc:   b.nc,
		Freq: b.Freq,
		Time: TimeAxis{Values: times},
	}, nil
}

// Windows splits the buffer into windows of size samples taken every step
// samples, beginning at skip. A trailing window shorter than size is dropped.
func (b *VisibilityBuffer) Windows(skip, size, step int) ([]*VisibilityBuffer, error) {
	if size <= 0 || step <= 0 {
		return nil, fmt.Errorf("%w: window size and step must be positive (size=%d, step=%d)", ErrInvalidBuffer, size, step)
	}
	var out []*VisibilityBuffer
	for start := skip; start+size <= b.nt; start += step {
		w, err := b.Window(start, size)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}
