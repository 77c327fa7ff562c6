package dedisp

import (
	"fmt"
	"math"
)

// FrequencyAxis describes the channel frequencies (GHz) of a buffer.
// Values[i] = Start + Channels[i]*Step, so a trimmed channel selection keeps
// the instrument's absolute channel numbering.
type FrequencyAxis struct {
	Start    float64
	Step     float64
	Channels []int
	Values   []float64
}

// NewFrequencyAxis builds an axis of n contiguous channels starting at channel 0.
func NewFrequencyAxis(start, step float64, n int) (FrequencyAxis, error) {
	if n < 1 {
		return FrequencyAxis{}, fmt.Errorf("%w: channel count must be positive, got %d", ErrInvalidAxis, n)
	}
	chans := make([]int, n)
	for i := range chans {
		chans[i] = i
	}
	return NewFrequencyAxisFromChannels(start, step, chans)
}

// NewFrequencyAxisFromChannels builds an axis for a strictly increasing
// selection of channel numbers. A negative step describes a band whose
// frequency decreases with channel number.
func NewFrequencyAxisFromChannels(start, step float64, chans []int) (FrequencyAxis, error) {
	if len(chans) == 0 {
		return FrequencyAxis{}, fmt.Errorf("%w: no channels", ErrInvalidAxis)
	}
	if step == 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return FrequencyAxis{}, fmt.Errorf("%w: channel step must be finite and non-zero, got %g", ErrInvalidAxis, step)
	}
	if math.IsNaN(start) || math.IsInf(start, 0) {
		return FrequencyAxis{}, fmt.Errorf("%w: start frequency must be finite, got %g", ErrInvalidAxis, start)
	}
	values := make([]float64, len(chans))
	ownChans := make([]int, len(chans))
	for i, ch := range chans {
		if i > 0 && ch <= chans[i-1] {
			return FrequencyAxis{}, fmt.Errorf("%w: channel %d at position %d does not follow channel %d", ErrInvalidAxis, ch, i, chans[i-1])
		}
		f := start + float64(ch)*step
		if f <= 0 {
			return FrequencyAxis{}, fmt.Errorf("%w: channel %d has non-positive frequency %g GHz", ErrInvalidAxis, ch, f)
		}
		values[i] = f
		ownChans[i] = ch
	}
	return FrequencyAxis{Start: start, Step: step, Channels: ownChans, Values: values}, nil
}

func (a FrequencyAxis) Len() int { return len(a.Values) }

// Descending reports whether frequency decreases with channel index.
func (a FrequencyAxis) Descending() bool { return a.Step < 0 }

// Width returns the channel width in GHz.
func (a FrequencyAxis) Width() float64 { return math.Abs(a.Step) }

// TimeAxis holds sample times in seconds relative to the first sample.
type TimeAxis struct {
	Values []float64
}

// NewTimeAxis validates relative sample times: the first must be zero and
// the sequence must never decrease.
func NewTimeAxis(values []float64) (TimeAxis, error) {
	if len(values) == 0 {
		return TimeAxis{}, fmt.Errorf("%w: no time samples", ErrInvalidAxis)
	}
	if values[0] != 0 {
		return TimeAxis{}, fmt.Errorf("%w: first sample must be at 0s, got %g", ErrInvalidAxis, values[0])
	}
	for i, t := range values {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return TimeAxis{}, fmt.Errorf("%w: sample %d is not finite", ErrInvalidAxis, i)
		}
		if i > 0 && t < values[i-1] {
			return TimeAxis{}, fmt.Errorf("%w: sample %d at %gs precedes sample %d at %gs", ErrInvalidAxis, i, t, i-1, values[i-1])
		}
	}
	own := make([]float64, len(values))
	copy(own, values)
	return TimeAxis{Values: own}, nil
}

// NewRelativeTimeAxis converts absolute timestamps into seconds from the
// first one. scale converts the timestamp unit to seconds (86400 for days).
func NewRelativeTimeAxis(absolute []float64, scale float64) (TimeAxis, error) {
	if len(absolute) == 0 {
		return TimeAxis{}, fmt.Errorf("%w: no time samples", ErrInvalidAxis)
	}
	rel := make([]float64, len(absolute))
	for i, t := range absolute {
		rel[i] = scale * (t - absolute[0])
	}
	return NewTimeAxis(rel)
}

// NewUniformTimeAxis returns n samples spaced dt seconds apart.
func NewUniformTimeAxis(n int, dt float64) (TimeAxis, error) {
	if n < 1 {
		return TimeAxis{}, fmt.Errorf("%w: sample count must be positive, got %d", ErrInvalidAxis, n)
	}
	if dt <= 0 || math.IsInf(dt, 0) || math.IsNaN(dt) {
		return TimeAxis{}, fmt.Errorf("%w: sample interval must be positive, got %g", ErrInvalidAxis, dt)
	}
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i) * dt
	}
	return TimeAxis{Values: values}, nil
}

func (a TimeAxis) Len() int { return len(a.Values) }

// Duration is the time of the last sample.
func (a TimeAxis) Duration() float64 {
	if len(a.Values) == 0 {
		return 0
	}
	return a.Values[len(a.Values)-1]
}
