package dedisp

import (
	"fmt"
	"math"
	"math/cmplx"
)

// BaselineOrder is the slot order of the 36 baselines of an 8-antenna
// correlator, in MIRIAD numbering (256*a1 + a2).
var BaselineOrder = []int{
	257, 258, 514, 261, 517, 1285, 262, 518, 1286, 1542, 259, 515,
	773, 774, 771, 516, 1029, 1030, 772, 1028, 1287, 1543, 775, 1031,
	1799, 1544, 776, 1032, 1800, 2056, 260, 263, 264, 519, 520, 1288,
}

// DecodeBaseline splits a MIRIAD baseline number into its antennas.
func DecodeBaseline(bl int) (a1, a2 int) {
	return bl / 256, bl % 256
}

// RawVisibilities are correlator records before flagging and averaging.
// Data and Flags are indexed [integration][baseline][channel], flattened.
// A true flag marks a good sample.
type RawVisibilities struct {
	Data  []complex64
	Flags []bool
	// Baselines holds the MIRIAD number of each baseline slot.
	Baselines []int
	// Times holds one timestamp per integration, in units of TimeScale
	// seconds (Julian days for MIRIAD data).
	Times       []float64
	NumChannels int
	StartFreq   float64
	ChannelStep float64
}

func (r *RawVisibilities) NumIntegrations() int { return len(r.Times) }
func (r *RawVisibilities) NumBaselines() int    { return len(r.Baselines) }

// PrepareParams controls Prepare.
type PrepareParams struct {
	// Channels kept after averaging, as absolute channel numbers.
	Channels     []int
	IncludeAutos bool
	// TimeScale converts Times to seconds.
	TimeScale float64
}

// NewPrepareParams keeps channels 6 through 57 of a 64-channel band and
// reads timestamps as Julian days.
func NewPrepareParams() *PrepareParams {
	chans := make([]int, 0, 52)
	for c := 6; c < 58; c++ {
		chans = append(chans, c)
	}
	return &PrepareParams{Channels: chans, TimeScale: 86400}
}

// Prepare flags, baseline-averages and channel-trims raw visibilities into a
// buffer of amplitudes. Flagged samples count as zero in the average, and
// the average always divides by the number of baselines used.
func Prepare(raw *RawVisibilities, p *PrepareParams) (*VisibilityBuffer, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: nil input", ErrInvalidVisibilities)
	}
	if p == nil {
		p = NewPrepareParams()
	}
	nint, nbl, nch := raw.NumIntegrations(), raw.NumBaselines(), raw.NumChannels
	if nint == 0 || nbl == 0 || nch == 0 {
		return nil, fmt.Errorf("%w: shape %d x %d x %d", ErrInvalidVisibilities, nint, nbl, nch)
	}
	if len(raw.Data) != nint*nbl*nch {
		return nil, fmt.Errorf("%w: %d samples for %d integrations x %d baselines x %d channels",
			ErrInvalidVisibilities, len(raw.Data), nint, nbl, nch)
	}
	if len(raw.Flags) != len(raw.Data) {
		return nil, fmt.Errorf("%w: %d flags for %d samples", ErrInvalidVisibilities, len(raw.Flags), len(raw.Data))
	}
	if p.TimeScale <= 0 || math.IsInf(p.TimeScale, 0) {
		return nil, fmt.Errorf("%w: time scale must be positive, got %g", ErrInvalidVisibilities, p.TimeScale)
	}

	var slots []int
	for i, bl := range raw.Baselines {
		a1, a2 := DecodeBaseline(bl)
		if a1 == a2 && !p.IncludeAutos {
			continue
		}
		slots = append(slots, i)
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: no cross-correlation baselines", ErrInvalidVisibilities)
	}

	chans := p.Channels
	if len(chans) == 0 {
		chans = make([]int, nch)
		for i := range chans {
			chans[i] = i
		}
	}
	for _, c := range chans {
		if c < 0 || c >= nch {
			return nil, fmt.Errorf("%w: channel %d outside %d channels", ErrInvalidVisibilities, c, nch)
		}
	}

	freq, err := NewFrequencyAxisFromChannels(raw.StartFreq, raw.ChannelStep, chans)
	if err != nil {
		return nil, err
	}
	times, err := NewRelativeTimeAxis(raw.Times, p.TimeScale)
	if err != nil {
		return nil, err
	}

	amp := make([]float64, nint*len(chans))
	norm := complex(float64(len(slots)), 0)
	for t := 0; t < nint; t++ {
		for k, c := range chans {
			var sum complex128
			for _, s := range slots {
				idx := (t*nbl+s)*nch + c
				if raw.Flags[idx] {
					sum += complex128(raw.Data[idx])
				}
			}
			amp[t*len(chans)+k] = cmplx.Abs(sum / norm)
		}
	}
	return NewVisibilityBuffer(amp, freq, times)
}
