package dedisp

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Pulse describes a dispersed burst to inject into synthetic data.
type Pulse struct {
	DM        float64 `json:"dm" yaml:"dm"`
	T0        float64 `json:"t0" yaml:"t0"`
	Amplitude float64 `json:"amplitude" yaml:"amplitude"`
}

// SynthParams controls Synthesize.
type SynthParams struct {
	Level  float64
	Noise  float64
	Seed   uint64
	Pulses []Pulse
}

// InjectPulse overwrites the cells of amp (row-major time × channel over the
// given axes) covered by the pulse's dispersion track with its amplitude and
// returns how many cells were set.
func InjectPulse(amp []float64, freq FrequencyAxis, time TimeAxis, p Pulse) int {
	nc := freq.Len()
	var track DispersionTrack
	NewTrackBuilder(freq, time).Build(p.DM, p.T0, &track)
	for k, t := range track.TimeIndex {
		amp[t*nc+track.ChanIndex[k]] = p.Amplitude
	}
	return track.Len()
}

// Synthesize builds a buffer of Gaussian noise around Level and injects the
// given pulses in order.
func Synthesize(freq FrequencyAxis, time TimeAxis, p *SynthParams) (*VisibilityBuffer, error) {
	if p.Noise < 0 {
		return nil, fmt.Errorf("%w: noise must be non-negative, got %g", ErrInvalidBuffer, p.Noise)
	}
	amp := make([]float64, time.Len()*freq.Len())
	if p.Noise > 0 {
		dist := distuv.Normal{Mu: p.Level, Sigma: p.Noise, Src: rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15)}
		for i := range amp {
			amp[i] = dist.Rand()
		}
	} else {
		for i := range amp {
			amp[i] = p.Level
		}
	}
	for _, pulse := range p.Pulses {
		if err := ValidateDMs([]float64{pulse.DM}); err != nil {
			return nil, err
		}
		InjectPulse(amp, freq, time, pulse)
	}
	return NewVisibilityBuffer(amp, freq, time)
}
