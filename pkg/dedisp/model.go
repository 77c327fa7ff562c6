package dedisp

import "math"

const (
	// DelayConstant scales DM/f² (f in GHz) to a delay in seconds.
	DelayConstant = 4.2e-3
	// SmearingConstant scales DM·Δf/f³ to the intra-channel smearing in
	// seconds, with Δf the channel width in GHz multiplied by 1000.
	SmearingConstant = 8.3e-6
)

// DispersionModel predicts where a pulse of a given DM lands in each channel.
type DispersionModel struct {
	// ChannelWidth in GHz. Only the magnitude is used.
	ChannelWidth float64
}

// PulseTime is the arrival time at frequency f (GHz) of a pulse emitted at t0.
func (m DispersionModel) PulseTime(dm, t0, f float64) float64 {
	return DelayConstant*dm/(f*f) + t0
}

// PulseDuration is the smearing of the pulse across one channel at f.
func (m DispersionModel) PulseDuration(dm, f float64) float64 {
	return SmearingConstant * dm * (1000 * math.Abs(m.ChannelWidth)) / (f * f * f)
}

// Window returns the inclusive time interval occupied by the pulse in the
// channel at f.
func (m DispersionModel) Window(dm, t0, f float64) (lo, hi float64) {
	pt := m.PulseTime(dm, t0, f)
	half := m.PulseDuration(dm, f) / 2
	return pt - half, pt + half
}
