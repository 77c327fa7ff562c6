package dedisp

import (
	"fmt"
	"sort"
)

// TrackMethod selects how the engine materializes dispersion tracks.
type TrackMethod int

const (
	// TrackIndex binary-searches each channel's window. Cost is proportional
	// to the track length.
	TrackIndex TrackMethod = iota
	// TrackMask scans the full time × channel plane for every trial.
	TrackMask
)

func (m TrackMethod) String() string {
	switch m {
	case TrackIndex:
		return "index"
	case TrackMask:
		return "mask"
	default:
		return "unknown"
	}
}

// ParseTrackMethod is the inverse of TrackMethod.String.
func ParseTrackMethod(s string) (TrackMethod, error) {
	switch s {
	case "index", "":
		return TrackIndex, nil
	case "mask":
		return TrackMask, nil
	default:
		return TrackIndex, fmt.Errorf("unknown track method %q (want index or mask)", s)
	}
}

// DispersionTrack lists the (time, channel) cells covered by a dispersed
// pulse. Entries are grouped by channel in channel order, and time indices
// ascend within a channel.
type DispersionTrack struct {
	TimeIndex []int
	ChanIndex []int
}

func (t *DispersionTrack) Len() int { return len(t.TimeIndex) }

// Reset empties the track and keeps its storage.
func (t *DispersionTrack) Reset() {
	t.TimeIndex = t.TimeIndex[:0]
	t.ChanIndex = t.ChanIndex[:0]
}

// DispersionMask is the dense boolean form of a track, row-major by time.
type DispersionMask struct {
	Rows int
	Cols int
	Bits []bool
}

func (m *DispersionMask) At(t, c int) bool { return m.Bits[t*m.Cols+c] }

// Count returns the number of cells set.
func (m *DispersionMask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// Track converts the mask into the channel-grouped index form.
func (m *DispersionMask) Track() DispersionTrack {
	var tr DispersionTrack
	for c := 0; c < m.Cols; c++ {
		for t := 0; t < m.Rows; t++ {
			if m.Bits[t*m.Cols+c] {
				tr.TimeIndex = append(tr.TimeIndex, t)
				tr.ChanIndex = append(tr.ChanIndex, c)
			}
		}
	}
	return tr
}

// TrackBuilder computes dispersion tracks over fixed frequency and time axes.
// A TrackBuilder is safe for concurrent use; the destination buffers passed
// to Build and Mask are not.
type TrackBuilder struct {
	model DispersionModel
	freqs []float64
	times []float64
}

func NewTrackBuilder(freq FrequencyAxis, time TimeAxis) *TrackBuilder {
	return &TrackBuilder{
		model: DispersionModel{ChannelWidth: freq.Width()},
		freqs: freq.Values,
		times: time.Values,
	}
}

// Model returns the dispersion model the builder evaluates.
func (b *TrackBuilder) Model() DispersionModel { return b.model }

// Build writes the track for (dm, t0) into dst, reusing its storage.
func (b *TrackBuilder) Build(dm, t0 float64, dst *DispersionTrack) {
	dst.Reset()
	nt := len(b.times)
	for c, f := range b.freqs {
		lo, hi := b.model.Window(dm, t0, f)
		for t := sort.SearchFloat64s(b.times, lo); t < nt && b.times[t] <= hi; t++ {
			dst.TimeIndex = append(dst.TimeIndex, t)
			dst.ChanIndex = append(dst.ChanIndex, c)
		}
	}
}

// Mask writes the dense form of the track for (dm, t0) into dst.
func (b *TrackBuilder) Mask(dm, t0 float64, dst *DispersionMask) {
	nt, nc := len(b.times), len(b.freqs)
	if len(dst.Bits) != nt*nc {
		dst.Bits = make([]bool, nt*nc)
	}
	dst.Rows, dst.Cols = nt, nc
	for c, f := range b.freqs {
		lo, hi := b.model.Window(dm, t0, f)
		for t, v := range b.times {
			dst.Bits[t*nc+c] = v >= lo && v <= hi
		}
	}
}
