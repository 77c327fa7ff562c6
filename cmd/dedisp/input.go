package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"dedisp/pkg/config"
	"dedisp/pkg/dedisp"
)

type source struct {
	name   string
	object string
	buffer *dedisp.VisibilityBuffer
}

func loadInput(opts *options) (*source, error) {
	in := opts.cfg.Input
	if opts.simulate {
		return simulateInput(opts)
	}

	lowerPath := strings.ToLower(opts.input)
	if strings.HasSuffix(lowerPath, ".fits") || strings.HasSuffix(lowerPath, ".fit") || strings.HasSuffix(lowerPath, ".fts") {
		ds, err := dedisp.ReadDynamicSpectrumFits(opts.input)
		if err != nil {
			return nil, fmt.Errorf("reading FITS: %w", err)
		}
		if ds.Complex {
			fmt.Printf("FITS holds complex visibilities, searching their amplitudes\n")
		}
		return &source{name: filepath.Base(opts.input), object: ds.Metadata.ObjectName(), buffer: ds.Buffer}, nil
	}

	amp, nchan, nt, err := loadWaterfallImage(opts.input)
	if err != nil {
		return nil, err
	}
	buf, err := waterfallBuffer(amp, nchan, nt, in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opts.input, err)
	}
	return &source{name: filepath.Base(opts.input), buffer: buf}, nil
}

// waterfallBuffer attaches the configured axes to image amplitudes laid out
// with one row per time sample.
func waterfallBuffer(amp []float64, nchan, nt int, in config.InputConfig) (*dedisp.VisibilityBuffer, error) {
	freq, err := dedisp.NewFrequencyAxis(in.StartFreq, in.ChannelStep, nchan)
	if err != nil {
		return nil, err
	}
	times, err := dedisp.NewUniformTimeAxis(nt, in.SampleTime)
	if err != nil {
		return nil, err
	}
	return dedisp.NewVisibilityBuffer(amp, freq, times)
}

func simulateInput(opts *options) (*source, error) {
	in := opts.cfg.Input
	freq, err := dedisp.NewFrequencyAxis(in.StartFreq, in.ChannelStep, opts.channels)
	if err != nil {
		return nil, err
	}
	times, err := dedisp.NewUniformTimeAxis(opts.samples, in.SampleTime)
	if err != nil {
		return nil, err
	}
	p := opts.synth
	if len(p.Pulses) == 0 {
		// one bright pulse a quarter of the way in, inside the default DM range
		p.Pulses = []dedisp.Pulse{{DM: 56.8, T0: times.Duration() / 4, Amplitude: 20 * max(p.Noise, 0.05)}}
	}
	buf, err := dedisp.Synthesize(freq, times, &p)
	if err != nil {
		return nil, err
	}
	for _, pulse := range p.Pulses {
		fmt.Printf("Injected pulse: DM=%g t0=%gs amplitude=%g\n", pulse.DM, pulse.T0, pulse.Amplitude)
	}
	return &source{name: "simulated", object: "synthetic", buffer: buf}, nil
}

type window struct {
	start  float64
	buffer *dedisp.VisibilityBuffer
}

// splitWindows cuts buf as configured. A zero size searches everything after
// the start in one window, and a zero step makes windows adjacent.
func splitWindows(buf *dedisp.VisibilityBuffer, in config.InputConfig) ([]window, error) {
	if in.WindowStart >= buf.NumTimes() {
		return nil, fmt.Errorf("window start %d is past the %d samples of the input", in.WindowStart, buf.NumTimes())
	}
	size := in.WindowSize
	if size == 0 {
		size = buf.NumTimes() - in.WindowStart
	}
	step := in.WindowStep
	if step == 0 {
		step = size
	}
	parts, err := buf.Windows(in.WindowStart, size, step)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("input has %d samples, fewer than one window of %d after sample %d",
			buf.NumTimes(), size, in.WindowStart)
	}
	out := make([]window, len(parts))
	for k, p := range parts {
		start := in.WindowStart + k*step
		out[k] = window{start: buf.Time.Values[start], buffer: p}
	}
	return out, nil
}

// numberedPath inserts the window number before the extension when there is
// more than one window.
func numberedPath(path string, k, n int) string {
	if n <= 1 {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s-%03d%s", strings.TrimSuffix(path, ext), k, ext)
}
