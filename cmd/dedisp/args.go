package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"dedisp/pkg/config"
	"dedisp/pkg/dedisp"
)

type options struct {
	cfg   *config.Config
	input string
	help  bool

	simulate bool
	synth    dedisp.SynthParams
	samples  int
	channels int
}

func parseArgs(args []string) (*options, error) {
	fs := pflag.NewFlagSet("dedisp", pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: dedisp [flags] [input.fits|waterfall.png]\n\n")
		fs.PrintDefaults()
	}

	var (
		configFile      = fs.StringP("config", "c", "", "YAML configuration file")
		dmMin           = fs.Float64("dm-min", 0, "First trial DM (pc cm^-3)")
		dmMax           = fs.Float64("dm-max", 0, "DM upper bound, exclusive")
		dmStep          = fs.Float64("dm-step", 0, "DM trial step")
		minIntersection = fs.Int("min-intersection", 0, "Track cells needed to evaluate a trial (0 = channel count)")
		method          = fs.String("method", "", "Track construction: index or mask")
		workers         = fs.IntP("workers", "j", 0, "DM rows searched concurrently (0 = all CPUs)")
		debugDir        = fs.String("debug-dir", "", "Directory for intermediate search dumps")
		sigma           = fs.Float64P("sigma", "s", 0, "Peak significance threshold")
		trimGuard       = fs.Int("trim-guard", 0, "Columns removed before the unevaluated tail")
		clipSigma       = fs.Float64("clip-sigma", 0, "Sigma-clipping bound")
		clipIterations  = fs.Int("clip-iterations", 0, "Sigma-clipping passes")
		startFreq       = fs.Float64("start-freq", 0, "Frequency of channel 0 in GHz (image input)")
		channelStep     = fs.Float64("channel-step", 0, "Channel step in GHz, negative for a descending band (image input)")
		sampleTime      = fs.Float64("sample-time", 0, "Sample interval in seconds (image input)")
		windowStart     = fs.Int("window-start", 0, "Samples skipped before the first window")
		windowSize      = fs.Int("window-size", 0, "Samples per window (0 = whole buffer)")
		windowStep      = fs.Int("window-step", 0, "Samples between window starts (0 = window size)")
		gridPath        = fs.StringP("grid", "g", "", "Write the DM-time grid to this file")
		noCompress      = fs.Bool("no-compress", false, "Store the grid without zstd compression")
		peaksPath       = fs.StringP("peaks", "o", "", "Write detected peaks as JSON")
		plotPath        = fs.StringP("plot", "p", "", "Render the significance map as JPEG")
		catalogPath     = fs.String("catalog", "", "Record runs and candidates in this SQLite file")
		pushURL         = fs.String("push-url", "", "Prometheus push gateway URL")
		logLevel        = fs.String("log-level", "", "Log level: debug, info, warn, error")
		logFormat       = fs.String("log-format", "", "Log format: text or json")
		help            = fs.BoolP("help", "h", false, "Show this help")

		simulate = fs.Bool("simulate", false, "Search synthetic data instead of an input file")
		samples  = fs.Int("samples", 2000, "Synthetic sample count")
		channels = fs.Int("channels", 52, "Synthetic channel count")
		level    = fs.Float64("level", 1, "Synthetic background level")
		noise    = fs.Float64("noise", 0.1, "Synthetic noise sigma")
		seed     = fs.Uint64("seed", 1, "Synthetic noise seed")
		pulses   = fs.StringSlice("pulse", nil, "Injected pulse as dm:t0:amplitude (repeatable)")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return &options{help: true}, nil
		}
		return nil, err
	}
	if *help {
		fs.Usage()
		return &options{help: true}, nil
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}

	overrides := map[string]func(){
		"dm-min":           func() { cfg.Search.DMMin = *dmMin },
		"dm-max":           func() { cfg.Search.DMMax = *dmMax },
		"dm-step":          func() { cfg.Search.DMStep = *dmStep },
		"min-intersection": func() { cfg.Search.MinIntersection = *minIntersection },
		"method":           func() { cfg.Search.Method = *method },
		"workers":          func() { cfg.Search.Workers = *workers },
		"debug-dir":        func() { cfg.Search.DebugDir = *debugDir },
		"sigma":            func() { cfg.Peaks.SigmaThreshold = *sigma },
		"trim-guard":       func() { cfg.Peaks.TrimGuard = *trimGuard },
		"clip-sigma":       func() { cfg.Peaks.ClipSigma = *clipSigma },
		"clip-iterations":  func() { cfg.Peaks.ClipIterations = *clipIterations },
		"start-freq":       func() { cfg.Input.StartFreq = *startFreq },
		"channel-step":     func() { cfg.Input.ChannelStep = *channelStep },
		"sample-time":      func() { cfg.Input.SampleTime = *sampleTime },
		"window-start":     func() { cfg.Input.WindowStart = *windowStart },
		"window-size":      func() { cfg.Input.WindowSize = *windowSize },
		"window-step":      func() { cfg.Input.WindowStep = *windowStep },
		"grid":             func() { cfg.Output.GridPath = *gridPath },
		"no-compress":      func() { cfg.Output.CompressGrid = !*noCompress },
		"peaks":            func() { cfg.Output.PeaksPath = *peaksPath },
		"plot":             func() { cfg.Output.PlotPath = *plotPath },
		"catalog":          func() { cfg.Output.CatalogPath = *catalogPath },
		"push-url":         func() { cfg.Metrics.PushURL = *pushURL },
		"log-level":        func() { cfg.Logging.Level = *logLevel },
		"log-format":       func() { cfg.Logging.Format = *logFormat },
	}
	fs.Visit(func(f *pflag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	opts := &options{
		cfg:      cfg,
		input:    cfg.Input.Path,
		simulate: *simulate,
		samples:  *samples,
		channels: *channels,
		synth:    dedisp.SynthParams{Level: *level, Noise: *noise, Seed: *seed},
	}
	if fs.NArg() > 1 {
		return nil, fmt.Errorf("expected at most one input file, got %d", fs.NArg())
	}
	if fs.NArg() == 1 {
		opts.input = fs.Arg(0)
	}
	if !opts.simulate && opts.input == "" {
		fs.Usage()
		return nil, errors.New("no input file (pass one, set input.path, or use --simulate)")
	}

	for _, s := range *pulses {
		p, err := parsePulse(s)
		if err != nil {
			return nil, err
		}
		opts.synth.Pulses = append(opts.synth.Pulses, p)
	}
	return opts, nil
}

// parsePulse reads "dm:t0:amplitude".
func parsePulse(s string) (dedisp.Pulse, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return dedisp.Pulse{}, fmt.Errorf("pulse %q: want dm:t0:amplitude", s)
	}
	var v [3]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return dedisp.Pulse{}, fmt.Errorf("pulse %q: %w", s, err)
		}
		v[i] = f
	}
	return dedisp.Pulse{DM: v[0], T0: v[1], Amplitude: v[2]}, nil
}
