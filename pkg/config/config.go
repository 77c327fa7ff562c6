// Package config loads and validates the dedisp configuration from YAML
// with environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"dedisp/pkg/dedisp"
	"dedisp/pkg/logger"
)

// Config is the top-level configuration.
type Config struct {
	Search  SearchConfig  `yaml:"search"`
	Peaks   PeaksConfig   `yaml:"peaks"`
	Input   InputConfig   `yaml:"input"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// SearchConfig holds the DM grid and engine settings. DMMax is exclusive.
type SearchConfig struct {
	DMMin           float64 `yaml:"dmMin"`
	DMMax           float64 `yaml:"dmMax"`
	DMStep          float64 `yaml:"dmStep"`
	MinIntersection int     `yaml:"minIntersection"`
	Method          string  `yaml:"method"`
	Workers         int     `yaml:"workers"`
	DebugDir        string  `yaml:"debugDir"`
}

type PeaksConfig struct {
	SigmaThreshold float64 `yaml:"sigmaThreshold"`
	TrimGuard      int     `yaml:"trimGuard"`
	ClipSigma      float64 `yaml:"clipSigma"`
	ClipIterations int     `yaml:"clipIterations"`
}

// InputConfig describes where the visibility buffer comes from. The axis
// fields apply to image waterfalls, which carry no axis metadata.
type InputConfig struct {
	Path        string  `yaml:"path"`
	StartFreq   float64 `yaml:"startFreq"`
	ChannelStep float64 `yaml:"channelStep"`
	SampleTime  float64 `yaml:"sampleTime"`
	WindowStart int     `yaml:"windowStart"`
	WindowSize  int     `yaml:"windowSize"`
	WindowStep  int     `yaml:"windowStep"`
}

type OutputConfig struct {
	GridPath     string `yaml:"gridPath"`
	CompressGrid bool   `yaml:"compressGrid"`
	PeaksPath    string `yaml:"peaksPath"`
	PlotPath     string `yaml:"plotPath"`
	CatalogPath  string `yaml:"catalogPath"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig names the Prometheus push gateway. An empty PushURL
// disables pushing.
type MetricsConfig struct {
	PushURL string `yaml:"pushUrl"`
	Job     string `yaml:"job"`
}

// Load reads a YAML config file (if provided) and applies DD_* environment
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used for POCO pulsar observations.
func Default() *Config {
	return &Config{
		Search: SearchConfig{
			DMMin:  35,
			DMMax:  75,
			DMStep: 1,
			Method: dedisp.TrackIndex.String(),
		},
		Peaks: PeaksConfig{
			SigmaThreshold: 5,
			TrimGuard:      7,
			ClipSigma:      5,
			ClipIterations: 1,
		},
		Input: InputConfig{
			StartFreq:   0.718,
			ChannelStep: 0.001625,
			SampleTime:  0.001,
		},
		Output: OutputConfig{
			CompressGrid: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Job: "dedisp",
		},
	}
}

// applyEnvOverrides reads DD_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) error {
	floats := map[string]*float64{
		"DD_SEARCH_DM_MIN":         &cfg.Search.DMMin,
		"DD_SEARCH_DM_MAX":         &cfg.Search.DMMax,
		"DD_SEARCH_DM_STEP":        &cfg.Search.DMStep,
		"DD_PEAKS_SIGMA_THRESHOLD": &cfg.Peaks.SigmaThreshold,
		"DD_PEAKS_CLIP_SIGMA":      &cfg.Peaks.ClipSigma,
		"DD_INPUT_START_FREQ":      &cfg.Input.StartFreq,
		"DD_INPUT_CHANNEL_STEP":    &cfg.Input.ChannelStep,
		"DD_INPUT_SAMPLE_TIME":     &cfg.Input.SampleTime,
	}
	for key, dst := range floats {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("environment %s: %w", key, err)
			}
			*dst = f
		}
	}

	ints := map[string]*int{
		"DD_SEARCH_MIN_INTERSECTION": &cfg.Search.MinIntersection,
		"DD_SEARCH_WORKERS":          &cfg.Search.Workers,
		"DD_PEAKS_TRIM_GUARD":        &cfg.Peaks.TrimGuard,
		"DD_PEAKS_CLIP_ITERATIONS":   &cfg.Peaks.ClipIterations,
		"DD_INPUT_WINDOW_START":      &cfg.Input.WindowStart,
		"DD_INPUT_WINDOW_SIZE":       &cfg.Input.WindowSize,
		"DD_INPUT_WINDOW_STEP":       &cfg.Input.WindowStep,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("environment %s: %w", key, err)
			}
			*dst = n
		}
	}

	strs := map[string]*string{
		"DD_SEARCH_METHOD":       &cfg.Search.Method,
		"DD_SEARCH_DEBUG_DIR":    &cfg.Search.DebugDir,
		"DD_INPUT_PATH":          &cfg.Input.Path,
		"DD_OUTPUT_GRID_PATH":    &cfg.Output.GridPath,
		"DD_OUTPUT_PEAKS_PATH":   &cfg.Output.PeaksPath,
		"DD_OUTPUT_PLOT_PATH":    &cfg.Output.PlotPath,
		"DD_OUTPUT_CATALOG_PATH": &cfg.Output.CatalogPath,
		"DD_LOGGING_LEVEL":       &cfg.Logging.Level,
		"DD_LOGGING_FORMAT":      &cfg.Logging.Format,
		"DD_METRICS_PUSH_URL":    &cfg.Metrics.PushURL,
		"DD_METRICS_JOB":         &cfg.Metrics.Job,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("DD_OUTPUT_COMPRESS_GRID"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("environment DD_OUTPUT_COMPRESS_GRID: %w", err)
		}
		cfg.Output.CompressGrid = b
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := dedisp.NewDMGrid(c.Search.DMMin, c.Search.DMMax, c.Search.DMStep); err != nil {
		errs = append(errs, fmt.Errorf("search: %w", err))
	}
	if c.Search.MinIntersection < 0 {
		errs = append(errs, fmt.Errorf("search.minIntersection must be >= 0, got %d", c.Search.MinIntersection))
	}
	if _, err := dedisp.ParseTrackMethod(c.Search.Method); err != nil {
		errs = append(errs, fmt.Errorf("search.method: %w", err))
	}
	if c.Search.Workers < 0 {
		errs = append(errs, fmt.Errorf("search.workers must be >= 0, got %d", c.Search.Workers))
	}
	if c.Peaks.TrimGuard < 0 {
		errs = append(errs, fmt.Errorf("peaks.trimGuard must be >= 0, got %d", c.Peaks.TrimGuard))
	}
	if !(c.Peaks.ClipSigma > 0) {
		errs = append(errs, fmt.Errorf("peaks.clipSigma must be positive, got %g", c.Peaks.ClipSigma))
	}
	if c.Peaks.ClipIterations < 0 {
		errs = append(errs, fmt.Errorf("peaks.clipIterations must be >= 0, got %d", c.Peaks.ClipIterations))
	}
	if c.Input.WindowStart < 0 || c.Input.WindowSize < 0 || c.Input.WindowStep < 0 {
		errs = append(errs, fmt.Errorf("input window settings must be >= 0 (start=%d, size=%d, step=%d)",
			c.Input.WindowStart, c.Input.WindowSize, c.Input.WindowStep))
	}
	if !(c.Input.SampleTime > 0) {
		errs = append(errs, fmt.Errorf("input.sampleTime must be positive, got %g", c.Input.SampleTime))
	}
	if !logger.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	if f := strings.ToLower(c.Logging.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("logging.format %q is not text or json", c.Logging.Format))
	}
	if c.Metrics.PushURL != "" && c.Metrics.Job == "" {
		errs = append(errs, errors.New("metrics.job is required when pushUrl is set"))
	}
	return errors.Join(errs...)
}

// SearchParams converts the search section into engine parameters.
func (c *Config) SearchParams() (*dedisp.SearchParams, error) {
	dms, err := dedisp.NewDMGrid(c.Search.DMMin, c.Search.DMMax, c.Search.DMStep)
	if err != nil {
		return nil, err
	}
	method, err := dedisp.ParseTrackMethod(c.Search.Method)
	if err != nil {
		return nil, err
	}
	p := dedisp.NewSearchParams()
	p.DMs = dms
	p.MinIntersection = c.Search.MinIntersection
	p.Method = method
	p.Workers = c.Search.Workers
	p.SaveIntermediateFilesPath = c.Search.DebugDir
	return p, nil
}

// PeakParams converts the peaks section into detector parameters.
func (c *Config) PeakParams() *dedisp.PeakParams {
	p := dedisp.NewPeakParams()
	p.SigmaThreshold = c.Peaks.SigmaThreshold
	p.TrimGuard = c.Peaks.TrimGuard
	p.ClipSigma = c.Peaks.ClipSigma
	p.ClipIterations = c.Peaks.ClipIterations
	return p
}
