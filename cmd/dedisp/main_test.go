package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"dedisp/pkg/catalog"
	"dedisp/pkg/config"
	"dedisp/pkg/dedisp"
)

func TestParsePulse(t *testing.T) {
	p, err := parsePulse("56.8:0.25:3")
	if err != nil {
		t.Fatalf("parsePulse: %v", err)
	}
	if p.DM != 56.8 || p.T0 != 0.25 || p.Amplitude != 3 {
		t.Fatalf("parsed %+v", p)
	}
	for _, bad := range []string{"", "1:2", "a:1:2", "1:2:3:4"} {
		if _, err := parsePulse(bad); err == nil {
			t.Errorf("parsePulse(%q) accepted", bad)
		}
	}
}

func TestParseArgsOverridesConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "dedisp.yaml")
	if err := os.WriteFile(cfgPath, []byte("search:\n  dmMin: 10\n  dmMax: 20\npeaks:\n  trimGuard: 3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	opts, err := parseArgs([]string{"-c", cfgPath, "--dm-max", "40", "--method", "mask", "--no-compress", "obs.fits"})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	cfg := opts.cfg
	if cfg.Search.DMMin != 10 || cfg.Search.DMMax != 40 || cfg.Search.Method != "mask" {
		t.Fatalf("search config %+v", cfg.Search)
	}
	if cfg.Peaks.TrimGuard != 3 || cfg.Peaks.SigmaThreshold != 5 {
		t.Fatalf("unset flags must not override the file: %+v", cfg.Peaks)
	}
	if cfg.Output.CompressGrid {
		t.Fatalf("--no-compress ignored")
	}
	if opts.input != "obs.fits" || opts.simulate {
		t.Fatalf("options %+v", opts)
	}
}

func TestParseArgsErrors(t *testing.T) {
	cases := map[string][]string{
		"no input":      {},
		"two inputs":    {"a.fits", "b.fits"},
		"bad method":    {"--method", "fft", "a.fits"},
		"bad pulse":     {"--simulate", "--pulse", "1:2"},
		"unknown flag":  {"--frobnicate", "a.fits"},
		"empty dm grid": {"--dm-min", "50", "--dm-max", "50", "a.fits"},
	}
	for name, args := range cases {
		if _, err := parseArgs(args); err == nil {
			t.Errorf("%s: accepted %v", name, args)
		}
	}
}

func TestSplitWindows(t *testing.T) {
	freq, _ := dedisp.NewFrequencyAxis(0.7, 0.03, 4)
	times, _ := dedisp.NewUniformTimeAxis(100, 0.5)
	buf, err := dedisp.NewVisibilityBuffer(make([]float64, 400), freq, times)
	if err != nil {
		t.Fatal(err)
	}

	in := config.Default().Input
	ws, err := splitWindows(buf, in)
	if err != nil || len(ws) != 1 || ws[0].buffer.NumTimes() != 100 {
		t.Fatalf("whole buffer: %d windows, err %v", len(ws), err)
	}

	in.WindowStart, in.WindowSize, in.WindowStep = 10, 35, 20
	ws, err = splitWindows(buf, in)
	if err != nil {
		t.Fatalf("splitWindows: %v", err)
	}
	// starts 10, 30, 50; a window at 70 would need samples up to 104
	if len(ws) != 3 {
		t.Fatalf("%d windows, want 3", len(ws))
	}
	if ws[2].buffer.NumTimes() != 35 {
		t.Fatalf("third window holds %d samples, want 35", ws[2].buffer.NumTimes())
	}

	in.WindowSize = 30
	ws, err = splitWindows(buf, in)
	if err != nil {
		t.Fatalf("splitWindows: %v", err)
	}
	// a window at 70 ends exactly on the last sample
	if len(ws) != 4 || ws[3].start != 35 {
		t.Fatalf("%d windows, want 4 with the last at 35s", len(ws))
	}
	if ws[2].start != 25 || ws[2].buffer.Time.Values[0] != 0 {
		t.Fatalf("third window starts at %gs with first sample at %gs", ws[2].start, ws[2].buffer.Time.Values[0])
	}

	in.WindowStart = 100
	if _, err := splitWindows(buf, in); err == nil {
		t.Fatalf("start past the end accepted")
	}
	in.WindowStart, in.WindowSize = 0, 500
	if _, err := splitWindows(buf, in); err == nil {
		t.Fatalf("oversized window accepted")
	}
}

func TestNumberedPath(t *testing.T) {
	if got := numberedPath("out/grid.ddg", 0, 1); got != "out/grid.ddg" {
		t.Errorf("single window renamed to %q", got)
	}
	if got := numberedPath("out/grid.ddg", 7, 12); got != "out/grid-007.ddg" {
		t.Errorf("numberedPath = %q", got)
	}
}

func TestRunSimulated(t *testing.T) {
	dir := t.TempDir()
	peaks := filepath.Join(dir, "peaks.json")
	grid := filepath.Join(dir, "grid.ddg")
	plot := filepath.Join(dir, "sigmap.jpg")
	db := filepath.Join(dir, "candidates.db")

	err := run([]string{
		"--simulate", "--channels", "16", "--samples", "1500", "--seed", "7",
		"--dm-min", "50", "--dm-max", "60", "--pulse", "56:0.3:3",
		"--window-size", "1000", "--window-step", "500",
		"--peaks", peaks, "--grid", grid, "--plot", plot, "--catalog", db,
		"--log-level", "error",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	for _, path := range []string{peaks, numberedPath(grid, 0, 2), numberedPath(grid, 1, 2), numberedPath(plot, 1, 2)} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing output: %v", err)
		}
	}
	g, err := dedisp.LoadGrid(numberedPath(grid, 0, 2))
	if err != nil {
		t.Fatalf("LoadGrid: %v", err)
	}
	defer g.Close()
	if g.Rows() != 10 || g.Cols() != 1000 {
		t.Fatalf("saved grid is %d x %d, want 10 x 1000", g.Rows(), g.Cols())
	}

	data, err := os.ReadFile(peaks)
	if err != nil {
		t.Fatal(err)
	}
	var cands []candidate
	if err := json.Unmarshal(data, &cands); err != nil {
		t.Fatalf("peaks file is not a JSON array: %v", err)
	}

	cat, err := catalog.Open(db)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	defer cat.Close()
	runs, err := cat.Runs(context.Background())
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 || runs[1].Window != 1 || runs[1].StartTime != 0.5 {
		t.Fatalf("catalog runs %+v", runs)
	}
	stored, err := cat.Candidates(context.Background(), 0)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(stored) != len(cands) {
		t.Fatalf("catalog holds %d candidates, peaks file %d", len(stored), len(cands))
	}
}
