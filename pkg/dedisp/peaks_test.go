package dedisp

import (
	"errors"
	"math"
	"testing"
)

// rippleGrid builds a rows × cols grid of values near 1. fill(i, j, v)
// may override any cell; returning 0 marks it unevaluated.
func rippleGrid(rows, cols int, fill func(i, j int, v float64) float64) *SignificanceGrid {
	dms := make([]float64, rows)
	for i := range dms {
		dms[i] = float64(10 * i)
	}
	times := make([]float64, cols)
	for j := range times {
		times[j] = 0.5 * float64(j)
	}
	values := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := 1 + 0.1*math.Sin(0.9*float64(i)+0.37*float64(j)+0.11*float64(i*j))
			if fill != nil {
				v = fill(i, j, v)
			}
			values[i*cols+j] = v
		}
	}
	return &SignificanceGrid{Values: NewMatFromFloat64(rows, cols, values), DMs: dms, Times: times}
}

func TestDetectPeaksSinglePeak(t *testing.T) {
	g := rippleGrid(10, 50, func(i, j int, v float64) float64 {
		if i == 4 && j == 20 {
			return 100
		}
		return v
	})
	defer g.Close()

	det, err := DetectPeaks(g, NewPeakParams())
	if err != nil {
		t.Fatalf("DetectPeaks: %v", err)
	}
	defer det.Close()

	if det.TrimColumn != 43 {
		t.Fatalf("trim column %d, want 43", det.TrimColumn)
	}
	if len(det.Peaks) != 1 {
		t.Fatalf("expected exactly one peak, got %d: %v", len(det.Peaks), det.Peaks)
	}
	p := det.Peaks[0]
	if p.DMIndex != 4 || p.TimeIndex != 20 || p.DM != 40 || p.Time != 10 {
		t.Fatalf("peak %+v, want dm index 4 time index 20", p)
	}
	if p.Amplitude != 100 {
		t.Fatalf("peak amplitude %g, want 100", p.Amplitude)
	}
	if p.Significance <= 20 {
		t.Fatalf("peak significance %.2f, want > 20", p.Significance)
	}
	// clipping must drop the outlier
	if det.ClippedCells != det.ComputedCells-1 {
		t.Fatalf("clipped cells %d, want %d", det.ClippedCells, det.ComputedCells-1)
	}
	if det.InitialStd <= det.Std {
		t.Fatalf("initial std %g not above clipped std %g", det.InitialStd, det.Std)
	}
}

func TestDetectPeaksTrimsZeroTailAndGuard(t *testing.T) {
	const cols = 40
	g := rippleGrid(3, cols, func(i, j int, v float64) float64 {
		if j >= cols-5 {
			return 0
		}
		return v
	})
	defer g.Close()

	det, err := DetectPeaks(g, NewPeakParams())
	if err != nil {
		t.Fatalf("DetectPeaks: %v", err)
	}
	defer det.Close()

	if det.TrimColumn != cols-12 {
		t.Fatalf("trim column %d, want %d", det.TrimColumn, cols-12)
	}
	if det.Trimmed.Cols() != cols-12 || len(det.Trimmed.Times) != cols-12 {
		t.Fatalf("trimmed grid has %d columns and %d times, want %d", det.Trimmed.Cols(), len(det.Trimmed.Times), cols-12)
	}
	if det.Trimmed.Values.Cols() != cols-12 || det.Trimmed.Values.Rows() != 3 {
		t.Fatalf("trimmed values are %d x %d", det.Trimmed.Values.Rows(), det.Trimmed.Values.Cols())
	}
	if det.ComputedCells != 3*(cols-12) {
		t.Fatalf("computed cells %d, want %d", det.ComputedCells, 3*(cols-12))
	}
}

func TestTrimColumnUsesEarliestRow(t *testing.T) {
	g := rippleGrid(4, 30, func(i, j int, v float64) float64 {
		switch {
		case i == 0:
			// never evaluated, must not constrain the cut
			return 0
		case i == 2 && j >= 20:
			return 0
		case j >= 26:
			return 0
		}
		return v
	})
	defer g.Close()

	if got := TrimColumn(g, 7); got != 13 {
		t.Fatalf("TrimColumn = %d, want 13", got)
	}
	if got := TrimColumn(g, 0); got != 20 {
		t.Fatalf("TrimColumn without guard = %d, want 20", got)
	}
	if got := TrimColumn(g, 50); got != 0 {
		t.Fatalf("TrimColumn with oversized guard = %d, want 0", got)
	}
}

func TestDetectPeaksSkipsSentinelCells(t *testing.T) {
	g := rippleGrid(6, 60, func(i, j int, v float64) float64 {
		if (i+j)%5 == 0 && j < 40 {
			return 0
		}
		return v
	})
	defer g.Close()

	det, err := DetectPeaks(g, NewPeakParams())
	if err != nil {
		t.Fatalf("DetectPeaks: %v", err)
	}
	defer det.Close()

	raw := det.Trimmed.Values.DataFloat64()
	sig := det.Significance.Values.DataFloat64()
	for i, v := range raw {
		if v == 0 && sig[i] != 0 {
			t.Fatalf("sentinel cell %d normalized to %g", i, sig[i])
		}
	}
	if math.Abs(det.Mean-1) > 0.05 {
		t.Fatalf("mean %g should ignore sentinel zeros", det.Mean)
	}
	if len(det.Peaks) != 0 {
		t.Fatalf("expected no peaks in a ripple, got %v", det.Peaks)
	}
}

func TestDetectPeaksDegenerate(t *testing.T) {
	g := rippleGrid(5, 30, func(i, j int, v float64) float64 { return 3 })
	defer g.Close()

	_, err := DetectPeaks(g, NewPeakParams())
	if !errors.Is(err, ErrDegenerateGrid) {
		t.Fatalf("expected ErrDegenerateGrid, got %v", err)
	}
	var dg *DegenerateGridError
	if !errors.As(err, &dg) {
		t.Fatalf("expected a *DegenerateGridError, got %T", err)
	}
	if dg.Std != 0 || dg.Mean != 3 {
		t.Fatalf("degenerate stats mean=%g std=%g, want 3 and 0", dg.Mean, dg.Std)
	}
}

func TestDetectPeaksAllSentinel(t *testing.T) {
	g := rippleGrid(4, 25, func(i, j int, v float64) float64 { return 0 })
	defer g.Close()

	det, err := DetectPeaks(g, NewPeakParams())
	if err != nil {
		t.Fatalf("all-zero grid: %v", err)
	}
	defer det.Close()
	if len(det.Peaks) != 0 || det.TrimColumn != 0 {
		t.Fatalf("expected no peaks and nothing kept, got %d peaks and %d columns", len(det.Peaks), det.TrimColumn)
	}
}

func TestDetectPeaksRanking(t *testing.T) {
	g := rippleGrid(8, 60, func(i, j int, v float64) float64 {
		switch {
		case i == 2 && j == 30:
			return 50
		case i == 6 && j == 5:
			return 80
		case i == 1 && j == 40:
			return 50
		}
		return v
	})
	defer g.Close()

	det, err := DetectPeaks(g, NewPeakParams())
	if err != nil {
		t.Fatalf("DetectPeaks: %v", err)
	}
	defer det.Close()
	if len(det.Peaks) != 3 {
		t.Fatalf("expected 3 peaks, got %v", det.Peaks)
	}
	order := [][2]int{{6, 5}, {1, 40}, {2, 30}}
	for k, want := range order {
		p := det.Peaks[k]
		if p.DMIndex != want[0] || p.TimeIndex != want[1] {
			t.Fatalf("peak %d at (%d, %d), want (%d, %d)", k, p.DMIndex, p.TimeIndex, want[0], want[1])
		}
	}
}

func TestDetectPeaksValidatesParams(t *testing.T) {
	g := rippleGrid(3, 20, nil)
	defer g.Close()

	bad := []func(p *PeakParams){
		func(p *PeakParams) { p.TrimGuard = -1 },
		func(p *PeakParams) { p.ClipSigma = 0 },
		func(p *PeakParams) { p.SigmaThreshold = math.NaN() },
		func(p *PeakParams) { p.ClipIterations = -2 },
	}
	for k, mutate := range bad {
		p := NewPeakParams()
		mutate(p)
		if _, err := DetectPeaks(g, p); err == nil {
			t.Errorf("case %d: invalid params accepted", k)
		}
	}
}
