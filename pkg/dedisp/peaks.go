package dedisp

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"sort"
)

// DetectPeaks trims the unevaluated tail of grid, normalizes the remainder to
// a significance map using sigma-clipped statistics, and returns every cell
// above the threshold. grid is not modified.
func DetectPeaks(grid *SignificanceGrid, p *PeakParams) (*Detection, error) {
	if grid == nil {
		return nil, fmt.Errorf("nil grid")
	}
	if p == nil {
		p = NewPeakParams()
	}
	if math.IsNaN(p.SigmaThreshold) || math.IsInf(p.SigmaThreshold, 0) {
		return nil, fmt.Errorf("sigma threshold must be finite, got %g", p.SigmaThreshold)
	}
	if p.TrimGuard < 0 {
		return nil, fmt.Errorf("trim guard must be non-negative, got %d", p.TrimGuard)
	}
	if !(p.ClipSigma > 0) || math.IsInf(p.ClipSigma, 0) {
		return nil, fmt.Errorf("clip sigma must be positive and finite, got %g", p.ClipSigma)
	}
	if p.ClipIterations < 0 {
		return nil, fmt.Errorf("clip iterations must be non-negative, got %d", p.ClipIterations)
	}
	log := p.Logger
	if log == nil {
		log = slog.Default().With("component", "peaks")
	}

	cut := TrimColumn(grid, p.TrimGuard)
	rows := grid.Rows()
	dms := append([]float64(nil), grid.DMs...)
	times := append([]float64(nil), grid.Times[:cut]...)
	det := &Detection{TrimColumn: cut}

	if cut == 0 || rows == 0 {
		log.Debug("grid trimmed to nothing", "columns", grid.Cols(), "guard", p.TrimGuard)
		det.Trimmed = &SignificanceGrid{Values: NewMat(), DMs: dms, Times: times}
		det.Significance = &SignificanceGrid{Values: NewMat(), DMs: dms, Times: times}
		return det, nil
	}

	view := grid.Values.Region(image.Rect(0, 0, cut, rows))
	trimmed := view.Clone()
	view.Close()
	det.Trimmed = &SignificanceGrid{Values: trimmed, DMs: dms, Times: times}

	initial := computedStatistics(trimmed)
	det.InitialMean, det.InitialStd = initial.Mean, initial.Std
	det.ComputedCells = initial.Cells
	if initial.Cells == 0 {
		det.Significance = &SignificanceGrid{Values: NewMat(), DMs: dms, Times: times}
		return det, nil
	}
	if err := checkSpread("initial", initial); err != nil {
		det.Close()
		return nil, err
	}

	clipped := sigmaClip(trimmed, initial, p.ClipSigma, p.ClipIterations)
	if err := checkSpread("clipped", clipped); err != nil {
		det.Close()
		return nil, err
	}
	det.Mean, det.Std = clipped.Mean, clipped.Std
	det.ClippedCells = clipped.Cells

	sig := NewMat()
	normalize(trimmed, clipped.Mean, clipped.Std, &sig)
	det.Significance = &SignificanceGrid{Values: sig, DMs: dms, Times: times}

	det.Peaks = collectPeaks(det.Trimmed, det.Significance, p.SigmaThreshold)
	log.Debug("peaks detected", "trimColumn", cut, "computed", initial.Cells,
		"mean", clipped.Mean, "std", clipped.Std, "peaks", len(det.Peaks))
	return det, nil
}

// TrimColumn returns the number of leading columns kept by peak detection:
// the earliest column at which an evaluated row falls back to zero for the
// rest of the grid, less guard. Rows with no evaluated cell are ignored.
func TrimColumn(grid *SignificanceGrid, guard int) int {
	cols := grid.Cols()
	end := -1
	for i := 0; i < grid.Rows(); i++ {
		row := grid.Row(i)
		last := -1
		for j := cols - 1; j >= 0; j-- {
			if row[j] != 0 {
				last = j
				break
			}
		}
		if last < 0 {
			continue
		}
		if end < 0 || last+1 < end {
			end = last + 1
		}
	}
	if end < 0 {
		return 0
	}
	return max(end-guard, 0)
}

func checkSpread(stage string, s GridStatistics) error {
	if s.Cells == 0 || !(s.Std > 0) || math.IsInf(s.Std, 0) || math.IsNaN(s.Mean) {
		return &DegenerateGridError{Stage: stage, Mean: s.Mean, Std: s.Std, Cells: s.Cells}
	}
	return nil
}

func collectPeaks(trimmed, sig *SignificanceGrid, threshold float64) []Peak {
	var peaks []Peak
	cols := sig.Cols()
	raw := trimmed.Values.DataFloat64()
	for i, s := range sig.Values.DataFloat64() {
		if raw[i] == 0 || !(s > threshold) {
			continue
		}
		r, c := i/cols, i%cols
		peaks = append(peaks, Peak{
			DMIndex:      r,
			TimeIndex:    c,
			DM:           sig.DMs[r],
			Time:         sig.Times[c],
			Significance: s,
			Amplitude:    raw[i],
		})
	}
	sort.SliceStable(peaks, func(a, b int) bool {
		if peaks[a].Significance != peaks[b].Significance {
			return peaks[a].Significance > peaks[b].Significance
		}
		if peaks[a].DMIndex != peaks[b].DMIndex {
			return peaks[a].DMIndex < peaks[b].DMIndex
		}
		return peaks[a].TimeIndex < peaks[b].TimeIndex
	})
	return peaks
}
