package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"

	"dedisp/pkg/dedisp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// candidate is one exported peak with its time made absolute.
type candidate struct {
	Window       int     `json:"window"`
	RunID        string  `json:"runId,omitempty"`
	AbsoluteTime float64 `json:"absoluteTime"`
	dedisp.Peak
}

func collectCandidates(reports []windowReport) []candidate {
	var out []candidate
	for _, rep := range reports {
		for _, p := range rep.peaks {
			out = append(out, candidate{Window: rep.index, RunID: rep.runID, AbsoluteTime: rep.start + p.Time, Peak: p})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Significance > out[j].Significance })
	return out
}

func writePeaks(path string, reports []windowReport) error {
	cands := collectCandidates(reports)
	if cands == nil {
		cands = []candidate{}
	}
	data, err := json.MarshalIndent(cands, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding peaks: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing peaks: %w", err)
	}
	return nil
}

func printReport(w io.Writer, reports []windowReport, sp *dedisp.SearchParams, elapsed time.Duration) {
	var total dedisp.SearchMetrics
	failed := 0
	for _, rep := range reports {
		total.Cells += rep.metrics.Cells
		total.Computed += rep.metrics.Computed
		total.Skipped += rep.metrics.Skipped
		total.EmptyTracks += rep.metrics.EmptyTracks
		total.TrackPairs += rep.metrics.TrackPairs
		if rep.err != nil {
			failed++
		}
	}
	cands := collectCandidates(reports)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "=== Dedispersion Results (%.1fs) ===\n", elapsed.Seconds())
	fmt.Fprintf(w, "  Windows:         %d", len(reports))
	if failed > 0 {
		fmt.Fprintf(w, " (%d without usable statistics)", failed)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  DM trials:       %d (%g..%g, %s tracks)\n", len(sp.DMs), sp.DMs[0], sp.DMs[len(sp.DMs)-1], sp.Method)
	fmt.Fprintf(w, "  Cells:           %s computed, %s skipped\n", humanize.Comma(total.Computed), humanize.Comma(total.Skipped))
	fmt.Fprintf(w, "  Track pairs:     %s\n", humanize.Comma(total.TrackPairs))
	fmt.Fprintf(w, "  Candidates:      %d\n", len(cands))
	for i, c := range cands {
		if i == 10 {
			fmt.Fprintf(w, "  ... %d more\n", len(cands)-10)
			break
		}
		fmt.Fprintf(w, "    #%-2d DM=%-7g t0=%.4fs  %.1f sigma  (window %d)\n", i+1, c.DM, c.AbsoluteTime, c.Significance, c.Window)
	}
	fmt.Fprintln(w, "==============================")

	for _, rep := range reports {
		if rep.gridPath != "" {
			fmt.Fprintf(w, "  Grid:  %s (%s)\n", rep.gridPath, humanize.Bytes(uint64(rep.gridSize)))
		}
		if rep.plotPath != "" {
			fmt.Fprintf(w, "  Plot:  %s\n", rep.plotPath)
		}
	}
}
