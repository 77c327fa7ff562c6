package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"dedisp/pkg/dedisp"
)

func openTemp(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "nested", "candidates.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRecordRunAndCandidates(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()

	first := Run{
		Source:    "obs.fits",
		Object:    "B0329+54",
		Window:    0,
		DMMin:     35,
		DMMax:     75,
		DMTrials:  40,
		Mean:      1.02,
		Std:       0.11,
		Checksum:  0xfeedfacecafebeef,
		Computed:  1107,
		Elapsed:   1500 * time.Millisecond,
		StartTime: 0,
	}
	id1, err := c.RecordRun(ctx, first, []dedisp.Peak{
		{DMIndex: 5, TimeIndex: 10, DM: 50, Time: 0.3, Significance: 58.8, Amplitude: 10},
		{DMIndex: 6, TimeIndex: 9, DM: 60, Time: 0.27, Significance: 6.1, Amplitude: 2.1},
	})
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if _, err := uuid.Parse(id1); err != nil {
		t.Fatalf("run id %q is not a UUID: %v", id1, err)
	}

	second := first
	second.ID = "window-1"
	second.Window = 1
	second.StartTime = 2
	id2, err := c.RecordRun(ctx, second, []dedisp.Peak{
		{DMIndex: 2, TimeIndex: 4, DM: 20, Time: 0.12, Significance: 12.5, Amplitude: 4},
	})
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if id2 != "window-1" {
		t.Fatalf("explicit run id replaced by %q", id2)
	}

	all, err := c.Candidates(ctx, 0)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("%d candidates, want 3", len(all))
	}
	wantSig := []float64{58.8, 12.5, 6.1}
	for i, cd := range all {
		if cd.Significance != wantSig[i] {
			t.Fatalf("candidate %d significance %g, want %g", i, cd.Significance, wantSig[i])
		}
	}
	if all[0].RunID != id1 || all[0].Rank != 0 || all[0].DM != 50 || all[0].TimeIndex != 10 {
		t.Fatalf("top candidate %+v", all[0])
	}

	strong, err := c.Candidates(ctx, 10)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(strong) != 2 || strong[1].RunID != "window-1" {
		t.Fatalf("candidates above 10 sigma: %+v", strong)
	}

	runs, err := c.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("%d runs, want 2", len(runs))
	}
	r := runs[0]
	if r.ID != id1 || r.Object != "B0329+54" || r.Checksum != 0xfeedfacecafebeef || r.Elapsed != 1500*time.Millisecond {
		t.Fatalf("stored run %+v", r)
	}
	if r.RecordedAt.IsZero() {
		t.Fatalf("recorded time not set")
	}
}

func TestRecordRunDuplicateID(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()
	run := Run{ID: "same", Source: "a"}
	if _, err := c.RecordRun(ctx, run, nil); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if _, err := c.RecordRun(ctx, run, []dedisp.Peak{{Significance: 9}}); err == nil {
		t.Fatalf("duplicate run id accepted")
	}
	// the failed transaction must not leave its candidate behind
	cands, err := c.Candidates(ctx, 0)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(cands) != 0 {
		t.Fatalf("rolled back run left %d candidates", len(cands))
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.db")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := c.RecordRun(context.Background(), Run{Source: "x"}, []dedisp.Peak{{Significance: 7}}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c.Close()
	cands, err := c.Candidates(context.Background(), 5)
	if err != nil || len(cands) != 1 {
		t.Fatalf("after reopen: %d candidates, err %v", len(cands), err)
	}
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatalf("empty path accepted")
	}
}
