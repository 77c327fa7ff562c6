package dedisp

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/zeebo/xxh3"
)

// SearchParams contains all parameters for a dedispersion search.
type SearchParams struct {
	DMs []float64
	// MinIntersection is the number of track cells needed before a trial is
	// evaluated. Zero means the channel count of the searched buffer.
	MinIntersection int
	Method          TrackMethod
	// Workers bounds the number of DM rows searched concurrently. Zero
	// means GOMAXPROCS and one runs serially.
	Workers                   int
	Logger                    *slog.Logger
	SaveIntermediateFilesPath string
}

// NewSearchParams creates SearchParams with the default DM range 35..75 in
// unit steps.
func NewSearchParams() *SearchParams {
	dms, _ := NewDMGrid(35, 75, 1)
	return &SearchParams{
		DMs:    dms,
		Method: TrackIndex,
	}
}

// SearchMetrics counts what the engine did for one search.
type SearchMetrics struct {
	Cells       int64
	Computed    int64
	Skipped     int64
	EmptyTracks int64
	TrackPairs  int64
	Elapsed     time.Duration
}

func (m *SearchMetrics) String() string {
	return fmt.Sprintf("{Cells=%d, Computed=%d, Skipped=%d, EmptyTracks=%d, TrackPairs=%d, Elapsed=%s}",
		m.Cells, m.Computed, m.Skipped, m.EmptyTracks, m.TrackPairs, m.Elapsed)
}

// SearchResult is the output of Search.
type SearchResult struct {
	Grid    *SignificanceGrid
	Metrics *SearchMetrics
}

// SignificanceGrid holds one value per (DM trial, time offset). Zero marks a
// trial whose track was too short to evaluate.
type SignificanceGrid struct {
	Values Mat
	DMs    []float64
	Times  []float64
}

// NewSignificanceGrid allocates a zeroed grid over the given axes.
func NewSignificanceGrid(dms, times []float64) *SignificanceGrid {
	values := NewMatWithSize(len(dms), len(times))
	values.SetToZero()
	return &SignificanceGrid{Values: values, DMs: dms, Times: times}
}

func (g *SignificanceGrid) Rows() int { return len(g.DMs) }
func (g *SignificanceGrid) Cols() int { return len(g.Times) }

func (g *SignificanceGrid) At(i, j int) float64 {
	return g.Values.DataFloat64()[i*len(g.Times)+j]
}

// Row returns the values of DM trial i, backed by the grid.
func (g *SignificanceGrid) Row(i int) []float64 {
	n := len(g.Times)
	return g.Values.DataFloat64()[i*n : (i+1)*n]
}

func (g *SignificanceGrid) Close() {
	if g == nil {
		return
	}
	g.Values.Close()
}

// Checksum fingerprints the axes and values bit for bit.
func (g *SignificanceGrid) Checksum() uint64 {
	h := xxh3.New()
	var buf [8]byte
	for _, s := range [][]float64{g.DMs, g.Times, g.Values.DataFloat64()} {
		for _, v := range s {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
	}
	return h.Sum64()
}

// PeakParams contains the parameters for peak detection.
type PeakParams struct {
	SigmaThreshold float64
	// TrimGuard columns are removed before the first trailing run of
	// unevaluated cells, where tracks start leaving the buffer.
	TrimGuard      int
	ClipSigma      float64
	ClipIterations int
	Logger         *slog.Logger
}

// NewPeakParams creates PeakParams with default values.
func NewPeakParams() *PeakParams {
	return &PeakParams{
		SigmaThreshold: 5.0,
		TrimGuard:      7,
		ClipSigma:      5.0,
		ClipIterations: 1,
	}
}

// Peak is a grid cell whose significance exceeds the threshold.
type Peak struct {
	DMIndex      int     `json:"dmIndex"`
	TimeIndex    int     `json:"timeIndex"`
	DM           float64 `json:"dm"`
	Time         float64 `json:"time"`
	Significance float64 `json:"significance"`
	Amplitude    float64 `json:"amplitude"`
}

func (p Peak) String() string {
	return fmt.Sprintf("{DM=%g, T0=%gs, Significance=%.2f, Amplitude=%g}", p.DM, p.Time, p.Significance, p.Amplitude)
}

// Detection is the output of DetectPeaks.
type Detection struct {
	Trimmed       *SignificanceGrid
	Significance  *SignificanceGrid
	TrimColumn    int
	InitialMean   float64
	InitialStd    float64
	Mean          float64
	Std           float64
	ClippedCells  int
	ComputedCells int
	// Peaks ranked by significance, highest first.
	Peaks []Peak
}

func (d *Detection) Close() {
	if d == nil {
		return
	}
	d.Trimmed.Close()
	d.Significance.Close()
}
