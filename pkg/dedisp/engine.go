package dedisp

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

type rowCounters struct {
	computed    int64
	skipped     int64
	emptyTracks int64
	trackPairs  int64
}

// Search evaluates every (DM, t0) trial over the buffer. Each cell of the
// returned grid is the mean amplitude along the trial's dispersion track, or
// zero when the track covers fewer than MinIntersection cells.
func Search(ctx context.Context, buf *VisibilityBuffer, p *SearchParams) (*SearchResult, error) {
	if buf == nil {
		return nil, fmt.Errorf("%w: nil buffer", ErrInvalidBuffer)
	}
	if p == nil {
		p = NewSearchParams()
	}
	if err := ValidateDMs(p.DMs); err != nil {
		return nil, err
	}
	if p.MinIntersection < 0 {
		return nil, fmt.Errorf("min intersection must be non-negative, got %d", p.MinIntersection)
	}
	if p.Method != TrackIndex && p.Method != TrackMask {
		return nil, fmt.Errorf("unsupported track method %d", int(p.Method))
	}

	minHits := p.MinIntersection
	if minHits == 0 {
		minHits = buf.NumChannels()
	}
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	log := p.Logger
	if log == nil {
		log = slog.Default().With("component", "dedisp")
	}

	maybeSaveText(p.SaveIntermediateFilesPath, "00-search-params.txt",
		fmt.Sprintf("Params: DMs=%d [%g..%g], MinIntersection=%d, Method=%s, Workers=%d, Times=%d, Channels=%d",
			len(p.DMs), p.DMs[0], p.DMs[len(p.DMs)-1], minHits, p.Method, workers, buf.NumTimes(), buf.NumChannels()))

	start := time.Now()
	dms := append([]float64(nil), p.DMs...)
	times := append([]float64(nil), buf.Time.Values...)
	grid := NewSignificanceGrid(dms, times)
	data := grid.Values.DataFloat64()
	nt := len(times)

	builder := NewTrackBuilder(buf.Freq, buf.Time)
	counters := make([]rowCounters, len(dms))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range dms {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			if err := searchRow(builder, buf, p.Method, minHits, i, dms[i], data[i*nt:(i+1)*nt], &counters[i]); err != nil {
				return err
			}
			log.Debug("dm row searched", "index", i, "dm", dms[i],
				"computed", counters[i].computed, "skipped", counters[i].skipped)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		grid.Close()
		return nil, fmt.Errorf("dedispersion search: %w", err)
	}

	metrics := &SearchMetrics{Cells: int64(len(dms)) * int64(nt)}
	for _, c := range counters {
		metrics.Computed += c.computed
		metrics.Skipped += c.skipped
		metrics.EmptyTracks += c.emptyTracks
		metrics.TrackPairs += c.trackPairs
	}
	metrics.Elapsed = time.Since(start)

	maybeSaveImage(grid.Values, p.SaveIntermediateFilesPath, "01-dm-time-grid.png")
	maybeSaveText(p.SaveIntermediateFilesPath, "01-search-metrics.txt", metrics.String())
	log.Debug("search complete", "cells", metrics.Cells, "computed", metrics.Computed,
		"skipped", metrics.Skipped, "elapsed", metrics.Elapsed)

	return &SearchResult{Grid: grid, Metrics: metrics}, nil
}

// searchRow fills one DM row of the grid. Amplitudes are summed channel by
// channel with ascending time inside a channel for both track methods, so
// the two methods produce identical values.
func searchRow(b *TrackBuilder, buf *VisibilityBuffer, method TrackMethod, minHits, dmIndex int, dm float64, row []float64, rc *rowCounters) error {
	var track DispersionTrack
	var mask DispersionMask
	nc := buf.NumChannels()

	for j, t0 := range b.times {
		var sum float64
		var n int
		switch method {
		case TrackMask:
			b.Mask(dm, t0, &mask)
			for c := 0; c < nc; c++ {
				for t := 0; t < mask.Rows; t++ {
					if mask.Bits[t*nc+c] {
						sum += math.Abs(buf.At(t, c))
						n++
					}
				}
			}
		default:
			b.Build(dm, t0, &track)
			for k, t := range track.TimeIndex {
				sum += math.Abs(buf.At(t, track.ChanIndex[k]))
			}
			n = track.Len()
		}

		rc.trackPairs += int64(n)
		if n == 0 {
			rc.emptyTracks++
		}
		if n < minHits || n == 0 {
			rc.skipped++
			continue
		}
		v := sum / float64(n)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &CellError{DMIndex: dmIndex, TimeIndex: j, DM: dm, T0: t0, Err: ErrNonFiniteCell}
		}
		row[j] = v
		rc.computed++
	}
	return nil
}

func maybeSaveImage(img Mat, savePath, filename string) {
	if savePath == "" || img.Empty() {
		return
	}
	if _, err := os.Stat(savePath); os.IsNotExist(err) {
		return
	}
	imWriteMat(filepath.Join(savePath, filename), img)
}

func maybeSaveText(savePath, filename, text string) {
	if savePath == "" {
		return
	}
	if _, err := os.Stat(savePath); os.IsNotExist(err) {
		return
	}
	os.WriteFile(filepath.Join(savePath, filename), []byte(text), 0644)
}
