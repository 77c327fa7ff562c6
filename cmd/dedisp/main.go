package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dedisp/pkg/catalog"
	"dedisp/pkg/config"
	"dedisp/pkg/dedisp"
	"dedisp/pkg/logger"
	"dedisp/pkg/metrics"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, err := parseArgs(args)
	if err != nil {
		return err
	}
	if opts.help {
		return nil
	}
	cfg := opts.cfg
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.WithComponent("cli")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	searchParams, err := cfg.SearchParams()
	if err != nil {
		return err
	}
	searchParams.Logger = logger.WithComponent("search")
	peakParams := cfg.PeakParams()
	peakParams.Logger = logger.WithComponent("peaks")

	src, err := loadInput(opts)
	if err != nil {
		return err
	}
	buf := src.buffer
	fmt.Printf("Loaded %s: %d samples x %d channels, %.4g s, %.4g..%.4g GHz\n",
		src.name, buf.NumTimes(), buf.NumChannels(), buf.Time.Duration(),
		buf.Freq.Values[0], buf.Freq.Values[buf.NumChannels()-1])

	windows, err := splitWindows(buf, cfg.Input)
	if err != nil {
		return err
	}

	var cat *catalog.Catalog
	if cfg.Output.CatalogPath != "" {
		if cat, err = catalog.Open(cfg.Output.CatalogPath); err != nil {
			return err
		}
		defer cat.Close()
	}
	m := metrics.New()

	startTime := time.Now()
	var reports []windowReport
	for k, w := range windows {
		if err := ctx.Err(); err != nil {
			return err
		}
		rep, err := searchWindow(ctx, w, k, len(windows), searchParams, peakParams, cfg, m, log)
		if err != nil {
			return fmt.Errorf("window %d: %w", k, err)
		}
		if cat != nil {
			entry := catalog.Run{
				Source:    src.name,
				Object:    src.object,
				Window:    k,
				StartTime: w.start,
				DMMin:     searchParams.DMs[0],
				DMMax:     searchParams.DMs[len(searchParams.DMs)-1],
				DMTrials:  len(searchParams.DMs),
				Checksum:  rep.checksum,
				Computed:  rep.metrics.Computed,
				Elapsed:   rep.metrics.Elapsed,
			}
			if rep.detection != nil {
				entry.Mean, entry.Std = rep.detection.Mean, rep.detection.Std
			}
			if rep.runID, err = cat.RecordRun(ctx, entry, rep.peaks); err != nil {
				return err
			}
		}
		reports = append(reports, rep)
	}
	elapsed := time.Since(startTime)

	if cfg.Output.PeaksPath != "" {
		if err := writePeaks(cfg.Output.PeaksPath, reports); err != nil {
			return err
		}
	}

	printReport(os.Stdout, reports, searchParams, elapsed)

	if cfg.Metrics.PushURL != "" {
		grouping := map[string]string{"source": src.name}
		if err := m.Push(ctx, cfg.Metrics.PushURL, cfg.Metrics.Job, grouping); err != nil {
			// a missing gateway must not fail a finished search
			log.Warn("metrics push failed", "url", cfg.Metrics.PushURL, "error", err)
		}
	}
	return nil
}

// windowReport is what one searched window contributes to the outputs.
type windowReport struct {
	index     int
	start     float64
	metrics   dedisp.SearchMetrics
	checksum  uint64
	detection *dedisp.Detection
	peaks     []dedisp.Peak
	gridPath  string
	gridSize  int64
	plotPath  string
	runID     string
	err       error
}

func searchWindow(ctx context.Context, w window, k, n int, sp *dedisp.SearchParams, pp *dedisp.PeakParams,
	cfg *config.Config, m *metrics.Metrics, log *slog.Logger) (windowReport, error) {
	rep := windowReport{index: k, start: w.start}

	res, err := dedisp.Search(ctx, w.buffer, sp)
	if err != nil {
		m.ObserveFailure("search")
		return rep, err
	}
	defer res.Grid.Close()
	rep.metrics = *res.Metrics
	rep.checksum = res.Grid.Checksum()

	if path := cfg.Output.GridPath; path != "" {
		rep.gridPath = numberedPath(path, k, n)
		if err := dedisp.SaveGrid(rep.gridPath, res.Grid, cfg.Output.CompressGrid); err != nil {
			return rep, err
		}
		if st, err := os.Stat(rep.gridPath); err == nil {
			rep.gridSize = st.Size()
		}
	}

	det, err := dedisp.DetectPeaks(res.Grid, pp)
	if err != nil {
		var dg *dedisp.DegenerateGridError
		if !errors.As(err, &dg) {
			return rep, err
		}
		// a flat window has nothing to report; keep going with the rest
		log.Warn("no usable statistics", "window", k, "stage", dg.Stage, "cells", dg.Cells)
		m.ObserveFailure("peaks")
		m.Observe(res, nil)
		rep.err = err
		return rep, nil
	}
	defer det.Close()
	m.Observe(res, det)

	rep.detection = &dedisp.Detection{
		TrimColumn:    det.TrimColumn,
		InitialMean:   det.InitialMean,
		InitialStd:    det.InitialStd,
		Mean:          det.Mean,
		Std:           det.Std,
		ClippedCells:  det.ClippedCells,
		ComputedCells: det.ComputedCells,
	}
	rep.peaks = det.Peaks

	if path := cfg.Output.PlotPath; path != "" {
		rep.plotPath = numberedPath(path, k, n)
		if err := dedisp.RenderSignificanceMap(det, rep.plotPath); err != nil {
			return rep, fmt.Errorf("rendering significance map: %w", err)
		}
	}

	log.Info("window searched", "window", k, "start", w.start, "computed", res.Metrics.Computed,
		"peaks", len(det.Peaks), "elapsed", res.Metrics.Elapsed)
	return rep, nil
}
