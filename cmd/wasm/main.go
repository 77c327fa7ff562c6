//go:build js && wasm

package main

import (
	"context"
	"syscall/js"

	"dedisp/pkg/dedisp"
)

var lastPlot []byte

func main() {
	js.Global().Set("searchFITS", js.FuncOf(searchFITS))
	js.Global().Set("renderSignificanceMap", js.FuncOf(renderSignificanceMap))
	select {} // block forever
}

// searchFITS(fileBytes, options) runs a search over an in-memory dynamic
// spectrum. options may set dmMin, dmMax, dmStep, minIntersection, method
// and sigma.
func searchFITS(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("usage: searchFITS(fileBytes, options)")
	}

	// Extract file bytes
	jsBytes := args[0]
	length := jsBytes.Get("length").Int()
	fileBytes := make([]byte, length)
	js.CopyBytesToGo(fileBytes, jsBytes)

	dmMin, dmMax, dmStep := 35.0, 75.0, 1.0
	peakParams := dedisp.NewPeakParams()
	searchParams := dedisp.NewSearchParams()
	if len(args) >= 2 && args[1].Type() == js.TypeObject {
		opts := args[1]
		number := func(name string, dst *float64) {
			if v := opts.Get(name); v.Type() == js.TypeNumber {
				*dst = v.Float()
			}
		}
		number("dmMin", &dmMin)
		number("dmMax", &dmMax)
		number("dmStep", &dmStep)
		number("sigma", &peakParams.SigmaThreshold)
		if v := opts.Get("minIntersection"); v.Type() == js.TypeNumber {
			searchParams.MinIntersection = v.Int()
		}
		if v := opts.Get("method"); v.Type() == js.TypeString {
			method, err := dedisp.ParseTrackMethod(v.String())
			if err != nil {
				return errorResult(err.Error())
			}
			searchParams.Method = method
		}
	}
	dms, err := dedisp.NewDMGrid(dmMin, dmMax, dmStep)
	if err != nil {
		return errorResult(err.Error())
	}
	searchParams.DMs = dms

	// Parse FITS
	ds, err := dedisp.ReadDynamicSpectrumFitsFromBytes(fileBytes)
	if err != nil {
		return errorResult("FITS parse error: " + err.Error())
	}
	buf := ds.Buffer

	res, err := dedisp.Search(context.Background(), buf, searchParams)
	if err != nil {
		return errorResult("Search error: " + err.Error())
	}
	defer res.Grid.Close()

	det, err := dedisp.DetectPeaks(res.Grid, peakParams)
	if err != nil {
		return errorResult("Peak detection error: " + err.Error())
	}
	defer det.Close()

	lastPlot, err = dedisp.RenderSignificanceMapBytes(det)
	if err != nil {
		lastPlot = nil
	}

	// Build JS result
	jsResult := map[string]interface{}{
		"object":        ds.Metadata.ObjectName(),
		"telescope":     ds.Metadata.TelescopeName(),
		"samples":       buf.NumTimes(),
		"channels":      buf.NumChannels(),
		"dmTrials":      len(dms),
		"computedCells": int(res.Metrics.Computed),
		"skippedCells":  int(res.Metrics.Skipped),
		"elapsedMs":     float64(res.Metrics.Elapsed.Microseconds()) / 1000,
		"trimColumn":    det.TrimColumn,
		"mean":          det.Mean,
		"std":           det.Std,
	}

	jsPeaks := make([]interface{}, len(det.Peaks))
	for i, p := range det.Peaks {
		jsPeaks[i] = map[string]interface{}{
			"dmIndex":      p.DMIndex,
			"timeIndex":    p.TimeIndex,
			"dm":           p.DM,
			"time":         p.Time,
			"significance": p.Significance,
			"amplitude":    p.Amplitude,
		}
	}
	jsResult["peaks"] = jsPeaks

	return js.ValueOf(jsResult)
}

func renderSignificanceMap(this js.Value, args []js.Value) interface{} {
	if lastPlot == nil {
		return js.Null()
	}

	// Create Uint8Array and copy bytes
	uint8Array := js.Global().Get("Uint8Array").New(len(lastPlot))
	js.CopyBytesToJS(uint8Array, lastPlot)
	return uint8Array
}

func errorResult(msg string) interface{} {
	return js.ValueOf(map[string]interface{}{
		"error": msg,
	})
}
