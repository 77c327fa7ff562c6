//go:build !purego && !js

package main

import (
	"fmt"

	"gocv.io/x/gocv"
)

// loadWaterfallImage reads a grayscale waterfall with one row per time
// sample and one column per channel, scaled to [0, 1].
func loadWaterfallImage(path string) ([]float64, int, int, error) {
	src := gocv.IMRead(path, gocv.IMReadUnchanged)
	if src.Empty() {
		return nil, 0, 0, fmt.Errorf("could not load image: %s", path)
	}
	defer src.Close()

	if src.Channels() > 1 {
		gray := gocv.NewMat()
		defer gray.Close()
		code := gocv.ColorBGRToGray
		if src.Channels() == 4 {
			code = gocv.ColorBGRAToGray
		}
		gocv.CvtColor(src, &gray, code)
		src.Close()
		src = gray.Clone()
	}

	maxVal := 65535.0
	if src.Type() == gocv.MatTypeCV8UC1 {
		maxVal = 255
	}

	floatMat := gocv.NewMat()
	defer floatMat.Close()
	src.ConvertTo(&floatMat, gocv.MatTypeCV64F)

	w, h := floatMat.Cols(), floatMat.Rows()
	data, err := floatMat.DataPtrFloat64()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("reading image data: %w", err)
	}
	amp := make([]float64, w*h)
	for i := range amp {
		amp[i] = data[i] / maxVal
	}
	return amp, w, h, nil
}
