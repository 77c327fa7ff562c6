package dedisp

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RenderSignificanceMap draws the significance map of det as a JPEG file,
// with DM increasing upwards and detected peaks circled.
func RenderSignificanceMap(det *Detection, outputPath string) error {
	img, err := renderSignificanceImage(det)
	if err != nil {
		return err
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create plot file: %w", err)
	}
	defer f.Close()

	return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
}

// RenderSignificanceMapBytes is RenderSignificanceMap returning JPEG bytes.
func RenderSignificanceMapBytes(det *Detection) ([]byte, error) {
	img, err := renderSignificanceImage(det)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const (
	plotWidth   = 800
	plotHeight  = 400
	plotLeft    = 64
	plotTop     = 28
	plotRight   = 20
	plotBottom  = 44
	plotSummary = 24
)

func renderSignificanceImage(det *Detection) (*image.RGBA, error) {
	if det == nil || det.Significance == nil || det.Significance.Values.Empty() {
		return nil, fmt.Errorf("no significance map to render")
	}
	sig := det.Significance
	rows, cols := sig.Rows(), sig.Cols()
	sd := sig.Values.DataFloat64()
	raw := det.Trimmed.Values.DataFloat64()

	// colour scale runs from the lowest evaluated significance to the maximum
	loc := maxLoc(sig.Values)
	hiVal := sd[loc.Y*cols+loc.X]
	loVal := hiVal
	for i, v := range sd {
		if raw[i] != 0 && v < loVal {
			loVal = v
		}
	}
	span := hiVal - loVal
	if span <= 0 {
		span = 1
	}

	totalW := plotLeft + plotWidth + plotRight
	totalH := plotTop + plotHeight + plotBottom + plotSummary
	img := image.NewRGBA(image.Rect(0, 0, totalW, totalH))
	for y := 0; y < totalH; y++ {
		for x := 0; x < totalW; x++ {
			img.Set(x, y, color.RGBA{0, 0, 0, 255})
		}
	}

	for py := 0; py < plotHeight; py++ {
		r := rows - 1 - py*rows/plotHeight
		for px := 0; px < plotWidth; px++ {
			c := px * cols / plotWidth
			i := r*cols + c
			var col color.RGBA
			if raw[i] == 0 {
				col = color.RGBA{30, 30, 30, 255}
			} else {
				col = heatColor((sd[i] - loVal) / span)
			}
			img.Set(plotLeft+px, plotTop+py, col)
		}
	}

	face := basicfont.Face7x13
	axisColor := color.RGBA{220, 220, 220, 255}

	// frame
	for x := plotLeft - 1; x <= plotLeft+plotWidth; x++ {
		img.Set(x, plotTop-1, axisColor)
		img.Set(x, plotTop+plotHeight, axisColor)
	}
	for y := plotTop - 1; y <= plotTop+plotHeight; y++ {
		img.Set(plotLeft-1, y, axisColor)
		img.Set(plotLeft+plotWidth, y, axisColor)
	}

	const ticks = 5
	for k := 0; k < ticks; k++ {
		r := k * (rows - 1) / max(ticks-1, 1)
		y := plotTop + plotHeight - 1 - int((float64(r)+0.5)*float64(plotHeight)/float64(rows))
		drawText(img, face, fmt.Sprintf("%g", sig.DMs[r]), 6, y+4, axisColor)
		for x := plotLeft - 5; x < plotLeft; x++ {
			img.Set(x, y, axisColor)
		}

		c := k * (cols - 1) / max(ticks-1, 1)
		x := plotLeft + int((float64(c)+0.5)*float64(plotWidth)/float64(cols))
		drawCenteredText(img, face, fmt.Sprintf("%.3g", sig.Times[c]), x, plotTop+plotHeight+16, axisColor)
		for y := plotTop + plotHeight; y < plotTop+plotHeight+5; y++ {
			img.Set(x, y, axisColor)
		}
	}
	drawCenteredText(img, face, "t0 (s)", plotLeft+plotWidth/2, plotTop+plotHeight+34, axisColor)
	drawText(img, face, "DM", 6, plotTop-10, axisColor)
	drawText(img, face, fmt.Sprintf("Significance %.1f .. %.1f sigma", loVal, hiVal), plotLeft, plotTop-10, axisColor)

	peakColor := color.RGBA{255, 255, 255, 220}
	for _, p := range det.Peaks {
		cx := plotLeft + int((float64(p.TimeIndex)+0.5)*float64(plotWidth)/float64(cols))
		cy := plotTop + plotHeight - 1 - int((float64(p.DMIndex)+0.5)*float64(plotHeight)/float64(rows))
		radius := int(math.Min(math.Max(p.Significance, 3), 40))
		drawCircle(img, cx, cy, radius, peakColor)
	}

	summary := fmt.Sprintf("Peaks: %d  mean=%.4g std=%.4g  computed cells=%d", len(det.Peaks), det.Mean, det.Std, det.ComputedCells)
	if len(det.Peaks) > 0 {
		top := det.Peaks[0]
		summary += fmt.Sprintf("  best: DM=%g t0=%.4gs %.1f sigma", top.DM, top.Time, top.Significance)
	}
	drawText(img, face, summary, 10, totalH-8, axisColor)

	return img, nil
}

// heatColor maps t in [0, 1] onto a black-red-yellow-white ramp.
func heatColor(t float64) color.RGBA {
	t = math.Max(0, math.Min(1, t))
	switch {
	case t < 1.0/3:
		return color.RGBA{uint8(t * 3 * 255), 0, 0, 255}
	case t < 2.0/3:
		return color.RGBA{255, uint8((t - 1.0/3) * 3 * 255), 0, 255}
	default:
		return color.RGBA{255, 255, uint8((t - 2.0/3) * 3 * 255), 255}
	}
}

// drawText draws a string at (x, y) using the given font face.
func drawText(img *image.RGBA, face font.Face, s string, x, y int, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// drawCenteredText draws a string centered at (cx, cy).
func drawCenteredText(img *image.RGBA, face font.Face, s string, cx, cy int, c color.RGBA) {
	advance := font.MeasureString(face, s)
	x := cx - advance.Round()/2
	drawText(img, face, s, x, cy, c)
}

// drawCircle draws a circle outline using midpoint algorithm.
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	x := radius
	y := 0
	err := 0

	for x >= y {
		img.Set(cx+x, cy+y, c)
		img.Set(cx+y, cy+x, c)
		img.Set(cx-y, cy+x, c)
		img.Set(cx-x, cy+y, c)
		img.Set(cx-x, cy-y, c)
		img.Set(cx-y, cy-x, c)
		img.Set(cx+y, cy-x, c)
		img.Set(cx+x, cy-y, c)

		y++
		err += 1 + 2*y
		if 2*(err-x)+1 > 0 {
			x--
			err += 1 - 2*x
		}
	}
}
