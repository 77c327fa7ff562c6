package dedisp

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// GridStatistics summarizes the evaluated cells of a grid.
type GridStatistics struct {
	Mean  float64
	Std   float64
	Cells int
}

// computedCellMask marks the cells that hold an evaluated (non-zero) value.
func computedCellMask(img Mat, dst *Mat) int {
	inRangeScalar(img, math.SmallestNonzeroFloat64, math.MaxFloat64, dst)
	return countNonZero(*dst)
}

// computedStatistics returns the population mean and standard deviation of
// the evaluated cells. Negative values never come out of the engine, so
// every evaluated cell is strictly positive.
func computedStatistics(img Mat) GridStatistics {
	n := img.Rows() * img.Cols()
	if n == 0 {
		return GridStatistics{}
	}
	mask := NewMat()
	defer mask.Close()
	cells := computedCellMask(img, &mask)
	if cells == n {
		mean, std := matMeanStdDev(img)
		return GridStatistics{Mean: mean, Std: std, Cells: cells}
	}
	mean, std := meanStdDevWithMask(img, mask)
	return GridStatistics{Mean: mean, Std: std, Cells: cells}
}

// sigmaClip repeatedly recomputes the statistics over the evaluated cells
// lying strictly within kappa standard deviations of the current mean.
func sigmaClip(img Mat, initial GridStatistics, kappa float64, iterations int) GridStatistics {
	cur := initial
	mask := NewMat()
	defer mask.Close()
	for i := 0; i < iterations; i++ {
		lower := math.Nextafter(cur.Mean-kappa*cur.Std, math.Inf(1))
		if lower < math.SmallestNonzeroFloat64 {
			lower = math.SmallestNonzeroFloat64
		}
		upper := math.Nextafter(cur.Mean+kappa*cur.Std, math.Inf(-1))
		inRangeScalar(img, lower, upper, &mask)
		cells := countNonZero(mask)
		if cells == 0 {
			return GridStatistics{Cells: 0}
		}
		mean, std := meanStdDevWithMask(img, mask)
		next := GridStatistics{Mean: mean, Std: std, Cells: cells}
		if next == cur {
			break
		}
		cur = next
	}
	return cur
}

// meanStdDevWithMask computes the population mean and stddev of cells where
// mask is non-zero. The mask doubles as the weight vector.
func meanStdDevWithMask(img Mat, mask Mat) (float64, float64) {
	imgData := img.DataFloat64()
	maskData := mask.DataFloat64()
	count, last := 0, 0
	for i, w := range maskData {
		if w != 0 {
			count++
			last = i
		}
	}
	switch count {
	case 0:
		return 0, 0
	case 1:
		// the weighted variance divides by sum(w)-1
		return imgData[last], 0
	}
	return stat.PopMeanStdDev(imgData, maskData)
}

// normalize writes (v-mean)/std for evaluated cells into dst and leaves the
// unevaluated cells at zero.
func normalize(src Mat, mean, std float64, dst *Mat) {
	CopyMatTo(src, dst)
	data := dst.DataFloat64()
	for i, v := range data {
		if v != 0 {
			data[i] = (v - mean) / std
		}
	}
}
