//go:build !purego && !js

package dedisp

import (
	"image"

	"gocv.io/x/gocv"
)

// Mat wraps a single-channel CV_64F gocv.Mat for the native OpenCV backend.
type Mat struct {
	m gocv.Mat
}

func NewMat() Mat                            { return Mat{m: gocv.NewMat()} }
func NewMatWithSize(rows, cols int) Mat      { return Mat{m: gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV64F)} }
func (mat Mat) Rows() int                    { return mat.m.Rows() }
func (mat Mat) Cols() int                    { return mat.m.Cols() }
func (mat Mat) Empty() bool                  { return mat.m.Empty() }
func (mat Mat) Clone() Mat                   { return Mat{m: mat.m.Clone()} }
func (mat *Mat) Close()                      { mat.m.Close() }
func (mat Mat) Region(r image.Rectangle) Mat { return Mat{m: mat.m.Region(r)} }

// NewMatFromFloat64 copies a row-major slice into a new rows×cols Mat.
func NewMatFromFloat64(rows, cols int, data []float64) Mat {
	mat := NewMatWithSize(rows, cols)
	copy(mat.DataFloat64(), data[:rows*cols])
	return mat
}

// DataFloat64 returns the backing slice. Only valid for continuous mats,
// so clone a Region before reading it.
func (mat Mat) DataFloat64() []float64 {
	if mat.m.Empty() {
		return nil
	}
	data, _ := mat.m.DataPtrFloat64()
	return data
}

func (mat *Mat) SetToZero() {
	mat.m.SetTo(gocv.NewScalar(0, 0, 0, 0))
}

func CopyMatTo(src Mat, dst *Mat) {
	src.m.CopyTo(&dst.m)
}

// --- CV operations ---

func countNonZero(src Mat) int {
	return gocv.CountNonZero(src.m)
}

// inRangeScalar sets dst to 1 where lower <= src <= upper and 0 elsewhere.
func inRangeScalar(src Mat, lower, upper float64, dst *Mat) {
	lo := gocv.NewMatFromScalar(gocv.NewScalar(lower, 0, 0, 0), gocv.MatTypeCV64F)
	defer lo.Close()
	hi := gocv.NewMatFromScalar(gocv.NewScalar(upper, 0, 0, 0), gocv.MatTypeCV64F)
	defer hi.Close()
	mask8 := gocv.NewMat()
	defer mask8.Close()
	gocv.InRange(src.m, lo, hi, &mask8)
	// InRange yields 0/255 CV_8U; rescale to 0/1 CV_64F so DataFloat64 works
	mask8.ConvertToWithParams(&dst.m, gocv.MatTypeCV64F, 1.0/255, 0)
}

func matMeanStdDev(src Mat) (float64, float64) {
	meanMat := gocv.NewMat()
	defer meanMat.Close()
	stdMat := gocv.NewMat()
	defer stdMat.Close()
	gocv.MeanStdDev(src.m, &meanMat, &stdMat)
	return meanMat.GetDoubleAt(0, 0), stdMat.GetDoubleAt(0, 0)
}

// maxLoc returns the position of the largest element.
func maxLoc(src Mat) image.Point {
	_, _, _, loc := gocv.MinMaxLoc(src.m)
	return loc
}

// imWriteMat stretches m to 8 bits and writes it in the format implied by
// the path's extension.
func imWriteMat(path string, m Mat) {
	norm := gocv.NewMat()
	defer norm.Close()
	gocv.Normalize(m.m, &norm, 0, 255, gocv.NormMinMax)
	u8 := gocv.NewMat()
	defer u8.Close()
	norm.ConvertTo(&u8, gocv.MatTypeCV8U)
	gocv.Flip(u8, &u8, 0)
	gocv.IMWrite(path, u8)
}
