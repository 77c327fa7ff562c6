//go:build purego || js

package dedisp

import (
	"image"

	"gonum.org/v1/gonum/stat"
)

// Mat is a row-major float64 matrix backed by a Go slice. A Region shares
// its parent's storage and keeps the parent's stride.
type Mat struct {
	data   []float64
	rows   int
	cols   int
	stride int
	off    int
	owned  bool
}

func NewMat() Mat { return Mat{} }

func NewMatWithSize(rows, cols int) Mat {
	return Mat{data: make([]float64, rows*cols), rows: rows, cols: cols, stride: cols, owned: true}
}

// NewMatFromFloat64 copies a row-major slice into a new rows×cols Mat.
func NewMatFromFloat64(rows, cols int, data []float64) Mat {
	m := NewMatWithSize(rows, cols)
	copy(m.data, data[:rows*cols])
	return m
}

func (m Mat) Rows() int   { return m.rows }
func (m Mat) Cols() int   { return m.cols }
func (m Mat) Empty() bool { return m.data == nil || m.rows == 0 || m.cols == 0 }

// row returns row r of m, including for regions.
func (m Mat) row(r int) []float64 {
	start := m.off + r*m.stride
	return m.data[start : start+m.cols]
}

func (m Mat) Clone() Mat {
	out := NewMatWithSize(m.rows, m.cols)
	for r := range m.rows {
		copy(out.row(r), m.row(r))
	}
	return out
}

func (m *Mat) Close() {
	if m.owned {
		m.data = nil
	}
	m.rows, m.cols = 0, 0
}

// DataFloat64 returns the cells of a contiguous Mat. Regions must be cloned
// first.
func (m Mat) DataFloat64() []float64 {
	if m.data == nil {
		return nil
	}
	return m.data[m.off : m.off+m.rows*m.cols]
}

func (m Mat) Region(r image.Rectangle) Mat {
	return Mat{
		data:   m.data,
		rows:   r.Dy(),
		cols:   r.Dx(),
		stride: m.stride,
		off:    m.off + r.Min.Y*m.stride + r.Min.X,
	}
}

func (m *Mat) SetToZero() {
	for r := range m.rows {
		clear(m.row(r))
	}
}

func CopyMatTo(src Mat, dst *Mat) {
	if dst.rows != src.rows || dst.cols != src.cols || dst.data == nil {
		*dst = NewMatWithSize(src.rows, src.cols)
	}
	for r := range src.rows {
		copy(dst.row(r), src.row(r))
	}
}

func countNonZero(src Mat) int {
	n := 0
	for _, v := range src.DataFloat64() {
		if v != 0 {
			n++
		}
	}
	return n
}

// inRangeScalar sets dst to 1 where lower <= src <= upper and 0 elsewhere.
func inRangeScalar(src Mat, lower, upper float64, dst *Mat) {
	if dst.rows != src.rows || dst.cols != src.cols || dst.data == nil {
		*dst = NewMatWithSize(src.rows, src.cols)
	}
	out := dst.DataFloat64()
	for i, v := range src.DataFloat64() {
		out[i] = 0
		if v >= lower && v <= upper {
			out[i] = 1
		}
	}
}

func matMeanStdDev(src Mat) (float64, float64) {
	data := src.DataFloat64()
	switch len(data) {
	case 0:
		return 0, 0
	case 1:
		return data[0], 0
	}
	return stat.PopMeanStdDev(data, nil)
}

func maxLoc(src Mat) image.Point {
	data := src.DataFloat64()
	if len(data) == 0 || src.cols == 0 {
		return image.Point{}
	}
	best := 0
	for i, v := range data {
		if v > data[best] {
			best = i
		}
	}
	return image.Pt(best%src.cols, best/src.cols)
}

// imWriteMat is a no-op without OpenCV.
func imWriteMat(string, Mat) {}
