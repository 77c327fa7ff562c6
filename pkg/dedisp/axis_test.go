package dedisp

import (
	"errors"
	"math"
	"testing"
)

func TestNewFrequencyAxis(t *testing.T) {
	axis, err := NewFrequencyAxis(0.718, 0.001625, 64)
	if err != nil {
		t.Fatalf("NewFrequencyAxis: %v", err)
	}
	if axis.Len() != 64 {
		t.Fatalf("expected 64 channels, got %d", axis.Len())
	}
	if axis.Values[0] != 0.718 {
		t.Fatalf("first channel at %g, want 0.718", axis.Values[0])
	}
	if axis.Descending() {
		t.Fatalf("positive step reported as descending")
	}
	for i := 1; i < axis.Len(); i++ {
		if axis.Values[i] <= axis.Values[i-1] {
			t.Fatalf("channel %d not increasing: %g <= %g", i, axis.Values[i], axis.Values[i-1])
		}
	}
}

func TestNewFrequencyAxisFromChannels(t *testing.T) {
	start, step := 0.7, 0.01
	chans := []int{6, 7, 10}
	axis, err := NewFrequencyAxisFromChannels(start, step, chans)
	if err != nil {
		t.Fatalf("NewFrequencyAxisFromChannels: %v", err)
	}
	for i, ch := range chans {
		want := start + float64(ch)*step
		if math.Abs(axis.Values[i]-want) > 1e-12 {
			t.Errorf("channel %d: got %g, want %g", i, axis.Values[i], want)
		}
	}
	if axis.Width() != 0.01 {
		t.Errorf("width: got %g, want 0.01", axis.Width())
	}
}

func TestFrequencyAxisDescending(t *testing.T) {
	axis, err := NewFrequencyAxis(1.4, -0.01, 10)
	if err != nil {
		t.Fatalf("NewFrequencyAxis: %v", err)
	}
	if !axis.Descending() {
		t.Fatalf("negative step not reported as descending")
	}
	if axis.Width() != 0.01 {
		t.Fatalf("width: got %g, want 0.01", axis.Width())
	}
}

func TestFrequencyAxisRejectsInvalid(t *testing.T) {
	cases := []struct {
		name  string
		start float64
		step  float64
		chans []int
	}{
		{"no channels", 0.7, 0.01, nil},
		{"zero step", 0.7, 0, []int{0, 1}},
		{"nan step", 0.7, math.NaN(), []int{0, 1}},
		{"infinite start", math.Inf(1), 0.01, []int{0, 1}},
		{"non-positive frequency", 0.01, -0.01, []int{0, 1, 2}},
		{"unsorted channels", 0.7, 0.01, []int{3, 2}},
		{"duplicate channels", 0.7, 0.01, []int{2, 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewFrequencyAxisFromChannels(tc.start, tc.step, tc.chans)
			if !errors.Is(err, ErrInvalidAxis) {
				t.Fatalf("expected ErrInvalidAxis, got %v", err)
			}
		})
	}
}

func TestNewTimeAxis(t *testing.T) {
	if _, err := NewTimeAxis([]float64{0, 0.5, 0.5, 2}); err != nil {
		t.Fatalf("non-decreasing axis rejected: %v", err)
	}
	bad := [][]float64{
		nil,
		{1, 2, 3},
		{0, 2, 1},
		{0, math.NaN()},
		{0, math.Inf(1)},
	}
	for _, values := range bad {
		if _, err := NewTimeAxis(values); !errors.Is(err, ErrInvalidAxis) {
			t.Errorf("NewTimeAxis(%v): expected ErrInvalidAxis, got %v", values, err)
		}
	}
}

func TestNewRelativeTimeAxis(t *testing.T) {
	axis, err := NewRelativeTimeAxis([]float64{2455000.5, 2455000.5 + 1.0/86400, 2455000.5 + 3.0/86400}, 86400)
	if err != nil {
		t.Fatalf("NewRelativeTimeAxis: %v", err)
	}
	want := []float64{0, 1, 3}
	for i, v := range want {
		if math.Abs(axis.Values[i]-v) > 1e-4 {
			t.Errorf("sample %d: got %g s, want %g s", i, axis.Values[i], v)
		}
	}
}

func TestNewUniformTimeAxis(t *testing.T) {
	axis, err := NewUniformTimeAxis(5, 0.25)
	if err != nil {
		t.Fatalf("NewUniformTimeAxis: %v", err)
	}
	if axis.Duration() != 1.0 {
		t.Fatalf("duration: got %g, want 1", axis.Duration())
	}
	if _, err := NewUniformTimeAxis(5, 0); !errors.Is(err, ErrInvalidAxis) {
		t.Fatalf("zero interval: expected ErrInvalidAxis, got %v", err)
	}
}

func TestNewVisibilityBuffer(t *testing.T) {
	freq, _ := NewFrequencyAxis(0.7, 0.03, 3)
	time, _ := NewUniformTimeAxis(2, 1)

	amp := []float64{1, 2, 3, 4, 5, 6}
	buf, err := NewVisibilityBuffer(amp, freq, time)
	if err != nil {
		t.Fatalf("NewVisibilityBuffer: %v", err)
	}
	amp[0] = 100
	if buf.At(0, 0) != 1 {
		t.Fatalf("buffer shares caller storage")
	}
	if buf.At(1, 2) != 6 {
		t.Fatalf("At(1, 2): got %g, want 6", buf.At(1, 2))
	}
	if row := buf.Row(1); len(row) != 3 || row[0] != 4 {
		t.Fatalf("Row(1): got %v", row)
	}

	if _, err := NewVisibilityBuffer(amp[:5], freq, time); !errors.Is(err, ErrInvalidBuffer) {
		t.Fatalf("length mismatch: expected ErrInvalidBuffer, got %v", err)
	}
	amp[3] = math.NaN()
	if _, err := NewVisibilityBuffer(amp, freq, time); !errors.Is(err, ErrInvalidBuffer) {
		t.Fatalf("NaN amplitude: expected ErrInvalidBuffer, got %v", err)
	}
}

func TestVisibilityBufferFromComplex(t *testing.T) {
	freq, _ := NewFrequencyAxis(0.7, 0.03, 2)
	time, _ := NewUniformTimeAxis(1, 1)
	buf, err := NewVisibilityBufferFromComplex([]complex64{3 + 4i, -1}, freq, time)
	if err != nil {
		t.Fatalf("NewVisibilityBufferFromComplex: %v", err)
	}
	if buf.At(0, 0) != 5 || buf.At(0, 1) != 1 {
		t.Fatalf("amplitudes: got %g, %g, want 5, 1", buf.At(0, 0), buf.At(0, 1))
	}
}

func TestVisibilityBufferWindows(t *testing.T) {
	freq, _ := NewFrequencyAxis(0.7, 0.03, 2)
	time, _ := NewUniformTimeAxis(10, 0.5)
	amp := make([]float64, 20)
	for i := range amp {
		amp[i] = float64(i)
	}
	buf, err := NewVisibilityBuffer(amp, freq, time)
	if err != nil {
		t.Fatalf("NewVisibilityBuffer: %v", err)
	}

	w, err := buf.Window(3, 4)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if w.NumTimes() != 4 || w.Time.Values[0] != 0 || w.Time.Values[3] != 1.5 {
		t.Fatalf("window axis: %v", w.Time.Values)
	}
	if w.At(0, 1) != 7 {
		t.Fatalf("window At(0, 1): got %g, want 7", w.At(0, 1))
	}

	ws, err := buf.Windows(1, 4, 3)
	if err != nil {
		t.Fatalf("Windows: %v", err)
	}
	// starts 1, 4; the window at 7 would run past the end
	if len(ws) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(ws))
	}
	if ws[1].At(0, 0) != 8 {
		t.Fatalf("second window first sample: got %g, want 8", ws[1].At(0, 0))
	}

	if _, err := buf.Window(10, 1); !errors.Is(err, ErrInvalidBuffer) {
		t.Fatalf("out of range window: expected ErrInvalidBuffer, got %v", err)
	}
}
