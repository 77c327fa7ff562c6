package dedisp

import (
	"bytes"
	"context"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

func scenarioDetection(t *testing.T) *Detection {
	t.Helper()
	res, err := Search(context.Background(), scenarioBuffer(t), scenarioParams(t))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	t.Cleanup(res.Grid.Close)
	det, err := DetectPeaks(res.Grid, NewPeakParams())
	if err != nil {
		t.Fatalf("DetectPeaks: %v", err)
	}
	t.Cleanup(det.Close)
	return det
}

func TestRenderSignificanceMapBytes(t *testing.T) {
	det := scenarioDetection(t)
	data, err := RenderSignificanceMapBytes(det)
	if err != nil {
		t.Fatalf("RenderSignificanceMapBytes: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decoding rendered map: %v", err)
	}
	b := img.Bounds()
	wantW := plotLeft + plotWidth + plotRight
	wantH := plotTop + plotHeight + plotBottom + plotSummary
	if b.Dx() != wantW || b.Dy() != wantH {
		t.Fatalf("image is %dx%d, want %dx%d", b.Dx(), b.Dy(), wantW, wantH)
	}
}

func TestRenderSignificanceMapFile(t *testing.T) {
	det := scenarioDetection(t)
	path := filepath.Join(t.TempDir(), "sigmap.jpg")
	if err := RenderSignificanceMap(det, path); err != nil {
		t.Fatalf("RenderSignificanceMap: %v", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Size() == 0 {
		t.Fatalf("empty plot file")
	}
}

func TestRenderRejectsEmptyDetection(t *testing.T) {
	if _, err := RenderSignificanceMapBytes(nil); err == nil {
		t.Fatalf("expected an error for a nil detection")
	}
	if _, err := RenderSignificanceMapBytes(&Detection{}); err == nil {
		t.Fatalf("expected an error for a detection without a map")
	}
}
