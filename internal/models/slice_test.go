package models

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"volreg3d/pkg/volume"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Failed to encode %s: %v", path, err)
	}
}

func graySlice(w, h int, value uint16) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}
	return img
}

// TestLoadStackOrder verifies slices are ordered by the number in their name
func TestLoadStackOrder(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "slice_10.png"), graySlice(4, 3, 1000))
	writePNG(t, filepath.Join(dir, "slice_2.png"), graySlice(4, 3, 200))
	writePNG(t, filepath.Join(dir, "slice_1.png"), graySlice(4, 3, 100))
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatalf("Failed to write notes: %v", err)
	}

	stack, err := LoadStack(dir)
	if err != nil {
		t.Fatalf("LoadStack failed: %v", err)
	}
	if stack.Len() != 3 {
		t.Fatalf("Expected 3 slices, got %d", stack.Len())
	}
	want := []string{"slice_1.png", "slice_2.png", "slice_10.png"}
	for i, sl := range stack.Slices {
		if sl.Filename != want[i] || sl.Index != i {
			t.Errorf("Slice %d: got %s (index %d), expected %s", i, sl.Filename, sl.Index, want[i])
		}
	}
	if d := stack.Dimensions(); d != volume.NewDimensions(4, 3, 3) {
		t.Errorf("Unexpected dimensions %v", d)
	}

	v, err := stack.Volume()
	if err != nil {
		t.Fatalf("Volume failed: %v", err)
	}
	for z, value := range []float64{100, 200, 1000} {
		if got := v.Voxel(2, 1, z); got != value {
			t.Errorf("Expected %f at z=%d, got %f", value, z, got)
		}
	}
}

// TestLoadStackConvertsToGray16 verifies 8-bit slices are widened
func TestLoadStackConvertsToGray16(t *testing.T) {
	dir := t.TempDir()
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.SetGray(1, 1, color.Gray{Y: 0x80})
	writePNG(t, filepath.Join(dir, "0.png"), img)

	stack, err := LoadStack(dir)
	if err != nil {
		t.Fatalf("LoadStack failed: %v", err)
	}
	if got := stack.Slices[0].Image.Gray16At(1, 1).Y; got != 0x8080 {
		t.Errorf("Expected 0x8080, got %#x", got)
	}
}

// TestLoadStackErrors verifies empty directories and mixed sizes are rejected
func TestLoadStackErrors(t *testing.T) {
	if _, err := LoadStack(t.TempDir()); err == nil {
		t.Error("Expected an error for a directory without images")
	}
	if _, err := LoadStack(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Expected an error for a missing directory")
	}

	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "1.png"), graySlice(4, 4, 1))
	writePNG(t, filepath.Join(dir, "2.png"), graySlice(5, 4, 1))
	stack, err := LoadStack(dir)
	if err != nil {
		t.Fatalf("LoadStack failed: %v", err)
	}
	if _, err := stack.Volume(); err == nil {
		t.Error("Expected an error for slices of different sizes")
	}
}

// TestExtractNumber checks numeric parsing of filenames
func TestExtractNumber(t *testing.T) {
	tests := map[string]int{
		"slice_007.png":      7,
		"/data/ref/12.jpg":   12,
		"no-digits.png":      0,
		"scan3_slice04.jpeg": 304,
	}
	for name, want := range tests {
		if got := extractNumber(name); got != want {
			t.Errorf("extractNumber(%q) = %d, expected %d", name, got, want)
		}
	}
}
