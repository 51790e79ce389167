package window

import (
	"math"
	"sync"
	"testing"

	"volreg3d/pkg/volume"
)

func filledVolume(dims volume.Dimensions, value float64) *volume.Uint16 {
	v := volume.NewUint16(dims)
	for z := 0; z < dims.DimZ; z++ {
		for y := 0; y < dims.DimY; y++ {
			for x := 0; x < dims.DimX; x++ {
				v.SetVoxel(x, y, z, value)
			}
		}
	}
	return v
}

// TestApodizeShape verifies output dimensions and tapering toward the edges
func TestApodizeShape(t *testing.T) {
	dims := volume.NewDimensions(9, 9, 9)
	v := filledVolume(dims, 1000)
	w := New(dims, Hann)

	out := w.Apodize(v)
	if out.Dimensions() != dims {
		t.Fatalf("Expected dimensions %v, got %v", dims, out.Dimensions())
	}

	if got := out.Voxel(0, 4, 4); got != 0 {
		t.Errorf("Hann window should vanish at the edge, got %v", got)
	}
	center := out.Voxel(4, 4, 4)
	if math.Abs(center-1000) > 1e-3 {
		t.Errorf("Hann window should keep the center intact, got %v", center)
	}
	if mid := out.Voxel(2, 4, 4); mid <= 0 || mid >= center {
		t.Errorf("Expected a partial weight between edge and center, got %v", mid)
	}
}

// TestApodizeDeterministic verifies apodize, duplicate, apodize yields identical output
func TestApodizeDeterministic(t *testing.T) {
	dims := volume.NewDimensions(6, 5, 4)
	v := volume.NewUint16(dims)
	for z := 0; z < dims.DimZ; z++ {
		for y := 0; y < dims.DimY; y++ {
			for x := 0; x < dims.DimX; x++ {
				v.SetVoxel(x, y, z, float64(x*31+y*17+z*7))
			}
		}
	}

	for _, typ := range []Type{Rectangular, Hann, Hamming, Blackman, BlackmanHarris, Nuttall, Tukey, Gaussian} {
		w := New(dims, typ)
		first := w.Apodize(v)
		second := w.Apodize(v.Duplicate())
		for z := 0; z < dims.DimZ; z++ {
			a, b := first.Slice(z), second.Slice(z)
			for i := range a {
				if a[i] != b[i] {
					t.Fatalf("%v: apodization differs at slice %d index %d: %v vs %v", typ, z, i, a[i], b[i])
				}
			}
		}
	}
}

// TestApodizeSubVolumeOutOfBounds verifies blocks overflowing the volume read zero outside
func TestApodizeSubVolumeOutOfBounds(t *testing.T) {
	v := filledVolume(volume.NewDimensions(8, 8, 8), 100)
	block := volume.NewDimensions(4, 4, 4)
	w := New(block, Rectangular)

	out := w.ApodizeSubVolume(volume.NewPoint3D(6, 6, 6), v)
	if out.Dimensions() != block {
		t.Fatalf("Expected block dimensions %v, got %v", block, out.Dimensions())
	}
	for z := 0; z < 4; z++ {
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				want := 0.0
				if x < 2 && y < 2 && z < 2 {
					want = 100
				}
				if got := out.Voxel(x, y, z); got != want {
					t.Errorf("Voxel (%d,%d,%d): got %v, want %v", x, y, z, got, want)
				}
			}
		}
	}

	neg := w.ApodizeSubVolume(volume.NewPoint3D(-2, 0, 0), v)
	if neg.Voxel(0, 0, 0) != 0 || neg.Voxel(2, 0, 0) != 100 {
		t.Error("Expected negative origins to read zero outside the volume")
	}
}

// TestConcurrentApodize verifies a shared window can serve several goroutines
func TestConcurrentApodize(t *testing.T) {
	v := filledVolume(volume.NewDimensions(16, 16, 16), 500)
	w := New(volume.NewDimensions(8, 8, 8), Hamming)
	want := w.ApodizeSubVolume(volume.NewPoint3D(4, 4, 4), v)

	var wg sync.WaitGroup
	errs := make(chan string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := w.ApodizeSubVolume(volume.NewPoint3D(4, 4, 4), v)
			for z := 0; z < 8; z++ {
				a, b := got.Slice(z), want.Slice(z)
				for j := range a {
					if a[j] != b[j] {
						errs <- "concurrent apodization produced a different block"
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Error(msg)
	}
}

// TestParseType verifies name lookup and text round trip
func TestParseType(t *testing.T) {
	for typ, name := range typeNames {
		got, err := ParseType(name)
		if err != nil || got != typ {
			t.Errorf("ParseType(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseType("triangle-ish"); err == nil {
		t.Error("Expected an error for an unknown window name")
	}

	var typ Type
	if err := typ.UnmarshalText([]byte(" Hann ")); err != nil || typ != Hann {
		t.Errorf("UnmarshalText: got %v, %v", typ, err)
	}
}

// TestSingleVoxelAxis verifies a 1-voxel axis keeps full weight
func TestSingleVoxelAxis(t *testing.T) {
	w := New(volume.NewDimensions(5, 5, 1), Hann)
	if got := w.Weight(2, 2, 0); math.Abs(got-1) > 1e-12 {
		t.Errorf("Expected weight 1 at the center of a flat window, got %v", got)
	}
}
