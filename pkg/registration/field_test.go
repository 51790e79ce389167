package registration

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"volreg3d/pkg/correlation"
	"volreg3d/pkg/volume"
)

// TestFieldTiling verifies block count and that block extents tile the volume exactly
func TestFieldTiling(t *testing.T) {
	tests := []struct {
		volume, block volume.Dimensions
	}{
		{volume.NewDimensions(32, 32, 32), volume.NewDimensions(16, 16, 16)},
		{volume.NewDimensions(24, 12, 8), volume.NewDimensions(8, 4, 2)},
		{volume.NewDimensions(10, 10, 10), volume.NewDimensions(10, 5, 1)},
		{volume.NewDimensions(7, 3, 5), volume.NewDimensions(1, 1, 1)},
	}

	for _, tt := range tests {
		f, err := NewDisplacementField(tt.volume, tt.block)
		if err != nil {
			t.Fatalf("%v / %v: unexpected error: %v", tt.volume, tt.block, err)
		}

		want := (tt.volume.DimX / tt.block.DimX) * (tt.volume.DimY / tt.block.DimY) * (tt.volume.DimZ / tt.block.DimZ)
		if f.Size() != want {
			t.Errorf("%v / %v: expected %d blocks, got %d", tt.volume, tt.block, want, f.Size())
		}

		covered := make([]int, tt.volume.Volume())
		for i := 0; i < f.Size(); i++ {
			p, err := f.Position(i)
			if err != nil {
				t.Fatalf("Position(%d): %v", i, err)
			}
			for z := p.Z; z < p.Z+tt.block.DimZ; z++ {
				for y := p.Y; y < p.Y+tt.block.DimY; y++ {
					for x := p.X; x < p.X+tt.block.DimX; x++ {
						if !tt.volume.Contains(volume.NewPoint3D(x, y, z)) {
							t.Fatalf("Block %d at %v leaves the volume", i, p)
						}
						covered[x+y*tt.volume.DimX+z*tt.volume.SliceSize()]++
					}
				}
			}
		}
		for i, c := range covered {
			if c != 1 {
				t.Fatalf("%v / %v: voxel %d covered %d times", tt.volume, tt.block, i, c)
			}
		}
	}
}

// TestFieldPartialBlocks verifies non-dividing block sizes add an overflowing block
func TestFieldPartialBlocks(t *testing.T) {
	f, err := NewDisplacementField(volume.NewDimensions(10, 4, 4), volume.NewDimensions(4, 4, 4))
	if err != nil {
		t.Fatal(err)
	}
	if f.Size() != 3 {
		t.Fatalf("Expected 3 blocks, got %d", f.Size())
	}
	p, _ := f.Position(2)
	if p != volume.NewPoint3D(8, 0, 0) {
		t.Errorf("Expected last block at (8,0,0), got %v", p)
	}
}

// TestFieldInvalid verifies empty dimensions are rejected
func TestFieldInvalid(t *testing.T) {
	if _, err := NewDisplacementField(volume.NewDimensions(0, 4, 4), volume.NewDimensions(2, 2, 2)); err == nil {
		t.Error("Expected an error for an empty volume")
	}
	if _, err := NewDisplacementField(volume.NewDimensions(4, 4, 4), volume.NewDimensions(2, 0, 2)); err == nil {
		t.Error("Expected an error for an empty block")
	}
}

// TestFieldUpdateKeepsPosition verifies only the displacement changes on update
func TestFieldUpdateKeepsPosition(t *testing.T) {
	f, _ := NewDisplacementField(volume.NewDimensions(16, 16, 16), volume.NewDimensions(8, 8, 8))

	f.Initialize(correlation.Displacement{DX: 1, DY: 1, DZ: 1})
	for i := 0; i < f.Size(); i++ {
		tp, _ := f.TranslatedPosition(i)
		p, _ := f.Position(i)
		if tp != p.Add(volume.NewPoint3D(1, 1, 1)) {
			t.Fatalf("Block %d: translated position %v after initialize", i, tp)
		}
	}

	before, _ := f.Position(5)
	d := correlation.Displacement{DX: 2.6, DY: -1.4, DZ: 0.2, Reliable: true}
	if err := f.Update(5, d); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	after, _ := f.Position(5)
	if after != before {
		t.Errorf("Position changed from %v to %v", before, after)
	}
	tp, _ := f.TranslatedPosition(5)
	if tp != before.Add(volume.NewPoint3D(3, -1, 0)) {
		t.Errorf("Translated position %v does not reflect %v", tp, d)
	}
	got, _ := f.Displacement(5)
	if got != d {
		t.Errorf("Displacement(5) = %v, want %v", got, d)
	}

	other, _ := f.Displacement(4)
	if other.DX != 1 {
		t.Error("Update touched another block")
	}
}

// TestFieldOutOfRange verifies boundary indices fail with ErrIndexOutOfRange
func TestFieldOutOfRange(t *testing.T) {
	f, _ := NewDisplacementField(volume.NewDimensions(8, 8, 8), volume.NewDimensions(4, 4, 4))

	for _, i := range []int{-1, f.Size()} {
		if _, err := f.Position(i); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Position(%d): expected ErrIndexOutOfRange, got %v", i, err)
		}
		if _, err := f.TranslatedPosition(i); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("TranslatedPosition(%d): expected ErrIndexOutOfRange, got %v", i, err)
		}
		if err := f.Update(i, correlation.Displacement{}); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Update(%d): expected ErrIndexOutOfRange, got %v", i, err)
		}
	}

	if err := f.Update(f.Size()-1, correlation.Displacement{}); err != nil {
		t.Errorf("Update on the last index failed: %v", err)
	}
}

// TestFieldSummary verifies aggregate statistics
func TestFieldSummary(t *testing.T) {
	f, _ := NewDisplacementField(volume.NewDimensions(8, 8, 4), volume.NewDimensions(4, 4, 4))
	f.Update(0, correlation.Displacement{DX: 1, DY: 0, DZ: 0, Reliable: true})
	f.Update(1, correlation.Displacement{DX: 3, DY: 4, DZ: 0, Reliable: true})
	f.Update(2, correlation.Displacement{DX: 1, DY: 0, DZ: 0})
	f.Update(3, correlation.Displacement{DX: 3, DY: 0, DZ: 0})

	s := f.Summary()
	if s.Blocks != 4 || s.Reliable != 2 {
		t.Errorf("Expected 4 blocks with 2 reliable, got %+v", s)
	}
	if s.ReliableFraction() != 0.5 {
		t.Errorf("Expected reliable fraction 0.5, got %v", s.ReliableFraction())
	}
	if s.MeanDX != 2 || s.MeanDY != 1 || s.MeanDZ != 0 {
		t.Errorf("Unexpected means %+v", s)
	}
	if s.MaxMagnitude != 5 {
		t.Errorf("Expected max magnitude 5, got %v", s.MaxMagnitude)
	}
	if math.Abs(s.StdDX-math.Sqrt(4.0/3)) > 1e-12 {
		t.Errorf("Unexpected StdDX %v", s.StdDX)
	}
}

// TestFieldNearest verifies the nearest-block lookup
func TestFieldNearest(t *testing.T) {
	f, _ := NewDisplacementField(volume.NewDimensions(16, 16, 16), volume.NewDimensions(8, 8, 8))
	for i := 0; i < f.Size(); i++ {
		f.Update(i, correlation.Displacement{DX: float64(i)})
	}

	tests := []struct {
		p    volume.Point3D
		want volume.Point3D
	}{
		{volume.NewPoint3D(0, 0, 0), volume.NewPoint3D(0, 0, 0)},
		{volume.NewPoint3D(15, 0, 0), volume.NewPoint3D(8, 0, 0)},
		{volume.NewPoint3D(12, 13, 14), volume.NewPoint3D(8, 8, 8)},
		{volume.NewPoint3D(2, 12, 1), volume.NewPoint3D(0, 8, 0)},
		{volume.NewPoint3D(100, -50, 3), volume.NewPoint3D(8, 0, 0)},
	}
	for _, tt := range tests {
		i, e := f.Nearest(tt.p)
		if e.Position != tt.want {
			t.Errorf("Nearest(%v) = block at %v, want %v", tt.p, e.Position, tt.want)
		}
		if e.Displacement.DX != float64(i) {
			t.Errorf("Nearest(%v) returned displacement of another block", tt.p)
		}
	}
}

// TestFitAffineTranslation verifies a uniform field fits an identity with translation
func TestFitAffineTranslation(t *testing.T) {
	f, _ := NewDisplacementField(volume.NewDimensions(16, 16, 16), volume.NewDimensions(8, 8, 8))
	f.Initialize(correlation.Displacement{DX: 1.5, DY: -2, DZ: 0.25, Reliable: true})

	a, err := f.FitAffine(true)
	if err != nil {
		t.Fatalf("FitAffine failed: %v", err)
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			want := 0.0
			if r == c {
				want = 1
			}
			if math.Abs(a.Matrix.At(r, c)-want) > 1e-9 {
				t.Errorf("A[%d][%d] = %v, want %v", r, c, a.Matrix.At(r, c), want)
			}
		}
	}
	tr := a.Translation()
	if math.Abs(tr[0]-1.5) > 1e-9 || math.Abs(tr[1]+2) > 1e-9 || math.Abs(tr[2]-0.25) > 1e-9 {
		t.Errorf("Unexpected translation %v", tr)
	}

	p := a.Apply([3]float64{3, 4, 5})
	if math.Abs(p[0]-4.5) > 1e-9 || math.Abs(p[1]-2) > 1e-9 || math.Abs(p[2]-5.25) > 1e-9 {
		t.Errorf("Apply gave %v", p)
	}
}

// TestFitAffineNotEnoughBlocks verifies the reliable filter and the minimum count
func TestFitAffineNotEnoughBlocks(t *testing.T) {
	f, _ := NewDisplacementField(volume.NewDimensions(16, 16, 16), volume.NewDimensions(8, 8, 8))
	f.Initialize(correlation.Displacement{DX: 1})
	if _, err := f.FitAffine(true); err == nil {
		t.Error("Expected an error when no block is reliable")
	}
	if _, err := f.FitAffine(false); err != nil {
		t.Errorf("Expected a fit over all blocks, got %v", err)
	}
}

// TestFieldYAMLRoundTrip verifies export and import of a field
func TestFieldYAMLRoundTrip(t *testing.T) {
	f, _ := NewDisplacementField(volume.NewDimensions(12, 8, 4), volume.NewDimensions(4, 4, 4))
	for i := 0; i < f.Size(); i++ {
		f.Update(i, correlation.Displacement{
			DX: float64(i) / 3, DY: -float64(i), DZ: 0.125,
			Quality: 10 + float64(i), PValue: 1e-6, Reliable: i%2 == 0,
		})
	}

	var buf bytes.Buffer
	if err := f.WriteYAML(&buf, "run-1"); err != nil {
		t.Fatalf("WriteYAML failed: %v", err)
	}
	if !strings.Contains(buf.String(), "runId: run-1") {
		t.Errorf("Expected run id in output:\n%s", buf.String())
	}

	g, runID, err := ReadFieldYAML(&buf)
	if err != nil {
		t.Fatalf("ReadFieldYAML failed: %v", err)
	}
	if runID != "run-1" {
		t.Errorf("Expected run id run-1, got %q", runID)
	}
	if g.Size() != f.Size() || g.BlockDimensions() != f.BlockDimensions() {
		t.Fatalf("Layout changed: %d blocks of %v", g.Size(), g.BlockDimensions())
	}
	for i, e := range f.Entries() {
		if got := g.Entries()[i]; got != e {
			t.Errorf("Entry %d: got %+v, want %+v", i, got, e)
		}
	}
}

// TestReadFieldYAMLRejectsMismatch verifies inconsistent documents are refused
func TestReadFieldYAMLRejectsMismatch(t *testing.T) {
	doc := `volume: [8, 8, 8]
block: [4, 4, 4]
blocks:
  - index: 0
    position: [0, 0, 0]
    displacement: [0, 0, 0]
`
	if _, _, err := ReadFieldYAML(strings.NewReader(doc)); err == nil {
		t.Error("Expected an error for a document with missing blocks")
	}
}
