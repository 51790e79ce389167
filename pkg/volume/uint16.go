package volume

import (
	"fmt"
	"image"
	"math"
)

// Uint16 is a 16-bit unsigned voxel store, one slice per Z plane, each slice
// indexed x + y*DimX. Writes are rounded and clamped to [0, 65535].
type Uint16 struct {
	dims   Dimensions
	voxels [][]uint16
}

// NewUint16 allocates a zero-filled 16-bit volume.
func NewUint16(dims Dimensions) *Uint16 {
	voxels := make([][]uint16, dims.DimZ)
	n := dims.SliceSize()
	for z := range voxels {
		voxels[z] = make([]uint16, n)
	}
	return &Uint16{dims: dims, voxels: voxels}
}

// NewUint16FromImages builds a volume from a stack of 16-bit grayscale
// slices, one per Z plane. Every slice must be an *image.Gray16 and all
// slices must share the same bounds; otherwise ErrInvalidArgument is returned
// and no volume is built.
func NewUint16FromImages(slices []image.Image) (*Uint16, error) {
	if len(slices) == 0 {
		return nil, fmt.Errorf("%w: empty slice stack", ErrInvalidArgument)
	}

	bounds := slices[0].Bounds()
	for i, img := range slices {
		if _, ok := img.(*image.Gray16); !ok {
			return nil, fmt.Errorf("%w: slice %d is %T, must be 16-bit grayscale", ErrInvalidArgument, i, img)
		}
		if img.Bounds().Dx() != bounds.Dx() || img.Bounds().Dy() != bounds.Dy() {
			return nil, fmt.Errorf("%w: slice %d is %dx%d, expected %dx%d",
				ErrInvalidArgument, i, img.Bounds().Dx(), img.Bounds().Dy(), bounds.Dx(), bounds.Dy())
		}
	}

	v := NewUint16(NewDimensions(bounds.Dx(), bounds.Dy(), len(slices)))
	for z, img := range slices {
		g := img.(*image.Gray16)
		b := g.Bounds()
		for y := 0; y < v.dims.DimY; y++ {
			for x := 0; x < v.dims.DimX; x++ {
				v.voxels[z][x+y*v.dims.DimX] = g.Gray16At(b.Min.X+x, b.Min.Y+y).Y
			}
		}
	}
	return v, nil
}

// Dimensions returns the extent of the volume.
func (v *Uint16) Dimensions() Dimensions { return v.dims }

// Voxel returns the intensity at (x, y, z).
func (v *Uint16) Voxel(x, y, z int) float64 {
	return float64(v.voxels[z][x+y*v.dims.DimX])
}

// SetVoxel stores value at (x, y, z), clamped to [0, 65535].
func (v *Uint16) SetVoxel(x, y, z int, value float64) {
	v.voxels[z][x+y*v.dims.DimX] = cropUint16(value)
}

// Slice returns the backing storage of plane z.
func (v *Uint16) Slice(z int) []uint16 { return v.voxels[z] }

// Duplicate returns a deep copy.
func (v *Uint16) Duplicate() Volume {
	c := NewUint16(v.dims)
	for z := range v.voxels {
		copy(c.voxels[z], v.voxels[z])
	}
	return c
}

// Image returns plane z as a 16-bit grayscale image.
func (v *Uint16) Image(z int) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, v.dims.DimX, v.dims.DimY))
	for i, s := range v.voxels[z] {
		img.Pix[2*i] = uint8(s >> 8)
		img.Pix[2*i+1] = uint8(s)
	}
	return img
}

func cropUint16(value float64) uint16 {
	switch {
	case math.IsNaN(value), value <= 0:
		return 0
	case value >= math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(math.Round(value))
}
