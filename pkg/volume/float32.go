package volume

import "math"

// Float32 is a single-precision voxel store laid out like Uint16. Writes are
// clamped to the finite float32 range and NaN is stored as 0.
type Float32 struct {
	dims   Dimensions
	voxels [][]float32
}

// NewFloat32 allocates a zero-filled float volume.
func NewFloat32(dims Dimensions) *Float32 {
	voxels := make([][]float32, dims.DimZ)
	n := dims.SliceSize()
	for z := range voxels {
		voxels[z] = make([]float32, n)
	}
	return &Float32{dims: dims, voxels: voxels}
}

func (v *Float32) Dimensions() Dimensions { return v.dims }

func (v *Float32) Voxel(x, y, z int) float64 {
	return float64(v.voxels[z][x+y*v.dims.DimX])
}

func (v *Float32) SetVoxel(x, y, z int, value float64) {
	v.voxels[z][x+y*v.dims.DimX] = cropFloat32(value)
}

// Slice returns the backing storage of plane z.
func (v *Float32) Slice(z int) []float32 { return v.voxels[z] }

func (v *Float32) Duplicate() Volume {
	c := NewFloat32(v.dims)
	for z := range v.voxels {
		copy(c.voxels[z], v.voxels[z])
	}
	return c
}

func cropFloat32(value float64) float32 {
	switch {
	case math.IsNaN(value):
		return 0
	case value > math.MaxFloat32:
		return math.MaxFloat32
	case value < -math.MaxFloat32:
		return -math.MaxFloat32
	}
	return float32(value)
}
