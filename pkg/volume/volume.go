package volume

import "errors"

// ErrInvalidArgument is returned when a volume is built from an incompatible
// source, e.g. slices of the wrong sample width or mismatched sizes.
var ErrInvalidArgument = errors.New("volume: invalid argument")

// Volume is a 3D intensity grid of fixed Dimensions.
//
// Voxel and SetVoxel expect coordinates inside Dimensions(); callers stage
// coordinates themselves. SetVoxel clamps the value to the native range of
// the store and never fails. Use At for reads that may fall outside.
type Volume interface {
	Dimensions() Dimensions
	Voxel(x, y, z int) float64
	SetVoxel(x, y, z int, value float64)
	Duplicate() Volume
}

// At returns the voxel at (x, y, z), or 0 when the coordinate lies outside v.
func At(v Volume, x, y, z int) float64 {
	d := v.Dimensions()
	if x < 0 || y < 0 || z < 0 || x >= d.DimX || y >= d.DimY || z >= d.DimZ {
		return 0
	}
	return v.Voxel(x, y, z)
}

// ToFloat32 copies any volume into a new Float32 store.
func ToFloat32(v Volume) *Float32 {
	if f, ok := v.(*Float32); ok {
		return f.Duplicate().(*Float32)
	}
	d := v.Dimensions()
	out := NewFloat32(d)
	for z := 0; z < d.DimZ; z++ {
		for y := 0; y < d.DimY; y++ {
			for x := 0; x < d.DimX; x++ {
				out.SetVoxel(x, y, z, v.Voxel(x, y, z))
			}
		}
	}
	return out
}
