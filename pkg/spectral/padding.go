package spectral

import (
	"fmt"

	"volreg3d/pkg/volume"
)

// NextPowerOfTwo returns the smallest power of two >= n (1 for n <= 1).
func NextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// ZeroPadAlongAxis returns a copy of v extended to size voxels along axis.
// The original data stays at the low end of the axis and the added voxels
// are zero. size must not be smaller than the current extent.
func ZeroPadAlongAxis(v volume.Volume, axis volume.Axis, size int) (*volume.Float32, error) {
	d := v.Dimensions()
	if size < d.Axis(axis) {
		return nil, fmt.Errorf("spectral: cannot pad %s axis of %v down to %d", axis, d, size)
	}

	out := volume.NewFloat32(d.WithAxis(axis, size))
	for z := 0; z < d.DimZ; z++ {
		for y := 0; y < d.DimY; y++ {
			for x := 0; x < d.DimX; x++ {
				out.SetVoxel(x, y, z, v.Voxel(x, y, z))
			}
		}
	}
	return out, nil
}

// PadToPowerOfTwo zero-pads v along axis up to the next power of two.
func PadToPowerOfTwo(v volume.Volume, axis volume.Axis) (*volume.Float32, error) {
	return ZeroPadAlongAxis(v, axis, NextPowerOfTwo(v.Dimensions().Axis(axis)))
}
