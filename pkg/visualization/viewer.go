// Package visualization renders volumes and displacement fields as 16-bit
// grayscale slice images.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"volreg3d/pkg/volume"
)

// Viewer extracts and saves 2D slices of a volume. Intensities are stretched
// linearly so that the smallest voxel maps to black and the largest to white.
type Viewer struct {
	vol volume.Volume

	// lo and hi are the intensity range mapped onto [0, 65535]
	lo, hi float64
}

// NewViewer creates a viewer over v, scanning it once for its intensity range
func NewViewer(v volume.Volume) *Viewer {
	d := v.Dimensions()
	lo, hi := math.Inf(1), math.Inf(-1)
	for z := 0; z < d.DimZ; z++ {
		for y := 0; y < d.DimY; y++ {
			for x := 0; x < d.DimX; x++ {
				value := v.Voxel(x, y, z)
				lo = math.Min(lo, value)
				hi = math.Max(hi, value)
			}
		}
	}
	if d.IsEmpty() {
		lo, hi = 0, 0
	}
	return &Viewer{vol: v, lo: lo, hi: hi}
}

// ParseAxis maps "x", "y" or "z" (either case) to a volume axis
func ParseAxis(axis string) (volume.Axis, error) {
	switch axis {
	case "x", "X":
		return volume.AxisX, nil
	case "y", "Y":
		return volume.AxisY, nil
	case "z", "Z":
		return volume.AxisZ, nil
	}
	return volume.AxisX, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// gray maps an intensity onto the 16-bit range of the viewer
func (v *Viewer) gray(value float64) color.Gray16 {
	if v.hi <= v.lo {
		return color.Gray16{}
	}
	t := (value - v.lo) / (v.hi - v.lo)
	return color.Gray16{Y: uint16(math.Round(math.Max(0, math.Min(1, t)) * 65535))}
}

// ExtractSlice extracts a 2D slice perpendicular to axis at position.
// X slices are laid out (z, y), Y slices (x, z) and Z slices (x, y).
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	a, err := ParseAxis(axis)
	if err != nil {
		return nil, err
	}
	d := v.vol.Dimensions()
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	if n := d.Axis(a); position >= n {
		return nil, fmt.Errorf("position %d exceeds %s extent %d", position, a, n)
	}

	var img *image.Gray16
	switch a {
	case volume.AxisX:
		img = image.NewGray16(image.Rect(0, 0, d.DimZ, d.DimY))
		for y := 0; y < d.DimY; y++ {
			for z := 0; z < d.DimZ; z++ {
				img.SetGray16(z, y, v.gray(v.vol.Voxel(position, y, z)))
			}
		}
	case volume.AxisY:
		img = image.NewGray16(image.Rect(0, 0, d.DimX, d.DimZ))
		for z := 0; z < d.DimZ; z++ {
			for x := 0; x < d.DimX; x++ {
				img.SetGray16(x, z, v.gray(v.vol.Voxel(x, position, z)))
			}
		}
	default:
		img = image.NewGray16(image.Rect(0, 0, d.DimX, d.DimY))
		for y := 0; y < d.DimY; y++ {
			for x := 0; x < d.DimX; x++ {
				img.SetGray16(x, y, v.gray(v.vol.Voxel(x, y, position)))
			}
		}
	}
	return img, nil
}

// ExtractRegion copies the block of size dims starting at origin
func (v *Viewer) ExtractRegion(origin volume.Point3D, dims volume.Dimensions) (*volume.Float32, error) {
	if origin.X < 0 || origin.Y < 0 || origin.Z < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}
	if dims.IsEmpty() {
		return nil, fmt.Errorf("size dimensions must be positive")
	}
	d := v.vol.Dimensions()
	if origin.X+dims.DimX > d.DimX || origin.Y+dims.DimY > d.DimY || origin.Z+dims.DimZ > d.DimZ {
		return nil, fmt.Errorf("region extends beyond volume boundaries")
	}

	region := volume.NewFloat32(dims)
	for z := 0; z < dims.DimZ; z++ {
		for y := 0; y < dims.DimY; y++ {
			for x := 0; x < dims.DimX; x++ {
				region.SetVoxel(x, y, z, v.vol.Voxel(origin.X+x, origin.Y+y, origin.Z+z))
			}
		}
	}
	return region, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	a, err := ParseAxis(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < v.vol.Dimensions().Axis(a); pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", a, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
