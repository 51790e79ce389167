package visualization

import (
	"fmt"
	"math"

	"volreg3d/pkg/correlation"
	"volreg3d/pkg/interpolation"
	"volreg3d/pkg/registration"
	"volreg3d/pkg/volume"
)

// Component selects the per-block quantity drawn by FieldVolume.
type Component int

const (
	Magnitude Component = iota
	ComponentX
	ComponentY
	ComponentZ
	Quality
)

func (c Component) String() string {
	switch c {
	case Magnitude:
		return "magnitude"
	case ComponentX:
		return "dx"
	case ComponentY:
		return "dy"
	case ComponentZ:
		return "dz"
	case Quality:
		return "quality"
	default:
		return fmt.Sprintf("Component(%d)", int(c))
	}
}

// ParseComponent maps a component name to its Component
func ParseComponent(name string) (Component, error) {
	for c := Magnitude; c <= Quality; c++ {
		if c.String() == name {
			return c, nil
		}
	}
	return Magnitude, fmt.Errorf("unknown field component %q", name)
}

func (c Component) value(d correlation.Displacement) float64 {
	switch c {
	case ComponentX:
		return d.DX
	case ComponentY:
		return d.DY
	case ComponentZ:
		return d.DZ
	case Quality:
		return d.Quality
	default:
		return d.Magnitude()
	}
}

// FieldVolume rasterises one component of a displacement field at the
// resolution of the registered volumes: every voxel of a block takes the
// block's value. Blocks overhanging the volume edge are clipped. With
// reliableOnly set, unreliable blocks are left at zero.
func FieldVolume(f *registration.DisplacementField, c Component, reliableOnly bool) *volume.Float32 {
	dims := f.VolumeDimensions()
	block := f.BlockDimensions()
	out := volume.NewFloat32(dims)

	for _, e := range f.Entries() {
		value := 0.0
		if !reliableOnly || e.Displacement.Reliable {
			value = c.value(e.Displacement)
		}
		if value == 0 || math.IsNaN(value) {
			continue
		}

		p := e.Position
		for z := p.Z; z < min(p.Z+block.DimZ, dims.DimZ); z++ {
			for y := p.Y; y < min(p.Y+block.DimY, dims.DimY); y++ {
				for x := p.X; x < min(p.X+block.DimX, dims.DimX); x++ {
					out.SetVoxel(x, y, z, value)
				}
			}
		}
	}
	return out
}

// SaveField renders component c of f and writes its slices along axis into
// outputDir.
func SaveField(f *registration.DisplacementField, c Component, axis, outputDir string) error {
	return NewViewer(FieldVolume(f, c, false)).SaveSliceSequence(axis, outputDir)
}

// KrigedVolume samples k on a grid covering dims every step voxels and
// returns component c. Quality is not interpolated and yields an error.
func KrigedVolume(k *interpolation.Kriging, dims volume.Dimensions, step int, c Component) (*volume.Float32, error) {
	parts := k.Resample(dims, step)
	switch c {
	case ComponentX:
		return parts[0], nil
	case ComponentY:
		return parts[1], nil
	case ComponentZ:
		return parts[2], nil
	case Magnitude:
		grid := parts[0].Dimensions()
		out := volume.NewFloat32(grid)
		for z := 0; z < grid.DimZ; z++ {
			for y := 0; y < grid.DimY; y++ {
				for x := 0; x < grid.DimX; x++ {
					dx, dy, dz := parts[0].Voxel(x, y, z), parts[1].Voxel(x, y, z), parts[2].Voxel(x, y, z)
					out.SetVoxel(x, y, z, math.Sqrt(dx*dx+dy*dy+dz*dz))
				}
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("component %v cannot be interpolated", c)
}
