// Package volume provides the voxel stores and the integer geometry used by
// the registration packages: Dimensions, Point3D and the Volume contract.
package volume

import (
	"fmt"
	"math"
)

// Dimensions is the voxel-count extent of a volume, a block window or a
// padded transform buffer.
type Dimensions struct {
	DimX, DimY, DimZ int
}

// NewDimensions returns the Dimensions (x, y, z).
func NewDimensions(x, y, z int) Dimensions {
	return Dimensions{DimX: x, DimY: y, DimZ: z}
}

// Volume returns the number of voxels covered by d.
func (d Dimensions) Volume() int {
	return d.DimX * d.DimY * d.DimZ
}

// SliceSize returns the number of voxels in one XY slice.
func (d Dimensions) SliceSize() int {
	return d.DimX * d.DimY
}

// IsEmpty reports whether any axis has a non-positive extent.
func (d Dimensions) IsEmpty() bool {
	return d.DimX <= 0 || d.DimY <= 0 || d.DimZ <= 0
}

// Contains reports whether p lies inside [0,DimX)x[0,DimY)x[0,DimZ).
func (d Dimensions) Contains(p Point3D) bool {
	return p.X >= 0 && p.X < d.DimX &&
		p.Y >= 0 && p.Y < d.DimY &&
		p.Z >= 0 && p.Z < d.DimZ
}

// Axis returns the extent along axis a.
func (d Dimensions) Axis(a Axis) int {
	switch a {
	case AxisX:
		return d.DimX
	case AxisY:
		return d.DimY
	default:
		return d.DimZ
	}
}

// WithAxis returns a copy of d whose extent along a is n.
func (d Dimensions) WithAxis(a Axis, n int) Dimensions {
	switch a {
	case AxisX:
		d.DimX = n
	case AxisY:
		d.DimY = n
	default:
		d.DimZ = n
	}
	return d
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%dx%d", d.DimX, d.DimY, d.DimZ)
}

// Axis selects one of the three volume axes.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// Point3D is an integer voxel coordinate or block origin.
type Point3D struct {
	X, Y, Z int
}

// NewPoint3D returns the point (x, y, z).
func NewPoint3D(x, y, z int) Point3D {
	return Point3D{X: x, Y: y, Z: z}
}

// Add returns p translated by q.
func (p Point3D) Add(q Point3D) Point3D {
	return Point3D{X: p.X + q.X, Y: p.Y + q.Y, Z: p.Z + q.Z}
}

// Sub returns p - q.
func (p Point3D) Sub(q Point3D) Point3D {
	return Point3D{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// Translate returns p moved by a real-valued offset, rounded to the nearest
// voxel on each axis.
func (p Point3D) Translate(dx, dy, dz float64) Point3D {
	return Point3D{
		X: p.X + int(math.Round(dx)),
		Y: p.Y + int(math.Round(dy)),
		Z: p.Z + int(math.Round(dz)),
	}
}

func (p Point3D) String() string {
	return fmt.Sprintf("(%d, %d, %d)", p.X, p.Y, p.Z)
}
