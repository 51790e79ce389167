package registration

import (
	"errors"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/spatial/kdtree"

	"volreg3d/pkg/correlation"
	"volreg3d/pkg/volume"
)

// ErrIndexOutOfRange is returned for block indices outside [0, Size()).
var ErrIndexOutOfRange = errors.New("registration: block index out of range")

// Entry pairs a block origin in the reference volume with its displacement.
type Entry struct {
	Position     volume.Point3D
	Displacement correlation.Displacement
}

// DisplacementField holds one displacement per block tiling the reference
// volume. Positions are fixed at construction; only displacements change.
//
// Update may be called concurrently for distinct indices. Initialize and
// the analysis methods must not run concurrently with Update.
type DisplacementField struct {
	volumeDims volume.Dimensions
	blockDims  volume.Dimensions
	entries    []Entry

	treeOnce sync.Once
	tree     *kdtree.Tree
}

// NewDisplacementField tiles a volume of volumeDims with blocks of blockDims.
// Origins sit on multiples of the block size, X varying fastest, then Y, then
// Z. When a block size does not divide the volume the last block on that axis
// extends past the far edge.
func NewDisplacementField(volumeDims, blockDims volume.Dimensions) (*DisplacementField, error) {
	if volumeDims.IsEmpty() || blockDims.IsEmpty() {
		return nil, fmt.Errorf("%w: cannot tile %v with %v blocks", ErrInvalidData, volumeDims, blockDims)
	}

	nx := ceilDiv(volumeDims.DimX, blockDims.DimX)
	ny := ceilDiv(volumeDims.DimY, blockDims.DimY)
	nz := ceilDiv(volumeDims.DimZ, blockDims.DimZ)

	entries := make([]Entry, 0, nx*ny*nz)
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				entries = append(entries, Entry{
					Position: volume.NewPoint3D(i*blockDims.DimX, j*blockDims.DimY, k*blockDims.DimZ),
				})
			}
		}
	}

	return &DisplacementField{
		volumeDims: volumeDims,
		blockDims:  blockDims,
		entries:    entries,
	}, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Size returns the number of blocks.
func (f *DisplacementField) Size() int { return len(f.entries) }

// VolumeDimensions returns the extent of the tiled reference volume.
func (f *DisplacementField) VolumeDimensions() volume.Dimensions { return f.volumeDims }

// BlockDimensions returns the block size.
func (f *DisplacementField) BlockDimensions() volume.Dimensions { return f.blockDims }

func (f *DisplacementField) check(index int) error {
	if index < 0 || index >= len(f.entries) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(f.entries))
	}
	return nil
}

// Position returns the origin of block index in the reference volume.
func (f *DisplacementField) Position(index int) (volume.Point3D, error) {
	if err := f.check(index); err != nil {
		return volume.Point3D{}, err
	}
	return f.entries[index].Position, nil
}

// TranslatedPosition returns the origin of block index moved by its current
// displacement and rounded to the nearest voxel. This is where the matching
// block is read in the moving volume.
func (f *DisplacementField) TranslatedPosition(index int) (volume.Point3D, error) {
	if err := f.check(index); err != nil {
		return volume.Point3D{}, err
	}
	e := f.entries[index]
	return e.Position.Translate(e.Displacement.DX, e.Displacement.DY, e.Displacement.DZ), nil
}

// Displacement returns the current displacement of block index.
func (f *DisplacementField) Displacement(index int) (correlation.Displacement, error) {
	if err := f.check(index); err != nil {
		return correlation.Displacement{}, err
	}
	return f.entries[index].Displacement, nil
}

// Initialize sets every displacement to d.
func (f *DisplacementField) Initialize(d correlation.Displacement) {
	for i := range f.entries {
		f.entries[i].Displacement = d
	}
}

// Update replaces the displacement of block index.
func (f *DisplacementField) Update(index int, d correlation.Displacement) error {
	if err := f.check(index); err != nil {
		return err
	}
	f.entries[index].Displacement = d
	return nil
}

// Entries returns a copy of all entries in index order.
func (f *DisplacementField) Entries() []Entry {
	out := make([]Entry, len(f.entries))
	copy(out, f.entries)
	return out
}

// Center returns the geometric centre of block index in voxel coordinates.
func (f *DisplacementField) Center(index int) ([3]float64, error) {
	p, err := f.Position(index)
	if err != nil {
		return [3]float64{}, err
	}
	return [3]float64{
		float64(p.X) + float64(f.blockDims.DimX-1)/2,
		float64(p.Y) + float64(f.blockDims.DimY-1)/2,
		float64(p.Z) + float64(f.blockDims.DimZ-1)/2,
	}, nil
}
