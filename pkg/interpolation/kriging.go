// Package interpolation estimates displacements between block centres of a
// displacement field by ordinary kriging.
package interpolation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"

	"volreg3d/pkg/registration"
	"volreg3d/pkg/volume"
)

// ErrNoSamples is returned when a field has no usable blocks to krige from.
var ErrNoSamples = errors.New("interpolation: no samples")

// Variogram models supported by the implementation
type VariogramModel int

const (
	Spherical VariogramModel = iota
	Exponential
	Gaussian
)

func (m VariogramModel) String() string {
	switch m {
	case Spherical:
		return "spherical"
	case Exponential:
		return "exponential"
	case Gaussian:
		return "gaussian"
	default:
		return fmt.Sprintf("VariogramModel(%d)", int(m))
	}
}

// Params holds the parameters for kriging interpolation
type Params struct {
	Range     float64        // Range parameter of the variogram, in voxels
	Sill      float64        // Sill parameter of the variogram
	Nugget    float64        // Nugget effect parameter
	Model     VariogramModel // Type of variogram model to use
	Neighbors int            // Number of nearest block centres used per estimate
}

// DefaultParams returns a spherical variogram reaching its sill after three
// blocks, estimated from the 27 nearest blocks.
func DefaultParams(block volume.Dimensions) Params {
	edge := float64(max(block.DimX, block.DimY, block.DimZ))
	return Params{
		Range:     3 * edge,
		Sill:      1,
		Model:     Spherical,
		Neighbors: 27,
	}
}

// variogram returns the semivariance at distance h
func (p Params) variogram(h float64) float64 {
	if h == 0 {
		return 0
	}

	gamma := p.Nugget
	switch p.Model {
	case Spherical:
		if h < p.Range {
			r := h / p.Range
			gamma += p.Sill * (1.5*r - 0.5*r*r*r)
		} else {
			gamma += p.Sill
		}
	case Exponential:
		gamma += p.Sill * (1 - math.Exp(-3*h/p.Range))
	case Gaussian:
		gamma += p.Sill * (1 - math.Exp(-3*h*h/(p.Range*p.Range)))
	}
	return gamma
}

// sample is a block centre stored in the k-d tree
type sample struct {
	X, Y, Z float64
	index   int
}

// Compare implements the kdtree.Comparable interface
func (p sample) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(sample)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p sample) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p sample) Distance(c kdtree.Comparable) float64 {
	q := c.(sample)
	dx := p.X - q.X
	dy := p.Y - q.Y
	dz := p.Z - q.Z
	return dx*dx + dy*dy + dz*dz
}

func (p sample) dist(q sample) float64 { return math.Sqrt(p.Distance(q)) }

// samples satisfies kdtree.Interface
type samples []sample

func (p samples) Index(i int) kdtree.Comparable         { return p[i] }
func (p samples) Len() int                              { return len(p) }
func (p samples) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p samples) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(samplePlane{samples: p, Dim: d}, kdtree.MedianOfRandoms(samplePlane{samples: p, Dim: d}, 100))
}

// samplePlane implements kdtree.SortSlicer for samples
type samplePlane struct {
	samples
	kdtree.Dim
}

func (p samplePlane) Less(i, j int) bool {
	return p.samples[i].Compare(p.samples[j], p.Dim) < 0
}

func (p samplePlane) Slice(start, end int) kdtree.SortSlicer {
	return samplePlane{samples: p.samples[start:end], Dim: p.Dim}
}

func (p samplePlane) Swap(i, j int) {
	p.samples[i], p.samples[j] = p.samples[j], p.samples[i]
}

// Kriging interpolates the displacement vectors of a field at arbitrary
// points. It is read-only after construction and safe for concurrent use.
type Kriging struct {
	params Params
	values [][3]float64
	tree   *kdtree.Tree
}

// NewFieldKriging prepares an interpolator over the block centres of f.
// With reliableOnly set, blocks whose peak failed the confidence level are
// left out.
func NewFieldKriging(f *registration.DisplacementField, reliableOnly bool, params Params) (*Kriging, error) {
	if params.Neighbors < 1 {
		params.Neighbors = DefaultParams(f.BlockDimensions()).Neighbors
	}
	if params.Range <= 0 {
		return nil, fmt.Errorf("interpolation: variogram range must be positive, got %v", params.Range)
	}

	k := &Kriging{params: params}
	var points samples
	for i, e := range f.Entries() {
		if reliableOnly && !e.Displacement.Reliable {
			continue
		}
		c, err := f.Center(i)
		if err != nil {
			return nil, err
		}
		points = append(points, sample{X: c[0], Y: c[1], Z: c[2], index: len(k.values)})
		k.values = append(k.values, e.Displacement.Vector())
	}
	if len(points) == 0 {
		return nil, ErrNoSamples
	}

	k.tree = kdtree.New(points, false)
	return k, nil
}

// Len returns the number of block centres the interpolator draws on.
func (k *Kriging) Len() int { return len(k.values) }

// At estimates the displacement at p. At a block centre the block's own
// displacement is returned.
func (k *Kriging) At(p [3]float64) [3]float64 {
	q := sample{X: p[0], Y: p[1], Z: p[2]}
	keeper := kdtree.NewNKeeper(min(k.params.Neighbors, len(k.values)))
	k.tree.NearestSet(keeper, q)

	near := make([]sample, 0, keeper.Len())
	for _, item := range keeper.Heap {
		if item.Comparable == nil {
			continue
		}
		s := item.Comparable.(sample)
		if item.Dist < 1e-20 {
			return k.values[s.index]
		}
		near = append(near, s)
	}

	weights, err := k.weights(q, near)
	if err != nil {
		weights = inverseDistance(q, near)
	}

	var out [3]float64
	for i, s := range near {
		v := k.values[s.index]
		out[0] += weights[i] * v[0]
		out[1] += weights[i] * v[1]
		out[2] += weights[i] * v[2]
	}
	return out
}

// weights solves the ordinary kriging system for q over near. The extra row
// and column hold the Lagrange multiplier that makes the weights sum to one.
func (k *Kriging) weights(q sample, near []sample) ([]float64, error) {
	n := len(near)
	if n < 4 {
		return inverseDistance(q, near), nil
	}

	a := mat.NewDense(n+1, n+1, nil)
	b := mat.NewVecDense(n+1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			a.Set(i, j, k.params.variogram(near[i].dist(near[j])))
		}
		a.Set(i, n, 1)
		a.Set(n, i, 1)
		b.SetVec(i, k.params.variogram(q.dist(near[i])))
	}
	b.SetVec(n, 1)

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return nil, err
	}
	w := make([]float64, n)
	for i := range w {
		w[i] = x.AtVec(i)
	}
	return w, nil
}

// inverseDistance weights by 1/d², normalised to sum to one
func inverseDistance(q sample, near []sample) []float64 {
	w := make([]float64, len(near))
	total := 0.0
	for i, s := range near {
		w[i] = 1 / q.Distance(s)
		total += w[i]
	}
	for i := range w {
		w[i] /= total
	}
	return w
}

// Resample evaluates the interpolator on a grid covering dims with the given
// voxel step and returns one volume per displacement component. Voxel
// (i, j, l) of the result holds the estimate at (i*step, j*step, l*step).
func (k *Kriging) Resample(dims volume.Dimensions, step int) [3]*volume.Float32 {
	step = max(step, 1)
	grid := volume.NewDimensions(
		(dims.DimX+step-1)/step,
		(dims.DimY+step-1)/step,
		(dims.DimZ+step-1)/step,
	)
	out := [3]*volume.Float32{volume.NewFloat32(grid), volume.NewFloat32(grid), volume.NewFloat32(grid)}
	for z := 0; z < grid.DimZ; z++ {
		for y := 0; y < grid.DimY; y++ {
			for x := 0; x < grid.DimX; x++ {
				d := k.At([3]float64{float64(x * step), float64(y * step), float64(z * step)})
				for c := range out {
					out[c].SetVoxel(x, y, z, d[c])
				}
			}
		}
	}
	return out
}
