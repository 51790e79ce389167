package registration

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/stat"

	"volreg3d/pkg/volume"
)

// Summary holds aggregate statistics of a displacement field.
type Summary struct {
	Blocks   int
	Reliable int

	MeanDX, MeanDY, MeanDZ float64
	StdDX, StdDY, StdDZ    float64

	MeanMagnitude float64
	MaxMagnitude  float64
}

// ReliableFraction returns the share of blocks whose peak passed the level.
func (s Summary) ReliableFraction() float64 {
	if s.Blocks == 0 {
		return 0
	}
	return float64(s.Reliable) / float64(s.Blocks)
}

// Summary computes per-component mean and standard deviation of the field.
func (f *DisplacementField) Summary() Summary {
	n := len(f.entries)
	s := Summary{Blocks: n}
	if n == 0 {
		return s
	}

	dx := make([]float64, n)
	dy := make([]float64, n)
	dz := make([]float64, n)
	mag := make([]float64, n)
	for i, e := range f.entries {
		d := e.Displacement
		dx[i], dy[i], dz[i] = d.DX, d.DY, d.DZ
		mag[i] = d.Magnitude()
		if d.Reliable {
			s.Reliable++
		}
		if mag[i] > s.MaxMagnitude {
			s.MaxMagnitude = mag[i]
		}
	}

	s.MeanDX, s.StdDX = meanStd(dx)
	s.MeanDY, s.StdDY = meanStd(dy)
	s.MeanDZ, s.StdDZ = meanStd(dz)
	s.MeanMagnitude = stat.Mean(mag, nil)
	return s
}

// meanStd is stat.MeanStdDev with a zero deviation for single samples.
func meanStd(x []float64) (float64, float64) {
	if len(x) < 2 {
		return stat.Mean(x, nil), 0
	}
	return stat.MeanStdDev(x, nil)
}

// blockCenter is a block centre stored in the k-d tree.
type blockCenter struct {
	X, Y, Z float64
	index   int
}

// Compare implements the kdtree.Comparable interface
func (p blockCenter) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(blockCenter)
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
func (p blockCenter) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p blockCenter) Distance(c kdtree.Comparable) float64 {
	q := c.(blockCenter)
	dx := p.X - q.X
	dy := p.Y - q.Y
	dz := p.Z - q.Z
	return dx*dx + dy*dy + dz*dz
}

// blockCenters satisfies kdtree.Interface
type blockCenters []blockCenter

func (p blockCenters) Index(i int) kdtree.Comparable         { return p[i] }
func (p blockCenters) Len() int                              { return len(p) }
func (p blockCenters) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p blockCenters) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(centerPlane{blockCenters: p, Dim: d}, kdtree.MedianOfRandoms(centerPlane{blockCenters: p, Dim: d}, 100))
}

// centerPlane implements kdtree.SortSlicer for blockCenters
type centerPlane struct {
	blockCenters
	kdtree.Dim
}

func (p centerPlane) Less(i, j int) bool {
	return p.blockCenters[i].Compare(p.blockCenters[j], p.Dim) < 0
}

func (p centerPlane) Slice(start, end int) kdtree.SortSlicer {
	return centerPlane{blockCenters: p.blockCenters[start:end], Dim: p.Dim}
}

func (p centerPlane) Swap(i, j int) {
	p.blockCenters[i], p.blockCenters[j] = p.blockCenters[j], p.blockCenters[i]
}

// Nearest returns the index and entry of the block whose centre is closest
// to p. Block positions never change, so the tree is built once.
func (f *DisplacementField) Nearest(p volume.Point3D) (int, Entry) {
	f.treeOnce.Do(func() {
		centers := make(blockCenters, len(f.entries))
		for i := range f.entries {
			c, _ := f.Center(i)
			centers[i] = blockCenter{X: c[0], Y: c[1], Z: c[2], index: i}
		}
		f.tree = kdtree.New(centers, false)
	})

	got, _ := f.tree.Nearest(blockCenter{X: float64(p.X), Y: float64(p.Y), Z: float64(p.Z)})
	i := got.(blockCenter).index
	return i, f.entries[i]
}

// Affine is a 3x4 map x' = A·x + t stored as a dense matrix [A | t].
type Affine struct {
	Matrix *mat.Dense
}

// Apply maps p through the affine transform.
func (a Affine) Apply(p [3]float64) [3]float64 {
	var out [3]float64
	for r := 0; r < 3; r++ {
		out[r] = a.Matrix.At(r, 0)*p[0] + a.Matrix.At(r, 1)*p[1] + a.Matrix.At(r, 2)*p[2] + a.Matrix.At(r, 3)
	}
	return out
}

// Translation returns the t column.
func (a Affine) Translation() [3]float64 {
	return [3]float64{a.Matrix.At(0, 3), a.Matrix.At(1, 3), a.Matrix.At(2, 3)}
}

// FitAffine finds the least-squares affine map taking block centres to their
// displaced centres. With reliableOnly set, blocks whose peak failed the
// confidence level are left out. At least four blocks spanning all three
// axes are needed.
func (f *DisplacementField) FitAffine(reliableOnly bool) (Affine, error) {
	var rows []int
	for i, e := range f.entries {
		if !reliableOnly || e.Displacement.Reliable {
			rows = append(rows, i)
		}
	}
	if len(rows) < 4 {
		return Affine{}, fmt.Errorf("registration: affine fit needs at least 4 blocks, have %d", len(rows))
	}

	design := mat.NewDense(len(rows), 4, nil)
	target := mat.NewDense(len(rows), 3, nil)
	for r, i := range rows {
		c, _ := f.Center(i)
		d := f.entries[i].Displacement
		design.SetRow(r, []float64{c[0], c[1], c[2], 1})
		target.SetRow(r, []float64{c[0] + d.DX, c[1] + d.DY, c[2] + d.DZ})
	}

	var sol mat.Dense
	if err := sol.Solve(design, target); err != nil {
		return Affine{}, fmt.Errorf("registration: affine fit failed: %w", err)
	}

	m := mat.NewDense(3, 4, nil)
	m.Copy(sol.T())
	return Affine{Matrix: m}, nil
}
