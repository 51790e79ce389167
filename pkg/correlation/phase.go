package correlation

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"volreg3d/pkg/spectral"
	"volreg3d/pkg/volume"
)

// ErrDimensionMismatch is returned when the volumes given to Correlate do not
// match the size the correlator was built for.
var ErrDimensionMismatch = errors.New("correlation: dimension mismatch")

// spectralFloor is the fraction of the largest cross-power magnitude below
// which a bin is dropped instead of normalised.
const spectralFloor = 1e-12

// PhaseCorrelation3D measures the shift between two volumes of one fixed
// size. It owns the transform and the spectrum buffers, so a value must not be
// shared between goroutines; build one per worker instead.
type PhaseCorrelation3D struct {
	dims      volume.Dimensions
	transform *spectral.Transform
	ref, mov  []complex128
	surface   []float64
}

// NewPhaseCorrelation3D preallocates a correlator for volumes of dims.
func NewPhaseCorrelation3D(dims volume.Dimensions) *PhaseCorrelation3D {
	n := dims.Volume()
	return &PhaseCorrelation3D{
		dims:      dims,
		transform: spectral.NewTransform(dims),
		ref:       make([]complex128, n),
		mov:       make([]complex128, n),
		surface:   make([]float64, n),
	}
}

// Dimensions returns the volume size the correlator accepts.
func (c *PhaseCorrelation3D) Dimensions() volume.Dimensions { return c.dims }

// Correlate returns the translation d such that v2(x) ≈ v1(x - d).
//
// The cross-power spectrum of the two volumes is divided by its magnitude
// when normalize is true, which sharpens the peak; leave it false for
// low-texture content where the magnitude is dominated by noise. The peak of
// the inverse transform is refined to sub-voxel precision with a three-point
// parabola on each axis, and peaks past the middle of an axis are read as
// negative shifts.
//
// The result is flagged Reliable when the peak's p-value does not exceed
// pValueLevel. The measured shift is returned either way.
func (c *PhaseCorrelation3D) Correlate(v1, v2 volume.Volume, normalize bool, pValueLevel float64) (Displacement, error) {
	if v1.Dimensions() != c.dims || v2.Dimensions() != c.dims {
		return Displacement{}, fmt.Errorf("%w: got %v and %v, correlator is %v",
			ErrDimensionMismatch, v1.Dimensions(), v2.Dimensions(), c.dims)
	}

	var err error
	if c.ref, err = c.transform.Forward(c.ref, v1); err != nil {
		return Displacement{}, err
	}
	if c.mov, err = c.transform.Forward(c.mov, v2); err != nil {
		return Displacement{}, err
	}

	crossPower(c.mov, c.ref, normalize)

	if _, err := c.transform.Inverse(c.mov); err != nil {
		return Displacement{}, err
	}

	peak := 0
	for i, v := range c.mov {
		c.surface[i] = real(v)
		if c.surface[i] > c.surface[peak] {
			peak = i
		}
	}

	d := c.locate(peak)
	d.Quality = peakQuality(c.surface, c.surface[peak])
	d.PValue = peakPValue(d.Quality, len(c.surface))
	d.Reliable = d.PValue <= pValueLevel
	return d, nil
}

// crossPower overwrites mov with mov·conj(ref), optionally normalised to unit
// magnitude.
func crossPower(mov, ref []complex128, normalize bool) {
	maxMag := 0.0
	for i := range mov {
		mov[i] *= cmplx.Conj(ref[i])
		if normalize {
			maxMag = math.Max(maxMag, cmplx.Abs(mov[i]))
		}
	}
	if !normalize {
		return
	}

	floor := maxMag * spectralFloor
	for i, v := range mov {
		m := cmplx.Abs(v)
		if m <= floor {
			mov[i] = 0
			continue
		}
		mov[i] = complex(real(v)/m, imag(v)/m)
	}
}

// peakQuality is the z-score of peak over the surface, 0 for a flat surface.
func peakQuality(surface []float64, peak float64) float64 {
	mean, std := stat.MeanStdDev(surface, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return (peak - mean) / std
}

// peakPValue is the probability that the largest of n independent unit
// normal samples reaches z. The surface maximum is always the largest of n
// values, so the single-sample tail alone would flag noise as significant.
func peakPValue(z float64, n int) float64 {
	s := distuv.UnitNormal.Survival(z)
	return -math.Expm1(float64(n) * math.Log1p(-s))
}

// locate converts the flat peak index into a signed sub-voxel shift.
func (c *PhaseCorrelation3D) locate(peak int) Displacement {
	d := c.dims
	x := peak % d.DimX
	y := (peak / d.DimX) % d.DimY
	z := peak / d.SliceSize()

	at := func(x, y, z int) float64 {
		x = (x + d.DimX) % d.DimX
		y = (y + d.DimY) % d.DimY
		z = (z + d.DimZ) % d.DimZ
		return c.surface[x+y*d.DimX+z*d.SliceSize()]
	}
	f0 := c.surface[peak]

	return Displacement{
		DX: wrap(x, d.DimX) + parabolicOffset(at(x-1, y, z), f0, at(x+1, y, z), d.DimX),
		DY: wrap(y, d.DimY) + parabolicOffset(at(x, y-1, z), f0, at(x, y+1, z), d.DimY),
		DZ: wrap(z, d.DimZ) + parabolicOffset(at(x, y, z-1), f0, at(x, y, z+1), d.DimZ),
	}
}

// wrap maps an index on a circular axis of length n to a signed shift.
func wrap(i, n int) float64 {
	if i > n/2 {
		return float64(i - n)
	}
	return float64(i)
}

// parabolicOffset returns the vertex of the parabola through (-1, fm),
// (0, f0), (1, fp), limited to half a voxel. Axes shorter than three voxels
// have no neighbourhood to fit.
func parabolicOffset(fm, f0, fp float64, n int) float64 {
	if n < 3 {
		return 0
	}
	denom := fm - 2*f0 + fp
	if denom >= 0 {
		return 0
	}
	off := 0.5 * (fm - fp) / denom
	return math.Max(-0.5, math.Min(0.5, off))
}
