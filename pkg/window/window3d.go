// Package window implements separable 3D apodization of volumes and of
// sub-volume blocks ahead of a frequency transform.
//
// Tapering intensities toward block edges suppresses the spectral leakage
// caused by the implicit periodic extension of the FFT. The 3D weight of a
// voxel is the product of the 1D weights along each axis, computed once at
// construction with gonum's dsp/window functions.
package window

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/dsp/window"

	"volreg3d/pkg/volume"
)

// Type selects the window function used for apodization.
type Type int

const (
	Rectangular Type = iota
	Hann
	Hamming
	Blackman
	BlackmanHarris
	Nuttall
	Tukey
	Gaussian
)

var typeNames = map[Type]string{
	Rectangular:    "rectangular",
	Hann:           "hann",
	Hamming:        "hamming",
	Blackman:       "blackman",
	BlackmanHarris: "blackman-harris",
	Nuttall:        "nuttall",
	Tukey:          "tukey",
	Gaussian:       "gaussian",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType maps a window name such as "hann" to its Type.
func ParseType(name string) (Type, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, s := range typeNames {
		if s == name {
			return t, nil
		}
	}
	return Rectangular, fmt.Errorf("unknown window type %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	v, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Parameters of the adjustable windows.
const (
	tukeyAlpha    = 0.5
	gaussianSigma = 0.4
)

// weightFunc returns the in-place gonum window function for t.
func (t Type) weightFunc() func([]float64) []float64 {
	switch t {
	case Hann:
		return window.Hann
	case Hamming:
		return window.Hamming
	case Blackman:
		return window.Blackman
	case BlackmanHarris:
		return window.BlackmanHarris
	case Nuttall:
		return window.Nuttall
	case Tukey:
		return window.Tukey{Alpha: tukeyAlpha}.Transform
	case Gaussian:
		return window.Gaussian{Sigma: gaussianSigma}.Transform
	default:
		return window.Rectangular
	}
}

// Window3D apodizes whole volumes or fixed-size blocks. It is immutable once
// built and may be shared by concurrent callers.
type Window3D struct {
	dims       volume.Dimensions
	windowType Type
	wx, wy, wz window.Values
}

// New returns a Window3D for blocks of the given dimensions.
func New(dims volume.Dimensions, t Type) *Window3D {
	return &Window3D{
		dims:       dims,
		windowType: t,
		wx:         axisWeights(t, dims.DimX),
		wy:         axisWeights(t, dims.DimY),
		wz:         axisWeights(t, dims.DimZ),
	}
}

// axisWeights samples the window over n points. A single point is left at
// full weight since the symmetric forms are undefined there.
func axisWeights(t Type, n int) window.Values {
	if n <= 1 {
		return window.Values{1}[:max(n, 0)]
	}
	return window.NewValues(t.weightFunc(), n)
}

// Dimensions returns the block size of the window.
func (w *Window3D) Dimensions() volume.Dimensions { return w.dims }

// Type returns the window function.
func (w *Window3D) Type() Type { return w.windowType }

// Weight returns the 3D weight at (x, y, z) inside the block.
func (w *Window3D) Weight(x, y, z int) float64 {
	return w.wx[x] * w.wy[y] * w.wz[z]
}

// Apodize returns a tapered copy of v. The dimensions of v must equal the
// window dimensions.
func (w *Window3D) Apodize(v volume.Volume) *volume.Float32 {
	return w.ApodizeSubVolume(volume.Point3D{}, v)
}

// ApodizeSubVolume extracts the block of the window dimensions starting at
// origin and returns its tapered copy. Voxels of the block that fall outside
// v read as zero, so blocks near the far edges or shifted by a displacement
// keep their full shape.
func (w *Window3D) ApodizeSubVolume(origin volume.Point3D, v volume.Volume) *volume.Float32 {
	out := volume.NewFloat32(w.dims)
	for z := 0; z < w.dims.DimZ; z++ {
		wz := w.wz[z]
		slice := out.Slice(z)
		for y := 0; y < w.dims.DimY; y++ {
			wyz := w.wy[y] * wz
			row := slice[y*w.dims.DimX : (y+1)*w.dims.DimX]
			for x := range row {
				value := volume.At(v, origin.X+x, origin.Y+y, origin.Z+z)
				if value == 0 {
					continue
				}
				out.SetVoxel(x, y, z, value*w.wx[x]*wyz)
			}
		}
	}
	return out
}
