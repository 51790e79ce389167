// Package spectral provides the 3D discrete Fourier transform used by phase
// correlation, together with the zero-padding helpers applied to volumes
// before transforming them.
package spectral

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"

	"volreg3d/pkg/volume"
)

// Transform computes forward and inverse 3D FFTs for one fixed size.
//
// The transform is separable: a 1D complex FFT is applied along every X line,
// then every Y line, then every Z line. Spectra are stored as a flat slice
// indexed x + y*DimX + z*DimX*DimY.
//
// A Transform owns scratch buffers and must not be used by more than one
// goroutine at a time. Independent Transforms are safe in parallel.
type Transform struct {
	dims         volume.Dimensions
	fftX, fftY   *fourier.CmplxFFT
	fftZ         *fourier.CmplxFFT
	lineY, lineZ []complex128
}

// NewTransform returns a Transform for volumes of the given dimensions.
func NewTransform(dims volume.Dimensions) *Transform {
	return &Transform{
		dims:  dims,
		fftX:  fourier.NewCmplxFFT(dims.DimX),
		fftY:  fourier.NewCmplxFFT(dims.DimY),
		fftZ:  fourier.NewCmplxFFT(dims.DimZ),
		lineY: make([]complex128, dims.DimY),
		lineZ: make([]complex128, dims.DimZ),
	}
}

// Dimensions returns the size the transform was built for.
func (t *Transform) Dimensions() volume.Dimensions { return t.dims }

// Len returns the number of coefficients of a spectrum.
func (t *Transform) Len() int { return t.dims.Volume() }

// Forward loads v into dst and replaces it by its spectrum. dst is allocated
// when its length does not match the transform.
func (t *Transform) Forward(dst []complex128, v volume.Volume) ([]complex128, error) {
	if v.Dimensions() != t.dims {
		return nil, fmt.Errorf("spectral: volume is %v, transform is %v", v.Dimensions(), t.dims)
	}
	if len(dst) != t.Len() {
		dst = make([]complex128, t.Len())
	}

	d := t.dims
	n := d.SliceSize()
	if f, ok := v.(*volume.Float32); ok {
		for z := 0; z < d.DimZ; z++ {
			for i, s := range f.Slice(z) {
				dst[z*n+i] = complex(float64(s), 0)
			}
		}
	} else {
		for z := 0; z < d.DimZ; z++ {
			for y := 0; y < d.DimY; y++ {
				for x := 0; x < d.DimX; x++ {
					dst[z*n+y*d.DimX+x] = complex(v.Voxel(x, y, z), 0)
				}
			}
		}
	}

	t.apply(dst, false)
	return dst, nil
}

// Inverse replaces the spectrum in buf by its inverse transform, normalised
// so that Inverse(Forward(v)) reproduces v.
func (t *Transform) Inverse(buf []complex128) ([]complex128, error) {
	if len(buf) != t.Len() {
		return nil, fmt.Errorf("spectral: buffer has %d coefficients, transform needs %d", len(buf), t.Len())
	}
	t.apply(buf, true)
	scale := 1 / float64(t.Len())
	for i, c := range buf {
		buf[i] = complex(real(c)*scale, imag(c)*scale)
	}
	return buf, nil
}

// ToVolume returns the real part of buf as a volume.
func (t *Transform) ToVolume(buf []complex128) *volume.Float32 {
	out := volume.NewFloat32(t.dims)
	n := t.dims.SliceSize()
	for z := 0; z < t.dims.DimZ; z++ {
		s := out.Slice(z)
		for i := range s {
			s[i] = float32(real(buf[z*n+i]))
		}
	}
	return out
}

func (t *Transform) apply(buf []complex128, inverse bool) {
	d := t.dims
	sx, sy, sz := 1, d.DimX, d.DimX*d.DimY

	// X lines are contiguous.
	for base := 0; base < len(buf); base += d.DimX {
		line := buf[base : base+d.DimX]
		transformLine(t.fftX, line, line, inverse)
	}

	for z := 0; z < d.DimZ; z++ {
		for x := 0; x < d.DimX; x++ {
			t.strided(t.fftY, t.lineY, buf, z*sz+x*sx, sy, inverse)
		}
	}

	for y := 0; y < d.DimY; y++ {
		for x := 0; x < d.DimX; x++ {
			t.strided(t.fftZ, t.lineZ, buf, y*sy+x*sx, sz, inverse)
		}
	}
}

// strided gathers a line of buf starting at offset with the given stride,
// transforms it and scatters it back.
func (t *Transform) strided(fft *fourier.CmplxFFT, line, buf []complex128, offset, stride int, inverse bool) {
	for i := range line {
		line[i] = buf[offset+i*stride]
	}
	transformLine(fft, line, line, inverse)
	for i, c := range line {
		buf[offset+i*stride] = c
	}
}

func transformLine(fft *fourier.CmplxFFT, dst, src []complex128, inverse bool) {
	if len(src) <= 1 {
		copy(dst, src)
		return
	}
	if inverse {
		fft.Sequence(dst, src)
		return
	}
	fft.Coefficients(dst, src)
}
