// Package correlation estimates translations between equally sized volumes
// by phase correlation.
package correlation

import (
	"fmt"
	"math"
)

// Displacement is a measured 3D translation together with the confidence of
// the correlation peak it was read from.
//
// Quality is the z-score of the peak over the whole correlation surface and
// PValue the chance that the largest of as many unit-normal samples would
// score at least as high. Reliable records the comparison of PValue against
// the threshold given to Correlate. An unreliable displacement still carries
// the measured shift; deciding what to do with it is up to the caller.
type Displacement struct {
	DX, DY, DZ float64
	Quality    float64
	PValue     float64
	Reliable   bool
}

// Vector returns the translation components.
func (d Displacement) Vector() [3]float64 {
	return [3]float64{d.DX, d.DY, d.DZ}
}

// Magnitude returns the Euclidean length of the translation.
func (d Displacement) Magnitude() float64 {
	return math.Sqrt(d.DX*d.DX + d.DY*d.DY + d.DZ*d.DZ)
}

// Translated returns d with its translation offset by (dx, dy, dz). The
// confidence fields are kept.
func (d Displacement) Translated(dx, dy, dz float64) Displacement {
	d.DX += dx
	d.DY += dy
	d.DZ += dz
	return d
}

func (d Displacement) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f) q=%.2f p=%.3g reliable=%t",
		d.DX, d.DY, d.DZ, d.Quality, d.PValue, d.Reliable)
}
