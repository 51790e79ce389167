package registration

import (
	"errors"
	"fmt"

	"volreg3d/pkg/volume"
	"volreg3d/pkg/window"
)

// ErrInvalidData is returned by Validate for unusable registration inputs.
var ErrInvalidData = errors.New("registration: invalid data")

// Data bundles the inputs of a registration run.
type Data struct {
	// Volume1 is the reference volume the blocks are laid out on.
	Volume1 volume.Volume

	// Volume2 is the moving volume searched for each block.
	Volume2 volume.Volume

	// WindowDimStart is the size of the correlation blocks.
	WindowDimStart volume.Dimensions

	// WindowDimEnd is the smallest block size of a coarse-to-fine refinement.
	// The single-pass engine does not read it.
	WindowDimEnd volume.Dimensions

	// WindowType selects the apodization taper.
	WindowType window.Type

	// PValueLevel is the largest peak p-value accepted as reliable.
	PValueLevel float64
}

// Validate checks that the two volumes share their dimensions, that the block
// size is usable and that the confidence level is a probability.
func (d *Data) Validate() error {
	if d.Volume1 == nil || d.Volume2 == nil {
		return fmt.Errorf("%w: both volumes are required", ErrInvalidData)
	}
	dims := d.Volume1.Dimensions()
	if dims.IsEmpty() {
		return fmt.Errorf("%w: reference volume is empty (%v)", ErrInvalidData, dims)
	}
	if d.Volume2.Dimensions() != dims {
		return fmt.Errorf("%w: volume dimensions differ: %v vs %v", ErrInvalidData, dims, d.Volume2.Dimensions())
	}
	if d.WindowDimStart.IsEmpty() {
		return fmt.Errorf("%w: window dimensions must be positive, got %v", ErrInvalidData, d.WindowDimStart)
	}
	if d.PValueLevel <= 0 || d.PValueLevel > 1 {
		return fmt.Errorf("%w: p-value level must be in (0, 1], got %v", ErrInvalidData, d.PValueLevel)
	}
	return nil
}
