// Package registration estimates a block-wise displacement field between two
// volumes.
//
// The Engine runs in two stages. A global phase correlation of the two
// apodized volumes gives one translation that seeds every block of the
// DisplacementField. Each block of the reference volume is then correlated,
// in parallel, with the block of the moving volume found at the seeded
// position, and the measured shift replaces the seed.
package registration

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"volreg3d/pkg/correlation"
	"volreg3d/pkg/spectral"
	"volreg3d/pkg/volume"
	"volreg3d/pkg/window"
)

// State is the stage an Engine is in.
type State int

const (
	Idle State = iota
	GlobalPass
	LocalPass
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case GlobalPass:
		return "global pass"
	case LocalPass:
		return "local pass"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// FallbackPolicy decides what is stored for a block whose correlation peak
// fails the confidence level.
type FallbackPolicy int

const (
	// KeepMeasured stores the measured shift, flagged unreliable.
	KeepMeasured FallbackPolicy = iota

	// FallbackToSeed keeps the global seed shift for the block, flagged
	// unreliable and carrying the measured peak quality.
	FallbackToSeed
)

func (p FallbackPolicy) String() string {
	switch p {
	case KeepMeasured:
		return "keep-measured"
	case FallbackToSeed:
		return "fallback-to-seed"
	default:
		return fmt.Sprintf("FallbackPolicy(%d)", int(p))
	}
}

// ParseFallbackPolicy maps "keep-measured" or "fallback-to-seed" to a policy.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch s {
	case "", "keep-measured":
		return KeepMeasured, nil
	case "fallback-to-seed":
		return FallbackToSeed, nil
	}
	return KeepMeasured, fmt.Errorf("unknown fallback policy %q", s)
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxWorkers bounds the number of blocks correlated concurrently.
// Values below 1 are ignored.
func WithMaxWorkers(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.maxWorkers = n
		}
	}
}

// WithProgress installs a progress sink. It is called once after the global
// pass and once per block, with total equal to the block count plus one.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) {
		e.sink = fn
	}
}

// WithFallback sets the policy for unreliable block measurements.
func WithFallback(p FallbackPolicy) Option {
	return func(e *Engine) {
		e.fallback = p
	}
}

// Engine computes one displacement per block of a field in a single pass.
type Engine struct {
	data       *Data
	field      *DisplacementField
	maxWorkers int
	sink       ProgressFunc
	fallback   FallbackPolicy

	state  State
	runID  uuid.UUID
	global correlation.Displacement
}

// NewEngine returns an Engine filling field from data. The worker count
// defaults to the number of CPUs.
func NewEngine(data *Data, field *DisplacementField, opts ...Option) *Engine {
	e := &Engine{
		data:       data,
		field:      field,
		maxWorkers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current stage.
func (e *Engine) State() State { return e.state }

// RunID identifies the last call to Match.
func (e *Engine) RunID() uuid.UUID { return e.runID }

// GlobalDisplacement returns the seed measured by the global pass.
func (e *Engine) GlobalDisplacement() correlation.Displacement { return e.global }

// Field returns the field being filled.
func (e *Engine) Field() *DisplacementField { return e.field }

// Match runs the global pass and then the parallel block pass, blocking
// until every block is done. If any block fails, the errors of all failed
// chunks are returned together once every chunk has finished, and the field
// must not be used.
func (e *Engine) Match() error {
	e.runID = uuid.New()
	if err := e.validate(); err != nil {
		e.state = Failed
		return err
	}

	n := e.field.Size()
	prog := newProgress(n+1, e.sink)

	e.state = GlobalPass
	if err := e.initializeField(); err != nil {
		e.state = Failed
		return fmt.Errorf("global pass: %w", err)
	}
	prog.step()

	e.state = LocalPass
	nthreads := min(e.maxWorkers, n)
	k := n / nthreads
	errs := make([]error, nthreads)

	var wg sync.WaitGroup
	for j := 0; j < nthreads; j++ {
		first := j * k
		last := first + k
		if j == nthreads-1 {
			last = n
		}

		wg.Add(1)
		go func(j, first, last int) {
			defer wg.Done()
			errs[j] = e.processChunk(first, last, prog)
		}(j, first, last)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		e.state = Failed
		return fmt.Errorf("local pass: %w", err)
	}
	e.state = Done
	return nil
}

func (e *Engine) validate() error {
	if e.data == nil || e.field == nil {
		return fmt.Errorf("%w: data and field are required", ErrInvalidData)
	}
	if err := e.data.Validate(); err != nil {
		return err
	}
	if e.field.BlockDimensions() != e.data.WindowDimStart {
		return fmt.Errorf("%w: field blocks are %v, window is %v",
			ErrInvalidData, e.field.BlockDimensions(), e.data.WindowDimStart)
	}
	if e.field.VolumeDimensions() != e.data.Volume1.Dimensions() {
		return fmt.Errorf("%w: field tiles %v, volumes are %v",
			ErrInvalidData, e.field.VolumeDimensions(), e.data.Volume1.Dimensions())
	}
	return nil
}

// initializeField correlates the two whole volumes and seeds every block
// with the result.
func (e *Engine) initializeField() error {
	dims := e.data.Volume1.Dimensions()
	win := window.New(dims, e.data.WindowType)

	v1, err := spectral.PadToPowerOfTwo(win.Apodize(e.data.Volume1), volume.AxisZ)
	if err != nil {
		return err
	}
	v2, err := spectral.PadToPowerOfTwo(win.Apodize(e.data.Volume2), volume.AxisZ)
	if err != nil {
		return err
	}

	co := correlation.NewPhaseCorrelation3D(v1.Dimensions())
	global, err := co.Correlate(v1, v2, true, e.data.PValueLevel)
	if err != nil {
		return err
	}

	e.global = global
	e.field.Initialize(global)
	return nil
}

// processChunk correlates blocks [from, to). The window and the correlator
// are built once and reused for every block of the chunk.
func (e *Engine) processChunk(from, to int, prog *progress) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("blocks [%d, %d): %v", from, to, r)
		}
	}()

	dims := e.data.WindowDimStart
	win := window.New(dims, e.data.WindowType)
	corr := correlation.NewPhaseCorrelation3D(dims)

	for j := from; j < to; j++ {
		p1, err := e.field.Position(j)
		if err != nil {
			return err
		}
		v1 := win.ApodizeSubVolume(p1, e.data.Volume1)

		p2, err := e.field.TranslatedPosition(j)
		if err != nil {
			return err
		}
		v2 := win.ApodizeSubVolume(p2, e.data.Volume2)

		local, err := corr.Correlate(v1, v2, true, e.data.PValueLevel)
		if err != nil {
			return fmt.Errorf("block %d at %v: %w", j, p1, err)
		}

		seed, err := e.field.Displacement(j)
		if err != nil {
			return err
		}
		if err := e.field.Update(j, e.resolve(p2.Sub(p1), seed, local)); err != nil {
			return err
		}
		prog.step()
	}
	return nil
}

// resolve turns a block measurement, taken between blocks offset by the
// integer seed, into the displacement stored for the block.
func (e *Engine) resolve(offset volume.Point3D, seed, local correlation.Displacement) correlation.Displacement {
	if !local.Reliable && e.fallback == FallbackToSeed {
		seed.Quality = local.Quality
		seed.PValue = local.PValue
		seed.Reliable = false
		return seed
	}
	return local.Translated(float64(offset.X), float64(offset.Y), float64(offset.Z))
}
