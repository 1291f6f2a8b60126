package filter

import (
	"fmt"
	"math"
)

// Axis indexes the four estimated dimensions.
type Axis int

const (
	X Axis = iota
	Y
	Z
	Heading

	NumAxes = 4
)

func (a Axis) String() string {
	switch a {
	case X:
		return "x"
	case Y:
		return "y"
	case Z:
		return "z"
	case Heading:
		return "heading"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// HeadingMode selects how heading is fused.
type HeadingMode string

const (
	// HeadingLinear fuses heading as a plain scalar. Near ±π the estimate
	// can jump across the discontinuity instead of wrapping.
	HeadingLinear HeadingMode = "linear"
	// HeadingWrapped is the alternative mode: the measurement is unwrapped
	// to within π of the prediction and the posterior is normalized to
	// (-π, π].
	HeadingWrapped HeadingMode = "wrapped"
)

// Params is the fixed noise model. Positional axes share one prior and one
// process variance, heading has its own; the measurement variance is the
// same on every axis.
type Params struct {
	PositionPriorVariance   float64
	HeadingPriorVariance    float64
	PositionProcessVariance float64
	HeadingProcessVariance  float64
	MeasurementVariance     float64
	HeadingMode             HeadingMode
}

// DefaultParams returns prior sigma 100 / 10, process sigma 2 / 0.5 and
// measurement variance 0.05.
func DefaultParams() Params {
	return Params{
		PositionPriorVariance:   100 * 100,
		HeadingPriorVariance:    10 * 10,
		PositionProcessVariance: 2 * 2,
		HeadingProcessVariance:  0.5 * 0.5,
		MeasurementVariance:     0.05,
		HeadingMode:             HeadingLinear,
	}
}

// Validate rejects negative or non-finite variances. Priors must be positive.
func (p Params) Validate() error {
	for name, v := range map[string]float64{
		"position prior variance":   p.PositionPriorVariance,
		"heading prior variance":    p.HeadingPriorVariance,
		"position process variance": p.PositionProcessVariance,
		"heading process variance":  p.HeadingProcessVariance,
		"measurement variance":      p.MeasurementVariance,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("filter: %s must be finite and >= 0, got %v", name, v)
		}
	}
	if p.PositionPriorVariance == 0 || p.HeadingPriorVariance == 0 {
		return fmt.Errorf("filter: prior variances must be positive")
	}
	switch p.HeadingMode {
	case "", HeadingLinear, HeadingWrapped:
	default:
		return fmt.Errorf("filter: unknown heading mode %q", p.HeadingMode)
	}
	return nil
}

func (p Params) prior(a Axis) float64 {
	if a == Heading {
		return p.HeadingPriorVariance
	}
	return p.PositionPriorVariance
}

func (p Params) process(a Axis) Gaussian {
	if a == Heading {
		return Gaussian{Variance: p.HeadingProcessVariance}
	}
	return Gaussian{Variance: p.PositionProcessVariance}
}

// Observation is one synchronized measurement of all four axes.
type Observation [NumAxes]float64

// State is a copy of the filter's beliefs.
type State struct {
	Beliefs     [NumAxes]Gaussian `json:"beliefs"`
	Initialized bool              `json:"initialized"`
}

// Filter holds four independent scalar beliefs. It is not safe for
// concurrent use; each Step depends on the previous posterior.
type Filter struct {
	params Params
	state  State
}

// New returns an uninitialized filter.
func New(params Params) (*Filter, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.HeadingMode == "" {
		params.HeadingMode = HeadingLinear
	}
	return &Filter{params: params}, nil
}

// State returns a snapshot of the beliefs.
func (f *Filter) State() State { return f.state }

// Step consumes one observation. The first call seeds every axis with the
// observed value and its prior variance and runs no arithmetic. Later calls
// predict then update each axis independently.
func (f *Filter) Step(obs Observation) State {
	if !f.state.Initialized {
		for a := Axis(0); a < NumAxes; a++ {
			f.state.Beliefs[a] = Gaussian{Mean: obs[a], Variance: f.params.prior(a)}
		}
		f.state.Initialized = true
		return f.state
	}

	for a := Axis(0); a < NumAxes; a++ {
		predicted := Predict(f.state.Beliefs[a], f.params.process(a))
		z := obs[a]
		if a == Heading && f.params.HeadingMode == HeadingWrapped {
			z = predicted.Mean + wrap(z-predicted.Mean)
		}
		posterior := Update(predicted, Gaussian{Mean: z, Variance: f.params.MeasurementVariance})
		if a == Heading && f.params.HeadingMode == HeadingWrapped {
			posterior.Mean = wrap(posterior.Mean)
		}
		f.state.Beliefs[a] = posterior
	}
	return f.state
}

// Reset returns the filter to the uninitialized state.
func (f *Filter) Reset() {
	f.state = State{}
}

// wrap normalizes an angle to (-π, π].
func wrap(a float64) float64 {
	a = math.Remainder(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
