// Package filter implements the per-axis Bayesian estimator: four
// independent scalar Gaussians advanced by predict and update steps.
//
// Axes are never coupled. Cross-axis correlation is not modeled.
package filter

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Gaussian is a scalar belief summarized by mean and variance.
type Gaussian struct {
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
}

// Predict adds process noise to a prior. Means and variances add.
func Predict(prior, noise Gaussian) Gaussian {
	return Gaussian{
		Mean:     prior.Mean + noise.Mean,
		Variance: prior.Variance + noise.Variance,
	}
}

// Update fuses a predicted belief with a measurement likelihood using the
// Gaussian product rule. Two certain beliefs (both variances zero) fuse to
// the midpoint of their means with zero variance.
func Update(predicted, measurement Gaussian) Gaussian {
	sum := predicted.Variance + measurement.Variance
	if sum == 0 {
		return Gaussian{Mean: (predicted.Mean + measurement.Mean) / 2}
	}
	return Gaussian{
		Mean:     (predicted.Variance*measurement.Mean + measurement.Variance*predicted.Mean) / sum,
		Variance: predicted.Variance * measurement.Variance / sum,
	}
}

// StdDev returns the standard deviation.
func (g Gaussian) StdDev() float64 {
	return math.Sqrt(g.Variance)
}

// Normal returns the belief as a gonum distribution.
func (g Gaussian) Normal() distuv.Normal {
	return distuv.Normal{Mu: g.Mean, Sigma: g.StdDev()}
}

// Interval returns the central interval holding probability p (0 < p < 1).
// A zero-variance belief collapses to its mean.
func (g Gaussian) Interval(p float64) (lo, hi float64) {
	if g.Variance == 0 {
		return g.Mean, g.Mean
	}
	n := g.Normal()
	tail := (1 - p) / 2
	return n.Quantile(tail), n.Quantile(1 - tail)
}
