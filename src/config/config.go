// Package config holds the constraint configuration of a tree fit.
package config

import (
	"math"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/belle2/basf2-sub109/src/pdg"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid constraint configuration")

const (
	DefaultPrecision              = 0.01
	DefaultMaxIterations          = 10
	DefaultResonanceCTauThreshold = 1e-5 // cm
)

// BeamSpot constrains the head of the tree to originate from the
// interaction region.
type BeamSpot struct {
	Enabled    bool
	Position   r3.Vec
	Covariance [3][3]float64
}

// CovMatrix returns the covariance as a gonum matrix.
func (b BeamSpot) CovMatrix() *mat.SymDense {
	s := mat.NewSymDense(3, nil)
	for i := range 3 {
		for j := i; j < 3; j++ {
			s.SetSym(i, j, b.Covariance[i][j])
		}
	}
	return s
}

// ConstraintConfiguration selects the constraints applied by a fit and its
// global options. It is a value: FitManager keeps its own copy.
type ConstraintConfiguration struct {
	// Precision is the chi-square change below which the fit has converged.
	Precision     float64
	MaxIterations int

	UpdateDaughters bool
	ForceP4Sum      bool

	// UseReferencing linearises each pass around the previous pass result
	// instead of the running estimate.
	UseReferencing bool

	// UseExistingVertex seeds composites from a vertex set by an earlier fit.
	UseExistingVertex bool

	// Absolute PDG codes.
	MassConstraints      []int
	LifetimeConstraints  []int
	TreatAsResonance     []int
	ConversionConstraint bool

	UseResonanceWidths     bool
	ResonanceCTauThreshold float64

	BeamSpot BeamSpot

	// ConfidenceLevel below which batch selection drops a candidate.
	// Negative keeps everything.
	ConfidenceLevel float64
}

// Default returns the standard configuration: kinematic and geometric
// constraints only, converging at a chi-square change of 0.01.
func Default() ConstraintConfiguration {
	return ConstraintConfiguration{
		Precision:              DefaultPrecision,
		MaxIterations:          DefaultMaxIterations,
		ForceP4Sum:             true,
		UseExistingVertex:      true,
		ConversionConstraint:   true,
		ResonanceCTauThreshold: DefaultResonanceCTauThreshold,
		ConfidenceLevel:        -1,
	}
}

// Clone returns a copy that shares no slices with c.
func (c ConstraintConfiguration) Clone() ConstraintConfiguration {
	out := c
	out.MassConstraints = slices.Clone(c.MassConstraints)
	out.LifetimeConstraints = slices.Clone(c.LifetimeConstraints)
	out.TreatAsResonance = slices.Clone(c.TreatAsResonance)
	return out
}

func abs(code int) int {
	if code < 0 {
		return -code
	}
	return code
}

// HasMassConstraint reports whether particles of code (either charge
// conjugate) get a mass constraint.
func (c ConstraintConfiguration) HasMassConstraint(code int) bool {
	return slices.Contains(c.MassConstraints, abs(code))
}

func (c ConstraintConfiguration) HasLifetimeConstraint(code int) bool {
	return slices.Contains(c.LifetimeConstraints, abs(code))
}

// IsResonance decides whether a composite with this code and nominal decay
// length shares its mother's vertex.
func (c ConstraintConfiguration) IsResonance(code int, ctau float64) bool {
	if slices.Contains(c.TreatAsResonance, abs(code)) {
		return true
	}
	return ctau < c.ResonanceCTauThreshold
}

// Validate checks ranges and that every listed code is known.
func (c ConstraintConfiguration) Validate() error {
	if !(c.Precision > 0) || math.IsInf(c.Precision, 0) {
		return errors.Wrapf(ErrInvalid, "precision must be positive, got %v", c.Precision)
	}
	if c.MaxIterations < 0 {
		return errors.Wrapf(ErrInvalid, "max iterations must not be negative, got %d", c.MaxIterations)
	}
	if c.ResonanceCTauThreshold < 0 {
		return errors.Wrapf(ErrInvalid, "resonance ctau threshold must not be negative, got %v", c.ResonanceCTauThreshold)
	}
	if c.ConfidenceLevel > 1 {
		return errors.Wrapf(ErrInvalid, "confidence level must not exceed 1, got %v", c.ConfidenceLevel)
	}
	for _, list := range [][]int{c.MassConstraints, c.LifetimeConstraints} {
		for _, code := range list {
			if _, ok := pdg.Lookup(code); !ok {
				return errors.Wrapf(ErrInvalid, "unknown particle code %d", code)
			}
		}
	}
	for _, code := range c.LifetimeConstraints {
		if p, _ := pdg.Lookup(code); p.IsStable() {
			return errors.Wrapf(ErrInvalid, "lifetime constraint on stable particle %s", p.Name)
		}
	}
	if c.BeamSpot.Enabled {
		cov := c.BeamSpot.CovMatrix()
		for i := range 3 {
			for j := range 3 {
				if c.BeamSpot.Covariance[i][j] != c.BeamSpot.Covariance[j][i] {
					return errors.Wrap(ErrInvalid, "beam spot covariance is not symmetric")
				}
			}
		}
		var chol mat.Cholesky
		if !chol.Factorize(cov) {
			return errors.Wrap(ErrInvalid, "beam spot covariance is not positive definite")
		}
	}
	return nil
}
