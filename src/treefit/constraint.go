package treefit

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	log "github.com/sirupsen/logrus"

	"github.com/belle2/basf2-sub109/src/errcode"
	"github.com/belle2/basf2-sub109/src/fitparams"
	"github.com/belle2/basf2-sub109/src/kalman"
	"github.com/belle2/basf2-sub109/src/projection"
)

// Constraint is one measurement or relation applied to the state by a
// Kalman update.
type Constraint struct {
	node  ParticleBase
	typ   ConstraintType
	depth int
	dim   int
	// maxNIter bounds re-linearisation of non-linear constraints within a
	// single pass.
	maxNIter int
}

func newConstraint(n ParticleBase, typ ConstraintType, depth, dim, maxNIter int) Constraint {
	return Constraint{node: n, typ: typ, depth: depth, dim: dim, maxNIter: max(maxNIter, 1)}
}

func (c Constraint) Node() ParticleBase   { return c.node }
func (c Constraint) Type() ConstraintType { return c.typ }
func (c Constraint) Depth() int           { return c.depth }
func (c Constraint) Dim() int             { return c.dim }
func (c Constraint) MaxNIter() int        { return c.maxNIter }

func (c Constraint) String() string {
	return fmt.Sprintf("%s(%s, depth=%d, dim=%d)", c.typ, c.node.Name(), c.depth, c.dim)
}

// sortConstraints orders by type, then deeper (more negative depth) first.
// The sort is stable so equal keys keep insertion order.
func sortConstraints(list []Constraint) {
	slices.SortStableFunc(list, func(a, b Constraint) int {
		if c := cmp.Compare(a.typ, b.typ); c != 0 {
			return c
		}
		return cmp.Compare(a.depth, b.depth)
	})
}

// project linearises the constraint at the state of fp.
func (c Constraint) project(fp *fitparams.FitParams, p *projection.Projection) errcode.ErrCode {
	p.Reset()
	return c.node.project(c.typ, fp, p)
}

// filter absorbs the constraint into fp. When ref is not nil the first
// linearisation happens at ref instead of at the running estimate. On
// failure fp is left as it was.
func (c Constraint) filter(fp, ref *fitparams.FitParams, logger *log.Entry) errcode.ErrCode {
	pred := fp.Clone()
	if ref != nil {
		fp.Par().CopyVec(ref.Par())
	}

	p := projection.New(fp.Dim(), c.dim)
	var k kalman.Calculator
	var ec errcode.ErrCode
	chi2, prev := 0.0, 0.0
	for iter := 0; iter < c.maxNIter; iter++ {
		if ec |= c.project(fp, p); ec.Failure() {
			break
		}
		if ec |= k.Init(p, pred); ec.Failure() {
			break
		}
		k.UpdateParFrom(pred.Par(), fp.Par(), fp)
		chi2 = k.Chi2()
		if math.IsNaN(chi2) || math.IsInf(chi2, 0) {
			ec |= errcode.DivergingConstraint
			break
		}
		if iter > 0 && math.Abs(chi2-prev) < constraintChi2Tol {
			break
		}
		prev = chi2
	}
	if !ec.Failure() {
		ec |= k.UpdateCov(fp)
	}
	if ec.Failure() {
		logger.WithFields(log.Fields{
			"constraint": c.String(),
			"error":      ec.String(),
		}).Debug("constraint rejected")
		fp.CopyFrom(pred)
		return ec
	}
	fp.AddChi2(chi2, c.dim)
	return errcode.Success
}
