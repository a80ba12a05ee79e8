package treefit

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/belle2/basf2-sub109/src/config"
	"github.com/belle2/basf2-sub109/src/errcode"
	"github.com/belle2/basf2-sub109/src/fitparams"
	"github.com/belle2/basf2-sub109/src/particle"
	"github.com/belle2/basf2-sub109/src/pdg"
	"github.com/belle2/basf2-sub109/src/projection"
)

// scriptedVar is large enough that the scripted constraint leaves the state
// where it is and only adds its chi-square.
const scriptedVar = 1e24

type step struct {
	chi2     float64
	ec       errcode.ErrCode
	singular bool
}

// scriptedNode replays one chi-square contribution per pass on top of the
// node it wraps.
type scriptedNode struct {
	ParticleBase
	steps []step
	calls int
	seen  [][]float64
}

func (n *scriptedNode) project(_ ConstraintType, fp *fitparams.FitParams, p *projection.Projection) errcode.ErrCode {
	n.seen = append(n.seen, fp.SubPar(0, fp.Dim()))
	s := n.steps[min(n.calls, len(n.steps)-1)]
	n.calls++
	if s.ec.Failure() {
		return s.ec
	}
	pos := n.PosIndex()
	if s.singular {
		p.SetH(0, pos, 1e-200)
		return errcode.Success
	}
	p.SetR(0, math.Sqrt(s.chi2*scriptedVar))
	p.SetH(0, pos, 1)
	p.SetV(0, 0, scriptedVar)
	return errcode.Success
}

func scriptedFit(t *testing.T, steps ...step) (*FitManager, *scriptedNode) {
	t.Helper()
	fm := NewFitManager(threeProng(t), config.Default())
	require.NotNil(t, fm.DecayChain())
	sn := &scriptedNode{ParticleBase: fm.DecayChain().Head(), steps: steps}
	fm.chain.constraints = append([]Constraint{newConstraint(sn, MassConstraint, 0, 1, 1)}, fm.chain.constraints...)
	return fm, sn
}

func TestFitSlowDivergence(t *testing.T) {
	fm, _ := scriptedFit(t, step{chi2: 1}, step{chi2: 2}, step{chi2: 3}, step{chi2: 4})
	assert.False(t, fm.Fit())
	assert.Equal(t, NonConverged, fm.Status())
	assert.True(t, fm.ErrCode().Has(errcode.SlowDivergingFit))
	assert.True(t, errors.Is(fm.Err(), errcode.ErrSlowDivergingFit))
	assert.Equal(t, 3, fm.Iterations())
	assert.InDelta(t, 3, fm.Chi2(), 1e-3)
}

func TestFitFastDivergence(t *testing.T) {
	fm, _ := scriptedFit(t, step{chi2: 1}, step{chi2: 1.5}, step{chi2: 100})
	assert.False(t, fm.Fit())
	assert.Equal(t, Failed, fm.Status())
	assert.True(t, fm.ErrCode().Has(errcode.FastDivergingFit))
	assert.Equal(t, 2, fm.Iterations())
	assert.InDelta(t, 1.5, fm.Chi2(), 1e-3)
}

func TestFitNumericalFailureRestoresPreviousPass(t *testing.T) {
	tests := []struct {
		name string
		last step
		want errcode.ErrCode
		err  error
	}{
		{"BadDistance", step{ec: errcode.BadDistance}, errcode.BadDistance, errcode.ErrBadDistance},
		{"Singular", step{singular: true}, errcode.InversionError, errcode.ErrInversion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm, sn := scriptedFit(t, step{chi2: 5}, step{chi2: 1}, tt.last)
			assert.False(t, fm.Fit())
			assert.Equal(t, Failed, fm.Status())
			assert.True(t, fm.ErrCode().Has(tt.want), fm.ErrCode().String())
			assert.True(t, errors.Is(fm.Err(), tt.err))
			assert.Equal(t, 2, fm.Iterations())
			assert.InDelta(t, 1, fm.Chi2(), 1e-3)

			// the third pass saw the state of the second; the fit ends there
			require.Len(t, sn.seen, 3)
			assert.InDeltaSlice(t, sn.seen[2], fm.FitParams().SubPar(0, fm.FitParams().Dim()), 1e-12)
		})
	}
}

// Same scenario as TestFitShiftedCurvature, linearised around the previous
// pass.
func TestFitUseReferencing(t *testing.T) {
	cfg := config.Default()
	cfg.MassConstraints = []int{411}
	cfg.UseReferencing = true
	fm := NewFitManager(symmetricThreeProng(t, 5), cfg)

	require.True(t, fm.Fit(), "status %s: %v", fm.Status(), fm.Err())
	assert.True(t, fm.Config().UseReferencing)
	assert.Equal(t, 4, fm.NDF())
	assert.InEpsilon(t, 25.0/3, fm.Chi2(), 0.1)
}

func TestFitLifetimeConstraint(t *testing.T) {
	b, _, _ := bToJpsiKs(t)
	free := NewFitManager(b, config.Default())
	require.True(t, free.Fit())

	b, _, ks := bToJpsiKs(t)
	cfg := config.Default()
	cfg.LifetimeConstraints = []int{310}
	fm := NewFitManager(b, cfg)
	require.True(t, fm.Fit(), "status %s: %v", fm.Status(), fm.Err())
	assert.Equal(t, free.NDF()+1, fm.NDF())
	assert.GreaterOrEqual(t, fm.Chi2(), free.Chi2())

	ksNode := fm.DecayChain().Locate(ks)
	var found bool
	for _, c := range fm.DecayChain().Constraints() {
		if c.Type() == LifetimeConstraint {
			assert.Equal(t, ksNode, c.Node())
			found = true
		}
	}
	assert.True(t, found)

	// the flight length sits where the tracks put it, so the constraint
	// contributes (tau - tau_nominal)^2 / tau_nominal^2
	info, ok := pdg.Lookup(310)
	require.True(t, ok)
	nominal := info.CTau / info.Mass
	tau := ksFlight / r3.Norm(r3.Add(ksPiPlus, ksPiMinus))
	want := (tau - nominal) * (tau - nominal) / (nominal * nominal)
	assert.InDelta(t, want, fm.Chi2()-free.Chi2(), 0.01)
	assert.InDelta(t, tau, fm.FitParams().At(ksNode.TauIndex()), 1e-3)
}

func TestForceP4SumFailureKeepsFittedState(t *testing.T) {
	v := r3.Vec{X: 0.05, Y: 0.02, Z: 0.1}
	e := 0.5
	m := pdg.Mass(111)
	half := math.Acos(1-m*m/(2*e*e)) / 2
	g1 := particle.NewPhoton(exactCluster(v, r3.Vec{X: e * math.Cos(half), Y: e * math.Sin(half)}, 150, e))
	g2 := particle.NewPhoton(exactCluster(v, r3.Vec{X: e * math.Cos(half), Y: -e * math.Sin(half)}, 150, e))
	pi0 := particle.NewComposite(111, g1, g2)
	d0 := particle.NewComposite(421,
		exactTrack(t, -321, v, r3.Vec{X: 0.7, Y: -0.4, Z: 0.3}),
		exactTrack(t, 211, v, r3.Vec{X: -0.5, Y: 0.9, Z: 0.2}),
		pi0,
	)
	fm := NewFitManager(d0, config.Default())
	require.True(t, fm.Fit(), "status %s: %v", fm.Status(), fm.Err())

	fp := fm.FitParams()
	setVec3(fp, fm.DecayChain().Locate(g1).MomIndex(), r3.Vec{})
	want := fp.SubPar(0, fp.Dim())

	fm.forceP4Sum()
	assert.Equal(t, Failed, fm.Status())
	assert.True(t, fm.ErrCode().Has(errcode.BadDistance))
	assert.True(t, errors.Is(fm.Err(), errcode.ErrBadDistance))
	assert.Equal(t, want, fp.SubPar(0, fp.Dim()))
}
