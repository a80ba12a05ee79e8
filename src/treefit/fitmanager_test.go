package treefit

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/belle2/basf2-sub109/src/config"
	"github.com/belle2/basf2-sub109/src/matrix"
	"github.com/belle2/basf2-sub109/src/particle"
	"github.com/belle2/basf2-sub109/src/pdg"
)

type fakeRecorder struct {
	statuses []string
	ndf      []int
}

func (r *fakeRecorder) ObserveFit(status string, _ int, _ float64, ndf int, _ float64) {
	r.statuses = append(r.statuses, status)
	r.ndf = append(r.ndf, ndf)
}

func TestFitExactThreeProng(t *testing.T) {
	rec := &fakeRecorder{}
	fm := NewFitManager(threeProng(t), config.Default(), WithRecorder(rec))
	require.Equal(t, UnFitted, fm.Status())

	require.True(t, fm.Fit(), "status %s: %v", fm.Status(), fm.Err())
	assert.Equal(t, Success, fm.Status())
	assert.Equal(t, 1, fm.Iterations())
	assert.Equal(t, 3, fm.NDF())
	assert.InDelta(t, 0, fm.Chi2(), 1e-4)
	assert.Greater(t, fm.PValue(), 0.99)
	assert.NoError(t, fm.Err())
	assert.Equal(t, []string{"Success"}, rec.statuses)
	assert.Equal(t, []int{3}, rec.ndf)

	pos := vec3(fm.FitParams(), fm.DecayChain().Head().PosIndex())
	assert.InDelta(t, 0, r3.Norm(r3.Sub(pos, dplusVertex)), 1e-4)
}

// With a mass constraint and the three pions symmetric in the rest frame,
// each pion contributes equally to the mass: a 5 sigma shift in one
// curvature is shared three ways and gives chi2 = 25/3.
func TestFitShiftedCurvature(t *testing.T) {
	cfg := config.Default()
	cfg.MassConstraints = []int{411}
	fm := NewFitManager(symmetricThreeProng(t, 5), cfg)

	require.True(t, fm.Fit(), "status %s: %v", fm.Status(), fm.Err())
	assert.Equal(t, 4, fm.NDF())
	assert.InEpsilon(t, 25.0/3, fm.Chi2(), 0.1)
}

func TestFitWithoutMassConstraintAbsorbsCurvature(t *testing.T) {
	fm := NewFitManager(symmetricThreeProng(t, 5), config.Default())
	require.True(t, fm.Fit())
	assert.InDelta(t, 0, fm.Chi2(), 1e-3)
}

func TestFitBadInputLeavesStateUntouched(t *testing.T) {
	head := particle.NewComposite(411,
		exactTrack(t, 211, dplusVertex, r3.Vec{X: 1, Y: 0.2}),
		particle.NewComposite(310),
	)
	rec := &fakeRecorder{}
	fm := NewFitManager(head, config.Default(), WithRecorder(rec))

	assert.Equal(t, BadInput, fm.Status())
	assert.Nil(t, fm.FitParams())
	assert.Nil(t, fm.DecayChain())
	assert.False(t, fm.Fit())
	assert.Equal(t, BadInput, fm.Status())
	assert.True(t, errors.Is(fm.Err(), ErrBadInput))
	assert.False(t, fm.UpdateTree())
	assert.Empty(t, rec.statuses)
}

func TestFitInvalidConfiguration(t *testing.T) {
	fm := NewFitManager(threeProng(t), config.Default(), WithPrecision(-1))
	assert.Equal(t, BadInput, fm.Status())
	assert.True(t, errors.Is(fm.Err(), config.ErrInvalid))
}

func TestFitIterationCapZero(t *testing.T) {
	b, _, _ := bToJpsiKs(t)
	fm := NewFitManager(b, config.Default(), WithMaxIterations(0))
	assert.False(t, fm.Fit())
	assert.Equal(t, NonConverged, fm.Status())
	assert.Equal(t, 0, fm.Iterations())
	assert.False(t, fm.UpdateTree())
}

func TestFitIdempotent(t *testing.T) {
	cfg := config.Default()
	cfg.MassConstraints = []int{411}
	fm := NewFitManager(symmetricThreeProng(t, 3), cfg)
	require.True(t, fm.Fit())
	first := fm.Chi2()
	require.True(t, fm.Fit())
	assert.Less(t, math.Abs(fm.Chi2()-first), cfg.Precision)
}

func TestFitResonanceAndFlight(t *testing.T) {
	b, jpsi, ks := bToJpsiKs(t)
	fm := NewFitManager(b, config.Default(), WithUpdateDaughters(true))
	require.True(t, fm.Fit(), "status %s: %v", fm.Status(), fm.Err())
	assert.InDelta(t, 0, fm.Chi2(), 1e-3)

	ksNode := fm.DecayChain().Locate(ks)
	l, lerr := fm.GetDecayLength(ksNode)
	assert.InDelta(t, ksFlight, l, 1e-3)
	assert.Greater(t, lerr, 0.0)

	ltime, lterr := fm.GetLifeTime(ksNode)
	pks := r3.Add(ksPiPlus, ksPiMinus)
	mpi := pdg.Mass(211)
	eks := math.Sqrt(r3.Dot(ksPiPlus, ksPiPlus)+mpi*mpi) + math.Sqrt(r3.Dot(ksPiMinus, ksPiMinus)+mpi*mpi)
	mks := math.Sqrt(eks*eks - r3.Dot(pks, pks))
	assert.InEpsilon(t, ksFlight*mks/r3.Norm(pks)/speedOfLight, ltime, 1e-3)
	assert.Greater(t, lterr, 0.0)

	require.True(t, fm.UpdateTree())
	assert.InDelta(t, 0, r3.Norm(r3.Sub(b.Vertex(), bVertex)), 1e-3)
	assert.Equal(t, b.Vertex(), jpsi.Vertex(), "resonance shares the mother vertex")
	got, ok := ks.ExtraInfo("decayLength")
	assert.True(t, ok)
	assert.InDelta(t, ksFlight, got, 1e-3)
	_, ok = b.ExtraInfo("chiSquared")
	assert.True(t, ok)
	assert.GreaterOrEqual(t, b.PValue(), 0.0)
}

func TestFitForcesFourMomentumSum(t *testing.T) {
	b, _, _ := bToJpsiKs(t)
	fm := NewFitManager(b, config.Default())
	require.True(t, fm.Fit())

	fp := fm.FitParams()
	for _, n := range fm.DecayChain().Nodes() {
		if n.Kind() != KindInternalParticle && n.Kind() != KindResonance {
			continue
		}
		var sum r3.Vec
		var e float64
		for _, d := range n.Daughters() {
			sum = r3.Add(sum, momentumOf(d, fp))
			e += energyOf(d, fp)
		}
		assert.InDelta(t, 0, r3.Norm(r3.Sub(sum, momentumOf(n, fp))), 1e-9, n.Name())
		assert.InDelta(t, e, energyOf(n, fp), 1e-9, n.Name())
	}
}

func TestFitCovarianceSymmetricPSD(t *testing.T) {
	cfg := config.Default()
	cfg.MassConstraints = []int{411}
	fm := NewFitManager(symmetricThreeProng(t, 2), cfg)
	require.True(t, fm.Fit())

	for _, n := range fm.DecayChain().Nodes() {
		cov := fm.GetCovFromPB(n)
		require.Equal(t, particle.CovDim, cov.SymmetricDim())
		assert.True(t, matrix.IsSymmetric(cov, 1e-12), n.Name())
		assert.True(t, matrix.IsPSD(cov, 1e-9), n.Name())
	}
}

func TestFitPhotons(t *testing.T) {
	v := r3.Vec{X: 0.05, Y: 0.02, Z: 0.1}
	e := 0.5
	m := pdg.Mass(111)
	half := math.Acos(1-m*m/(2*e*e)) / 2
	g1 := r3.Vec{X: e * math.Cos(half), Y: e * math.Sin(half)}
	g2 := r3.Vec{X: e * math.Cos(half), Y: -e * math.Sin(half)}

	pi0 := particle.NewComposite(111,
		particle.NewPhoton(exactCluster(v, g1, 150, e)),
		particle.NewPhoton(exactCluster(v, g2, 150, e)),
	)
	d0 := particle.NewComposite(421,
		exactTrack(t, -321, v, r3.Vec{X: 0.7, Y: -0.4, Z: 0.3}),
		exactTrack(t, 211, v, r3.Vec{X: -0.5, Y: 0.9, Z: 0.2}),
		pi0,
	)
	cfg := config.Default()
	cfg.MassConstraints = []int{111}
	fm := NewFitManager(d0, cfg)
	require.True(t, fm.Fit(), "status %s: %v", fm.Status(), fm.Err())

	assert.Equal(t, KindResonance, fm.DecayChain().Locate(pi0).Kind())
	assert.Equal(t, 2, fm.NDF())
	assert.InDelta(t, 0, fm.Chi2(), 1e-3)

	fp := fm.FitParams()
	n := fm.DecayChain().Locate(pi0)
	p := momentumOf(n, fp)
	mass := math.Sqrt(math.Max(energyOf(n, fp)*energyOf(n, fp)-r3.Dot(p, p), 0))
	assert.InDelta(t, m, mass, 1e-4)
}

func TestFitKlong(t *testing.T) {
	pkl := r3.Vec{X: 0.3, Y: -0.9, Z: 0.4}
	mkl := pdg.Mass(130)
	ekl := math.Sqrt(r3.Dot(pkl, pkl) + mkl*mkl)
	jpsi := particle.NewComposite(443,
		exactTrack(t, -13, bVertex, jpsiMuPlus),
		exactTrack(t, 13, bVertex, jpsiMuMinus),
	)
	kl := particle.NewKlong(exactCluster(bVertex, pkl, 200, ekl), particle.KLMCluster)
	b := particle.NewComposite(511, jpsi, kl)

	fm := NewFitManager(b, config.Default())
	require.True(t, fm.Fit(), "status %s: %v", fm.Status(), fm.Err())
	assert.Equal(t, KindRecoKlong, fm.DecayChain().Locate(kl).Kind())
	assert.Equal(t, 0, fm.NDF())
	assert.Zero(t, fm.PValue())

	dir := r3.Unit(momentumOf(fm.DecayChain().Locate(kl), fm.FitParams()))
	assert.InDelta(t, 1, r3.Dot(dir, r3.Unit(pkl)), 1e-6)
}

func TestFitBeamSpot(t *testing.T) {
	beam := r3.Vec{X: 0.01, Y: -0.02, Z: 0.05}
	pk := r3.Vec{X: 0.7, Y: -0.4, Z: 0.3}
	ppi := r3.Vec{X: -0.2, Y: 0.9, Z: 0.2}
	flight := 0.3
	v := r3.Add(beam, r3.Scale(flight, r3.Unit(r3.Add(pk, ppi))))
	d0 := particle.NewComposite(421,
		exactTrack(t, -321, v, pk),
		exactTrack(t, 211, v, ppi),
	)

	cfg := config.Default()
	cfg.BeamSpot = config.BeamSpot{
		Enabled:    true,
		Position:   beam,
		Covariance: [3][3]float64{{1e-6}, {0, 1e-7}, {0, 0, 1e-4}},
	}
	fm := NewFitManager(d0, cfg)
	require.True(t, fm.Fit(), "status %s: %v", fm.Status(), fm.Err())

	dc := fm.DecayChain()
	assert.Equal(t, KindInteractionPoint, dc.Root().Kind())
	assert.Equal(t, "origin", dc.Root().Name())
	assert.InDelta(t, 0, fm.Chi2(), 1e-3)
	l, _ := fm.GetDecayLength(dc.Head())
	assert.InDelta(t, flight, l, 1e-3)

	for _, n := range dc.Nodes() {
		cov := fm.GetCovFromPB(n)
		require.Equal(t, particle.CovDim, cov.SymmetricDim(), n.Name())
		assert.True(t, matrix.IsPSD(cov, 1e-9), n.Name())
	}
	ip := fm.GetCovFromPB(dc.Root())
	assert.Zero(t, ip.At(0, 0), "the interaction point has no momentum")
	assert.Zero(t, ip.At(3, 3))
	assert.InDelta(t, 1e-6, ip.At(4, 4), 1e-6, "bounded by the beam spot")
	assert.Positive(t, ip.At(4, 4))
}

func TestFitConversion(t *testing.T) {
	v := r3.Vec{X: 3, Y: 4, Z: 1}
	u := r3.Unit(r3.Vec{X: 0.6, Y: 0.7, Z: 0.3})
	gamma := particle.NewComposite(22,
		exactTrack(t, 11, v, r3.Scale(0.3, u)),
		exactTrack(t, -11, v, r3.Scale(0.2, u)),
	)
	gamma.SetVertex(v)

	fm := NewFitManager(gamma, config.Default())
	require.True(t, fm.Fit(), "status %s: %v", fm.Status(), fm.Err())
	assert.Equal(t, KindConversion, fm.DecayChain().Head().Kind())
	assert.InDelta(t, 0, fm.Chi2(), 1e-2)
}
