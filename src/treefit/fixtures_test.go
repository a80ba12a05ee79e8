package treefit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/belle2/basf2-sub109/src/helix"
	"github.com/belle2/basf2-sub109/src/particle"
	"github.com/belle2/basf2-sub109/src/pdg"
)

const testBz = 1.5

// trackFit returns the exact helix of a particle of species code produced
// at vertex with momentum mom, with a diagonal covariance.
func trackFit(t *testing.T, code int, vertex, mom r3.Vec) particle.TrackFit {
	t.Helper()
	info, ok := pdg.Lookup(code)
	require.True(t, ok)
	h, _, _, ok := helix.FromVertex(vertex, mom, info.Charge, testBz)
	require.True(t, ok)

	cov := mat.NewSymDense(helix.NPar, nil)
	sigma := []float64{0.01, 1e-3, 1e-3 * math.Abs(h.Omega), 0.01, 1e-3}
	for i, s := range sigma {
		cov.SetSym(i, i, s*s)
	}
	return particle.TrackFit{Helix: h, Cov: cov, BField: testBz}
}

func exactTrack(t *testing.T, code int, vertex, mom r3.Vec) *particle.Particle {
	t.Helper()
	return particle.NewTrack(code, trackFit(t, code, vertex, mom))
}

// exactCluster places a deposit dist cm from vertex along mom.
func exactCluster(vertex, mom r3.Vec, dist, energy float64) particle.Cluster {
	cov := mat.NewSymDense(4, nil)
	for i := range 3 {
		cov.SetSym(i, i, 0.25)
	}
	cov.SetSym(3, 3, 0.05*energy*0.05*energy)
	return particle.Cluster{
		Position: r3.Add(vertex, r3.Scale(dist, r3.Unit(mom))),
		Energy:   energy,
		Cov:      cov,
	}
}

var dplusVertex = r3.Vec{X: 0.1, Y: -0.05, Z: 0.3}

// threeProng is D+ -> pi+ pi+ pi- from a common vertex without smearing.
func threeProng(t *testing.T) *particle.Particle {
	return particle.NewComposite(411,
		exactTrack(t, 211, dplusVertex, r3.Vec{X: 0.9, Y: 0.3, Z: 0.4}),
		exactTrack(t, 211, dplusVertex, r3.Vec{X: -0.2, Y: 1.1, Z: -0.3}),
		exactTrack(t, -211, dplusVertex, r3.Vec{X: 0.5, Y: -0.6, Z: 0.8}),
	)
}

// symmetricThreeProng is a D+ at rest decaying into three pions at 120
// degrees in the transverse plane. The first pion's curvature is shifted by
// shift standard deviations.
func symmetricThreeProng(t *testing.T, shift float64) *particle.Particle {
	e := pdg.Mass(411) / 3
	mpi := pdg.Mass(211)
	p := math.Sqrt(e*e - mpi*mpi)
	codes := []int{211, 211, -211}
	var ds []*particle.Particle
	for i, code := range codes {
		a := math.Pi/2 + float64(i)*2*math.Pi/3
		tf := trackFit(t, code, dplusVertex, r3.Vec{X: p * math.Cos(a), Y: p * math.Sin(a)})
		if i == 0 {
			tf.Helix.Omega += shift * math.Sqrt(tf.Cov.At(helix.Omega, helix.Omega))
		}
		ds = append(ds, particle.NewTrack(code, tf))
	}
	return particle.NewComposite(411, ds...)
}

var (
	bVertex     = r3.Vec{X: 0.02, Y: 0.01, Z: -0.3}
	ksFlight    = 5.0
	ksPiPlus    = r3.Vec{X: 0.6, Y: 0.3, Z: 0.2}
	ksPiMinus   = r3.Vec{X: 0.4, Y: 0.5, Z: -0.1}
	jpsiMuPlus  = r3.Vec{X: 0.8, Y: 1.2, Z: 0.5}
	jpsiMuMinus = r3.Vec{X: -1.0, Y: 0.4, Z: 0.9}
)

// bToJpsiKs is B0 -> J/psi(-> mu+ mu-) K_S0(-> pi+ pi-) with the K_S0
// flying ksFlight cm.
func bToJpsiKs(t *testing.T) (b, jpsi, ks *particle.Particle) {
	pks := r3.Add(ksPiPlus, ksPiMinus)
	ksVertex := r3.Add(bVertex, r3.Scale(ksFlight, r3.Unit(pks)))
	jpsi = particle.NewComposite(443,
		exactTrack(t, -13, bVertex, jpsiMuPlus),
		exactTrack(t, 13, bVertex, jpsiMuMinus),
	)
	ks = particle.NewComposite(310,
		exactTrack(t, 211, ksVertex, ksPiPlus),
		exactTrack(t, -211, ksVertex, ksPiMinus),
	)
	return particle.NewComposite(511, jpsi, ks), jpsi, ks
}
