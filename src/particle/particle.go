// Package particle is the analysis-level particle candidate the fitter
// reads from and writes its results back to.
package particle

import (
	"math"

	"go-hep.org/x/hep/fmom"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/belle2/basf2-sub109/src/helix"
	"github.com/belle2/basf2-sub109/src/pdg"
)

// Source tells which detector object a candidate was built from.
type Source int

const (
	Composite Source = iota
	Track
	ECLCluster
	KLMCluster
	V0
)

func (s Source) String() string {
	switch s {
	case Composite:
		return "composite"
	case Track:
		return "track"
	case ECLCluster:
		return "eclcluster"
	case KLMCluster:
		return "klmcluster"
	case V0:
		return "v0"
	}
	return "unknown"
}

// CovDim is the dimension of the momentum-vertex covariance, ordered
// (px, py, pz, E, x, y, z).
const CovDim = 7

// TrackFit is a reconstructed helix with its 5×5 covariance in
// (d0, phi0, omega, z0, tanLambda) and the field it was fitted in.
type TrackFit struct {
	Helix  helix.Helix
	Cov    *mat.SymDense
	BField float64
}

// Cluster is a calorimeter deposit with a 4×4 covariance in (x, y, z, E).
type Cluster struct {
	Position r3.Vec
	Energy   float64
	Cov      *mat.SymDense
}

type Particle struct {
	pdg    int
	source Source
	charge float64

	p4        fmom.PxPyPzE
	vertex    r3.Vec
	hasVertex bool
	cov       *mat.SymDense

	daughters []*Particle
	mother    *Particle

	track   *TrackFit
	cluster *Cluster

	pValue float64
	extra  map[string]float64
}

func newParticle(code int, src Source) *Particle {
	p := &Particle{
		pdg:    code,
		source: src,
		cov:    mat.NewSymDense(CovDim, nil),
		pValue: -1,
		extra:  make(map[string]float64),
	}
	if info, ok := pdg.Lookup(code); ok {
		p.charge = info.Charge
	}
	return p
}

// NewTrack builds a charged final-state particle from a track fit. The
// momentum and position are taken at the point of closest approach to the
// z axis.
func NewTrack(code int, tf TrackFit) *Particle {
	p := newParticle(code, Track)
	p.track = &tf
	mom := tf.Helix.Momentum(0, p.charge, tf.BField)
	p.setMomentumMass(mom, pdg.Mass(code))
	p.vertex = tf.Helix.Poca()
	return p
}

// NewPhoton builds a photon pointing from the origin to the cluster.
func NewPhoton(c Cluster) *Particle {
	p := newParticle(22, ECLCluster)
	p.cluster = &c
	dir := r3.Unit(c.Position)
	p.p4 = fmom.NewPxPyPzE(c.Energy*dir.X, c.Energy*dir.Y, c.Energy*dir.Z, c.Energy)
	return p
}

// NewKlong builds a K_L0 from a KLM or ECL cluster. The cluster energy is
// taken as the total energy.
func NewKlong(c Cluster, src Source) *Particle {
	p := newParticle(130, src)
	p.cluster = &c
	m := pdg.Mass(130)
	mag := math.Sqrt(math.Max(c.Energy*c.Energy-m*m, 0))
	p.setMomentumMass(r3.Scale(mag, r3.Unit(c.Position)), m)
	return p
}

// NewComposite combines daughters. The four-momentum is their sum.
func NewComposite(code int, daughters ...*Particle) *Particle {
	return newComposite(code, Composite, daughters)
}

// NewV0 combines a pair found by the V0 finder.
func NewV0(code int, d1, d2 *Particle) *Particle {
	return newComposite(code, V0, []*Particle{d1, d2})
}

func newComposite(code int, src Source, daughters []*Particle) *Particle {
	p := newParticle(code, src)
	var px, py, pz, e, q float64
	for _, d := range daughters {
		d.mother = p
		px += d.Px()
		py += d.Py()
		pz += d.Pz()
		e += d.E()
		q += d.charge
	}
	p.daughters = daughters
	p.p4 = fmom.NewPxPyPzE(px, py, pz, e)
	if len(daughters) > 0 {
		p.charge = q
	}
	return p
}

func (p *Particle) setMomentumMass(mom r3.Vec, m float64) {
	e := math.Sqrt(r3.Dot(mom, mom) + m*m)
	p.p4 = fmom.NewPxPyPzE(mom.X, mom.Y, mom.Z, e)
}

func (p *Particle) PDG() int         { return p.pdg }
func (p *Particle) Source() Source   { return p.source }
func (p *Particle) Charge() float64  { return p.charge }
func (p *Particle) Px() float64      { return p.p4.Px() }
func (p *Particle) Py() float64      { return p.p4.Py() }
func (p *Particle) Pz() float64      { return p.p4.Pz() }
func (p *Particle) E() float64       { return p.p4.E() }
func (p *Particle) Pt() float64      { return math.Hypot(p.p4.Px(), p.p4.Py()) }
func (p *Particle) Mass() float64    { return p.p4.M() }
func (p *Particle) P4() fmom.PxPyPzE { return p.p4 }

// Momentum is the three-momentum.
func (p *Particle) Momentum() r3.Vec {
	return r3.Vec{X: p.p4.Px(), Y: p.p4.Py(), Z: p.p4.Pz()}
}

// PDGMass is the nominal mass of the species, or the invariant mass for
// codes missing from the table.
func (p *Particle) PDGMass() float64 {
	if info, ok := pdg.Lookup(p.pdg); ok {
		return info.Mass
	}
	return p.Mass()
}

func (p *Particle) Vertex() r3.Vec { return p.vertex }

// HasVertex reports whether a production/decay vertex was set explicitly,
// for example by an earlier vertex fit.
func (p *Particle) HasVertex() bool { return p.hasVertex }

// Cov is the momentum-vertex covariance.
func (p *Particle) Cov() *mat.SymDense { return p.cov }

func (p *Particle) Daughters() []*Particle { return p.daughters }
func (p *Particle) NDaughters() int        { return len(p.daughters) }
func (p *Particle) Mother() *Particle      { return p.mother }
func (p *Particle) Track() *TrackFit       { return p.track }
func (p *Particle) Cluster() *Cluster      { return p.cluster }
func (p *Particle) PValue() float64        { return p.pValue }

// FinalStateDaughters returns the leaves below p, or p itself for a leaf.
func (p *Particle) FinalStateDaughters() []*Particle {
	if len(p.daughters) == 0 {
		return []*Particle{p}
	}
	var out []*Particle
	for _, d := range p.daughters {
		out = append(out, d.FinalStateDaughters()...)
	}
	return out
}

func (p *Particle) SetP4(px, py, pz, e float64) {
	p.p4 = fmom.NewPxPyPzE(px, py, pz, e)
}

func (p *Particle) SetVertex(v r3.Vec) {
	p.vertex = v
	p.hasVertex = true
}

// SetCov replaces the momentum-vertex covariance. It must be 7×7.
func (p *Particle) SetCov(cov *mat.SymDense) {
	if cov.SymmetricDim() != CovDim {
		panic("particle: covariance must be 7x7")
	}
	p.cov = mat.NewSymDense(CovDim, nil)
	p.cov.CopySym(cov)
}

func (p *Particle) SetPValue(v float64) { p.pValue = v }

func (p *Particle) SetExtraInfo(key string, v float64) { p.extra[key] = v }

func (p *Particle) ExtraInfo(key string) (float64, bool) {
	v, ok := p.extra[key]
	return v, ok
}
