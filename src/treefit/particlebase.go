package treefit

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/belle2/basf2-sub109/src/config"
	"github.com/belle2/basf2-sub109/src/errcode"
	"github.com/belle2/basf2-sub109/src/fitparams"
	"github.com/belle2/basf2-sub109/src/particle"
	"github.com/belle2/basf2-sub109/src/pdg"
	"github.com/belle2/basf2-sub109/src/projection"
)

// ParticleBase is one node of the decay tree. A node owns the parameter
// block [Index, Index+Dim) of the fit state; nodes without their own vertex
// report the position index of the ancestor whose vertex they share.
//
// Index accessors return -1 when the node has no such parameter.
type ParticleBase interface {
	Kind() Kind
	Particle() *particle.Particle
	Mother() ParticleBase
	Daughters() []ParticleBase
	Name() string

	Index() int
	Dim() int
	PosIndex() int
	MomIndex() int
	TauIndex() int

	HasPosition() bool
	HasEnergy() bool
	Charge() float64
	PDGMass() float64
	// PDGTau is the nominal decay length divided by momentum, cτ/m, in
	// cm/GeV. It is zero when unknown.
	PDGTau() float64

	initPar1(fp *fitparams.FitParams) errcode.ErrCode
	initPar2(fp *fitparams.FitParams) errcode.ErrCode
	initCov(fp *fitparams.FitParams) errcode.ErrCode
	addToConstraintList(list *[]Constraint, depth int)
	project(typ ConstraintType, fp *fitparams.FitParams, p *projection.Projection) errcode.ErrCode
	forceP4Sum(fp *fitparams.FitParams) errcode.ErrCode

	base() *node
}

// HasLifetime reports whether n carries a decay-length parameter. That is
// the case exactly for nodes with their own vertex and a mother.
func HasLifetime(n ParticleBase) bool { return n.TauIndex() >= 0 }

// arena owns the nodes of one decay chain. Links between nodes are indices
// into nodes.
type arena struct {
	nodes []ParticleBase
	cfg   config.ConstraintConfiguration
}

// node is the state shared by every variant.
type node struct {
	a         *arena
	id        int
	mother    int
	daughters []int
	particle  *particle.Particle
	index     int

	pdgMass  float64
	pdgWidth float64
	pdgTau   float64
	charge   float64

	massConstraint     bool
	lifetimeConstraint bool
}

func newNode(a *arena, p *particle.Particle, mother int) node {
	n := node{
		a:        a,
		id:       len(a.nodes),
		mother:   mother,
		particle: p,
		index:    -1,
	}
	if p == nil {
		return n
	}
	n.charge = p.Charge()
	n.pdgMass = p.PDGMass()
	if info, ok := pdg.Lookup(p.PDG()); ok {
		n.pdgWidth = info.Width
		if !info.IsStable() && info.Mass > 0 {
			n.pdgTau = info.CTau / info.Mass
		}
	}
	return n
}

func (n *node) base() *node                  { return n }
func (n *node) Particle() *particle.Particle { return n.particle }
func (n *node) Index() int                   { return n.index }
func (n *node) Charge() float64              { return n.charge }
func (n *node) PDGMass() float64             { return n.pdgMass }
func (n *node) PDGTau() float64              { return n.pdgTau }

func (n *node) Name() string {
	if n.particle == nil {
		return "origin"
	}
	return pdg.Name(n.particle.PDG())
}

func (n *node) Mother() ParticleBase {
	if n.mother < 0 {
		return nil
	}
	return n.a.nodes[n.mother]
}

func (n *node) Daughters() []ParticleBase {
	out := make([]ParticleBase, len(n.daughters))
	for i, d := range n.daughters {
		out[i] = n.a.nodes[d]
	}
	return out
}

// motherPosIndex is the vertex shared by nodes without their own.
func (n *node) motherPosIndex() int {
	if m := n.Mother(); m != nil {
		return m.PosIndex()
	}
	return -1
}

// assignIndices lays out the state depth-first, daughters before their
// mother.
func assignIndices(n ParticleBase, offset *int) {
	for _, d := range n.Daughters() {
		assignIndices(d, offset)
	}
	n.base().index = *offset
	*offset += n.Dim()
}

func vec3(fp *fitparams.FitParams, i int) r3.Vec {
	v := fp.SubPar(i, 3)
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}

func setVec3(fp *fitparams.FitParams, i int, v r3.Vec) {
	fp.SetSubPar(i, []float64{v.X, v.Y, v.Z})
}

func isOrigin(v r3.Vec) bool { return v.X == 0 && v.Y == 0 && v.Z == 0 }

// momentumOf reads the three-momentum of n.
func momentumOf(n ParticleBase, fp *fitparams.FitParams) r3.Vec {
	return vec3(fp, n.MomIndex())
}

// energyOf reads the energy of n, computing it from the nominal mass for
// nodes parameterised by three-momentum.
func energyOf(n ParticleBase, fp *fitparams.FitParams) float64 {
	if n.HasEnergy() {
		return fp.At(n.MomIndex() + 3)
	}
	p := momentumOf(n, fp)
	m := n.PDGMass()
	return math.Sqrt(r3.Dot(p, p) + m*m)
}

// initCov priors.

func setPosPrior(fp *fitparams.FitParams, i int) {
	for k := range 3 {
		fp.Cov().SetSym(i+k, i+k, posPriorSigma*posPriorSigma)
	}
}

func setMomPrior(fp *fitparams.FitParams, i, n int) {
	for k := range n {
		fp.Cov().SetSym(i+k, i+k, momPriorSigma*momPriorSigma)
	}
}

func setTauPrior(n ParticleBase, fp *fitparams.FitParams) {
	sigtau := tauPriorUnknown
	if tau := n.PDGTau(); tau > 0 {
		sigtau = 20 * tau
	}
	if p := n.Particle(); p != nil {
		if mom := r3.Norm(p.Momentum()); mom > 0 {
			sigtau = math.Min(maxDecayLength/mom, sigtau)
		}
	}
	i := n.TauIndex()
	fp.Cov().SetSym(i, i, sigtau*sigtau)
}

// initMom sets the four-momentum of a composite to the sum of its
// daughters.
func initMom(n ParticleBase, fp *fitparams.FitParams) {
	var sum r3.Vec
	var e float64
	for _, d := range n.Daughters() {
		sum = r3.Add(sum, momentumOf(d, fp))
		e += energyOf(d, fp)
	}
	i := n.MomIndex()
	setVec3(fp, i, sum)
	fp.Set(i+3, e)
}

// initTau sets the decay-length parameter from the flight direction:
// tau = (x - x_mother)·p / |p|^2.
func initTau(n ParticleBase, fp *fitparams.FitParams) errcode.ErrCode {
	if !HasLifetime(n) {
		return errcode.Success
	}
	m := n.Mother()
	dx := r3.Sub(vec3(fp, n.PosIndex()), vec3(fp, m.PosIndex()))
	p := momentumOf(n, fp)
	p2 := r3.Dot(p, p)
	tau := n.PDGTau()
	if p2 > 0 {
		if t := r3.Dot(dx, p) / p2; t != 0 {
			tau = t
		}
	}
	fp.Set(n.TauIndex(), tau)
	return errcode.Success
}

// collectVertexDaughters lists the daughters attached to the vertex of n,
// looking through daughters that share it.
func collectVertexDaughters(n ParticleBase) []ParticleBase {
	var out []ParticleBase
	pos := n.PosIndex()
	for _, d := range n.Daughters() {
		out = append(out, d)
		if d.PosIndex() == pos {
			out = append(out, collectVertexDaughters(d)...)
		}
	}
	return out
}

// projectKineConstraint: p_mother - sum(p_daughter) = 0, four rows. The
// energy of daughters without an energy parameter follows from their mass.
func projectKineConstraint(n ParticleBase, fp *fitparams.FitParams, p *projection.Projection) errcode.ErrCode {
	mi := n.MomIndex()
	for k := range 4 {
		p.SetR(k, fp.At(mi+k))
		p.SetH(k, mi+k, 1)
	}
	for _, d := range n.Daughters() {
		di := d.MomIndex()
		if d.HasEnergy() {
			for k := range 4 {
				p.SetR(k, p.R().AtVec(k)-fp.At(di+k))
				p.AddH(k, di+k, -1)
			}
			continue
		}
		mom := momentumOf(d, fp)
		e := energyOf(d, fp)
		if e <= 0 {
			return errcode.BadDistance
		}
		comps := [3]float64{mom.X, mom.Y, mom.Z}
		for k := range 3 {
			p.SetR(k, p.R().AtVec(k)-comps[k])
			p.AddH(k, di+k, -1)
			p.AddH(3, di+k, -comps[k]/e)
		}
		p.SetR(3, p.R().AtVec(3)-e)
	}
	return errcode.Success
}

// projectGeoConstraint: the vertex lies on the straight flight line from
// the mother's vertex, x_mother - x + tau*p = 0.
func projectGeoConstraint(n ParticleBase, fp *fitparams.FitParams, p *projection.Projection) errcode.ErrCode {
	if !HasLifetime(n) {
		return errcode.BadSetup
	}
	mpos := n.Mother().PosIndex()
	pos := n.PosIndex()
	mom := n.MomIndex()
	ti := n.TauIndex()
	tau := fp.At(ti)
	for k := range 3 {
		px := fp.At(mom + k)
		p.SetR(k, fp.At(mpos+k)-fp.At(pos+k)+tau*px)
		p.SetH(k, mpos+k, 1)
		p.SetH(k, pos+k, -1)
		p.SetH(k, ti, px)
		p.SetH(k, mom+k, tau)
	}
	return errcode.Success
}

// projectMassConstraint: E^2 - |p|^2 - m^2 = 0, with the natural width as
// uncertainty when enabled.
func projectMassConstraint(n ParticleBase, fp *fitparams.FitParams, p *projection.Projection, width float64) errcode.ErrCode {
	if !n.HasEnergy() {
		return errcode.BadSetup
	}
	mi := n.MomIndex()
	mom := momentumOf(n, fp)
	e := fp.At(mi + 3)
	m := n.PDGMass()
	p.SetR(0, e*e-r3.Dot(mom, mom)-m*m)
	p.SetH(0, mi, -2*mom.X)
	p.SetH(0, mi+1, -2*mom.Y)
	p.SetH(0, mi+2, -2*mom.Z)
	p.SetH(0, mi+3, 2*e)
	if width > 0 {
		s := 2 * m * width
		p.SetV(0, 0, s*s)
	}
	return errcode.Success
}

// projectLifeTimeConstraint: tau = cτ/m with the lifetime itself as
// uncertainty.
func projectLifeTimeConstraint(n ParticleBase, fp *fitparams.FitParams, p *projection.Projection) errcode.ErrCode {
	tau := n.PDGTau()
	if !HasLifetime(n) || tau <= 0 {
		return errcode.BadSetup
	}
	ti := n.TauIndex()
	p.SetR(0, fp.At(ti)-tau)
	p.SetH(0, ti, 1)
	p.SetV(0, 0, tau*tau)
	return errcode.Success
}

// forceP4SumComposite makes the momentum of every composite below and
// including n equal to the sum of its daughters.
func forceP4SumComposite(n ParticleBase, fp *fitparams.FitParams) errcode.ErrCode {
	var ec errcode.ErrCode
	for _, d := range n.Daughters() {
		ec |= d.forceP4Sum(fp)
	}
	if n.MomIndex() < 0 || !n.HasEnergy() {
		return ec
	}
	p := projection.New(fp.Dim(), 4)
	ec |= projectKineConstraint(n, fp, p)
	if ec.Failure() {
		return ec
	}
	mi := n.MomIndex()
	for k := range 4 {
		fp.Set(mi+k, fp.At(mi+k)-p.R().AtVec(k))
	}
	return ec
}
