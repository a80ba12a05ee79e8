package treefit

import (
	"math"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/belle2/basf2-sub109/src/config"
	"github.com/belle2/basf2-sub109/src/errcode"
	"github.com/belle2/basf2-sub109/src/fitparams"
	"github.com/belle2/basf2-sub109/src/helix"
	"github.com/belle2/basf2-sub109/src/particle"
	"github.com/belle2/basf2-sub109/src/pdg"
)

// ErrBadInput is wrapped by every error returned while building a decay
// chain from an unusable candidate.
var ErrBadInput = errors.New("treefit: bad input")

// DecayChain is the tree of nodes built from one candidate, its parameter
// layout and its ordered constraint list.
type DecayChain struct {
	arena *arena
	root  ParticleBase
	head  ParticleBase

	dim         int
	constraints []Constraint
	byParticle  map[*particle.Particle]ParticleBase

	// prior is the diagonal set by initCov. Covariance inflation between
	// passes never exceeds it.
	prior []float64
}

// NewDecayChain builds the tree below head. With the beam spot enabled the
// root is an interaction point whose only daughter is the head.
func NewDecayChain(head *particle.Particle, cfg config.ConstraintConfiguration) (*DecayChain, error) {
	if head == nil {
		return nil, errors.Wrap(ErrBadInput, "no candidate")
	}
	if head.NDaughters() == 0 {
		return nil, errors.Wrapf(ErrBadInput, "head %s is a final-state particle", pdg.Name(head.PDG()))
	}

	a := &arena{cfg: cfg.Clone()}
	dc := &DecayChain{arena: a, byParticle: make(map[*particle.Particle]ParticleBase)}

	mother := -1
	if cfg.BeamSpot.Enabled {
		ip := &interactionPoint{node: newNode(a, nil, -1), beamCov: cfg.BeamSpot.CovMatrix()}
		a.nodes = append(a.nodes, ip)
		dc.root = ip
		mother = ip.id
	}
	h, err := dc.build(head, mother, true)
	if err != nil {
		return nil, err
	}
	dc.head = h
	if dc.root == nil {
		dc.root = h
	} else {
		dc.root.base().daughters = []int{h.base().id}
	}

	for _, n := range a.nodes {
		if err := checkVertex(n); err != nil {
			return nil, err
		}
	}

	assignIndices(dc.root, &dc.dim)
	dc.root.addToConstraintList(&dc.constraints, 0)
	sortConstraints(dc.constraints)

	fp := fitparams.New(dc.dim)
	dc.root.initCov(fp)
	dc.prior = make([]float64, dc.dim)
	for i := range dc.prior {
		dc.prior[i] = fp.Cov().At(i, i)
	}
	return dc, nil
}

func (dc *DecayChain) build(p *particle.Particle, mother int, head bool) (ParticleBase, error) {
	a := dc.arena
	cfg := a.cfg
	var n ParticleBase

	if p.NDaughters() == 0 {
		switch p.Source() {
		case particle.Track:
			tf := p.Track()
			if tf == nil || tf.Cov == nil || tf.Cov.SymmetricDim() != helix.NPar {
				return nil, errors.Wrapf(ErrBadInput, "track %s has no track fit", pdg.Name(p.PDG()))
			}
			n = &recoTrack{node: newNode(a, p, mother), fit: *tf}
		case particle.ECLCluster, particle.KLMCluster:
			c := p.Cluster()
			if c == nil || c.Cov == nil || c.Cov.SymmetricDim() != 4 {
				return nil, errors.Wrapf(ErrBadInput, "%s has no cluster", pdg.Name(p.PDG()))
			}
			switch {
			case p.Source() == particle.KLMCluster || p.PDG() == 130 || p.PDG() == -130:
				n = &recoKlong{node: newNode(a, p, mother), cluster: *c}
			case p.PDG() == 22:
				n = &recoPhoton{node: newNode(a, p, mother), cluster: *c}
			default:
				return nil, errors.Wrapf(ErrBadInput, "cluster particle %s not supported", pdg.Name(p.PDG()))
			}
		default:
			return nil, errors.Wrapf(ErrBadInput, "composite %s has no daughters", pdg.Name(p.PDG()))
		}
		a.nodes = append(a.nodes, n)
		dc.byParticle[p] = n
		return n, nil
	}

	ctau := math.Inf(1)
	if info, ok := pdg.Lookup(p.PDG()); ok {
		ctau = info.CTau
	}
	nd := newNode(a, p, mother)
	nd.massConstraint = cfg.HasMassConstraint(p.PDG())
	switch {
	case p.PDG() == 22 && p.NDaughters() == 2 && cfg.ConversionConstraint:
		n = &internalParticle{node: nd, conversion: true}
	case !head && cfg.IsResonance(p.PDG(), ctau):
		n = &resonance{node: nd}
	default:
		nd.lifetimeConstraint = cfg.HasLifetimeConstraint(p.PDG()) && nd.pdgTau > 0
		n = &internalParticle{node: nd}
	}
	a.nodes = append(a.nodes, n)
	dc.byParticle[p] = n

	for _, d := range p.Daughters() {
		dn, err := dc.build(d, n.base().id, false)
		if err != nil {
			return nil, err
		}
		n.base().daughters = append(n.base().daughters, dn.base().id)
	}
	return n, nil
}

// checkVertex rejects vertices the fit cannot determine: a vertex needs two
// trajectories, or one trajectory and a mother to point back to, or a
// mother and two neutral directions.
func checkVertex(n ParticleBase) error {
	if _, ok := n.(*internalParticle); !ok {
		return nil
	}
	var trajectories, neutrals int
	for _, d := range collectVertexDaughters(n) {
		switch d.Kind() {
		case KindRecoTrack, KindInternalParticle, KindConversion:
			trajectories++
		case KindRecoPhoton, KindRecoKlong:
			neutrals++
		}
	}
	hasMother := n.Mother() != nil
	if trajectories >= 2 || (trajectories >= 1 && hasMother) || (hasMother && neutrals >= 2) {
		return nil
	}
	return errors.Wrapf(ErrBadInput, "vertex of %s is under-constrained", n.Name())
}

// Dim is the size of the fit state.
func (dc *DecayChain) Dim() int { return dc.dim }

// Root is the top node: the interaction point if there is one, else the
// head.
func (dc *DecayChain) Root() ParticleBase { return dc.root }

func (dc *DecayChain) Head() ParticleBase { return dc.head }

// Nodes lists every node in construction order, root first.
func (dc *DecayChain) Nodes() []ParticleBase { return dc.arena.nodes }

// Constraints returns the constraints in the order a pass applies them.
func (dc *DecayChain) Constraints() []Constraint { return dc.constraints }

// Locate returns the node built from p, or nil.
func (dc *DecayChain) Locate(p *particle.Particle) ParticleBase {
	return dc.byParticle[p]
}

// Initialize seeds the state and sets the prior covariance.
func (dc *DecayChain) Initialize(fp *fitparams.FitParams) errcode.ErrCode {
	ec := dc.root.initPar1(fp)
	ec |= dc.root.initPar2(fp)
	fp.ZeroCov()
	ec |= dc.root.initCov(fp)
	fp.ResetChi2()
	return ec
}

// Filter runs one pass over all constraints. The covariance starts from
// the prior on the first pass, or when the previous one is unusable, and
// from the inflated diagonal of the previous pass otherwise. Rejected
// constraints are reported to logger.
func (dc *DecayChain) Filter(fp *fitparams.FitParams, firstPass bool, ref *fitparams.FitParams, logger *log.Entry) errcode.ErrCode {
	var ec errcode.ErrCode
	if firstPass || !fp.TestCov() {
		fp.ZeroCov()
		ec |= dc.root.initCov(fp)
	} else {
		fp.ResetCov(covResetScale)
		dc.clampCov(fp.Cov())
	}
	fp.ResetChi2()
	for _, c := range dc.constraints {
		ec |= c.filter(fp, ref, logger)
	}
	return ec
}

func (dc *DecayChain) clampCov(cov *mat.SymDense) {
	for i, p := range dc.prior {
		if p > 0 && cov.At(i, i) > p {
			cov.SetSym(i, i, p)
		}
	}
}

// ForceP4Sum rewrites the momentum of every composite as the sum of its
// daughters.
func (dc *DecayChain) ForceP4Sum(fp *fitparams.FitParams) errcode.ErrCode {
	return dc.root.forceP4Sum(fp)
}
