package treefit

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/belle2/basf2-sub109/src/errcode"
	"github.com/belle2/basf2-sub109/src/fitparams"
	"github.com/belle2/basf2-sub109/src/helix"
	"github.com/belle2/basf2-sub109/src/projection"
)

// internalParticle is a composite with its own decay vertex. Its block is
// (x, y, z, [tau,] px, py, pz, E); tau exists when it has a mother. A
// photon conversion is an internal particle whose two daughters are
// constrained to be collinear instead of having a mass constraint.
type internalParticle struct {
	node
	conversion bool
}

func (n *internalParticle) Kind() Kind {
	if n.conversion {
		return KindConversion
	}
	return KindInternalParticle
}

func (n *internalParticle) Dim() int {
	if n.mother >= 0 {
		return 8
	}
	return 7
}

func (n *internalParticle) PosIndex() int { return n.index }

func (n *internalParticle) TauIndex() int {
	if n.mother >= 0 {
		return n.index + 3
	}
	return -1
}

func (n *internalParticle) MomIndex() int {
	if n.mother >= 0 {
		return n.index + 4
	}
	return n.index + 3
}

func (n *internalParticle) HasPosition() bool { return true }
func (n *internalParticle) HasEnergy() bool   { return true }

// initPar1 estimates the vertex. In order of preference: a vertex already
// attached to the candidate, the closest approach of the two tracks with
// the highest transverse momentum, the best pair of trajectories among
// tracks and already placed composites, the mother's vertex.
func (n *internalParticle) initPar1(fp *fitparams.FitParams) errcode.ErrCode {
	var ec errcode.ErrCode
	pos := n.PosIndex()
	setVec3(fp, pos, r3.Vec{})

	for _, d := range n.Daughters() {
		ec |= d.initPar1(fp)
	}

	if n.a.cfg.UseExistingVertex && n.particle.HasVertex() && !isOrigin(n.particle.Vertex()) {
		setVec3(fp, pos, n.particle.Vertex())
	} else if v, ok := n.vertexEstimate(fp); ok {
		setVec3(fp, pos, v)
	} else if m := n.Mother(); m != nil {
		setVec3(fp, pos, vec3(fp, m.PosIndex()))
	} else {
		ec |= errcode.BadSetup
	}

	for _, d := range n.Daughters() {
		ec |= d.initPar2(fp)
	}
	initMom(n, fp)
	return ec
}

func (n *internalParticle) vertexEstimate(fp *fitparams.FitParams) (r3.Vec, bool) {
	var tracks []*recoTrack
	var composites []ParticleBase
	for _, d := range collectVertexDaughters(n) {
		switch t := d.(type) {
		case *recoTrack:
			tracks = append(tracks, t)
		case *internalParticle:
			if !isOrigin(vec3(fp, t.PosIndex())) {
				composites = append(composites, t)
			}
		}
	}

	if len(tracks) >= 2 {
		slices.SortStableFunc(tracks, func(a, b *recoTrack) int {
			return cmp.Compare(b.particle.Pt(), a.particle.Pt())
		})
		_, _, v, _, ec := helix.Poca(tracks[0].measured(), tracks[1].measured())
		if !ec.Failure() {
			return v, true
		}
	}
	if len(tracks)+len(composites) < 2 {
		return r3.Vec{}, false
	}

	var trajs []helix.Helix
	for _, t := range tracks {
		trajs = append(trajs, t.measured())
	}
	for _, c := range composites {
		if l, ok := helix.Line(vec3(fp, c.PosIndex()), momentumOf(c, fp)); ok {
			trajs = append(trajs, l)
		}
	}
	best, found := math.Inf(1), false
	var vertex r3.Vec
	for i := range trajs {
		for j := range i {
			_, _, v, doca, ec := helix.Poca(trajs[i], trajs[j])
			if ec.Failure() || doca >= best {
				continue
			}
			best, vertex, found = doca, v, true
		}
	}
	return vertex, found
}

func (n *internalParticle) initPar2(fp *fitparams.FitParams) errcode.ErrCode {
	pos := n.PosIndex()
	if m := n.Mother(); m != nil && isOrigin(vec3(fp, pos)) {
		setVec3(fp, pos, vec3(fp, m.PosIndex()))
	}
	return initTau(n, fp)
}

func (n *internalParticle) initCov(fp *fitparams.FitParams) errcode.ErrCode {
	setPosPrior(fp, n.PosIndex())
	setMomPrior(fp, n.MomIndex(), 4)
	if HasLifetime(n) {
		setTauPrior(n, fp)
	}
	var ec errcode.ErrCode
	for _, d := range n.Daughters() {
		ec |= d.initCov(fp)
	}
	return ec
}

func (n *internalParticle) addToConstraintList(list *[]Constraint, depth int) {
	for _, d := range n.Daughters() {
		d.addToConstraintList(list, depth-1)
	}
	if HasLifetime(n) && n.lifetimeConstraint {
		*list = append(*list, newConstraint(n, LifetimeConstraint, depth, 1, 1))
	}
	*list = append(*list, newConstraint(n, KinematicConstraint, depth, 4, 1))
	if HasLifetime(n) {
		*list = append(*list, newConstraint(n, GeometricConstraint, depth, 3, 3))
	}
	switch {
	case n.conversion:
		*list = append(*list, newConstraint(n, ConversionConstraint, depth, 2, 3))
	case n.massConstraint:
		*list = append(*list, newConstraint(n, MassConstraint, depth, 1, 10))
	}
}

func (n *internalParticle) project(typ ConstraintType, fp *fitparams.FitParams, p *projection.Projection) errcode.ErrCode {
	switch typ {
	case KinematicConstraint:
		return projectKineConstraint(n, fp, p)
	case GeometricConstraint:
		return projectGeoConstraint(n, fp, p)
	case MassConstraint:
		return projectMassConstraint(n, fp, p, n.width())
	case LifetimeConstraint:
		return projectLifeTimeConstraint(n, fp, p)
	case ConversionConstraint:
		return n.projectConversionConstraint(fp, p)
	}
	return errcode.BadSetup
}

func (n *internalParticle) width() float64 {
	if n.massConstraint && n.a.cfg.UseResonanceWidths {
		return n.pdgWidth
	}
	return 0
}

// projectConversionConstraint requires both daughters to leave the vertex
// in the same direction: equal azimuth and equal dip.
func (n *internalParticle) projectConversionConstraint(fp *fitparams.FitParams, p *projection.Projection) errcode.ErrCode {
	ds := n.Daughters()
	if !n.conversion || len(ds) != 2 {
		return errcode.BadSetup
	}
	sign := 1.0
	var phis, tanls [2]float64
	for k, d := range ds {
		mom := momentumOf(d, fp)
		pt2 := mom.X*mom.X + mom.Y*mom.Y
		if pt2 <= 0 {
			return errcode.BadDistance
		}
		pt := math.Sqrt(pt2)
		phis[k] = math.Atan2(mom.Y, mom.X)
		tanls[k] = mom.Z / pt

		mi := d.MomIndex()
		p.SetH(0, mi, -sign*mom.Y/pt2)
		p.SetH(0, mi+1, sign*mom.X/pt2)
		p.SetH(1, mi, -sign*mom.Z*mom.X/(pt2*pt))
		p.SetH(1, mi+1, -sign*mom.Z*mom.Y/(pt2*pt))
		p.SetH(1, mi+2, sign/pt)
		sign = -1
	}
	p.SetR(0, helix.PhiDomain(phis[0]-phis[1]))
	p.SetR(1, tanls[0]-tanls[1])
	return errcode.Success
}

func (n *internalParticle) forceP4Sum(fp *fitparams.FitParams) errcode.ErrCode {
	return forceP4SumComposite(n, fp)
}
