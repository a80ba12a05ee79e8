package treefit

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/belle2/basf2-sub109/src/errcode"
	"github.com/belle2/basf2-sub109/src/fitparams"
	"github.com/belle2/basf2-sub109/src/helix"
	"github.com/belle2/basf2-sub109/src/particle"
	"github.com/belle2/basf2-sub109/src/projection"
)

// recoTrack is a charged final-state particle measured by a helix. It
// owns a three-momentum and is produced at its mother's vertex.
type recoTrack struct {
	node
	fit particle.TrackFit
}

func (n *recoTrack) Kind() Kind        { return KindRecoTrack }
func (n *recoTrack) Dim() int          { return 3 }
func (n *recoTrack) PosIndex() int     { return n.motherPosIndex() }
func (n *recoTrack) MomIndex() int     { return n.index }
func (n *recoTrack) TauIndex() int     { return -1 }
func (n *recoTrack) HasPosition() bool { return false }
func (n *recoTrack) HasEnergy() bool   { return false }

func (n *recoTrack) measured() helix.Helix { return n.fit.Helix }

func (n *recoTrack) initPar1(fp *fitparams.FitParams) errcode.ErrCode {
	setVec3(fp, n.MomIndex(), n.particle.Momentum())
	return errcode.Success
}

// initPar2 moves the momentum to the point of the helix nearest the
// vertex estimate.
func (n *recoTrack) initPar2(fp *fitparams.FitParams) errcode.ErrCode {
	h := n.measured()
	if h.Straight() {
		return errcode.Success
	}
	s := helix.PocaPoint(h, vec3(fp, n.PosIndex()))
	mom := h.Momentum(s, n.charge, n.fit.BField)
	if math.IsInf(r3.Norm(mom), 0) || math.IsNaN(r3.Norm(mom)) {
		return errcode.BadDistance
	}
	setVec3(fp, n.MomIndex(), mom)
	return errcode.Success
}

func (n *recoTrack) initCov(fp *fitparams.FitParams) errcode.ErrCode {
	setMomPrior(fp, n.MomIndex(), 3)
	return errcode.Success
}

func (n *recoTrack) addToConstraintList(list *[]Constraint, depth int) {
	*list = append(*list, newConstraint(n, TrackConstraint, depth, helix.NPar, 1))
}

// project compares the helix through the current vertex and momentum with
// the measured one.
func (n *recoTrack) project(typ ConstraintType, fp *fitparams.FitParams, p *projection.Projection) errcode.ErrCode {
	if typ != TrackConstraint {
		return errcode.BadSetup
	}
	pos, mom := n.PosIndex(), n.MomIndex()
	h, _, jac, ok := helix.FromVertex(vec3(fp, pos), momentumOf(n, fp), n.charge, n.fit.BField)
	if !ok {
		return errcode.BadDistance
	}
	pred, meas := h.Vector(), n.measured().Vector()
	for i := range helix.NPar {
		r := pred[i] - meas[i]
		if i == helix.Phi0 {
			r = helix.PhiDomain(r)
		}
		p.SetR(i, r)
		for k := range 3 {
			p.SetH(i, pos+k, jac.At(i, k))
			p.SetH(i, mom+k, jac.At(i, k+3))
		}
	}
	p.SetVBlock(0, n.fit.Cov)
	return errcode.Success
}

func (n *recoTrack) forceP4Sum(*fitparams.FitParams) errcode.ErrCode { return errcode.Success }
