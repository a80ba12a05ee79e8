package treefit

import (
	"gonum.org/v1/gonum/mat"

	"github.com/belle2/basf2-sub109/src/errcode"
	"github.com/belle2/basf2-sub109/src/fitparams"
	"github.com/belle2/basf2-sub109/src/projection"
)

// interactionPoint is the root when a beam spot constraint is requested.
// It owns the production vertex of the head.
type interactionPoint struct {
	node
	beamCov *mat.SymDense
}

func (n *interactionPoint) Kind() Kind        { return KindInteractionPoint }
func (n *interactionPoint) Dim() int          { return 3 }
func (n *interactionPoint) PosIndex() int     { return n.index }
func (n *interactionPoint) MomIndex() int     { return -1 }
func (n *interactionPoint) TauIndex() int     { return -1 }
func (n *interactionPoint) HasPosition() bool { return true }
func (n *interactionPoint) HasEnergy() bool   { return false }

func (n *interactionPoint) initPar1(fp *fitparams.FitParams) errcode.ErrCode {
	setVec3(fp, n.PosIndex(), n.a.cfg.BeamSpot.Position)
	var ec errcode.ErrCode
	for _, d := range n.Daughters() {
		ec |= d.initPar1(fp)
	}
	return ec
}

func (n *interactionPoint) initPar2(fp *fitparams.FitParams) errcode.ErrCode {
	var ec errcode.ErrCode
	for _, d := range n.Daughters() {
		ec |= d.initPar2(fp)
	}
	return ec
}

func (n *interactionPoint) initCov(fp *fitparams.FitParams) errcode.ErrCode {
	setPosPrior(fp, n.PosIndex())
	var ec errcode.ErrCode
	for _, d := range n.Daughters() {
		ec |= d.initCov(fp)
	}
	return ec
}

func (n *interactionPoint) addToConstraintList(list *[]Constraint, depth int) {
	for _, d := range n.Daughters() {
		d.addToConstraintList(list, depth-1)
	}
	*list = append(*list, newConstraint(n, BeamSpotConstraint, depth, 3, 1))
}

// project: x - x_beam = 0 with the beam size as uncertainty.
func (n *interactionPoint) project(typ ConstraintType, fp *fitparams.FitParams, p *projection.Projection) errcode.ErrCode {
	if typ != BeamSpotConstraint {
		return errcode.BadSetup
	}
	pos := n.PosIndex()
	beam := n.a.cfg.BeamSpot.Position
	b := [3]float64{beam.X, beam.Y, beam.Z}
	for k := range 3 {
		p.SetR(k, fp.At(pos+k)-b[k])
		p.SetH(k, pos+k, 1)
	}
	p.SetVBlock(0, n.beamCov)
	return errcode.Success
}

func (n *interactionPoint) forceP4Sum(fp *fitparams.FitParams) errcode.ErrCode {
	var ec errcode.ErrCode
	for _, d := range n.Daughters() {
		ec |= d.forceP4Sum(fp)
	}
	return ec
}
