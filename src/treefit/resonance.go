package treefit

import (
	"github.com/belle2/basf2-sub109/src/errcode"
	"github.com/belle2/basf2-sub109/src/fitparams"
	"github.com/belle2/basf2-sub109/src/projection"
)

// resonance is a composite that decays at its production vertex. It owns
// only a four-momentum.
type resonance struct {
	node
}

func (n *resonance) Kind() Kind        { return KindResonance }
func (n *resonance) Dim() int          { return 4 }
func (n *resonance) PosIndex() int     { return n.motherPosIndex() }
func (n *resonance) MomIndex() int     { return n.index }
func (n *resonance) TauIndex() int     { return -1 }
func (n *resonance) HasPosition() bool { return false }
func (n *resonance) HasEnergy() bool   { return true }

func (n *resonance) initPar1(fp *fitparams.FitParams) errcode.ErrCode {
	var ec errcode.ErrCode
	for _, d := range n.Daughters() {
		ec |= d.initPar1(fp)
	}
	initMom(n, fp)
	return ec
}

func (n *resonance) initPar2(fp *fitparams.FitParams) errcode.ErrCode {
	var ec errcode.ErrCode
	for _, d := range n.Daughters() {
		ec |= d.initPar2(fp)
	}
	initMom(n, fp)
	return ec
}

func (n *resonance) initCov(fp *fitparams.FitParams) errcode.ErrCode {
	setMomPrior(fp, n.MomIndex(), 4)
	var ec errcode.ErrCode
	for _, d := range n.Daughters() {
		ec |= d.initCov(fp)
	}
	return ec
}

func (n *resonance) addToConstraintList(list *[]Constraint, depth int) {
	for _, d := range n.Daughters() {
		d.addToConstraintList(list, depth-1)
	}
	*list = append(*list, newConstraint(n, KinematicConstraint, depth, 4, 1))
	if n.massConstraint {
		*list = append(*list, newConstraint(n, MassConstraint, depth, 1, 10))
	}
}

func (n *resonance) project(typ ConstraintType, fp *fitparams.FitParams, p *projection.Projection) errcode.ErrCode {
	switch typ {
	case KinematicConstraint:
		return projectKineConstraint(n, fp, p)
	case MassConstraint:
		width := 0.0
		if n.a.cfg.UseResonanceWidths {
			width = n.pdgWidth
		}
		return projectMassConstraint(n, fp, p, width)
	}
	return errcode.BadSetup
}

func (n *resonance) forceP4Sum(fp *fitparams.FitParams) errcode.ErrCode {
	return forceP4SumComposite(n, fp)
}
