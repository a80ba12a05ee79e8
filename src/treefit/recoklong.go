package treefit

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/belle2/basf2-sub109/src/errcode"
	"github.com/belle2/basf2-sub109/src/fitparams"
	"github.com/belle2/basf2-sub109/src/matrix"
	"github.com/belle2/basf2-sub109/src/particle"
	"github.com/belle2/basf2-sub109/src/projection"
)

// recoKlong is a neutral hadron seen as a cluster. Only the direction is
// measured.
type recoKlong struct {
	node
	cluster particle.Cluster
}

func (n *recoKlong) Kind() Kind        { return KindRecoKlong }
func (n *recoKlong) Dim() int          { return 3 }
func (n *recoKlong) PosIndex() int     { return n.motherPosIndex() }
func (n *recoKlong) MomIndex() int     { return n.index }
func (n *recoKlong) TauIndex() int     { return -1 }
func (n *recoKlong) HasPosition() bool { return false }
func (n *recoKlong) HasEnergy() bool   { return false }

func (n *recoKlong) initPar1(fp *fitparams.FitParams) errcode.ErrCode {
	setVec3(fp, n.MomIndex(), n.particle.Momentum())
	return errcode.Success
}

func (n *recoKlong) initPar2(fp *fitparams.FitParams) errcode.ErrCode {
	return pointAtCluster(n, fp, n.cluster.Position, r3.Norm(n.particle.Momentum()))
}

func (n *recoKlong) initCov(fp *fitparams.FitParams) errcode.ErrCode {
	setMomPrior(fp, n.MomIndex(), 3)
	return errcode.Success
}

func (n *recoKlong) addToConstraintList(list *[]Constraint, depth int) {
	*list = append(*list, newConstraint(n, KlongConstraint, depth, 2, 3))
}

func (n *recoKlong) project(typ ConstraintType, fp *fitparams.FitParams, p *projection.Projection) errcode.ErrCode {
	if typ != KlongConstraint {
		return errcode.BadSetup
	}
	G, ec := projectClusterDirection(n, fp, p, n.cluster.Position)
	if ec.Failure() {
		return ec
	}
	p.SetVBlock(0, matrix.Similarity(G, matrix.SubSym(n.cluster.Cov, 0, 3)))
	return errcode.Success
}

func (n *recoKlong) forceP4Sum(*fitparams.FitParams) errcode.ErrCode { return errcode.Success }
