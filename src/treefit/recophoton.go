package treefit

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/belle2/basf2-sub109/src/errcode"
	"github.com/belle2/basf2-sub109/src/fitparams"
	"github.com/belle2/basf2-sub109/src/matrix"
	"github.com/belle2/basf2-sub109/src/particle"
	"github.com/belle2/basf2-sub109/src/projection"
)

// recoPhoton is a photon measured by a calorimeter cluster. It owns a
// three-momentum; its energy is |p|.
type recoPhoton struct {
	node
	cluster particle.Cluster
}

func (n *recoPhoton) Kind() Kind        { return KindRecoPhoton }
func (n *recoPhoton) Dim() int          { return 3 }
func (n *recoPhoton) PosIndex() int     { return n.motherPosIndex() }
func (n *recoPhoton) MomIndex() int     { return n.index }
func (n *recoPhoton) TauIndex() int     { return -1 }
func (n *recoPhoton) HasPosition() bool { return false }
func (n *recoPhoton) HasEnergy() bool   { return false }

func (n *recoPhoton) initPar1(fp *fitparams.FitParams) errcode.ErrCode {
	setVec3(fp, n.MomIndex(), n.particle.Momentum())
	return errcode.Success
}

// initPar2 points the momentum from the vertex estimate to the cluster.
func (n *recoPhoton) initPar2(fp *fitparams.FitParams) errcode.ErrCode {
	return pointAtCluster(n, fp, n.cluster.Position, n.cluster.Energy)
}

func (n *recoPhoton) initCov(fp *fitparams.FitParams) errcode.ErrCode {
	setMomPrior(fp, n.MomIndex(), 3)
	return errcode.Success
}

func (n *recoPhoton) addToConstraintList(list *[]Constraint, depth int) {
	*list = append(*list, newConstraint(n, PhotonConstraint, depth, 3, 3))
}

func (n *recoPhoton) project(typ ConstraintType, fp *fitparams.FitParams, p *projection.Projection) errcode.ErrCode {
	if typ != PhotonConstraint {
		return errcode.BadSetup
	}
	rows, ec := projectClusterDirection(n, fp, p, n.cluster.Position)
	if ec.Failure() {
		return ec
	}

	mom := momentumOf(n, fp)
	mag := r3.Norm(mom)
	p.SetR(2, mag-n.cluster.Energy)
	p.SetH(2, n.MomIndex(), mom.X/mag)
	p.SetH(2, n.MomIndex()+1, mom.Y/mag)
	p.SetH(2, n.MomIndex()+2, mom.Z/mag)

	// derivative of the residual with respect to (x, y, z, E) of the cluster
	G := mat.NewDense(3, 4, nil)
	for i := range 2 {
		for k := range 3 {
			G.Set(i, k, rows.At(i, k))
		}
	}
	G.Set(2, 3, -1)
	p.SetVBlock(0, matrix.Similarity(G, n.cluster.Cov))
	return errcode.Success
}

func (n *recoPhoton) forceP4Sum(*fitparams.FitParams) errcode.ErrCode { return errcode.Success }

// pointAtCluster sets the momentum of n to magnitude mag along the line
// from its production vertex to the cluster.
func pointAtCluster(n ParticleBase, fp *fitparams.FitParams, cluster r3.Vec, mag float64) errcode.ErrCode {
	d := r3.Sub(cluster, vec3(fp, n.PosIndex()))
	l := r3.Norm(d)
	if l == 0 || math.IsNaN(l) {
		return errcode.BadDistance
	}
	setVec3(fp, n.MomIndex(), r3.Scale(mag/l, d))
	return errcode.Success
}

// projectClusterDirection fills the first two rows with the transverse
// distance between the cluster and the flight line x + p*t, t eliminated
// along the largest momentum component. It returns the derivative of those
// rows with respect to the cluster position.
func projectClusterDirection(n ParticleBase, fp *fitparams.FitParams, p *projection.Projection, cluster r3.Vec) (*mat.Dense, errcode.ErrCode) {
	pos, mi := n.PosIndex(), n.MomIndex()
	x := vec3(fp, pos)
	mom := momentumOf(n, fp)
	c := [3]float64{cluster.X, cluster.Y, cluster.Z}
	xv := [3]float64{x.X, x.Y, x.Z}
	pv := [3]float64{mom.X, mom.Y, mom.Z}

	m := 0
	for k := 1; k < 3; k++ {
		if math.Abs(pv[k]) > math.Abs(pv[m]) {
			m = k
		}
	}
	if pv[m] == 0 {
		return nil, errcode.BadDistance
	}
	elim := (c[m] - xv[m]) / pv[m]

	G := mat.NewDense(2, 3, nil)
	row := 0
	for i := range 3 {
		if i == m {
			continue
		}
		p.SetR(row, c[i]-xv[i]-pv[i]*elim)
		p.SetH(row, pos+i, -1)
		p.SetH(row, pos+m, pv[i]/pv[m])
		p.SetH(row, mi+i, -elim)
		p.SetH(row, mi+m, pv[i]*elim/pv[m])
		G.Set(row, i, 1)
		G.Set(row, m, -pv[i]/pv[m])
		row++
	}
	return G, errcode.Success
}
