// Package kalman implements the measurement update of the tree fit.
//
// A constraint linearised at the current state as r(x) ≈ r + H (x - x_lin)
// with intrinsic covariance V is absorbed with the usual gain:
//
//	C = H P H^T + V
//	K = P H^T C^-1
//	x = x_pred - K (r + H (x_pred - x_lin))
//	P = (I - K H) P (I - K H)^T + K V K^T
//
// The covariance update uses the Joseph form. Products with H only touch the
// state columns the constraint depends on.
package kalman

import (
	"math"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/belle2/basf2-sub109/src/errcode"
	"github.com/belle2/basf2-sub109/src/fitparams"
	"github.com/belle2/basf2-sub109/src/matrix"
	"github.com/belle2/basf2-sub109/src/projection"
)

// Calculator holds the intermediate products of one update. A zero value is
// ready for use.
type Calculator struct {
	r    *mat.VecDense
	cols []int
	hc   *mat.Dense // H restricted to cols
	p    *mat.SymDense
	b    *mat.Dense // P H^T
	c    *mat.SymDense
	cInv *mat.SymDense
	k    *mat.Dense
	chi2 float64
}

// Init computes the gain for the linearised constraint p at the covariance
// of fp. Only the columns of H that p reports as non-zero enter the
// products, so the cost grows with the state dimension squared rather than
// cubed.
func (c *Calculator) Init(p *projection.Projection, fp *fitparams.FitParams) errcode.ErrCode {
	m, n := p.Dim(), fp.Dim()
	if p.StateDim() != n {
		return errcode.BadSetup
	}
	cols := p.Columns()
	if len(cols) == 0 {
		log.WithField("dim", m).Debug("kalman: constraint does not depend on the state")
		return errcode.BadSetup
	}
	q := len(cols)
	c.r = mat.VecDenseCopyOf(p.R())
	c.cols = cols
	c.p = fp.Cov()
	c.chi2 = 0

	H := p.H()
	c.hc = mat.NewDense(m, q, nil)
	pc := mat.NewDense(n, q, nil)
	for k, j := range cols {
		for i := range m {
			c.hc.Set(i, k, H.At(i, j))
		}
		for i := range n {
			pc.Set(i, k, c.p.At(i, j))
		}
	}

	// B = P H^T
	c.b = mat.NewDense(n, m, nil)
	c.b.Mul(pc, c.hc.T())

	// Innovation covariance: C = H P H^T + V
	bc := mat.NewDense(q, m, nil)
	for k, j := range cols {
		bc.SetRow(k, c.b.RawRowView(j))
	}
	var hpht mat.Dense
	hpht.Mul(c.hc, bc)
	C := matrix.Symmetrize(&hpht, m)
	if !p.Exact() {
		C.AddSym(C, p.V())
	}
	c.c = C

	cInv, ok := matrix.InvertSym(C)
	if !ok {
		log.WithFields(log.Fields{
			"dim": m,
		}).Debug("kalman: innovation covariance not invertible")
		return errcode.InversionError
	}
	c.cInv = cInv

	// Kalman gain: K = P H^T C^-1
	c.k = mat.NewDense(n, m, nil)
	c.k.Mul(c.b, cInv)

	// Residual monitoring: flag components outside 3 sigma
	for i := range m {
		sigma := math.Sqrt(C.At(i, i))
		if math.Abs(c.r.AtVec(i)) > 3*sigma {
			log.Debugf("kalman: large residual r[%d]=%.4g, 3σ=%.4g", i, c.r.AtVec(i), 3*sigma)
		}
	}
	return errcode.Success
}

// UpdateParFrom applies the update starting from the predicted state pred
// when the projection was evaluated at lin: r' = r + H (pred - lin). The
// result is written into fp; pred and lin may alias its state.
func (c *Calculator) UpdateParFrom(pred, lin mat.Vector, fp *fitparams.FitParams) {
	dx := mat.NewVecDense(len(c.cols), nil)
	for k, j := range c.cols {
		dx.SetVec(k, pred.AtVec(j)-lin.AtVec(j))
	}
	var hdx mat.VecDense
	hdx.MulVec(c.hc, dx)
	var res mat.VecDense
	res.AddVec(c.r, &hdx)

	// State update: x = x_pred - K r'
	var kr mat.VecDense
	kr.MulVec(c.k, &res)
	var x mat.VecDense
	x.SubVec(pred, &kr)
	fp.Par().CopyVec(&x)

	// chi2 = r'^T C^-1 r'
	var cr mat.VecDense
	cr.MulVec(c.cInv, &res)
	c.chi2 = mat.Dot(&res, &cr)
}

// UpdateCov replaces the covariance of fp by the Joseph-form update of the
// covariance seen by Init, expanded with B = P H^T:
//
//	P' = P - K B^T - B K^T + K C K^T
func (c *Calculator) UpdateCov(fp *fitparams.FitParams) errcode.ErrCode {
	n := fp.Dim()

	var ckt mat.Dense
	ckt.Mul(c.c, c.k.T())
	ckt.Sub(&ckt, c.b.T())
	var next mat.Dense
	next.Mul(c.k, &ckt)
	var bkt mat.Dense
	bkt.Mul(c.b, c.k.T())
	next.Sub(&next, &bkt)
	next.Add(&next, c.p)

	P := matrix.Symmetrize(&next, n)
	for i := range n {
		if d := P.At(i, i); d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return errcode.NonPositiveDefinite
		}
	}
	fp.Cov().CopySym(P)
	return errcode.Success
}

// Chi2 is the chi-square of the last parameter update.
func (c *Calculator) Chi2() float64 { return c.chi2 }
