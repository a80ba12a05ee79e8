// Package fitparams holds the flat state vector and covariance of a decay tree.
package fitparams

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/belle2/basf2-sub109/src/matrix"
)

// FitParams is the state of a tree fit: one parameter vector and its
// covariance for every node, concatenated by global index. Accessors do not
// validate indices; the decay chain fixes the layout once when it is built.
type FitParams struct {
	dim   int
	par   *mat.VecDense
	cov   *mat.SymDense
	chi2  float64
	nCons int
}

func New(dim int) *FitParams {
	if dim <= 0 {
		panic("fitparams: dimension must be positive")
	}
	return &FitParams{
		dim: dim,
		par: mat.NewVecDense(dim, nil),
		cov: mat.NewSymDense(dim, nil),
	}
}

func (fp *FitParams) Dim() int { return fp.dim }

// Par returns the state vector. It is the live vector, not a copy.
func (fp *FitParams) Par() *mat.VecDense { return fp.par }

// Cov returns the covariance. It is the live matrix, not a copy.
func (fp *FitParams) Cov() *mat.SymDense { return fp.cov }

func (fp *FitParams) At(i int) float64     { return fp.par.AtVec(i) }
func (fp *FitParams) Set(i int, v float64) { fp.par.SetVec(i, v) }

// SubPar copies n parameters starting at start.
func (fp *FitParams) SubPar(start, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = fp.par.AtVec(start + i)
	}
	return out
}

// SetSubPar writes v into the parameters starting at start.
func (fp *FitParams) SetSubPar(start int, v []float64) {
	for i, x := range v {
		fp.par.SetVec(start+i, x)
	}
}

// SubCov copies the n×n diagonal block starting at start.
func (fp *FitParams) SubCov(start, n int) *mat.SymDense {
	return matrix.SubSym(fp.cov, start, n)
}

// SubCovIndices copies the covariance of the listed parameters.
func (fp *FitParams) SubCovIndices(idx []int) *mat.SymDense {
	return matrix.Subset(fp.cov, idx)
}

// ResetCov keeps only the diagonal, multiplied by scale.
func (fp *FitParams) ResetCov(scale float64) {
	for i := range fp.dim {
		d := fp.cov.At(i, i)
		for j := i; j < fp.dim; j++ {
			fp.cov.SetSym(i, j, 0)
		}
		fp.cov.SetSym(i, i, d*scale)
	}
}

// ZeroCov clears the covariance.
func (fp *FitParams) ZeroCov() {
	fp.cov.Zero()
}

// TestCov checks that every diagonal element is positive and finite and the
// state is finite.
func (fp *FitParams) TestCov() bool {
	for i := range fp.dim {
		d := fp.cov.At(i, i)
		if !(d > 0) || math.IsInf(d, 0) {
			return false
		}
		if x := fp.par.AtVec(i); math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func (fp *FitParams) Chi2() float64 { return fp.chi2 }

// NConstraints is the summed dimension of the constraints applied since the
// last ResetChi2.
func (fp *FitParams) NConstraints() int { return fp.nCons }

// NDF is the number of degrees of freedom of the last pass.
func (fp *FitParams) NDF() int { return fp.nCons - fp.dim }

// AddChi2 accumulates the contribution of one constraint of dimension n.
func (fp *FitParams) AddChi2(chi2 float64, n int) {
	fp.chi2 += chi2
	fp.nCons += n
}

func (fp *FitParams) ResetChi2() {
	fp.chi2 = 0
	fp.nCons = 0
}

func (fp *FitParams) Clone() *FitParams {
	out := New(fp.dim)
	out.CopyFrom(fp)
	return out
}

// CopyFrom overwrites fp with the state of other. Both must have the same
// dimension.
func (fp *FitParams) CopyFrom(other *FitParams) {
	if other.dim != fp.dim {
		panic("fitparams: dimension mismatch")
	}
	fp.par.CopyVec(other.par)
	fp.cov.CopySym(other.cov)
	fp.chi2 = other.chi2
	fp.nCons = other.nCons
}
