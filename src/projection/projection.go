// Package projection holds the linearisation of one constraint.
package projection

import (
	"gonum.org/v1/gonum/mat"
)

// Projection is a constraint linearised at the current state: the residual
// r, the Jacobian H of r with respect to the full state vector, and the
// covariance V of the constraint itself (zero for exact constraints).
type Projection struct {
	stateDim int
	dim      int

	r *mat.VecDense
	h *mat.Dense
	v *mat.SymDense
}

func New(stateDim, dim int) *Projection {
	if stateDim <= 0 || dim <= 0 {
		panic("projection: dimensions must be positive")
	}
	return &Projection{
		stateDim: stateDim,
		dim:      dim,
		r:        mat.NewVecDense(dim, nil),
		h:        mat.NewDense(dim, stateDim, nil),
		v:        mat.NewSymDense(dim, nil),
	}
}

func (p *Projection) Dim() int      { return p.dim }
func (p *Projection) StateDim() int { return p.stateDim }

func (p *Projection) R() *mat.VecDense { return p.r }
func (p *Projection) H() *mat.Dense    { return p.h }
func (p *Projection) V() *mat.SymDense { return p.v }

func (p *Projection) SetR(i int, x float64)    { p.r.SetVec(i, x) }
func (p *Projection) SetH(i, j int, x float64) { p.h.Set(i, j, x) }
func (p *Projection) AddH(i, j int, x float64) { p.h.Set(i, j, p.h.At(i, j)+x) }
func (p *Projection) SetV(i, j int, x float64) { p.v.SetSym(i, j, x) }

// SetVBlock copies s into V starting at the diagonal element (at, at).
func (p *Projection) SetVBlock(at int, s mat.Symmetric) {
	n := s.SymmetricDim()
	for i := range n {
		for j := i; j < n; j++ {
			p.v.SetSym(at+i, at+j, s.At(i, j))
		}
	}
}

// Reset zeroes the residual, the Jacobian and the covariance.
func (p *Projection) Reset() {
	p.r.Zero()
	p.h.Zero()
	p.v.Zero()
}

// Columns lists the state indices the constraint depends on.
func (p *Projection) Columns() []int {
	var cols []int
	for j := range p.stateDim {
		for i := range p.dim {
			if p.h.At(i, j) != 0 {
				cols = append(cols, j)
				break
			}
		}
	}
	return cols
}

// Exact reports whether the constraint has no intrinsic covariance.
func (p *Projection) Exact() bool {
	for i := range p.dim {
		for j := i; j < p.dim; j++ {
			if p.v.At(i, j) != 0 {
				return false
			}
		}
	}
	return true
}
