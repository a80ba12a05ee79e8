// Package matrix collects the gonum/mat helpers shared by the fitter.
//
// Dimension mismatches are programming errors and panic; numerical failures
// (singular or indefinite matrices) are reported to the caller.
package matrix

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

/*
Function Structure
- Assertions
- Calculation
- Handle Subsequent Errors
*/

/* Concatenates two matrices A and B column-wise: C = [A B] */
func Concatenate(A, B *mat.Dense) *mat.Dense {
	ar, ac := A.Dims()
	br, bc := B.Dims()

	if ar != br {
		panic(fmt.Errorf("input matrices must have the same number of rows"))
	}

	/* Creates matrix storing the concatenation */
	C := mat.NewDense(ar, ac+bc, nil)

	/* Use of raw matrices to access slices */
	aRaw := A.RawMatrix()
	bRaw := B.RawMatrix()
	cRaw := C.RawMatrix()

	/* For each row copy the slices of A and B into that of C */
	for i := range ar {
		destCRowSlice := cRaw.Data[i*cRaw.Stride : i*cRaw.Stride+ac+bc]
		srcARowSlice := aRaw.Data[i*aRaw.Stride : i*aRaw.Stride+ac]
		srcBRowSlice := bRaw.Data[i*bRaw.Stride : i*bRaw.Stride+bc]

		copy(destCRowSlice[:ac], srcARowSlice)
		copy(destCRowSlice[ac:], srcBRowSlice)
	}

	return C
}

// SubSym copies the n×n diagonal block of s starting at start.
func SubSym(s mat.Symmetric, start, n int) *mat.SymDense {
	if start < 0 || n < 0 || start+n > s.SymmetricDim() {
		panic(fmt.Errorf("block [%d,%d) out of range for dimension %d", start, start+n, s.SymmetricDim()))
	}
	out := mat.NewSymDense(n, nil)
	for i := range n {
		for j := i; j < n; j++ {
			out.SetSym(i, j, s.At(start+i, start+j))
		}
	}
	return out
}

// Subset copies the rows and columns of s listed in idx, in that order.
func Subset(s mat.Symmetric, idx []int) *mat.SymDense {
	dim := s.SymmetricDim()
	for _, k := range idx {
		if k < 0 || k >= dim {
			panic(fmt.Errorf("index %d out of range for dimension %d", k, dim))
		}
	}
	out := mat.NewSymDense(len(idx), nil)
	for i, a := range idx {
		for j := i; j < len(idx); j++ {
			out.SetSym(i, j, s.At(a, idx[j]))
		}
	}
	return out
}

// Similarity returns A S A^T.
func Similarity(A mat.Matrix, S mat.Symmetric) *mat.SymDense {
	ar, ac := A.Dims()
	if ac != S.SymmetricDim() {
		panic(fmt.Errorf("similarity: A has %d columns, S has dimension %d", ac, S.SymmetricDim()))
	}
	var AS mat.Dense
	AS.Mul(A, S)
	var full mat.Dense
	full.Mul(&AS, A.T())
	return Symmetrize(&full, ar)
}

// Symmetrize returns (M + M^T)/2 for the leading n×n block of M.
func Symmetrize(M mat.Matrix, n int) *mat.SymDense {
	out := mat.NewSymDense(n, nil)
	for i := range n {
		for j := i; j < n; j++ {
			out.SetSym(i, j, 0.5*(M.At(i, j)+M.At(j, i)))
		}
	}
	return out
}

// InvertSym inverts a symmetric positive definite matrix through its
// Cholesky factorisation. ok is false when s is not positive definite or the
// inverse is not finite.
func InvertSym(s mat.Symmetric) (inv *mat.SymDense, ok bool) {
	var chol mat.Cholesky
	if !chol.Factorize(s) {
		return nil, false
	}
	inv = mat.NewSymDense(s.SymmetricDim(), nil)
	if err := chol.InverseTo(inv); err != nil {
		return nil, false
	}
	if !Finite(inv) {
		return nil, false
	}
	return inv, true
}

// Finite reports whether every element of m is finite.
func Finite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := range r {
		for j := range c {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// IsSymmetric compares m with its transpose element-wise.
func IsSymmetric(m mat.Matrix, tol float64) bool {
	r, c := m.Dims()
	if r != c {
		return false
	}
	for i := range r {
		for j := i + 1; j < c; j++ {
			a, b := m.At(i, j), m.At(j, i)
			if math.Abs(a-b) > tol*math.Max(1, math.Max(math.Abs(a), math.Abs(b))) {
				return false
			}
		}
	}
	return true
}

// MinEigenvalue returns the smallest eigenvalue of s. ok is false if the
// eigen decomposition did not converge.
func MinEigenvalue(s mat.Symmetric) (float64, bool) {
	var eig mat.EigenSym
	if !eig.Factorize(s, false) {
		return 0, false
	}
	vals := eig.Values(nil)
	lo := math.Inf(1)
	for _, v := range vals {
		lo = math.Min(lo, v)
	}
	return lo, true
}

// IsPSD reports whether s is positive semi-definite. Eigenvalues down to
// -tol times the largest diagonal element are accepted as rounding noise.
func IsPSD(s mat.Symmetric, tol float64) bool {
	n := s.SymmetricDim()
	scale := 0.0
	for i := range n {
		scale = math.Max(scale, math.Abs(s.At(i, i)))
	}
	lo, ok := MinEigenvalue(s)
	if !ok {
		return false
	}
	return lo >= -tol*math.Max(scale, 1)
}
