package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestConcatenate(t *testing.T) {
	A := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	B := mat.NewDense(2, 1, []float64{5, 6})

	C := Concatenate(A, B)

	want := mat.NewDense(2, 3, []float64{1, 2, 5, 3, 4, 6})
	assert.True(t, mat.Equal(want, C))
	assert.Panics(t, func() { Concatenate(A, mat.NewDense(3, 1, nil)) })
}

func TestSubSymAndSubset(t *testing.T) {
	s := mat.NewSymDense(4, []float64{
		1, 2, 3, 4,
		2, 5, 6, 7,
		3, 6, 8, 9,
		4, 7, 9, 10,
	})

	block := SubSym(s, 1, 2)
	assert.True(t, mat.Equal(mat.NewSymDense(2, []float64{5, 6, 6, 8}), block))

	sub := Subset(s, []int{3, 0})
	assert.True(t, mat.Equal(mat.NewSymDense(2, []float64{10, 4, 4, 1}), sub))

	assert.Panics(t, func() { SubSym(s, 3, 2) })
	assert.Panics(t, func() { Subset(s, []int{4}) })
}

func TestSimilarity(t *testing.T) {
	A := mat.NewDense(1, 2, []float64{1, -1})
	S := mat.NewSymDense(2, []float64{2, 1, 1, 3})

	// [1 -1] S [1 -1]^T = 2 - 2 + 3
	out := Similarity(A, S)
	assert.InDelta(t, 3.0, out.At(0, 0), 1e-12)
}

func TestInvertSym(t *testing.T) {
	S := mat.NewSymDense(2, []float64{4, 2, 2, 3})
	inv, ok := InvertSym(S)
	require.True(t, ok)

	var id mat.Dense
	id.Mul(S, inv)
	assert.True(t, mat.EqualApprox(eye(2), &id, 1e-12))

	_, ok = InvertSym(mat.NewSymDense(2, []float64{1, 1, 1, 1}))
	assert.False(t, ok)

	_, ok = InvertSym(mat.NewSymDense(1, []float64{-1}))
	assert.False(t, ok)
}

func TestPSD(t *testing.T) {
	assert.True(t, IsPSD(mat.NewSymDense(2, []float64{1, 1, 1, 1}), 1e-12))
	assert.False(t, IsPSD(mat.NewSymDense(2, []float64{1, 2, 2, 1}), 1e-12))

	lo, ok := MinEigenvalue(mat.NewSymDense(2, []float64{2, 0, 0, 5}))
	require.True(t, ok)
	assert.InDelta(t, 2.0, lo, 1e-12)
}

func TestIsSymmetric(t *testing.T) {
	assert.True(t, IsSymmetric(mat.NewDense(2, 2, []float64{1, 2, 2, 1}), 1e-12))
	assert.False(t, IsSymmetric(mat.NewDense(2, 2, []float64{1, 2, 3, 1}), 1e-12))
	assert.False(t, IsSymmetric(mat.NewDense(2, 3, nil), 1e-12))
}

func eye(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := range n {
		d.Set(i, i, 1)
	}
	return d
}
