package kalman

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/belle2/basf2-sub109/src/errcode"
	"github.com/belle2/basf2-sub109/src/fitparams"
	"github.com/belle2/basf2-sub109/src/matrix"
	"github.com/belle2/basf2-sub109/src/projection"
)

// A single scalar measurement of a scalar state reduces to the textbook
// weighted mean.
func TestScalarMeasurement(t *testing.T) {
	fp := fitparams.New(1)
	fp.Set(0, 0)
	fp.Cov().SetSym(0, 0, 4)

	// measure x = 2 with variance 1: r = x - 2
	p := projection.New(1, 1)
	p.SetR(0, -2)
	p.SetH(0, 0, 1)
	p.SetV(0, 0, 1)

	var k Calculator
	require.Equal(t, errcode.Success, k.Init(p, fp))
	k.UpdateParFrom(fp.Par(), fp.Par(), fp)
	require.Equal(t, errcode.Success, k.UpdateCov(fp))

	assert.InDelta(t, 1.6, fp.At(0), 1e-12)
	assert.InDelta(t, 0.8, fp.Cov().At(0, 0), 1e-12)
	assert.InDelta(t, 0.8, k.Chi2(), 1e-12)
}

// An exact constraint x0 - x1 = 0 pulls two independent estimates onto a
// common value and leaves a singular but PSD covariance.
func TestExactConstraintJoseph(t *testing.T) {
	fp := fitparams.New(2)
	fp.Set(0, 1)
	fp.Set(1, 3)
	fp.Cov().SetSym(0, 0, 1)
	fp.Cov().SetSym(1, 1, 1)

	p := projection.New(2, 1)
	p.SetR(0, fp.At(0)-fp.At(1))
	p.SetH(0, 0, 1)
	p.SetH(0, 1, -1)

	var k Calculator
	require.Equal(t, errcode.Success, k.Init(p, fp))
	k.UpdateParFrom(fp.Par(), fp.Par(), fp)
	require.Equal(t, errcode.Success, k.UpdateCov(fp))

	assert.InDelta(t, 2.0, fp.At(0), 1e-12)
	assert.InDelta(t, 2.0, fp.At(1), 1e-12)
	assert.InDelta(t, 2.0, k.Chi2(), 1e-12)
	assert.InDelta(t, 0.5, fp.Cov().At(0, 1), 1e-12)
	assert.True(t, matrix.IsPSD(fp.Cov(), 1e-12))
}

func TestLinearisedUpdateFromPrediction(t *testing.T) {
	pred := fitparams.New(1)
	pred.Set(0, 0)
	pred.Cov().SetSym(0, 0, 4)

	// constraint x^2 = 4 linearised at x = 1.5
	lin := pred.Clone()
	lin.Set(0, 1.5)
	p := projection.New(1, 1)
	p.SetR(0, 1.5*1.5-4)
	p.SetH(0, 0, 2*1.5)
	p.SetV(0, 0, 1e-6)

	var k Calculator
	require.Equal(t, errcode.Success, k.Init(p, pred))
	k.UpdateParFrom(pred.Par(), lin.Par(), lin)

	// r' = r + H (0 - 1.5) = -1.75 - 4.5
	assert.InDelta(t, 6.25*36/(36+1e-6)/3, lin.At(0), 1e-6)
}

// The update restricted to the columns of H matches the dense Joseph form
// (I - K H) P (I - K H)^T + K V K^T on a correlated state.
func TestSparseUpdateMatchesDenseJoseph(t *testing.T) {
	const n = 6
	fp := fitparams.New(n)
	for i := range n {
		fp.Set(i, float64(i)*0.3)
		fp.Cov().SetSym(i, i, 1+float64(i))
		if i > 0 {
			fp.Cov().SetSym(i-1, i, 0.4)
		}
	}
	require.True(t, matrix.IsPSD(fp.Cov(), 0))
	before := fp.Clone()

	p := projection.New(n, 2)
	p.SetR(0, 0.5)
	p.SetR(1, -0.2)
	p.SetH(0, 1, 1)
	p.SetH(0, 4, -2)
	p.SetH(1, 4, 0.5)
	p.SetV(0, 0, 0.1)
	p.SetV(1, 1, 0.2)
	require.Equal(t, []int{1, 4}, p.Columns())

	var k Calculator
	require.Equal(t, errcode.Success, k.Init(p, fp))
	k.UpdateParFrom(fp.Par(), fp.Par(), fp)
	require.Equal(t, errcode.Success, k.UpdateCov(fp))

	// dense reference
	P := before.Cov()
	H := p.H()
	var pht mat.Dense
	pht.Mul(P, H.T())
	C := matrix.Similarity(H, P)
	C.AddSym(C, p.V())
	cInv, ok := matrix.InvertSym(C)
	require.True(t, ok)
	var K mat.Dense
	K.Mul(&pht, cInv)
	A := mat.NewDense(n, n, nil)
	A.Mul(&K, H)
	A.Scale(-1, A)
	for i := range n {
		A.Set(i, i, A.At(i, i)+1)
	}
	want := matrix.Similarity(A, P)
	want.AddSym(want, matrix.Similarity(&K, p.V()))

	var kr mat.VecDense
	kr.MulVec(&K, p.R())
	for i := range n {
		assert.InDelta(t, before.At(i)-kr.AtVec(i), fp.At(i), 1e-12, "par %d", i)
		for j := range n {
			assert.InDelta(t, want.At(i, j), fp.Cov().At(i, j), 1e-12, "cov %d,%d", i, j)
		}
	}
}

func TestSingularInnovation(t *testing.T) {
	fp := fitparams.New(2)
	p := projection.New(2, 1)
	p.SetR(0, 1)
	p.SetH(0, 0, 1)

	var k Calculator
	assert.Equal(t, errcode.InversionError, k.Init(p, fp))
	assert.Equal(t, errcode.BadSetup, k.Init(projection.New(3, 1), fp), "state dimension mismatch")

	flat := projection.New(2, 1)
	flat.SetR(0, 1)
	flat.SetV(0, 0, 1)
	assert.Equal(t, errcode.BadSetup, k.Init(flat, fp), "no dependence on the state")
}
