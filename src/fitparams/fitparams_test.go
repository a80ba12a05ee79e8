package fitparams

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSubBlocks(t *testing.T) {
	fp := New(4)
	for i := range 4 {
		fp.Set(i, float64(i+1))
		for j := i; j < 4; j++ {
			fp.Cov().SetSym(i, j, float64(10*i+j))
		}
	}

	assert.Equal(t, []float64{2, 3}, fp.SubPar(1, 2))

	block := fp.SubCov(1, 2)
	assert.Equal(t, 11.0, block.At(0, 0))
	assert.Equal(t, 12.0, block.At(0, 1))
	assert.Equal(t, 22.0, block.At(1, 1))

	sub := fp.SubCovIndices([]int{3, 0})
	assert.Equal(t, 33.0, sub.At(0, 0))
	assert.Equal(t, 3.0, sub.At(0, 1))

	fp.SetSubPar(2, []float64{-1, -2})
	assert.Equal(t, -2.0, fp.At(3))
}

func TestResetCov(t *testing.T) {
	fp := New(2)
	fp.Cov().SetSym(0, 0, 2)
	fp.Cov().SetSym(0, 1, 1)
	fp.Cov().SetSym(1, 1, 3)

	fp.ResetCov(10)

	assert.True(t, mat.Equal(mat.NewSymDense(2, []float64{20, 0, 0, 30}), fp.Cov()))
	assert.True(t, fp.TestCov())

	fp.Cov().SetSym(1, 1, 0)
	assert.False(t, fp.TestCov())

	fp.Cov().SetSym(1, 1, 1)
	fp.Set(0, math.NaN())
	assert.False(t, fp.TestCov())
}

func TestChi2Bookkeeping(t *testing.T) {
	fp := New(3)
	fp.AddChi2(1.5, 5)
	fp.AddChi2(0.5, 1)

	assert.Equal(t, 2.0, fp.Chi2())
	assert.Equal(t, 6, fp.NConstraints())
	assert.Equal(t, 3, fp.NDF())

	fp.ResetChi2()
	assert.Zero(t, fp.Chi2())
	assert.Equal(t, -3, fp.NDF())
}

func TestCloneIsDeep(t *testing.T) {
	fp := New(2)
	fp.Set(0, 1)
	fp.Cov().SetSym(0, 0, 4)
	fp.AddChi2(2, 1)

	c := fp.Clone()
	c.Set(0, 7)
	c.Cov().SetSym(0, 0, 9)

	assert.Equal(t, 1.0, fp.At(0))
	assert.Equal(t, 4.0, fp.Cov().At(0, 0))
	assert.Equal(t, 2.0, c.Chi2())

	require.Panics(t, func() { New(3).CopyFrom(fp) })
}
