package projection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestProjectionBuffers(t *testing.T) {
	p := New(5, 2)
	assert.Equal(t, 2, p.Dim())
	assert.Equal(t, 5, p.StateDim())
	assert.True(t, p.Exact())

	p.SetR(1, 3)
	p.SetH(0, 4, 1)
	p.AddH(0, 4, 1)
	p.SetH(1, 1, -1)
	p.SetVBlock(0, mat.NewSymDense(2, []float64{1, 0.5, 0.5, 2}))

	assert.Equal(t, 3.0, p.R().AtVec(1))
	assert.Equal(t, 2.0, p.H().At(0, 4))
	assert.Equal(t, []int{1, 4}, p.Columns())
	assert.Equal(t, 0.5, p.V().At(1, 0))
	assert.False(t, p.Exact())

	p.Reset()
	assert.Empty(t, p.Columns())
	assert.Zero(t, p.R().AtVec(1))
	assert.True(t, p.Exact())
}

func TestNewRejectsEmpty(t *testing.T) {
	assert.Panics(t, func() { New(0, 1) })
	assert.Panics(t, func() { New(1, 0) })
}
