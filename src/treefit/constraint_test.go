package treefit

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/belle2/basf2-sub109/src/config"
	"github.com/belle2/basf2-sub109/src/errcode"
	"github.com/belle2/basf2-sub109/src/fitparams"
)

func TestSortConstraintsStable(t *testing.T) {
	var n internalParticle
	list := []Constraint{
		newConstraint(&n, MassConstraint, 0, 1, 10),
		newConstraint(&n, KinematicConstraint, 0, 4, 1),
		newConstraint(&n, TrackConstraint, -1, 5, 1),
		newConstraint(&n, KinematicConstraint, -1, 4, 1),
		newConstraint(&n, TrackConstraint, -2, 5, 0),
		newConstraint(&n, TrackConstraint, -1, 3, 1),
	}
	sortConstraints(list)

	want := []struct {
		typ   ConstraintType
		depth int
		dim   int
	}{
		{TrackConstraint, -2, 5},
		{TrackConstraint, -1, 5},
		{TrackConstraint, -1, 3},
		{KinematicConstraint, -1, 4},
		{KinematicConstraint, 0, 4},
		{MassConstraint, 0, 1},
	}
	require.Len(t, list, len(want))
	for i, w := range want {
		assert.Equal(t, w.typ, list[i].Type(), "position %d", i)
		assert.Equal(t, w.depth, list[i].Depth(), "position %d", i)
		assert.Equal(t, w.dim, list[i].Dim(), "position %d", i)
	}
	assert.Equal(t, 1, list[0].MaxNIter(), "budget is at least one iteration")
}

// A constraint that cannot be projected leaves the state as it was.
func TestConstraintFilterRollback(t *testing.T) {
	dc, err := NewDecayChain(threeProng(t), config.Default())
	require.NoError(t, err)
	fp := fitparams.New(dc.Dim())
	require.False(t, dc.Initialize(fp).Failure())
	before := fp.Clone()

	base, hook := test.NewNullLogger()
	base.SetLevel(log.DebugLevel)
	logger := log.NewEntry(base)

	// the head has no mother, so it has no flight to constrain
	c := newConstraint(dc.Head(), GeometricConstraint, 0, 3, 3)
	ec := c.filter(fp, nil, logger)
	assert.True(t, ec.Has(errcode.BadSetup))
	assert.Equal(t, before.Par().RawVector().Data, fp.Par().RawVector().Data)
	assert.Equal(t, before.Chi2(), fp.Chi2())
	assert.Equal(t, 0, fp.NConstraints())

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "constraint rejected", hook.LastEntry().Message)
	assert.Equal(t, c.String(), hook.LastEntry().Data["constraint"])
}

func TestConstraintFilterAccumulates(t *testing.T) {
	dc, err := NewDecayChain(threeProng(t), config.Default())
	require.NoError(t, err)
	fp := fitparams.New(dc.Dim())
	require.False(t, dc.Initialize(fp).Failure())

	for _, c := range dc.Constraints() {
		require.False(t, c.filter(fp, nil, log.NewEntry(log.StandardLogger())).Failure(), c.String())
	}
	assert.Equal(t, 19, fp.NConstraints())
	assert.Equal(t, 3, fp.NDF())
	assert.InDelta(t, 0, fp.Chi2(), 1e-4)
}
