package opt

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCatalogStartsUniform(t *testing.T) {
	c := newCatalog(removalNames)
	require.Len(t, c.Operators(), int(numRemovalOps))
	for _, op := range c.Operators() {
		assert.InDelta(t, 0.1, op.Weight, 1e-12)
		assert.Zero(t, op.Uses)
	}
	assert.Equal(t, "shaw_removal", c.Name(int(ShawRemoval)))
}

func TestUpdateWeightsBlendsAverageScore(t *testing.T) {
	c := newCatalog([]string{"a", "b"})
	c.reward(0, 25)
	c.reward(0, 0)

	c.UpdateWeights(0.25)

	ops := c.Operators()
	assert.InDelta(t, 0.5*0.75+0.25*12.5, ops[0].Weight, 1e-12)
	assert.InDelta(t, 0.5, ops[1].Weight, 1e-12, "unused operator keeps its weight")
	for _, op := range ops {
		assert.Zero(t, op.Score)
		assert.Zero(t, op.Uses)
	}
}

func TestSelectOpFollowsWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for range 100 {
		assert.Equal(t, 1, selectOp([]float64{0, 3, 0}, rng))
	}
	assert.Equal(t, 0, selectOp([]float64{0, 0}, rng))

	counts := make([]int, 2)
	for range 10000 {
		counts[selectOp([]float64{1, 3}, rng)]++
	}
	assert.InDelta(t, 0.75, float64(counts[1])/10000, 0.03)
}

func TestChooseRestrictsToAllowed(t *testing.T) {
	c := newCatalog(removalNames)
	rng := rand.New(rand.NewSource(7))
	for range 200 {
		op := c.choose(rng, routeRemovalOps)
		assert.Contains(t, routeRemovalOps, op)
	}
}
