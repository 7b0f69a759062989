package expreplay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSumTreeUpdateAndTotal(t *testing.T) {
	tree := newSumTree(5)
	assert.Equal(t, 0.0, tree.Total())

	tree.Update(0, 1.5)
	tree.Update(3, 2.5)
	tree.Update(4, 1.0)

	assert.Equal(t, 5.0, tree.Total())
	assert.Equal(t, 1.5, tree.Priority(0))
	assert.Equal(t, 0.0, tree.Priority(1))
	assert.Equal(t, 2.5, tree.Priority(3))

	// Overwriting a slot replaces its priority rather than adding to it
	tree.Update(3, 0.5)
	assert.Equal(t, 3.0, tree.Total())
	assert.Equal(t, 0.5, tree.Priority(3))
}

func TestSumTreeFindPrefixSum(t *testing.T) {
	tree := newSumTree(4)
	tree.Update(0, 1.0)
	tree.Update(1, 2.0)
	tree.Update(2, 3.0)
	tree.Update(3, 4.0)

	// Cumulative sums are [1, 3, 6, 10]: a mass below 1 lands in slot
	// 0, a mass in [1, 3) lands in slot 1, and so on
	assert.Equal(t, 0, tree.FindPrefixSum(0.0))
	assert.Equal(t, 0, tree.FindPrefixSum(0.99))
	assert.Equal(t, 1, tree.FindPrefixSum(1.0))
	assert.Equal(t, 1, tree.FindPrefixSum(2.5))
	assert.Equal(t, 2, tree.FindPrefixSum(3.0))
	assert.Equal(t, 3, tree.FindPrefixSum(6.0))
	assert.Equal(t, 3, tree.FindPrefixSum(9.99))
}

func TestSumTreeFindPrefixSumSkipsZeroSlots(t *testing.T) {
	tree := newSumTree(4)
	tree.Update(1, 2.0)
	tree.Update(3, 2.0)

	// Slots 0 and 2 hold zero priority and can never be selected
	assert.Equal(t, 1, tree.FindPrefixSum(0.0))
	assert.Equal(t, 1, tree.FindPrefixSum(1.9))
	assert.Equal(t, 3, tree.FindPrefixSum(2.0))
	assert.Equal(t, 3, tree.FindPrefixSum(3.9))
}

func TestSumTreeClampsRoundoff(t *testing.T) {
	tree := newSumTree(3)
	tree.Update(0, 1.0)
	tree.Update(1, 1.0)
	tree.Update(2, 1.0)

	// A mass at or beyond the total must still map to a valid slot
	assert.Equal(t, 2, tree.FindPrefixSum(tree.Total()))
	assert.Equal(t, 2, tree.FindPrefixSum(tree.Total()+1.0))
}
