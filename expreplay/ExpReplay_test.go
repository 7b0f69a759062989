package expreplay

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"sfneuman.com/perdqn/timestep"
)

const (
	testFeatureSize int   = 2
	testActionSize  int   = 2
	testSeed        int64 = 1323
)

// testTransition returns a transition whose reward identifies it
func testTransition(r float64, done bool) timestep.Transition {
	return timestep.Transition{
		State:     mat.NewVecDense(testFeatureSize, []float64{r, r + 1}),
		Action:    mat.NewVecDense(testActionSize, []float64{1, 0}),
		Reward:    r,
		Discount:  1.0,
		Done:      done,
		NextState: mat.NewVecDense(testFeatureSize, []float64{r + 2, r + 3}),
	}
}

func newTestBuffer(t *testing.T, config Config) *cache {
	replay, err := New(config, testFeatureSize, testActionSize, testSeed)
	require.NoError(t, err)
	return replay.(*cache)
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"zero min capacity", Config{MinCapacity: 0, MaxCapacity: 4,
			BatchSize: 1, Beta: 0.5}},
		{"batch larger than buffer", Config{MinCapacity: 1, MaxCapacity: 4,
			BatchSize: 8, Beta: 0.5}},
		{"zero batch size", Config{MinCapacity: 1, MaxCapacity: 4,
			BatchSize: 0, Beta: 0.5}},
		{"non-positive beta", Config{MinCapacity: 1, MaxCapacity: 4,
			BatchSize: 1, Beta: 0.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config, testFeatureSize, testActionSize, testSeed)
			assert.Error(t, err)
		})
	}
}

func TestAddRespectsMaxCapacity(t *testing.T) {
	c := newTestBuffer(t, Config{MinCapacity: 1, MaxCapacity: 4,
		BatchSize: 1, Beta: 0.5})

	for i := 0; i < 10; i++ {
		_, err := c.Add(testTransition(float64(i), false))
		require.NoError(t, err)
	}

	assert.Equal(t, 4, c.Capacity())
	assert.True(t, c.Full())
}

func TestAddEvictsFIFO(t *testing.T) {
	c := newTestBuffer(t, Config{MinCapacity: 1, MaxCapacity: 4,
		BatchSize: 1, Beta: 0.5})

	// The ring cursor walks the slots in order and wraps to the oldest
	wantSlots := []int{0, 1, 2, 3, 0, 1}
	for i, want := range wantSlots {
		slot, err := c.Add(testTransition(float64(i), false))
		require.NoError(t, err)
		assert.Equal(t, want, slot)
	}

	// Slots 0 and 1 now hold the newest transitions, slots 2 and 3 the
	// oldest surviving ones
	assert.Equal(t, 4.0, c.rewardCache[0])
	assert.Equal(t, 5.0, c.rewardCache[1])
	assert.Equal(t, 2.0, c.rewardCache[2])
	assert.Equal(t, 3.0, c.rewardCache[3])
}

func TestAddValidatesDimensions(t *testing.T) {
	c := newTestBuffer(t, Config{MinCapacity: 1, MaxCapacity: 4,
		BatchSize: 1, Beta: 0.5})

	badState := timestep.Transition{
		State:     mat.NewVecDense(5, nil),
		Action:    mat.NewVecDense(testActionSize, nil),
		NextState: mat.NewVecDense(5, nil),
	}
	_, err := c.Add(badState)
	assert.Error(t, err)

	badAction := testTransition(0.0, false)
	badAction.Action = mat.NewVecDense(7, nil)
	_, err = c.Add(badAction)
	assert.Error(t, err)
}

func TestAddInsertsAtMaxPriority(t *testing.T) {
	c := newTestBuffer(t, Config{MinCapacity: 1, MaxCapacity: 8,
		BatchSize: 1, Beta: 0.5})

	slot, err := c.Add(testTransition(0.0, false))
	require.NoError(t, err)
	assert.Equal(t, 1.0, c.tree.Priority(slot))

	// Raise the maximum priority seen, then check fresh transitions
	// inherit it
	require.NoError(t, c.UpdatePriorities([]int{slot}, []float64{10.0}))
	newSlot, err := c.Add(testTransition(1.0, false))
	require.NoError(t, err)
	assert.Equal(t, c.maxPriority, c.tree.Priority(newSlot))
	assert.Greater(t, c.tree.Priority(newSlot), 10.0)
}

func TestSampleErrors(t *testing.T) {
	c := newTestBuffer(t, Config{MinCapacity: 3, MaxCapacity: 8,
		BatchSize: 2, Beta: 0.5})

	_, err := c.Sample()
	assert.True(t, IsEmptyBuffer(err))

	_, err = c.Add(testTransition(0.0, false))
	require.NoError(t, err)

	_, err = c.Sample()
	assert.True(t, IsInsufficientSamples(err))

	_, err = c.Add(testTransition(1.0, false))
	require.NoError(t, err)
	_, err = c.Add(testTransition(2.0, false))
	require.NoError(t, err)

	_, err = c.Sample()
	assert.NoError(t, err)
}

func TestSampleBatchLayout(t *testing.T) {
	c := newTestBuffer(t, Config{MinCapacity: 1, MaxCapacity: 8,
		BatchSize: 3, Beta: 0.5})

	for i := 0; i < 6; i++ {
		_, err := c.Add(testTransition(float64(i), i%2 == 0))
		require.NoError(t, err)
	}

	batch, err := c.Sample()
	require.NoError(t, err)

	assert.Len(t, batch.States, 3*testFeatureSize)
	assert.Len(t, batch.NextStates, 3*testFeatureSize)
	assert.Len(t, batch.Actions, 3*testActionSize)
	assert.Len(t, batch.Rewards, 3)
	assert.Len(t, batch.Dones, 3)
	assert.Len(t, batch.Indices, 3)
	assert.Len(t, batch.Weights, 3)

	// Each row must be internally consistent with the slot it was
	// drawn from
	for i, index := range batch.Indices {
		r := c.rewardCache[index]
		assert.Equal(t, r, batch.Rewards[i])
		assert.Equal(t, c.doneCache[index], batch.Dones[i])
		assert.Equal(t, r, batch.States[i*testFeatureSize])
		assert.Equal(t, r+2, batch.NextStates[i*testFeatureSize])
	}
}

func TestSampleWeightsNormalized(t *testing.T) {
	c := newTestBuffer(t, Config{MinCapacity: 1, MaxCapacity: 8,
		BatchSize: 4, Beta: 0.5})

	for i := 0; i < 8; i++ {
		_, err := c.Add(testTransition(float64(i), false))
		require.NoError(t, err)
	}
	require.NoError(t, c.UpdatePriorities(
		[]int{0, 1, 2, 3, 4, 5, 6, 7},
		[]float64{1, 2, 3, 4, 5, 6, 7, 8},
	))

	for trial := 0; trial < 10; trial++ {
		batch, err := c.Sample()
		require.NoError(t, err)

		maxWeight := 0.0
		for _, w := range batch.Weights {
			assert.Greater(t, w, 0.0)
			assert.LessOrEqual(t, w, 1.0)
			if w > maxWeight {
				maxWeight = w
			}
		}
		assert.Equal(t, 1.0, maxWeight)
	}
}

func TestSampleProportionalToPriority(t *testing.T) {
	c := newTestBuffer(t, Config{MinCapacity: 1, MaxCapacity: 4,
		BatchSize: 1, Beta: 0.5})

	for i := 0; i < 4; i++ {
		_, err := c.Add(testTransition(float64(i), false))
		require.NoError(t, err)
	}
	require.NoError(t, c.UpdatePriorities(
		[]int{0, 1, 2, 3},
		[]float64{1, 2, 3, 4},
	))

	const draws = 10000
	counts := make([]int, 4)
	for i := 0; i < draws; i++ {
		batch, err := c.Sample()
		require.NoError(t, err)
		counts[batch.Indices[0]]++
	}

	wantProbs := []float64{0.1, 0.2, 0.3, 0.4}
	for i, want := range wantProbs {
		got := float64(counts[i]) / float64(draws)
		assert.InDelta(t, want, got, 0.02)
	}
}

func TestUpdatePrioritiesShiftsSampling(t *testing.T) {
	c := newTestBuffer(t, Config{MinCapacity: 1, MaxCapacity: 4,
		BatchSize: 1, Beta: 0.5})

	for i := 0; i < 4; i++ {
		_, err := c.Add(testTransition(float64(i), false))
		require.NoError(t, err)
	}

	// Make slot 2 dominate the priority mass
	require.NoError(t, c.UpdatePriorities(
		[]int{0, 1, 2, 3},
		[]float64{0.0, 0.0, 1000.0, 0.0},
	))

	dominant := 0
	const draws = 1000
	for i := 0; i < draws; i++ {
		batch, err := c.Sample()
		require.NoError(t, err)
		if batch.Indices[0] == 2 {
			dominant++
		}
	}
	assert.Greater(t, dominant, draws*99/100)
}

func TestUpdatePrioritiesLengthMismatch(t *testing.T) {
	c := newTestBuffer(t, Config{MinCapacity: 1, MaxCapacity: 4,
		BatchSize: 1, Beta: 0.5})
	_, err := c.Add(testTransition(0.0, false))
	require.NoError(t, err)

	err = c.UpdatePriorities([]int{0}, []float64{1.0, 2.0})
	assert.True(t, IsLengthMismatch(err))
}

func TestUpdatePrioritiesIndexOutOfRange(t *testing.T) {
	c := newTestBuffer(t, Config{MinCapacity: 1, MaxCapacity: 4,
		BatchSize: 1, Beta: 0.5})
	_, err := c.Add(testTransition(0.0, false))
	require.NoError(t, err)

	assert.Error(t, c.UpdatePriorities([]int{3}, []float64{1.0}))
	assert.Error(t, c.UpdatePriorities([]int{-1}, []float64{1.0}))
}

func TestUpdatePrioritiesClampsNonFinite(t *testing.T) {
	c := newTestBuffer(t, Config{MinCapacity: 1, MaxCapacity: 4,
		BatchSize: 1, Beta: 0.5})
	for i := 0; i < 3; i++ {
		_, err := c.Add(testTransition(float64(i), false))
		require.NoError(t, err)
	}

	err := c.UpdatePriorities(
		[]int{0, 1, 2},
		[]float64{math.NaN(), math.Inf(1), -3.0},
	)
	require.NoError(t, err)

	// Clamped values fall to the epsilon floor, never to zero
	for i := 0; i < 3; i++ {
		assert.Equal(t, DefaultPriorityEpsilon, c.tree.Priority(i))
	}
}

func TestUpdatePrioritiesAppliesAlpha(t *testing.T) {
	c := newTestBuffer(t, Config{MinCapacity: 1, MaxCapacity: 4,
		BatchSize: 1, Alpha: 0.5, Beta: 0.5})
	_, err := c.Add(testTransition(0.0, false))
	require.NoError(t, err)

	require.NoError(t, c.UpdatePriorities([]int{0}, []float64{4.0}))
	want := math.Pow(4.0+DefaultPriorityEpsilon, 0.5)
	assert.InDelta(t, want, c.tree.Priority(0), 1e-12)
}

func TestOccupiedSlotsAlwaysPositivePriority(t *testing.T) {
	c := newTestBuffer(t, Config{MinCapacity: 1, MaxCapacity: 8,
		BatchSize: 2, Beta: 0.5})

	for i := 0; i < 8; i++ {
		_, err := c.Add(testTransition(float64(i), false))
		require.NoError(t, err)
	}
	require.NoError(t, c.UpdatePriorities(
		[]int{0, 1, 2, 3},
		[]float64{0.0, 0.0, 0.0, 0.0},
	))

	for i := 0; i < c.Capacity(); i++ {
		assert.Greater(t, c.tree.Priority(i), 0.0)
	}
}

func TestUpdatePrioritiesStaleIndex(t *testing.T) {
	c := newTestBuffer(t, Config{MinCapacity: 1, MaxCapacity: 4,
		BatchSize: 2, Beta: 0.5})

	for i := 0; i < 4; i++ {
		_, err := c.Add(testTransition(float64(i), false))
		require.NoError(t, err)
	}

	batch, err := c.Sample()
	require.NoError(t, err)

	// Evict every sampled transition by wrapping the ring
	for i := 0; i < 4; i++ {
		_, err := c.Add(testTransition(float64(10+i), false))
		require.NoError(t, err)
	}

	// The stale update reprioritizes the slots' current occupants but
	// cannot corrupt the buffer
	err = c.UpdatePriorities(batch.Indices, []float64{0.5, 0.5})
	require.NoError(t, err)

	assert.Equal(t, 4, c.Capacity())
	for i := 0; i < c.Capacity(); i++ {
		assert.Greater(t, c.tree.Priority(i), 0.0)
	}
}

func TestIterator(t *testing.T) {
	c := newTestBuffer(t, Config{MinCapacity: 1, MaxCapacity: 8,
		BatchSize: 2, Beta: 0.5})
	it := NewIterator(c)
	assert.Equal(t, 2, it.BatchSize())

	_, err := it.Next()
	assert.True(t, IsEmptyBuffer(err))

	for i := 0; i < 4; i++ {
		_, err := c.Add(testTransition(float64(i), false))
		require.NoError(t, err)
	}

	// The iterator never runs out
	for i := 0; i < 50; i++ {
		batch, err := it.Next()
		require.NoError(t, err)
		assert.Len(t, batch.Indices, 2)
	}
}
