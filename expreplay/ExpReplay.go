// Package expreplay implements prioritized experience replay
package expreplay

import (
	"fmt"
	"math"
	"math/rand"
	"os"

	"sfneuman.com/perdqn/timestep"
)

const (
	// DefaultPriorityEpsilon is the floor added to every priority
	// before it is written to the buffer so that no transition ever
	// has zero probability of being replayed
	DefaultPriorityEpsilon float64 = 1e-5

	// DefaultAlpha is the default priority exponent. An exponent of 1
	// uses the raw loss magnitude as the priority.
	DefaultAlpha float64 = 1.0
)

// Config implements a specific configuration of an ExperienceReplayer
type Config struct {
	MinCapacity int
	MaxCapacity int
	BatchSize   int

	// Alpha is the priority exponent: written priorities are
	// (p + PriorityEpsilon)^Alpha. Zero value means DefaultAlpha.
	Alpha float64

	// Beta is the importance sampling bias-correction exponent. It is
	// fixed for the lifetime of the buffer; annealing, if desired, is
	// the surrounding trainer's concern.
	Beta float64

	// PriorityEpsilon is the positive floor added to every priority.
	// Zero value means DefaultPriorityEpsilon.
	PriorityEpsilon float64
}

// Create creates and returns the ExperienceReplayer with the specified
// Config.
func (c Config) Create(featureSize, actionSize int,
	seed int64) (ExperienceReplayer, error) {
	return New(c, featureSize, actionSize, seed)
}

// Batch is a minibatch of transitions sampled proportionally to
// priority from an ExperienceReplayer. State and action data are stored
// flat in row major order, following the convention that the i'th
// sample's features occupy [i*featureSize, (i+1)*featureSize).
//
// Indices are the buffer slots the samples were drawn from; updated
// priorities are written back at these indices. Weights are the
// normalized importance sampling weights of the samples: each is at
// most 1, and the largest weight in the batch is exactly 1.
type Batch struct {
	States     []float64
	Actions    []float64
	Rewards    []float64
	Dones      []float64
	NextStates []float64

	Indices []int
	Weights []float64
}

// ExperienceReplayer implements a prioritized experience replay buffer.
// Transitions are stored in a fixed number of slots, evicted first-in
// first-out once the buffer is full, and sampled with probability
// proportional to their priority.
//
// The buffer expects a single-writer sequential training loop: slot
// indices returned by Sample are only valid for UpdatePriorities while
// no intervening Add has evicted that slot. A stale update silently
// reprioritizes whatever transition now occupies the slot; under FIFO
// eviction this staleness is bounded and accepted.
type ExperienceReplayer interface {
	// Add adds a transition to the buffer with the maximum priority
	// seen so far, evicting the oldest transition if the buffer is
	// full, and returns the slot index the transition was stored at
	Add(t timestep.Transition) (int, error)

	// Sample samples a batch of experience from the buffer
	// proportionally to priority
	Sample() (*Batch, error)

	// UpdatePriorities overwrites the priorities at the argument
	// slot indices
	UpdatePriorities(indices []int, priorities []float64) error

	// Capacity returns the current number of samples in the buffer
	Capacity() int

	// MaxCapacity returns the maximum allowable samples in the buffer
	MaxCapacity() int

	// MinCapacity returns the number of samples required to be in
	// the buffer before the buffer can be sampled
	MinCapacity() int

	// Full returns whether the buffer is at maximum capacity
	Full() bool

	// BatchSize returns the number of samples returned by Sample()
	BatchSize() int
}

// cache implements a concrete ExperienceReplayer
type cache struct {
	stateCache     []float64
	actionCache    []float64
	rewardCache    []float64
	doneCache      []float64
	nextStateCache []float64

	// tree indexes the cumulative priorities of all occupied slots
	tree *sumTree

	// insert is the ring cursor: the slot the next Add writes to.
	// Slots are filled in order, so once the buffer wraps the cursor
	// always points at the oldest remaining transition.
	insert int
	filled int

	// maxPriority is the largest priority written so far; fresh
	// transitions are inserted at this priority so that they are
	// eligible for early sampling
	maxPriority float64

	minCapacity     int
	maxCapacity     int
	batchSize       int
	alpha           float64
	beta            float64
	priorityEpsilon float64
	featureSize     int
	actionSize      int

	rng *rand.Rand
}

// New creates and returns a new ExperienceReplayer with the argument
// configuration. The featureSize and actionSize parameters define the
// size of the feature and action vectors.
//
// Pixel observations should be flattened before adding to the buffer.
func New(config Config, featureSize, actionSize int,
	seed int64) (ExperienceReplayer, error) {
	if config.MinCapacity <= 0 {
		return nil, fmt.Errorf("new: minCapacity must be > 0")
	}
	if config.MaxCapacity < 1 {
		return nil, fmt.Errorf("new: maxCapacity must be >= 1")
	}
	if config.MaxCapacity < config.BatchSize {
		return nil, fmt.Errorf("new: cannot have batch size (%v) > max "+
			"buffer capacity (%v)", config.BatchSize, config.MaxCapacity)
	}
	if config.BatchSize < 1 {
		return nil, fmt.Errorf("new: batch size must be >= 1")
	}
	if config.Beta <= 0 {
		return nil, fmt.Errorf("new: beta must be > 0")
	}

	alpha := config.Alpha
	if alpha == 0 {
		alpha = DefaultAlpha
	}
	priorityEpsilon := config.PriorityEpsilon
	if priorityEpsilon == 0 {
		priorityEpsilon = DefaultPriorityEpsilon
	}

	source := rand.NewSource(seed)

	return &cache{
		stateCache:     make([]float64, config.MaxCapacity*featureSize),
		actionCache:    make([]float64, config.MaxCapacity*actionSize),
		rewardCache:    make([]float64, config.MaxCapacity),
		doneCache:      make([]float64, config.MaxCapacity),
		nextStateCache: make([]float64, config.MaxCapacity*featureSize),

		tree: newSumTree(config.MaxCapacity),

		maxPriority: 1.0,

		minCapacity:     config.MinCapacity,
		maxCapacity:     config.MaxCapacity,
		batchSize:       config.BatchSize,
		alpha:           alpha,
		beta:            config.Beta,
		priorityEpsilon: priorityEpsilon,
		featureSize:     featureSize,
		actionSize:      actionSize,

		rng: rand.New(source),
	}, nil
}

// Add adds a transition to the cache at the ring cursor, overwriting
// the oldest transition once the cache is full. The transition is
// inserted with the maximum priority seen so far so that it is
// eligible for sampling before its first loss is known. Add returns
// the slot index at which the transition was stored.
func (c *cache) Add(t timestep.Transition) (int, error) {
	if t.State.Len() != c.featureSize || t.NextState.Len() != c.featureSize {
		return 0, fmt.Errorf("add: invalid feature size \n\twant(%v)"+
			"\n\thave(%v)", c.featureSize, t.State.Len())
	}
	if t.Action.Len() != c.actionSize {
		return 0, fmt.Errorf("add: invalid action size \n\twant(%v)"+
			"\n\thave(%v)", c.actionSize, t.Action.Len())
	}

	index := c.insert

	// Copy states
	stateInd := index * c.featureSize
	for i := 0; i < c.featureSize; i++ {
		c.stateCache[stateInd+i] = t.State.AtVec(i)
		c.nextStateCache[stateInd+i] = t.NextState.AtVec(i)
	}

	// Copy actions
	actionInd := index * c.actionSize
	for i := 0; i < c.actionSize; i++ {
		c.actionCache[actionInd+i] = t.Action.AtVec(i)
	}

	c.rewardCache[index] = t.Reward
	if t.Done {
		c.doneCache[index] = 1.0
	} else {
		c.doneCache[index] = 0.0
	}

	c.tree.Update(index, c.maxPriority)

	c.insert = (c.insert + 1) % c.maxCapacity
	if c.filled < c.maxCapacity {
		c.filled++
	}

	return index, nil
}

// Sample samples and returns a batch of transitions from the replay
// buffer, drawn with replacement, each slot selected with probability
// proportional to its priority.
func (c *cache) Sample() (*Batch, error) {
	if c.Capacity() == 0 {
		return nil, &ExpReplayError{
			Op:  "sample",
			Err: errEmptyCache,
		}
	}
	if c.Capacity() < c.MinCapacity() {
		return nil, &ExpReplayError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
	}

	indices := make([]int, c.batchSize)
	for i := range indices {
		mass := c.rng.Float64() * c.tree.Total()
		index := c.tree.FindPrefixSum(mass)
		if index >= c.Capacity() {
			// Only reachable by floating point roundoff before the
			// ring has wrapped; unoccupied slots hold zero priority
			index = c.Capacity() - 1
		}
		indices[i] = index
	}

	weights := c.importanceWeights(indices)

	stateBatch := make([]float64, c.batchSize*c.featureSize)
	nextStateBatch := make([]float64, c.batchSize*c.featureSize)
	for i, index := range indices {
		batchStartInd := i * c.featureSize
		expStartInd := index * c.featureSize
		copy(stateBatch[batchStartInd:batchStartInd+c.featureSize],
			c.stateCache[expStartInd:expStartInd+c.featureSize],
		)
		copy(nextStateBatch[batchStartInd:batchStartInd+c.featureSize],
			c.nextStateCache[expStartInd:expStartInd+c.featureSize],
		)
	}

	actionBatch := make([]float64, c.batchSize*c.actionSize)
	for i, index := range indices {
		batchStartInd := i * c.actionSize
		expStartInd := index * c.actionSize
		copy(actionBatch[batchStartInd:batchStartInd+c.actionSize],
			c.actionCache[expStartInd:expStartInd+c.actionSize],
		)
	}

	rewardBatch := make([]float64, c.batchSize)
	doneBatch := make([]float64, c.batchSize)
	for i, index := range indices {
		rewardBatch[i] = c.rewardCache[index]
		doneBatch[i] = c.doneCache[index]
	}

	return &Batch{
		States:     stateBatch,
		Actions:    actionBatch,
		Rewards:    rewardBatch,
		Dones:      doneBatch,
		NextStates: nextStateBatch,
		Indices:    indices,
		Weights:    weights,
	}, nil
}

// importanceWeights computes the normalized importance sampling weights
// of the slots at the argument indices:
//
//	w_i = (N * P(i))^(-beta) / max_j w_j
//
// where N is the current occupancy and P(i) the sampling probability of
// slot i. Normalizing by the largest weight in the batch keeps every
// weight at most 1, preventing rare low-priority samples from scaling
// gradients up.
func (c *cache) importanceWeights(indices []int) []float64 {
	total := c.tree.Total()
	n := float64(c.Capacity())

	weights := make([]float64, len(indices))
	maxWeight := 0.0
	for i, index := range indices {
		p := c.tree.Priority(index) / total
		weights[i] = math.Pow(n*p, -c.beta)
		if weights[i] > maxWeight {
			maxWeight = weights[i]
		}
	}

	for i := range weights {
		weights[i] /= maxWeight
	}
	return weights
}

// UpdatePriorities overwrites the priorities of the slots at the
// argument indices with (priority + priorityEpsilon)^alpha. The epsilon
// floor keeps every stored priority strictly positive so that no
// transition is starved of replay.
//
// Indices are only valid if no intervening Add evicted the slot they
// refer to; a stale index silently reprioritizes the slot's current
// occupant. Non-finite or negative priorities are never written: they
// are clamped to the epsilon floor and a warning is printed.
func (c *cache) UpdatePriorities(indices []int, priorities []float64) error {
	if len(indices) != len(priorities) {
		return &ExpReplayError{
			Op:  "update_priorities",
			Err: errLengthMismatch,
		}
	}

	clamped := 0
	for i, index := range indices {
		if index < 0 || index >= c.Capacity() {
			return fmt.Errorf("update_priorities: index %v out of range "+
				"[0, %v)", index, c.Capacity())
		}

		p := priorities[i]
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			p = 0.0
			clamped++
		}

		priority := math.Pow(p+c.priorityEpsilon, c.alpha)
		c.tree.Update(index, priority)

		if priority > c.maxPriority {
			c.maxPriority = priority
		}
	}

	if clamped > 0 {
		fmt.Fprintf(os.Stderr, "warning: update_priorities: clamped %v "+
			"non-finite or negative priorities to the epsilon floor\n",
			clamped)
	}

	return nil
}

// BatchSize returns the number of samples sampled using Sample() -
// a.k.a the batch size
func (c *cache) BatchSize() int {
	return c.batchSize
}

// Capacity returns the current number of elements in the cache that
// are available for sampling
func (c *cache) Capacity() int {
	return c.filled
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the cache
func (c *cache) MaxCapacity() int {
	return c.maxCapacity
}

// MinCapacity returns the minimum number of elements required in the
// cache before sampling is allowed
func (c *cache) MinCapacity() int {
	return c.minCapacity
}

// Full returns whether the cache is at maximum capacity, after which
// every Add evicts the oldest remaining transition
func (c *cache) Full() bool {
	return c.filled == c.maxCapacity
}

// String returns the string representation of the cache
func (c *cache) String() string {
	baseStr := "Occupancy: %v/%v \nInsert At: %v \nTotal Priority: %v \n" +
		"States: %v \nActions: %v \nRewards: %v \nDones: %v \n" +
		"Next States: %v"
	return fmt.Sprintf(baseStr, c.filled, c.maxCapacity, c.insert,
		c.tree.Total(), c.stateCache, c.actionCache, c.rewardCache,
		c.doneCache, c.nextStateCache)
}
