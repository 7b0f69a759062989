package expreplay

// sumTree maintains the cumulative sum of priorities over a fixed
// number of slots, supporting O(log n) priority updates and O(log n)
// lookup of the slot owning a given prefix of the total priority mass.
// This is what makes proportional sampling tractable: a uniform draw
// in [0, Total()) is mapped to a slot without a linear scan over all
// priorities.
//
// The tree is stored as an implicit binary heap over a power-of-two
// number of leaves. Leaf i holds the priority of slot i; each internal
// node holds the sum of its two children, so the root holds the total
// priority. Slots beyond the configured count always hold priority 0
// and can never be selected.
type sumTree struct {
	nodes      []float64
	leafOffset int
	slots      int
}

// newSumTree returns a new sumTree over the given number of slots, all
// with priority 0
func newSumTree(slots int) *sumTree {
	leafOffset := 1
	for leafOffset < slots {
		leafOffset <<= 1
	}

	return &sumTree{
		nodes:      make([]float64, 2*leafOffset),
		leafOffset: leafOffset,
		slots:      slots,
	}
}

// Update sets the priority of a slot and propagates the change to all
// ancestor sums
func (s *sumTree) Update(slot int, priority float64) {
	i := s.leafOffset + slot
	s.nodes[i] = priority

	for i > 1 {
		i >>= 1
		s.nodes[i] = s.nodes[2*i] + s.nodes[2*i+1]
	}
}

// Priority returns the priority currently held by a slot
func (s *sumTree) Priority(slot int) float64 {
	return s.nodes[s.leafOffset+slot]
}

// Total returns the sum of the priorities of all slots
func (s *sumTree) Total() float64 {
	return s.nodes[1]
}

// FindPrefixSum returns the slot p such that the cumulative priority of
// slots 0, 1, ..., p-1 is at most mass, while the cumulative priority
// of slots 0, 1, ..., p exceeds mass. For mass drawn uniformly from
// [0, Total()), each slot is returned with probability proportional to
// its priority.
func (s *sumTree) FindPrefixSum(mass float64) int {
	i := 1
	for i < s.leafOffset {
		left := 2 * i
		if mass < s.nodes[left] {
			i = left
		} else {
			mass -= s.nodes[left]
			i = left + 1
		}
	}

	slot := i - s.leafOffset
	if slot >= s.slots {
		// Floating point roundoff pushed the descent past the last
		// slot
		slot = s.slots - 1
	}
	return slot
}
