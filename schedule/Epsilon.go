// Package schedule implements schedules of scalar training parameters
// as pure functions of the global step counter
package schedule

import "fmt"

// LinearDecay maps a monotonically increasing step counter to an
// exploration probability by linear interpolation between Start and
// End over LastFrame steps. After LastFrame steps, the value stays at
// End. LinearDecay is a pure function of its step argument: it holds
// no state beyond the three configured constants.
type LinearDecay struct {
	Start     float64
	End       float64
	LastFrame int
}

// NewLinearDecay returns a new LinearDecay which decays from start at
// step 0 to end at step lastFrame
func NewLinearDecay(start, end float64, lastFrame int) (LinearDecay, error) {
	if start < end {
		return LinearDecay{}, fmt.Errorf("newLinearDecay: start (%v) must "+
			"be >= end (%v)", start, end)
	}
	if lastFrame <= 0 {
		return LinearDecay{}, fmt.Errorf("newLinearDecay: lastFrame must "+
			"be > 0 \n\thave(%v)", lastFrame)
	}

	return LinearDecay{Start: start, End: end, LastFrame: lastFrame}, nil
}

// Value returns the schedule's value at the argument step
func (l LinearDecay) Value(step int) float64 {
	decayed := l.Start - float64(step)*(l.Start-l.End)/float64(l.LastFrame)
	if decayed < l.End {
		return l.End
	}
	return decayed
}
