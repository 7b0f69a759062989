package schedule

import "testing"

func TestLinearDecayValue(t *testing.T) {
	decay, err := NewLinearDecay(1.0, 0.1, 100)
	if err != nil {
		t.Fatalf("could not create schedule: %v", err)
	}

	tests := []struct {
		step int
		want float64
	}{
		{0, 1.0},
		{50, 0.55},
		{100, 0.1},
		{150, 0.1},   // Floor holds past LastFrame
		{10000, 0.1}, // And stays there forever
	}

	for _, tt := range tests {
		if got := decay.Value(tt.step); got != tt.want {
			t.Errorf("value at step %v: \n\twant(%v) \n\thave(%v)", tt.step,
				tt.want, got)
		}
	}
}

func TestLinearDecayMonotone(t *testing.T) {
	decay, err := NewLinearDecay(1.0, 0.02, 1000)
	if err != nil {
		t.Fatalf("could not create schedule: %v", err)
	}

	prev := decay.Value(0)
	for step := 1; step <= 2000; step++ {
		v := decay.Value(step)
		if v > prev {
			t.Fatalf("schedule increased at step %v: %v -> %v", step, prev, v)
		}
		if v < decay.End {
			t.Fatalf("schedule fell below floor at step %v: %v", step, v)
		}
		prev = v
	}
}

func TestLinearDecayConstant(t *testing.T) {
	// Start == End yields a constant schedule
	decay, err := NewLinearDecay(0.5, 0.5, 10)
	if err != nil {
		t.Fatalf("could not create schedule: %v", err)
	}
	for _, step := range []int{0, 5, 10, 100} {
		if got := decay.Value(step); got != 0.5 {
			t.Errorf("value at step %v: \n\twant(0.5) \n\thave(%v)", step, got)
		}
	}
}

func TestNewLinearDecayValidates(t *testing.T) {
	if _, err := NewLinearDecay(0.1, 1.0, 100); err == nil {
		t.Error("expected error when start < end")
	}
	if _, err := NewLinearDecay(1.0, 0.1, 0); err == nil {
		t.Error("expected error when lastFrame is not positive")
	}
}
