package sources

import (
	"context"
	"testing"
	"time"
)

func TestSystem_Sample(t *testing.T) {
	s := NewSystem(time.Now())
	sample, _ := s.Sample(context.Background())

	// Counters may be unavailable in a sandbox; only structural facts are checked.
	if sample.CPU.Cores <= 0 {
		t.Errorf("Cores = %d, want > 0", sample.CPU.Cores)
	}
	if sample.Process.PID <= 0 {
		t.Errorf("PID = %d, want > 0", sample.Process.PID)
	}
	if sample.Process.Goroutines <= 0 {
		t.Errorf("Goroutines = %d, want > 0", sample.Process.Goroutines)
	}
	if sample.Process.Uptime < 0 {
		t.Errorf("Uptime = %v, want >= 0", sample.Process.Uptime)
	}
}
