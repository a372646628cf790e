package appstats

import (
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeClock is a settable clock for window tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestTracker() (*Tracker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	tr := New()
	tr.now = clk.now
	return tr, clk
}

func TestErrorRate_NoOperationsIsZero(t *testing.T) {
	tr, _ := newTestTracker()
	if got := tr.ErrorRate(); got != 0 {
		t.Errorf("ErrorRate with no operations: got %v, want 0", got)
	}
}

func TestCacheHitRate_NoObservationsIsHundred(t *testing.T) {
	tr, _ := newTestTracker()
	if got := tr.CacheHitRate(); got != 100 {
		t.Errorf("CacheHitRate with no observations: got %v, want 100", got)
	}
}

func TestErrorRate_CountsErrorsAsOperations(t *testing.T) {
	tr, _ := newTestTracker()
	for i := 0; i < 18; i++ {
		tr.RecordOperation()
	}
	tr.RecordError()
	tr.RecordError()

	// 2 errors out of 20 operations.
	if got := tr.ErrorRate(); got != 10 {
		t.Errorf("ErrorRate: got %v, want 10", got)
	}
}

func TestErrorRate_PrunesOldEntries(t *testing.T) {
	tr, clk := newTestTracker()
	tr.RecordError()
	tr.RecordError()

	clk.advance(4 * time.Minute)
	tr.RecordOperation()
	tr.RecordOperation()

	if got := tr.ErrorRate(); got != 50 {
		t.Fatalf("ErrorRate inside window: got %v, want 50", got)
	}

	// The two errors are now older than five minutes.
	clk.advance(90 * time.Second)
	if got := tr.ErrorRate(); got != 0 {
		t.Errorf("ErrorRate after pruning: got %v, want 0", got)
	}
	if st := tr.Stats(); st.Operations != 2 || st.Errors != 0 {
		t.Errorf("Stats after pruning: got ops=%d errs=%d, want 2/0", st.Operations, st.Errors)
	}
}

func TestCacheHitRate_Lifetime(t *testing.T) {
	tr, clk := newTestTracker()
	for i := 0; i < 3; i++ {
		tr.RecordCacheHit()
	}
	tr.RecordCacheMiss()

	clk.advance(time.Hour)
	if got := tr.CacheHitRate(); got != 75 {
		t.Errorf("CacheHitRate: got %v, want 75", got)
	}
}

func TestQueueAndConnections(t *testing.T) {
	tr, _ := newTestTracker()
	tr.JobEnqueued()
	tr.JobEnqueued()
	tr.JobStarted()
	tr.ConnOpened()
	tr.ConnOpened()
	tr.ConnClosed()
	tr.ConnClosed()
	tr.ConnClosed() // never below zero

	st := tr.Stats()
	if st.QueueSize != 1 || st.ActiveJobs != 1 {
		t.Errorf("queue: got pending=%d active=%d, want 1/1", st.QueueSize, st.ActiveJobs)
	}
	if st.ActiveConnections != 0 {
		t.Errorf("connections: got %d, want 0", st.ActiveConnections)
	}

	tr.SetQueue(250, -3)
	st = tr.Stats()
	if st.QueueSize != 250 || st.ActiveJobs != 0 {
		t.Errorf("SetQueue: got pending=%d active=%d, want 250/0", st.QueueSize, st.ActiveJobs)
	}
}

func TestConcurrentRecording(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); tr.RecordOperation() }()
		go func() { defer wg.Done(); tr.RecordCacheHit() }()
		go func() { defer wg.Done(); tr.Stats() }()
	}
	wg.Wait()

	st := tr.Stats()
	if st.Operations != 50 {
		t.Errorf("Operations: got %d, want 50", st.Operations)
	}
	if st.CacheHits != 50 {
		t.Errorf("CacheHits: got %d, want 50", st.CacheHits)
	}
}

func TestMiddleware_CountsServerErrors(t *testing.T) {
	tr, _ := newTestTracker()
	h := tr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, p := range []string{"/ok", "/ok", "/ok", "/fail"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	st := tr.Stats()
	if st.Operations != 4 || st.Errors != 1 {
		t.Errorf("middleware: got ops=%d errs=%d, want 4/1", st.Operations, st.Errors)
	}
	if st.ActiveConnections != 0 {
		t.Errorf("connections after requests: got %d, want 0", st.ActiveConnections)
	}
}

func TestErrorWindow_MemoryBoundedUnderLoad(t *testing.T) {
	tr, clk := newTestTracker()
	slots := len(tr.buckets)

	// 1000 operations per second for ten minutes, one error per second.
	for s := 0; s < 600; s++ {
		if s > 0 {
			clk.advance(time.Second)
		}
		for i := 0; i < 999; i++ {
			tr.RecordOperation()
		}
		tr.RecordError()
	}

	if got := len(tr.buckets); got != slots {
		t.Errorf("buckets: got %d, want %d (fixed)", got, slots)
	}
	st := tr.Stats()
	if st.Operations != 300*1000 || st.Errors != 300 {
		t.Errorf("Stats: got ops=%d errs=%d, want 300000/300", st.Operations, st.Errors)
	}
	if got := tr.ErrorRate(); math.Abs(got-0.1) > 1e-9 {
		t.Errorf("ErrorRate: got %v, want 0.1", got)
	}
}

func TestErrorWindow_IdleGapClearsStaleSlots(t *testing.T) {
	tr, clk := newTestTracker()
	tr.RecordError()

	// Exactly one ring length later the error's slot is reused.
	clk.advance(time.Duration(len(tr.buckets)) * time.Second)
	tr.RecordOperation()

	if st := tr.Stats(); st.Operations != 1 || st.Errors != 0 {
		t.Errorf("Stats: got ops=%d errs=%d, want 1/0", st.Operations, st.Errors)
	}
}
