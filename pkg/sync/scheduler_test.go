package sync

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sdejongh/davsync/pkg/models"
)

// fakePasser counts passes and can hold them open
type fakePasser struct {
	calls   atomic.Int32
	block   chan struct{}
	started chan struct{}
	err     error
}

func newFakePasser() *fakePasser {
	return &fakePasser{started: make(chan struct{}, 16)}
}

func (f *fakePasser) Synchronize(ctx context.Context) (*models.SyncPassResult, error) {
	f.calls.Add(1)
	f.started <- struct{}{}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	return &models.SyncPassResult{}, f.err
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func runScheduler(t *testing.T, s *Scheduler) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestScheduler_Trigger(t *testing.T) {
	p := newFakePasser()
	s := NewScheduler(p, nil)

	var mu gosync.Mutex
	var results int
	s.OnResult(func(r *models.SyncPassResult, err error) {
		mu.Lock()
		defer mu.Unlock()
		results++
	})

	// A trigger sent before Run is kept until the loop starts.
	s.Trigger()
	runScheduler(t, s)

	<-p.started
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return results == 1
	})
	waitFor(t, func() bool { return !s.Running() })

	s.Trigger()
	<-p.started
	waitFor(t, func() bool { return p.calls.Load() == 2 })
}

func TestScheduler_DropsWhileRunning(t *testing.T) {
	p := newFakePasser()
	p.block = make(chan struct{})
	s := NewScheduler(p, nil)
	runScheduler(t, s)

	s.Trigger()
	<-p.started
	if !s.Running() {
		t.Fatal("Running() should be true while the pass is held")
	}

	for i := 0; i < 5; i++ {
		s.Trigger()
	}
	time.Sleep(50 * time.Millisecond)
	close(p.block)
	s.Wait()
	waitFor(t, func() bool { return !s.Running() })

	// Triggers received while busy are dropped, not queued.
	time.Sleep(50 * time.Millisecond)
	if n := p.calls.Load(); n != 1 {
		t.Errorf("passes = %d, want 1", n)
	}
}

func TestScheduler_Interval(t *testing.T) {
	p := newFakePasser()
	s := NewScheduler(p, nil)
	s.Reconfigure(true, 20*time.Millisecond)
	runScheduler(t, s)

	waitFor(t, func() bool { return p.calls.Load() >= 3 })

	// Disabling stops the timer.
	s.Reconfigure(false, 20*time.Millisecond)
	waitFor(t, func() bool { return !s.Running() })
	time.Sleep(30 * time.Millisecond)
	before := p.calls.Load()
	time.Sleep(100 * time.Millisecond)
	if after := p.calls.Load(); after != before {
		t.Errorf("passes continued after disabling: %d -> %d", before, after)
	}

	if enabled, interval := s.Schedule(); enabled || interval != 20*time.Millisecond {
		t.Errorf("Schedule() = %v, %v", enabled, interval)
	}
}

func TestScheduler_ReportsFailures(t *testing.T) {
	p := newFakePasser()
	p.err = errors.New("boom")
	s := NewScheduler(p, nil)

	got := make(chan error, 1)
	s.OnResult(func(r *models.SyncPassResult, err error) { got <- err })
	runScheduler(t, s)

	s.Trigger()
	select {
	case err := <-got:
		if err == nil || err.Error() != "boom" {
			t.Errorf("OnResult error = %v, want boom", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OnResult not called")
	}
}

func TestScheduler_StopWaitsForPass(t *testing.T) {
	p := newFakePasser()
	p.block = make(chan struct{})
	s := NewScheduler(p, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	s.Trigger()
	<-p.started
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if s.Running() {
		t.Error("Run returned with a pass still in flight")
	}
}

func TestScheduler_WithEngine(t *testing.T) {
	h := newHarness(t, "Notes")
	h.writeLocal("a.md", "a")

	s := NewScheduler(h.engine, nil)
	results := make(chan *models.SyncPassResult, 1)
	s.OnResult(func(r *models.SyncPassResult, err error) {
		if err == nil {
			results <- r
		}
	})
	runScheduler(t, s)
	s.Trigger()

	select {
	case r := <-results:
		if r.Uploaded != 1 {
			t.Errorf("Uploaded = %d, want 1", r.Uploaded)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no pass completed")
	}
	if h.engine.Status().Status != models.StatusSuccess {
		t.Errorf("engine status = %s", h.engine.Status().Status)
	}
}
