package foreground

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/misty-step/imploid/internal/lockfile"
	"github.com/misty-step/imploid/internal/model"
	"github.com/misty-step/imploid/internal/processor"
)

type countingTicker struct {
	count atomic.Int32
}

func (c *countingTicker) Tick(ctx context.Context, processorOverride []model.ProcessorName) error {
	c.count.Add(1)
	return nil
}

func TestStartRunsImmediateTickThenCancelStops(t *testing.T) {
	lock := lockfile.New(filepath.Join(t.TempDir(), "imploid.lock"))
	ticker := &countingTicker{}
	runner := New(lock, ticker, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Start(ctx, nil) }()

	deadline := time.After(2 * time.Second)
	for ticker.count.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the immediate tick")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}

	if held := lock.CurrentHolder(); held != nil {
		t.Fatalf("lock still held after Start() returned: %+v", held)
	}
}

func TestStartTwiceConcurrentlyIsAnError(t *testing.T) {
	lock := lockfile.New(filepath.Join(t.TempDir(), "imploid.lock"))
	runner := New(lock, &countingTicker{}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	firstStarted := make(chan struct{})
	go func() {
		close(firstStarted)
		_ = runner.Start(ctx, nil)
	}()
	<-firstStarted
	time.Sleep(50 * time.Millisecond)

	if err := runner.Start(context.Background(), nil); err == nil {
		t.Fatal("second concurrent Start() returned nil error, want already-running error")
	}
}

// childRunTicker spawns a real, slow child process through processor.Run
// on its one (immediate) tick, so a test can cancel the runner's context
// while that child is still in flight.
type childRunTicker struct {
	started chan struct{}

	mu      sync.Mutex
	result  processor.Result
	elapsed time.Duration
}

func (c *childRunTicker) Tick(ctx context.Context, _ []model.ProcessorName) error {
	close(c.started)
	start := time.Now()
	result, _ := processor.Run(ctx, processor.ClaudeDriver{}, "sh", []string{"sh", "-c", "sleep 0.3"}, "", nil, 5, 0.01, nil, nil)
	c.mu.Lock()
	c.result = result
	c.elapsed = time.Since(start)
	c.mu.Unlock()
	return nil
}

// TestStartCancelDuringInFlightChildDoesNotKillIt guards against the
// runner's SIGINT/SIGTERM-derived context cancellation reaching into an
// in-flight processor child: the timeout watchdog inside processor.Run is
// the only thing allowed to end that child early (spec.md §4.8).
func TestStartCancelDuringInFlightChildDoesNotKillIt(t *testing.T) {
	lock := lockfile.New(filepath.Join(t.TempDir(), "imploid.lock"))
	ticker := &childRunTicker{started: make(chan struct{})}
	runner := New(lock, ticker, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Start(ctx, nil) }()

	select {
	case <-ticker.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the in-flight tick to start")
	}

	// Cancel while the child is still sleeping, well before it exits.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}

	ticker.mu.Lock()
	defer ticker.mu.Unlock()
	if ticker.result.Status != model.StatusCompleted {
		t.Fatalf("child status = %v, want completed despite ctx cancellation", ticker.result.Status)
	}
	if ticker.elapsed < 250*time.Millisecond {
		t.Fatalf("child ran for only %v, want it to run to completion (~300ms) despite the context being cancelled mid-run", ticker.elapsed)
	}
}
