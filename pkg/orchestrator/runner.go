package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Runner repeats a batch cycle on an interval until stopped.
type Runner struct {
	interval time.Duration
	cycle    func(context.Context) error

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}

	runs    int
	lastRun time.Time
	lastErr error

	onError func(error)
}

// NewRunner creates a runner. The cycle runs once on Start and then every
// interval.
func NewRunner(interval time.Duration, cycle func(context.Context) error) *Runner {
	return &Runner{interval: interval, cycle: cycle}
}

// OnError sets a callback for failed cycles.
func (r *Runner) OnError(fn func(error)) {
	r.onError = fn
}

// Start starts the loop in the background.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("runner already running")
	}
	if r.interval <= 0 {
		r.mu.Unlock()
		return fmt.Errorf("runner interval must be positive, got %v", r.interval)
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.done = make(chan struct{})
	stopCh, done := r.stopCh, r.done
	r.mu.Unlock()

	go r.loop(ctx, stopCh, done)
	return nil
}

// Stop stops the loop and waits for an in-flight cycle to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	close(r.stopCh)
	r.running = false
	done := r.done
	r.mu.Unlock()

	<-done
}

// IsRunning returns true if the loop is running.
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// RunnerStatus is a snapshot of the loop.
type RunnerStatus struct {
	Running   bool      `json:"running"`
	Runs      int       `json:"runs"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Interval  string    `json:"interval"`
}

// Status returns the current status.
func (r *Runner) Status() RunnerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := RunnerStatus{
		Running:  r.running,
		Runs:     r.runs,
		LastRun:  r.lastRun,
		Interval: r.interval.String(),
	}
	if r.lastErr != nil {
		s.LastError = r.lastErr.Error()
	}
	return s
}

func (r *Runner) loop(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	r.runOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.running = false
			r.mu.Unlock()
			return
		case <-stopCh:
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	err := r.cycle(ctx)

	r.mu.Lock()
	r.runs++
	r.lastRun = time.Now()
	r.lastErr = err
	r.mu.Unlock()

	if err != nil && r.onError != nil {
		r.onError(err)
	}
}
