package timectrl

import (
	"context"
	"sync"
	"time"
)

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances one tick per Interval of wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still
	// stepping simulation time by Interval.
	Accelerated
)

// TimeController paces a tick-driven run and notifies registered listeners
// once per tick. Listeners drive the actual work, typically one simulator
// step each.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Interval  time.Duration
	Mode      Mode

	currentTime time.Time

	listeners []func(time.Time)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, interval time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Interval:    interval,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime moves simulation time without notifying listeners.
func (tc *TimeController) SetTime(now time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = now
}

// AddListener registers a callback invoked on every tick. Listeners must be
// registered before Start; they run on the controller's goroutine.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.listeners = append(tc.listeners, fn)
}

// Start runs the controller in a separate goroutine until the context is
// cancelled or, when duration is positive, until that much simulation time
// has elapsed. It returns a channel that is closed when the loop finishes.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.Lock()
		simTime := tc.StartTime
		tc.currentTime = simTime
		tc.mu.Unlock()

		var ticker *time.Ticker
		if tc.Mode == RealTime {
			ticker = time.NewTicker(tc.Interval)
			defer ticker.Stop()
		}

		elapsed := time.Duration(0)
		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			if ticker != nil {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			} else if ctx.Err() != nil {
				return
			}

			simTime = simTime.Add(tc.Interval)
			elapsed += tc.Interval

			tc.mu.Lock()
			tc.currentTime = simTime
			tc.mu.Unlock()

			for _, fn := range tc.listeners {
				fn(simTime)
			}
		}
	}()
	return done
}
