// Package engine drives the marketplace clock and hosts the session context
// object that owns the queues.
package engine

import (
	"fmt"
	"log/slog"
	"time"
)

// Clock cadence. The authoritative counter is the simulated hour; a period
// is one simulated month.
const (
	HoursPerDay    = 24
	HoursPerPeriod = 720 // 30 days
)

// Engine advances the simulated clock. In an embedded deployment the host
// calls the tick callbacks itself; the standalone simulator runs the loop.
type Engine struct {
	Hour     uint64        // Monotonic simulated-hour counter
	Speed    float64       // Multiplier: 1.0 = one sim-hour per Interval, 0 = paused
	Interval time.Duration // Base real-time length of a sim-hour
	Running  bool

	OnHour   func(hour uint64) // Every simulated hour
	OnPeriod func(hour uint64) // Every simulated month
}

// NewEngine creates a clock with default settings.
func NewEngine() *Engine {
	return &Engine{
		Speed:    1.0,
		Interval: time.Second,
	}
}

// Run starts the clock loop. Blocks until Stop is called.
func (e *Engine) Run() {
	e.Running = true
	slog.Info("marketplace clock started", "hour", e.Hour, "speed", e.Speed)

	for e.Running {
		if e.Speed <= 0 {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()
		e.Step()

		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / e.Speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("marketplace clock stopped", "hour", e.Hour)
}

// Stop halts the clock loop.
func (e *Engine) Stop() {
	e.Running = false
}

// Step advances the clock by one simulated hour and fires the callbacks.
// Exposed so hosts that own their own scheduler can drive the engine directly.
func (e *Engine) Step() {
	e.Hour++

	if e.OnHour != nil {
		e.OnHour(e.Hour)
	}
	if e.Hour%HoursPerPeriod == 0 && e.OnPeriod != nil {
		e.OnPeriod(e.Hour)
	}
}

// Period returns the month index for an hour counter.
func Period(hour uint64) uint64 {
	return hour / HoursPerPeriod
}

// SimTime returns a human-readable simulation time string.
func SimTime(hour uint64) string {
	h := hour % HoursPerDay
	day := (hour / HoursPerDay) % 30
	month := hour / HoursPerPeriod
	return fmt.Sprintf("Month %d, Day %d, %02d:00", month+1, day+1, h)
}
