// Package timing records how long named operations take.
package timing

import (
	"context"
	"sort"
	"sync"
	"time"
)

type timingKey struct{}

type timingInfo struct {
	operation string
	start     time.Time
}

// total accumulates the durations of one operation.
type total struct {
	sum   time.Duration
	count int
}

// Tracker keeps a running total per operation. The zero value is not
// usable; call NewTracker. A nil *Tracker records nothing.
type Tracker struct {
	timings map[string]total
	mu      sync.RWMutex
	enabled bool
	now     func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		timings: make(map[string]total),
		enabled: true,
		now:     time.Now,
	}
}

// StartTiming returns a child of ctx carrying the start time of operation.
func (tt *Tracker) StartTiming(ctx context.Context, operation string) context.Context {
	if tt == nil || !tt.isEnabled() {
		return ctx
	}
	return context.WithValue(ctx, timingKey{}, timingInfo{operation: operation, start: tt.now()})
}

// EndTiming records the time since the matching StartTiming and returns it.
func (tt *Tracker) EndTiming(ctx context.Context) time.Duration {
	if tt == nil || !tt.isEnabled() {
		return 0
	}

	info, ok := ctx.Value(timingKey{}).(timingInfo)
	if !ok {
		return 0
	}
	d := tt.now().Sub(info.start)
	tt.Observe(info.operation, d)
	return d
}

func (tt *Tracker) Observe(operation string, d time.Duration) {
	if tt == nil {
		return
	}
	tt.mu.Lock()
	t := tt.timings[operation]
	t.sum += d
	t.count++
	tt.timings[operation] = t
	tt.mu.Unlock()
}

// Count is how many times operation was observed.
func (tt *Tracker) Count(operation string) int {
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	return tt.timings[operation].count
}

func (tt *Tracker) GetAverageTime(operation string) time.Duration {
	tt.mu.RLock()
	t := tt.timings[operation]
	tt.mu.RUnlock()

	if t.count == 0 {
		return 0
	}
	return t.sum / time.Duration(t.count)
}

func (tt *Tracker) Operations() []string {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	ops := make([]string, 0, len(tt.timings))
	for op := range tt.timings {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Averages returns the mean duration of every operation in milliseconds,
// ready to be used as log fields.
func (tt *Tracker) Averages() map[string]interface{} {
	out := make(map[string]interface{})
	for _, op := range tt.Operations() {
		out[op+"_ms"] = float64(tt.GetAverageTime(op).Microseconds()) / 1000
	}
	return out
}

func (tt *Tracker) SetEnabled(enabled bool) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.enabled = enabled
}

func (tt *Tracker) isEnabled() bool {
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	return tt.enabled
}

// Reset drops the timings of operation, or all of them when it is empty.
func (tt *Tracker) Reset(operation string) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if operation == "" {
		tt.timings = make(map[string]total)
	} else {
		delete(tt.timings, operation)
	}
}
