package utils

import "time"

// Timer measures elapsed wall-clock time between construction and Stop.
type Timer struct {
	startTime time.Time
	duration  time.Duration
}

// NewTimer creates a Timer that starts immediately.
func NewTimer() *Timer {
	return &Timer{startTime: time.Now()}
}

// Stop records the elapsed time since construction.
func (t *Timer) Stop() {
	t.duration = time.Since(t.startTime)
}

// GetDuration returns the duration captured by the most recent Stop, or zero.
func (t *Timer) GetDuration() time.Duration {
	return t.duration
}
