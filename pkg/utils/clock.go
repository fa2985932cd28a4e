// Package utils provides logging and timing helpers shared by the pipeline.
package utils

import "time"

// Clock abstracts time so that timers and log timestamps are testable.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// NewRealClock creates a new RealClock instance.
func NewRealClock() *RealClock {
	return &RealClock{}
}

// Now returns the current time.
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the duration since the given time.
func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// MockClock is a manually advanced Clock for tests.
type MockClock struct {
	currentTime time.Time
}

// NewMockClock creates a new MockClock instance with the given start time.
func NewMockClock(startTime time.Time) *MockClock {
	return &MockClock{currentTime: startTime}
}

// Now returns the mock current time.
func (c *MockClock) Now() time.Time {
	return c.currentTime
}

// Since returns the duration between t and the mock current time.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.currentTime.Sub(t)
}

// Advance moves the mock clock forward.
func (c *MockClock) Advance(d time.Duration) {
	c.currentTime = c.currentTime.Add(d)
}
