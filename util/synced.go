package util

import "sync/atomic"

// SafeCounter is an int counter safe to use concurrently.
type SafeCounter struct {
	value atomic.Int64
}

// NewSafeCounter creates a counter starting at initial.
func NewSafeCounter(initial int) *SafeCounter {
	c := &SafeCounter{}
	c.value.Store(int64(initial))
	return c
}

// Increment adds one and returns the new value.
func (c *SafeCounter) Increment() int {
	return int(c.value.Add(1))
}

// Add adds delta (which may be negative) and returns the new value.
func (c *SafeCounter) Add(delta int) int {
	return int(c.value.Add(int64(delta)))
}

// Value returns the current value.
func (c *SafeCounter) Value() int {
	return int(c.value.Load())
}

// SafeFlag is a bool safe to use concurrently.
type SafeFlag struct {
	value atomic.Bool
}

// NewSafeFlag creates a flag with an initial value.
func NewSafeFlag(initial bool) *SafeFlag {
	f := &SafeFlag{}
	f.value.Store(initial)
	return f
}

// Value returns the current value.
func (f *SafeFlag) Value() bool {
	return f.value.Load()
}

// SetOnce flips the flag from false to true and reports whether this call did it.
func (f *SafeFlag) SetOnce() bool {
	return f.value.CompareAndSwap(false, true)
}
