// Package atomicx contains small atomic values shared by the
// analysis goroutines and the logging consumers.
//
// Values are always heap allocated through their constructor. The
// first word of an allocated struct is 64-bit aligned also on ARM, 386
// and 32-bit MIPS, so Int64 can use sync/atomic directly as long as
// its counter stays the first field (see the "Bugs" section of the
// sync/atomic documentation).
package atomicx

import "sync/atomic"

// Int64 is an atomic int64 counter.
type Int64 struct {
	v int64 // must be first
}

// NewInt64 returns a new Int64 with the given initial value.
func NewInt64(value int64) *Int64 {
	return &Int64{v: value}
}

// Add adds delta and returns the new value.
func (c *Int64) Add(delta int64) int64 {
	return atomic.AddInt64(&c.v, delta)
}

// Load returns the current value.
func (c *Int64) Load() int64 {
	return atomic.LoadInt64(&c.v)
}

// Int32 is an atomic int32.
type Int32 struct {
	v int32
}

// NewInt32 returns a new Int32 with the given initial value.
func NewInt32(value int32) *Int32 {
	return &Int32{v: value}
}

// Add adds delta and returns the new value.
func (c *Int32) Add(delta int32) int32 {
	return atomic.AddInt32(&c.v, delta)
}

// Load returns the current value.
func (c *Int32) Load() int32 {
	return atomic.LoadInt32(&c.v)
}

// Swap stores value and returns the previous value.
func (c *Int32) Swap(value int32) int32 {
	return atomic.SwapInt32(&c.v, value)
}

// Bool is an atomic flag.
type Bool struct {
	v Int32
}

// NewBool returns a new Bool with the given initial value.
func NewBool(value bool) *Bool {
	b := &Bool{}
	b.Store(value)
	return b
}

// Store sets the flag.
func (b *Bool) Store(value bool) {
	var v int32
	if value {
		v = 1
	}
	b.v.Swap(v)
}

// Load returns the flag.
func (b *Bool) Load() bool {
	return b.v.Load() != 0
}
