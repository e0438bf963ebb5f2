// Package event implements an auto-reset event for signaling
// between goroutines.
//
// An Event is either signaled or not. Signal sets it, and a
// single Wait (or WaitAny) consumes the signal and resets it.
// Signaling an already signaled event has no further effect.
package event

import (
	"reflect"
	"sync/atomic"
)

type signal struct {
	ch     chan struct{}
	closed atomic.Bool
}

// Event is an auto-reset event.
// An Event created by New owns the underlying signal;
// handles created by Ref share it without owning it.
type Event struct {
	s     *signal
	owner bool
}

// New creates an unsignaled event.
func New() *Event {
	return &Event{s: &signal{ch: make(chan struct{}, 1)}, owner: true}
}

func (e *Event) live() *signal {
	if e.s.closed.Load() {
		panic("event: use of closed Event")
	}
	return e.s
}

// Signal sets the event. It never blocks.
func (e *Event) Signal() {
	select {
	case e.live().ch <- struct{}{}:
	default:
	}
}

// Wait blocks until the event is signaled and then resets it.
func (e *Event) Wait() {
	<-e.live().ch
}

// TryWait consumes the signal if the event is signaled.
// It reports whether it did.
func (e *Event) TryWait() bool {
	select {
	case <-e.live().ch:
		return true
	default:
		return false
	}
}

// Ref returns a non-owning handle to the same event.
func (e *Event) Ref() *Event {
	return &Event{s: e.live()}
}

// Close releases the event. Calling Close on a handle
// returned by Ref does nothing.
// Closing does not wake goroutines blocked in Wait.
func (e *Event) Close() {
	if !e.owner {
		return
	}
	e.owner = false
	e.s.closed.Store(true)
}

// WaitAny blocks until one of evs is signaled, resets that
// event only and returns its index.
// If several events are already signaled the lowest index
// is chosen.
func WaitAny(evs ...*Event) int {
	if len(evs) == 0 {
		panic("event: WaitAny with no events")
	}
	for i, e := range evs {
		if e.TryWait() {
			return i
		}
	}
	cases := make([]reflect.SelectCase, len(evs))
	for i, e := range evs {
		cases[i] = reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(e.live().ch),
		}
	}
	i, _, _ := reflect.Select(cases)
	return i
}
