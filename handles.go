package snd

import (
	"sync"
	"sync/atomic"
	"weak"
)

// handleTable maps the integer back references handed to a driver onto the
// Go objects that own them. Drivers never see Go pointers.
//
// Handles are never reused, so a completion that arrives after its object was
// removed, or collected, resolves to nil instead of to an unrelated object.
// Lookups do not take a lock and are safe from driver threads.
type handleTable[T any] struct {
	entries sync.Map // uint64 -> weak.Pointer[T]
	next    atomic.Uint64
	count   atomic.Int64
}

// insert registers v and returns its handle. Handle 0 is never issued.
func (t *handleTable[T]) insert(v *T) uint64 {
	h := t.next.Add(1)
	t.entries.Store(h, weak.Make(v))
	t.count.Add(1)

	return h
}

// lookup returns the object for h, or nil if it was removed or collected.
func (t *handleTable[T]) lookup(h uint64) *T {
	if h == 0 {
		return nil
	}

	e, ok := t.entries.Load(h)
	if !ok {
		return nil
	}

	return e.(weak.Pointer[T]).Value()
}

// remove drops h. It reports whether h was registered.
func (t *handleTable[T]) remove(h uint64) bool {
	if h == 0 {
		return false
	}

	if _, ok := t.entries.LoadAndDelete(h); ok {
		t.count.Add(-1)

		return true
	}

	return false
}

func (t *handleTable[T]) len() int {
	return int(t.count.Load())
}
