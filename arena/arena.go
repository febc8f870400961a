package arena

import (
	"sync"

	"github.com/wippyai/dynbridge/dynbox"
)

// Handle is an opaque index into a Table. The guest runtime only ever
// holds handles, never pointers, so collection order on either side
// cannot corrupt the other. Handle 0 is reserved and always invalid.
type Handle uint32

// EventType identifies a handle lifecycle event.
type EventType uint8

const (
	EventIssued EventType = iota
	EventDuplicated
	EventDropped
)

// Event records one handle lifecycle transition.
type Event struct {
	Type   EventType
	Handle Handle
	Refs   int64
}

// Observer receives handle lifecycle events. Used for leak diagnostics;
// never on the hot path of a conversion.
type Observer interface {
	OnHandleEvent(Event)
}

type entry struct {
	box   *dynbox.Box
	valid bool
}

// Table is the native-side arena the guest holds opaque handles into.
// Every live handle owns exactly one reference to its box; dropping the
// handle releases that reference, and the underlying value goes away
// only when the native side has dropped its references too.
type Table struct {
	mu        sync.RWMutex
	entries   []entry
	freeList  []Handle
	observers []Observer
	obsMu     sync.RWMutex
	closed    bool
}

// NewTable creates an empty handle table.
func NewTable() *Table {
	return &Table{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

// Insert issues a handle for a box. The table takes over the caller's
// reference: do not release the box after a successful insert. Returns
// 0 when the table is closed.
func (t *Table) Insert(box *dynbox.Box) Handle {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0
	}

	e := entry{box: box, valid: true}
	var h Handle
	if len(t.freeList) > 0 {
		h = t.freeList[len(t.freeList)-1]
		t.freeList = t.freeList[:len(t.freeList)-1]
		t.entries[h-1] = e
	} else {
		t.entries = append(t.entries, e)
		h = Handle(len(t.entries))
	}
	t.mu.Unlock()

	t.notify(Event{Type: EventIssued, Handle: h, Refs: box.Refs()})
	return h
}

// Get returns the box behind a handle. The box stays owned by the
// table; Clone it to keep a reference past the handle's drop.
func (t *Table) Get(h Handle) (*dynbox.Box, bool) {
	if h == 0 {
		return nil, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	idx := h - 1
	if int(idx) >= len(t.entries) {
		return nil, false
	}
	e := t.entries[idx]
	if !e.valid {
		return nil, false
	}
	return e.box, true
}

// Dup issues a fresh handle sharing the same allocation, incrementing
// the reference count. This is the guest-side clone operation.
func (t *Table) Dup(h Handle) Handle {
	box, ok := t.Get(h)
	if !ok {
		return 0
	}
	nh := t.Insert(box.Clone())
	if nh != 0 {
		t.notify(Event{Type: EventDuplicated, Handle: nh, Refs: box.Refs()})
	}
	return nh
}

// Drop invalidates a handle and releases its reference. The value
// behind the box is dropped exactly once, whenever the last reference
// on either side goes away.
func (t *Table) Drop(h Handle) bool {
	if h == 0 {
		return false
	}

	t.mu.Lock()
	idx := h - 1
	if int(idx) >= len(t.entries) || !t.entries[idx].valid {
		t.mu.Unlock()
		return false
	}
	box := t.entries[idx].box
	t.entries[idx] = entry{}
	t.freeList = append(t.freeList, h)
	t.mu.Unlock()

	refs := box.Refs() - 1
	box.Release()
	t.notify(Event{Type: EventDropped, Handle: h, Refs: refs})
	return true
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, e := range t.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over all live handles.
func (t *Table) Each(fn func(Handle, *dynbox.Box) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, e := range t.entries {
		if e.valid {
			if !fn(Handle(i+1), e.box) {
				break
			}
		}
	}
}

// Subscribe adds an observer for handle lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Close releases all live handles and stops accepting operations.
func (t *Table) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	boxes := make([]*dynbox.Box, 0, len(t.entries))
	for i := range t.entries {
		if t.entries[i].valid {
			boxes = append(boxes, t.entries[i].box)
			t.entries[i] = entry{}
		}
	}
	t.entries = nil
	t.freeList = nil
	t.mu.Unlock()

	for _, box := range boxes {
		box.Release()
	}
	return nil
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnHandleEvent(e)
	}
}
