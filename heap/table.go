package heap

import (
	"reflect"
	"sync"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/value"
)

// Table maps host values to handles with reference counting.
//
// Values with identity (pointers) and strings are interned: handing the same
// value out twice returns the same handle with its count raised. Other values
// (numbers) get a fresh handle each time. A handle stays live until it has
// been released as many times as it was handed out.
type Table struct {
	global    any
	ids       map[any]Handle
	entries   []entry
	freeList  []Handle
	observers []Observer
	mu        sync.Mutex
	obsMu     sync.RWMutex
	closed    bool
}

type entry struct {
	value any
	refs  uint32
	valid bool
}

// New creates a table whose Global handle resolves to global.
func New(global any) *Table {
	return &Table{
		global:   global,
		ids:      make(map[any]Handle),
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

// Ref returns a handle for v, retaining it once.
func (t *Table) Ref(v any) Handle {
	switch x := v.(type) {
	case nil:
		return Null
	case value.UndefinedType:
		return Undefined
	case bool:
		if x {
			return True
		}
		return False
	}
	if t.global != nil && v == t.global {
		return Global
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return Undefined
	}

	key, internable := internKey(v)
	if internable {
		if h, ok := t.ids[key]; ok {
			e := &t.entries[h-firstDynamic]
			e.refs++
			refs := e.refs
			t.mu.Unlock()
			t.notify(Event{Type: EventRetained, Handle: h, Value: v, Refs: refs})
			return h
		}
	}

	e := entry{value: v, refs: 1, valid: true}
	var h Handle
	if n := len(t.freeList); n > 0 {
		h = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[h-firstDynamic] = e
	} else {
		t.entries = append(t.entries, e)
		h = firstDynamic + Handle(len(t.entries)-1)
	}
	if internable {
		t.ids[key] = h
	}
	t.mu.Unlock()

	t.notify(Event{Type: EventCreated, Handle: h, Value: v, Refs: 1})
	return h
}

// Get resolves a handle.
func (t *Table) Get(h Handle) (any, error) {
	switch h {
	case Null:
		return nil, nil
	case Undefined:
		return value.Undefined, nil
	case True:
		return true, nil
	case False:
		return false, nil
	case Global:
		return t.global, nil
	}
	if h.Reserved() {
		return nil, errors.InvalidHandle(uint32(h))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx := int(h - firstDynamic)
	if idx >= len(t.entries) || !t.entries[idx].valid {
		return nil, errors.InvalidHandle(uint32(h))
	}
	return t.entries[idx].value, nil
}

// Release drops one reference. The handle is freed when its count reaches zero.
// Releasing a reserved handle is a no-op.
func (t *Table) Release(h Handle) error {
	if h.Reserved() {
		return nil
	}

	t.mu.Lock()
	idx := int(h - firstDynamic)
	if idx >= len(t.entries) || !t.entries[idx].valid {
		t.mu.Unlock()
		return errors.InvalidHandle(uint32(h))
	}
	e := &t.entries[idx]
	e.refs--
	if e.refs > 0 {
		t.mu.Unlock()
		return nil
	}

	v := e.value
	t.entries[idx] = entry{}
	t.freeList = append(t.freeList, h)
	if key, ok := internKey(v); ok {
		delete(t.ids, key)
	}
	t.mu.Unlock()

	if d, ok := v.(Dropper); ok {
		d.Drop()
	}
	t.notify(Event{Type: EventReleased, Handle: h, Value: v})
	return nil
}

// Refs returns the current reference count of a handle, zero when not live.
func (t *Table) Refs(h Handle) uint32 {
	if h.Reserved() {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := int(h - firstDynamic)
	if idx >= len(t.entries) {
		return 0
	}
	return t.entries[idx].refs
}

// Len returns the number of live dynamic handles.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries) - len(t.freeList)
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Close releases every live handle regardless of its count and stops
// accepting new values.
func (t *Table) Close() {
	t.mu.Lock()
	t.closed = true
	var live []Handle
	for i, e := range t.entries {
		if e.valid {
			live = append(live, firstDynamic+Handle(i))
		}
	}
	for _, h := range live {
		t.entries[h-firstDynamic].refs = 1
	}
	t.mu.Unlock()

	for _, h := range live {
		_ = t.Release(h)
	}
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnHandleEvent(e)
	}
}

// internKey returns the identity key for values that are interned.
func internKey(v any) (any, bool) {
	if s, ok := v.(string); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		return v, true
	}
	return nil, false
}
