package heap

import (
	"errors"
	"testing"

	bridgeerrors "github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/value"
)

type recorder struct {
	events []Event
}

func (r *recorder) OnHandleEvent(e Event) {
	r.events = append(r.events, e)
}

type dropCounter struct{ drops int }

func (d *dropCounter) Drop() { d.drops++ }

func TestReservedHandles(t *testing.T) {
	global := value.NewObject()
	table := New(global)

	tests := []struct {
		in   any
		want Handle
	}{
		{nil, Null},
		{value.Undefined, Undefined},
		{true, True},
		{false, False},
		{global, Global},
	}
	for _, tt := range tests {
		h := table.Ref(tt.in)
		if h != tt.want {
			t.Errorf("Ref(%v) = %d, want %d", tt.in, h, tt.want)
		}
		got, err := table.Get(h)
		if err != nil {
			t.Fatalf("Get(%d): %v", h, err)
		}
		if got != tt.in {
			t.Errorf("Get(%d) = %v, want %v", h, got, tt.in)
		}
		if err := table.Release(h); err != nil {
			t.Errorf("Release(%d) = %v, want nil", h, err)
		}
	}
	if table.Len() != 0 {
		t.Errorf("reserved handles must not occupy the table, Len = %d", table.Len())
	}
	if _, err := table.Get(5); err == nil {
		t.Error("unassigned reserved handle should not resolve")
	}
}

func TestInterning(t *testing.T) {
	table := New(nil)
	obj := value.NewObject()

	h1 := table.Ref(obj)
	h2 := table.Ref(obj)
	if h1 != h2 {
		t.Fatalf("same object got handles %d and %d", h1, h2)
	}
	if table.Refs(h1) != 2 {
		t.Errorf("Refs = %d, want 2", table.Refs(h1))
	}
	if other := table.Ref(value.NewObject()); other == h1 {
		t.Error("distinct objects must not share a handle")
	}

	s1 := table.Ref("hello")
	s2 := table.Ref("hel" + "lo")
	if s1 != s2 {
		t.Error("equal strings should intern to one handle")
	}

	n1 := table.Ref(1.0)
	n2 := table.Ref(1.0)
	if n1 == n2 {
		t.Error("numbers are not interned")
	}
}

func TestReleaseAndReuse(t *testing.T) {
	table := New(nil)
	d := &dropCounter{}

	h := table.Ref(d)
	table.Ref(d)

	if err := table.Release(h); err != nil {
		t.Fatal(err)
	}
	if _, err := table.Get(h); err != nil {
		t.Fatalf("handle freed while still referenced: %v", err)
	}
	if d.drops != 0 {
		t.Fatal("dropped too early")
	}
	if err := table.Release(h); err != nil {
		t.Fatal(err)
	}
	if d.drops != 1 {
		t.Errorf("drops = %d, want 1", d.drops)
	}

	_, err := table.Get(h)
	if !errors.Is(err, bridgeerrors.ErrMarshal) {
		t.Errorf("Get after release = %v, want marshal error", err)
	}
	if err := table.Release(h); err == nil {
		t.Error("double release should fail")
	}

	reused := table.Ref("next")
	if reused != h {
		t.Errorf("freed handle %d not reused, got %d", h, reused)
	}
	// The freed object is no longer interned.
	if again := table.Ref(d); again == h {
		t.Error("released object kept its old identity")
	}
}

func TestObserverEvents(t *testing.T) {
	table := New(nil)
	rec := &recorder{}
	table.Subscribe(rec)

	obj := value.NewObject()
	h := table.Ref(obj)
	table.Ref(obj)
	_ = table.Release(h)
	_ = table.Release(h)
	table.Ref(true)

	want := []EventType{EventCreated, EventRetained, EventReleased}
	if len(rec.events) != len(want) {
		t.Fatalf("got %d events, want %d", len(rec.events), len(want))
	}
	for i, e := range rec.events {
		if e.Type != want[i] || e.Handle != h {
			t.Errorf("event %d = %s/%d, want %s/%d", i, e.Type, e.Handle, want[i], h)
		}
	}
	if rec.events[1].Refs != 2 {
		t.Errorf("retained refs = %d, want 2", rec.events[1].Refs)
	}
}

func TestClose(t *testing.T) {
	table := New(nil)
	d := &dropCounter{}
	h := table.Ref(d)
	table.Ref(d)
	table.Ref("x")

	table.Close()
	if table.Len() != 0 {
		t.Errorf("Len after Close = %d", table.Len())
	}
	if d.drops != 1 {
		t.Errorf("drops = %d, want 1", d.drops)
	}
	if _, err := table.Get(h); err == nil {
		t.Error("handle survived Close")
	}
	if got := table.Ref(value.NewObject()); got != Undefined {
		t.Errorf("Ref after Close = %d, want Undefined", got)
	}
}
