package imports

import (
	"maps"
	"slices"

	"go.uber.org/zap"
)

// Namespace maps slot names to slots.
type Namespace map[string]Slot

// Table maps import module names to namespaces.
type Table map[string]Namespace

// Define adds or replaces a slot, creating the namespace when needed.
func (t Table) Define(namespace, name string, s Slot) {
	ns, ok := t[namespace]
	if !ok {
		ns = make(Namespace)
		t[namespace] = ns
	}
	ns[name] = s
}

// Lookup finds a slot.
func (t Table) Lookup(namespace, name string) (Slot, bool) {
	s, ok := t[namespace][name]
	return s, ok
}

// Clone copies the table and its namespaces. Slots are shared.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for name, ns := range t {
		out[name] = maps.Clone(ns)
	}
	return out
}

// Len returns the total number of slots.
func (t Table) Len() int {
	n := 0
	for _, ns := range t {
		n += len(ns)
	}
	return n
}

// Names returns the namespace names in sorted order.
func (t Table) Names() []string {
	return slices.Sorted(maps.Keys(t))
}

// Collision is a caller entry that was dropped because a fixed slot owns its name.
type Collision struct {
	Namespace string
	Name      string
}

// Merge combines the fixed table with caller entries. Fixed slots always
// win: a caller entry naming an existing fixed slot is dropped and reported.
// Everything else the caller supplies is added. Neither input is modified
// and the result does not depend on map iteration order.
func Merge(fixed, caller Table) (Table, []Collision) {
	out := fixed.Clone()
	var collisions []Collision

	for _, nsName := range caller.Names() {
		ns := caller[nsName]
		for _, name := range slices.Sorted(maps.Keys(ns)) {
			if _, taken := fixed.Lookup(nsName, name); taken {
				collisions = append(collisions, Collision{Namespace: nsName, Name: name})
				Logger().Warn("caller import ignored, fixed slot takes precedence",
					zap.String("namespace", nsName),
					zap.String("slot", name))
				continue
			}
			out.Define(nsName, name, ns[name])
		}
	}
	return out, collisions
}

// Add installs a whole namespace. It panics if a slot name is already
// defined, which only happens when fixed tables are assembled wrongly.
func (t Table) Add(namespace string, slots Namespace) {
	for name, s := range slots {
		if _, ok := t.Lookup(namespace, name); ok {
			panic("imports: duplicate slot " + namespace + "." + name)
		}
		t.Define(namespace, name, s)
	}
}

// Fixed returns the root namespace: object model slots and buffer slots.
func Fixed() Table {
	t := make(Table)
	t.Add(RootNamespace, Core())
	t.Add(RootNamespace, Buffers())
	return t
}
