package callback

import (
	"context"
	"runtime"
	"sync"
	"weak"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/eventloop"
	"github.com/wippyai/wasm-bridge/value"
)

// Registry notifies a cleanup callback when registered targets become
// unreachable. Notifications are posted to the event loop and delivered at
// most once per registration.
type Registry struct {
	ctx     context.Context
	loop    *eventloop.Loop
	cleanup value.Callable

	mu      sync.Mutex
	entries map[uint64]*registration
	byToken map[any][]uint64
	nextID  uint64
}

type registration struct {
	held   value.Value
	token  any
	cancel runtime.Cleanup
}

// NewRegistry creates a registry that calls cleanup(held) on loop.
func NewRegistry(ctx context.Context, loop *eventloop.Loop, cleanup value.Callable) *Registry {
	return &Registry{
		ctx:     ctx,
		loop:    loop,
		cleanup: cleanup,
		entries: make(map[uint64]*registration),
		byToken: make(map[any][]uint64),
	}
}

// Register watches target. held is passed to the cleanup callback once the
// target is collected. token, when not undefined, allows Unregister and is
// not kept alive by the registry.
func (r *Registry) Register(target, held, token value.Value) error {
	if held == target {
		return &value.TypeError{Msg: "target and held value must not be the same"}
	}
	var key any
	if !value.IsUndefined(token) {
		k, ok := weakKey(token)
		if !ok {
			return &value.TypeError{Msg: "invalid unregister token: " + value.TypeOf(token)}
		}
		key = k
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.mu.Unlock()

	cancel, ok := watch(target, r.collected, id)
	if !ok {
		return &value.TypeError{Msg: "invalid finalization target: " + value.TypeOf(target)}
	}

	r.mu.Lock()
	r.entries[id] = &registration{held: held, token: key, cancel: cancel}
	if key != nil {
		r.byToken[key] = append(r.byToken[key], id)
	}
	r.mu.Unlock()
	return nil
}

// Unregister cancels every pending notification registered with token and
// reports whether there was one.
func (r *Registry) Unregister(token value.Value) (bool, error) {
	key, ok := weakKey(token)
	if !ok {
		return false, &value.TypeError{Msg: "invalid unregister token: " + value.TypeOf(token)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.byToken[key]
	delete(r.byToken, key)
	removed := false
	for _, id := range ids {
		if e, ok := r.entries[id]; ok {
			e.cancel.Stop()
			delete(r.entries, id)
			removed = true
		}
	}
	return removed, nil
}

// Len returns the number of live registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// collected runs on a runtime cleanup goroutine.
func (r *Registry) collected(id uint64) {
	if !r.loop.Post(func() { r.fire(id) }) {
		r.mu.Lock()
		r.drop(id)
		r.mu.Unlock()
	}
}

// fire delivers the notification for id on the loop.
func (r *Registry) fire(id uint64) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		r.drop(id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	if _, err := r.cleanup.Call(r.ctx, value.Undefined, e.held); err != nil {
		Logger().Warn("finalization callback failed", zap.Error(err))
		r.loop.Fail(err)
	}
}

// drop removes id; r.mu must be held.
func (r *Registry) drop(id uint64) {
	e, ok := r.entries[id]
	if !ok {
		return
	}
	delete(r.entries, id)
	if e.token == nil {
		return
	}
	ids := r.byToken[e.token]
	for i, other := range ids {
		if other == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(r.byToken, e.token)
	} else {
		r.byToken[e.token] = ids
	}
}

// watch attaches a collector cleanup to the host values that have identity.
func watch(target value.Value, fn func(uint64), id uint64) (runtime.Cleanup, bool) {
	switch p := target.(type) {
	case *value.Object:
		return runtime.AddCleanup(p, fn, id), true
	case *value.Array:
		return runtime.AddCleanup(p, fn, id), true
	case *value.Function:
		return runtime.AddCleanup(p, fn, id), true
	case *value.TypedArray:
		return runtime.AddCleanup(p, fn, id), true
	case *value.ArrayBuffer:
		return runtime.AddCleanup(p, fn, id), true
	case *value.DataView:
		return runtime.AddCleanup(p, fn, id), true
	case *value.Future:
		return runtime.AddCleanup(p, fn, id), true
	case *Callback:
		return runtime.AddCleanup(p, fn, id), true
	case *Registry:
		return runtime.AddCleanup(p, fn, id), true
	default:
		return runtime.Cleanup{}, false
	}
}

// weakKey returns a comparable key for token that does not keep it alive.
func weakKey(token value.Value) (any, bool) {
	switch p := token.(type) {
	case *value.Object:
		return weak.Make(p), true
	case *value.Array:
		return weak.Make(p), true
	case *value.Function:
		return weak.Make(p), true
	case *value.TypedArray:
		return weak.Make(p), true
	case *value.ArrayBuffer:
		return weak.Make(p), true
	case *value.DataView:
		return weak.Make(p), true
	case *value.Future:
		return weak.Make(p), true
	case *Callback:
		return weak.Make(p), true
	case *Registry:
		return weak.Make(p), true
	default:
		return nil, false
	}
}
