package value

// Scheduler queues reactions to run after the current task.
type Scheduler interface {
	Microtask(func())
}

// FutureState is the settlement state of a Future.
type FutureState uint8

const (
	Pending FutureState = iota
	Fulfilled
	Rejected
)

func (s FutureState) String() string {
	switch s {
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "pending"
	}
}

// Future is a pending result settled once by Resolve or Reject.
// Reactions run through the scheduler in registration order.
type Future struct {
	sched     Scheduler
	result    Value
	reactions []reaction
	state     FutureState
	adopting  bool
}

type reaction struct {
	onFulfilled func(Value)
	onRejected  func(Value)
}

// NewFuture creates a pending future. A nil scheduler runs reactions synchronously.
func NewFuture(s Scheduler) *Future {
	return &Future{sched: s}
}

// ResolvedFuture returns a future already fulfilled with v.
func ResolvedFuture(s Scheduler, v Value) *Future {
	f := NewFuture(s)
	f.Resolve(v)
	return f
}

// RejectedFuture returns a future already rejected with reason.
func RejectedFuture(s Scheduler, reason Value) *Future {
	f := NewFuture(s)
	f.Reject(reason)
	return f
}

// State returns the current state.
func (f *Future) State() FutureState { return f.state }

// Result returns the settled value or rejection reason.
func (f *Future) Result() Value { return f.result }

// Resolve fulfils the future. Resolving with another future adopts its outcome.
func (f *Future) Resolve(v Value) {
	if f.state != Pending || f.adopting {
		return
	}
	if other, ok := v.(*Future); ok {
		if other == f {
			f.settle(Rejected, &TypeError{Msg: "chaining cycle detected for future"})
			return
		}
		f.adopting = true
		other.Then(func(r Value) { f.settle(Fulfilled, r) }, func(r Value) { f.settle(Rejected, r) })
		return
	}
	f.settle(Fulfilled, v)
}

// Reject rejects the future with reason.
func (f *Future) Reject(reason Value) {
	if f.state != Pending || f.adopting {
		return
	}
	f.settle(Rejected, reason)
}

// Then registers reactions. Either may be nil.
func (f *Future) Then(onFulfilled, onRejected func(Value)) {
	r := reaction{onFulfilled: onFulfilled, onRejected: onRejected}
	if f.state == Pending {
		f.reactions = append(f.reactions, r)
		return
	}
	f.run(r)
}

func (f *Future) settle(state FutureState, v Value) {
	if f.state != Pending {
		return
	}
	f.state = state
	f.result = v
	reactions := f.reactions
	f.reactions = nil
	for _, r := range reactions {
		f.run(r)
	}
}

func (f *Future) run(r reaction) {
	fn := r.onFulfilled
	if f.state == Rejected {
		fn = r.onRejected
	}
	if fn == nil {
		return
	}
	result := f.result
	if f.sched == nil {
		fn(result)
		return
	}
	f.sched.Microtask(func() { fn(result) })
}
