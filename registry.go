package taskkit

import (
	"context"
	"fmt"
	"sync"
)

// RunContext is passed to TaskLogic.Run. It exposes the clock, a
// lease-renewal hook, and cancellation.
type RunContext struct {
	context.Context

	clock Clock
	renew func(context.Context) error
}

// Clock returns the taskkit.Clock the kit was constructed with.
func (r *RunContext) Clock() Clock { return r.clock }

// Renew explicitly extends the task's lease. The worker pool already
// renews leases automatically at lease/2 intervals; handlers that perform
// unusually long single operations may call this to avoid relying on the
// ticker's cadence.
func (r *RunContext) Renew(ctx context.Context) error {
	if r.renew == nil {
		return nil
	}
	return r.renew(ctx)
}

// Cancelled reports whether the run has been cancelled (shutdown or lost
// lease).
func (r *RunContext) Cancelled() bool {
	select {
	case <-r.Done():
		return true
	default:
		return false
	}
}

// TaskLogic is user-provided logic that turns a decoded task payload into
// a result.
type TaskLogic interface {
	// Run executes the handler. decoded is the already-Decoder-decoded
	// task payload. A nil return marks the task Done; a non-nil error
	// marks it Failed with ErrorKindHandler, carrying err.Error() as the
	// message.
	Run(rc *RunContext, decoded any) (value any, err error)

	// New returns a fresh, zero-valued pointer suitable as the Decoder's
	// out parameter for this handler's payload type. Handlers with a
	// concrete payload type implement this as `func() any { return
	// new(MyPayload) }`; handlers that work directly on []byte may return
	// a *[]byte.
	New() any
}

// key identifies a handler by (group, name).
type key struct {
	group string
	name  string
}

// Registry maps (group, name) to TaskLogic. Handlers are registered at
// startup and read-only thereafter: Registry uses a plain map guarded by
// a mutex while mutable, then Freeze swaps in an atomic snapshot so the
// dispatch hot path (Lookup) never takes a lock.
type Registry struct {
	mu     sync.RWMutex
	live   map[key]TaskLogic
	frozen map[key]TaskLogic // non-nil once Freeze is called
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{live: make(map[key]TaskLogic)}
}

// Register adds logic for (group, name). Register panics if called after
// Freeze, or if (group, name) is already registered — both are
// programmer errors caught at startup, not runtime conditions to handle
// gracefully.
func (r *Registry) Register(group, name string, logic TaskLogic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen != nil {
		panic("taskkit: Registry.Register called after Freeze")
	}
	k := key{group, name}
	if _, exists := r.live[k]; exists {
		panic(fmt.Sprintf("taskkit: handler already registered for (%s, %s)", group, name))
	}
	r.live[k] = logic
}

// Freeze takes a read-only snapshot of the registered handlers. Called by
// NewProcessHost before any dispatch happens; later calls are no-ops.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen != nil {
		return
	}
	snapshot := make(map[key]TaskLogic, len(r.live))
	for k, v := range r.live {
		snapshot[k] = v
	}
	r.frozen = snapshot
}

// Lookup returns the TaskLogic registered for (group, name), if any. Once
// Freeze has been called this never takes a lock.
func (r *Registry) Lookup(group, name string) (TaskLogic, bool) {
	if r.frozen != nil {
		logic, ok := r.frozen[key{group, name}]
		return logic, ok
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	logic, ok := r.live[key{group, name}]
	return logic, ok
}

// Groups returns the distinct set of groups with at least one registered
// handler, in no particular order.
func (r *Registry) Groups() []string {
	seen := map[string]struct{}{}
	add := func(m map[key]TaskLogic) {
		for k := range m {
			seen[k.group] = struct{}{}
		}
	}
	r.mu.RLock()
	if r.frozen != nil {
		add(r.frozen)
	} else {
		add(r.live)
	}
	r.mu.RUnlock()
	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	return groups
}
