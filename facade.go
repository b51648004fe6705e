package taskkit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saryou/taskkit/result"
	"github.com/saryou/taskkit/schedule"
	"github.com/saryou/taskkit/task"
)

// Kit is the library façade: the entry point an embedding application
// constructs once and uses for every producer-side and process-management
// operation.
type Kit struct {
	backend    Backend
	registry   *Registry
	encoder    Encoder
	clock      Clock
	log        *slog.Logger
	controller *Controller

	// DefaultTTL is used by InitiateTask when no TTL is given.
	DefaultTTL time.Duration
}

// NewKit constructs a Kit. log defaults to slog.Default() if nil.
func NewKit(backend Backend, registry *Registry, encoder Encoder, clock Clock, log *slog.Logger) *Kit {
	if log == nil {
		log = slog.Default()
	}
	return &Kit{
		backend:    backend,
		registry:   registry,
		encoder:    encoder,
		clock:      clock,
		log:        log,
		controller: NewController(backend, log),
		DefaultTTL: 24 * time.Hour,
	}
}

// StartConfig parameterizes Start/StartProcess/StartProcesses.
type StartConfig struct {
	// ThreadsPerGroup maps each served group to its worker count.
	ThreadsPerGroup map[string]int
	Entries         []*schedule.Entry
	Location        *time.Location
	StopTimeout     time.Duration
}

func (c StartConfig) toHostConfig() HostConfig {
	groups := make(map[string]GroupConfig, len(c.ThreadsPerGroup))
	for g, n := range c.ThreadsPerGroup {
		groups[g] = GroupConfig{Threads: n}
	}
	return HostConfig{
		Groups:      groups,
		Entries:     c.Entries,
		Location:    c.Location,
		StopTimeout: c.StopTimeout,
	}
}

// Start runs nProcs supervised OS processes until a termination signal or
// ctx cancellation. It blocks; see StartProcess/StartProcesses for
// non-blocking in-process alternatives.
//
// The embedding application's main() is expected to call Start
// unconditionally with the same cfg on every invocation of the binary.
// Start itself detects, via RunHostProcess, whether this particular
// process invocation is a child a Supervisor just spawned: if so it
// builds and runs exactly one ProcessHost to completion and never
// returns (it os.Exits). Otherwise it becomes the Supervisor parent,
// re-exec'ing the same binary nProcs times.
func (k *Kit) Start(ctx context.Context, nProcs int, cfg StartConfig, shouldRestart func(HostInfo) bool) error {
	hostCfg := cfg.toHostConfig()
	if RunHostProcess(func(hostID string) (*ProcessHost, error) {
		return NewProcessHost(hostCfg, k.backend, k.registry, k.encoder, k.clock, k.log), nil
	}) {
		return nil // unreachable: RunHostProcess calls os.Exit
	}

	sup := NewSupervisor(SupervisorConfig{
		Hosts:         nProcs,
		ShouldRestart: shouldRestart,
	}, k.controller, k.clock, k.log)
	return sup.Start(ctx)
}

// StartProcess launches a single in-process ProcessHost and returns
// immediately with its handle.
func (k *Kit) StartProcess(ctx context.Context, cfg StartConfig) (*ProcessHost, error) {
	hosts, err := k.StartProcesses(ctx, 1, cfg)
	if err != nil {
		return nil, err
	}
	return hosts[0], nil
}

// StartProcesses launches n in-process ProcessHosts sharing this Kit's
// Backend/Registry/Encoder/Clock, returning immediately with their
// handles. Unlike Start, these run as goroutines within the caller's own
// OS process rather than under a Supervisor; useful for tests and for
// embedding taskkit inside a larger single-process service.
func (k *Kit) StartProcesses(ctx context.Context, n int, cfg StartConfig) ([]*ProcessHost, error) {
	hostCfg := cfg.toHostConfig()
	hosts := make([]*ProcessHost, 0, n)
	for i := 0; i < n; i++ {
		h := NewProcessHost(hostCfg, k.backend, k.registry, k.encoder, k.clock, k.log)
		if err := h.Start(ctx); err != nil {
			for _, started := range hosts {
				_ = started.Terminate()
			}
			return nil, err
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}

// InitiateOptions configures a single InitiateTask call.
type InitiateOptions struct {
	// Due is the earliest claim instant; zero means "now".
	Due time.Time
	// TTL overrides Kit.DefaultTTL when nonzero.
	TTL time.Duration
	// Eager bypasses the Backend entirely and runs the handler
	// synchronously in the caller.
	Eager bool
}

// InitiateTask enqueues a task for (group, name) carrying data, or — with
// Eager set — runs it synchronously and returns its completed Result
// without any Backend write.
//
// A caller still needs the assigned id to later poll GetResult for a
// non-eager task, so InitiateTask returns it alongside the Result
// (uuid.Nil for Eager calls, which never touch the Backend and so have no
// durable id).
func (k *Kit) InitiateTask(ctx context.Context, group, name string, data any, opts InitiateOptions) (uuid.UUID, result.Result, error) {
	if opts.Eager {
		logic, ok := k.registry.Lookup(group, name)
		if !ok {
			return uuid.Nil, result.Error(result.ErrorKindUnknownHandler, "no handler registered for "+group+"/"+name), nil
		}
		rc := &RunContext{Context: ctx, clock: k.clock}
		value, err := logic.Run(rc, data)
		if err != nil {
			return uuid.Nil, result.Error(result.ErrorKindHandler, err.Error()), nil
		}
		encoded, err := k.encoder.EncodeResult(group, name, value)
		if err != nil {
			return uuid.Nil, result.Error(result.ErrorKindEncode, err.Error()), nil
		}
		return uuid.Nil, result.Success(encoded), nil
	}

	encoded, err := k.encoder.Encode(group, name, data)
	if err != nil {
		return uuid.Nil, result.Result{}, err
	}

	now := k.clock.Now()
	due := opts.Due
	if due.IsZero() {
		due = now
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = k.DefaultTTL
	}

	id := uuid.New()
	t := task.New(id, group, name, encoded, now, due, ttl)
	if err := k.backend.PutTasks(ctx, t); err != nil {
		return uuid.Nil, result.Result{}, err
	}
	return id, result.Pending(), nil
}

// CancelTask terminally discards id before it is claimed (backend
// contract's discard_task, exposed through the façade for completeness;
// not used internally by the worker pool since the expanded Backend
// contract has no automatic-retry path that would need it).
func (k *Kit) CancelTask(ctx context.Context, id uuid.UUID, reason string) error {
	return k.backend.DiscardTask(ctx, id, reason)
}

// GetResult reads id's current Result: result.Pending() if not yet
// terminal, the stored outcome otherwise.
func (k *Kit) GetResult(ctx context.Context, id uuid.UUID) (result.Result, error) {
	return k.backend.GetResult(ctx, id)
}

// SendShutdownEvent publishes a shutdown event scoped to groups (all
// groups if empty).
func (k *Kit) SendShutdownEvent(ctx context.Context, groups ...string) error {
	return k.controller.SendShutdown(ctx, groups...)
}

// SendPauseEvent publishes a pause event scoped to groups (all groups if
// empty).
func (k *Kit) SendPauseEvent(ctx context.Context, groups ...string) error {
	return k.controller.SendPause(ctx, groups...)
}

// SendResumeEvent publishes a resume event scoped to groups (all groups
// if empty).
func (k *Kit) SendResumeEvent(ctx context.Context, groups ...string) error {
	return k.controller.SendResume(ctx, groups...)
}
