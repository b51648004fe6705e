package taskkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/saryou/taskkit/internal"
)

// hostIDEnvVar is set on every child process a Supervisor spawns.
// RunHostProcess checks for its presence to decide whether the current
// invocation is a supervised child or the original parent invocation.
const hostIDEnvVar = "TASKKIT_HOST_ID"

// HostInfo describes one supervised child process's history, passed to
// ShouldRestart.
type HostInfo struct {
	ID           string
	Restarts     int
	LastExitErr  error
	LastExitCode int
}

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	// Hosts is the number of OS processes to keep running.
	Hosts int
	// ShouldRestart decides whether a child that just exited should be
	// replaced. Nil means always restart: a supervised host that exits
	// is assumed abnormal, since handler panics and task failures are
	// already recovered inside the pool/scheduler and never reach here.
	ShouldRestart func(info HostInfo) bool
	// RespawnBackoff throttles repeated immediate respawns of a
	// chronically failing child.
	RespawnBackoff internal.BackoffConfig
	// StopGrace bounds how long Stop waits for children to exit after a
	// shutdown event before sending SIGKILL.
	StopGrace time.Duration
	// Args are appended to the re-exec'd command line, letting the
	// embedding binary distinguish a supervised child via flags in
	// addition to hostIDEnvVar if it prefers.
	Args []string
}

func (c SupervisorConfig) withDefaults() SupervisorConfig {
	if c.Hosts <= 0 {
		c.Hosts = 1
	}
	if c.ShouldRestart == nil {
		c.ShouldRestart = func(HostInfo) bool { return true }
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 30 * time.Second
	}
	return c
}

// Supervisor keeps SupervisorConfig.Hosts OS processes of the embedding
// binary running, each running exactly one ProcessHost via
// RunHostProcess, restarting them on exit per ShouldRestart.
type Supervisor struct {
	lcBase
	cfg        SupervisorConfig
	controller *Controller
	clock      Clock
	log        *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewSupervisor constructs a Supervisor. controller is used to broadcast
// the cluster-wide shutdown event on Stop (children, being OS processes
// on the same Backend, observe it directly rather than through a private
// pipe).
func NewSupervisor(cfg SupervisorConfig, controller *Controller, clock Clock, log *slog.Logger) *Supervisor {
	return &Supervisor{
		cfg:        cfg.withDefaults(),
		controller: controller,
		clock:      clock,
		log:        log,
		stopCh:     make(chan struct{}),
	}
}

// Start spawns and supervises every child process, blocking until the
// Supervisor is stopped via Stop, a SIGTERM/SIGINT is received, or ctx is
// done. It returns context.Canceled if interrupted by SIGINT, a non-nil
// error naming the signal after SIGTERM, ctx.Err() if ctx is done, and nil
// after Stop. A child that fails to spawn or exits is handled by its own
// restart loop; such errors are logged, not returned.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.tryStart(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Hosts; i++ {
		id := uuid.NewString()
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.superviseChild(ctx, id)
		}()
	}

	var result error
	select {
	case sig := <-sigCh:
		s.log.Info("supervisor received signal", "signal", sig)
		if sig == syscall.SIGINT {
			result = context.Canceled
		} else {
			result = fmt.Errorf("taskkit: supervisor terminated by signal %v", sig)
		}
	case <-s.stopCh:
	case <-ctx.Done():
		result = ctx.Err()
	}

	if s.controller != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), s.cfg.StopGrace)
		if err := s.controller.SendShutdown(stopCtx); err != nil {
			s.log.Error("supervisor shutdown broadcast failed", "err", err)
		}
		stopCancel()
	}

	grace := s.clock.After(s.cfg.StopGrace)
	allDone := make(chan struct{})
	go func() { wg.Wait(); close(allDone) }()
	select {
	case <-allDone:
	case <-grace:
		s.log.Warn("supervisor stop grace elapsed, cancelling children")
	}
	cancel() // stop any child goroutine still waiting past grace; their cmd.Wait is unaffected but the loop will not respawn
	<-allDone

	return result
}

// Stop requests a graceful shutdown of every supervised child, as if a
// SIGTERM had been received.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Supervisor) superviseChild(ctx context.Context, id string) {
	backoff := internal.NewBackoff(s.cfg.RespawnBackoff)
	var info HostInfo
	info.ID = id
	for attempt := uint32(1); ; attempt++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		exitErr, exitCode := s.runChild(ctx, id)
		info.Restarts++
		info.LastExitErr = exitErr
		info.LastExitCode = exitCode

		if ctx.Err() != nil {
			return
		}
		if !s.cfg.ShouldRestart(info) {
			s.log.Warn("host exited, not restarting per policy", "id", id, "exit_code", exitCode, "err", exitErr)
			return
		}

		d, _ := backoff.Next(attempt)
		s.log.Warn("host exited, respawning", "id", id, "exit_code", exitCode, "err", exitErr, "backoff", d)
		select {
		case <-s.clock.After(d):
		case <-ctx.Done():
			return
		}
	}
}

// runChild spawns and waits for one child process invocation, returning
// its exit error/code.
func (s *Supervisor) runChild(ctx context.Context, id string) (error, int) {
	exe, err := os.Executable()
	if err != nil {
		s.log.Error("cannot resolve executable for respawn", "err", err)
		return err, -1
	}

	cmd := exec.CommandContext(ctx, exe, s.cfg.Args...)
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%s", hostIDEnvVar, id))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return err, -1
	}
	err = cmd.Wait()
	if err == nil {
		return nil, 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return err, exitErr.ExitCode()
	}
	return err, -1
}

// RunHostProcess is the entrypoint an embedding binary's main() calls
// first. If the process was spawned by a Supervisor (hostIDEnvVar set),
// it builds and runs exactly one ProcessHost to completion via build,
// then calls os.Exit: 0 on a clean shutdown, 1 on any error from Start or
// Terminate. It never returns in that case.
//
// A clean shutdown can arrive two ways: a SIGTERM/SIGINT delivered to this
// process directly, or a cluster-wide shutdown event published on the
// backend's event bus, which the host acts on internally and signals via
// host.Done(). Either way exits 0.
//
// If hostIDEnvVar is not set, RunHostProcess returns false immediately so
// the caller's main() can proceed with its own startup (typically
// constructing and running a Supervisor).
func RunHostProcess(build func(hostID string) (*ProcessHost, error)) bool {
	hostID := os.Getenv(hostIDEnvVar)
	if hostID == "" {
		return false
	}

	host, err := build(hostID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "taskkit: build host:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := host.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "taskkit: start host:", err)
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
		if err := host.Terminate(); err != nil && !errors.Is(err, ErrDoubleStopped) {
			fmt.Fprintln(os.Stderr, "taskkit: terminate host:", err)
			os.Exit(1)
		}
	case <-host.Done():
		// The host already terminated itself, triggered by a
		// cluster-wide shutdown event observed on the backend.
	}
	os.Exit(0)
	return true
}
