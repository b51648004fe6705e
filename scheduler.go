package taskkit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saryou/taskkit/event"
	"github.com/saryou/taskkit/internal"
	"github.com/saryou/taskkit/schedule"
	"github.com/saryou/taskkit/task"
)

// schedulerNamespace seeds the deterministic materialized-task ids: the id
// is derived from (group, key, fire time) so two hosts racing to
// materialize the same slot produce the same id, and PutTasks's
// insert-or-noop absorbs the duplicate.
var schedulerNamespace = uuid.MustParse("6f1d7e2a-6c2e-4e3a-9d39-9d2b6a9f9a10")

// entryState is an Entry plus the Scheduler's private view of it: whether
// its group is currently paused.
type entryState struct {
	entry  *schedule.Entry
	paused bool
}

// schedulerCmd is a unit of work submitted to the Scheduler's single run
// goroutine, which is the only goroutine allowed to touch the due heap
// (internal.DueHeap is documented as not safe for concurrent use).
type schedulerCmd func(*schedulerLoop)

// Scheduler materializes schedule.Entry recurrences into Tasks. Exactly
// one Scheduler per process is expected to run per Entry set, but
// multiple hosts may run the same entries concurrently: the deterministic
// id plus Backend.ScheduleCheckpoint's CAS make materialization convergent
// rather than requiring leader election.
type Scheduler struct {
	lcBase
	backend Backend
	clock   Clock
	log     *slog.Logger
	loc     *time.Location

	cmdCh   chan schedulerCmd
	cancel  context.CancelFunc
	runDone chan struct{}
}

// schedulerLoop holds the state only the run goroutine touches.
type schedulerLoop struct {
	s       *Scheduler
	entries map[string]*entryState // key: group + "/" + Entry.Key
	heap    *internal.DueHeap      // Key in DueItem is the same composite string
}

// NewScheduler constructs a Scheduler. loc is the location recurrences are
// evaluated in; nil means time.UTC.
func NewScheduler(backend Backend, clock Clock, log *slog.Logger, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		backend: backend,
		clock:   clock,
		log:     log,
		loc:     loc,
		cmdCh:   make(chan schedulerCmd, 16),
	}
}

func entryStateKey(group, key string) string {
	return group + "/" + key
}

// AddEntry registers e, computing its first fire time from e.LastFiredTS
// (or, if zero, from now) and pushing it onto the due heap. AddEntry may
// be called before or after Start.
func (s *Scheduler) AddEntry(e *schedule.Entry) {
	s.submit(func(l *schedulerLoop) {
		l.addEntry(e, s.clock.Now())
	})
}

// RemoveEntry unregisters the entry identified by (group, key). Any task
// already materialized from it is unaffected.
func (s *Scheduler) RemoveEntry(group, key string) {
	s.submit(func(l *schedulerLoop) {
		delete(l.entries, entryStateKey(group, key))
		// The heap slot for a removed entry is left in place and skipped
		// as a no-op when it surfaces; DueHeap has no efficient delete,
		// and a stray wakeup that finds no matching entry is harmless.
	})
}

// HandleEvent applies a pause/resume event to the matching entries' groups.
// A shutdown event is ignored here; ProcessHost stops the Scheduler
// directly via Stop.
func (s *Scheduler) HandleEvent(e event.Event) {
	if e.Kind != event.KindPause && e.Kind != event.KindResume {
		return
	}
	s.submit(func(l *schedulerLoop) {
		for _, st := range l.entries {
			if e.AppliesTo(st.entry.Group) {
				st.paused = e.Kind == event.KindPause
			}
		}
	})
}

// submit enqueues cmd for the run loop. AddEntry/RemoveEntry calls made
// before Start are buffered in cmdCh (capacity 16) and applied once
// Start's loop begins draining it; a burst larger than the buffer or a
// call made after Stop is silently dropped.
func (s *Scheduler) submit(cmd schedulerCmd) {
	select {
	case s.cmdCh <- cmd:
	default:
	}
}

// Start begins the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.tryStart(); err != nil {
		return err
	}
	ctx, s.cancel = context.WithCancel(ctx)
	loop := &schedulerLoop{s: s, entries: make(map[string]*entryState), heap: internal.NewDueHeap()}
	done := make(chan struct{})
	go func() {
		loop.run(ctx)
		close(done)
	}()
	s.runDone = done
	return nil
}

// Stop signals the run loop to exit and waits up to timeout.
func (s *Scheduler) Stop(timeout time.Duration) error {
	return s.tryStop(timeout, func() internal.DoneChan {
		s.cancel()
		return internal.DoneChan(s.runDone)
	})
}

func (l *schedulerLoop) run(ctx context.Context) {
	for {
		var timer <-chan time.Time
		var stopTimer func()
		if item, ok := l.heap.Peek(); ok {
			d := item.When.Sub(l.s.clock.Now())
			if d < 0 {
				d = 0
			}
			t := l.s.clock.NewTimer(d)
			timer = t.C
			stopTimer = func() { t.Stop() }
		} else {
			// No entries yet; wake only on a command or cancellation.
			timer = nil
			stopTimer = func() {}
		}

		select {
		case <-ctx.Done():
			stopTimer()
			return
		case cmd := <-l.s.cmdCh:
			stopTimer()
			cmd(l)
		case <-timer:
			stopTimer()
			l.fireDue(ctx)
		}

		// Drain any further pending commands before recomputing the next
		// wake so a burst of AddEntry calls doesn't reset the timer once
		// per call.
		l.drainCmds()
	}
}

func (l *schedulerLoop) drainCmds() {
	for {
		select {
		case cmd := <-l.s.cmdCh:
			cmd(l)
		default:
			return
		}
	}
}

// addEntry computes e's first fire instant and pushes it.
func (l *schedulerLoop) addEntry(e *schedule.Entry, now time.Time) {
	k := entryStateKey(e.Group, e.Key)
	st := &entryState{entry: e}
	l.entries[k] = st
	last := e.LastFiredTS
	if last.IsZero() {
		last = now
	}
	next := e.Recurrence(last, l.s.loc)
	l.heap.Push(k, next)
}

// fireDue pops every heap item due now, materializing tasks for each live,
// unpaused entry, then reschedules each.
func (l *schedulerLoop) fireDue(ctx context.Context) {
	now := l.s.clock.Now()
	for {
		item, ok := l.heap.Peek()
		if !ok || item.When.After(now) {
			return
		}
		l.heap.Pop()
		l.fireOne(ctx, item.Key.(string), item.When, now)
	}
}

func (l *schedulerLoop) fireOne(ctx context.Context, key string, fireTS, now time.Time) {
	st, ok := l.entries[key]
	if !ok {
		return // removed since it was scheduled
	}
	e := st.entry

	slots := l.collectMissed(e, fireTS, now)
	latest := slots[len(slots)-1]
	if !st.paused {
		fires := []time.Time{latest}
		if e.Missed == schedule.FireAllMissed {
			fires = slots
		}
		for _, ts := range fires {
			l.materialize(ctx, e, ts)
		}
		e.LastFiredTS = latest
	}

	next := e.Recurrence(latest, l.s.loc)
	if !next.After(now) {
		// Recurrence didn't advance past now (e.g. a sub-poll-interval
		// Every duration); avoid a busy loop by nudging forward once.
		next = now.Add(time.Millisecond)
	}
	l.heap.Push(key, next)
}

// collectMissed walks the recurrence forward from fireTS up to now,
// collecting every slot due by now: FireAllMissed materializes all of them,
// CoalesceMissed only the last. Bounded to avoid unbounded work after a
// very long pause; slots beyond the cap are not collected.
func (l *schedulerLoop) collectMissed(e *schedule.Entry, fireTS, now time.Time) []time.Time {
	const maxMissedFires = 1000
	fires := []time.Time{fireTS}
	cur := fireTS
	for i := 0; i < maxMissedFires; i++ {
		next := e.Recurrence(cur, l.s.loc)
		if next.After(now) {
			break
		}
		fires = append(fires, next)
		cur = next
	}
	return fires
}

func (l *schedulerLoop) materialize(ctx context.Context, e *schedule.Entry, fireTS time.Time) {
	ok, err := l.s.backend.ScheduleCheckpoint(ctx, e.Group, e.Key, fireTS)
	if err != nil {
		l.s.log.Error("schedule checkpoint failed", "group", e.Group, "key", e.Key, "err", err)
		return
	}
	if !ok {
		// Another host already advanced this slot's checkpoint past
		// fireTS; nothing to do.
		return
	}

	id := uuid.NewSHA1(schedulerNamespace, []byte(e.Group+"/"+e.Key+"/"+fireTS.UTC().Format(time.RFC3339Nano)))
	t := task.New(id, e.Group, e.Name, e.Data, l.s.clock.Now(), fireTS, e.TTL)
	if err := l.s.backend.PutTasks(ctx, t); err != nil {
		l.s.log.Error("materialize task failed", "group", e.Group, "key", e.Key, "id", id, "err", err)
	}
}
