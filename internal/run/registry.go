// Package run implements the streaming analysis core: a mutex-guarded
// registry of live workflow runs, per-listener bounded fan-out,
// per-user admission with oldest-first eviction, and the supervisor
// that drives one workflow execution to a terminal state.
package run

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/resumind/resumind/internal/core"
	"github.com/resumind/resumind/internal/events"
	"github.com/resumind/resumind/internal/logging"
)

var (
	// ErrNotFound reports a subscribe, cancel or attach against a run
	// that does not exist in the registry or is owned by someone else.
	ErrNotFound = errors.New("run not found")

	// ErrAlreadyRunning reports an admit for a run id that already has
	// a live runtime.
	ErrAlreadyRunning = errors.New("run already running")
)

// Status is a runtime's lifecycle state. It only moves forward: running
// is the sole initial state and the other three are terminal.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusError     Status = "error"
)

// Terminal reports whether the status ends the run.
func (s Status) Terminal() bool { return s != StatusRunning }

// Snapshot is the replay state handed to a subscriber at attach time:
// the step in progress, its accumulated partial text, and the status
// at the moment of subscription.
type Snapshot struct {
	Step            int
	StepTitle       string
	StepDescription string
	Content         string
	Status          Status
	ErrMessage      string
}

// Subscription is one listener's delivery queue. Events arrive on
// Events in production order. Done closes when the registry finalizes
// the listener; after that, Final reports the run's terminal status so
// a viewer whose queue overflowed still learns how the run ended.
type Subscription struct {
	runID int64
	ch    chan events.Event
	done  chan struct{}
	final Status
}

// Events returns the listener's event queue.
func (s *Subscription) Events() <-chan events.Event { return s.ch }

// Done closes once no further events will be delivered.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Final returns the run's terminal status. Valid only after Done is
// closed.
func (s *Subscription) Final() Status { return s.final }

// runtime is the in-memory record of one live or just-finished run.
// All fields are guarded by the registry mutex.
type runtime struct {
	ownerID   int64
	runID     int64
	startedAt time.Time
	cancel    context.CancelFunc
	status    Status
	errMsg    string

	step      int
	stepTitle string
	stepDesc  string
	content   strings.Builder

	listeners map[*Subscription]struct{}
}

func (rt *runtime) subscriptions() []*Subscription {
	subs := make([]*Subscription, 0, len(rt.listeners))
	for sub := range rt.listeners {
		subs = append(subs, sub)
	}
	return subs
}

func (rt *runtime) snapshot() Snapshot {
	return Snapshot{
		Step:            rt.step,
		StepTitle:       rt.stepTitle,
		StepDescription: rt.stepDesc,
		Content:         rt.content.String(),
		Status:          rt.status,
		ErrMessage:      rt.errMsg,
	}
}

// Options configures a Registry.
type Options struct {
	// MaxConcurrent caps running workflows per user. Admitting past the
	// cap evicts the user's oldest running workflow. Default 1.
	MaxConcurrent int

	// QueueSize is each listener's event buffer. Default 256.
	QueueSize int

	// SendTimeout bounds how long one publish may wait on saturated
	// listener queues before dropping. Default 2s.
	SendTimeout time.Duration

	Store  core.RunStore
	Logger *logging.Logger
}

// Registry is the process-wide table of live runs. One mutex guards
// the table and every runtime's fields; it is never held across I/O
// or a blocking send.
type Registry struct {
	store       core.RunStore
	logger      *logging.Logger
	maxPerUser  int
	queueSize   int
	sendTimeout time.Duration

	mu       sync.Mutex
	runtimes map[int64]*runtime

	dropped atomic.Int64
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Registry{
		store:       opts.Store,
		logger:      opts.Logger,
		maxPerUser:  opts.MaxConcurrent,
		queueSize:   opts.QueueSize,
		sendTimeout: opts.SendTimeout,
		runtimes:    make(map[int64]*runtime),
	}
}

// Admit starts a new run for owner under the per-user cap, evicting the
// owner's oldest running workflow first when the cap is reached. The
// caller is attached as the first listener before the workflow task is
// launched, so it observes the run's very first event. ctx scopes the
// run's lifetime and should be the server's base context, not the
// request's: the run outlives its viewer.
func (r *Registry) Admit(ctx context.Context, ownerID, runID int64, runner Runner) (*Subscription, error) {
	r.mu.Lock()
	if _, exists := r.runtimes[runID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("run %d: %w", runID, ErrAlreadyRunning)
	}

	for {
		running := r.runningLocked(ownerID)
		if len(running) < r.maxPerUser {
			break
		}
		r.evictLocked(oldestRuntime(running))
	}

	runCtx, cancel := context.WithCancel(ctx)
	rt := &runtime{
		ownerID:   ownerID,
		runID:     runID,
		startedAt: time.Now(),
		cancel:    cancel,
		status:    StatusRunning,
		listeners: make(map[*Subscription]struct{}),
	}
	sub := &Subscription{
		runID: runID,
		ch:    make(chan events.Event, r.queueSize),
		done:  make(chan struct{}),
	}
	rt.listeners[sub] = struct{}{}
	r.runtimes[runID] = rt
	r.mu.Unlock()

	go r.supervise(runCtx, rt, runner)
	return sub, nil
}

// Subscribe attaches a new listener to an existing run and returns its
// queue together with the replay snapshot, both taken under one lock so
// the snapshot and the first queued event never overlap.
func (r *Registry) Subscribe(runID, ownerID int64) (*Subscription, Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.runtimes[runID]
	if !ok || rt.ownerID != ownerID {
		return nil, Snapshot{}, fmt.Errorf("run %d: %w", runID, ErrNotFound)
	}

	sub := &Subscription{
		runID: runID,
		ch:    make(chan events.Event, r.queueSize),
		done:  make(chan struct{}),
	}
	rt.listeners[sub] = struct{}{}
	return sub, rt.snapshot(), nil
}

// Unsubscribe detaches a listener. A terminal runtime with no remaining
// listeners is removed from the registry. Detaching from an already
// removed run is a no-op.
func (r *Registry) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.runtimes[sub.runID]
	if !ok {
		return
	}
	delete(rt.listeners, sub)
	if len(rt.listeners) == 0 && rt.status.Terminal() {
		delete(r.runtimes, sub.runID)
	}
}

// Cancel requests cooperative cancellation of a running workflow. The
// runtime stays registered until the supervisor finishes its cleanup.
func (r *Registry) Cancel(runID, ownerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.runtimes[runID]
	if !ok || rt.ownerID != ownerID {
		return fmt.Errorf("run %d: %w", runID, ErrNotFound)
	}
	if rt.status == StatusRunning {
		rt.cancel()
	}
	return nil
}

// Dropped returns the total number of events dropped on saturated
// listener queues.
func (r *Registry) Dropped() int64 { return r.dropped.Load() }

// runningLocked returns the owner's running runtimes.
func (r *Registry) runningLocked(ownerID int64) []*runtime {
	var running []*runtime
	for _, rt := range r.runtimes {
		if rt.ownerID == ownerID && rt.status == StatusRunning {
			running = append(running, rt)
		}
	}
	return running
}

// oldestRuntime picks the eviction victim: smallest startedAt, ties
// broken by run id so the choice is deterministic.
func oldestRuntime(running []*runtime) *runtime {
	oldest := running[0]
	for _, rt := range running[1:] {
		if rt.startedAt.Before(oldest.startedAt) ||
			(rt.startedAt.Equal(oldest.startedAt) && rt.runID < oldest.runID) {
			oldest = rt
		}
	}
	return oldest
}

// evictLocked force-stops a running workflow to make room for a new
// one: cancel the task, notify listeners best-effort, finalize them,
// and drop the runtime immediately without waiting for the task. The
// supervisor still runs its cleanup path against the store.
func (r *Registry) evictLocked(rt *runtime) {
	rt.cancel()
	rt.status = StatusStopped

	stopped := events.NewStoppedEvent()
	for sub := range rt.listeners {
		select {
		case sub.ch <- stopped:
		default:
			r.dropped.Add(1)
		}
		sub.final = StatusStopped
		close(sub.done)
	}
	delete(r.runtimes, rt.runID)

	r.logger.Info("run evicted for capacity",
		"conversation_id", rt.runID,
		"user_id", rt.ownerID)
}

// publish applies ev to the run's replay snapshot and fans it out to
// the listeners attached at that moment. Snapshot update and listener
// copy happen under one lock acquisition so a concurrent subscriber
// sees each event exactly once: either inside its snapshot or live on
// its queue, never both.
func (r *Registry) publish(runID int64, ev events.Event) {
	r.mu.Lock()
	rt, ok := r.runtimes[runID]
	if !ok {
		r.mu.Unlock()
		return
	}
	applySnapshot(rt, ev)
	subs := rt.subscriptions()
	r.mu.Unlock()

	r.broadcast(runID, subs, ev)
}

// terminate moves a run to a terminal status and broadcasts its final
// event. The status flip and the listener copy share one critical
// section for the same exactly-once reason as publish. Listeners are
// finalized afterwards so even a viewer whose queue dropped the final
// event observes the outcome through Done/Final.
func (r *Registry) terminate(runID int64, status Status, errMsg string, ev events.Event) {
	r.mu.Lock()
	rt, ok := r.runtimes[runID]
	if !ok || rt.status.Terminal() {
		r.mu.Unlock()
		return
	}
	rt.status = status
	rt.errMsg = errMsg
	subs := rt.subscriptions()
	if len(subs) == 0 {
		delete(r.runtimes, runID)
	}
	r.mu.Unlock()

	r.broadcast(runID, subs, ev)

	r.mu.Lock()
	for _, sub := range subs {
		sub.final = status
		close(sub.done)
	}
	r.mu.Unlock()
}

// broadcast delivers ev to every queue, waiting up to the shared send
// timeout for saturated ones. Once the deadline passes, remaining sends
// are attempted without blocking. A drop affects only that listener and
// is never retried.
func (r *Registry) broadcast(runID int64, subs []*Subscription, ev events.Event) {
	if len(subs) == 0 {
		return
	}
	deadline := time.NewTimer(r.sendTimeout)
	defer deadline.Stop()

	expired := false
	for _, sub := range subs {
		if expired {
			select {
			case sub.ch <- ev:
			default:
				r.drop(runID, ev)
			}
			continue
		}
		select {
		case sub.ch <- ev:
		case <-deadline.C:
			expired = true
			select {
			case sub.ch <- ev:
			default:
				r.drop(runID, ev)
			}
		}
	}
}

func (r *Registry) drop(runID int64, ev events.Event) {
	r.dropped.Add(1)
	r.logger.Warn("event dropped on saturated listener queue",
		"conversation_id", runID,
		"type", ev.EventType())
}

// applySnapshot folds one event into the replay state. step_start
// resets the accumulated text, content extends it, and step_end pins
// the step's full text until the next step begins.
func applySnapshot(rt *runtime, ev events.Event) {
	switch e := ev.(type) {
	case events.StepStartEvent:
		rt.step = e.Step
		rt.stepTitle = e.Title
		rt.stepDesc = e.Description
		rt.content.Reset()
	case events.ContentEvent:
		rt.content.WriteString(e.Content)
	case events.StepEndEvent:
		rt.content.Reset()
		rt.content.WriteString(e.Content)
	}
}
