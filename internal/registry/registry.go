// Copyright 2025 Certen Protocol
//
// Fingerprinted job registry — at-most-one concurrent proving task per
// (program, input fingerprint) key. Grounded on
// pkg/batch/collector.go's sync.RWMutex-guarded map of active entries and
// pkg/anchor/scheduler.go's channel-based state machine (a done channel
// closed once per entry wakes every awaiter, the same pattern as
// scheduler.go's batchReadyChan).

package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/certen/ev-prover/internal/backend"
	"github.com/certen/ev-prover/internal/metrics"
	"github.com/certen/ev-prover/internal/proverdata"
)

// State is a job's position in its monotonic lifecycle.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

// Result is a terminal job's outcome.
type Result struct {
	Proof backend.Result
	Err   error
}

// entry is one job's mutable state, guarded by the registry's lock.
type entry struct {
	key       proverdata.JobKey
	state     State
	result    Result
	done      chan struct{} // closed exactly once, on transition to a terminal state
	updatedAt time.Time
}

// ClaimOutcome reports whether a claim created a fresh entry or found one
// already in flight.
type ClaimOutcome int

const (
	Fresh ClaimOutcome = iota
	AlreadyRunning
)

// Handle identifies one claimed job for a later await/complete call.
type Handle struct {
	key proverdata.JobKey
}

// Key returns the job key this handle identifies.
func (h Handle) Key() proverdata.JobKey { return h.key }

// HandleForKey reconstructs a Handle from a job key already known to the
// caller (the gRPC layer, which receives a key back over the wire as a
// plain string via JobKey.String/ParseJobKey). It does not claim or
// otherwise mutate the registry; Await on a key with no matching entry
// returns the same "unknown job key" error Await always returns in that
// case.
func HandleForKey(key proverdata.JobKey) Handle {
	return Handle{key: key}
}

// CompletionNotice is published once per job on its transition to a
// terminal state, feeding the gRPC server's StreamCompletions RPC.
type CompletionNotice struct {
	Key proverdata.JobKey
	Err error
}

// Registry is the shared, process-wide job-dedup map.
type Registry struct {
	mu          sync.Mutex
	entries     map[proverdata.JobKey]*entry
	ttl         time.Duration
	subscribers map[int]chan CompletionNotice
	nextSubID   int
	metrics     *metrics.Registry
}

// Option configures optional Registry behavior.
type Option func(*Registry)

// WithMetrics wires job-claimed/job-completed counters into m, labeled by
// program (and, for completions, outcome).
func WithMetrics(m *metrics.Registry) Option {
	return func(r *Registry) { r.metrics = m }
}

// New constructs a Registry that garbage-collects terminal entries older
// than ttl once Reap is called.
func New(ttl time.Duration, opts ...Option) *Registry {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	r := &Registry{
		entries:     make(map[proverdata.JobKey]*entry),
		ttl:         ttl,
		subscribers: make(map[int]chan CompletionNotice),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe returns a channel of completion notices and an unsubscribe
// function the caller must invoke when done listening (typically when a
// StreamCompletions client disconnects). The channel is buffered; a slow
// subscriber drops notices rather than blocking Complete callers.
func (r *Registry) Subscribe() (<-chan CompletionNotice, func()) {
	r.mu.Lock()
	id := r.nextSubID
	r.nextSubID++
	ch := make(chan CompletionNotice, 64)
	r.subscribers[id] = ch
	r.mu.Unlock()

	unsubscribe := func() {
		r.mu.Lock()
		if c, ok := r.subscribers[id]; ok {
			delete(r.subscribers, id)
			close(c)
		}
		r.mu.Unlock()
	}
	return ch, unsubscribe
}

func (r *Registry) publish(notice CompletionNotice) {
	r.mu.Lock()
	subs := make([]chan CompletionNotice, 0, len(r.subscribers))
	for _, ch := range r.subscribers {
		subs = append(subs, ch)
	}
	r.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- notice:
		default:
		}
	}
}

// Claim atomically inserts a Pending entry for key, or returns a handle to
// the one already in flight. Concurrent claims for the same key never both
// return Fresh.
func (r *Registry) Claim(key proverdata.JobKey) (Handle, ClaimOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; ok {
		return Handle{key: key}, AlreadyRunning
	}

	r.entries[key] = &entry{
		key:       key,
		state:     StatePending,
		done:      make(chan struct{}),
		updatedAt: time.Now(),
	}
	if r.metrics != nil {
		r.metrics.JobsClaimed.WithLabelValues(string(key.Program)).Inc()
	}
	return Handle{key: key}, Fresh
}

// MarkRunning transitions a claimed job from Pending to Running. It returns
// an error, leaving the state unchanged, if the job is unknown or already
// terminal; a job that is already running stays Running.
func (r *Registry) MarkRunning(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[h.key]
	if !ok {
		return fmt.Errorf("mark running: unknown job key %s", h.key)
	}
	if e.state.Terminal() {
		return fmt.Errorf("mark running: job %s is already terminal (%s)", h.key, e.state)
	}
	e.state = StateRunning
	e.updatedAt = time.Now()
	return nil
}

// Complete transitions a Pending/Running job to Completed or Failed
// depending on res.Err, and wakes every awaiter. A job may be completed at
// most once; subsequent calls are no-ops (the registry never re-opens a
// terminal entry).
func (r *Registry) Complete(h Handle, res Result) {
	r.mu.Lock()

	e, ok := r.entries[h.key]
	if !ok || e.state.Terminal() {
		r.mu.Unlock()
		return
	}

	e.result = res
	outcome := "success"
	if res.Err != nil {
		e.state = StateFailed
		outcome = "failure"
	} else {
		e.state = StateCompleted
	}
	e.updatedAt = time.Now()
	close(e.done)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.JobsCompleted.WithLabelValues(string(h.key.Program), outcome).Inc()
	}
	r.publish(CompletionNotice{Key: h.key, Err: res.Err})
}

// Guard returns a scoped acquisition: if the caller never calls Resolve
// before returning, Close marks the job Failed with the given fallback
// error, guaranteeing every claim is paired with exactly one complete even
// on early return.
type Guard struct {
	registry  *Registry
	handle    Handle
	resolved  bool
	fallback  error
}

// NewGuard wraps h in a scoped acquisition against r.
func (r *Registry) NewGuard(h Handle, fallbackErr error) *Guard {
	return &Guard{registry: r, handle: h, fallback: fallbackErr}
}

// Resolve completes the job with res and disarms the guard's fallback.
func (g *Guard) Resolve(res Result) {
	g.registry.Complete(g.handle, res)
	g.resolved = true
}

// Close completes the job with the guard's fallback error if Resolve was
// never called.
func (g *Guard) Close() {
	if g.resolved {
		return
	}
	g.registry.Complete(g.handle, Result{Err: g.fallback})
	g.resolved = true
}

// Await suspends until h reaches a terminal state or ctx is cancelled.
func (r *Registry) Await(ctx context.Context, h Handle) (Result, error) {
	r.mu.Lock()
	e, ok := r.entries[h.key]
	r.mu.Unlock()
	if !ok {
		return Result{}, fmt.Errorf("await: unknown job key %s", h.key)
	}

	select {
	case <-e.done:
		return e.result, nil
	case <-ctx.Done():
		return Result{}, fmt.Errorf("await %s: %w", h.key, ctx.Err())
	}
}

// State reports a job's current lifecycle state.
func (r *Registry) State(h Handle) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[h.key]
	if !ok {
		return StatePending, false
	}
	return e.state, true
}

// Reap removes terminal entries whose last update is older than the
// registry's retention window.
func (r *Registry) Reap() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.ttl)
	removed := 0
	for key, e := range r.entries {
		if e.state.Terminal() && e.updatedAt.Before(cutoff) {
			delete(r.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries currently tracked, for status reporting.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CompletedCount returns the number of entries that have reached a terminal
// state (completed or failed). Used as the Status response's CompletedJobs
// fallback when no job-history database is configured.
func (r *Registry) CompletedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.entries {
		if e.state.Terminal() {
			count++
		}
	}
	return count
}
