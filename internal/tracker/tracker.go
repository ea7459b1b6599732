// Package tracker maintains a live view of the registered resources that
// match a selection criterion while producers register, modify and
// unregister them concurrently.
//
// A Tracker reconciles three interleaving event streams: the snapshot of
// already-registered resources taken when tracking opens, the synchronous
// change notifications delivered by the registry afterwards, and the
// query/acquire calls made by consumer goroutines. Customizer callbacks
// always run outside the tracker's locks, so they may re-enter it.
package tracker

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"resource-tracker/internal/apperr"
	"resource-tracker/internal/filter"
	"resource-tracker/internal/registry"
	"resource-tracker/internal/resource"
)

// Source is the registry surface the tracker consumes. It is satisfied
// by *registry.Registry.
type Source interface {
	Subscribe(l registry.Listener, f *filter.Filter) (uuid.UUID, error)
	Unsubscribe(id uuid.UUID) error
	Snapshot(name string, f *filter.Filter) []*resource.Reference
	Resolve(ref *resource.Reference) any
	Release(ref *resource.Reference)
}

// Tracker tracks the resources matching one selection criterion.
//
// Open and Close are idempotent. Query methods return nil (and Size
// returns 0) while the tracker is not open; callers that need to tell
// "open with zero matches" from "not open" can use IsOpen.
type Tracker struct {
	src        Source
	customizer Customizer
	logf       func(format string, args ...any)

	// criterion is the full match criterion. fixed marks the
	// constructor-supplied criteria (single reference or category name):
	// for those the subscription pre-filters events and arrival events
	// are not re-checked.
	criterion *filter.Filter
	fixed     bool
	trackRef  *resource.Reference
	trackName string

	mu  sync.Mutex // guards Open/Close transitions and sub
	sub uuid.UUID

	// set is the current tracked set, nil when closed. Read without mu
	// by the query methods.
	set atomic.Pointer[tracked]

	// Cached best reference/object. Cleared under the set's lock on
	// every membership mutation; set lock-free by the getters, which is
	// safe because the only writes are full set-or-clear. A getter that
	// races a removal can store a value computed just before the
	// invalidation, leaving the cache briefly stale; the next membership
	// change clears it again and readers re-derive from the live set.
	cachedRef atomic.Pointer[resource.Reference]
	cachedObj atomic.Pointer[any]
}

// New creates a tracker over an arbitrary filter criterion. The filter
// is re-evaluated on every arrival or update event, and an update that
// no longer matches is treated as a departure. A nil customizer selects
// the built-in default (track everything, release on removal).
func New(src Source, f *filter.Filter, c Customizer) (*Tracker, error) {
	if src == nil {
		return nil, fmt.Errorf("tracker: nil source: %w", apperr.ErrInvalidArgument)
	}
	if f == nil {
		return nil, fmt.Errorf("tracker: nil filter: %w", apperr.ErrInvalidArgument)
	}
	return newTracker(src, f, false, nil, "", c), nil
}

// NewForName creates a tracker over the fixed category criterion
// (name=<name>). Malformed names fail here, not at Open.
func NewForName(src Source, name string, c Customizer) (*Tracker, error) {
	if src == nil {
		return nil, fmt.Errorf("tracker: nil source: %w", apperr.ErrInvalidArgument)
	}
	f, err := filter.ForName(name)
	if err != nil {
		return nil, err
	}
	return newTracker(src, f, true, nil, name, c), nil
}

// NewForReference creates a tracker over a single fixed reference.
func NewForReference(src Source, ref *resource.Reference, c Customizer) (*Tracker, error) {
	if src == nil {
		return nil, fmt.Errorf("tracker: nil source: %w", apperr.ErrInvalidArgument)
	}
	f, err := filter.ForReference(ref)
	if err != nil {
		return nil, err
	}
	return newTracker(src, f, true, ref, "", c), nil
}

func newTracker(src Source, f *filter.Filter, fixed bool, ref *resource.Reference, name string, c Customizer) *Tracker {
	t := &Tracker{
		src:       src,
		criterion: f,
		fixed:     fixed,
		trackRef:  ref,
		trackName: name,
		logf:      log.Printf,
	}
	if c == nil {
		c = defaultCustomizer{t: t}
	}
	t.customizer = c
	return t
}

// SetLogf replaces the logger used for tolerated close-time failures.
// Must be called before Open.
func (t *Tracker) SetLogf(logf func(format string, args ...any)) {
	if logf != nil {
		t.logf = logf
	}
}

// Open begins tracking. It subscribes to the source, captures the
// initial snapshot under the set's lock so no event can overtake it,
// then processes the snapshot through the same state machine live
// events use. Opening an open tracker is a no-op.
func (t *Tracker) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.set.Load() != nil {
		return nil
	}

	ts := newTracked(t)
	ts.mu.Lock()
	listenFilter := t.criterion
	if !t.fixed {
		// User-supplied filter: subscribe unfiltered and re-check on
		// each event, so non-matching updates can be seen as departures.
		listenFilter = nil
	}
	sub, err := t.src.Subscribe(eventAdapter{ts: ts}, listenFilter)
	if err != nil {
		ts.mu.Unlock()
		return fmt.Errorf("tracker open: %w", err)
	}
	var refs []*resource.Reference
	switch {
	case t.trackRef != nil:
		refs = []*resource.Reference{t.trackRef}
	case t.trackName != "":
		refs = t.src.Snapshot(t.trackName, nil)
	default:
		refs = t.src.Snapshot("", t.criterion)
	}
	ts.seed(refs)
	ts.mu.Unlock()

	t.sub = sub
	t.set.Store(ts)
	ts.processSeed()
	return nil
}

// Close stops tracking. New events are suppressed immediately, the
// subscription is dropped (a source that already shut down is logged
// and tolerated), and every currently tracked reference is untracked so
// Removed callbacks still fire. Closing a closed tracker is a no-op.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts := t.set.Load()
	if ts == nil {
		return
	}

	ts.close()
	refs := ts.references()
	if err := t.src.Unsubscribe(t.sub); err != nil {
		t.logf("tracker: unsubscribe on close: %v", err)
	}
	for _, ref := range refs {
		ts.untrack(ref)
	}
	t.set.Store(nil)
}

// IsOpen reports whether the tracker is currently open.
func (t *Tracker) IsOpen() bool {
	return t.set.Load() != nil
}

// GetReferences returns the tracked references best-first, or nil when
// the tracker is not open or tracks nothing.
func (t *Tracker) GetReferences() []*resource.Reference {
	ts := t.set.Load()
	if ts == nil {
		return nil
	}
	return ts.references()
}

// GetReference returns the preferred tracked reference: highest ranking,
// ties going to the earliest registration. Returns nil when nothing is
// tracked. The result is cached until the membership changes.
func (t *Tracker) GetReference() *resource.Reference {
	if ref := t.cachedRef.Load(); ref != nil {
		return ref
	}
	refs := t.GetReferences()
	if len(refs) == 0 {
		return nil
	}
	ref := refs[0]
	t.cachedRef.Store(ref)
	return ref
}

// GetObjectFor resolves ref through the tracked set: members get their
// resolved object cached in the membership slot, non-members resolve
// best-effort without caching. Returns nil when the tracker is not open.
func (t *Tracker) GetObjectFor(ref *resource.Reference) any {
	ts := t.set.Load()
	if ts == nil {
		return nil
	}
	return ts.resolve(ref)
}

// GetObject returns the resolved object of the preferred reference, or
// nil when nothing is tracked. The result is cached until the
// membership changes.
func (t *Tracker) GetObject() any {
	if p := t.cachedObj.Load(); p != nil {
		return *p
	}
	ref := t.GetReference()
	if ref == nil {
		return nil
	}
	obj := t.GetObjectFor(ref)
	if obj != nil {
		t.cachedObj.Store(&obj)
	}
	return obj
}

// GetObjects resolves every tracked reference, best-first. Returns nil
// when nothing is tracked.
func (t *Tracker) GetObjects() []any {
	refs := t.GetReferences()
	if len(refs) == 0 {
		return nil
	}
	objs := make([]any, len(refs))
	for i, ref := range refs {
		objs[i] = t.GetObjectFor(ref)
	}
	return objs
}

// ReleaseFor returns one use of ref to the source, but only when the
// tracked set currently holds a resolved object for it.
func (t *Tracker) ReleaseFor(ref *resource.Reference) {
	ts := t.set.Load()
	if ts == nil {
		return
	}
	if obj, ok := ts.resolvedObject(ref); ok && obj != nil {
		t.src.Release(ref)
	}
}

// WaitFor blocks until a tracked object is available or the timeout
// elapses. A zero timeout waits indefinitely; a negative timeout is a
// contract violation reported as apperr.ErrInvalidArgument. A nil
// result with a nil error means no resource became available, which is
// also returned immediately when the tracker is not open.
//
// Unlike the single-wait behavior this was modeled on, WaitFor keeps
// waiting after a wakeup that did not produce an available object,
// until the full timeout has elapsed.
func (t *Tracker) WaitFor(timeout time.Duration) (any, error) {
	if timeout < 0 {
		return nil, fmt.Errorf("wait timeout %v: %w", timeout, apperr.ErrInvalidArgument)
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		ts := t.set.Load()
		if ts == nil {
			return nil, nil
		}

		// Capture the broadcast channel before checking availability:
		// an add completing after the capture closes this channel, so
		// the wakeup cannot be lost between the check and the wait.
		ts.mu.Lock()
		arrival := ts.arrival
		ts.mu.Unlock()
		if ts.closed.Load() {
			return nil, nil
		}

		if obj := t.GetObject(); obj != nil {
			return obj, nil
		}

		select {
		case <-arrival:
		case <-deadline:
			return t.GetObject(), nil
		}
	}
}

// Remove discontinues tracking of ref, firing Removed if it was a
// member. A no-op when the tracker is not open.
func (t *Tracker) Remove(ref *resource.Reference) {
	ts := t.set.Load()
	if ts == nil {
		return
	}
	ts.untrack(ref)
}

// Size returns the number of tracked references, zero when not open.
func (t *Tracker) Size() int {
	ts := t.set.Load()
	if ts == nil {
		return 0
	}
	return ts.size()
}
