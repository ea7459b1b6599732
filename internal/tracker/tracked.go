package tracker

import (
	"sync"
	"sync/atomic"

	"resource-tracker/internal/registry"
	"resource-tracker/internal/resource"
)

// slot is the membership value for one reference. resolved distinguishes
// "never resolved" from "resolved to nil".
type slot struct {
	obj      any
	resolved bool
}

// tracked holds the membership state for one open lifetime of a Tracker.
// A fresh tracked is created on every Open and discarded on Close.
//
// All access to members, adding, initial and the cached-value
// invalidation goes through mu. Customizer callbacks never run under mu:
// event delivery is synchronous, so a callback may re-enter the tracker
// (for example the Adding decision can trigger an unregistration of the
// same reference). The adding and initial working lists let untrack tell
// "never became a member, suppress the callback" apart from "was a
// member, must fire Removed" without recursive locking.
type tracked struct {
	t *Tracker

	mu      sync.Mutex
	members map[*resource.Reference]*slot
	adding  []*resource.Reference
	initial []*resource.Reference

	// arrival is closed and re-armed on every successful add; WaitFor
	// blocks on the channel captured under mu.
	arrival chan struct{}

	// closed is set once by Close. Events observed after that are
	// dropped; it is read without the lock on the event path.
	closed atomic.Bool
}

func newTracked(t *Tracker) *tracked {
	return &tracked{
		t:       t,
		members: make(map[*resource.Reference]*slot),
		arrival: make(chan struct{}),
	}
}

// eventAdapter is the registry listener for one tracked set, kept
// separate so the set itself stays a plain guarded collection rather
// than doubling as the subscription identity.
type eventAdapter struct {
	ts *tracked
}

func (a eventAdapter) ResourceChanged(ev registry.Event) {
	a.ts.resourceChanged(ev)
}

// resourceChanged dispatches one live event. Must not hold mu: track and
// untrack take it themselves, and callbacks run lock-free.
func (ts *tracked) resourceChanged(ev registry.Event) {
	if ts.closed.Load() {
		return
	}
	switch ev.Type {
	case registry.Registered, registry.Modified:
		if ts.t.fixed {
			// Constructor-supplied criterion: the subscription already
			// filtered the event, no re-check needed.
			ts.track(ev.Ref)
			return
		}
		if ts.t.criterion.Match(ev.Ref) {
			ts.track(ev.Ref)
		} else {
			ts.untrack(ev.Ref)
		}
	case registry.Unregistering:
		ts.untrack(ev.Ref)
	}
}

// seed appends the initial snapshot. Called exactly once from Open while
// mu is held, before any event can be delivered. No callbacks fire here.
func (ts *tracked) seed(refs []*resource.Reference) {
	ts.initial = append(ts.initial, refs...)
}

// processSeed drains the initial list through the normal add path.
// Called once from Open after the subscription is active, without
// holding mu across the whole drain: each reference moves from initial
// to adding atomically under mu, then runs trackAdding outside it.
func (ts *tracked) processSeed() {
	for {
		var ref *resource.Reference
		ts.mu.Lock()
		for {
			if len(ts.initial) == 0 {
				ts.mu.Unlock()
				return
			}
			ref = ts.initial[0]
			ts.initial = ts.initial[1:]
			if _, ok := ts.members[ref]; ok {
				continue // a live event already tracked it
			}
			if containsRef(ts.adding, ref) {
				continue // a live event is already adding it
			}
			ts.adding = append(ts.adding, ref)
			break
		}
		ts.mu.Unlock()
		ts.trackAdding(ref)
	}
}

// track handles an arrival or update for ref.
func (ts *tracked) track(ref *resource.Reference) {
	var obj any
	ts.mu.Lock()
	if s, ok := ts.members[ref]; ok {
		// Update of a member. Invalidate caches only when a resolved
		// object could have gone stale.
		if s.resolved {
			obj = s.obj
			ts.invalidate()
		}
		ts.mu.Unlock()
		ts.t.customizer.Modified(ref, obj)
		return
	}
	if containsRef(ts.adding, ref) {
		ts.mu.Unlock()
		return // already being added
	}
	ts.adding = append(ts.adding, ref)
	ts.mu.Unlock()

	ts.trackAdding(ref)
}

// trackAdding runs the add decision for a reference that has already
// been placed on the adding list. The Adding callback runs outside mu
// and may re-entrantly untrack ref; the post-decision bookkeeping runs
// even if the callback panics, so the working lists stay consistent.
func (ts *tracked) trackAdding(ref *resource.Reference) {
	var (
		mustTrack       bool
		becameUntracked bool
		mustCallAdded   bool
	)
	func() {
		defer func() {
			ts.mu.Lock()
			if removeRef(&ts.adding, ref) {
				if mustTrack {
					ts.members[ref] = &slot{}
					ts.invalidate()
					mustCallAdded = true
					close(ts.arrival) // wake WaitFor
					ts.arrival = make(chan struct{})
				}
			} else {
				// Concurrently untracked while the decision ran.
				becameUntracked = true
				ts.invalidate()
			}
			ts.mu.Unlock()
		}()
		mustTrack = ts.t.customizer.Adding(ref)
	}()

	// Callbacks outside mu. A reference that never became a member gets
	// a single Removed with a nil object and no Added.
	if becameUntracked {
		ts.t.customizer.Removed(ref, nil)
		return
	}
	if mustCallAdded {
		ts.t.customizer.Added(ref)
	}
}

// untrack handles a departure for ref in any state.
func (ts *tracked) untrack(ref *resource.Reference) {
	var obj any
	ts.mu.Lock()
	if removeRef(&ts.initial, ref) {
		ts.mu.Unlock()
		return // never processed, no callback
	}
	if removeRef(&ts.adding, ref) {
		ts.mu.Unlock()
		return // in-flight add aborted; trackAdding fires the Removed
	}
	s, wasMember := ts.members[ref]
	if !wasMember {
		ts.mu.Unlock()
		return
	}
	delete(ts.members, ref)
	obj = s.obj
	ts.invalidate()
	ts.mu.Unlock()

	ts.t.customizer.Removed(ref, obj)
}

// resolve returns the object for ref, resolving and caching it in the
// membership slot on first use. Non-members resolve best-effort without
// caching. The source call happens under mu so the stored result is the
// one every caller observes.
func (ts *tracked) resolve(ref *resource.Reference) any {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if s, ok := ts.members[ref]; ok {
		if s.resolved {
			return s.obj
		}
		s.obj = ts.t.src.Resolve(ref)
		s.resolved = true
		return s.obj
	}
	return ts.t.src.Resolve(ref)
}

// resolvedObject reports the cached object for a member without
// triggering resolution.
func (ts *tracked) resolvedObject(ref *resource.Reference) (any, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if s, ok := ts.members[ref]; ok && s.resolved {
		return s.obj, true
	}
	return nil, false
}

// references returns the current membership best-first, or nil when
// empty.
func (ts *tracked) references() []*resource.Reference {
	ts.mu.Lock()
	if len(ts.members) == 0 {
		ts.mu.Unlock()
		return nil
	}
	refs := make([]*resource.Reference, 0, len(ts.members))
	for ref := range ts.members {
		refs = append(refs, ref)
	}
	ts.mu.Unlock()

	resource.Sort(refs)
	return refs
}

func (ts *tracked) size() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.members)
}

// close suppresses further event processing and wakes any waiter so it
// can observe the shutdown. Removal callbacks for the drain still run
// through untrack afterwards.
func (ts *tracked) close() {
	ts.mu.Lock()
	if !ts.closed.Swap(true) {
		close(ts.arrival)
		ts.arrival = make(chan struct{})
	}
	ts.mu.Unlock()
}

// invalidate clears the owner's cached best reference and object.
// Callers must hold mu so the clear is ordered with the membership
// mutation it accompanies.
func (ts *tracked) invalidate() {
	ts.t.cachedRef.Store(nil)
	ts.t.cachedObj.Store(nil)
}

func containsRef(refs []*resource.Reference, ref *resource.Reference) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}

// removeRef deletes ref from the slice, reporting whether it was there.
func removeRef(refs *[]*resource.Reference, ref *resource.Reference) bool {
	s := *refs
	for i, r := range s {
		if r == ref {
			*refs = append(s[:i], s[i+1:]...)
			return true
		}
	}
	return false
}
