// Package registry implements the in-memory resource registry the tracker
// consumes: registration, synchronous change notification, snapshot
// queries and reference resolution.
package registry

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"resource-tracker/internal/apperr"
	"resource-tracker/internal/filter"
	"resource-tracker/internal/resource"
)

// EventType classifies a registry change.
type EventType int

const (
	// Registered announces a new resource.
	Registered EventType = iota
	// Modified announces changed metadata on an existing resource.
	Modified
	// Unregistering announces a departing resource. The resource is still
	// resolvable while the event is being delivered.
	Unregistering
)

func (t EventType) String() string {
	switch t {
	case Registered:
		return "registered"
	case Modified:
		return "modified"
	case Unregistering:
		return "unregistering"
	default:
		return "unknown"
	}
}

// Event describes one registry change.
type Event struct {
	Type EventType
	Ref  *resource.Reference
}

// Listener receives registry events. Delivery is synchronous: the
// goroutine performing the mutation runs the listener, outside the
// registry lock, so listeners may call back into the registry.
type Listener interface {
	ResourceChanged(Event)
}

type entry struct {
	obj  any
	uses int
}

type subscription struct {
	id uuid.UUID
	l  Listener
	f  *filter.Filter // nil receives every event
}

// Registry is the event source. The zero value is not usable; use New.
type Registry struct {
	mu      sync.Mutex
	seq     uint64
	entries map[*resource.Reference]*entry
	subs    []subscription
	stopped bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[*resource.Reference]*entry)}
}

// Register publishes a resource under the given category name and returns
// its reference. The properties map is copied; obj is what Resolve hands
// back to consumers.
func (r *Registry) Register(name string, ranking int, props map[string]string, obj any) (*resource.Reference, error) {
	if name == "" {
		return nil, fmt.Errorf("register: empty name: %w", apperr.ErrInvalidArgument)
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil, fmt.Errorf("register: %w", apperr.ErrSourceUnavailable)
	}
	r.seq++
	ref := resource.NewReference(r.seq, name, ranking, copyProps(props))
	r.entries[ref] = &entry{obj: obj}
	subs := r.matchingSubs(ref)
	r.mu.Unlock()

	deliver(subs, Event{Type: Registered, Ref: ref})
	return ref, nil
}

// Modify replaces the resource's properties and notifies listeners.
func (r *Registry) Modify(ref *resource.Reference, props map[string]string) error {
	return r.modify(ref, func() { ref.SetProperties(copyProps(props)) })
}

// SetRanking changes the resource's ranking and notifies listeners.
func (r *Registry) SetRanking(ref *resource.Reference, ranking int) error {
	return r.modify(ref, func() { ref.SetRanking(ranking) })
}

func (r *Registry) modify(ref *resource.Reference, apply func()) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return fmt.Errorf("modify: %w", apperr.ErrSourceUnavailable)
	}
	if _, ok := r.entries[ref]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("modify %v: %w", ref, apperr.ErrUnknownResource)
	}
	apply()
	subs := r.matchingSubs(ref)
	r.mu.Unlock()

	deliver(subs, Event{Type: Modified, Ref: ref})
	return nil
}

// Unregister withdraws a resource. Listeners observe the Unregistering
// event while the resource is still resolvable; the entry is dropped once
// delivery completes.
func (r *Registry) Unregister(ref *resource.Reference) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return fmt.Errorf("unregister: %w", apperr.ErrSourceUnavailable)
	}
	if _, ok := r.entries[ref]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("unregister %v: %w", ref, apperr.ErrUnknownResource)
	}
	subs := r.matchingSubs(ref)
	r.mu.Unlock()

	deliver(subs, Event{Type: Unregistering, Ref: ref})

	r.mu.Lock()
	delete(r.entries, ref)
	r.mu.Unlock()
	return nil
}

// Subscribe adds a listener for events matching f (nil matches all).
// It returns the token used to unsubscribe.
func (r *Registry) Subscribe(l Listener, f *filter.Filter) (uuid.UUID, error) {
	if l == nil {
		return uuid.Nil, fmt.Errorf("subscribe: nil listener: %w", apperr.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return uuid.Nil, fmt.Errorf("subscribe: %w", apperr.ErrSourceUnavailable)
	}
	id := uuid.New()
	r.subs = append(r.subs, subscription{id: id, l: l, f: f})
	return id, nil
}

// Unsubscribe removes a subscription. After Stop it fails with
// apperr.ErrSourceUnavailable; unknown tokens are ignored.
func (r *Registry) Unsubscribe(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return fmt.Errorf("unsubscribe: %w", apperr.ErrSourceUnavailable)
	}
	for i, s := range r.subs {
		if s.id == id {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			break
		}
	}
	return nil
}

// Snapshot returns the references currently matching the given category
// name (empty matches all) and filter (nil matches all), best-first.
func (r *Registry) Snapshot(name string, f *filter.Filter) []*resource.Reference {
	r.mu.Lock()
	var refs []*resource.Reference
	for ref := range r.entries {
		if name != "" && ref.Name != name {
			continue
		}
		if f != nil && !f.Match(ref) {
			continue
		}
		refs = append(refs, ref)
	}
	r.mu.Unlock()

	resource.Sort(refs)
	return refs
}

// FindByID returns the registered reference with the given sequence id,
// or nil when unknown.
func (r *Registry) FindByID(id uint64) *resource.Reference {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ref := range r.entries {
		if ref.ID == id {
			return ref
		}
	}
	return nil
}

// Resolve returns the object registered for ref, or nil when the
// reference is unknown. Each successful Resolve counts one use until the
// matching Release.
func (r *Registry) Resolve(ref *resource.Reference) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[ref]
	if !ok {
		return nil
	}
	e.uses++
	return e.obj
}

// Release returns one use of ref. Releasing an unknown or unused
// reference is a no-op.
func (r *Registry) Release(ref *resource.Reference) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[ref]; ok && e.uses > 0 {
		e.uses--
	}
}

// Uses reports the outstanding use count of ref.
func (r *Registry) Uses(ref *resource.Reference) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[ref]; ok {
		return e.uses
	}
	return 0
}

// Size reports the number of registered resources.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Stop shuts the registry down. Registered resources stay resolvable, but
// mutations and subscription changes fail with apperr.ErrSourceUnavailable.
// Stop is idempotent.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	r.subs = nil
}

// matchingSubs snapshots, under the lock, the subscriptions that should
// see an event for ref.
func (r *Registry) matchingSubs(ref *resource.Reference) []subscription {
	var subs []subscription
	for _, s := range r.subs {
		if s.f == nil || s.f.Match(ref) {
			subs = append(subs, s)
		}
	}
	return subs
}

func deliver(subs []subscription, ev Event) {
	for _, s := range subs {
		s.l.ResourceChanged(ev)
	}
}

func copyProps(props map[string]string) map[string]string {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]string, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
