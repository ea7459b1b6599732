package tracker

import "resource-tracker/internal/resource"

// Customizer decides what gets tracked and observes membership changes.
//
// The tracker invokes every method on the goroutine that triggered the
// originating event or query, never while holding an internal lock, so
// implementations may safely call back into the tracker or the registry.
// Panics are not recovered; they propagate to the invoking goroutine.
type Customizer interface {
	// Adding decides whether the reference should be tracked. It runs
	// before the reference becomes a member; returning false drops the
	// reference without further callbacks.
	Adding(ref *resource.Reference) bool

	// Added runs after the reference has become a member.
	Added(ref *resource.Reference)

	// Modified runs when a tracked reference's metadata changes. obj is
	// the currently cached object, or nil when the reference has not been
	// resolved yet.
	Modified(ref *resource.Reference, obj any)

	// Removed runs after the reference has left the membership. obj is
	// the last resolved object, or nil. Every Added is paired with at
	// most one Removed; a Removed with no preceding Added only happens
	// when a departure raced the Adding decision.
	Removed(ref *resource.Reference, obj any)
}

// defaultCustomizer tracks everything and releases resolved objects back
// to the source on removal. Used when no Customizer is supplied.
type defaultCustomizer struct {
	t *Tracker
}

func (c defaultCustomizer) Adding(*resource.Reference) bool { return true }

func (c defaultCustomizer) Added(*resource.Reference) {}

func (c defaultCustomizer) Modified(*resource.Reference, any) {}

func (c defaultCustomizer) Removed(ref *resource.Reference, _ any) {
	c.t.src.Release(ref)
}
