// Package resource defines the reference type used to identify trackable
// resources and the ranking order used to pick the preferred one.
package resource

import (
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"
)

// Reference identifies a registered resource without resolving it.
//
// References have pointer identity: the registry hands out exactly one
// *Reference per registration, and all bookkeeping keys on that pointer.
// ID and Name never change. Ranking and properties live in an immutable
// snapshot that the registry swaps atomically on updates, so readers
// always observe a consistent ranking/properties pair without locking.
type Reference struct {
	// ID is the registration sequence number, assigned by the registry.
	// Lower IDs registered earlier.
	ID uint64

	// Name is the category the resource was registered under.
	Name string

	state atomic.Pointer[state]
}

// state is one immutable ranking/properties snapshot. Mutations build a
// fresh state; a published one is never written again.
type state struct {
	ranking    int
	properties map[string]string
}

// NewReference builds a reference with its initial snapshot. The
// properties map is stored as-is and must not be mutated afterwards.
func NewReference(id uint64, name string, ranking int, props map[string]string) *Reference {
	r := &Reference{ID: id, Name: name}
	r.state.Store(&state{ranking: ranking, properties: props})
	return r
}

// Ranking returns the current ranking; higher wins.
func (r *Reference) Ranking() int {
	return r.state.Load().ranking
}

// Properties returns the current metadata snapshot. Callers must not
// mutate the returned map.
func (r *Reference) Properties() map[string]string {
	return r.state.Load().properties
}

// SetRanking swaps in a snapshot with the new ranking. Writers must be
// serialized externally; the registry mutates only under its lock.
func (r *Reference) SetRanking(ranking int) {
	cur := r.state.Load()
	r.state.Store(&state{ranking: ranking, properties: cur.properties})
}

// SetProperties swaps in a snapshot with the new properties map, which
// must not be mutated afterwards. Writers must be serialized externally.
func (r *Reference) SetProperties(props map[string]string) {
	cur := r.state.Load()
	r.state.Store(&state{ranking: cur.ranking, properties: props})
}

// Attribute returns the value of a match attribute as seen by filters.
// The built-in attributes "name", "id" and "ranking" shadow properties
// of the same key.
func (r *Reference) Attribute(key string) (string, bool) {
	switch key {
	case "name":
		return r.Name, true
	case "id":
		return strconv.FormatUint(r.ID, 10), true
	case "ranking":
		return strconv.Itoa(r.Ranking()), true
	}
	v, ok := r.Properties()[key]
	return v, ok
}

func (r *Reference) String() string {
	return fmt.Sprintf("%s#%d(rank=%d)", r.Name, r.ID, r.Ranking())
}

// Compare orders references best-first: higher ranking wins, ties go to
// the earlier registration (lower ID). Returns a negative value when a
// is preferred over b.
func Compare(a, b *Reference) int {
	ra, rb := a.Ranking(), b.Ranking()
	if ra != rb {
		if ra > rb {
			return -1
		}
		return 1
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	default:
		return 0
	}
}

// Sort orders refs in place, best-first under Compare.
func Sort(refs []*Reference) {
	sort.SliceStable(refs, func(i, j int) bool {
		return Compare(refs[i], refs[j]) < 0
	})
}

// Best returns the preferred reference under Compare, or nil for an
// empty slice.
func Best(refs []*Reference) *Reference {
	var best *Reference
	for _, r := range refs {
		if best == nil || Compare(r, best) < 0 {
			best = r
		}
	}
	return best
}
