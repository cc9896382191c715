// Package plan implements the LOOK stop-ordering discipline as a three-chain
// queue of directional stop lists.
package plan

import (
	"sort"

	"github.com/skylift-io/dispatch-go/internal/domain"
)

// StopList is an ordered sequence of directed floors, all compatible with one
// sweep direction. Entries are kept sorted by (floor, requested direction):
// ascending for an UP list, descending for a DOWN list, insertion order for an
// IDLE list. The list is not safe for concurrent use; Chains serializes access.
type StopList struct {
	direction domain.Direction
	entries   []domain.DirectedFloor
}

// NewStopList creates an empty stop list with the given sweep direction.
func NewStopList(direction domain.Direction) *StopList {
	return &StopList{direction: direction}
}

// Direction returns the sweep direction of the list.
func (l *StopList) Direction() domain.Direction {
	return l.direction
}

// SetDirection replaces the sweep direction. The list must be empty unless the
// direction is unchanged.
func (l *StopList) SetDirection(direction domain.Direction) error {
	if direction == l.direction {
		return nil
	}
	if len(l.entries) > 0 {
		return domain.NewConflictError("cannot change direction of a non-empty stop list", nil).
			WithContext("direction", direction.String()).
			WithContext("entries", len(l.entries))
	}
	l.direction = direction
	return nil
}

// key maps an entry onto the list's sort axis. UP lists sort by
// (floor, direction) ascending, DOWN lists by the negated pair.
func (l *StopList) key(df domain.DirectedFloor) (int, int) {
	switch l.direction {
	case domain.DirectionDown:
		return -df.Floor.Value(), -int(df.Direction)
	default:
		return df.Floor.Value(), int(df.Direction)
	}
}

func keyLess(a1, a2, b1, b2 int) bool {
	if a1 != b1 {
		return a1 < b1
	}
	return a2 < b2
}

// Add inserts a directed floor at the position dictated by the sort key.
// The requested direction must be IDLE or equal to the list direction.
func (l *StopList) Add(floor domain.Floor, direction domain.Direction) error {
	if direction != domain.DirectionIdle && direction != l.direction {
		return domain.ErrDirectionMismatch
	}

	df := domain.NewDirectedFloor(floor, direction)
	if l.direction == domain.DirectionIdle {
		// Arbitrary but stable: insertion order.
		l.entries = append(l.entries, df)
		return nil
	}

	k1, k2 := l.key(df)
	i := sort.Search(len(l.entries), func(i int) bool {
		e1, e2 := l.key(l.entries[i])
		return !keyLess(e1, e2, k1, k2)
	})
	l.entries = append(l.entries, domain.DirectedFloor{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = df
	return nil
}

// AddUnique inserts the directed floor unless it is already present.
func (l *StopList) AddUnique(floor domain.Floor, direction domain.Direction) error {
	if l.Contains(domain.NewDirectedFloor(floor, direction)) {
		return nil
	}
	return l.Add(floor, direction)
}

// Remove deletes the directed floor from the list.
func (l *StopList) Remove(df domain.DirectedFloor) error {
	for i, e := range l.entries {
		if e == df {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotPresent
}

// PopFront removes and returns the first entry.
func (l *StopList) PopFront() (domain.DirectedFloor, error) {
	if len(l.entries) == 0 {
		return domain.DirectedFloor{}, domain.ErrEmptyPlan
	}
	df := l.entries[0]
	l.entries = l.entries[1:]
	return df, nil
}

// Top returns the first entry without removing it.
func (l *StopList) Top() (domain.DirectedFloor, error) {
	if len(l.entries) == 0 {
		return domain.DirectedFloor{}, domain.ErrEmptyPlan
	}
	return l.entries[0], nil
}

// Bottom returns the last entry without removing it.
func (l *StopList) Bottom() (domain.DirectedFloor, error) {
	if len(l.entries) == 0 {
		return domain.DirectedFloor{}, domain.ErrEmptyPlan
	}
	return l.entries[len(l.entries)-1], nil
}

// Contains reports whether the directed floor is in the list.
func (l *StopList) Contains(df domain.DirectedFloor) bool {
	for _, e := range l.entries {
		if e == df {
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (l *StopList) Len() int {
	return len(l.entries)
}

// IsEmpty reports whether the list has no entries. The readiness signal of a
// stop list is exactly its non-emptiness.
func (l *StopList) IsEmpty() bool {
	return len(l.entries) == 0
}

// Entries returns a copy of the entries in order.
func (l *StopList) Entries() []domain.DirectedFloor {
	out := make([]domain.DirectedFloor, len(l.entries))
	copy(out, l.entries)
	return out
}

// Clone returns an independent copy of the list.
func (l *StopList) Clone() *StopList {
	c := NewStopList(l.direction)
	c.entries = append(c.entries, l.entries...)
	return c
}
