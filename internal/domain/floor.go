package domain

import (
	"strconv"
)

// Floor is a position on the building's internal, contiguous floor axis.
//
// Buildings served by this system have no floor 0: the displayed labels run
// ..., -2, -1, 1, 2, 3, ... while internally the axis is contiguous, with the
// displayed "-1" stored as 0. Arithmetic and ordering always use the internal
// value; parsing and formatting translate the external convention.
type Floor int

// ParseFloor converts an external floor label (no floor 0) to a Floor.
func ParseFloor(label string) (Floor, error) {
	value, err := strconv.Atoi(label)
	if err != nil {
		return 0, NewValidationError("invalid floor label", err).
			WithContext("label", label)
	}
	if value == 0 {
		return 0, NewValidationError("floor 0 does not exist", nil).
			WithContext("label", label)
	}
	if value < 0 {
		value++
	}
	return Floor(value), nil
}

// String renders the floor using the external convention.
func (f Floor) String() string {
	value := int(f)
	if value <= 0 {
		value--
	}
	return strconv.Itoa(value)
}

// Value returns the internal integer value of the floor.
func (f Floor) Value() int {
	return int(f)
}

// Add shifts the floor by n positions on the internal axis.
func (f Floor) Add(n int) Floor {
	return Floor(int(f) + n)
}

// Distance returns the absolute number of floors between two floors.
func (f Floor) Distance(other Floor) int {
	diff := int(f) - int(other)
	if diff < 0 {
		return -diff
	}
	return diff
}

// DirectionTo returns the direction of travel from f to the given position.
func (f Floor) DirectionTo(target Floor) Direction {
	switch {
	case target > f:
		return DirectionUp
	case target < f:
		return DirectionDown
	default:
		return DirectionIdle
	}
}

// IsAbove checks if this floor is above another floor.
func (f Floor) IsAbove(other Floor) bool {
	return f > other
}

// IsBelow checks if this floor is below another floor.
func (f Floor) IsBelow(other Floor) bool {
	return f < other
}

// FloorRange delimits the legal floors of a building.
type FloorRange struct {
	Min Floor
	Max Floor
}

// NewFloorRange builds the range covered by an ordered tuple of external
// floor labels, e.g. ("-1", "1", "2", "3").
func NewFloorRange(labels []string) (FloorRange, error) {
	if len(labels) < 2 {
		return FloorRange{}, NewValidationError("at least two floors are required", nil).
			WithContext("floors", len(labels))
	}

	first, err := ParseFloor(labels[0])
	if err != nil {
		return FloorRange{}, err
	}

	r := FloorRange{Min: first, Max: first}
	prev := first
	for _, label := range labels[1:] {
		f, err := ParseFloor(label)
		if err != nil {
			return FloorRange{}, err
		}
		if f != prev.Add(1) {
			return FloorRange{}, NewValidationError("floor labels must be contiguous and ascending", nil).
				WithContext("label", label)
		}
		prev = f
		r.Max = f
	}
	return r, nil
}

// Contains reports whether the floor lies within the range.
func (r FloorRange) Contains(f Floor) bool {
	return f >= r.Min && f <= r.Max
}

// Count returns the number of floors in the range.
func (r FloorRange) Count() int {
	return int(r.Max-r.Min) + 1
}

// Index returns the zero-based offset of the floor within the range.
func (r FloorRange) Index(f Floor) uint {
	return uint(f - r.Min)
}
