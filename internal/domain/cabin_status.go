package domain

// CabinStatus represents the observable state of a cabin, as streamed to
// status consumers.
type CabinStatus struct {
	ID                 int       `json:"id"`
	CurrentFloor       string    `json:"current_floor"`
	CommittedDirection string    `json:"committed_direction"`
	State              string    `json:"state"`
	DoorState          string    `json:"door_state"`
	Position           float64   `json:"position"`
	DoorPosition       float64   `json:"door_position"`
	PendingStops       int       `json:"pending_stops"`
	MinFloor           string    `json:"min_floor"`
	MaxFloor           string    `json:"max_floor"`
}

// NewCabinStatus creates a new cabin status snapshot.
func NewCabinStatus(id int, floor Floor, direction Direction, state CabinState,
	position, doorPosition float64, pendingStops int, bounds FloorRange) CabinStatus {
	return CabinStatus{
		ID:                 id,
		CurrentFloor:       floor.String(),
		CommittedDirection: direction.String(),
		State:              state.String(),
		DoorState:          state.DoorState().String(),
		Position:           position,
		DoorPosition:       doorPosition,
		PendingStops:       pendingStops,
		MinFloor:           bounds.Min.String(),
		MaxFloor:           bounds.Max.String(),
	}
}

// IsIdle returns true if the cabin has no committed direction.
func (cs CabinStatus) IsIdle() bool {
	return cs.CommittedDirection == DirectionIdle.String()
}
