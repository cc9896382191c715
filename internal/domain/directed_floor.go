package domain

import "fmt"

// DirectedFloor is a (floor, requested direction) pair, the atomic unit of a
// cabin's stop plan. A floor may appear twice in a plan with different
// directions: stopping at floor 2 going up is distinct from stopping at
// floor 2 going down.
type DirectedFloor struct {
	Floor     Floor
	Direction Direction
}

// NewDirectedFloor creates a new DirectedFloor.
func NewDirectedFloor(floor Floor, direction Direction) DirectedFloor {
	return DirectedFloor{Floor: floor, Direction: direction}
}

// String returns a compact representation using the external floor label.
func (df DirectedFloor) String() string {
	return fmt.Sprintf("(%s, %s)", df.Floor, df.Direction)
}

// Heuristic controls how directional-only stops (hall calls whose ultimate
// destination is unknown) are extrapolated when estimating travel.
type Heuristic int

const (
	// HeuristicNone treats directional stops as zero extra travel.
	HeuristicNone Heuristic = iota
	// HeuristicNearest appends one extra floor in the requested direction.
	HeuristicNearest
	// HeuristicFurthest extends travel to the building's extremes.
	HeuristicFurthest
	// HeuristicMean averages the nearest and furthest estimates.
	HeuristicMean
)

// Strategy selects how hall calls are assigned to cabins.
type Strategy int

const (
	// StrategyGreedy picks the cabin minimising its individual estimate.
	StrategyGreedy Strategy = iota
	// StrategyOptimal minimises the slowest cabin's completion time over all
	// feasible assignments.
	StrategyOptimal
)

// ParseStrategy converts a configuration string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "greedy", "GREEDY":
		return StrategyGreedy, nil
	case "optimal", "OPTIMAL":
		return StrategyOptimal, nil
	}
	return StrategyGreedy, NewValidationError("unknown strategy", nil).
		WithContext("strategy", s)
}

// String returns the string representation of the strategy.
func (s Strategy) String() string {
	if s == StrategyOptimal {
		return "optimal"
	}
	return "greedy"
}
