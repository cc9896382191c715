package plan

import (
	"context"
	"fmt"
	"sync"

	"github.com/skylift-io/dispatch-go/internal/domain"
)

// Chains realises LOOK scheduling as three directional stop lists.
//
// Relative to the committed sweep direction D:
//   - current holds the remainder of the in-progress sweep,
//   - next holds stops requested in the opposite direction, visited after the
//     cabin reverses,
//   - future holds stops requested in D whose floor was already passed,
//     visited after the reversal returns.
//
// The invariant current.direction == future.direction == -next.direction holds
// whenever any chain is non-empty. All methods are safe for concurrent use.
type Chains struct {
	mu      sync.Mutex
	current *StopList
	next    *StopList
	future  *StopList
	bounds  domain.FloorRange

	// notify wakes a pending Get on any insert or rotation. The buffer of one
	// makes the wakeup persistent, so a signal sent between the emptiness
	// check and the select is never lost.
	notify chan struct{}
}

// NewChains creates an idle plan over the given floor bounds.
func NewChains(bounds domain.FloorRange) *Chains {
	return &Chains{
		current: NewStopList(domain.DirectionIdle),
		next:    NewStopList(domain.DirectionIdle),
		future:  NewStopList(domain.DirectionIdle),
		bounds:  bounds,
		notify:  make(chan struct{}, 1),
	}
}

func (c *Chains) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Direction returns the committed sweep direction of the plan.
func (c *Chains) Direction() domain.Direction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Direction()
}

// SetDirection sets the committed sweep direction. Setting IDLE requires all
// three chains to be empty.
func (c *Chains) SetDirection(direction domain.Direction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setDirection(direction)
}

func (c *Chains) setDirection(direction domain.Direction) error {
	if direction == domain.DirectionIdle && c.total() > 0 {
		return domain.NewConflictError("cannot set plan direction to idle with pending stops", nil).
			WithContext("pending", c.total())
	}
	if err := c.current.SetDirection(direction); err != nil {
		return err
	}
	if err := c.next.SetDirection(direction.Opposite()); err != nil {
		return err
	}
	return c.future.SetDirection(direction)
}

func (c *Chains) total() int {
	return c.current.Len() + c.next.Len() + c.future.Len()
}

// Len returns the number of stops across all three chains.
func (c *Chains) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total()
}

// IsEmpty reports whether the plan has no stops.
func (c *Chains) IsEmpty() bool {
	return c.Len() == 0
}

// Contains reports whether the directed floor is anywhere in the plan.
func (c *Chains) Contains(df domain.DirectedFloor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Contains(df) || c.next.Contains(df) || c.future.Contains(df)
}

// All returns the stops in iteration order: current, then next, then future.
func (c *Chains) All() []domain.DirectedFloor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.all()
}

func (c *Chains) all() []domain.DirectedFloor {
	out := make([]domain.DirectedFloor, 0, c.total())
	out = append(out, c.current.Entries()...)
	out = append(out, c.next.Entries()...)
	out = append(out, c.future.Entries()...)
	return out
}

// selectChain picks the chain a new directed floor belongs to, initialising
// the plan direction when it is idle. targetDirection is the direction of
// travel from the cabin's position to the floor.
func (c *Chains) selectChain(requestedDirection, targetDirection domain.Direction) (*StopList, error) {
	if c.current.Direction() == domain.DirectionIdle {
		if requestedDirection != domain.DirectionIdle {
			if targetDirection == domain.DirectionIdle || targetDirection == requestedDirection {
				if err := c.setDirection(requestedDirection); err != nil {
					return nil, err
				}
				return c.current, nil
			}
			// The call floor lies opposite to its requested direction; sweep
			// towards it first, then serve it on the reversal.
			if err := c.setDirection(targetDirection); err != nil {
				return nil, err
			}
			return c.next, nil
		}
		if targetDirection != domain.DirectionIdle {
			if err := c.setDirection(targetDirection); err != nil {
				return nil, err
			}
		}
		return c.current, nil
	}

	direction := c.current.Direction()

	// Car call: no requested direction.
	if requestedDirection == domain.DirectionIdle {
		if targetDirection == direction || targetDirection == domain.DirectionIdle {
			return c.current, nil
		}
		return c.next, nil
	}

	// Hall call in the committed direction.
	if requestedDirection == direction {
		if targetDirection == direction || targetDirection == domain.DirectionIdle {
			return c.current, nil
		}
		// The floor was already passed in this sweep.
		return c.future, nil
	}

	// Hall call in the opposite direction.
	return c.next, nil
}

// Add inserts a directed floor into the chain selected by the LOOK rules.
func (c *Chains) Add(df domain.DirectedFloor, targetDirection domain.Direction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	chain, err := c.selectChain(df.Direction, targetDirection)
	if err != nil {
		return err
	}
	if err := chain.Add(df.Floor, df.Direction); err != nil {
		return err
	}
	c.signal()
	return nil
}

// rotate advances the chains after the current sweep drained:
// current <- next, next <- future, future <- empty list in the new current's
// direction. A pending Get is woken so it can re-check the new top.
func (c *Chains) rotate() {
	fresh := NewStopList(c.future.Direction().Opposite())
	c.current, c.next, c.future = c.next, c.future, fresh
	c.signal()
}

// PopFront removes and returns the first stop of the plan. If current drains,
// rotation cascades until current is non-empty or the whole plan is empty;
// the committed direction is left as-is either way.
func (c *Chains) PopFront() (domain.DirectedFloor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.total() == 0 {
		return domain.DirectedFloor{}, domain.ErrEmptyPlan
	}

	for c.current.IsEmpty() {
		c.rotate()
	}

	df, err := c.current.PopFront()
	if err != nil {
		return domain.DirectedFloor{}, err
	}

	if c.total() > 0 {
		for c.current.IsEmpty() {
			c.rotate()
		}
	}
	return df, nil
}

// Top returns the first stop in iteration order without removing it.
func (c *Chains) Top() (domain.DirectedFloor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.top()
}

func (c *Chains) top() (domain.DirectedFloor, error) {
	for _, chain := range []*StopList{c.current, c.next, c.future} {
		if !chain.IsEmpty() {
			return chain.Top()
		}
	}
	return domain.DirectedFloor{}, domain.ErrEmptyPlan
}

// Bottom returns the last stop in iteration order.
func (c *Chains) Bottom() (domain.DirectedFloor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, chain := range []*StopList{c.future, c.next, c.current} {
		if !chain.IsEmpty() {
			return chain.Bottom()
		}
	}
	return domain.DirectedFloor{}, domain.ErrEmptyPlan
}

// Remove deletes the directed floor from whichever chain holds it. Removal
// from current rotates exactly as PopFront does; when that removal empties the
// plan the committed direction resets to idle. Removing the last entry of next
// or future leaves the committed direction as it is.
func (c *Chains) Remove(df domain.DirectedFloor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.Contains(df) {
		if err := c.current.Remove(df); err != nil {
			return err
		}
		if c.total() > 0 {
			for c.current.IsEmpty() {
				c.rotate()
			}
		} else {
			_ = c.setDirection(domain.DirectionIdle)
		}
		return nil
	}
	if c.next.Contains(df) {
		return c.next.Remove(df)
	}
	if c.future.Contains(df) {
		return c.future.Remove(df)
	}
	return domain.ErrNotPresent
}

// Get blocks until the plan is non-empty and returns the top stop without
// removing it. It wakes on inserts, rotations and context cancellation;
// cancellation leaves no orphan waiters behind.
func (c *Chains) Get(ctx context.Context) (domain.DirectedFloor, error) {
	for {
		c.mu.Lock()
		if c.total() > 0 {
			df, err := c.top()
			c.mu.Unlock()
			return df, err
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return domain.DirectedFloor{}, ctx.Err()
		case <-c.notify:
		}
	}
}

// Clear drops all stops and resets the committed direction to idle.
func (c *Chains) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = NewStopList(domain.DirectionIdle)
	c.next = NewStopList(domain.DirectionIdle)
	c.future = NewStopList(domain.DirectionIdle)
}

// Clone returns an independent snapshot of the plan for simulation. The clone
// shares no state with the original and has its own (never-signalled) notify
// channel.
func (c *Chains) Clone() *Chains {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Chains{
		current: c.current.Clone(),
		next:    c.next.Clone(),
		future:  c.future.Clone(),
		bounds:  c.bounds,
		notify:  make(chan struct{}, 1),
	}
}

// Metric returns (floors travelled, stop count) for completing the plan from
// startPosition. Floors sum the absolute distances between consecutive stops,
// the first segment measured from startPosition. The heuristic extrapolates
// directional stops whose destination is not yet known.
func (c *Chains) Metric(startPosition float64, heuristic domain.Heuristic) (float64, float64) {
	switch heuristic {
	case domain.HeuristicNearest, domain.HeuristicFurthest:
		clone := c.Clone()
		c.mu.Lock()
		srcChains := []*StopList{c.current, c.next, c.future}
		dstChains := []*StopList{clone.current, clone.next, clone.future}
		for i, chain := range srcChains {
			cloneChain := dstChains[i]
			for _, df := range chain.Entries() {
				switch df.Direction {
				case domain.DirectionUp:
					if heuristic == domain.HeuristicNearest {
						_ = cloneChain.AddUnique(df.Floor.Add(1), domain.DirectionIdle)
					} else {
						_ = cloneChain.AddUnique(c.bounds.Max, domain.DirectionIdle)
					}
				case domain.DirectionDown:
					if heuristic == domain.HeuristicNearest {
						_ = cloneChain.AddUnique(df.Floor.Add(-1), domain.DirectionIdle)
					} else {
						_ = cloneChain.AddUnique(c.bounds.Min, domain.DirectionIdle)
					}
				}
			}
		}
		c.mu.Unlock()
		return clone.Metric(startPosition, domain.HeuristicNone)

	case domain.HeuristicMean:
		nearFloors, nearStops := c.Metric(startPosition, domain.HeuristicNearest)
		farFloors, farStops := c.Metric(startPosition, domain.HeuristicFurthest)
		return (nearFloors + farFloors) / 2, (nearStops + farStops) / 2

	default:
		c.mu.Lock()
		defer c.mu.Unlock()
		position := startPosition
		floors := 0.0
		for _, df := range c.all() {
			target := float64(df.Floor.Value())
			delta := target - position
			if delta < 0 {
				delta = -delta
			}
			floors += delta
			position = target
		}
		return floors, float64(c.total())
	}
}

// String renders the plan for debug logging.
func (c *Chains) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("Chains(direction=%s, current=%v, next=%v, future=%v)",
		c.current.Direction(), c.current.Entries(), c.next.Entries(), c.future.Entries())
}
