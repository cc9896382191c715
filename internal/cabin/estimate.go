package cabin

import (
	"time"

	"github.com/skylift-io/dispatch-go/internal/domain"
	"github.com/skylift-io/dispatch-go/internal/plan"
)

// estimateDoorCloseTime returns the time until the door is finally closed,
// accounting for whatever part of the open-stay-close cycle is in progress.
func (c *Cabin) estimateDoorCloseTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.doorLastChange.IsZero() {
		return 0
	}
	passed := time.Since(c.doorLastChange).Seconds()
	doorMove := c.timings.DoorMoveDuration.Seconds()
	stay := c.timings.DoorStayDuration.Seconds()

	var duration float64
	switch c.state {
	case domain.CabinOpeningDoor:
		duration = doorMove - passed + stay + doorMove
	case domain.CabinStoppedDoorOpened:
		duration = stay - passed + doorMove
	case domain.CabinClosingDoor:
		duration = doorMove - passed
	}
	if duration < 0 {
		duration = 0
	}
	return duration
}

// estimateDoorOpenTime returns the time until the door is fully opened from
// its current state: the close remainder becomes the reopen time, an open
// door costs nothing.
func (c *Cabin) estimateDoorOpenTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	doorMove := c.timings.DoorMoveDuration.Seconds()
	if c.doorLastChange.IsZero() {
		return doorMove
	}
	passed := time.Since(c.doorLastChange).Seconds()

	var duration float64
	switch c.state {
	case domain.CabinOpeningDoor:
		duration = doorMove - passed
	case domain.CabinStoppedDoorOpened:
		duration = 0
	case domain.CabinClosingDoor:
		duration = passed
	default:
		duration = doorMove
	}
	if duration < 0 {
		duration = 0
	}
	return duration
}

// CalculateDuration converts a plan metric into seconds: travelled floors at
// travel speed plus a full door cycle per intermediate stop.
func (c *Cabin) CalculateDuration(floors, stops float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return floors*c.timings.FloorTravelDuration.Seconds() +
		stops*(2*c.timings.DoorMoveDuration.Seconds()+c.timings.DoorStayDuration.Seconds())
}

// EstimateTotalDuration deterministically estimates the completion time of
// the cabin's plan, in seconds. With a request, the estimate covers the plan
// after adding the request; the plan itself is never mutated. The heuristic
// extrapolates hall calls whose destinations are unknown.
func (c *Cabin) EstimateTotalDuration(request *domain.DirectedFloor, heuristic domain.Heuristic) float64 {
	return c.EstimateWithPlan(c.chains, request, heuristic)
}

// EstimateWithPlan estimates completion time over a hypothetical plan instead
// of the cabin's own, keeping the cabin's physical state (position, door
// phase, timings). The fleet uses it to evaluate candidate reassignments
// without touching live plans.
func (c *Cabin) EstimateWithPlan(p *plan.Chains, request *domain.DirectedFloor, heuristic domain.Heuristic) float64 {
	duration := 0.0

	if request == nil {
		if !c.State().IsMoving() {
			duration += c.estimateDoorCloseTime()
		}
		floors, stops := p.Metric(c.CurrentPosition(), heuristic)
		return duration + c.CalculateDuration(floors, stops)
	}

	c.mu.Lock()
	atFloor := request.Floor == c.currentFloor
	moving := c.state.IsMoving()
	c.mu.Unlock()
	committed := p.Direction()

	// Already at the requested floor with a compatible direction: one door
	// cycle from wherever the door is, plus the unchanged residual plan.
	if atFloor && (committed == request.Direction || committed == domain.DirectionIdle) && !moving {
		duration += c.estimateDoorOpenTime() +
			c.GetTimings().DoorStayDuration.Seconds() +
			c.GetTimings().DoorMoveDuration.Seconds()

		if p.IsEmpty() {
			return duration
		}
		floors, stops := p.Metric(c.CurrentPosition(), heuristic)
		return duration + c.CalculateDuration(floors, stops)
	}

	clone := p.Clone()
	if err := clone.Add(*request, c.DirectionTo(request.Floor)); err != nil {
		// An incompatible add indicates a caller bug; surface it as an
		// unattractive estimate rather than poisoning dispatch.
		return duration + 1e9
	}

	if !moving {
		duration += c.estimateDoorCloseTime()
	}
	floors, stops := clone.Metric(c.CurrentPosition(), heuristic)
	return duration + c.CalculateDuration(floors, stops)
}
