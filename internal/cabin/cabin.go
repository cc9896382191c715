// Package cabin models a single elevator car as two cooperating loops: a
// motion loop driven by the stop plan and a door loop driven by a door-action
// queue. The loops coordinate through the door-idle gate and mutate shared
// state under the cabin mutex.
package cabin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skylift-io/dispatch-go/internal/constants"
	"github.com/skylift-io/dispatch-go/internal/domain"
	"github.com/skylift-io/dispatch-go/internal/eventbus"
	"github.com/skylift-io/dispatch-go/internal/plan"
	"github.com/skylift-io/dispatch-go/metrics"
)

// Timings groups the runtime-mutable duration parameters of a cabin.
type Timings struct {
	FloorTravelDuration time.Duration
	AccelerateDuration  time.Duration
	DoorMoveDuration    time.Duration
	DoorStayDuration    time.Duration
}

// doorRequest carries a door action into the door loop; ack is closed once
// the loop has reacted to the action (possibly by ignoring it).
type doorRequest struct {
	action domain.DoorAction
	ack    chan struct{}
}

// doorTask tracks an in-flight open/close cycle so a later action can
// pre-empt it.
type doorTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cabin holds the stop plan plus physical state of one elevator car.
type Cabin struct {
	id     int
	bounds domain.FloorRange
	logger *slog.Logger
	bus    *eventbus.Bus
	events chan<- string

	chains *plan.Chains

	mu      sync.Mutex
	timings Timings
	arrived map[domain.DirectedFloor]*WakeEvent

	state           domain.CabinState
	currentFloor    domain.Floor
	movingTimestamp time.Time
	movingSpeed     float64
	doorLastChange  time.Time

	doorIdle    *gate
	doorActions chan doorRequest
	doorTask    *doorTask

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a cabin at the given floor. The events channel is the shared
// outgoing event queue; bus receives typed state-change notifications.
func New(id int, bounds domain.FloorRange, startFloor domain.Floor, timings Timings,
	events chan<- string, bus *eventbus.Bus) (*Cabin, error) {

	if id <= 0 {
		return nil, domain.NewValidationError("cabin id must be positive", nil).
			WithContext("id", id)
	}
	if !bounds.Contains(startFloor) {
		return nil, domain.NewValidationError("start floor outside building bounds", nil).
			WithContext("floor", startFloor.String())
	}
	if timings.FloorTravelDuration <= 0 || timings.DoorMoveDuration <= 0 || timings.DoorStayDuration < 0 {
		return nil, domain.NewValidationError("cabin durations must be positive", nil)
	}

	c := &Cabin{
		id:           id,
		bounds:       bounds,
		logger:       slog.With(slog.String("component", constants.ComponentCabin), slog.Int("cabin_id", id)),
		bus:          bus,
		events:       events,
		chains:       plan.NewChains(bounds),
		timings:      timings,
		arrived:      make(map[domain.DirectedFloor]*WakeEvent),
		state:        domain.CabinStoppedDoorClosed,
		currentFloor: startFloor,
		doorIdle:     newGate(true),
		doorActions:  make(chan doorRequest, constants.DoorActionBuffer),
	}
	return c, nil
}

// ID returns the cabin identifier.
func (c *Cabin) ID() int {
	return c.id
}

// Bounds returns the building floor range the cabin serves.
func (c *Cabin) Bounds() domain.FloorRange {
	return c.bounds
}

// Start launches the motion and door loops. It is a no-op when already
// started.
func (c *Cabin) Start(parent context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(parent)
	ctx := c.ctx
	c.mu.Unlock()

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.moveLoop(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.doorLoop(ctx)
	}()

	c.logger.Info("cabin started",
		slog.String("floor", c.CurrentFloor().String()),
		slog.String("min_floor", c.bounds.Min.String()),
		slog.String("max_floor", c.bounds.Max.String()))
}

// Stop cancels both loops and waits for them to exit. Any in-flight door
// cycle is aborted with the state left as observed.
func (c *Cabin) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
	c.logger.Info("cabin stopped")
}

// IsStarted reports whether the loops are running.
func (c *Cabin) IsStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Plan exposes the cabin's stop plan.
func (c *Cabin) Plan() *plan.Chains {
	return c.chains
}

// SetTimings replaces the duration parameters at runtime.
func (c *Cabin) SetTimings(t Timings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timings = t
}

// GetTimings returns the current duration parameters.
func (c *Cabin) GetTimings() Timings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timings
}

// CurrentFloor returns the floor the cabin last completed.
func (c *Cabin) CurrentFloor() domain.Floor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentFloor
}

// State returns the combined motion/door state.
func (c *Cabin) State() domain.CabinState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CommittedDirection returns the plan's committed sweep direction.
func (c *Cabin) CommittedDirection() domain.Direction {
	return c.chains.Direction()
}

// CommitFloor commits a (floor, requested direction) pair to the plan and
// returns the wake event fired when the stop is serviced. The call is
// idempotent: a duplicate commit returns the existing event unchanged.
//
// When the cabin is already at the floor with a compatible committed
// direction and is not moving, the stop is serviced in place: the arrival
// event is emitted synchronously, a door open is scheduled, and the returned
// event fires once the door action has been taken.
func (c *Cabin) CommitFloor(floor domain.Floor, requestedDirection domain.Direction) (*WakeEvent, error) {
	return c.CommitFloorWithEvent(floor, requestedDirection, nil)
}

// CommitFloorWithEvent is CommitFloor with a caller-provided wake event, used
// by reassignment to preserve event identity across cabins.
func (c *Cabin) CommitFloorWithEvent(floor domain.Floor, requestedDirection domain.Direction, event *WakeEvent) (*WakeEvent, error) {
	if !c.bounds.Contains(floor) {
		return nil, domain.NewValidationError("floor outside building bounds", nil).
			WithContext("floor", floor.String()).
			WithContext("cabin", c.id)
	}

	df := domain.NewDirectedFloor(floor, requestedDirection)

	c.mu.Lock()
	if existing, ok := c.arrived[df]; ok {
		c.mu.Unlock()
		c.logger.Debug("floor already committed", slog.String("stop", df.String()))
		return existing, nil
	}

	targetDirection := c.directionToLocked(floor)

	if targetDirection == domain.DirectionIdle && !c.state.IsMoving() {
		committed := c.chains.Direction()
		if committed == requestedDirection || committed == domain.DirectionIdle {
			ctx := c.ctx
			c.mu.Unlock()

			c.emitArrival(floor, requestedDirection)

			wake := event
			if wake == nil {
				wake = NewWakeEvent()
			}
			go func() {
				if ctx == nil {
					ctx = context.Background()
				}
				if err := c.CommitDoor(ctx, domain.DoorOpen); err != nil {
					return
				}
				wake.Set()
			}()
			return wake, nil
		}
	}

	if err := c.chains.Add(df, targetDirection); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	wake := event
	if wake == nil {
		wake = NewWakeEvent()
	}
	c.arrived[df] = wake
	c.mu.Unlock()

	c.logger.Debug("floor committed",
		slog.String("stop", df.String()),
		slog.String("plan", c.chains.String()))
	metrics.SetPendingStops(c.id, float64(c.chains.Len()))
	return wake, nil
}

// CancelCommit removes the pair from the plan and discards its wake event
// without signalling it. Cancelling an absent pair is a no-op, tolerating the
// race with a natural pop.
func (c *Cabin) CancelCommit(floor domain.Floor, requestedDirection domain.Direction) {
	df := domain.NewDirectedFloor(floor, requestedDirection)

	c.mu.Lock()
	if _, ok := c.arrived[df]; !ok {
		c.mu.Unlock()
		return
	}
	if err := c.chains.Remove(df); err != nil {
		c.mu.Unlock()
		c.logger.Warn("cancel raced with pop", slog.String("stop", df.String()))
		return
	}
	delete(c.arrived, df)
	c.mu.Unlock()

	c.logger.Debug("commit cancelled", slog.String("stop", df.String()))
	metrics.SetPendingStops(c.id, float64(c.chains.Len()))
}

// ArrivalEvent returns the wake event registered for the pair, if any.
func (c *Cabin) ArrivalEvent(df domain.DirectedFloor) (*WakeEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, ok := c.arrived[df]
	return ev, ok
}

// CommitDoor enqueues a door action and blocks until the door loop has
// reacted to it.
func (c *Cabin) CommitDoor(ctx context.Context, action domain.DoorAction) error {
	req := doorRequest{action: action, ack: make(chan struct{})}
	select {
	case c.doorActions <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// popTarget pops the plan's front stop and fires its wake event.
func (c *Cabin) popTarget() (domain.DirectedFloor, error) {
	c.mu.Lock()
	df, err := c.chains.PopFront()
	if err != nil {
		c.mu.Unlock()
		return domain.DirectedFloor{}, err
	}
	wake, ok := c.arrived[df]
	delete(c.arrived, df)
	c.mu.Unlock()

	if ok {
		wake.Set()
	} else {
		c.logger.Error("popped stop had no registered wake event", slog.String("stop", df.String()))
		metrics.IncError("missing_wake_event", constants.ComponentCabin)
	}
	c.logger.Debug("stop popped", slog.String("stop", df.String()))
	metrics.SetPendingStops(c.id, float64(c.chains.Len()))
	return df, nil
}

// directionToLocked returns the travel direction from the cabin's current
// position to the floor. Callers hold c.mu.
func (c *Cabin) directionToLocked(floor domain.Floor) domain.Direction {
	position := c.currentPositionLocked()
	target := float64(floor.Value())
	switch {
	case target > position:
		return domain.DirectionUp
	case target < position:
		return domain.DirectionDown
	default:
		return domain.DirectionIdle
	}
}

// DirectionTo returns the travel direction from the cabin's position to the
// floor.
func (c *Cabin) DirectionTo(floor domain.Floor) domain.Direction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.directionToLocked(floor)
}

// CurrentPosition returns the cabin's fractional position on the floor axis.
func (c *Cabin) CurrentPosition() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentPositionLocked()
}

func (c *Cabin) currentPositionLocked() float64 {
	base := float64(c.currentFloor.Value())
	switch c.state.MovingDirection() {
	case domain.DirectionUp:
		return base + c.positionPercentageLocked()
	case domain.DirectionDown:
		return base - c.positionPercentageLocked()
	default:
		return base
	}
}

// PositionPercentage returns the fraction of the current floor hop completed.
func (c *Cabin) PositionPercentage() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionPercentageLocked()
}

func (c *Cabin) positionPercentageLocked() float64 {
	if c.movingTimestamp.IsZero() || c.movingSpeed <= 0 {
		return 0
	}
	p := time.Since(c.movingTimestamp).Seconds() * c.movingSpeed
	if p > 1 {
		p = 1
	}
	if p < 0 {
		p = 0
	}
	return p
}

// DoorPositionPercentage interpolates the door opening per state: rising while
// opening, 1 while opened, falling while closing, 0 otherwise.
func (c *Cabin) DoorPositionPercentage() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var p float64
	switch c.state {
	case domain.CabinStoppedDoorOpened:
		p = 1
	case domain.CabinOpeningDoor:
		if !c.doorLastChange.IsZero() {
			p = time.Since(c.doorLastChange).Seconds() / c.timings.DoorMoveDuration.Seconds()
		}
	case domain.CabinClosingDoor:
		if !c.doorLastChange.IsZero() {
			p = 1 - time.Since(c.doorLastChange).Seconds()/c.timings.DoorMoveDuration.Seconds()
		}
	}
	if p > 1 {
		p = 1
	}
	if p < 0 {
		p = 0
	}
	return p
}

// Status returns an observable snapshot of the cabin.
func (c *Cabin) Status() domain.CabinStatus {
	c.mu.Lock()
	floor := c.currentFloor
	state := c.state
	position := c.currentPositionLocked()
	c.mu.Unlock()

	return domain.NewCabinStatus(
		c.id,
		floor,
		c.chains.Direction(),
		state,
		position,
		c.DoorPositionPercentage(),
		c.chains.Len(),
		c.bounds,
	)
}

// transition changes the cabin state and publishes the change on the bus.
func (c *Cabin) transition(state domain.CabinState) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()

	c.logger.Debug("state changed", slog.String("state", state.String()))
	if c.bus != nil {
		c.bus.Publish(eventbus.TopicCabinStateChanged, c.Status())
	}
}

// setFloor moves the cabin's floor by delta and publishes the change.
func (c *Cabin) setFloor(delta int) {
	c.mu.Lock()
	c.currentFloor = c.currentFloor.Add(delta)
	floor := c.currentFloor
	c.mu.Unlock()

	c.logger.Debug("floor changed", slog.String("floor", floor.String()))
	metrics.SetCurrentFloor(c.id, float64(floor.Value()))
	if c.bus != nil {
		c.bus.Publish(eventbus.TopicCabinFloorChanged, c.Status())
	}
}

// emit pushes an event line onto the outgoing queue without blocking a cabin
// loop; overflow is counted and dropped.
func (c *Cabin) emit(msg string) {
	select {
	case c.events <- msg:
	default:
		c.logger.Warn("event queue full, dropping event", slog.String("event", msg))
		metrics.IncDroppedEvents()
	}
}

// emitArrival publishes the arrival event line for a serviced stop.
func (c *Cabin) emitArrival(floor domain.Floor, direction domain.Direction) {
	msg := fmt.Sprintf("floor_arrived@%s#%d", floor, c.id)
	switch direction {
	case domain.DirectionUp:
		msg = "up_" + msg
	case domain.DirectionDown:
		msg = "down_" + msg
	}
	c.emit(msg)
	metrics.IncArrival(c.id, direction.String())
}
