package cabin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/skylift-io/dispatch-go/internal/constants"
	"github.com/skylift-io/dispatch-go/internal/domain"
	"github.com/skylift-io/dispatch-go/metrics"
)

// sleepCtx sleeps for d, returning false when the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// moveLoop drives the cabin between floors. It waits for the plan's top stop,
// waits for the door to be idle, then moves one floor per iteration until the
// target floor is reached, where it opens the door and announces arrivals.
func (c *Cabin) moveLoop(ctx context.Context) {
	for {
		df, err := c.chains.Get(ctx)
		if err != nil {
			c.logger.Debug("move loop stopped")
			return
		}

		// A stop can land while a door cycle for this very floor is in
		// flight: pre-empt a closing door with a reopen, or swallow the stop
		// if the door is already opening for it.
		if !c.doorIdle.IsSet() {
			c.mu.Lock()
			here := domain.NewDirectedFloor(c.currentFloor, c.chains.Direction())
			state := c.state
			c.mu.Unlock()

			if df == here {
				switch state {
				case domain.CabinClosingDoor:
					if err := c.CommitDoor(ctx, domain.DoorOpen); err != nil {
						return
					}
					continue
				case domain.CabinOpeningDoor, domain.CabinStoppedDoorOpened:
					if _, err := c.popTarget(); err != nil {
						c.logger.Error("failed to pop in-service stop", slog.String("error", err.Error()))
					}
					continue
				}
			}

			if err := c.doorIdle.Wait(ctx); err != nil {
				return
			}
			// The plan may have changed while the door was closing.
			if top, err := c.chains.Top(); err != nil || top != df {
				continue
			}
		}

		target := df.Floor
		current := c.CurrentFloor()

		switch {
		case current.IsBelow(target):
			c.startMove(domain.CabinMovingUp)
			if !sleepCtx(ctx, c.GetTimings().FloorTravelDuration) {
				return
			}
			c.setFloor(1)
			c.settleAfterHop()

		case current.IsAbove(target):
			c.startMove(domain.CabinMovingDown)
			if !sleepCtx(ctx, c.GetTimings().FloorTravelDuration) {
				return
			}
			c.setFloor(-1)
			c.settleAfterHop()

		default:
			c.transition(domain.CabinStoppedDoorClosed)
			if err := c.CommitDoor(ctx, domain.DoorOpen); err != nil {
				return
			}
			c.announceArrivals(df.Direction)
			c.clearMoving()
		}
	}
}

// startMove stamps the movement start so position percentage can be derived.
func (c *Cabin) startMove(state domain.CabinState) {
	c.mu.Lock()
	c.movingTimestamp = time.Now()
	c.movingSpeed = 1.0 / c.timings.FloorTravelDuration.Seconds()
	c.mu.Unlock()
	c.transition(state)
}

func (c *Cabin) clearMoving() {
	c.mu.Lock()
	c.movingTimestamp = time.Time{}
	c.movingSpeed = 0
	c.mu.Unlock()
}

// settleAfterHop stops the cabin when the plan emptied mid-travel (the target
// was deselected while the cabin was between floors).
func (c *Cabin) settleAfterHop() {
	c.clearMoving()
	if c.chains.IsEmpty() {
		c.transition(domain.CabinStoppedDoorClosed)
	}
}

// announceArrivals pops the reached stop, publishes its arrival event and the
// direction the cabin will continue in. Same-floor residue in the plan is
// handled in place: a same-direction leftover is popped with a log line, an
// opposite-direction stop at this floor emits the committed-direction arrival
// and is serviced by the next door cycle.
func (c *Cabin) announceArrivals(direction domain.Direction) {
	committed := direction
	for {
		popped, err := c.popTarget()
		if err != nil {
			c.logger.Error("arrival with empty plan", slog.String("error", err.Error()))
			metrics.IncError("empty_plan_arrival", constants.ComponentCabin)
			return
		}

		floor := c.CurrentFloor()

		if c.chains.IsEmpty() {
			if direction == domain.DirectionIdle {
				direction = popped.Direction
			}
			c.emitArrival(floor, direction)
			return
		}

		next, err := c.chains.Top()
		if err != nil {
			return
		}

		if next.Floor == floor {
			if committed == domain.DirectionIdle {
				committed = next.Direction
			}
			if next.Direction == committed.Opposite() {
				// Same floor, opposite direction: announce the current sweep's
				// arrival; the opposite stop gets its own door cycle.
				c.emitArrival(floor, committed)
				return
			}
			c.logger.Info("next stop is the current floor, servicing in place",
				slog.String("stop", next.String()))
			continue
		}

		if next.Floor.IsAbove(floor) {
			c.emitArrival(floor, domain.DirectionUp)
		} else {
			c.emitArrival(floor, domain.DirectionDown)
		}
		return
	}
}

// doorLoop consumes the door action queue and runs the door state machine.
// OPEN pre-empts a close in progress, resuming with the fraction of the close
// already elapsed; CLOSE during opening is ignored.
func (c *Cabin) doorLoop(ctx context.Context) {
	defer c.abortDoorTask()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("door loop stopped")
			return
		case req := <-c.doorActions:
			c.handleDoorAction(ctx, req.action)
			close(req.ack)
		}
	}
}

func (c *Cabin) handleDoorAction(ctx context.Context, action domain.DoorAction) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch state {
	case domain.CabinMovingUp, domain.CabinMovingDown:
		c.logger.Info("ignoring door action while moving",
			slog.String("action", action.String()))

	case domain.CabinOpeningDoor:
		// Opening cannot be interrupted, in either direction.

	case domain.CabinStoppedDoorClosed:
		if action == domain.DoorOpen {
			c.doorIdle.Clear()
			c.startDoorTask(ctx, func(tctx context.Context) {
				c.openDoor(tctx, c.GetTimings().DoorMoveDuration)
			})
		}

	case domain.CabinClosingDoor:
		if action == domain.DoorOpen {
			c.cancelDoorTask()

			c.mu.Lock()
			elapsed := time.Since(c.doorLastChange)
			doorMove := c.timings.DoorMoveDuration
			c.mu.Unlock()
			if elapsed > doorMove {
				elapsed = doorMove
			}
			c.logger.Info("door closing interrupted",
				slog.Duration("elapsed", elapsed))

			c.doorIdle.Clear()
			// Reopening takes exactly as long as the close had consumed.
			c.startDoorTask(ctx, func(tctx context.Context) {
				c.openDoor(tctx, elapsed)
			})
		}

	case domain.CabinStoppedDoorOpened:
		if action == domain.DoorClose {
			c.cancelDoorTask()
			c.startDoorTask(ctx, func(tctx context.Context) {
				c.closeDoor(tctx, c.GetTimings().DoorMoveDuration)
			})
		}
	}
}

// startDoorTask runs a door phase in its own goroutine so the door loop keeps
// consuming actions (and can pre-empt the phase).
func (c *Cabin) startDoorTask(parent context.Context, phase func(context.Context)) {
	tctx, cancel := context.WithCancel(parent)
	task := &doorTask{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	c.doorTask = task
	c.mu.Unlock()

	go func() {
		defer close(task.done)
		defer cancel()
		phase(tctx)
	}()
}

// cancelDoorTask aborts the in-flight door phase and waits for it to finish.
func (c *Cabin) cancelDoorTask() {
	c.mu.Lock()
	task := c.doorTask
	c.mu.Unlock()
	if task == nil {
		return
	}
	task.cancel()
	<-task.done
}

// abortDoorTask is the shutdown path: abort whatever phase is running and
// leave the state as observed.
func (c *Cabin) abortDoorTask() {
	c.cancelDoorTask()
}

// openDoor transitions through OPENING_DOOR to STOPPED_DOOR_OPENED, holds the
// door for the stay duration, then closes it. remaining is the opening time
// still needed; a reopen after an interrupted close passes the elapsed close
// time here so the animation stays continuous.
func (c *Cabin) openDoor(ctx context.Context, remaining time.Duration) {
	c.mu.Lock()
	doorMove := c.timings.DoorMoveDuration
	stay := c.timings.DoorStayDuration
	c.doorLastChange = time.Now().Add(-(doorMove - remaining))
	c.mu.Unlock()

	c.transition(domain.CabinOpeningDoor)
	if !sleepCtx(ctx, remaining) {
		c.logger.Debug("door opening cancelled")
		return
	}

	c.mu.Lock()
	c.doorLastChange = time.Now()
	c.mu.Unlock()
	c.transition(domain.CabinStoppedDoorOpened)
	c.emit(fmt.Sprintf("door_opened#%d", c.id))
	metrics.IncDoorTransition(c.id, "opened")

	if !sleepCtx(ctx, stay) {
		c.logger.Debug("door stay cancelled")
		return
	}
	c.closeDoor(ctx, doorMove)
}

// closeDoor transitions through CLOSING_DOOR to STOPPED_DOOR_CLOSED, then
// hands the cabin back to the motion loop. When the plan drained, the
// committed direction resets to idle here, with the door closed and no
// pending work.
func (c *Cabin) closeDoor(ctx context.Context, remaining time.Duration) {
	c.mu.Lock()
	c.doorLastChange = time.Now()
	c.mu.Unlock()

	c.transition(domain.CabinClosingDoor)
	if !sleepCtx(ctx, remaining) {
		c.logger.Debug("door closing cancelled")
		return
	}

	c.transition(domain.CabinStoppedDoorClosed)
	c.emit(fmt.Sprintf("door_closed#%d", c.id))
	metrics.IncDoorTransition(c.id, "closed")

	c.doorIdle.Set()
	if c.chains.IsEmpty() {
		if err := c.chains.SetDirection(domain.DirectionIdle); err != nil {
			c.logger.Debug("direction reset raced with a new commit")
		}
	}
}
