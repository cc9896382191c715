// Package controller translates the textual command stream into operations on
// the cabin fleet and surfaces arrival and door events as an ordered message
// stream. Each command owns exactly one long-lived task whose lifetime
// encodes the request's liveness: cancelling the task cancels the request.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/skylift-io/dispatch-go/internal/cabin"
	"github.com/skylift-io/dispatch-go/internal/constants"
	"github.com/skylift-io/dispatch-go/internal/domain"
	"github.com/skylift-io/dispatch-go/internal/eventbus"
	"github.com/skylift-io/dispatch-go/internal/fleet"
	"github.com/skylift-io/dispatch-go/metrics"
)

// Cancellation causes distinguishing the user-initiated paths from runtime
// shutdown.
var (
	errUserCancel   = errors.New("cancel")
	errUserDeselect = errors.New("deselect")
	errShutdown     = errors.New("shutdown")
)

// Task is the unit of command lifetime. The done channel closes when
// the handler returned and its cleanup ran.
type Task struct {
	message string
	cancel  context.CancelCauseFunc
	done    chan struct{}
}

// Controller owns the fleet, the per-command task map, and the outgoing event
// queue.
type Controller struct {
	mu       sync.Mutex
	cfg      Config
	bounds   domain.FloorRange
	home     domain.Floor
	fleet    *fleet.Fleet
	bus      *eventbus.Bus
	events   chan string
	tasks    map[string]*Task
	selected map[int]*bitset.BitSet

	runCtx    context.Context
	runCancel context.CancelCauseFunc
	started   bool

	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a controller with the given configuration. Start must be called
// before commands are handled.
func New(cfg Config, bus *eventbus.Bus) (*Controller, error) {
	bounds, home, err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:      cfg,
		bounds:   bounds,
		home:     home,
		fleet:    fleet.New(),
		bus:      bus,
		events:   make(chan string, constants.EventQueueBuffer),
		tasks:    make(map[string]*Task),
		selected: make(map[int]*bitset.BitSet),
		logger:   slog.With(slog.String("component", constants.ComponentController)),
		tracer:   otel.Tracer("dispatch-controller"),
	}

	if err := c.buildCabins(); err != nil {
		return nil, err
	}
	return c, nil
}

// buildCabins constructs the configured number of cabins at the default
// floor.
func (c *Controller) buildCabins() error {
	for eid := 1; eid <= c.cfg.ElevatorCount; eid++ {
		if err := c.addCabin(eid); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) addCabin(eid int) error {
	cab, err := cabin.New(eid, c.bounds, c.home, c.cfg.timings(), c.events, c.bus)
	if err != nil {
		return err
	}
	c.fleet.Add(cab)
	c.selected[eid] = bitset.New(uint(c.bounds.Count()))
	return nil
}

// Events exposes the outgoing event stream.
func (c *Controller) Events() <-chan string {
	return c.events
}

// NextEvent blocks for the next outgoing event line.
func (c *Controller) NextEvent(ctx context.Context) (string, error) {
	select {
	case msg := <-c.events:
		return msg, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Fleet exposes the cabin collection, for status surfaces. The reference is
// re-read under the lock because reset swaps the whole collection.
func (c *Controller) Fleet() *fleet.Fleet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fleet
}

// Config returns a copy of the current configuration.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Start launches every cabin's loops. It is a no-op when already started.
func (c *Controller) Start(parent context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		c.logger.Warn("already started, ignoring start request")
		return
	}
	c.runCtx, c.runCancel = context.WithCancelCause(parent)
	c.started = true
	ctx := c.runCtx
	c.mu.Unlock()

	for _, cab := range c.Fleet().Cabins() {
		cab.Start(ctx)
	}
	c.logger.Info("controller started",
		slog.Int("cabins", c.Fleet().Len()),
		slog.String("strategy", c.cfg.Strategy.String()))
}

// Stop cancels all command tasks (except the calling one) and all cabin
// loops, and awaits them.
func (c *Controller) Stop() {
	c.stop(nil)
}

func (c *Controller) stop(except *Task) {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		c.logger.Warn("not started, ignoring stop request")
		return
	}
	c.started = false
	tasks := make([]*Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		if t != except {
			tasks = append(tasks, t)
		}
	}
	c.mu.Unlock()

	for _, t := range tasks {
		t.cancel(errShutdown)
	}
	for _, t := range tasks {
		<-t.done
	}

	for _, cab := range c.Fleet().Cabins() {
		cab.Stop()
	}

	c.mu.Lock()
	c.runCancel(errShutdown)
	c.mu.Unlock()

	c.logger.Info("controller stopped")
}

// reset stops everything, clears the outgoing queue, re-initialises the
// cabins and starts again.
func (c *Controller) reset(current *Task) error {
	c.stop(current)

	for {
		select {
		case <-c.events:
			continue
		default:
		}
		break
	}

	c.mu.Lock()
	parent := context.Background()
	c.fleet = fleet.New()
	c.selected = make(map[int]*bitset.BitSet)
	err := c.buildCabins()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.Start(parent)
	c.logger.Info("elevator system has been reset")
	return nil
}

// HandleCommand creates (or reuses) the task for a command string. A later
// identical command coalesces onto the live task; an explicit cancel command
// finds the task through the same key.
func (c *Controller) HandleCommand(message string) *Task {
	c.mu.Lock()
	if t, ok := c.tasks[message]; ok {
		c.mu.Unlock()
		c.logger.Debug("command task already exists, reusing it", slog.String("command", message))
		return t
	}
	if !c.started {
		c.mu.Unlock()
		c.logger.Warn("command received while stopped", slog.String("command", message))
		return nil
	}

	tctx, cancel := context.WithCancelCause(c.runCtx)
	task := &Task{message: message, cancel: cancel, done: make(chan struct{})}
	c.tasks[message] = task
	c.mu.Unlock()

	go c.runTask(tctx, task)
	return task
}

// Wait blocks until the task completes.
func (t *Task) Wait() {
	if t == nil {
		return
	}
	<-t.done
}

func (c *Controller) runTask(ctx context.Context, task *Task) {
	start := time.Now()
	kind := commandKind(task.message)

	ctx, span := c.tracer.Start(ctx, "command",
		trace.WithAttributes(
			attribute.String("command", task.message),
			attribute.String("command.kind", kind),
		))

	defer func() {
		c.mu.Lock()
		if c.tasks[task.message] == task {
			delete(c.tasks, task.message)
		}
		c.mu.Unlock()
		close(task.done)
		span.End()
		metrics.ObserveCommandDuration(kind, time.Since(start).Seconds())
	}()

	err := c.dispatch(ctx, task)
	switch {
	case err == nil:
		metrics.IncCommand(kind, "ok")
	case isUserCancellation(ctx, err):
		c.logger.Debug("command task cancelled by user", slog.String("command", task.message))
		metrics.IncCommand(kind, "cancelled")
	case errors.Is(err, context.Canceled):
		c.logger.Debug("command task cancelled", slog.String("command", task.message))
		metrics.IncCommand(kind, "cancelled")
	default:
		c.logger.Error("error while handling command",
			slog.String("command", task.message),
			slog.String("error", err.Error()))
		metrics.IncCommand(kind, "error")
		metrics.IncError("command_failed", constants.ComponentController)
	}
}

// isUserCancellation distinguishes the user-initiated cancel/deselect paths
// from runtime cancellation.
func isUserCancellation(ctx context.Context, err error) bool {
	if !errors.Is(err, context.Canceled) {
		return false
	}
	cause := context.Cause(ctx)
	return errors.Is(cause, errUserCancel) || errors.Is(cause, errUserDeselect)
}

// commandKind extracts the command name for metrics labels.
func commandKind(message string) string {
	if i := strings.IndexAny(message, "@#"); i > 0 {
		return message[:i]
	}
	return message
}

// dispatch parses and executes a command. Unrecognised commands are logged
// and ignored.
func (c *Controller) dispatch(ctx context.Context, task *Task) error {
	message := task.message
	switch {
	case message == "reset":
		return c.reset(task)

	case strings.HasPrefix(message, "call_up@"), strings.HasPrefix(message, "call_down@"):
		direction := domain.DirectionUp
		if strings.HasPrefix(message, "call_down@") {
			direction = domain.DirectionDown
		}
		floor, err := domain.ParseFloor(message[strings.Index(message, "@")+1:])
		if err != nil {
			c.logUnknown(message, err)
			return nil
		}
		return c.callElevator(ctx, floor, direction)

	case strings.HasPrefix(message, "cancel_call_up@"), strings.HasPrefix(message, "cancel_call_down@"):
		direction := domain.DirectionUp
		if strings.HasPrefix(message, "cancel_call_down@") {
			direction = domain.DirectionDown
		}
		floor, err := domain.ParseFloor(message[strings.Index(message, "@")+1:])
		if err != nil {
			c.logUnknown(message, err)
			return nil
		}
		return c.cancelCall(floor, direction)

	case strings.HasPrefix(message, "select_floor@"):
		floor, eid, err := parseFloorAndCabin(message)
		if err != nil {
			c.logUnknown(message, err)
			return nil
		}
		return c.selectFloor(ctx, floor, eid)

	case strings.HasPrefix(message, "deselect_floor@"):
		floor, eid, err := parseFloorAndCabin(message)
		if err != nil {
			c.logUnknown(message, err)
			return nil
		}
		return c.deselectFloor(floor, eid)

	case strings.HasPrefix(message, "open_door#"):
		eid, err := strconv.Atoi(message[strings.Index(message, "#")+1:])
		if err != nil {
			c.logUnknown(message, err)
			return nil
		}
		return c.commitDoor(ctx, eid, domain.DoorOpen)

	case strings.HasPrefix(message, "close_door#"):
		eid, err := strconv.Atoi(message[strings.Index(message, "#")+1:])
		if err != nil {
			c.logUnknown(message, err)
			return nil
		}
		return c.commitDoor(ctx, eid, domain.DoorClose)

	default:
		c.logUnknown(message, domain.ErrUnknownCommand)
		return nil
	}
}

func (c *Controller) logUnknown(message string, err error) {
	c.logger.Warn("unrecognized command",
		slog.String("command", message),
		slog.String("error", err.Error()))
	metrics.IncCommand("unknown", "ignored")
}

// parseFloorAndCabin parses "<op>@<floor>#<cabin_id>".
func parseFloorAndCabin(message string) (domain.Floor, int, error) {
	at := strings.Index(message, "@")
	hash := strings.LastIndex(message, "#")
	if at < 0 || hash < at {
		return 0, 0, domain.ErrUnknownCommand
	}
	floor, err := domain.ParseFloor(message[at+1 : hash])
	if err != nil {
		return 0, 0, err
	}
	eid, err := strconv.Atoi(message[hash+1:])
	if err != nil {
		return 0, 0, domain.NewValidationError("invalid cabin id", err)
	}
	return floor, eid, nil
}

// assign picks the cabin for a hall call per the configured strategy.
func (c *Controller) assign(req domain.DirectedFloor) (int, error) {
	switch c.Config().Strategy {
	case domain.StrategyOptimal:
		eid, assignment, ok := c.Fleet().OptimalAssign(&req, domain.HeuristicMean)
		if !ok {
			return 0, domain.NewInternalError("no cabins available for assignment", nil)
		}
		if err := c.Fleet().Reassign(assignment, true); err != nil {
			return 0, err
		}
		return eid, nil

	default:
		bestEid := 0
		bestDuration := 0.0
		first := true
		for _, cab := range c.Fleet().Cabins() {
			d := cab.EstimateTotalDuration(&req, domain.HeuristicNone)
			if first || d < bestDuration {
				bestDuration = d
				bestEid = cab.ID()
				first = false
			}
		}
		if first {
			return 0, domain.NewInternalError("no cabins available for assignment", nil)
		}
		return bestEid, nil
	}
}

// callElevator handles a hall call: pick a cabin, commit the request, wait
// until the cabin services it. The cleanup path always removes the request
// without signalling the waiter.
func (c *Controller) callElevator(ctx context.Context, floor domain.Floor, direction domain.Direction) error {
	req := domain.NewDirectedFloor(floor, direction)

	if c.Fleet().HasRequest(req) {
		c.logger.Info("floor already requested",
			slog.String("floor", floor.String()),
			slog.String("direction", direction.String()))
		return nil
	}

	eid, err := c.assign(req)
	if err != nil {
		return err
	}
	c.logger.Info("cabin selected for hall call",
		slog.Int("cabin", eid),
		slog.String("floor", floor.String()),
		slog.String("direction", direction.String()))

	wake, err := c.Fleet().CommitFloor(eid, req, nil)
	if err != nil {
		return err
	}
	defer func() {
		// Tolerates the race where a reassignment or natural pop already
		// released the mapping.
		if _, err := c.Fleet().CancelCommit(req); err != nil && !errors.Is(err, domain.ErrNotPresent) {
			c.logger.Warn("hall call cleanup failed", slog.String("error", err.Error()))
		}
	}()

	if err := wake.Wait(ctx); err != nil {
		return err
	}
	c.bus.Publish(eventbus.TopicCallCompleted, req)
	return nil
}

// cancelCall cancels the task owning a previously issued hall call.
func (c *Controller) cancelCall(floor domain.Floor, direction domain.Direction) error {
	key := fmt.Sprintf("call_%s@%s", direction, floor)

	c.mu.Lock()
	task, ok := c.tasks[key]
	c.mu.Unlock()
	if !ok {
		c.logger.Info("no live call to cancel", slog.String("key", key))
		return nil
	}

	task.cancel(errUserCancel)
	<-task.done
	return nil
}

// selectFloor handles an internal car call on a specific cabin.
func (c *Controller) selectFloor(ctx context.Context, floor domain.Floor, eid int) error {
	cab, ok := c.Fleet().Get(eid)
	if !ok {
		c.logger.Warn("select on unknown cabin", slog.Int("cabin", eid))
		return nil
	}
	if !cab.IsStarted() {
		c.logger.Warn("cabin is not enabled, cannot select floor",
			slog.Int("cabin", eid),
			slog.String("floor", floor.String()))
		return nil
	}
	if !c.bounds.Contains(floor) {
		c.logger.Warn("selected floor out of range", slog.String("floor", floor.String()))
		return nil
	}

	index := c.bounds.Index(floor)
	c.mu.Lock()
	panel := c.selected[eid]
	if panel == nil {
		c.mu.Unlock()
		return nil
	}
	if panel.Test(index) {
		c.mu.Unlock()
		c.logger.Info("floor already selected",
			slog.Int("cabin", eid),
			slog.String("floor", floor.String()))
		return nil
	}
	panel.Set(index)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if p := c.selected[eid]; p != nil {
			p.Clear(index)
		}
		c.mu.Unlock()
		cab.CancelCommit(floor, domain.DirectionIdle)
	}()

	wake, err := cab.CommitFloor(floor, domain.DirectionIdle)
	if err != nil {
		return err
	}

	if c.Config().Strategy == domain.StrategyOptimal {
		c.optimalReassign()
	}

	if err := wake.Wait(ctx); err != nil {
		return err
	}
	c.bus.Publish(eventbus.TopicFloorArrived, domain.NewDirectedFloor(floor, domain.DirectionIdle))
	return nil
}

// deselectFloor cancels the task owning a previous selection.
func (c *Controller) deselectFloor(floor domain.Floor, eid int) error {
	key := fmt.Sprintf("select_floor@%s#%d", floor, eid)

	c.mu.Lock()
	task, ok := c.tasks[key]
	c.mu.Unlock()
	if !ok {
		c.logger.Info("no live selection to deselect", slog.String("key", key))
		return nil
	}

	task.cancel(errUserDeselect)
	<-task.done
	return nil
}

// commitDoor relays a manual door request to the cabin.
func (c *Controller) commitDoor(ctx context.Context, eid int, action domain.DoorAction) error {
	cab, ok := c.Fleet().Get(eid)
	if !ok {
		c.logger.Warn("door command for unknown cabin", slog.Int("cabin", eid))
		return nil
	}
	return cab.CommitDoor(ctx, action)
}

// optimalReassign re-optimises the distribution of pending hall calls.
func (c *Controller) optimalReassign() {
	_, assignment, ok := c.Fleet().OptimalAssign(nil, domain.HeuristicMean)
	if !ok {
		return
	}
	if err := c.Fleet().Reassign(assignment, false); err != nil {
		c.logger.Warn("reassignment failed", slog.String("error", err.Error()))
		metrics.IncError("reassign_failed", constants.ComponentController)
	}
}

// SetTimings updates the duration parameters and propagates them to live
// cabins.
func (c *Controller) SetTimings(floorTravel, accelerate, doorMove, doorStay time.Duration) error {
	if floorTravel <= 0 || doorMove <= 0 || doorStay < 0 {
		return domain.ErrInvalidConfiguration
	}
	c.mu.Lock()
	c.cfg.FloorTravelDuration = floorTravel
	c.cfg.AccelerateDuration = accelerate
	c.cfg.DoorMoveDuration = doorMove
	c.cfg.DoorStayDuration = doorStay
	timings := c.cfg.timings()
	c.mu.Unlock()

	for _, cab := range c.Fleet().Cabins() {
		cab.SetTimings(timings)
	}
	return nil
}

// SetStrategy switches the assignment strategy.
func (c *Controller) SetStrategy(s domain.Strategy) {
	c.mu.Lock()
	c.cfg.Strategy = s
	c.mu.Unlock()
}

// SetElevatorCount grows or shrinks the fleet. Growth constructs fresh cabins
// and starts their loops; shrink stops retired cabins and reassigns their
// live requests to survivors, preserving wake events.
func (c *Controller) SetElevatorCount(count int) error {
	if count < 1 {
		return domain.NewValidationError("elevator count must be at least 1", nil).
			WithContext("elevator_count", count)
	}

	current := c.Fleet().Len()

	if count < current {
		for eid := count + 1; eid <= current; eid++ {
			cab, orphaned, err := c.Fleet().Remove(eid)
			if err != nil {
				return err
			}
			cab.Stop()
			c.mu.Lock()
			delete(c.selected, eid)
			c.mu.Unlock()

			for req, event := range orphaned {
				newEid, err := c.assign(req)
				if err != nil {
					return err
				}
				if _, err := c.Fleet().CommitFloor(newEid, req, event); err != nil {
					return err
				}
				c.logger.Info("request reassigned from retired cabin",
					slog.Int("from", eid),
					slog.Int("to", newEid),
					slog.String("request", req.String()))
			}
		}
	} else if count > current {
		c.mu.Lock()
		started := c.started
		ctx := c.runCtx
		var err error
		for eid := current + 1; eid <= count; eid++ {
			if err = c.addCabin(eid); err != nil {
				break
			}
		}
		c.mu.Unlock()
		if err != nil {
			return err
		}

		if started {
			for _, cab := range c.Fleet().Cabins() {
				cab.Start(ctx)
			}
		}
		if c.Config().Strategy == domain.StrategyOptimal {
			c.optimalReassign()
		}
	}

	c.mu.Lock()
	c.cfg.ElevatorCount = count
	c.mu.Unlock()
	return nil
}

// Statuses returns the observable status of every cabin, ordered by id.
func (c *Controller) Statuses() []domain.CabinStatus {
	cabins := c.Fleet().Cabins()
	out := make([]domain.CabinStatus, 0, len(cabins))
	for _, cab := range cabins {
		out = append(out, cab.Status())
	}
	return out
}
