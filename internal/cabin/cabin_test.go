package cabin

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylift-io/dispatch-go/internal/domain"
	"github.com/skylift-io/dispatch-go/internal/eventbus"
)

func testBounds() domain.FloorRange {
	// External labels -1,1,2,3,4,5 on the internal axis 0..5.
	return domain.FloorRange{Min: 0, Max: 5}
}

func fastTimings() Timings {
	return Timings{
		FloorTravelDuration: 30 * time.Millisecond,
		AccelerateDuration:  10 * time.Millisecond,
		DoorMoveDuration:    20 * time.Millisecond,
		DoorStayDuration:    40 * time.Millisecond,
	}
}

func newTestCabin(t *testing.T, startFloor int) (*Cabin, chan string) {
	t.Helper()
	events := make(chan string, 64)
	c, err := New(1, testBounds(), domain.Floor(startFloor), fastTimings(), events, eventbus.New())
	require.NoError(t, err)
	return c, events
}

func startTestCabin(t *testing.T, c *Cabin) {
	t.Helper()
	c.Start(context.Background())
	t.Cleanup(c.Stop)
}

func collectEvents(t *testing.T, ch <-chan string, n int, timeout time.Duration) []string {
	t.Helper()
	out := make([]string, 0, n)
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case msg := <-ch:
			out = append(out, msg)
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %v", out)
		}
	}
	return out
}

func assertNoEvent(t *testing.T, ch <-chan string, d time.Duration) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected event %q", msg)
	case <-time.After(d):
	}
}

func TestCabinNew(t *testing.T) {
	tests := []struct {
		name        string
		id          int
		startFloor  int
		timings     Timings
		expectError bool
	}{
		{name: "valid cabin", id: 1, startFloor: 1, timings: fastTimings()},
		{name: "zero id rejected", id: 0, startFloor: 1, timings: fastTimings(), expectError: true},
		{name: "start floor out of bounds", id: 1, startFloor: 9, timings: fastTimings(), expectError: true},
		{name: "zero travel duration rejected", id: 1, startFloor: 1, timings: Timings{DoorMoveDuration: time.Second, DoorStayDuration: time.Second}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := make(chan string, 8)
			c, err := New(tt.id, testBounds(), domain.Floor(tt.startFloor), tt.timings, events, eventbus.New())
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, c.ID())
			assert.Equal(t, domain.Floor(tt.startFloor), c.CurrentFloor())
			assert.Equal(t, domain.CabinStoppedDoorClosed, c.State())
			assert.Equal(t, domain.DirectionIdle, c.CommittedDirection())
		})
	}
}

func TestCabinCommitFloorIdempotent(t *testing.T) {
	c, _ := newTestCabin(t, 1)

	first, err := c.CommitFloor(3, domain.DirectionUp)
	require.NoError(t, err)
	second, err := c.CommitFloor(3, domain.DirectionUp)
	require.NoError(t, err)

	// A duplicate commit returns the same wake event and mutates nothing.
	assert.Same(t, first, second)
	assert.Equal(t, 1, c.Plan().Len())
}

func TestCabinCancelCommitDoesNotWake(t *testing.T) {
	c, events := newTestCabin(t, 1)

	wake, err := c.CommitFloor(3, domain.DirectionUp)
	require.NoError(t, err)
	c.CancelCommit(3, domain.DirectionUp)

	assert.True(t, c.Plan().IsEmpty())
	assert.False(t, wake.IsSet())

	// The cabin stays idle after starting: no motion, no events.
	startTestCabin(t, c)
	assertNoEvent(t, events, 150*time.Millisecond)
	assert.Equal(t, domain.Floor(1), c.CurrentFloor())
	assert.False(t, wake.IsSet())
}

func TestCabinCancelCommitAbsentIsNoop(t *testing.T) {
	c, _ := newTestCabin(t, 1)
	c.CancelCommit(3, domain.DirectionUp)
	assert.True(t, c.Plan().IsEmpty())
}

func TestCabinCommitFloorOutOfBounds(t *testing.T) {
	c, _ := newTestCabin(t, 1)
	_, err := c.CommitFloor(9, domain.DirectionUp)
	assert.Error(t, err)
}

func TestCabinStraightRunUp(t *testing.T) {
	c, events := newTestCabin(t, 1)
	startTestCabin(t, c)

	wake, err := c.CommitFloor(3, domain.DirectionUp)
	require.NoError(t, err)

	got := collectEvents(t, events, 3, 3*time.Second)
	assert.Equal(t, []string{
		"up_floor_arrived@3#1",
		"door_opened#1",
		"door_closed#1",
	}, got)

	require.NoError(t, wake.Wait(waitCtx(t)))
	assert.Equal(t, domain.Floor(3), c.CurrentFloor())

	// Exactly those three events and nothing else.
	assertNoEvent(t, events, 150*time.Millisecond)
}

func TestCabinImmediateArrivalAtCurrentFloor(t *testing.T) {
	c, events := newTestCabin(t, 1)
	startTestCabin(t, c)

	wake, err := c.CommitFloor(1, domain.DirectionUp)
	require.NoError(t, err)

	got := collectEvents(t, events, 3, 3*time.Second)
	assert.Equal(t, []string{
		"up_floor_arrived@1#1",
		"door_opened#1",
		"door_closed#1",
	}, got)

	require.NoError(t, wake.Wait(waitCtx(t)))
	// The stop never entered the plan.
	assert.True(t, c.Plan().IsEmpty())
}

func TestCabinOppositeDirectionSameFloor(t *testing.T) {
	c, events := newTestCabin(t, 1)

	_, err := c.CommitFloor(2, domain.DirectionUp)
	require.NoError(t, err)
	_, err = c.CommitFloor(2, domain.DirectionDown)
	require.NoError(t, err)

	startTestCabin(t, c)

	got := collectEvents(t, events, 6, 5*time.Second)
	assert.Equal(t, []string{
		"up_floor_arrived@2#1",
		"door_opened#1",
		"door_closed#1",
		"down_floor_arrived@2#1",
		"door_opened#1",
		"door_closed#1",
	}, got)
}

func TestCabinLOOKServiceOrder(t *testing.T) {
	c, events := newTestCabin(t, 1)

	for _, req := range []domain.DirectedFloor{
		domain.NewDirectedFloor(3, domain.DirectionUp),
		domain.NewDirectedFloor(5, domain.DirectionUp),
		domain.NewDirectedFloor(2, domain.DirectionUp),
		domain.NewDirectedFloor(4, domain.DirectionDown),
	} {
		_, err := c.CommitFloor(req.Floor, req.Direction)
		require.NoError(t, err)
	}

	startTestCabin(t, c)

	// Four stops, each with arrival + door opened + door closed.
	got := collectEvents(t, events, 12, 10*time.Second)

	var arrivals []string
	for _, msg := range got {
		if strings.Contains(msg, "floor_arrived") {
			arrivals = append(arrivals, msg)
		}
	}
	assert.Equal(t, []string{
		"up_floor_arrived@2#1",
		"up_floor_arrived@3#1",
		"down_floor_arrived@5#1",
		"down_floor_arrived@4#1",
	}, arrivals)
}

// slowDoorCabin uses wider door phases so the test can reliably observe and
// pre-empt the closing window.
func slowDoorCabin(t *testing.T) (*Cabin, chan string) {
	t.Helper()
	events := make(chan string, 64)
	timings := Timings{
		FloorTravelDuration: 30 * time.Millisecond,
		AccelerateDuration:  10 * time.Millisecond,
		DoorMoveDuration:    100 * time.Millisecond,
		DoorStayDuration:    200 * time.Millisecond,
	}
	c, err := New(1, testBounds(), domain.Floor(1), timings, events, eventbus.New())
	require.NoError(t, err)
	return c, events
}

func TestCabinDoorReopenWhileClosing(t *testing.T) {
	c, events := slowDoorCabin(t)
	startTestCabin(t, c)

	ctx := waitCtx(t)
	require.NoError(t, c.CommitDoor(ctx, domain.DoorOpen))

	// First full opening.
	got := collectEvents(t, events, 1, 2*time.Second)
	assert.Equal(t, "door_opened#1", got[0])

	// Wait for the auto-close to begin, then pre-empt it with a reopen.
	require.Eventually(t, func() bool {
		return c.State() == domain.CabinClosingDoor
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, c.CommitDoor(ctx, domain.DoorOpen))

	// The aborted close emits nothing; the reopen completes and the cycle
	// finishes with a single close.
	got = collectEvents(t, events, 2, 3*time.Second)
	assert.Equal(t, []string{
		"door_opened#1",
		"door_closed#1",
	}, got)

	assertNoEvent(t, events, 150*time.Millisecond)
}

func TestCabinDoorCloseDuringOpeningIgnored(t *testing.T) {
	c, events := newTestCabin(t, 1)
	startTestCabin(t, c)

	ctx := waitCtx(t)
	require.NoError(t, c.CommitDoor(ctx, domain.DoorOpen))

	require.Eventually(t, func() bool {
		return c.State() == domain.CabinOpeningDoor
	}, 2*time.Second, time.Millisecond)

	// CLOSE while opening is ignored; the cycle proceeds normally.
	require.NoError(t, c.CommitDoor(ctx, domain.DoorClose))

	got := collectEvents(t, events, 2, 3*time.Second)
	assert.Equal(t, []string{"door_opened#1", "door_closed#1"}, got)
}

func TestCabinManualCloseCutsStayShort(t *testing.T) {
	c, events := slowDoorCabin(t)
	startTestCabin(t, c)

	ctx := waitCtx(t)
	require.NoError(t, c.CommitDoor(ctx, domain.DoorOpen))
	_ = collectEvents(t, events, 1, 2*time.Second) // door_opened

	require.Eventually(t, func() bool {
		return c.State() == domain.CabinStoppedDoorOpened
	}, 2*time.Second, time.Millisecond)

	start := time.Now()
	require.NoError(t, c.CommitDoor(ctx, domain.DoorClose))

	got := collectEvents(t, events, 1, 2*time.Second)
	assert.Equal(t, "door_closed#1", got[0])
	// The close began immediately instead of waiting out the stay duration.
	assert.Less(t, time.Since(start), c.GetTimings().DoorStayDuration)
}

func TestCabinPositionPercentagesBounded(t *testing.T) {
	c, _ := newTestCabin(t, 1)
	startTestCabin(t, c)

	_, err := c.CommitFloor(4, domain.DirectionIdle)
	require.NoError(t, err)

	deadline := time.After(time.Second)
	for {
		p := c.PositionPercentage()
		dp := c.DoorPositionPercentage()
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		assert.GreaterOrEqual(t, dp, 0.0)
		assert.LessOrEqual(t, dp, 1.0)

		select {
		case <-deadline:
			return
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestCabinWakeFiresExactlyOnceOnArrival(t *testing.T) {
	c, events := newTestCabin(t, 1)
	startTestCabin(t, c)

	wake, err := c.CommitFloor(2, domain.DirectionIdle)
	require.NoError(t, err)

	require.NoError(t, wake.Wait(waitCtx(t)))
	assert.True(t, wake.IsSet())
	// The arrival map entry is gone with the plan entry.
	_, ok := c.ArrivalEvent(domain.NewDirectedFloor(2, domain.DirectionIdle))
	assert.False(t, ok)

	_ = collectEvents(t, events, 3, 3*time.Second)
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
