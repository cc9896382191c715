package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFloor(t *testing.T) {
	tests := []struct {
		name        string
		label       string
		expected    int
		expectError bool
	}{
		{name: "ground floor", label: "1", expected: 1},
		{name: "upper floor", label: "3", expected: 3},
		{name: "first basement maps to zero", label: "-1", expected: 0},
		{name: "second basement", label: "-2", expected: -1},
		{name: "floor zero does not exist", label: "0", expectError: true},
		{name: "garbage", label: "abc", expectError: true},
		{name: "empty", label: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			floor, err := ParseFloor(tt.label)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, floor.Value())
			// Round trip back to the external convention.
			assert.Equal(t, tt.label, floor.String())
		})
	}
}

func TestFloorArithmetic(t *testing.T) {
	f, err := ParseFloor("1")
	require.NoError(t, err)

	assert.Equal(t, "2", f.Add(1).String())
	// Crossing the missing floor 0 renders the basement label.
	assert.Equal(t, "-1", f.Add(-1).String())
	assert.Equal(t, 2, f.Distance(f.Add(-2)))
	assert.Equal(t, 2, f.Add(-2).Distance(f))

	assert.Equal(t, DirectionUp, f.DirectionTo(f.Add(2)))
	assert.Equal(t, DirectionDown, f.DirectionTo(f.Add(-1)))
	assert.Equal(t, DirectionIdle, f.DirectionTo(f))
}

func TestNewFloorRange(t *testing.T) {
	tests := []struct {
		name        string
		labels      []string
		expectError bool
		count       int
	}{
		{name: "standard building", labels: []string{"-1", "1", "2", "3"}, count: 4},
		{name: "no basement", labels: []string{"1", "2"}, count: 2},
		{name: "deep basement", labels: []string{"-3", "-2", "-1", "1"}, count: 4},
		{name: "single floor rejected", labels: []string{"1"}, expectError: true},
		{name: "gap rejected", labels: []string{"1", "3"}, expectError: true},
		{name: "descending rejected", labels: []string{"3", "2"}, expectError: true},
		{name: "floor zero rejected", labels: []string{"0", "1"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFloorRange(tt.labels)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.count, r.Count())

			first, err := ParseFloor(tt.labels[0])
			require.NoError(t, err)
			last, err := ParseFloor(tt.labels[len(tt.labels)-1])
			require.NoError(t, err)
			assert.Equal(t, first, r.Min)
			assert.Equal(t, last, r.Max)
			assert.True(t, r.Contains(first))
			assert.True(t, r.Contains(last))
			assert.False(t, r.Contains(last.Add(1)))
			assert.Equal(t, uint(0), r.Index(first))
		})
	}
}

func TestDirectionOpposite(t *testing.T) {
	assert.Equal(t, DirectionDown, DirectionUp.Opposite())
	assert.Equal(t, DirectionUp, DirectionDown.Opposite())
	assert.Equal(t, DirectionIdle, DirectionIdle.Opposite())
}

func TestCabinStateProjections(t *testing.T) {
	assert.Equal(t, DirectionUp, CabinMovingUp.MovingDirection())
	assert.Equal(t, DirectionDown, CabinMovingDown.MovingDirection())
	assert.Equal(t, DirectionIdle, CabinStoppedDoorOpened.MovingDirection())

	assert.Equal(t, DoorStateOpened, CabinStoppedDoorOpened.DoorState())
	assert.Equal(t, DoorStateOpening, CabinOpeningDoor.DoorState())
	assert.Equal(t, DoorStateClosing, CabinClosingDoor.DoorState())
	assert.Equal(t, DoorStateClosed, CabinMovingUp.DoorState())

	assert.True(t, DoorStateOpening.IsOpen())
	assert.True(t, DoorStateClosing.IsOpen())
	assert.False(t, DoorStateClosed.IsOpen())

	assert.True(t, CabinMovingUp.IsMoving())
	assert.False(t, CabinOpeningDoor.IsMoving())
}

func TestDirectedFloorEquality(t *testing.T) {
	f, err := ParseFloor("2")
	require.NoError(t, err)

	up := NewDirectedFloor(f, DirectionUp)
	down := NewDirectedFloor(f, DirectionDown)

	assert.Equal(t, up, NewDirectedFloor(f, DirectionUp))
	// The same floor with different directions is a distinct stop.
	assert.NotEqual(t, up, down)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("greedy")
	require.NoError(t, err)
	assert.Equal(t, StrategyGreedy, s)

	s, err = ParseStrategy("OPTIMAL")
	require.NoError(t, err)
	assert.Equal(t, StrategyOptimal, s)

	_, err = ParseStrategy("fastest")
	assert.Error(t, err)
}
