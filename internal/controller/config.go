package controller

import (
	"time"

	"github.com/skylift-io/dispatch-go/internal/cabin"
	"github.com/skylift-io/dispatch-go/internal/constants"
	"github.com/skylift-io/dispatch-go/internal/domain"
)

// Config holds the runtime-mutable simulation parameters of the dispatch
// core. Duration changes propagate to live cabins; elevator count changes
// grow or shrink the fleet.
type Config struct {
	FloorTravelDuration time.Duration
	AccelerateDuration  time.Duration
	DoorMoveDuration    time.Duration
	DoorStayDuration    time.Duration
	Floors              []string
	DefaultFloor        string
	ElevatorCount       int
	Strategy            domain.Strategy
}

// DefaultConfig returns the stock four-floor, two-cabin configuration.
func DefaultConfig() Config {
	return Config{
		FloorTravelDuration: constants.DefaultFloorTravelDuration,
		AccelerateDuration:  constants.DefaultAccelerateDuration,
		DoorMoveDuration:    constants.DefaultDoorMoveDuration,
		DoorStayDuration:    constants.DefaultDoorStayDuration,
		Floors:              []string{"-1", "1", "2", "3"},
		DefaultFloor:        "1",
		ElevatorCount:       2,
		Strategy:            domain.StrategyOptimal,
	}
}

// Validate checks the configuration and resolves the floor range and default
// floor.
func (c Config) Validate() (domain.FloorRange, domain.Floor, error) {
	if c.ElevatorCount < 1 {
		return domain.FloorRange{}, 0, domain.NewValidationError("elevator count must be at least 1", nil).
			WithContext("elevator_count", c.ElevatorCount)
	}
	if c.FloorTravelDuration <= 0 || c.DoorMoveDuration <= 0 || c.DoorStayDuration < 0 {
		return domain.FloorRange{}, 0, domain.NewValidationError("durations must be positive", nil)
	}

	bounds, err := domain.NewFloorRange(c.Floors)
	if err != nil {
		return domain.FloorRange{}, 0, err
	}

	defaultFloor, err := domain.ParseFloor(c.DefaultFloor)
	if err != nil {
		return domain.FloorRange{}, 0, err
	}
	if !bounds.Contains(defaultFloor) {
		return domain.FloorRange{}, 0, domain.NewValidationError("default floor outside the building", nil).
			WithContext("default_floor", c.DefaultFloor)
	}
	return bounds, defaultFloor, nil
}

// timings extracts the cabin duration parameters.
func (c Config) timings() cabin.Timings {
	return cabin.Timings{
		FloorTravelDuration: c.FloorTravelDuration,
		AccelerateDuration:  c.AccelerateDuration,
		DoorMoveDuration:    c.DoorMoveDuration,
		DoorStayDuration:    c.DoorStayDuration,
	}
}
