package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace    = "dispatch"
	cabinIDLabel = "cabin"
)

var (
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    namespace + "_command_duration_seconds",
			Help:    "Duration of command handling from receipt to completion",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"command"},
	)

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: namespace + "_commands_total",
			Help: "Commands received, by kind and outcome",
		},
		[]string{"command", "outcome"},
	)

	arrivalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: namespace + "_arrivals_total",
			Help: "Stops serviced per cabin",
		},
		[]string{cabinIDLabel, "direction"},
	)

	doorTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: namespace + "_door_transitions_total",
			Help: "Completed door transitions (opened/closed) per cabin",
		},
		[]string{cabinIDLabel, "transition"},
	)

	currentFloor = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: namespace + "_current_floor",
			Help: "Current floor per cabin (internal axis)",
		},
		[]string{cabinIDLabel},
	)

	pendingStops = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: namespace + "_pending_stops",
			Help: "Stops committed but not yet serviced per cabin",
		},
		[]string{cabinIDLabel},
	)

	droppedEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: namespace + "_dropped_events_total",
			Help: "Outgoing events dropped because the event queue was full",
		},
	)

	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: namespace + "_errors_total",
			Help: "Errors by type and component",
		},
		[]string{"type", "component"},
	)
)

func init() {
	prometheus.MustRegister(
		commandDuration,
		commandsTotal,
		arrivalsTotal,
		doorTransitionsTotal,
		currentFloor,
		pendingStops,
		droppedEventsTotal,
		errorsTotal,
	)
}

func cabinLabel(id int) string {
	return strconv.Itoa(id)
}

// ObserveCommandDuration records how long a command took to complete.
func ObserveCommandDuration(command string, seconds float64) {
	commandDuration.WithLabelValues(command).Observe(seconds)
}

// IncCommand counts a received command with its outcome.
func IncCommand(command, outcome string) {
	commandsTotal.WithLabelValues(command, outcome).Inc()
}

// IncArrival counts a serviced stop.
func IncArrival(cabinID int, direction string) {
	arrivalsTotal.WithLabelValues(cabinLabel(cabinID), direction).Inc()
}

// IncDoorTransition counts a completed door transition ("opened"/"closed").
func IncDoorTransition(cabinID int, transition string) {
	doorTransitionsTotal.WithLabelValues(cabinLabel(cabinID), transition).Inc()
}

// SetCurrentFloor records a cabin's floor.
func SetCurrentFloor(cabinID int, floor float64) {
	currentFloor.WithLabelValues(cabinLabel(cabinID)).Set(floor)
}

// SetPendingStops records a cabin's outstanding stop count.
func SetPendingStops(cabinID int, count float64) {
	pendingStops.WithLabelValues(cabinLabel(cabinID)).Set(count)
}

// IncDroppedEvents counts an event dropped on queue overflow.
func IncDroppedEvents() {
	droppedEventsTotal.Inc()
}

// IncError counts an error occurrence.
func IncError(errType, component string) {
	errorsTotal.WithLabelValues(errType, component).Inc()
}
