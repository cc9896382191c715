package constants

import "time"

// Application constants centralized in one location to improve type safety
// and eliminate magic strings throughout the codebase

// Default Configuration Values
const (
	// Server defaults
	DefaultPort     = 6660
	DefaultLogLevel = "INFO"

	// Timing defaults
	DefaultFloorTravelDuration = 3 * time.Second
	DefaultAccelerateDuration  = 1 * time.Second
	DefaultDoorMoveDuration    = 1 * time.Second
	DefaultDoorStayDuration    = 3 * time.Second

	// WebSocket update interval
	StatusUpdateInterval = 1 * time.Second
)

// HTTP Content Types
const (
	ContentTypeJSON      = "application/json"
	ContentTypeTextPlain = "text/plain"
)

// Component Names for Logging
const (
	ComponentHTTPServer = "http-server"
	ComponentWebSocket  = "websocket-server"
	ComponentCabin      = "cabin"
	ComponentFleet      = "fleet"
	ComponentController = "controller"
	ComponentPlan       = "plan"
)

// Queue sizing
const (
	// EventQueueBuffer bounds the outgoing event stream; a slow consumer
	// never blocks a cabin loop within this window.
	EventQueueBuffer = 256
	// DoorActionBuffer bounds the per-cabin door action queue.
	DoorActionBuffer = 16
)

// Metrics
const (
	MetricsNamespace = "dispatch"
	CabinIDLabel     = "cabin"
)
