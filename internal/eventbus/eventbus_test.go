package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusPublishDeliversToSubscribers(t *testing.T) {
	bus := New()

	var got []interface{}
	bus.Subscribe(TopicCabinStateChanged, func(payload interface{}) {
		got = append(got, payload)
	})

	bus.Publish(TopicCabinStateChanged, "first")
	bus.Publish(TopicCabinStateChanged, "second")

	assert.Equal(t, []interface{}{"first", "second"}, got)
}

func TestBusTopicsAreIsolated(t *testing.T) {
	bus := New()

	stateCount := 0
	floorCount := 0
	bus.Subscribe(TopicCabinStateChanged, func(interface{}) { stateCount++ })
	bus.Subscribe(TopicCabinFloorChanged, func(interface{}) { floorCount++ })

	bus.Publish(TopicCabinStateChanged, nil)

	assert.Equal(t, 1, stateCount)
	assert.Equal(t, 0, floorCount)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := New()

	count := 0
	unsubscribe := bus.Subscribe(TopicCallCompleted, func(interface{}) { count++ })

	bus.Publish(TopicCallCompleted, nil)
	unsubscribe()
	bus.Publish(TopicCallCompleted, nil)

	assert.Equal(t, 1, count)
}

func TestBusPanickingHandlerDoesNotPoisonOthers(t *testing.T) {
	bus := New()

	delivered := false
	bus.Subscribe(TopicFloorArrived, func(interface{}) { panic("boom") })
	bus.Subscribe(TopicFloorArrived, func(interface{}) { delivered = true })

	assert.NotPanics(t, func() {
		bus.Publish(TopicFloorArrived, nil)
	})
	assert.True(t, delivered)
}

func TestBusPublishWithoutSubscribers(t *testing.T) {
	bus := New()
	assert.NotPanics(t, func() {
		bus.Publish(TopicCabinStateChanged, nil)
	})
}
