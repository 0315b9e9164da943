package eventbus

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus() *Bus {
	return New(5, zerolog.Nop())
}

func TestSingleSegmentWildcard(t *testing.T) {
	b := newTestBus()
	var got []string
	b.Subscribe("plate.*", func(e Event) { got = append(got, e.Type) })

	b.Publish("plate.created", nil)
	b.Publish("plate.error.step", nil) // two segments past "plate", should not match
	b.Publish("mover.assigned", nil)

	assert.Equal(t, []string{"plate.created"}, got)
}

func TestDoubleStarMatchesSuffix(t *testing.T) {
	b := newTestBus()
	var got []string
	b.Subscribe("plate.**", func(e Event) { got = append(got, e.Type) })

	b.Publish("plate.created", nil)
	b.Publish("plate.error.step", nil)
	b.Publish("mover.assigned", nil)

	assert.Equal(t, []string{"plate.created", "plate.error.step"}, got)
}

func TestGlobalDoubleStarMatchesEverything(t *testing.T) {
	b := newTestBus()
	count := 0
	b.Subscribe("**", func(e Event) { count++ })

	b.Publish("plate.created", nil)
	b.Publish("mover.assigned", nil)

	assert.Equal(t, 2, count)
}

func TestDeliveryInRegistrationOrder(t *testing.T) {
	b := newTestBus()
	var order []string
	b.Subscribe("plate.created", func(e Event) { order = append(order, "first") })
	b.Subscribe("plate.created", func(e Event) { order = append(order, "second") })

	b.Publish("plate.created", nil)

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestPanicInSubscriberDoesNotStopOthers(t *testing.T) {
	b := newTestBus()
	called := false
	b.Subscribe("plate.created", func(e Event) { panic("boom") })
	b.Subscribe("plate.created", func(e Event) { called = true })

	assert.NotPanics(t, func() { b.Publish("plate.created", nil) })
	assert.True(t, called)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBus()
	count := 0
	unsub := b.Subscribe("plate.created", func(e Event) { count++ })

	b.Publish("plate.created", nil)
	unsub()
	b.Publish("plate.created", nil)

	assert.Equal(t, 1, count)
}

func TestRingBufferBoundedAndOrdered(t *testing.T) {
	b := New(3, zerolog.Nop())
	for i := 0; i < 5; i++ {
		b.Publish("plate.created", map[string]interface{}{"i": i})
	}

	recent := b.Recent("**")
	require.Len(t, recent, 3)
	assert.Equal(t, 2, recent[0].Payload["i"])
	assert.Equal(t, 4, recent[2].Payload["i"])
}

func TestRecentFiltersByPattern(t *testing.T) {
	b := newTestBus()
	b.Publish("plate.created", nil)
	b.Publish("mover.assigned", nil)
	b.Publish("plate.completed", nil)

	recent := b.Recent("plate.*")
	require.Len(t, recent, 2)
	assert.Equal(t, "plate.created", recent[0].Type)
	assert.Equal(t, "plate.completed", recent[1].Type)
}
