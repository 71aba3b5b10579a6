package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliveryOrderAndAllListener(t *testing.T) {
	b := New()
	var order []string

	b.AddListener(Sleep, func(e Event) { order = append(order, "sleep-specific") })
	b.AddListener(All, func(e Event) { order = append(order, "all") })
	b.AddListener(Wakeup, func(e Event) { order = append(order, "wakeup-specific") })

	b.Trigger(Event{ID: Sleep, Timestamp: 10})

	assert.Equal(t, []string{"sleep-specific", "all"}, order)
}

func TestReentrantTriggerPanics(t *testing.T) {
	b := New()
	b.AddListener(All, func(e Event) {
		assert.Panics(t, func() { b.Trigger(Event{ID: Wakeup}) })
	})
	b.Trigger(Event{ID: Sleep})
}

func TestListenerPoolExhausted(t *testing.T) {
	b := New()
	for i := 0; i < MaxListeners; i++ {
		b.AddListener(All, func(e Event) {})
	}
	require.Panics(t, func() {
		b.AddListener(All, func(e Event) {})
	})
}
