package loop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sillycat/sensornet/internal/clock"
	"github.com/sillycat/sensornet/internal/event"
)

type fakeSleeper struct {
	slept time.Duration
}

func (f *fakeSleeper) SleepEnter(d time.Duration) { f.slept = d }

func TestRunOnceServicesInRegistrationOrder(t *testing.T) {
	bus := event.New()
	clk := clock.New()
	l := New(bus, clk, nil, nil)

	var order []string
	l.Register(Subsystem{Name: "a", Service: func() { order = append(order, "a") }})
	l.Register(Subsystem{Name: "b", Service: func() { order = append(order, "b") }})
	l.Register(Subsystem{Name: "c", Service: func() { order = append(order, "c") }})

	l.RunOnce()
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestSleepTriggersSleepThenWakeupAndCallsSleeper(t *testing.T) {
	bus := event.New()
	clk := clock.New()
	sleeper := &fakeSleeper{}
	l := New(bus, clk, sleeper, nil)

	var order []string
	bus.AddListener(event.Sleep, func(event.Event) { order = append(order, "sleep") })
	bus.AddListener(event.Wakeup, func(event.Event) { order = append(order, "wakeup") })

	l.Sleep(5 * time.Second)

	require.Equal(t, []string{"sleep", "wakeup"}, order)
	assert.Equal(t, 5*time.Second, sleeper.slept)
}

func TestRegisterRejectsNilServiceFunc(t *testing.T) {
	bus := event.New()
	clk := clock.New()
	l := New(bus, clk, nil, nil)
	assert.Panics(t, func() { l.Register(Subsystem{Name: "broken"}) })
}
