package rtc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sillycat/sensornet/internal/caltime"
)

func TestSystemNowRoundTripsThroughEpoch(t *testing.T) {
	s := New(nil)
	got, ok := s.Now()
	require.True(t, ok)
	assert.True(t, got.Year >= 24, "expected a post-2024 year offset, got %d", got.Year)
}

func TestSystemSetAlarmFiresOnAlarm(t *testing.T) {
	fired := make(chan struct{}, 1)
	s := New(func() { fired <- struct{}{} })

	now, ok := s.Now()
	require.True(t, ok)
	at := caltime.AddSeconds(now, 0)
	require.NoError(t, s.SetAlarm(at))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("alarm did not fire")
	}
}

func TestSystemClearAlarmStopsPendingTimer(t *testing.T) {
	fired := make(chan struct{}, 1)
	s := New(func() { fired <- struct{}{} })

	now, ok := s.Now()
	require.True(t, ok)
	at := caltime.AddSeconds(now, 2)
	require.NoError(t, s.SetAlarm(at))
	require.NoError(t, s.ClearAlarm())

	select {
	case <-fired:
		t.Fatal("alarm fired after being cleared")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestErrlogClockAdaptsToEpochSeconds(t *testing.T) {
	sys := New(nil)
	c := ErrlogClock{RTC: sys}
	ts, ok := c.Now()
	require.True(t, ok)
	assert.Greater(t, ts, uint32(0))
}
