package errlog

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sillycat/sensornet/internal/nvm"
)

type fakeClock struct {
	ts uint32
	ok bool
}

func (c fakeClock) Now() (uint32, bool) { return c.ts, c.ok }

func TestLogAppendsAndWraps(t *testing.T) {
	region := nvm.NewMemRegion(RegionSize)
	l, err := Open(region, fakeClock{ts: 100, ok: true}, nil)
	require.NoError(t, err)

	for i := 0; i < Capacity+3; i++ {
		l.Log(CodeLowStack, uint8(i))
	}

	var buf bytes.Buffer
	l.SetDebug(true, &buf)
	require.NoError(t, l.Dump(&buf))
	assert.Contains(t, buf.String(), "code=3")
}

func TestOpenResumesAfterWrap(t *testing.T) {
	region := nvm.NewMemRegion(RegionSize)
	l, err := Open(region, fakeClock{ts: 1, ok: true}, nil)
	require.NoError(t, err)
	for i := 0; i < Capacity+5; i++ {
		l.Log(CodeCorruptConfig, 0)
	}
	wantNextID := l.currentID

	reopened, err := Open(region, fakeClock{ts: 1, ok: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, wantNextID, reopened.currentID)
}

func TestOpenOnBlankRegionStartsAtIndexZero(t *testing.T) {
	region := nvm.NewMemRegion(RegionSize)
	l, err := Open(region, fakeClock{ts: 1, ok: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, l.currentIndex)
	assert.Equal(t, uint32(1), l.currentID)
}

func TestWrapReplacesIndexZeroAfterFullRing(t *testing.T) {
	region := nvm.NewMemRegion(RegionSize)
	l, err := Open(region, fakeClock{ts: 1, ok: true}, nil)
	require.NoError(t, err)

	for i := 0; i < Capacity; i++ {
		l.Log(CodePowerOn, 0)
	}
	assert.Equal(t, 0, l.currentIndex, "after exactly Capacity writes the index wraps back to 0")
	assert.Equal(t, uint32(Capacity+1), l.currentID)

	l.Log(CodePowerOn, 0) // the 81st call; must overwrite index 0
	assert.Equal(t, 1, l.currentIndex)
	assert.Equal(t, uint32(Capacity+2), l.currentID)

	reopened, err := Open(region, fakeClock{ts: 1, ok: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.currentIndex, "boot scan must find the same write index as the in-RAM counter")
	assert.Equal(t, uint32(Capacity+2), reopened.currentID)
}

func TestAssertFailInvokesPanicFunc(t *testing.T) {
	region := nvm.NewMemRegion(RegionSize)
	var captured string
	l, err := Open(region, fakeClock{ts: 1, ok: true}, func(diag string) { captured = diag })
	require.NoError(t, err)

	l.AssertFail("foo.go", 42, "x != nil")
	assert.Contains(t, captured, "foo.go:42")
}

func TestDumpDisabledWhenNotDebug(t *testing.T) {
	region := nvm.NewMemRegion(RegionSize)
	l, err := Open(region, fakeClock{ts: 1, ok: true}, nil)
	require.NoError(t, err)
	l.Log(CodeRTCFailure, 9)

	var buf bytes.Buffer
	require.NoError(t, l.Dump(&buf))
	assert.Empty(t, buf.String())
}
