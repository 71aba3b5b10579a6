package fifo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopOrdering(t *testing.T) {
	f := New[int](3)
	require.True(t, f.Push(1))
	require.True(t, f.Push(2))
	require.True(t, f.Push(3))
	assert.True(t, f.IsFull())
	assert.False(t, f.Push(4), "fourth push on a 3-capacity FIFO must fail")

	v, ok := f.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	require.True(t, f.Push(4), "pushing after a pop must succeed again")

	for _, want := range []int{2, 3, 4} {
		v, ok := f.Pop()
		require.True(t, ok)
		assert.Equal(t, want, v)
	}
	_, ok = f.Pop()
	assert.False(t, ok)
}

func TestEmptyPopFails(t *testing.T) {
	f := New[byte](4)
	assert.True(t, f.IsEmpty())
	_, ok := f.Pop()
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	f := New[int](2)
	f.Push(1)
	f.Clear()
	assert.True(t, f.IsEmpty())
	assert.True(t, f.Push(9))
}
