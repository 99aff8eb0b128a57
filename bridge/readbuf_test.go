package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBuf_NewAndUninit(t *testing.T) {
	rb := NewReadBuf(make([]byte, 8))
	assert.Equal(t, 8, rb.Capacity())
	assert.Equal(t, 8, rb.Initialized())
	assert.Equal(t, 0, rb.Len())
	assert.Equal(t, 8, rb.Remaining())

	ub := UninitReadBuf(make([]byte, 8))
	assert.Equal(t, 0, ub.Initialized())
	assert.Empty(t, ub.Filled())
}

func TestReadBuf_Advance(t *testing.T) {
	rb := UninitReadBuf(make([]byte, 4))
	copy(rb.Unfilled(), "ab")
	require.NoError(t, rb.Advance(2))
	assert.Equal(t, "ab", string(rb.Filled()))
	assert.Equal(t, 2, rb.Initialized())
	assert.Equal(t, 2, rb.Remaining())

	assert.ErrorIs(t, rb.Advance(3), ErrInvalidRead)
	assert.ErrorIs(t, rb.Advance(-1), ErrInvalidRead)
	assert.Equal(t, 2, rb.Len(), "failed advance must not move filled")

	copy(rb.Unfilled(), "cd")
	require.NoError(t, rb.Advance(2))
	assert.Equal(t, "abcd", string(rb.Filled()))
	assert.Equal(t, 0, rb.Remaining())
}

func TestReadBuf_FilledIsCapped(t *testing.T) {
	rb := UninitReadBuf(make([]byte, 4))
	require.NoError(t, rb.Advance(1))
	f := rb.Filled()
	assert.Equal(t, 1, cap(f))
}

func TestReadBuf_AssumeInitAndSetFilled(t *testing.T) {
	rb := UninitReadBuf(make([]byte, 6))
	rb.AssumeInit(4)
	assert.Equal(t, 4, rb.Initialized())
	assert.Equal(t, 0, rb.Len())

	rb.SetFilled(3)
	assert.Equal(t, 3, rb.Len())

	assert.Panics(t, func() { rb.SetFilled(5) })
	assert.Panics(t, func() { rb.AssumeInit(4) })

	rb.Clear()
	assert.Equal(t, 0, rb.Len())
	assert.Equal(t, 4, rb.Initialized())
}

func TestCursor_PutAndAdvance(t *testing.T) {
	rb := UninitReadBuf(make([]byte, 5))
	c := rb.Cursor()
	assert.Equal(t, 5, c.Remaining())

	assert.Equal(t, 3, c.Put([]byte("abc")))
	assert.Equal(t, 2, c.Remaining())
	assert.Equal(t, 2, c.Put([]byte("defg")))
	assert.Equal(t, "abcde", string(rb.Filled()))
	assert.Equal(t, 5, rb.Initialized())

	assert.ErrorIs(t, c.Advance(1), ErrInvalidRead)
}

func TestCursor_Zero(t *testing.T) {
	var c Cursor
	assert.Equal(t, 0, c.Remaining())
	assert.Equal(t, 0, c.Put([]byte("x")))
	assert.NoError(t, c.Advance(0))
	assert.ErrorIs(t, c.Advance(1), ErrInvalidRead)
}
