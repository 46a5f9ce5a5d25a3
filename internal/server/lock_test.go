package server

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceLock(t *testing.T) {
	dir := t.TempDir()

	// Given: one holder
	first := NewInstanceLock(dir)
	require.NoError(t, first.Acquire())
	t.Cleanup(func() { _ = first.Release() })

	pid, err := first.Owner()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	// When: a second lock on the same directory is taken
	second := NewInstanceLock(dir)
	err = second.Acquire()

	// Then: it is refused
	require.ErrorIs(t, err, ErrAlreadyRunning)

	// When: the first releases
	require.NoError(t, first.Release())
	require.NoError(t, first.Release())

	// Then: the second can take over
	require.NoError(t, second.Acquire())
	require.NoError(t, second.Release())
}
