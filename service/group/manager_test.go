package group

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/sched/model/priority"
	"github.com/viant/sched/model/types"
)

func TestManager_Create(t *testing.T) {
	manager := New()
	assert.True(t, errors.Is(manager.Create("etl", Options{MaxConcurrent: 0}), types.ErrConfig))
	assert.True(t, errors.Is(manager.Create("", Options{MaxConcurrent: 1}), types.ErrConfig))
	assert.True(t, errors.Is(manager.Create("etl", Options{MaxConcurrent: 1, Priority: priority.Level(9)}), types.ErrConfig))

	require.NoError(t, manager.Create("etl", Options{MaxConcurrent: 2, Priority: priority.High}))
	_, maxConcurrent, ok := manager.Usage("etl")
	require.True(t, ok)
	assert.Equal(t, 2, maxConcurrent)
	assert.Equal(t, priority.High, manager.Override("etl"))
	assert.Equal(t, priority.Unspecified, manager.Override("missing"))
}

func TestManager_AcquireRelease(t *testing.T) {
	manager := New()
	require.NoError(t, manager.Create("etl", Options{MaxConcurrent: 2}))

	assert.False(t, manager.Has("missing"))
	require.NoError(t, manager.Acquire("a", "etl"))
	require.NoError(t, manager.Acquire("b", "etl"))
	assert.Error(t, manager.Acquire("c", "etl"))
	assert.Error(t, manager.Acquire("a", "etl"))

	// cannot shrink below running
	assert.True(t, errors.Is(manager.Create("etl", Options{MaxConcurrent: 1}), types.ErrConfig))

	assert.True(t, manager.Release("a"))
	assert.False(t, manager.Release("a"))
	running, max, ok := manager.Usage("etl")
	assert.True(t, ok)
	assert.Equal(t, 1, running)
	assert.Equal(t, 2, max)
	require.NoError(t, manager.Acquire("c", "etl"))
	assert.NoError(t, manager.Acquire("z", ""))
	assert.False(t, manager.Release("z"))
}
