package extension

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutors(t *testing.T) {
	registry := NewExecutors()
	echo := func(ctx context.Context, input interface{}) (interface{}, error) { return input, nil }

	require.NoError(t, registry.Register("echo", echo))
	require.NoError(t, registry.Register("noop", echo))
	assert.Error(t, registry.Register("", echo))
	assert.Error(t, registry.Register("nil", nil))

	executor := registry.Lookup("echo")
	require.NotNil(t, executor)
	out, err := executor(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.Nil(t, registry.Lookup("missing"))
	assert.Equal(t, []string{"echo", "noop"}, registry.IDs())
}
