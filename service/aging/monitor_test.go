package aging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/sched/model/priority"
	"github.com/viant/sched/model/task"
	"github.com/viant/sched/model/types"
)

func TestMonitor_Refresh(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	testCases := []struct {
		description string
		config      Config
		base        priority.Level
		waited      time.Duration
		expect      priority.Level
		expectBoost bool
	}{
		{description: "below threshold", config: Config{WaitingTimeThreshold: time.Second, BoostAmount: 1}, base: priority.Low, waited: 500 * time.Millisecond, expect: priority.Low},
		{description: "at threshold", config: Config{WaitingTimeThreshold: time.Second, BoostAmount: 1}, base: priority.Low, waited: time.Second, expect: priority.Medium, expectBoost: true},
		{description: "clamped", config: Config{WaitingTimeThreshold: time.Second, BoostAmount: 3}, base: priority.High, waited: 2 * time.Second, expect: priority.Critical, expectBoost: true},
		{description: "disabled", config: Config{}, base: priority.Low, waited: time.Hour, expect: priority.Low},
	}
	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			monitor := New()
			require.NoError(t, monitor.Configure(tc.config))
			submission := &task.Submission{ID: "x", Base: tc.base, EnqueuedAt: start}
			boosted := monitor.Refresh([]*task.Submission{submission}, start.Add(tc.waited))
			assert.Equal(t, tc.expectBoost, len(boosted) == 1)
			assert.Equal(t, tc.expect, submission.Effective())
		})
	}
}

func TestMonitor_BoostAppliedOnce(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	monitor := New()
	require.NoError(t, monitor.Configure(Config{WaitingTimeThreshold: 100 * time.Millisecond, BoostAmount: 1}))
	submission := &task.Submission{ID: "x", Base: priority.Low, EnqueuedAt: start}
	pending := []*task.Submission{submission}

	monitor.Refresh(pending, start.Add(150*time.Millisecond))
	monitor.Refresh(pending, start.Add(time.Second))
	monitor.Refresh(pending, start.Add(time.Hour))
	assert.Equal(t, priority.Medium, submission.Effective())
	assert.Equal(t, 1, submission.Boost)

	// disabling keeps applied boost
	require.NoError(t, monitor.Configure(Config{}))
	monitor.Refresh(pending, start.Add(2*time.Hour))
	assert.Equal(t, priority.Medium, submission.Effective())
}

func TestConfig_Validate(t *testing.T) {
	assert.True(t, errors.Is(Config{WaitingTimeThreshold: -1}.Validate(), types.ErrConfig))
	assert.True(t, errors.Is(Config{BoostAmount: -1}.Validate(), types.ErrConfig))
	assert.NoError(t, Config{WaitingTimeThreshold: time.Second, BoostAmount: 1}.Validate())
}
