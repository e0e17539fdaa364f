package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchedulerRegistersJobs(t *testing.T) {
	h := newHarness(t, nil)

	s, err := NewScheduler(context.Background(), h.orch, "*/30 9-22 * * *", "0 9 * * *", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entries())

	s, err = NewScheduler(context.Background(), h.orch, "*/30 9-22 * * *", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Entries())
}

func TestNewSchedulerRejectsBadSpecs(t *testing.T) {
	h := newHarness(t, nil)

	_, err := NewScheduler(context.Background(), h.orch, "every minute", "", nil)
	require.Error(t, err)
	_, err = NewScheduler(context.Background(), h.orch, "* * * * *", "61 * * * *", nil)
	require.Error(t, err)
	_, err = NewScheduler(context.Background(), nil, "* * * * *", "", nil)
	require.Error(t, err)
}

func TestScheduledJobsRunCycleAndReset(t *testing.T) {
	h := newHarness(t, nil, "msg-42")
	s, err := NewScheduler(context.Background(), h.orch, "* * * * *", "0 9 * * *", nil)
	require.NoError(t, err)

	s.runCycle(context.Background())
	assert.Equal(t, 1, h.reviewer.postCount())

	h.orch.running.Store(true)
	s.runCycle(context.Background())
	assert.Equal(t, 1, h.reviewer.postCount())
	h.orch.running.Store(false)

	h.orch.ResetTopics()
	assert.Equal(t, 1, h.topics.resets)
}

func TestCronLoggerFields(t *testing.T) {
	fields := kvFields([]any{"entry", 1, "next", "soon", "dangling"})
	assert.Equal(t, map[string]any{"entry": 1, "next": "soon"}, fields)
}
