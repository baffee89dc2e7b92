package draft_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/patientflow/pkg/draft"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTask_ArmReplacesPendingCall(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	task := draft.NewTask(clock)

	var first, second atomic.Int32

	task.Arm(time.Second, func() { first.Add(1) })
	task.Arm(time.Second, func() { second.Add(1) })
	assert.True(t, task.Pending())

	clock.Advance(time.Second)

	require.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
	assert.False(t, task.Pending())
}

func TestTask_Cancel(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	task := draft.NewTask(clock)

	var calls atomic.Int32

	assert.False(t, task.Cancel())

	task.Arm(time.Second, func() { calls.Add(1) })
	assert.True(t, task.Cancel())
	assert.False(t, task.Pending())

	clock.Advance(2 * time.Second)

	assert.Never(t, func() bool { return calls.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestTask_Fire(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	task := draft.NewTask(clock)

	var calls atomic.Int32

	assert.False(t, task.Fire())

	task.Arm(time.Minute, func() { calls.Add(1) })
	assert.True(t, task.Fire())
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, task.Pending())

	clock.Advance(time.Minute)

	assert.Never(t, func() bool { return calls.Load() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}
