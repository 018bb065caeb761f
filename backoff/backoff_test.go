package backoff_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charge_point_twin/backoff"
)

func elapsed(t *testing.T, steps *backoff.Steps) time.Duration {
	t.Helper()

	start := time.Now()
	require.NoError(t, steps.Wait(context.Background()))

	return time.Since(start)
}

func TestStepsRepeatLastDelay(t *testing.T) {
	t.Parallel()

	steps := backoff.NewSteps(0, 40*time.Millisecond)

	assert.Less(t, elapsed(t, steps), 30*time.Millisecond)
	assert.GreaterOrEqual(t, elapsed(t, steps), 40*time.Millisecond)
	assert.GreaterOrEqual(t, elapsed(t, steps), 40*time.Millisecond)

	steps.Reset()
	assert.Less(t, elapsed(t, steps), 30*time.Millisecond)
}

func TestStepsWaitReturnsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, backoff.NewSteps(time.Hour).Wait(ctx), context.Canceled)
	assert.ErrorIs(t, backoff.NewSteps().Wait(ctx), context.Canceled)
}

func TestSleepReturnsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := backoff.Sleep(ctx, time.Hour)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleepWaits(t *testing.T) {
	t.Parallel()

	start := time.Now()
	err := backoff.Sleep(context.Background(), 20*time.Millisecond)

	assert.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
