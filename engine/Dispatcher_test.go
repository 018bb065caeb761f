package engine

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charge_point_twin/common"
)

type fakeLifecycle struct {
	mu      sync.Mutex
	calls   []string
	release chan struct{}
}

func (l *fakeLifecycle) add(call string) {
	l.mu.Lock()
	l.calls = append(l.calls, call)
	l.mu.Unlock()
}

func (l *fakeLifecycle) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.calls...)
}

func (l *fakeLifecycle) Start(ctx context.Context, _ int) error {
	l.add("start")
	select {
	case <-l.release:
	case <-ctx.Done():
	}

	return nil
}

func (l *fakeLifecycle) Stop(context.Context, int) error {
	l.add("stop")
	return nil
}

func (l *fakeLifecycle) SetChargingProfile(int, *types.ChargingProfile) error {
	l.add("profile")
	return nil
}

func TestDispatcherRunsCommandsConcurrently(t *testing.T) {
	t.Parallel()

	lifecycle := &fakeLifecycle{release: make(chan struct{})}
	d := NewDispatcher(lifecycle, 4, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = d.Run(ctx) }()

	require.NoError(t, d.Enqueue(ctx, common.StartTransaction{TransactionID: 1}))
	require.NoError(t, d.Enqueue(ctx, common.StopTransaction{TransactionID: 1}))
	require.NoError(t, d.Enqueue(ctx, common.SetChargingProfile{ConnectorID: 1, Profile: &types.ChargingProfile{}}))

	// A running start must not hold back the commands queued after it.
	assert.Eventually(t, func() bool {
		calls := lifecycle.snapshot()
		sort.Strings(calls)

		return assert.ObjectsAreEqual([]string{"profile", "start", "stop"}, calls)
	}, time.Second, 5*time.Millisecond)

	waited := make(chan struct{})
	go func() {
		d.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned while a task was running")
	case <-time.After(20 * time.Millisecond):
	}

	close(lifecycle.release)
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return")
	}
}

func TestDispatcherEnqueueBlocksWhenFull(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(&fakeLifecycle{}, 1, logger)
	require.NoError(t, d.Enqueue(context.Background(), common.StopTransaction{TransactionID: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := d.Enqueue(ctx, common.StopTransaction{TransactionID: 2})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatcherStopsTasksWithContext(t *testing.T) {
	t.Parallel()

	lifecycle := &fakeLifecycle{release: make(chan struct{})}
	d := NewDispatcher(lifecycle, 1, logger)
	ctx, cancel := context.WithCancel(context.Background())

	runDone := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(runDone)
	}()
	require.NoError(t, d.Enqueue(ctx, common.StartTransaction{TransactionID: 1}))
	assert.Eventually(t, func() bool { return len(lifecycle.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-runDone
	d.Wait()
}
