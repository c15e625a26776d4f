package api

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/parking-engine/engine"
)

type fakeExpirer struct {
	calls atomic.Int32
	ended int
	err   error
}

func (f *fakeExpirer) ExpireOverdue(ctx context.Context) (int, error) {
	f.calls.Add(1)
	return f.ended, f.err
}

func TestScheduler_RunsImmediatelyOnStart(t *testing.T) {
	// GIVEN: A scheduler with a long interval
	exp := &fakeExpirer{ended: 2}
	sched := NewExpiryScheduler(exp)
	sched.CheckInterval = time.Hour

	// WHEN: Starting it
	sched.Start()
	defer sched.Stop()

	// THEN: The first sweep runs without waiting for the ticker
	require.Eventually(t, func() bool { return sched.Status().LastRunAt != "" }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), exp.calls.Load())

	status := sched.Status()
	assert.True(t, status.Enabled)
	assert.Equal(t, "1h0m0s", status.CheckInterval)
	assert.Equal(t, 2, status.LastEnded)
	assert.Equal(t, 2, status.TotalEnded)
	assert.NotEmpty(t, status.NextRunAt)
}

func TestScheduler_TicksRepeatedly(t *testing.T) {
	exp := &fakeExpirer{ended: 1}
	sched := NewExpiryScheduler(exp)
	sched.CheckInterval = 10 * time.Millisecond

	sched.Start()
	require.Eventually(t, func() bool { return exp.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	sched.Stop()

	calls := exp.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, exp.calls.Load(), "no sweeps after Stop")
	assert.Equal(t, int(calls), sched.Status().TotalEnded)
}

func TestScheduler_DisabledDoesNotStart(t *testing.T) {
	exp := &fakeExpirer{}
	sched := NewExpiryScheduler(exp)
	sched.Enabled = false

	sched.Start()
	sched.Stop()

	assert.Equal(t, int32(0), exp.calls.Load())
	status := sched.Status()
	assert.False(t, status.Enabled)
	assert.Empty(t, status.LastRunAt)
	assert.Empty(t, status.NextRunAt)
}

func TestScheduler_RunNowRecordsError(t *testing.T) {
	// GIVEN: A store that fails after ending one reservation
	exp := &fakeExpirer{ended: 1, err: &engine.StoreError{Op: "end", Err: errors.New("disk I/O error")}}
	sched := NewExpiryScheduler(exp)

	// WHEN: Running a sweep by hand
	ended, err := sched.RunNow()

	// THEN: Partial progress and the error are both kept
	assert.Equal(t, 1, ended)
	assert.True(t, engine.IsRetryable(err))
	status := sched.Status()
	assert.Equal(t, 1, status.LastEnded)
	assert.Contains(t, status.LastError, "disk I/O error")

	// A clean run clears the error but keeps the running total
	exp.err = nil
	exp.ended = 0
	_, err = sched.RunNow()
	require.NoError(t, err)
	status = sched.Status()
	assert.Empty(t, status.LastError)
	assert.Equal(t, 1, status.TotalEnded)
}
