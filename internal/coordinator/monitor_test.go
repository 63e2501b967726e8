package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/gridmesh/gpumarket/internal/coordinator/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_ExpiresOverdueJobs(t *testing.T) {
	env := newTestEnv(t)
	env.createJob(t, "job-1")
	env.clock.Advance(2 * time.Hour)

	monitor := NewMonitor(env.coord, 10*time.Millisecond, testLogger())
	monitor.Start(context.Background())
	defer monitor.Stop()

	require.Eventually(t, func() bool {
		job, err := env.coord.GetJob("job-1")
		return err == nil && job.State == domain.JobStateExpired
	}, 2*time.Second, 10*time.Millisecond)

	// Escrow refunded by the sweep.
	assert.Equal(t, int64(10_000), env.bank.Balance(testOwner))
}

func TestMonitor_StopTerminatesSweep(t *testing.T) {
	env := newTestEnv(t)

	monitor := NewMonitor(env.coord, 10*time.Millisecond, testLogger())
	monitor.Start(context.Background())

	done := make(chan struct{})
	go func() {
		monitor.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop in time")
	}
}

func TestMonitor_ContextCancelTerminatesSweep(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	monitor := NewMonitor(env.coord, 10*time.Millisecond, testLogger())
	monitor.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		monitor.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not exit on context cancel")
	}
}
