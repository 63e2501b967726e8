package coordinator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gridmesh/gpumarket/internal/coordinator/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOwner    = "0xOwner"
	testProvider = "0xProvider"
	testArbiter  = "0xArbiter"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a manually advanced Clock for deterministic expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type testEnv struct {
	coord  *Coordinator
	bank   *MemoryBank
	clock  *fakeClock
	events *recordingPublisher
}

func newTestEnv(t *testing.T, mutate ...func(*Options)) *testEnv {
	t.Helper()

	clock := newFakeClock()
	bank := NewMemoryBank()
	events := &recordingPublisher{}

	opts := Options{
		Clock:             clock,
		Bank:              bank,
		Events:            events,
		Logger:            testLogger(),
		Arbiter:           testArbiter,
		FreeNodeOnRelease: true,
	}
	for _, m := range mutate {
		m(&opts)
	}

	bank.Deposit(testOwner, 10_000)

	return &testEnv{
		coord:  New(opts),
		bank:   bank,
		clock:  clock,
		events: events,
	}
}

func (env *testEnv) createJob(t *testing.T, jobID string) *domain.Job {
	t.Helper()

	job, err := env.coord.CreateJob(context.Background(), CreateJobParams{
		JobID:         jobID,
		Owner:         testOwner,
		DatasetRef:    "bafybeidataset",
		ContainerRef:  "bafybeicontainer",
		Deadline:      env.clock.Now().Add(time.Hour),
		RequiredSpecs: "RTX4090-24GB",
		MinMemoryGB:   16,
		BountyAmount:  500,
	})
	require.NoError(t, err)
	return job
}

func (env *testEnv) registerNode(t *testing.T, nodeID string) *domain.Node {
	t.Helper()

	node, err := env.coord.RegisterNode(context.Background(), RegisterNodeParams{
		NodeID:   nodeID,
		Owner:    testProvider,
		GPUName:  "GeForce RTX 4090",
		GPUSpecs: "RTX4090-24GB",
		MemoryGB: 24,
	})
	require.NoError(t, err)
	return node
}

func TestCreateJob(t *testing.T) {
	t.Run("creates pending job and holds bounty", func(t *testing.T) {
		env := newTestEnv(t)

		job := env.createJob(t, "job-1")

		assert.Equal(t, domain.JobStatePending, job.State)
		assert.Equal(t, testOwner, job.Owner)
		assert.Equal(t, int64(9_500), env.bank.Balance(testOwner))

		entry, err := env.coord.GetEscrowEntry("job-1")
		require.NoError(t, err)
		assert.Equal(t, int64(500), entry.HeldAmount)
		assert.Equal(t, testOwner, entry.Payer)
		assert.False(t, entry.Settled)

		assert.Equal(t, []string{EventJobCreated}, env.events.types())
	})

	t.Run("rejects non-positive bounty", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.coord.CreateJob(context.Background(), CreateJobParams{
			JobID:        "job-1",
			Owner:        testOwner,
			Deadline:     env.clock.Now().Add(time.Hour),
			BountyAmount: 0,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidBounty)
	})

	t.Run("rejects deadline not in the future", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.coord.CreateJob(context.Background(), CreateJobParams{
			JobID:        "job-1",
			Owner:        testOwner,
			Deadline:     env.clock.Now(),
			BountyAmount: 500,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidDeadline)
	})

	t.Run("rejects duplicate job id", func(t *testing.T) {
		env := newTestEnv(t)
		env.createJob(t, "job-1")

		_, err := env.coord.CreateJob(context.Background(), CreateJobParams{
			JobID:        "job-1",
			Owner:        testOwner,
			Deadline:     env.clock.Now().Add(time.Hour),
			BountyAmount: 500,
		})
		assert.ErrorIs(t, err, domain.ErrDuplicateJobID)
		// The duplicate attempt must not touch the balance.
		assert.Equal(t, int64(9_500), env.bank.Balance(testOwner))
	})

	t.Run("insufficient balance leaves no partial state", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.coord.CreateJob(context.Background(), CreateJobParams{
			JobID:        "job-1",
			Owner:        testOwner,
			Deadline:     env.clock.Now().Add(time.Hour),
			BountyAmount: 50_000,
		})
		assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

		_, err = env.coord.GetJob("job-1")
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
		_, err = env.coord.GetEscrowEntry("job-1")
		assert.ErrorIs(t, err, domain.ErrUnknownEscrowEntry)
		assert.Equal(t, int64(10_000), env.bank.Balance(testOwner))
	})
}

func TestRegisterNode(t *testing.T) {
	t.Run("registers idle node", func(t *testing.T) {
		env := newTestEnv(t)

		node := env.registerNode(t, "node-1")

		assert.Equal(t, domain.NodeStatusIdle, node.Status)
		assert.Equal(t, testProvider, node.Owner)
		assert.Empty(t, node.ActiveJobID)
	})

	t.Run("generates node id when omitted", func(t *testing.T) {
		env := newTestEnv(t)

		node, err := env.coord.RegisterNode(context.Background(), RegisterNodeParams{
			Owner:    testProvider,
			GPUSpecs: "RTX4090-24GB",
			MemoryGB: 24,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, node.NodeID)
	})

	t.Run("rejects duplicate node id", func(t *testing.T) {
		env := newTestEnv(t)
		env.registerNode(t, "node-1")

		_, err := env.coord.RegisterNode(context.Background(), RegisterNodeParams{
			NodeID:   "node-1",
			Owner:    testProvider,
			GPUSpecs: "RTX4090-24GB",
			MemoryGB: 24,
		})
		assert.ErrorIs(t, err, domain.ErrDuplicateNodeID)
	})
}

func TestClaimJob(t *testing.T) {
	t.Run("first claim wins", func(t *testing.T) {
		env := newTestEnv(t)
		env.createJob(t, "job-1")

		require.NoError(t, env.coord.ClaimJob(context.Background(), "job-1", testProvider))

		job, err := env.coord.GetJob("job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStateClaimed, job.State)
		assert.Equal(t, testProvider, job.Claimant)
	})

	t.Run("second claim is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		env.createJob(t, "job-1")

		require.NoError(t, env.coord.ClaimJob(context.Background(), "job-1", testProvider))
		err := env.coord.ClaimJob(context.Background(), "job-1", "0xOtherProvider")
		assert.ErrorIs(t, err, domain.ErrInvalidState)

		// The winner's claim is untouched.
		job, err := env.coord.GetJob("job-1")
		require.NoError(t, err)
		assert.Equal(t, testProvider, job.Claimant)
	})

	t.Run("unknown job", func(t *testing.T) {
		env := newTestEnv(t)

		err := env.coord.ClaimJob(context.Background(), "nope", testProvider)
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
	})

	t.Run("claim on overdue job expires it", func(t *testing.T) {
		env := newTestEnv(t)
		env.createJob(t, "job-1")
		env.clock.Advance(2 * time.Hour)

		err := env.coord.ClaimJob(context.Background(), "job-1", testProvider)
		assert.ErrorIs(t, err, domain.ErrDeadlinePassed)

		job, err := env.coord.GetJob("job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStateExpired, job.State)
		// Escrow refunded to the owner.
		assert.Equal(t, int64(10_000), env.bank.Balance(testOwner))
	})
}

func TestClaimJob_Concurrent(t *testing.T) {
	env := newTestEnv(t)
	env.createJob(t, "job-1")

	const claimants = 32
	var wg sync.WaitGroup
	results := make([]error, claimants)

	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = env.coord.ClaimJob(context.Background(), "job-1", fmt.Sprintf("0xProvider%d", i))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, domain.ErrInvalidState)
		}
	}
	assert.Equal(t, 1, winners)

	job, err := env.coord.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateClaimed, job.State)
	assert.NotEmpty(t, job.Claimant)
}

func TestAssignProvider(t *testing.T) {
	setup := func(t *testing.T) *testEnv {
		env := newTestEnv(t)
		env.createJob(t, "job-1")
		env.registerNode(t, "node-1")
		require.NoError(t, env.coord.ClaimJob(context.Background(), "job-1", testProvider))
		return env
	}

	t.Run("owner assigns eligible node", func(t *testing.T) {
		env := setup(t)

		require.NoError(t, env.coord.AssignProvider(context.Background(), "job-1", "node-1", testOwner))

		job, err := env.coord.GetJob("job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStateAssigned, job.State)
		assert.Equal(t, testProvider, job.AssignedProvider)
		assert.Equal(t, "node-1", job.AssignedNode)

		node, err := env.coord.GetNode("node-1")
		require.NoError(t, err)
		assert.Equal(t, domain.NodeStatusBusy, node.Status)
		assert.Equal(t, "job-1", node.ActiveJobID)
	})

	t.Run("arbiter may assign", func(t *testing.T) {
		env := setup(t)

		require.NoError(t, env.coord.AssignProvider(context.Background(), "job-1", "node-1", testArbiter))
	})

	t.Run("other callers are rejected", func(t *testing.T) {
		env := setup(t)

		err := env.coord.AssignProvider(context.Background(), "job-1", "node-1", "0xStranger")
		assert.ErrorIs(t, err, domain.ErrUnauthorizedCaller)
	})

	t.Run("requires claimed state", func(t *testing.T) {
		env := newTestEnv(t)
		env.createJob(t, "job-1")
		env.registerNode(t, "node-1")

		err := env.coord.AssignProvider(context.Background(), "job-1", "node-1", testOwner)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("spec mismatch leaves both records untouched", func(t *testing.T) {
		env := setup(t)
		_, err := env.coord.RegisterNode(context.Background(), RegisterNodeParams{
			NodeID:   "node-weak",
			Owner:    testProvider,
			GPUSpecs: "GTX1060-6GB",
			MemoryGB: 6,
		})
		require.NoError(t, err)

		err = env.coord.AssignProvider(context.Background(), "job-1", "node-weak", testOwner)
		assert.ErrorIs(t, err, domain.ErrNodeNotEligible)

		job, err := env.coord.GetJob("job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStateClaimed, job.State)

		node, err := env.coord.GetNode("node-weak")
		require.NoError(t, err)
		assert.Equal(t, domain.NodeStatusIdle, node.Status)
	})

	t.Run("busy node is not eligible", func(t *testing.T) {
		env := setup(t)
		require.NoError(t, env.coord.AssignProvider(context.Background(), "job-1", "node-1", testOwner))

		env.createJob(t, "job-2")
		require.NoError(t, env.coord.ClaimJob(context.Background(), "job-2", testProvider))

		err := env.coord.AssignProvider(context.Background(), "job-2", "node-1", testOwner)
		assert.ErrorIs(t, err, domain.ErrNodeNotEligible)
	})

	t.Run("overdue job expires instead of assigning", func(t *testing.T) {
		env := setup(t)
		env.clock.Advance(2 * time.Hour)

		err := env.coord.AssignProvider(context.Background(), "job-1", "node-1", testOwner)
		assert.ErrorIs(t, err, domain.ErrInvalidState)

		job, err := env.coord.GetJob("job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStateExpired, job.State)
	})
}

func TestSubmitResult(t *testing.T) {
	setup := func(t *testing.T) *testEnv {
		env := newTestEnv(t)
		env.createJob(t, "job-1")
		env.registerNode(t, "node-1")
		require.NoError(t, env.coord.ClaimJob(context.Background(), "job-1", testProvider))
		require.NoError(t, env.coord.AssignProvider(context.Background(), "job-1", "node-1", testOwner))
		return env
	}

	t.Run("assigned provider submits", func(t *testing.T) {
		env := setup(t)

		require.NoError(t, env.coord.SubmitResult(context.Background(), "job-1", "deadbeef", testProvider))

		job, err := env.coord.GetJob("job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStateResultSubmitted, job.State)
		assert.Equal(t, "deadbeef", job.ResultHash)
	})

	t.Run("only the assigned provider may submit", func(t *testing.T) {
		env := setup(t)

		err := env.coord.SubmitResult(context.Background(), "job-1", "deadbeef", "0xStranger")
		assert.ErrorIs(t, err, domain.ErrUnauthorizedCaller)
	})

	t.Run("second submission is rejected", func(t *testing.T) {
		env := setup(t)
		require.NoError(t, env.coord.SubmitResult(context.Background(), "job-1", "deadbeef", testProvider))

		err := env.coord.SubmitResult(context.Background(), "job-1", "cafebabe", testProvider)
		assert.ErrorIs(t, err, domain.ErrInvalidState)

		job, err := env.coord.GetJob("job-1")
		require.NoError(t, err)
		assert.Equal(t, "deadbeef", job.ResultHash)
	})

	t.Run("overdue job expires instead of accepting the result", func(t *testing.T) {
		env := setup(t)
		env.clock.Advance(2 * time.Hour)

		err := env.coord.SubmitResult(context.Background(), "job-1", "deadbeef", testProvider)
		assert.ErrorIs(t, err, domain.ErrInvalidState)

		job, err := env.coord.GetJob("job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStateExpired, job.State)
		// Node is freed by the expiry.
		node, err := env.coord.GetNode("node-1")
		require.NoError(t, err)
		assert.Equal(t, domain.NodeStatusIdle, node.Status)
	})
}

func TestRelease(t *testing.T) {
	setup := func(t *testing.T, mutate ...func(*Options)) *testEnv {
		env := newTestEnv(t, mutate...)
		env.createJob(t, "job-1")
		env.registerNode(t, "node-1")
		require.NoError(t, env.coord.ClaimJob(context.Background(), "job-1", testProvider))
		require.NoError(t, env.coord.AssignProvider(context.Background(), "job-1", "node-1", testOwner))
		require.NoError(t, env.coord.SubmitResult(context.Background(), "job-1", "deadbeef", testProvider))
		return env
	}

	t.Run("pays the provider the exact bounty", func(t *testing.T) {
		env := setup(t)

		require.NoError(t, env.coord.Release(context.Background(), "job-1", testOwner))

		assert.Equal(t, int64(500), env.bank.Balance(testProvider))
		assert.Equal(t, int64(9_500), env.bank.Balance(testOwner))

		job, err := env.coord.GetJob("job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStateReleased, job.State)
		assert.True(t, job.Completed)

		entry, err := env.coord.GetEscrowEntry("job-1")
		require.NoError(t, err)
		assert.True(t, entry.Settled)
		assert.Equal(t, testProvider, entry.Beneficiary)
		require.NotNil(t, entry.SettledAt)
	})

	t.Run("frees the node when configured", func(t *testing.T) {
		env := setup(t)

		require.NoError(t, env.coord.Release(context.Background(), "job-1", testOwner))

		node, err := env.coord.GetNode("node-1")
		require.NoError(t, err)
		assert.Equal(t, domain.NodeStatusIdle, node.Status)
		assert.Empty(t, node.ActiveJobID)
	})

	t.Run("leaves the node busy when not configured", func(t *testing.T) {
		env := setup(t, func(o *Options) { o.FreeNodeOnRelease = false })

		require.NoError(t, env.coord.Release(context.Background(), "job-1", testOwner))

		node, err := env.coord.GetNode("node-1")
		require.NoError(t, err)
		assert.Equal(t, domain.NodeStatusBusy, node.Status)
	})

	t.Run("only the owner may release", func(t *testing.T) {
		env := setup(t)

		err := env.coord.Release(context.Background(), "job-1", testProvider)
		assert.ErrorIs(t, err, domain.ErrUnauthorizedCaller)
	})

	t.Run("second release is rejected and pays nothing", func(t *testing.T) {
		env := setup(t)
		require.NoError(t, env.coord.Release(context.Background(), "job-1", testOwner))

		err := env.coord.Release(context.Background(), "job-1", testOwner)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
		assert.Equal(t, int64(500), env.bank.Balance(testProvider))
	})

	t.Run("requires result first", func(t *testing.T) {
		env := newTestEnv(t)
		env.createJob(t, "job-1")

		err := env.coord.Release(context.Background(), "job-1", testOwner)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})
}

func TestExpireOverdue(t *testing.T) {
	t.Run("expires overdue jobs and refunds escrow", func(t *testing.T) {
		env := newTestEnv(t)
		env.createJob(t, "job-1")
		env.createJob(t, "job-2")
		env.clock.Advance(2 * time.Hour)

		expired := env.coord.ExpireOverdue(context.Background())
		assert.ElementsMatch(t, []string{"job-1", "job-2"}, expired)

		for _, id := range []string{"job-1", "job-2"} {
			job, err := env.coord.GetJob(id)
			require.NoError(t, err)
			assert.Equal(t, domain.JobStateExpired, job.State)
		}
		// Both bounties returned in full.
		assert.Equal(t, int64(10_000), env.bank.Balance(testOwner))

		entry, err := env.coord.GetEscrowEntry("job-1")
		require.NoError(t, err)
		assert.True(t, entry.Settled)
		assert.Equal(t, testOwner, entry.Beneficiary)
	})

	t.Run("frees the node of an assigned overdue job", func(t *testing.T) {
		env := newTestEnv(t)
		env.createJob(t, "job-1")
		env.registerNode(t, "node-1")
		require.NoError(t, env.coord.ClaimJob(context.Background(), "job-1", testProvider))
		require.NoError(t, env.coord.AssignProvider(context.Background(), "job-1", "node-1", testOwner))
		env.clock.Advance(2 * time.Hour)

		expired := env.coord.ExpireOverdue(context.Background())
		assert.Equal(t, []string{"job-1"}, expired)

		node, err := env.coord.GetNode("node-1")
		require.NoError(t, err)
		assert.Equal(t, domain.NodeStatusIdle, node.Status)
		assert.Empty(t, node.ActiveJobID)
	})

	t.Run("second sweep is a no-op", func(t *testing.T) {
		env := newTestEnv(t)
		env.createJob(t, "job-1")
		env.clock.Advance(2 * time.Hour)

		require.Len(t, env.coord.ExpireOverdue(context.Background()), 1)
		assert.Empty(t, env.coord.ExpireOverdue(context.Background()))
		// Exactly one refund.
		assert.Equal(t, int64(10_000), env.bank.Balance(testOwner))
	})

	t.Run("does not touch released jobs", func(t *testing.T) {
		env := newTestEnv(t)
		env.createJob(t, "job-1")
		env.registerNode(t, "node-1")
		require.NoError(t, env.coord.ClaimJob(context.Background(), "job-1", testProvider))
		require.NoError(t, env.coord.AssignProvider(context.Background(), "job-1", "node-1", testOwner))
		require.NoError(t, env.coord.SubmitResult(context.Background(), "job-1", "deadbeef", testProvider))
		require.NoError(t, env.coord.Release(context.Background(), "job-1", testOwner))
		env.clock.Advance(2 * time.Hour)

		assert.Empty(t, env.coord.ExpireOverdue(context.Background()))
		// Settlement stands: the provider keeps the bounty.
		assert.Equal(t, int64(500), env.bank.Balance(testProvider))
		assert.Equal(t, int64(9_500), env.bank.Balance(testOwner))
	})
}

func TestExtendDeadline(t *testing.T) {
	t.Run("moves the deadline forward", func(t *testing.T) {
		env := newTestEnv(t)
		job := env.createJob(t, "job-1")
		newDeadline := job.Deadline.Add(time.Hour)

		require.NoError(t, env.coord.ExtendDeadline(context.Background(), "job-1", newDeadline, testOwner))

		got, err := env.coord.GetJob("job-1")
		require.NoError(t, err)
		assert.True(t, got.Deadline.Equal(newDeadline))
	})

	t.Run("rejects deadlines that do not extend", func(t *testing.T) {
		env := newTestEnv(t)
		job := env.createJob(t, "job-1")

		err := env.coord.ExtendDeadline(context.Background(), "job-1", job.Deadline, testOwner)
		assert.ErrorIs(t, err, domain.ErrInvalidDeadline)

		err = env.coord.ExtendDeadline(context.Background(), "job-1", job.Deadline.Add(-time.Minute), testOwner)
		assert.ErrorIs(t, err, domain.ErrInvalidDeadline)
	})

	t.Run("only the owner may extend", func(t *testing.T) {
		env := newTestEnv(t)
		job := env.createJob(t, "job-1")

		err := env.coord.ExtendDeadline(context.Background(), "job-1", job.Deadline.Add(time.Hour), testProvider)
		assert.ErrorIs(t, err, domain.ErrUnauthorizedCaller)
	})

	t.Run("an overdue job expires instead of extending", func(t *testing.T) {
		env := newTestEnv(t)
		job := env.createJob(t, "job-1")
		env.clock.Advance(2 * time.Hour)

		err := env.coord.ExtendDeadline(context.Background(), "job-1", job.Deadline.Add(3*time.Hour), testOwner)
		assert.ErrorIs(t, err, domain.ErrInvalidState)

		got, err := env.coord.GetJob("job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStateExpired, got.State)
	})
}

func TestSetNodeOffline(t *testing.T) {
	t.Run("marks an idle node offline", func(t *testing.T) {
		env := newTestEnv(t)
		env.registerNode(t, "node-1")

		require.NoError(t, env.coord.SetNodeOffline(context.Background(), "node-1", testProvider))

		node, err := env.coord.GetNode("node-1")
		require.NoError(t, err)
		assert.Equal(t, domain.NodeStatusOffline, node.Status)
	})

	t.Run("busy node cannot go offline", func(t *testing.T) {
		env := newTestEnv(t)
		env.createJob(t, "job-1")
		env.registerNode(t, "node-1")
		require.NoError(t, env.coord.ClaimJob(context.Background(), "job-1", testProvider))
		require.NoError(t, env.coord.AssignProvider(context.Background(), "job-1", "node-1", testOwner))

		err := env.coord.SetNodeOffline(context.Background(), "node-1", testProvider)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("only the node owner may do it", func(t *testing.T) {
		env := newTestEnv(t)
		env.registerNode(t, "node-1")

		err := env.coord.SetNodeOffline(context.Background(), "node-1", testOwner)
		assert.ErrorIs(t, err, domain.ErrUnauthorizedCaller)
	})
}

func TestListMyJobs(t *testing.T) {
	env := newTestEnv(t)
	env.bank.Deposit("0xOtherOwner", 1_000)

	env.createJob(t, "job-1")
	_, err := env.coord.CreateJob(context.Background(), CreateJobParams{
		JobID:         "job-2",
		Owner:         "0xOtherOwner",
		Deadline:      env.clock.Now().Add(time.Hour),
		RequiredSpecs: "RTX4090-24GB",
		BountyAmount:  200,
	})
	require.NoError(t, err)

	env.registerNode(t, "node-1")
	require.NoError(t, env.coord.ClaimJob(context.Background(), "job-2", testProvider))
	require.NoError(t, env.coord.AssignProvider(context.Background(), "job-2", "node-1", "0xOtherOwner"))

	ownerJobs := env.coord.ListMyJobs(testOwner)
	require.Len(t, ownerJobs, 1)
	assert.Equal(t, "job-1", ownerJobs[0].JobID)

	// The assigned provider sees the job it works on.
	providerJobs := env.coord.ListMyJobs(testProvider)
	require.Len(t, providerJobs, 1)
	assert.Equal(t, "job-2", providerJobs[0].JobID)

	assert.Empty(t, env.coord.ListMyJobs("0xStranger"))
}

func TestEligibleNodes(t *testing.T) {
	env := newTestEnv(t)
	env.createJob(t, "job-1")
	env.registerNode(t, "node-1")
	_, err := env.coord.RegisterNode(context.Background(), RegisterNodeParams{
		NodeID:   "node-weak",
		Owner:    testProvider,
		GPUSpecs: "GTX1060-6GB",
		MemoryGB: 6,
	})
	require.NoError(t, err)

	nodes, err := env.coord.EligibleNodes("job-1")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "node-1", nodes[0].NodeID)

	_, err = env.coord.EligibleNodes("nope")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestLifecycleEvents(t *testing.T) {
	env := newTestEnv(t)
	env.createJob(t, "job-1")
	env.registerNode(t, "node-1")
	require.NoError(t, env.coord.ClaimJob(context.Background(), "job-1", testProvider))
	require.NoError(t, env.coord.AssignProvider(context.Background(), "job-1", "node-1", testOwner))
	require.NoError(t, env.coord.SubmitResult(context.Background(), "job-1", "deadbeef", testProvider))
	require.NoError(t, env.coord.Release(context.Background(), "job-1", testOwner))

	assert.Equal(t, []string{
		EventJobCreated,
		EventNodeRegistered,
		EventJobClaimed,
		EventJobAssigned,
		EventJobResultSubmitted,
		EventJobReleased,
	}, env.events.types())
}

func TestRestore(t *testing.T) {
	env := newTestEnv(t)

	settledAt := env.clock.Now()
	jobs := []*domain.Job{
		{JobID: "job-1", Owner: testOwner, State: domain.JobStateAssigned, AssignedNode: "node-1", AssignedProvider: testProvider, Deadline: env.clock.Now().Add(time.Hour)},
		{JobID: "job-2", Owner: testOwner, State: domain.JobStateReleased, Completed: true, Deadline: env.clock.Now().Add(time.Hour)},
	}
	nodes := []*domain.Node{
		{NodeID: "node-1", Owner: testProvider, GPUSpecs: "RTX4090-24GB", MemoryGB: 24, Status: domain.NodeStatusBusy, ActiveJobID: "job-1"},
	}
	entries := []*domain.EscrowEntry{
		{JobID: "job-1", HeldAmount: 500, Payer: testOwner},
		{JobID: "job-2", HeldAmount: 200, Payer: testOwner, Settled: true, Beneficiary: testProvider, SettledAt: &settledAt},
	}

	env.coord.Restore(jobs, nodes, entries)

	job, err := env.coord.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateAssigned, job.State)

	// Journaled status survives the restore.
	node, err := env.coord.GetNode("node-1")
	require.NoError(t, err)
	assert.Equal(t, domain.NodeStatusBusy, node.Status)
	assert.Equal(t, "job-1", node.ActiveJobID)

	entry, err := env.coord.GetEscrowEntry("job-2")
	require.NoError(t, err)
	assert.True(t, entry.Settled)

	// A restored unsettled entry still refunds on expiry.
	env.clock.Advance(2 * time.Hour)
	expired := env.coord.ExpireOverdue(context.Background())
	assert.Equal(t, []string{"job-1"}, expired)
	assert.Equal(t, int64(10_500), env.bank.Balance(testOwner))
}
