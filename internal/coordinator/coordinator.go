package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gridmesh/gpumarket/internal/coordinator/domain"
)

// Options configures a Coordinator.
type Options struct {
	Clock   Clock
	Bank    BalanceSource
	Journal Journal        // optional
	Events  EventPublisher // optional
	Logger  *slog.Logger

	// Arbiter is an identity allowed to assign providers on any job, in
	// addition to the job owner. Empty disables the arbiter role.
	Arbiter string

	// FreeNodeOnRelease controls whether Release returns the node to IDLE.
	// The upstream marketplace left nodes BUSY after completion; this makes
	// that behavior an explicit deployment choice.
	FreeNodeOnRelease bool
}

// Coordinator is the marketplace engine. It composes the job store, node
// registry and escrow ledger behind one write lock so that cross-entity
// mutations (claim-and-assign, expire-and-refund) are atomic to all
// observers. No I/O happens inside the lock: journal writes and event
// publishes run after the mutation commits.
type Coordinator struct {
	mu     sync.RWMutex
	jobs   *JobStore
	nodes  *Registry
	ledger *Ledger

	clock             Clock
	journal           Journal
	events            EventPublisher
	logger            *slog.Logger
	arbiter           string
	freeNodeOnRelease bool
}

func New(opts Options) *Coordinator {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		jobs:              NewJobStore(),
		nodes:             NewRegistry(),
		ledger:            NewLedger(opts.Bank, clock),
		clock:             clock,
		journal:           opts.Journal,
		events:            opts.Events,
		logger:            logger,
		arbiter:           opts.Arbiter,
		freeNodeOnRelease: opts.FreeNodeOnRelease,
	}
}

// sideEffects collects the records and events an operation produced while
// the lock was held. They are flushed after the lock is released.
type sideEffects struct {
	jobs    []*domain.Job
	nodes   []*domain.Node
	entries []*domain.EscrowEntry
	events  []Event
}

func (fx *sideEffects) job(j *domain.Job)           { fx.jobs = append(fx.jobs, j.Clone()) }
func (fx *sideEffects) node(n *domain.Node)         { fx.nodes = append(fx.nodes, n.Clone()) }
func (fx *sideEffects) entry(e *domain.EscrowEntry) { fx.entries = append(fx.entries, e.Clone()) }
func (fx *sideEffects) event(ev Event)              { fx.events = append(fx.events, ev) }

// flush persists and publishes collected side effects. Both collaborators
// are best-effort: a failed journal write or publish is logged and the
// already-committed state transition stands.
func (c *Coordinator) flush(ctx context.Context, fx *sideEffects) {
	for _, job := range fx.jobs {
		if c.journal != nil {
			if err := c.journal.SaveJob(ctx, job); err != nil {
				c.logger.Error("Journal write failed for job",
					slog.String("job_id", job.JobID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	for _, node := range fx.nodes {
		if c.journal != nil {
			if err := c.journal.SaveNode(ctx, node); err != nil {
				c.logger.Error("Journal write failed for node",
					slog.String("node_id", node.NodeID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	for _, entry := range fx.entries {
		if c.journal != nil {
			if err := c.journal.SaveEscrowEntry(ctx, entry); err != nil {
				c.logger.Error("Journal write failed for escrow entry",
					slog.String("job_id", entry.JobID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	for _, event := range fx.events {
		if c.events != nil {
			if err := c.events.Publish(ctx, event); err != nil {
				c.logger.Error("Event publish failed",
					slog.String("event_type", event.Type),
					slog.String("job_id", event.JobID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// CreateJobParams carries the caller-supplied fields of a new job.
type CreateJobParams struct {
	JobID         string
	Owner         string
	DatasetRef    string
	ContainerRef  string
	Deadline      time.Time
	RequiredSpecs string
	MinMemoryGB   int
	BountyAmount  int64
}

// CreateJob validates the request, debits the bounty from the owner into
// escrow and creates the job in PENDING state. Nothing is mutated unless
// every step can succeed.
func (c *Coordinator) CreateJob(ctx context.Context, p CreateJobParams) (*domain.Job, error) {
	fx := &sideEffects{}

	c.mu.Lock()
	now := c.clock.Now()

	if p.BountyAmount <= 0 {
		c.mu.Unlock()
		return nil, domain.ErrInvalidBounty
	}
	if !p.Deadline.After(now) {
		c.mu.Unlock()
		return nil, domain.ErrInvalidDeadline
	}
	if _, err := c.jobs.Get(p.JobID); err == nil {
		c.mu.Unlock()
		return nil, domain.ErrDuplicateJobID
	}

	// Debit is the only fallible mutation; it runs before the records exist
	// so a failure leaves no partial state.
	if err := c.ledger.Hold(p.JobID, p.Owner, p.BountyAmount); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	job := &domain.Job{
		JobID:         p.JobID,
		Owner:         p.Owner,
		DatasetRef:    p.DatasetRef,
		ContainerRef:  p.ContainerRef,
		BountyAmount:  p.BountyAmount,
		Deadline:      p.Deadline,
		RequiredSpecs: p.RequiredSpecs,
		MinMemoryGB:   p.MinMemoryGB,
		State:         domain.JobStatePending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.jobs.Create(job); err != nil {
		// Unreachable after the duplicate check above, but never strand funds.
		_, _, _ = c.ledger.Refund(p.JobID)
		c.mu.Unlock()
		return nil, err
	}

	entry, _ := c.ledger.Entry(p.JobID)
	fx.job(job)
	fx.entry(entry)
	fx.event(Event{Type: EventJobCreated, JobID: job.JobID, Owner: job.Owner, Amount: job.BountyAmount, At: now})
	view := job.Clone()
	c.mu.Unlock()

	c.logger.Info("Job created",
		slog.String("job_id", job.JobID),
		slog.String("owner", job.Owner),
		slog.Int64("bounty", job.BountyAmount),
		slog.Time("deadline", job.Deadline),
	)
	c.flush(ctx, fx)
	return view, nil
}

// RegisterNodeParams carries the caller-supplied fields of a new node.
// NodeID may be empty, in which case the coordinator generates one.
type RegisterNodeParams struct {
	NodeID   string
	Owner    string
	GPUName  string
	GPUSpecs string
	MemoryGB int
}

// RegisterNode creates a node in IDLE state and returns its view.
func (c *Coordinator) RegisterNode(ctx context.Context, p RegisterNodeParams) (*domain.Node, error) {
	if p.NodeID == "" {
		p.NodeID = uuid.New().String()
	}

	fx := &sideEffects{}

	c.mu.Lock()
	now := c.clock.Now()
	node := &domain.Node{
		NodeID:       p.NodeID,
		Owner:        p.Owner,
		GPUName:      p.GPUName,
		GPUSpecs:     p.GPUSpecs,
		MemoryGB:     p.MemoryGB,
		RegisteredAt: now,
	}
	if err := c.nodes.Register(node); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	fx.node(node)
	fx.event(Event{Type: EventNodeRegistered, NodeID: node.NodeID, Owner: node.Owner, At: now})
	view := node.Clone()
	c.mu.Unlock()

	c.logger.Info("Node registered",
		slog.String("node_id", node.NodeID),
		slog.String("owner", node.Owner),
		slog.String("gpu_specs", node.GPUSpecs),
		slog.Int("memory_gb", node.MemoryGB),
	)
	c.flush(ctx, fx)
	return view, nil
}

// ClaimJob records the caller as the job's candidate provider. Only one
// claim ever succeeds per job: the PENDING→CLAIMED compare-and-swap hands
// every concurrent loser ErrInvalidState.
func (c *Coordinator) ClaimJob(ctx context.Context, jobID, claimant string) error {
	fx := &sideEffects{}

	c.mu.Lock()
	job, err := c.jobs.Get(jobID)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	now := c.clock.Now()
	if job.Active() && !now.Before(job.Deadline) {
		c.expireLocked(job, now, fx)
		c.mu.Unlock()
		c.flush(ctx, fx)
		return domain.ErrDeadlinePassed
	}

	if err := c.jobs.Transition(jobID, []string{domain.JobStatePending}, domain.JobStateClaimed); err != nil {
		c.mu.Unlock()
		return err
	}
	job.Claimant = claimant
	job.UpdatedAt = now
	fx.job(job)
	fx.event(Event{Type: EventJobClaimed, JobID: jobID, Provider: claimant, At: now})
	c.mu.Unlock()

	c.logger.Info("Job claimed",
		slog.String("job_id", jobID),
		slog.String("claimant", claimant),
	)
	c.flush(ctx, fx)
	return nil
}

// AssignProvider binds a CLAIMED job to an eligible IDLE node: the job moves
// to ASSIGNED and the node to BUSY as one atomic unit. Every check runs
// before the first mutation, so a failure leaves both records untouched.
// Only the job owner or the configured arbiter may assign.
func (c *Coordinator) AssignProvider(ctx context.Context, jobID, nodeID, caller string) error {
	fx := &sideEffects{}

	c.mu.Lock()
	job, err := c.jobs.Get(jobID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if caller != job.Owner && (c.arbiter == "" || caller != c.arbiter) {
		c.mu.Unlock()
		return domain.ErrUnauthorizedCaller
	}

	now := c.clock.Now()
	if job.Active() && !now.Before(job.Deadline) {
		c.expireLocked(job, now, fx)
		c.mu.Unlock()
		c.flush(ctx, fx)
		return domain.ErrInvalidState
	}
	if job.State != domain.JobStateClaimed {
		c.mu.Unlock()
		return domain.ErrInvalidState
	}

	node, err := c.nodes.Get(nodeID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if !Eligible(node, job.RequiredSpecs, job.MinMemoryGB) {
		c.mu.Unlock()
		return domain.ErrNodeNotEligible
	}

	// All checks passed; both mutations commit together under the lock.
	if err := c.jobs.Transition(jobID, []string{domain.JobStateClaimed}, domain.JobStateAssigned); err != nil {
		c.mu.Unlock()
		return err
	}
	job.AssignedProvider = node.Owner
	job.AssignedNode = node.NodeID
	job.UpdatedAt = now
	node.Status = domain.NodeStatusBusy
	node.ActiveJobID = job.JobID

	fx.job(job)
	fx.node(node)
	fx.event(Event{Type: EventJobAssigned, JobID: jobID, NodeID: nodeID, Provider: node.Owner, At: now})
	c.mu.Unlock()

	c.logger.Info("Provider assigned",
		slog.String("job_id", jobID),
		slog.String("node_id", nodeID),
		slog.String("provider", job.AssignedProvider),
	)
	c.flush(ctx, fx)
	return nil
}

// SubmitResult records the result hash for an ASSIGNED job. Only the
// assigned provider may submit, and only once: the state machine forbids a
// second RESULT_SUBMITTED transition.
func (c *Coordinator) SubmitResult(ctx context.Context, jobID, resultHash, caller string) error {
	fx := &sideEffects{}

	c.mu.Lock()
	job, err := c.jobs.Get(jobID)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	now := c.clock.Now()
	if job.Active() && !now.Before(job.Deadline) {
		c.expireLocked(job, now, fx)
		c.mu.Unlock()
		c.flush(ctx, fx)
		return domain.ErrInvalidState
	}
	if job.State != domain.JobStateAssigned {
		c.mu.Unlock()
		return domain.ErrInvalidState
	}
	if caller != job.AssignedProvider {
		c.mu.Unlock()
		return domain.ErrUnauthorizedCaller
	}

	if err := c.jobs.Transition(jobID, []string{domain.JobStateAssigned}, domain.JobStateResultSubmitted); err != nil {
		c.mu.Unlock()
		return err
	}
	job.ResultHash = resultHash
	job.UpdatedAt = now
	fx.job(job)
	fx.event(Event{Type: EventJobResultSubmitted, JobID: jobID, Provider: caller, ResultHash: resultHash, At: now})
	c.mu.Unlock()

	c.logger.Info("Result submitted",
		slog.String("job_id", jobID),
		slog.String("provider", caller),
		slog.String("result_hash", resultHash),
	)
	c.flush(ctx, fx)
	return nil
}

// Release settles the escrow to the assigned provider and completes the job.
// Only the owner may release, and only from RESULT_SUBMITTED.
func (c *Coordinator) Release(ctx context.Context, jobID, caller string) error {
	fx := &sideEffects{}

	c.mu.Lock()
	job, err := c.jobs.Get(jobID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if caller != job.Owner {
		c.mu.Unlock()
		return domain.ErrUnauthorizedCaller
	}
	if job.State != domain.JobStateResultSubmitted {
		c.mu.Unlock()
		return domain.ErrInvalidState
	}

	amount, err := c.ledger.Release(jobID, job.AssignedProvider)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	now := c.clock.Now()
	_ = c.jobs.Transition(jobID, []string{domain.JobStateResultSubmitted}, domain.JobStateReleased)
	job.Completed = true
	job.UpdatedAt = now
	fx.job(job)

	if c.freeNodeOnRelease && job.AssignedNode != "" {
		if node, err := c.nodes.Get(job.AssignedNode); err == nil && node.ActiveJobID == jobID {
			node.Status = domain.NodeStatusIdle
			node.ActiveJobID = ""
			fx.node(node)
		}
	}

	entry, _ := c.ledger.Entry(jobID)
	fx.entry(entry)
	fx.event(Event{Type: EventJobReleased, JobID: jobID, Provider: job.AssignedProvider, Amount: amount, At: now})
	c.mu.Unlock()

	c.logger.Info("Job released",
		slog.String("job_id", jobID),
		slog.String("provider", job.AssignedProvider),
		slog.Int64("amount", amount),
	)
	c.flush(ctx, fx)
	return nil
}

// ExtendDeadline moves the deadline forward on a job that has not yet
// expired. The new deadline must be strictly later than the current one.
func (c *Coordinator) ExtendDeadline(ctx context.Context, jobID string, newDeadline time.Time, caller string) error {
	fx := &sideEffects{}

	c.mu.Lock()
	job, err := c.jobs.Get(jobID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if caller != job.Owner {
		c.mu.Unlock()
		return domain.ErrUnauthorizedCaller
	}

	now := c.clock.Now()
	if job.Active() && !now.Before(job.Deadline) {
		c.expireLocked(job, now, fx)
		c.mu.Unlock()
		c.flush(ctx, fx)
		return domain.ErrInvalidState
	}
	if !job.Active() {
		c.mu.Unlock()
		return domain.ErrInvalidState
	}
	if !newDeadline.After(job.Deadline) {
		c.mu.Unlock()
		return domain.ErrInvalidDeadline
	}

	job.Deadline = newDeadline
	job.UpdatedAt = now
	fx.job(job)
	c.mu.Unlock()

	c.logger.Info("Deadline extended",
		slog.String("job_id", jobID),
		slog.Time("new_deadline", newDeadline),
	)
	c.flush(ctx, fx)
	return nil
}

// SetNodeOffline marks an IDLE node OFFLINE so it stops matching. Only the
// node owner may do this; a BUSY node keeps its active job until settlement.
func (c *Coordinator) SetNodeOffline(ctx context.Context, nodeID, caller string) error {
	fx := &sideEffects{}

	c.mu.Lock()
	node, err := c.nodes.Get(nodeID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if caller != node.Owner {
		c.mu.Unlock()
		return domain.ErrUnauthorizedCaller
	}
	if node.Status == domain.NodeStatusBusy {
		c.mu.Unlock()
		return domain.ErrInvalidState
	}

	node.Status = domain.NodeStatusOffline
	fx.node(node)
	c.mu.Unlock()

	c.logger.Info("Node marked offline", slog.String("node_id", nodeID))
	c.flush(ctx, fx)
	return nil
}

// ExpireOverdue transitions every overdue PENDING/CLAIMED/ASSIGNED job to
// EXPIRED, refunds its escrow and frees its node. Re-running it over
// already-expired jobs is a no-op, so the deadline monitor can call it on
// every tick. Returns the ids of the jobs expired in this pass.
func (c *Coordinator) ExpireOverdue(ctx context.Context) []string {
	fx := &sideEffects{}
	var expired []string

	c.mu.Lock()
	now := c.clock.Now()
	for _, job := range c.jobs.List() {
		if job.Active() && !now.Before(job.Deadline) {
			c.expireLocked(job, now, fx)
			expired = append(expired, job.JobID)
		}
	}
	c.mu.Unlock()

	c.flush(ctx, fx)
	return expired
}

// expireLocked performs the expiry transition for a single overdue job.
// Caller holds the write lock and has verified the job is active and
// overdue. A refund that finds the entry already settled lost a race with
// Release and is swallowed as a no-op.
func (c *Coordinator) expireLocked(job *domain.Job, now time.Time, fx *sideEffects) {
	_ = c.jobs.Transition(job.JobID, []string{
		domain.JobStatePending, domain.JobStateClaimed, domain.JobStateAssigned,
	}, domain.JobStateExpired)
	job.UpdatedAt = now
	fx.job(job)

	payer, amount, err := c.ledger.Refund(job.JobID)
	switch {
	case err == nil:
		if entry, e := c.ledger.Entry(job.JobID); e == nil {
			fx.entry(entry)
		}
		c.logger.Info("Job expired, escrow refunded",
			slog.String("job_id", job.JobID),
			slog.String("payer", payer),
			slog.Int64("amount", amount),
		)
	case errors.Is(err, domain.ErrAlreadySettled):
		c.logger.Debug("Expiry refund skipped, escrow already settled",
			slog.String("job_id", job.JobID),
		)
	default:
		c.logger.Error("Expiry refund failed",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
	}

	if job.AssignedNode != "" {
		if node, err := c.nodes.Get(job.AssignedNode); err == nil && node.ActiveJobID == job.JobID {
			node.Status = domain.NodeStatusIdle
			node.ActiveJobID = ""
			fx.node(node)
		}
	}

	fx.event(Event{Type: EventJobExpired, JobID: job.JobID, Owner: job.Owner, At: now})
}

// GetJob returns a snapshot of a job.
func (c *Coordinator) GetJob(jobID string) (*domain.Job, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	job, err := c.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

// ListJobs returns snapshots of all jobs in creation order.
func (c *Coordinator) ListJobs() []*domain.Job {
	c.mu.RLock()
	defer c.mu.RUnlock()

	jobs := c.jobs.List()
	out := make([]*domain.Job, len(jobs))
	for i, job := range jobs {
		out[i] = job.Clone()
	}
	return out
}

// ListMyJobs returns the jobs the caller owns or is assigned to, in
// creation order.
func (c *Coordinator) ListMyJobs(caller string) []*domain.Job {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*domain.Job
	for _, job := range c.jobs.List() {
		if job.Owner == caller || (job.AssignedProvider != "" && job.AssignedProvider == caller) {
			out = append(out, job.Clone())
		}
	}
	return out
}

// ListNodes returns snapshots of all nodes in registration order.
func (c *Coordinator) ListNodes() []*domain.Node {
	c.mu.RLock()
	defer c.mu.RUnlock()

	nodes := c.nodes.List()
	out := make([]*domain.Node, len(nodes))
	for i, node := range nodes {
		out[i] = node.Clone()
	}
	return out
}

// GetNode returns a snapshot of a node.
func (c *Coordinator) GetNode(nodeID string) (*domain.Node, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	node, err := c.nodes.Get(nodeID)
	if err != nil {
		return nil, err
	}
	return node.Clone(), nil
}

// EligibleNodes returns snapshots of the idle nodes that could take the job,
// in registration order.
func (c *Coordinator) EligibleNodes(jobID string) ([]*domain.Node, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	job, err := c.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	matches := c.nodes.FindEligible(job.RequiredSpecs, job.MinMemoryGB)
	out := make([]*domain.Node, len(matches))
	for i, node := range matches {
		out[i] = node.Clone()
	}
	return out, nil
}

// GetEscrowEntry returns a snapshot of a job's escrow entry.
func (c *Coordinator) GetEscrowEntry(jobID string) (*domain.EscrowEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, err := c.ledger.Entry(jobID)
	if err != nil {
		return nil, err
	}
	return entry.Clone(), nil
}

// Restore reloads journaled state on startup. Funds do not move: debits and
// credits already happened in the previous process lifetime.
func (c *Coordinator) Restore(jobs []*domain.Job, nodes []*domain.Node, entries []*domain.EscrowEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, job := range jobs {
		if err := c.jobs.Create(job); err != nil {
			c.logger.Warn("Skipping duplicate job during restore", slog.String("job_id", job.JobID))
		}
	}
	for _, node := range nodes {
		status := node.Status
		if err := c.nodes.Register(node); err != nil {
			c.logger.Warn("Skipping duplicate node during restore", slog.String("node_id", node.NodeID))
			continue
		}
		// Register resets status to IDLE for fresh nodes; put back what was journaled.
		node.Status = status
	}
	for _, entry := range entries {
		c.ledger.Restore(entry)
	}

	c.logger.Info("Coordinator state restored",
		slog.Int("jobs", len(jobs)),
		slog.Int("nodes", len(nodes)),
		slog.Int("escrow_entries", len(entries)),
	)
}
