package journal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gridmesh/gpumarket/internal/coordinator/domain"
	"github.com/gridmesh/gpumarket/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

// Journal persists coordinator state to PostgreSQL. Writes are idempotent
// upserts keyed by entity id, so replaying a save after a crash or a retried
// flush cannot duplicate rows.
type Journal struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func New(pg *postgresql.Client, logger *slog.Logger) *Journal {
	return &Journal{
		db:     pg.GetDB(),
		logger: logger,
	}
}

// EnsureSchema creates the journal tables if they do not exist.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			job_id            TEXT PRIMARY KEY,
			owner             TEXT NOT NULL,
			dataset_ref       TEXT NOT NULL DEFAULT '',
			container_ref     TEXT NOT NULL DEFAULT '',
			bounty_amount     BIGINT NOT NULL,
			deadline          TIMESTAMPTZ NOT NULL,
			required_specs    TEXT NOT NULL DEFAULT '',
			min_memory_gb     INT NOT NULL DEFAULT 0,
			state             TEXT NOT NULL,
			claimant          TEXT,
			assigned_provider TEXT,
			assigned_node     TEXT,
			result_hash       TEXT,
			completed         BOOLEAN NOT NULL DEFAULT FALSE,
			created_at        TIMESTAMPTZ NOT NULL,
			updated_at        TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS nodes (
			node_id       TEXT PRIMARY KEY,
			owner         TEXT NOT NULL,
			gpu_name      TEXT NOT NULL DEFAULT '',
			gpu_specs     TEXT NOT NULL DEFAULT '',
			memory_gb     INT NOT NULL DEFAULT 0,
			status        TEXT NOT NULL,
			active_job_id TEXT,
			registered_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS escrow_entries (
			job_id      TEXT PRIMARY KEY,
			held_amount BIGINT NOT NULL,
			payer       TEXT NOT NULL,
			settled     BOOLEAN NOT NULL DEFAULT FALSE,
			beneficiary TEXT,
			settled_at  TIMESTAMPTZ
		)`,
	}

	for _, stmt := range statements {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure journal schema: %w", err)
		}
	}
	return nil
}

// SaveJob upserts a job record.
func (j *Journal) SaveJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, owner, dataset_ref, container_ref, bounty_amount, deadline,
			required_specs, min_memory_gb, state, claimant, assigned_provider,
			assigned_node, result_hash, completed, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
		ON CONFLICT (job_id) DO UPDATE SET
			state             = EXCLUDED.state,
			deadline          = EXCLUDED.deadline,
			claimant          = EXCLUDED.claimant,
			assigned_provider = EXCLUDED.assigned_provider,
			assigned_node     = EXCLUDED.assigned_node,
			result_hash       = EXCLUDED.result_hash,
			completed         = EXCLUDED.completed,
			updated_at        = EXCLUDED.updated_at
	`

	_, err := j.db.ExecContext(ctx, query,
		job.JobID,
		job.Owner,
		job.DatasetRef,
		job.ContainerRef,
		job.BountyAmount,
		job.Deadline,
		job.RequiredSpecs,
		job.MinMemoryGB,
		job.State,
		nullable(job.Claimant),
		nullable(job.AssignedProvider),
		nullable(job.AssignedNode),
		nullable(job.ResultHash),
		job.Completed,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// SaveNode upserts a node record.
func (j *Journal) SaveNode(ctx context.Context, node *domain.Node) error {
	query := `
		INSERT INTO nodes (
			node_id, owner, gpu_name, gpu_specs, memory_gb, status, active_job_id, registered_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		ON CONFLICT (node_id) DO UPDATE SET
			status        = EXCLUDED.status,
			active_job_id = EXCLUDED.active_job_id
	`

	_, err := j.db.ExecContext(ctx, query,
		node.NodeID,
		node.Owner,
		node.GPUName,
		node.GPUSpecs,
		node.MemoryGB,
		node.Status,
		nullable(node.ActiveJobID),
		node.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save node: %w", err)
	}
	return nil
}

// SaveEscrowEntry upserts an escrow entry.
func (j *Journal) SaveEscrowEntry(ctx context.Context, entry *domain.EscrowEntry) error {
	query := `
		INSERT INTO escrow_entries (
			job_id, held_amount, payer, settled, beneficiary, settled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		ON CONFLICT (job_id) DO UPDATE SET
			settled     = EXCLUDED.settled,
			beneficiary = EXCLUDED.beneficiary,
			settled_at  = EXCLUDED.settled_at
	`

	_, err := j.db.ExecContext(ctx, query,
		entry.JobID,
		entry.HeldAmount,
		entry.Payer,
		entry.Settled,
		nullable(entry.Beneficiary),
		entry.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save escrow entry: %w", err)
	}
	return nil
}

// LoadJobs returns all journaled jobs in creation order.
func (j *Journal) LoadJobs(ctx context.Context) ([]*domain.Job, error) {
	var rows []jobRow
	query := `
		SELECT job_id, owner, dataset_ref, container_ref, bounty_amount, deadline,
		       required_specs, min_memory_gb, state, claimant, assigned_provider,
		       assigned_node, result_hash, completed, created_at, updated_at
		FROM jobs
		ORDER BY created_at ASC, job_id ASC
	`
	if err := j.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load jobs: %w", err)
	}

	jobs := make([]*domain.Job, len(rows))
	for i := range rows {
		jobs[i] = rows[i].toDomain()
	}
	return jobs, nil
}

// LoadNodes returns all journaled nodes in registration order.
func (j *Journal) LoadNodes(ctx context.Context) ([]*domain.Node, error) {
	var rows []nodeRow
	query := `
		SELECT node_id, owner, gpu_name, gpu_specs, memory_gb, status, active_job_id, registered_at
		FROM nodes
		ORDER BY registered_at ASC, node_id ASC
	`
	if err := j.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load nodes: %w", err)
	}

	nodes := make([]*domain.Node, len(rows))
	for i := range rows {
		nodes[i] = rows[i].toDomain()
	}
	return nodes, nil
}

// LoadEscrowEntries returns all journaled escrow entries.
func (j *Journal) LoadEscrowEntries(ctx context.Context) ([]*domain.EscrowEntry, error) {
	var rows []escrowRow
	query := `
		SELECT job_id, held_amount, payer, settled, beneficiary, settled_at
		FROM escrow_entries
	`
	if err := j.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load escrow entries: %w", err)
	}

	entries := make([]*domain.EscrowEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].toDomain()
	}
	return entries, nil
}
