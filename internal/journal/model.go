package journal

import (
	"database/sql"
	"time"

	"github.com/gridmesh/gpumarket/internal/coordinator/domain"
)

type jobRow struct {
	JobID            string         `db:"job_id"`
	Owner            string         `db:"owner"`
	DatasetRef       string         `db:"dataset_ref"`
	ContainerRef     string         `db:"container_ref"`
	BountyAmount     int64          `db:"bounty_amount"`
	Deadline         time.Time      `db:"deadline"`
	RequiredSpecs    string         `db:"required_specs"`
	MinMemoryGB      int            `db:"min_memory_gb"`
	State            string         `db:"state"`
	Claimant         sql.NullString `db:"claimant"`
	AssignedProvider sql.NullString `db:"assigned_provider"`
	AssignedNode     sql.NullString `db:"assigned_node"`
	ResultHash       sql.NullString `db:"result_hash"`
	Completed        bool           `db:"completed"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r *jobRow) toDomain() *domain.Job {
	return &domain.Job{
		JobID:            r.JobID,
		Owner:            r.Owner,
		DatasetRef:       r.DatasetRef,
		ContainerRef:     r.ContainerRef,
		BountyAmount:     r.BountyAmount,
		Deadline:         r.Deadline,
		RequiredSpecs:    r.RequiredSpecs,
		MinMemoryGB:      r.MinMemoryGB,
		State:            r.State,
		Claimant:         r.Claimant.String,
		AssignedProvider: r.AssignedProvider.String,
		AssignedNode:     r.AssignedNode.String,
		ResultHash:       r.ResultHash.String,
		Completed:        r.Completed,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type nodeRow struct {
	NodeID       string         `db:"node_id"`
	Owner        string         `db:"owner"`
	GPUName      string         `db:"gpu_name"`
	GPUSpecs     string         `db:"gpu_specs"`
	MemoryGB     int            `db:"memory_gb"`
	Status       string         `db:"status"`
	ActiveJobID  sql.NullString `db:"active_job_id"`
	RegisteredAt time.Time      `db:"registered_at"`
}

func (r *nodeRow) toDomain() *domain.Node {
	return &domain.Node{
		NodeID:       r.NodeID,
		Owner:        r.Owner,
		GPUName:      r.GPUName,
		GPUSpecs:     r.GPUSpecs,
		MemoryGB:     r.MemoryGB,
		Status:       r.Status,
		ActiveJobID:  r.ActiveJobID.String,
		RegisteredAt: r.RegisteredAt,
	}
}

type escrowRow struct {
	JobID       string         `db:"job_id"`
	HeldAmount  int64          `db:"held_amount"`
	Payer       string         `db:"payer"`
	Settled     bool           `db:"settled"`
	Beneficiary sql.NullString `db:"beneficiary"`
	SettledAt   *time.Time     `db:"settled_at"`
}

func (r *escrowRow) toDomain() *domain.EscrowEntry {
	return &domain.EscrowEntry{
		JobID:       r.JobID,
		HeldAmount:  r.HeldAmount,
		Payer:       r.Payer,
		Settled:     r.Settled,
		Beneficiary: r.Beneficiary.String,
		SettledAt:   r.SettledAt,
	}
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
