package coordinator

import (
	"context"
	"time"

	"github.com/gridmesh/gpumarket/internal/coordinator/domain"
)

// Event types published on job and node lifecycle transitions.
const (
	EventJobCreated         = "job.created"
	EventJobClaimed         = "job.claimed"
	EventJobAssigned        = "job.assigned"
	EventJobResultSubmitted = "job.result_submitted"
	EventJobReleased        = "job.released"
	EventJobExpired         = "job.expired"
	EventNodeRegistered     = "node.registered"
)

// Event is the message published after a successful state transition.
type Event struct {
	Type       string    `json:"type"`
	JobID      string    `json:"job_id,omitempty"`
	NodeID     string    `json:"node_id,omitempty"`
	Owner      string    `json:"owner,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	ResultHash string    `json:"result_hash,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	At         time.Time `json:"at"`
}

// EventPublisher delivers lifecycle events to interested parties (node
// agents, dashboards). Publishing is best-effort: failures are logged, never
// surfaced to the caller of the operation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Journal is the persistence collaborator. The coordinator writes every
// mutated record to it after the in-memory mutation commits, and reads the
// full state back on startup. Failures are logged, never surfaced.
type Journal interface {
	SaveJob(ctx context.Context, job *domain.Job) error
	SaveNode(ctx context.Context, node *domain.Node) error
	SaveEscrowEntry(ctx context.Context, entry *domain.EscrowEntry) error
}
