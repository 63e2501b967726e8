package coordinator

import (
	"github.com/gridmesh/gpumarket/internal/coordinator/domain"
)

// JobStore owns all job records. It is not synchronized itself: every access
// happens under the coordinator lock, which also covers the node registry and
// the escrow ledger so cross-entity mutations stay atomic.
type JobStore struct {
	jobs  map[string]*domain.Job
	order []string
}

func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*domain.Job),
	}
}

// Create inserts a new job record. Fails with ErrDuplicateJobID if the id is taken.
func (s *JobStore) Create(job *domain.Job) error {
	if _, exists := s.jobs[job.JobID]; exists {
		return domain.ErrDuplicateJobID
	}
	s.jobs[job.JobID] = job
	s.order = append(s.order, job.JobID)
	return nil
}

// Get returns the live job record, or ErrJobNotFound.
func (s *JobStore) Get(jobID string) (*domain.Job, error) {
	job, exists := s.jobs[jobID]
	if !exists {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

// List returns all jobs in creation order.
func (s *JobStore) List() []*domain.Job {
	out := make([]*domain.Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id])
	}
	return out
}

// ListByOwner returns the owner's jobs in creation order.
func (s *JobStore) ListByOwner(owner string) []*domain.Job {
	var out []*domain.Job
	for _, id := range s.order {
		if job := s.jobs[id]; job.Owner == owner {
			out = append(out, job)
		}
	}
	return out
}

// Transition performs a compare-and-swap on the job state: the job moves to
// toState only if its current state is one of fromStates. Returns
// ErrInvalidState otherwise. Under the coordinator lock this is the single
// point that enforces the lifecycle state machine, including the
// one-successful-claim guarantee.
func (s *JobStore) Transition(jobID string, fromStates []string, toState string) error {
	job, exists := s.jobs[jobID]
	if !exists {
		return domain.ErrJobNotFound
	}

	for _, from := range fromStates {
		if job.State == from {
			job.State = toState
			return nil
		}
	}
	return domain.ErrInvalidState
}
