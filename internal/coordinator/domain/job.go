package domain

import "time"

// Job lifecycle states
const (
	JobStatePending         = "PENDING"
	JobStateClaimed         = "CLAIMED"
	JobStateAssigned        = "ASSIGNED"
	JobStateResultSubmitted = "RESULT_SUBMITTED"
	JobStateReleased        = "RELEASED"
	JobStateExpired         = "EXPIRED"
)

// Job represents a unit of compute work with a bounty held in escrow.
// BountyAmount is denominated in the smallest currency unit.
type Job struct {
	JobID            string
	Owner            string
	DatasetRef       string
	ContainerRef     string
	BountyAmount     int64
	Deadline         time.Time
	RequiredSpecs    string
	MinMemoryGB      int
	State            string
	Claimant         string
	AssignedProvider string
	AssignedNode     string
	ResultHash       string
	Completed        bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Terminal reports whether the job can no longer change state.
func (j *Job) Terminal() bool {
	return j.State == JobStateReleased || j.State == JobStateExpired
}

// Active reports whether the job still counts against its deadline.
func (j *Job) Active() bool {
	switch j.State {
	case JobStatePending, JobStateClaimed, JobStateAssigned:
		return true
	}
	return false
}

// Clone returns a copy safe to hand to readers outside the coordinator lock.
func (j *Job) Clone() *Job {
	c := *j
	return &c
}
