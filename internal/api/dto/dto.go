package dto

type CreateJobRequest struct {
	JobID         string `json:"job_id" binding:"required"`
	DatasetRef    string `json:"dataset_ref" binding:"required"`
	ContainerRef  string `json:"container_ref" binding:"required"`
	Deadline      int64  `json:"deadline" binding:"required"` // unix seconds
	RequiredSpecs string `json:"required_specs" binding:"required"`
	MinMemoryGB   int    `json:"min_memory_gb"`
	BountyAmount  int64  `json:"bounty_amount" binding:"required"`
}

type RegisterNodeRequest struct {
	NodeID   string `json:"node_id"` // optional, generated when empty
	GPUName  string `json:"gpu_name"`
	GPUSpecs string `json:"gpu_specs" binding:"required"`
	MemoryGB int    `json:"memory_gb" binding:"required"`
}

type AssignProviderRequest struct {
	NodeID string `json:"node_id" binding:"required"`
}

type SubmitResultRequest struct {
	ResultHash string `json:"result_hash" binding:"required"`
}

type ExtendDeadlineRequest struct {
	NewDeadline int64 `json:"new_deadline" binding:"required"` // unix seconds
}

type DepositRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

type JobDTO struct {
	JobID            string `json:"job_id"`
	Owner            string `json:"owner"`
	DatasetRef       string `json:"dataset_ref"`
	ContainerRef     string `json:"container_ref"`
	BountyAmount     int64  `json:"bounty_amount"`
	Deadline         int64  `json:"deadline"`
	RequiredSpecs    string `json:"required_specs"`
	MinMemoryGB      int    `json:"min_memory_gb"`
	State            string `json:"state"`
	Claimant         string `json:"claimant,omitempty"`
	AssignedProvider string `json:"assigned_provider,omitempty"`
	AssignedNode     string `json:"assigned_node,omitempty"`
	ResultHash       string `json:"result_hash,omitempty"`
	Completed        bool   `json:"completed"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

type NodeDTO struct {
	NodeID       string `json:"node_id"`
	Owner        string `json:"owner"`
	GPUName      string `json:"gpu_name"`
	GPUSpecs     string `json:"gpu_specs"`
	MemoryGB     int    `json:"memory_gb"`
	Status       string `json:"status"`
	ActiveJobID  string `json:"active_job_id,omitempty"`
	RegisteredAt string `json:"registered_at"`
}

type EscrowDTO struct {
	JobID       string `json:"job_id"`
	HeldAmount  int64  `json:"held_amount"`
	Payer       string `json:"payer"`
	Settled     bool   `json:"settled"`
	Beneficiary string `json:"beneficiary,omitempty"`
	SettledAt   string `json:"settled_at,omitempty"`
}

type ListJobsResponse struct {
	Jobs []JobDTO `json:"jobs"`
}

type ListNodesResponse struct {
	Nodes []NodeDTO `json:"nodes"`
}

type BalanceResponse struct {
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}
