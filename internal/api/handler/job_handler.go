package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gridmesh/gpumarket/internal/api/dto"
	"github.com/gridmesh/gpumarket/internal/coordinator"
)

// CreateJob handles POST /api/v1/jobs
// Creates a new compute job and escrows its bounty from the caller's balance
func (h *MarketHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	job, err := h.coord.CreateJob(c.Request.Context(), coordinator.CreateJobParams{
		JobID:         req.JobID,
		Owner:         caller(c),
		DatasetRef:    req.DatasetRef,
		ContainerRef:  req.ContainerRef,
		Deadline:      time.Unix(req.Deadline, 0),
		RequiredSpecs: req.RequiredSpecs,
		MinMemoryGB:   req.MinMemoryGB,
		BountyAmount:  req.BountyAmount,
	})
	if err != nil {
		h.logger.Error("Failed to create job",
			slog.String("job_id", req.JobID),
			slog.String("error", err.Error()),
		)
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, jobDTO(job))
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *MarketHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.coord.GetJob(jobID)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, jobDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Returns all jobs in creation order
func (h *MarketHandler) ListJobs(c *gin.Context) {
	jobs := h.coord.ListJobs()

	out := make([]dto.JobDTO, len(jobs))
	for i, job := range jobs {
		out[i] = jobDTO(job)
	}
	c.JSON(http.StatusOK, dto.ListJobsResponse{Jobs: out})
}

// ListMyJobs handles GET /api/v1/jobs/mine
// Returns the jobs the caller owns or is assigned to
func (h *MarketHandler) ListMyJobs(c *gin.Context) {
	jobs := h.coord.ListMyJobs(caller(c))

	out := make([]dto.JobDTO, len(jobs))
	for i, job := range jobs {
		out[i] = jobDTO(job)
	}
	c.JSON(http.StatusOK, dto.ListJobsResponse{Jobs: out})
}

// ClaimJob handles POST /api/v1/jobs/:job_id/claim
// Records the caller as the job's candidate provider
func (h *MarketHandler) ClaimJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if err := h.coord.ClaimJob(c.Request.Context(), jobID, caller(c)); err != nil {
		h.logger.Warn("Claim rejected",
			slog.String("job_id", jobID),
			slog.String("claimant", caller(c)),
			slog.String("error", err.Error()),
		)
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "claimant": caller(c)})
}

// AssignProvider handles POST /api/v1/jobs/:job_id/assign
// Binds the job to an eligible idle node
func (h *MarketHandler) AssignProvider(c *gin.Context) {
	jobID := c.Param("job_id")

	var req dto.AssignProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.coord.AssignProvider(c.Request.Context(), jobID, req.NodeID, caller(c)); err != nil {
		h.logger.Warn("Assignment rejected",
			slog.String("job_id", jobID),
			slog.String("node_id", req.NodeID),
			slog.String("error", err.Error()),
		)
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "node_id": req.NodeID})
}

// SubmitResult handles POST /api/v1/jobs/:job_id/result
// Records the result hash from the assigned provider
func (h *MarketHandler) SubmitResult(c *gin.Context) {
	jobID := c.Param("job_id")

	var req dto.SubmitResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.coord.SubmitResult(c.Request.Context(), jobID, req.ResultHash, caller(c)); err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "result_hash": req.ResultHash})
}

// Release handles POST /api/v1/jobs/:job_id/release
// Settles the escrowed bounty to the assigned provider
func (h *MarketHandler) Release(c *gin.Context) {
	jobID := c.Param("job_id")

	if err := h.coord.Release(c.Request.Context(), jobID, caller(c)); err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "released": true})
}

// ExtendDeadline handles POST /api/v1/jobs/:job_id/extend
func (h *MarketHandler) ExtendDeadline(c *gin.Context) {
	jobID := c.Param("job_id")

	var req dto.ExtendDeadlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	newDeadline := time.Unix(req.NewDeadline, 0)
	if err := h.coord.ExtendDeadline(c.Request.Context(), jobID, newDeadline, caller(c)); err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "deadline": req.NewDeadline})
}

// GetEscrow handles GET /api/v1/jobs/:job_id/escrow
func (h *MarketHandler) GetEscrow(c *gin.Context) {
	jobID := c.Param("job_id")

	entry, err := h.coord.GetEscrowEntry(jobID)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, escrowDTO(entry))
}

// EligibleNodes handles GET /api/v1/jobs/:job_id/eligible-nodes
// Returns the idle nodes that match the job's requirements
func (h *MarketHandler) EligibleNodes(c *gin.Context) {
	jobID := c.Param("job_id")

	nodes, err := h.coord.EligibleNodes(jobID)
	if err != nil {
		fail(c, err)
		return
	}

	out := make([]dto.NodeDTO, len(nodes))
	for i, node := range nodes {
		out[i] = nodeDTO(node)
	}
	c.JSON(http.StatusOK, dto.ListNodesResponse{Nodes: out})
}
