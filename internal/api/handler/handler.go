package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gridmesh/gpumarket/internal/api/dto"
	"github.com/gridmesh/gpumarket/internal/coordinator"
	"github.com/gridmesh/gpumarket/internal/coordinator/domain"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Coordinator *coordinator.Coordinator
	Bank        *coordinator.MemoryBank
}

// MarketHandler handles marketplace HTTP requests
type MarketHandler struct {
	logger *slog.Logger
	coord  *coordinator.Coordinator
	bank   *coordinator.MemoryBank
}

// NewMarketHandler creates a new MarketHandler instance
func NewMarketHandler(deps *Dependencies) *MarketHandler {
	return &MarketHandler{
		logger: deps.Logger,
		coord:  deps.Coordinator,
		bank:   deps.Bank,
	}
}

// CallerKey is the gin context key the identity middleware stores the
// verified caller address under.
const CallerKey = "caller"

func caller(c *gin.Context) string {
	return c.GetString(CallerKey)
}

// statusFor maps coordinator errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrJobNotFound),
		errors.Is(err, domain.ErrNodeNotFound),
		errors.Is(err, domain.ErrUnknownEscrowEntry):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateJobID),
		errors.Is(err, domain.ErrDuplicateNodeID),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrDeadlinePassed),
		errors.Is(err, domain.ErrNodeNotEligible),
		errors.Is(err, domain.ErrAlreadySettled):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrUnauthorizedCaller):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidDeadline),
		errors.Is(err, domain.ErrInvalidBounty):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func jobDTO(job *domain.Job) dto.JobDTO {
	return dto.JobDTO{
		JobID:            job.JobID,
		Owner:            job.Owner,
		DatasetRef:       job.DatasetRef,
		ContainerRef:     job.ContainerRef,
		BountyAmount:     job.BountyAmount,
		Deadline:         job.Deadline.Unix(),
		RequiredSpecs:    job.RequiredSpecs,
		MinMemoryGB:      job.MinMemoryGB,
		State:            job.State,
		Claimant:         job.Claimant,
		AssignedProvider: job.AssignedProvider,
		AssignedNode:     job.AssignedNode,
		ResultHash:       job.ResultHash,
		Completed:        job.Completed,
		CreatedAt:        job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        job.UpdatedAt.Format(time.RFC3339),
	}
}

func nodeDTO(node *domain.Node) dto.NodeDTO {
	return dto.NodeDTO{
		NodeID:       node.NodeID,
		Owner:        node.Owner,
		GPUName:      node.GPUName,
		GPUSpecs:     node.GPUSpecs,
		MemoryGB:     node.MemoryGB,
		Status:       node.Status,
		ActiveJobID:  node.ActiveJobID,
		RegisteredAt: node.RegisteredAt.Format(time.RFC3339),
	}
}

func escrowDTO(entry *domain.EscrowEntry) dto.EscrowDTO {
	out := dto.EscrowDTO{
		JobID:       entry.JobID,
		HeldAmount:  entry.HeldAmount,
		Payer:       entry.Payer,
		Settled:     entry.Settled,
		Beneficiary: entry.Beneficiary,
	}
	if entry.SettledAt != nil {
		out.SettledAt = entry.SettledAt.Format(time.RFC3339)
	}
	return out
}
