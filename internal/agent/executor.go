package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
)

// Executor simulates running a job's container against its dataset. Real
// container execution is a deployment concern; the coordinator only cares
// about the result hash that comes back.
type Executor struct {
	executionTime time.Duration
	logger        *slog.Logger
}

func NewExecutor(executionTime time.Duration, logger *slog.Logger) *Executor {
	if executionTime <= 0 {
		executionTime = 2 * time.Second
	}
	return &Executor{
		executionTime: executionTime,
		logger:        logger,
	}
}

// Execute runs the job and returns its result hash. It respects context
// cancellation so shutdown does not strand a half-finished run.
func (e *Executor) Execute(ctx context.Context, jobID, containerRef, datasetRef string) (string, error) {
	e.logger.Info("Executing job",
		slog.String("job_id", jobID),
		slog.String("container_ref", containerRef),
		slog.String("dataset_ref", datasetRef),
	)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(e.executionTime):
	}

	sum := sha256.Sum256(fmt.Appendf(nil, "%s-%d", jobID, time.Now().UnixNano()))
	resultHash := hex.EncodeToString(sum[:])

	e.logger.Info("Job execution finished",
		slog.String("job_id", jobID),
		slog.String("result_hash", resultHash),
	)
	return resultHash, nil
}
