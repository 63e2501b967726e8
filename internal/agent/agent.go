package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gridmesh/gpumarket/internal/api/dto"
	"github.com/gridmesh/gpumarket/internal/coordinator"
	"github.com/gridmesh/gpumarket/shared/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Config holds node agent configuration
type Config struct {
	Logger          *slog.Logger
	RabbitClient    *rabbitmq.Client
	Client          *Client
	Executor        *Executor
	NodeID          string
	ProviderAddress string
	GPUName         string
	GPUSpecs        string
	MemoryGB        int
}

// Agent is the provider-side daemon. It registers its node with the
// coordinator, then consumes lifecycle events: it claims matching pending
// jobs and executes the jobs assigned to its node, submitting the result
// hash back over HTTP.
type Agent struct {
	logger       *slog.Logger
	rabbitClient *rabbitmq.Client
	client       *Client
	executor     *Executor

	nodeID          string
	providerAddress string
	gpuName         string
	gpuSpecs        string
	memoryGB        int
}

// NewAgent creates a new agent instance
func NewAgent(cfg *Config) *Agent {
	return &Agent{
		logger:          cfg.Logger,
		rabbitClient:    cfg.RabbitClient,
		client:          cfg.Client,
		executor:        cfg.Executor,
		nodeID:          cfg.NodeID,
		providerAddress: cfg.ProviderAddress,
		gpuName:         cfg.GPUName,
		gpuSpecs:        cfg.GPUSpecs,
		memoryGB:        cfg.MemoryGB,
	}
}

// Start registers the node and consumes events until the context is canceled.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.register(ctx); err != nil {
		return fmt.Errorf("failed to register node: %w", err)
	}

	consumerTag := fmt.Sprintf("agent-%s-%s", a.nodeID, uuid.New().String()[:8])
	deliveries, err := a.rabbitClient.Consume(consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	a.logger.Info("Agent started",
		slog.String("node_id", a.nodeID),
		slog.String("provider", a.providerAddress),
		slog.String("consumer_tag", consumerTag),
	)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Agent stopping - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				a.logger.Warn("RabbitMQ delivery channel closed")
				return fmt.Errorf("delivery channel closed")
			}
			a.handleDelivery(ctx, delivery)
		}
	}
}

// register announces this node to the coordinator. An id conflict means a
// previous run already registered it; that is not an error.
func (a *Agent) register(ctx context.Context) error {
	node, err := a.client.RegisterNode(ctx, dto.RegisterNodeRequest{
		NodeID:   a.nodeID,
		GPUName:  a.gpuName,
		GPUSpecs: a.gpuSpecs,
		MemoryGB: a.memoryGB,
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 409 {
			a.logger.Info("Node already registered",
				slog.String("node_id", a.nodeID),
			)
			return nil
		}
		return err
	}

	// The coordinator generates an id when the config omits one.
	a.nodeID = node.NodeID
	a.logger.Info("Node registered",
		slog.String("node_id", a.nodeID),
		slog.String("gpu_specs", a.gpuSpecs),
	)
	return nil
}

func (a *Agent) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	var event coordinator.Event
	if err := json.Unmarshal(delivery.Body, &event); err != nil {
		a.logger.Error("Failed to parse event JSON",
			slog.String("error", err.Error()),
			slog.String("body", string(delivery.Body)),
		)
		// Malformed messages can never succeed; drop without requeue.
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			a.logger.Error("Failed to NACK malformed message",
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	err := a.handleEvent(ctx, event)
	if err != nil {
		requeue := a.shouldRequeue(err)
		a.logger.Error("Event handling failed",
			slog.String("event_type", event.Type),
			slog.String("job_id", event.JobID),
			slog.Bool("requeue", requeue),
			slog.String("error", err.Error()),
		)
		if nackErr := delivery.Nack(false, requeue); nackErr != nil {
			a.logger.Error("Failed to NACK message",
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	if ackErr := delivery.Ack(false); ackErr != nil {
		a.logger.Error("Failed to ACK message",
			slog.String("error", ackErr.Error()),
		)
	}
}

// handleEvent reacts to the two event types the agent cares about. All other
// lifecycle events are acknowledged and ignored.
func (a *Agent) handleEvent(ctx context.Context, event coordinator.Event) error {
	switch event.Type {
	case coordinator.EventJobCreated:
		return a.maybeClaim(ctx, event.JobID)
	case coordinator.EventJobAssigned:
		if event.NodeID != a.nodeID {
			return nil
		}
		return a.runAssigned(ctx, event.JobID)
	default:
		return nil
	}
}

// maybeClaim claims a freshly created job when this node matches its
// requirements. Losing the claim race to another provider is expected.
func (a *Agent) maybeClaim(ctx context.Context, jobID string) error {
	job, err := a.client.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to fetch job %s: %w", jobID, err)
	}

	if job.RequiredSpecs != a.gpuSpecs || a.memoryGB < job.MinMemoryGB {
		a.logger.Debug("Job does not match this node",
			slog.String("job_id", jobID),
			slog.String("required_specs", job.RequiredSpecs),
		)
		return nil
	}

	if err := a.client.ClaimJob(ctx, jobID); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			a.logger.Info("Claim lost or rejected",
				slog.String("job_id", jobID),
				slog.Int("status", apiErr.StatusCode),
			)
			return nil
		}
		return fmt.Errorf("failed to claim job %s: %w", jobID, err)
	}

	a.logger.Info("Job claimed", slog.String("job_id", jobID))
	return nil
}

// runAssigned executes a job assigned to this node and submits the result.
func (a *Agent) runAssigned(ctx context.Context, jobID string) error {
	job, err := a.client.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to fetch job %s: %w", jobID, err)
	}

	resultHash, err := a.executor.Execute(ctx, jobID, job.ContainerRef, job.DatasetRef)
	if err != nil {
		return fmt.Errorf("execution failed for job %s: %w", jobID, err)
	}

	if err := a.client.SubmitResult(ctx, jobID, resultHash); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			// Expired or already settled while we were executing; nothing to retry.
			a.logger.Warn("Result submission rejected",
				slog.String("job_id", jobID),
				slog.Int("status", apiErr.StatusCode),
			)
			return nil
		}
		return fmt.Errorf("failed to submit result for job %s: %w", jobID, err)
	}

	a.logger.Info("Result submitted",
		slog.String("job_id", jobID),
		slog.String("result_hash", resultHash),
	)
	return nil
}

// shouldRequeue keeps transient failures on the queue and drops permanent ones.
func (a *Agent) shouldRequeue(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	// Network-level failures are worth retrying.
	return true
}
