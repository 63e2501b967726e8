package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gridmesh/gpumarket/internal/coordinator"
	"github.com/gridmesh/gpumarket/shared/rabbitmq"
)

// Publisher delivers coordinator lifecycle events to RabbitMQ as persistent
// JSON messages. Node agents consume them to learn about assignments.
type Publisher struct {
	client *rabbitmq.Client
	logger *slog.Logger
}

func NewPublisher(client *rabbitmq.Client, logger *slog.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger,
	}
}

// Publish implements coordinator.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, event coordinator.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.Type, err)
	}

	p.logger.Debug("Lifecycle event published",
		slog.String("event_type", event.Type),
		slog.String("job_id", event.JobID),
		slog.String("node_id", event.NodeID),
	)
	return nil
}
