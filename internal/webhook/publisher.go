package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
)

// Publisher creates webhook delivery records when events occur.
type Publisher struct {
	repo   *Repository
	logger *slog.Logger
}

// NewPublisher creates a new webhook publisher.
func NewPublisher(repo *Repository, logger *slog.Logger) *Publisher {
	return &Publisher{
		repo:   repo,
		logger: logger.With("component", "webhook.publisher"),
	}
}

// Publish queues one delivery of an event for every active endpoint of the
// developer that subscribes to it. Delivery happens in the Worker.
func (p *Publisher) Publish(ctx context.Context, developerID string, eventType model.EventType, data map[string]any) error {
	if !model.IsValidEventType(eventType) {
		return fmt.Errorf("%w: %s", ErrInvalidEventType, eventType)
	}

	endpoints, err := p.repo.ListActiveEndpointsByDeveloperAndEvent(ctx, developerID, eventType)
	if err != nil {
		return fmt.Errorf("list active endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		return nil
	}

	now := time.Now().UTC()
	payload := model.WebhookPayload{
		EventType: eventType,
		EventID:   ulid.Make().String(),
		Timestamp: now,
		Data:      data,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	for _, endpoint := range endpoints {
		delivery := &model.WebhookDelivery{
			ID:          ulid.Make().String(),
			EndpointID:  endpoint.ID,
			EventID:     payload.EventID,
			EventType:   eventType,
			PayloadJSON: string(payloadJSON),
			Status:      model.DeliveryStatusPending,
			MaxAttempts: DefaultMaxAttempts,
			NextRetryAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := p.repo.CreateDelivery(ctx, delivery); err != nil {
			p.logger.Warn("failed to create delivery",
				"endpoint_id", endpoint.ID,
				"event_id", payload.EventID,
				"error", err,
			)
			continue
		}

		p.logger.Debug("webhook delivery created",
			"delivery_id", delivery.ID,
			"endpoint_id", endpoint.ID,
			"event_type", eventType,
		)
	}
	return nil
}
