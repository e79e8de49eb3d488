package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
)

const (
	// MaxEndpointsPerDeveloper caps live endpoints per developer.
	MaxEndpointsPerDeveloper = 10

	maxEndpointName = 100
)

// ErrNameTooLong is returned for endpoint names over the column width.
var ErrNameTooLong = errors.New("name must be at most 100 characters")

// EndpointService manages developer notification endpoints. Endpoints of
// another developer are reported as missing.
type EndpointService struct {
	repo   *Repository
	policy TargetPolicy
	logger *slog.Logger
}

// NewEndpointService creates a new EndpointService.
func NewEndpointService(repo *Repository, policy TargetPolicy, logger *slog.Logger) *EndpointService {
	return &EndpointService{
		repo:   repo,
		policy: policy,
		logger: logger.With("component", "webhook.endpoints"),
	}
}

// EndpointInput defines a new endpoint. Empty EventTypes subscribes to all.
type EndpointInput struct {
	TargetURL  string
	EventTypes []model.EventType
	Name       string
}

// EndpointUpdate is a partial edit. Nil fields are left unchanged.
type EndpointUpdate struct {
	TargetURL  *string
	EventTypes *[]model.EventType
	Name       *string
	Enabled    *bool
}

// Create registers an endpoint and returns it with its signing secret.
// The secret is only returned here and by RotateSecret.
func (s *EndpointService) Create(ctx context.Context, developerID string, in EndpointInput) (*model.WebhookEndpoint, string, error) {
	if err := s.policy.Check(ctx, in.TargetURL); err != nil {
		return nil, "", err
	}
	eventTypes, err := normalizeEventTypes(in.EventTypes)
	if err != nil {
		return nil, "", err
	}
	name := strings.TrimSpace(in.Name)
	if utf8.RuneCountInString(name) > maxEndpointName {
		return nil, "", ErrNameTooLong
	}

	n, err := s.repo.CountEndpoints(ctx, developerID)
	if err != nil {
		return nil, "", err
	}
	if n >= MaxEndpointsPerDeveloper {
		return nil, "", ErrTooManyEndpoints
	}

	secret, err := NewSecret()
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	endpoint := &model.WebhookEndpoint{
		ID:          ulid.Make().String(),
		DeveloperID: developerID,
		TargetURL:   in.TargetURL,
		Secret:      secret,
		Enabled:     true,
		EventTypes:  eventTypes,
		Name:        name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateEndpoint(ctx, endpoint); err != nil {
		return nil, "", err
	}

	s.logger.Info("webhook endpoint created",
		"endpoint_id", endpoint.ID,
		"developer_id", developerID,
		"target_host", ExtractHost(endpoint.TargetURL),
	)
	return endpoint, secret, nil
}

// List returns the developer's endpoints, newest first.
func (s *EndpointService) List(ctx context.Context, developerID string) ([]*model.WebhookEndpoint, error) {
	endpoints, err := s.repo.ListEndpointsByDeveloper(ctx, developerID)
	if err != nil {
		return nil, err
	}
	if endpoints == nil {
		endpoints = []*model.WebhookEndpoint{}
	}
	return endpoints, nil
}

// Get returns one of the developer's endpoints.
func (s *EndpointService) Get(ctx context.Context, developerID, id string) (*model.WebhookEndpoint, error) {
	endpoint, err := s.repo.GetEndpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	if endpoint.DeveloperID != developerID {
		return nil, ErrEndpointNotFound
	}
	return endpoint, nil
}

// Update applies a partial edit to an endpoint.
func (s *EndpointService) Update(ctx context.Context, developerID, id string, upd EndpointUpdate) (*model.WebhookEndpoint, error) {
	endpoint, err := s.Get(ctx, developerID, id)
	if err != nil {
		return nil, err
	}

	if upd.TargetURL != nil {
		if err := s.policy.Check(ctx, *upd.TargetURL); err != nil {
			return nil, err
		}
		endpoint.TargetURL = *upd.TargetURL
	}
	if upd.EventTypes != nil {
		eventTypes, err := normalizeEventTypes(*upd.EventTypes)
		if err != nil {
			return nil, err
		}
		endpoint.EventTypes = eventTypes
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if utf8.RuneCountInString(name) > maxEndpointName {
			return nil, ErrNameTooLong
		}
		endpoint.Name = name
	}
	if upd.Enabled != nil {
		endpoint.Enabled = *upd.Enabled
	}
	endpoint.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateEndpoint(ctx, endpoint); err != nil {
		return nil, err
	}
	return endpoint, nil
}

// Delete soft-deletes an endpoint. Its queued deliveries are exhausted by
// the worker.
func (s *EndpointService) Delete(ctx context.Context, developerID, id string) error {
	if _, err := s.Get(ctx, developerID, id); err != nil {
		return err
	}
	if err := s.repo.DeleteEndpoint(ctx, id); err != nil {
		return err
	}
	s.logger.Info("webhook endpoint deleted", "endpoint_id", id, "developer_id", developerID)
	return nil
}

// RotateSecret replaces the signing secret and returns the new one.
func (s *EndpointService) RotateSecret(ctx context.Context, developerID, id string) (string, error) {
	if _, err := s.Get(ctx, developerID, id); err != nil {
		return "", err
	}
	secret, err := NewSecret()
	if err != nil {
		return "", err
	}
	if err := s.repo.UpdateEndpointSecret(ctx, id, secret); err != nil {
		return "", err
	}
	s.logger.Info("webhook secret rotated", "endpoint_id", id, "developer_id", developerID)
	return secret, nil
}

// ListDeliveries pages through an endpoint's deliveries, optionally
// filtered by status.
func (s *EndpointService) ListDeliveries(ctx context.Context, developerID, id string, statuses []string, limit, offset int) ([]*model.WebhookDelivery, int, error) {
	if _, err := s.Get(ctx, developerID, id); err != nil {
		return nil, 0, err
	}
	for _, st := range statuses {
		switch model.DeliveryStatus(st) {
		case model.DeliveryStatusPending, model.DeliveryStatusSuccess,
			model.DeliveryStatusFailed, model.DeliveryStatusExhausted:
		default:
			return nil, 0, fmt.Errorf("%w: %s", ErrInvalidStatus, st)
		}
	}
	deliveries, total, err := s.repo.ListDeliveriesByEndpoint(ctx, id, statuses, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if deliveries == nil {
		deliveries = []*model.WebhookDelivery{}
	}
	return deliveries, total, nil
}

// RetryDelivery requeues an exhausted delivery of the endpoint.
func (s *EndpointService) RetryDelivery(ctx context.Context, developerID, endpointID, deliveryID string) error {
	if _, err := s.Get(ctx, developerID, endpointID); err != nil {
		return err
	}
	delivery, err := s.repo.GetDelivery(ctx, deliveryID)
	if err != nil {
		return err
	}
	if delivery.EndpointID != endpointID {
		return ErrDeliveryNotFound
	}
	return s.repo.ResetDeliveryForRetry(ctx, deliveryID)
}

func normalizeEventTypes(in []model.EventType) ([]model.EventType, error) {
	if len(in) == 0 {
		return slices.Clone(model.ValidEventTypes), nil
	}
	out := make([]model.EventType, 0, len(in))
	for _, et := range in {
		if !model.IsValidEventType(et) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidEventType, et)
		}
		if !slices.Contains(out, et) {
			out = append(out, et)
		}
	}
	return out, nil
}
