package webhook

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
)

func newMockEndpointService(t *testing.T) (*EndpointService, sqlmock.Sqlmock) {
	t.Helper()
	repo, mock := newMockRepo(t)
	return NewEndpointService(repo, TargetPolicy{AllowInsecure: true}, testLogger()), mock
}

func TestEndpointService_Create(t *testing.T) {
	svc, mock := newMockEndpointService(t)
	mock.ExpectQuery("SELECT COUNT").WithArgs("dev_1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec("INSERT INTO webhook_endpoints").
		WithArgs(sqlmock.AnyArg(), "dev_1", "http://hooks.test/vr", sqlmock.AnyArg(), true,
			`{"payout.paid","app.approved"}`, "ci", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	endpoint, secret, err := svc.Create(context.Background(), "dev_1", EndpointInput{
		TargetURL:  "http://hooks.test/vr",
		EventTypes: []model.EventType{model.EventTypePayoutPaid, model.EventTypeAppApproved, model.EventTypePayoutPaid},
		Name:       "  ci ",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !strings.HasPrefix(secret, "whsec_") || secret != endpoint.Secret {
		t.Errorf("unexpected secret %q", secret)
	}
	if len(endpoint.EventTypes) != 2 {
		t.Errorf("duplicates should be dropped, got %v", endpoint.EventTypes)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestEndpointService_CreateDefaultsToAllEvents(t *testing.T) {
	svc, mock := newMockEndpointService(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO webhook_endpoints").WillReturnResult(sqlmock.NewResult(0, 1))

	endpoint, _, err := svc.Create(context.Background(), "dev_1", EndpointInput{TargetURL: "http://hooks.test/vr"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(endpoint.EventTypes) != len(model.ValidEventTypes) {
		t.Errorf("expected every event type, got %v", endpoint.EventTypes)
	}
}

func TestEndpointService_CreateRejects(t *testing.T) {
	tests := []struct {
		name  string
		count int
		in    EndpointInput
		want  error
	}{
		{
			name: "bad scheme",
			in:   EndpointInput{TargetURL: "ftp://hooks.test"},
			want: ErrInvalidScheme,
		},
		{
			name: "unknown event",
			in:   EndpointInput{TargetURL: "http://hooks.test", EventTypes: []model.EventType{"app.renamed"}},
			want: ErrInvalidEventType,
		},
		{
			name: "long name",
			in:   EndpointInput{TargetURL: "http://hooks.test", Name: strings.Repeat("n", 101)},
			want: ErrNameTooLong,
		},
		{
			name:  "limit reached",
			count: MaxEndpointsPerDeveloper,
			in:    EndpointInput{TargetURL: "http://hooks.test"},
			want:  ErrTooManyEndpoints,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock := newMockEndpointService(t)
			if tt.count > 0 {
				mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tt.count))
			}

			_, _, err := svc.Create(context.Background(), "dev_1", tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestEndpointService_ForeignEndpointIsHidden(t *testing.T) {
	ctx := context.Background()
	svc, mock := newMockEndpointService(t)
	for range 3 {
		mock.ExpectQuery("FROM webhook_endpoints").WithArgs("ep_1").
			WillReturnRows(endpointRow("ep_1", "dev_other", "https://example.com", "whsec_x", true))
	}

	if _, err := svc.Get(ctx, "dev_1", "ep_1"); !errors.Is(err, ErrEndpointNotFound) {
		t.Errorf("Get: expected ErrEndpointNotFound, got %v", err)
	}
	if err := svc.Delete(ctx, "dev_1", "ep_1"); !errors.Is(err, ErrEndpointNotFound) {
		t.Errorf("Delete: expected ErrEndpointNotFound, got %v", err)
	}
	if _, err := svc.RotateSecret(ctx, "dev_1", "ep_1"); !errors.Is(err, ErrEndpointNotFound) {
		t.Errorf("RotateSecret: expected ErrEndpointNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestEndpointService_Update(t *testing.T) {
	svc, mock := newMockEndpointService(t)
	mock.ExpectQuery("FROM webhook_endpoints").WithArgs("ep_1").
		WillReturnRows(endpointRow("ep_1", "dev_1", "https://example.com", "whsec_x", true))
	mock.ExpectExec("UPDATE webhook_endpoints").
		WithArgs("ep_1", "https://example.com", false, `{"app.rejected"}`, "ci", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	disabled := false
	events := []model.EventType{model.EventTypeAppRejected}
	endpoint, err := svc.Update(context.Background(), "dev_1", "ep_1", EndpointUpdate{
		EventTypes: &events,
		Enabled:    &disabled,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if endpoint.Enabled {
		t.Error("endpoint should be disabled")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestEndpointService_RotateSecret(t *testing.T) {
	svc, mock := newMockEndpointService(t)
	mock.ExpectQuery("FROM webhook_endpoints").WithArgs("ep_1").
		WillReturnRows(endpointRow("ep_1", "dev_1", "https://example.com", "whsec_old", true))
	mock.ExpectExec("SET secret").
		WithArgs("ep_1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	secret, err := svc.RotateSecret(context.Background(), "dev_1", "ep_1")
	if err != nil {
		t.Fatalf("RotateSecret failed: %v", err)
	}
	if secret == "whsec_old" || !strings.HasPrefix(secret, "whsec_") {
		t.Errorf("unexpected secret %q", secret)
	}
}

func TestEndpointService_ListDeliveriesRejectsUnknownStatus(t *testing.T) {
	svc, mock := newMockEndpointService(t)
	mock.ExpectQuery("FROM webhook_endpoints").WithArgs("ep_1").
		WillReturnRows(endpointRow("ep_1", "dev_1", "https://example.com", "whsec_x", true))

	_, _, err := svc.ListDeliveries(context.Background(), "dev_1", "ep_1", []string{"queued"}, 20, 0)
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestEndpointService_RetryDeliveryOfOtherEndpoint(t *testing.T) {
	svc, mock := newMockEndpointService(t)
	mock.ExpectQuery("FROM webhook_endpoints").WithArgs("ep_1").
		WillReturnRows(endpointRow("ep_1", "dev_1", "https://example.com", "whsec_x", true))
	mock.ExpectQuery("FROM webhook_deliveries").WithArgs("dlv_9").
		WillReturnRows(sqlmock.NewRows(deliveryColumnNames).AddRow(
			"dlv_9", "ep_2", "evt_9", "app.approved", "{}", "exhausted", 5, 5,
			time.Now(), nil, nil, nil, time.Now(), time.Now(),
		))

	err := svc.RetryDelivery(context.Background(), "dev_1", "ep_1", "dlv_9")
	if !errors.Is(err, ErrDeliveryNotFound) {
		t.Errorf("expected ErrDeliveryNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
