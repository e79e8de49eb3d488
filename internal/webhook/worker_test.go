package webhook

import (
	"context"
	"database/sql/driver"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/metrics"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

var endpointColumnNames = []string{
	"id", "developer_id", "target_url", "secret", "enabled", "event_types",
	"name", "created_at", "updated_at",
}

var deliveryColumnNames = []string{
	"id", "endpoint_id", "event_id", "event_type", "payload_json",
	"status", "attempt_count", "max_attempts", "next_retry_at",
	"last_attempt_at", "last_http_status", "last_error",
	"created_at", "updated_at",
}

func endpointRow(id, developerID, targetURL, secret string, enabled bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(endpointColumnNames).
		AddRow(id, developerID, targetURL, secret, enabled, "{app.approved,payout.paid}", "ci", now, now)
}

func pendingDelivery(attempts int) *model.WebhookDelivery {
	now := time.Now()
	return &model.WebhookDelivery{
		ID:           "dlv_1",
		EndpointID:   "ep_1",
		EventID:      "evt_1",
		EventType:    model.EventTypeAppApproved,
		PayloadJSON:  `{"event_type":"app.approved","data":{"slug":"beat-space"}}`,
		Status:       model.DeliveryStatusPending,
		AttemptCount: attempts,
		MaxAttempts:  DefaultMaxAttempts,
		NextRetryAt:  now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestWorkerDeliver_Success(t *testing.T) {
	secret := "whsec_worker_success"
	receiver := newTestReceiver(t, secret, http.StatusOK)

	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM webhook_endpoints").
		WithArgs("ep_1").
		WillReturnRows(endpointRow("ep_1", "dev_1", receiver.URL, secret, true))
	mock.ExpectExec("UPDATE webhook_deliveries").
		WithArgs("dlv_1", sqlmock.AnyArg(), 200).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := metrics.NewInMemory()
	w := NewWorker(repo, testLogger(), rec)

	if err := w.deliver(context.Background(), pendingDelivery(0)); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}

	deliveries := receiver.deliveries()
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliveries))
	}
	if deliveries[0].VerifyErr != nil {
		t.Errorf("receiver rejected the signature: %v", deliveries[0].VerifyErr)
	}
	if deliveries[0].DeliveryID != "dlv_1" {
		t.Errorf("delivery ID mismatch: got %q", deliveries[0].DeliveryID)
	}
	if got := rec.Snapshot().WebhookDeliveries["success"]; got != 1 {
		t.Errorf("expected 1 success, got %d", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestWorkerDeliver_ServerErrorSchedulesRetry(t *testing.T) {
	secret := "whsec_worker_failure"
	receiver := newTestReceiver(t, secret, http.StatusInternalServerError)

	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM webhook_endpoints").
		WithArgs("ep_1").
		WillReturnRows(endpointRow("ep_1", "dev_1", receiver.URL, secret, true))
	mock.ExpectExec("UPDATE webhook_deliveries").
		WithArgs("dlv_1", "failed", sqlmock.AnyArg(), 500, "HTTP 500", retryAfter{min: 30 * time.Second}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := metrics.NewInMemory()
	w := NewWorker(repo, testLogger(), rec)

	if err := w.deliver(context.Background(), pendingDelivery(0)); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if got := rec.Snapshot().WebhookDeliveries["failed"]; got != 1 {
		t.Errorf("expected 1 failure, got %d", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestWorkerDeliver_LastAttemptExhausts(t *testing.T) {
	receiver := newTestReceiver(t, "whsec_exhaust", http.StatusBadGateway)

	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM webhook_endpoints").
		WithArgs("ep_1").
		WillReturnRows(endpointRow("ep_1", "dev_1", receiver.URL, "whsec_exhaust", true))
	mock.ExpectExec("UPDATE webhook_deliveries").
		WithArgs("dlv_1", "exhausted", sqlmock.AnyArg(), 502, "HTTP 502", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := metrics.NewInMemory()
	w := NewWorker(repo, testLogger(), rec)

	if err := w.deliver(context.Background(), pendingDelivery(DefaultMaxAttempts-1)); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if got := rec.Snapshot().WebhookDeliveries["exhausted"]; got != 1 {
		t.Errorf("expected 1 exhausted, got %d", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestWorkerDeliver_InactiveEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		rows    *sqlmock.Rows
		wantMsg string
	}{
		{
			name:    "deleted",
			rows:    sqlmock.NewRows(endpointColumnNames),
			wantMsg: "endpoint deleted",
		},
		{
			name:    "disabled",
			rows:    endpointRow("ep_1", "dev_1", "https://example.com/hook", "whsec_x", false),
			wantMsg: "endpoint disabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			mock.ExpectQuery("FROM webhook_endpoints").WithArgs("ep_1").WillReturnRows(tt.rows)
			mock.ExpectExec("UPDATE webhook_deliveries").
				WithArgs("dlv_1", "exhausted", sqlmock.AnyArg(), nil, tt.wantMsg, sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, 1))

			rec := metrics.NewInMemory()
			w := NewWorker(repo, testLogger(), rec)

			if err := w.deliver(context.Background(), pendingDelivery(0)); err != nil {
				t.Fatalf("deliver failed: %v", err)
			}
			if got := rec.Snapshot().WebhookDeliveries["exhausted"]; got != 1 {
				t.Errorf("expected 1 exhausted, got %d", got)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestWorkerProcessOnce(t *testing.T) {
	secret := "whsec_batch"
	receiver := newTestReceiver(t, secret, http.StatusOK)

	d := pendingDelivery(1)
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM webhook_deliveries d").
		WithArgs(sqlmock.AnyArg(), 10).
		WillReturnRows(sqlmock.NewRows(deliveryColumnNames).AddRow(
			d.ID, d.EndpointID, d.EventID, string(d.EventType), d.PayloadJSON,
			"failed", d.AttemptCount, d.MaxAttempts, d.NextRetryAt,
			d.CreatedAt, 503, "HTTP 503",
			d.CreatedAt, d.UpdatedAt,
		))
	mock.ExpectQuery("FROM webhook_endpoints").
		WithArgs("ep_1").
		WillReturnRows(endpointRow("ep_1", "dev_1", receiver.URL, secret, true))
	mock.ExpectExec("UPDATE webhook_deliveries").
		WithArgs("dlv_1", sqlmock.AnyArg(), 200).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := NewWorker(repo, testLogger(), nil)
	w.SetBatchSize(10)

	if err := w.processOnce(context.Background()); err != nil {
		t.Fatalf("processOnce failed: %v", err)
	}
	if got := len(receiver.deliveries()); got != 1 {
		t.Errorf("expected 1 delivery, got %d", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestWorkerRun_StopsOnCancel(t *testing.T) {
	repo, _ := newMockRepo(t)
	w := NewWorker(repo, testLogger(), nil)
	w.SetPollInterval(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	if err := w.Run(context.Background()); err == nil {
		t.Error("second Run should fail")
	}
}

// retryAfter matches a next_retry_at argument at least min in the future.
type retryAfter struct {
	min time.Duration
}

func (r retryAfter) Match(v driver.Value) bool {
	ts, ok := v.(time.Time)
	return ok && time.Until(ts) >= r.min
}
