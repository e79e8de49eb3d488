package webhook

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// received is one request seen by testReceiver.
type received struct {
	DeliveryID string
	Event      string
	Body       []byte
	VerifyErr  error
}

// testReceiver is a developer endpoint that verifies signatures with the
// same secret the store signs with.
type testReceiver struct {
	*httptest.Server

	secret string
	status int

	mu   sync.Mutex
	seen []received
}

func newTestReceiver(t *testing.T, secret string, status int) *testReceiver {
	t.Helper()
	r := &testReceiver{secret: secret, status: status}
	r.Server = httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(r.Close)
	return r
}

func (r *testReceiver) serve(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	r.mu.Lock()
	r.seen = append(r.seen, received{
		DeliveryID: req.Header.Get(HeaderDeliveryID),
		Event:      req.Header.Get(HeaderEvent),
		Body:       body,
		VerifyErr:  Verify(r.secret, req.Header, body, DefaultTolerance, time.Now()),
	})
	r.mu.Unlock()
	w.WriteHeader(r.status)
}

func (r *testReceiver) deliveries() []received {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]received(nil), r.seen...)
}
