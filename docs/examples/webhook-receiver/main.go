// VR Store Webhook Receiver Example
//
// A minimal receiver for developer notification webhooks (app moderation,
// purchases and payouts).
//
// Usage:
//   export VRSTORE_WEBHOOK_SECRET="whsec_your_secret_here"
//   go run main.go
//
// Then register http://your-server:9000/webhook under
// POST /api/developer/webhooks.

package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Event is the delivery body.
type Event struct {
	EventType string         `json:"event_type"`
	EventID   string         `json:"event_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

const replayWindow = 5 * time.Minute

func main() {
	secret := os.Getenv("VRSTORE_WEBHOOK_SECRET")
	if secret == "" {
		log.Fatal("VRSTORE_WEBHOOK_SECRET environment variable is required")
	}

	http.HandleFunc("/webhook", webhookHandler(secret))
	http.HandleFunc("/health", healthHandler)

	log.Println("Starting webhook receiver on :9000")
	log.Fatal(http.ListenAndServe(":9000", nil))
}

func webhookHandler(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		signature := r.Header.Get("X-VRStore-Signature")
		timestamp := r.Header.Get("X-VRStore-Timestamp")
		if signature == "" || timestamp == "" {
			http.Error(w, "Missing signature", http.StatusUnauthorized)
			return
		}
		if !verifySignature(secret, signature, timestamp, body) {
			log.Println("Invalid signature")
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}

		var event Event
		if err := json.Unmarshal(body, &event); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		// Deliveries are retried, so the same event may arrive more than once.
		log.Printf("Received %s (event %s, delivery %s)",
			event.EventType, event.EventID, r.Header.Get("X-VRStore-Delivery-Id"))
		for k, v := range event.Data {
			log.Printf("  %s: %v", k, v)
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "received"})
	}
}

// verifySignature checks hex(HMAC-SHA256(secret, "{timestamp}.{body}")) and
// rejects timestamps outside the replay window.
func verifySignature(secret, signature, timestamp string, body []byte) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if d := time.Since(time.Unix(ts, 0)); d > replayWindow || d < -replayWindow {
		log.Println("Signature timestamp too old or in future")
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
