// Tokenledger Billing Event Simulator
//
// Signs and delivers a billing event to a local tokenledger instance,
// the way the payment processor would. Useful for exercising the
// webhook endpoint without a processor account.
//
// Usage:
//   export BILLING_WEBHOOK_SECRET="whsec_your_secret_here"
//   go run main.go -kind checkout.session.completed -user user-1 -subscription sub_123
//   go run main.go -kind invoice.payment_succeeded -subscription sub_123
//   go run main.go -kind customer.subscription.deleted -subscription sub_123

package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

type metadata struct {
	UserID string `json:"userId,omitempty"`
	Plan   string `json:"plan,omitempty"`
}

type object struct {
	ID           string   `json:"id"`
	Subscription string   `json:"subscription,omitempty"`
	Status       string   `json:"status,omitempty"`
	Metadata     metadata `json:"metadata"`
}

type event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object object `json:"object"`
	} `json:"data"`
}

func main() {
	var (
		endpoint     = flag.String("endpoint", "http://localhost:8080/api/billing/webhook", "Webhook endpoint URL")
		kind         = flag.String("kind", "checkout.session.completed", "Event kind")
		userID       = flag.String("user", "", "User ID (checkout metadata)")
		plan         = flag.String("plan", "pro", "Plan name (checkout metadata)")
		subscription = flag.String("subscription", "sub_local_test", "Subscription ID")
		status       = flag.String("status", "active", "Subscription status")
	)
	flag.Parse()

	secret := os.Getenv("BILLING_WEBHOOK_SECRET")
	if secret == "" {
		log.Fatal("BILLING_WEBHOOK_SECRET environment variable is required")
	}

	evt := event{
		ID:   fmt.Sprintf("evt_local_%d", time.Now().UnixNano()),
		Type: *kind,
	}

	switch *kind {
	case "customer.subscription.deleted":
		// A subscription object is the subscription itself.
		evt.Data.Object = object{ID: *subscription, Status: "canceled"}
	case "checkout.session.completed":
		evt.Data.Object = object{
			ID:           fmt.Sprintf("cs_local_%d", time.Now().UnixNano()),
			Subscription: *subscription,
			Status:       *status,
			Metadata:     metadata{UserID: *userID, Plan: *plan},
		}
	default:
		evt.Data.Object = object{
			ID:           fmt.Sprintf("in_local_%d", time.Now().UnixNano()),
			Subscription: *subscription,
			Status:       *status,
		}
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		log.Fatalf("marshal event: %v", err)
	}

	timestamp := time.Now().Unix()
	header := fmt.Sprintf("t=%d,v1=%s", timestamp, sign(secret, timestamp, payload))

	req, err := http.NewRequest(http.MethodPost, *endpoint, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Billing-Signature", header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("deliver event: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	log.Printf("→ %s %s", *kind, *endpoint)
	log.Printf("← %s %s", resp.Status, bytes.TrimSpace(body))
}

// sign computes the processor's HMAC-SHA256 signature over
// "{timestamp}.{payload}".
func sign(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, payload)
	return hex.EncodeToString(mac.Sum(nil))
}
