package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const (
	billingSignatureHeader = "X-Billing-Signature"
	billingTimestampHeader = "X-Billing-Timestamp"

	// billingTimestampTolerance bounds how far the signed timestamp may
	// drift from the server clock; a captured webhook stops replaying once
	// it falls outside the window.
	billingTimestampTolerance = 5 * time.Minute

	eventCheckoutCompleted = "checkout.session.completed"
)

// TierCredits maps purchase tiers to credit grants.
var TierCredits = map[string]int{
	"starter": 2000,
	"pro":     5000,
	"studio":  10000,
}

// Crediter is the single ledger entry point exposed to the payment processor.
type Crediter interface {
	Credit(ctx context.Context, userID string, amount int, note string) (int, error)
}

// BillingHandler receives the payment processor's webhook. The processor has
// already completed the payment; this endpoint only verifies the shared-secret
// signature and applies the credit grant. Idempotency on the processor's event
// id is the processor's responsibility.
type BillingHandler struct {
	Secret []byte
	Ledger Crediter
	Logger *slog.Logger
}

type billingEvent struct {
	Type    string `json:"type"`
	UserID  string `json:"user_id"`
	Tier    string `json:"tier"`
	Credits int    `json:"credits"`
}

// Webhook handles POST /v1/billing/webhook.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, `{"error":"read body"}`, http.StatusBadRequest)
		return
	}

	if !h.verify(r.Header.Get(billingTimestampHeader), payload, r.Header.Get(billingSignatureHeader)) {
		http.Error(w, `{"error":"invalid signature"}`, http.StatusBadRequest)
		return
	}

	var ev billingEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	if ev.Type != eventCheckoutCompleted {
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	credits := ev.Credits
	if credits == 0 {
		credits = TierCredits[ev.Tier]
	}
	if ev.UserID == "" || credits <= 0 {
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	balance, err := h.Ledger.Credit(r.Context(), ev.UserID, credits, "top-up: "+ev.Tier)
	if err != nil {
		h.Logger.Error("apply top-up", "user_id", ev.UserID, "credits", credits, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	h.Logger.Info("top-up applied", "user_id", ev.UserID, "credits", credits, "balance", balance)
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *BillingHandler) verify(timestamp string, payload []byte, signature string) bool {
	if len(h.Secret) == 0 || signature == "" {
		return false
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if drift := time.Since(time.Unix(ts, 0)); drift > billingTimestampTolerance || drift < -billingTimestampTolerance {
		return false
	}
	mac := hmac.New(sha256.New, h.Secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
