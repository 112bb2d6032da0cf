package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/driftframe/backend/internal/admin"
	"github.com/driftframe/backend/internal/ledger"
	"github.com/driftframe/backend/internal/middleware"
	"github.com/driftframe/backend/internal/models"
)

// AdminService is the override surface exposed over HTTP.
type AdminService interface {
	Adjust(ctx context.Context, actorID, targetUserID string, newBalance int, reason string) (models.AdjustmentEntry, error)
	Inspect(ctx context.Context, actorID, targetUserID string) (models.Account, error)
}

// AdminKeyVerifier gates admin endpoints on the operator key header.
type AdminKeyVerifier interface {
	VerifyAdminKey(raw string) bool
}

// AdminHandler serves /v1/admin endpoints.
type AdminHandler struct {
	Admin  AdminService
	Keys   AdminKeyVerifier
	Logger *slog.Logger
}

const adminKeyHeader = "X-Admin-Key"

type adjustRequest struct {
	UserID     string `json:"user_id"`
	NewBalance int    `json:"new_balance"`
	Reason     string `json:"reason"`
}

// AdjustCredits handles POST /v1/admin/credits.
func (h *AdminHandler) AdjustCredits(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, `{"error":"user_id is required"}`, http.StatusBadRequest)
		return
	}

	entry, err := h.Admin.Adjust(r.Context(), actorID, req.UserID, req.NewBalance, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, admin.ErrUnauthorized):
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		case errors.Is(err, ledger.ErrLedgerUnavailable):
			http.Error(w, `{"error":"credit ledger is busy, please retry"}`, http.StatusServiceUnavailable)
		default:
			h.Logger.Error("admin adjust", "actor_id", actorID, "user_id", req.UserID, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// GetAccount handles GET /v1/admin/accounts/{id}.
func (h *AdminHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	acct, err := h.Admin.Inspect(r.Context(), actorID, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, admin.ErrUnauthorized) {
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			return
		}
		h.Logger.Error("admin inspect", "actor_id", actorID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *AdminHandler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	actorID := middleware.ActorFromCtx(r.Context())
	if actorID == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return "", false
	}
	if !h.Keys.VerifyAdminKey(r.Header.Get(adminKeyHeader)) {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return "", false
	}
	return actorID, true
}
