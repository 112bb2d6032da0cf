package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/driftframe/backend/internal/jobs"
	"github.com/driftframe/backend/internal/ledger"
	"github.com/driftframe/backend/internal/middleware"
	"github.com/driftframe/backend/internal/models"
)

// Orchestrator is the job lifecycle surface the handler exposes.
type Orchestrator interface {
	SubmitAndAwait(ctx context.Context, userID string, mode models.JobMode, params models.GenerationParams) (*models.Job, error)
	SubmitAsync(ctx context.Context, userID string, mode models.JobMode, params models.GenerationParams) (uuid.UUID, error)
	Status(jobID uuid.UUID) (models.Job, error)
	Cancel(jobID uuid.UUID) error
}

// BalanceReader reads the caller's account for GET /v1/balance.
type BalanceReader interface {
	GetAccount(ctx context.Context, userID string) (models.Account, error)
}

// GenerationHandler serves the /v1/generations and /v1/balance endpoints.
type GenerationHandler struct {
	Orchestrator Orchestrator
	Ledger       BalanceReader
	Logger       *slog.Logger
}

type generateRequest struct {
	Mode   string                  `json:"mode"`
	Params models.GenerationParams `json:"params"`
}

// Generate handles POST /v1/generations: submit and block until terminal.
func (h *GenerationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.ActorFromCtx(r.Context())
	if userID == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	job, err := h.Orchestrator.SubmitAndAwait(r.Context(), userID, models.JobMode(req.Mode), req.Params)
	if err != nil && job == nil {
		h.writeSubmitError(w, userID, err)
		return
	}
	if errors.Is(err, jobs.ErrReconciliationRequired) {
		h.Logger.Error("generation needs reconciliation", "job_id", job.ID, "user_id", userID)
	}
	writeJSON(w, http.StatusOK, job)
}

// GenerateAsync handles POST /v1/generations/async: 202 with the job id.
func (h *GenerationHandler) GenerateAsync(w http.ResponseWriter, r *http.Request) {
	userID := middleware.ActorFromCtx(r.Context())
	if userID == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	jobID, err := h.Orchestrator.SubmitAsync(r.Context(), userID, models.JobMode(req.Mode), req.Params)
	if err != nil {
		if errors.Is(err, jobs.ErrAsyncDisabled) {
			http.Error(w, `{"error":"async generation is not enabled"}`, http.StatusNotImplemented)
			return
		}
		h.writeSubmitError(w, userID, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID.String(), "state": string(models.JobCreated)})
}

// GetJob handles GET /v1/generations/{id}.
func (h *GenerationHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	userID := middleware.ActorFromCtx(r.Context())
	job, ok := h.lookupOwnJob(w, r, userID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// CancelJob handles DELETE /v1/generations/{id}.
func (h *GenerationHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	userID := middleware.ActorFromCtx(r.Context())
	job, ok := h.lookupOwnJob(w, r, userID)
	if !ok {
		return
	}
	if err := h.Orchestrator.Cancel(job.ID); err != nil {
		if errors.Is(err, jobs.ErrJobTerminal) {
			http.Error(w, `{"error":"job already terminal"}`, http.StatusConflict)
			return
		}
		http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID.String(), "state": "cancelling"})
}

// Balance handles GET /v1/balance.
func (h *GenerationHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.ActorFromCtx(r.Context())
	if userID == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	acct, err := h.Ledger.GetAccount(r.Context(), userID)
	if err != nil {
		h.Logger.Error("read balance", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *GenerationHandler) lookupOwnJob(w http.ResponseWriter, r *http.Request, userID string) (models.Job, bool) {
	if userID == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return models.Job{}, false
	}
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid job id"}`, http.StatusBadRequest)
		return models.Job{}, false
	}
	job, err := h.Orchestrator.Status(jobID)
	if err != nil || job.UserID != userID {
		http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
		return models.Job{}, false
	}
	return job, true
}

func (h *GenerationHandler) writeSubmitError(w http.ResponseWriter, userID string, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientCredits):
		writeJSON(w, http.StatusPaymentRequired, map[string]string{
			"error": "not enough credits, please top up to continue",
		})
	case errors.Is(err, ledger.ErrLedgerUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "credit ledger is busy, please retry",
		})
	default:
		h.Logger.Error("submit generation", "user_id", userID, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
