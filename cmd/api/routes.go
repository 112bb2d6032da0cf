package main

import (
	"log/slog"
	"net/http"

	"github.com/driftframe/backend/internal/admin"
	"github.com/driftframe/backend/internal/config"
	"github.com/driftframe/backend/internal/handlers"
	"github.com/driftframe/backend/internal/identity"
	"github.com/driftframe/backend/internal/jobs"
	"github.com/driftframe/backend/internal/ledger"
	"github.com/driftframe/backend/internal/metrics"
	"github.com/driftframe/backend/internal/middleware"
)

// registerRoutes wires the /v1/ endpoints.
// Middleware chain: SessionAuth -> handler; admin endpoints additionally
// require the operator key header; the billing webhook authenticates by
// signature instead of session.
func registerRoutes(
	mux *http.ServeMux,
	orchestrator *jobs.Orchestrator,
	ledgerSvc *ledger.Service,
	adminSvc *admin.Service,
	ids *identity.Service,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *slog.Logger,
) {
	gen := &handlers.GenerationHandler{Orchestrator: orchestrator, Ledger: ledgerSvc, Logger: logger}
	adm := &handlers.AdminHandler{Admin: adminSvc, Keys: ids, Logger: logger}
	billing := &handlers.BillingHandler{Secret: []byte(cfg.BillingSecret), Ledger: ledgerSvc, Logger: logger}

	auth := middleware.SessionAuth(ids)

	mux.Handle("POST /v1/generations", auth(http.HandlerFunc(gen.Generate)))
	mux.Handle("POST /v1/generations/async", auth(http.HandlerFunc(gen.GenerateAsync)))
	mux.Handle("GET /v1/generations/{id}", auth(http.HandlerFunc(gen.GetJob)))
	mux.Handle("DELETE /v1/generations/{id}", auth(http.HandlerFunc(gen.CancelJob)))
	mux.Handle("GET /v1/balance", auth(http.HandlerFunc(gen.Balance)))

	mux.Handle("POST /v1/admin/credits", auth(http.HandlerFunc(adm.AdjustCredits)))
	mux.Handle("GET /v1/admin/accounts/{id}", auth(http.HandlerFunc(adm.GetAccount)))

	mux.HandleFunc("POST /v1/billing/webhook", billing.Webhook)

	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
