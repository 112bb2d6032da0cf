package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/driftframe/backend/internal/execution"
	"github.com/driftframe/backend/internal/ledger"
	"github.com/driftframe/backend/internal/metrics"
	"github.com/driftframe/backend/internal/models"
	"github.com/driftframe/backend/internal/provider"
)

var (
	// ErrReconciliationRequired is returned alongside a terminal job when a
	// due refund could not be committed. The balance is short by the job's
	// reserved credits until an operator restores it.
	ErrReconciliationRequired = errors.New("refund failed: manual reconciliation required")

	// ErrAsyncDisabled is returned by SubmitAsync when no queue is wired.
	ErrAsyncDisabled = errors.New("async submission is not enabled")
)

// Defaults recovered from the production deployment: one generation costs
// 100 credits and the caller waits at most 40 polls of 3 seconds.
const (
	DefaultPrice           = 100
	DefaultPollInterval    = 3 * time.Second
	DefaultMaxPollAttempts = 40
	defaultPollRetries     = 3
)

// CreditLedger is the slice of the ledger the orchestrator needs.
type CreditLedger interface {
	GetAccount(ctx context.Context, userID string) (models.Account, error)
	Debit(ctx context.Context, userID string, amount int, note string) (int, error)
	Refund(ctx context.Context, userID string, amount int, note string) (int, error)
}

// EnqueueGenerationFunc enqueues a generation job for background execution.
// Wired by main as a closure over river.Client.Insert.
type EnqueueGenerationFunc func(ctx context.Context, args execution.GenerationJobArgs) error

// Config tunes prices and the polling budget. Zero values fall back to the
// defaults above.
type Config struct {
	Price           int
	PollInterval    time.Duration
	MaxPollAttempts int
}

// Orchestrator drives a job from submission to a terminal outcome: debit,
// submit, poll on a schedule, settle the ledger, report. Debit-then-refund
// means the balance is transiently low while a job is in flight; the window
// is bounded by the polling budget.
type Orchestrator struct {
	ledger   CreditLedger
	gateway  provider.Gateway
	registry *Registry
	enqueue  EnqueueGenerationFunc
	metrics  *metrics.Metrics
	logger   *slog.Logger

	price           int
	pollInterval    time.Duration
	maxPollAttempts int
	pollRetries     int

	// sleep is replaced in tests to skip the real polling interval.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(ledger CreditLedger, gateway provider.Gateway, registry *Registry, enqueue EnqueueGenerationFunc, m *metrics.Metrics, logger *slog.Logger, cfg Config) *Orchestrator {
	if cfg.Price <= 0 {
		cfg.Price = DefaultPrice
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = DefaultMaxPollAttempts
	}
	return &Orchestrator{
		ledger:          ledger,
		gateway:         gateway,
		registry:        registry,
		enqueue:         enqueue,
		metrics:         m,
		logger:          logger,
		price:           cfg.Price,
		pollInterval:    cfg.PollInterval,
		maxPollAttempts: cfg.MaxPollAttempts,
		pollRetries:     defaultPollRetries,
		sleep:           sleepCtx,
	}
}

// SubmitAndAwait runs the full lifecycle synchronously and returns the
// terminal job. An error without a job means no credits were spent, except
// for ErrReconciliationRequired, which accompanies the terminal job.
func (o *Orchestrator) SubmitAndAwait(ctx context.Context, userID string, mode models.JobMode, params models.GenerationParams) (*models.Job, error) {
	tj, err := o.prepare(ctx, userID, mode, params)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, tj)
}

// SubmitAsync registers the job and hands execution to the queue. The caller
// follows up through Status and Cancel.
func (o *Orchestrator) SubmitAsync(ctx context.Context, userID string, mode models.JobMode, params models.GenerationParams) (uuid.UUID, error) {
	if o.enqueue == nil {
		return uuid.Nil, ErrAsyncDisabled
	}
	tj, err := o.prepare(ctx, userID, mode, params)
	if err != nil {
		return uuid.Nil, err
	}
	args := execution.GenerationJobArgs{JobID: tj.job.ID, UserID: userID}
	if err := o.enqueue(ctx, args); err != nil {
		o.registry.remove(tj.job.ID)
		return uuid.Nil, fmt.Errorf("enqueue generation: %w", err)
	}
	return tj.job.ID, nil
}

// Execute drives a previously registered job to completion. Called by the
// queue worker for the async path.
func (o *Orchestrator) Execute(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	tj, ok := o.registry.get(jobID)
	if !ok {
		return nil, ErrJobNotFound
	}
	return o.run(ctx, tj)
}

// Status returns a snapshot of the tracked job.
func (o *Orchestrator) Status(jobID uuid.UUID) (models.Job, error) {
	return o.registry.Snapshot(jobID)
}

// Cancel requests cancellation of a non-terminal job. The orchestration loop
// observes the cancellation, refunds if credits were debited, and settles the
// job as Cancelled.
func (o *Orchestrator) Cancel(jobID uuid.UUID) error {
	tj, ok := o.registry.get(jobID)
	if !ok {
		return ErrJobNotFound
	}
	tj.mu.Lock()
	defer tj.mu.Unlock()
	if tj.job.State.Terminal() {
		return ErrJobTerminal
	}
	tj.cancelled = true
	if tj.cancel != nil {
		tj.cancel(errCancelled)
	}
	return nil
}

// prepare validates the request, checks the balance and registers the job.
// No credits are touched yet.
func (o *Orchestrator) prepare(ctx context.Context, userID string, mode models.JobMode, params models.GenerationParams) (*trackedJob, error) {
	if err := params.Validate(mode); err != nil {
		return nil, err
	}
	acct, err := o.ledger.GetAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	if acct.Balance < o.price {
		return nil, fmt.Errorf("%w: balance %d, price %d", ledger.ErrInsufficientCredits, acct.Balance, o.price)
	}
	return o.registry.add(models.NewJob(userID, mode, params)), nil
}

// run executes the lifecycle of one registered job. No other orchestration
// may run on the same trackedJob.
func (o *Orchestrator) run(parent context.Context, tj *trackedJob) (*models.Job, error) {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)
	tj.mu.Lock()
	tj.cancel = cancel
	if tj.cancelled {
		cancel(errCancelled)
	}
	userID := tj.job.UserID
	jobID := tj.job.ID
	tj.mu.Unlock()

	// A cancel that landed before execution settles here, before any debit.
	if ctx.Err() != nil {
		o.settle(tj, models.JobCancelled, "cancelled by caller", "")
		snap := tj.snapshot()
		return &snap, nil
	}

	// Pre-debit. Losing the balance race here surfaces as an error with no
	// job produced; the registry entry is dropped.
	if _, err := o.ledger.Debit(ctx, userID, o.price, fmt.Sprintf("video generation %s", jobID)); err != nil {
		o.registry.remove(jobID)
		return nil, err
	}
	tj.update(func(j *models.Job) {
		j.ReservedCredits = o.price
		j.State = models.JobSubmitting
	})

	if ctx.Err() != nil {
		return o.settleWithRefund(ctx, tj, models.JobCancelled, "cancelled by caller")
	}

	providerJobID, err := o.gateway.Submit(ctx, tj.job.Mode, tj.job.Params)
	if err != nil {
		if ctx.Err() != nil {
			return o.settleWithRefund(ctx, tj, models.JobCancelled, "cancelled by caller")
		}
		return o.settleWithRefund(ctx, tj, models.JobFailed, fmt.Sprintf("submission failed: %v", err))
	}
	tj.update(func(j *models.Job) {
		j.ProviderJobID = providerJobID
		j.State = models.JobPolling
	})

	for attempt := 1; attempt <= o.maxPollAttempts; attempt++ {
		if err := o.sleep(ctx, o.pollInterval); err != nil {
			return o.settleWithRefund(ctx, tj, models.JobCancelled, "cancelled by caller")
		}

		res, err := o.pollWithRetry(ctx, providerJobID)
		if err != nil {
			if ctx.Err() != nil {
				return o.settleWithRefund(ctx, tj, models.JobCancelled, "cancelled by caller")
			}
			return o.settleWithRefund(ctx, tj, models.JobFailed, fmt.Sprintf("polling failed: %v", err))
		}

		switch res.Status {
		case provider.StatusSucceeded:
			// A succeeded status without a result reference is treated as
			// still-running; the provider fills the URL in slightly later.
			if res.ResultURL != "" {
				o.settle(tj, models.JobSucceeded, "", res.ResultURL)
				snap := tj.snapshot()
				return &snap, nil
			}
		case provider.StatusFailed:
			reason := res.ErrorDetail
			if reason == "" {
				reason = "provider reported failure"
			}
			return o.settleWithRefund(ctx, tj, models.JobFailed, reason)
		}
	}

	return o.settleWithRefund(ctx, tj, models.JobTimedOut, "polling budget exhausted without a terminal provider response")
}

// pollWithRetry retries transport errors back-to-back up to the per-attempt
// bound. Transient failures below the bound never surface to the state
// machine.
func (o *Orchestrator) pollWithRetry(ctx context.Context, providerJobID string) (provider.PollResult, error) {
	var lastErr error
	for try := 0; try < o.pollRetries; try++ {
		if err := ctx.Err(); err != nil {
			return provider.PollResult{}, err
		}
		if o.metrics != nil {
			o.metrics.PollAttemptsTotal.Inc()
		}
		res, err := o.gateway.Poll(ctx, providerJobID)
		if err == nil {
			return res, nil
		}
		lastErr = err
		o.logger.Warn("provider poll failed", "provider_job_id", providerJobID, "try", try+1, "error", err)
	}
	return provider.PollResult{}, lastErr
}

// settle records a terminal state.
func (o *Orchestrator) settle(tj *trackedJob, state models.JobState, reason, resultURL string) {
	var mode models.JobMode
	tj.update(func(j *models.Job) {
		j.State = state
		j.FailureReason = reason
		j.ResultURL = resultURL
		mode = j.Mode
	})
	if o.metrics != nil {
		o.metrics.JobsTotal.WithLabelValues(string(mode), string(state)).Inc()
	}
}

// settleWithRefund records the terminal state and restores the debited
// credits. The refund runs on a cancellation-immune context: a cancelled job
// still gets its money back. A refund that exhausts ledger retries flags the
// job for manual reconciliation instead of being swallowed.
func (o *Orchestrator) settleWithRefund(ctx context.Context, tj *trackedJob, state models.JobState, reason string) (*models.Job, error) {
	o.settle(tj, state, reason, "")
	snap := tj.snapshot()

	note := fmt.Sprintf("refund for %s generation %s", state, snap.ID)
	if _, err := o.ledger.Refund(context.WithoutCancel(ctx), snap.UserID, snap.ReservedCredits, note); err != nil {
		tj.update(func(j *models.Job) { j.NeedsReconciliation = true })
		if o.metrics != nil {
			o.metrics.ReconciliationsTotal.Inc()
		}
		o.logger.Error("refund failed, manual reconciliation required",
			"job_id", snap.ID, "user_id", snap.UserID, "credits", snap.ReservedCredits, "error", err)
		snap = tj.snapshot()
		return &snap, ErrReconciliationRequired
	}
	if o.metrics != nil {
		o.metrics.RefundsTotal.Inc()
	}
	o.logger.Info("credits refunded", "job_id", snap.ID, "user_id", snap.UserID, "state", state, "reason", reason)
	return &snap, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
