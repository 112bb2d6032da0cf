package execution

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/driftframe/backend/internal/models"
)

// GenerationJobArgs identifies a registered generation job to drive. The job
// itself (mode, params, state) lives in the in-process registry.
type GenerationJobArgs struct {
	JobID  uuid.UUID `json:"job_id"`
	UserID string    `json:"user_id"`
}

func (GenerationJobArgs) Kind() string { return "generate_video" }

// Orchestrate is the slice of the orchestrator the worker needs.
// Implemented by jobs.Orchestrator.
type Orchestrate interface {
	Execute(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
}

// GenerationWorker drives queued generation jobs to a terminal outcome.
type GenerationWorker struct {
	river.WorkerDefaults[GenerationJobArgs]
	orchestrator Orchestrate
	logger       *slog.Logger
}

func NewGenerationWorker(orchestrator Orchestrate, logger *slog.Logger) *GenerationWorker {
	return &GenerationWorker{orchestrator: orchestrator, logger: logger}
}

// Work runs one generation to completion. Errors are not returned to river:
// the orchestrator has already settled the job and the ledger by the time
// they surface, and a queue-level retry would drive the lifecycle twice.
func (w *GenerationWorker) Work(ctx context.Context, job *river.Job[GenerationJobArgs]) error {
	args := job.Args
	result, err := w.orchestrator.Execute(ctx, args.JobID)
	if err != nil {
		w.logger.Error("generation finished with error", "job_id", args.JobID, "user_id", args.UserID, "error", err)
		return nil
	}
	w.logger.Info("generation finished", "job_id", args.JobID, "user_id", args.UserID, "state", result.State)
	return nil
}
