package provider

import (
	"context"
	"errors"

	"github.com/driftframe/backend/internal/models"
)

// Status is the provider-reported lifecycle of a generation task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusUnknown   Status = "unknown"
)

// ErrSubmission marks a submission the provider rejected (validation, auth,
// 5xx). The orchestrator refunds and reports; it does not retry past its
// immediate bound.
var ErrSubmission = errors.New("provider rejected submission")

// PollResult is the normalized shape of one status poll.
type PollResult struct {
	Status      Status
	ResultURL   string
	ErrorDetail string
}

// Gateway adapts the external asynchronous generation service.
type Gateway interface {
	// Submit starts a generation task and returns the provider-assigned id.
	Submit(ctx context.Context, mode models.JobMode, params models.GenerationParams) (string, error)
	// Poll reports the task's current status. Transport errors are returned
	// as-is so the orchestrator can retry them transparently.
	Poll(ctx context.Context, providerJobID string) (PollResult, error)
}
