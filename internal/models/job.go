package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle state of a generation job.
type JobState string

const (
	JobCreated    JobState = "created"
	JobSubmitting JobState = "submitting"
	JobPolling    JobState = "polling"
	JobSucceeded  JobState = "succeeded"
	JobFailed     JobState = "failed"
	JobTimedOut   JobState = "timed_out"
	JobCancelled  JobState = "cancelled"
)

// Terminal reports whether no further transition can occur.
func (s JobState) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobTimedOut, JobCancelled:
		return true
	}
	return false
}

// JobMode selects text-to-video or image-to-video generation.
type JobMode string

const (
	ModeText  JobMode = "text"
	ModeImage JobMode = "image"
)

// GenerationParams is the opaque request payload forwarded to the provider.
type GenerationParams struct {
	Prompt                string `json:"prompt"`
	ImageURL              string `json:"image_url,omitempty"`
	Ratio                 string `json:"ratio,omitempty"`
	Resolution            string `json:"resolution,omitempty"`
	Duration              int    `json:"duration,omitempty"`
	Frames                int    `json:"frames,omitempty"`
	Seed                  int    `json:"seed,omitempty"`
	CameraFixed           bool   `json:"camera_fixed,omitempty"`
	Watermark             bool   `json:"watermark,omitempty"`
	GenerateAudio         bool   `json:"generate_audio,omitempty"`
	Draft                 bool   `json:"draft,omitempty"`
	ServiceTier           string `json:"service_tier,omitempty"`
	ExecutionExpiresAfter int    `json:"execution_expires_after,omitempty"`
	ReturnLastFrame       bool   `json:"return_last_frame,omitempty"`
}

// Job is one generation request from submission to terminal outcome. It is
// transient: tracked in memory for the duration of its orchestration only.
type Job struct {
	ID              uuid.UUID        `json:"id"`
	UserID          string           `json:"user_id"`
	Mode            JobMode          `json:"mode"`
	Params          GenerationParams `json:"params"`
	State           JobState         `json:"state"`
	ProviderJobID   string           `json:"provider_job_id,omitempty"`
	ReservedCredits int              `json:"reserved_credits"`
	ResultURL       string           `json:"result_url,omitempty"`
	FailureReason   string           `json:"failure_reason,omitempty"`

	// NeedsReconciliation is set when a due refund could not be committed
	// and an operator must restore the balance by hand.
	NeedsReconciliation bool `json:"needs_reconciliation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewJob returns a job in the initial state.
func NewJob(userID string, mode JobMode, params GenerationParams) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.New(),
		UserID:    userID,
		Mode:      mode,
		Params:    params,
		State:     JobCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the request payload before any credits are touched.
func (p GenerationParams) Validate(mode JobMode) error {
	if mode != ModeText && mode != ModeImage {
		return errors.New("mode must be \"text\" or \"image\"")
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return errors.New("prompt is required")
	}
	if mode == ModeImage && strings.TrimSpace(p.ImageURL) == "" {
		return errors.New("image_url is required for image-to-video")
	}
	return nil
}
