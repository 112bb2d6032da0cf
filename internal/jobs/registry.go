package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftframe/backend/internal/models"
)

var (
	// ErrJobNotFound is returned for ids this process is not tracking.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobTerminal is returned when cancelling a job that already reached
	// a terminal state.
	ErrJobTerminal = errors.New("job already terminal")
)

// errCancelled is the cancellation cause set by Cancel so the orchestration
// loop can tell a caller-initiated cancel from an expiring parent context.
var errCancelled = errors.New("cancelled by caller")

// trackedJob pairs a job with the lock that serializes its transitions and
// the cancel function of its orchestration context. A job belongs to exactly
// one in-flight orchestration; all state changes go through update.
//
// cancelled records a cancellation that arrived before the orchestration
// installed its cancel func. On the async path the gap between registration
// and worker pickup can span seconds; run checks the flag when it starts.
type trackedJob struct {
	mu        sync.Mutex
	job       *models.Job
	cancel    context.CancelCauseFunc
	cancelled bool
}

// update applies fn under the transition lock and stamps UpdatedAt.
func (t *trackedJob) update(fn func(*models.Job)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.job)
	t.job.UpdatedAt = time.Now().UTC()
}

// snapshot returns a copy safe to hand to callers.
func (t *trackedJob) snapshot() models.Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.job
}

// terminalRetention is how long finished jobs stay queryable before the
// registry drops them.
const terminalRetention = time.Hour

// Registry tracks in-flight and recently finished jobs in memory. Jobs are
// transient: they live only as long as this process. Terminal jobs are kept
// for the retention window so callers can still read the outcome, then
// evicted on the next registration.
type Registry struct {
	mu        sync.RWMutex
	jobs      map[uuid.UUID]*trackedJob
	retention time.Duration
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[uuid.UUID]*trackedJob), retention: terminalRetention}
}

func (r *Registry) add(job *models.Job) *trackedJob {
	t := &trackedJob{job: job}
	r.mu.Lock()
	r.evictLocked(time.Now())
	r.jobs[job.ID] = t
	r.mu.Unlock()
	return t
}

// evictLocked drops terminal jobs whose last transition is older than the
// retention window. Caller holds r.mu.
func (r *Registry) evictLocked(now time.Time) {
	for id, t := range r.jobs {
		t.mu.Lock()
		stale := t.job.State.Terminal() && now.Sub(t.job.UpdatedAt) > r.retention
		t.mu.Unlock()
		if stale {
			delete(r.jobs, id)
		}
	}
}

func (r *Registry) get(id uuid.UUID) (*trackedJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.jobs[id]
	return t, ok
}

func (r *Registry) remove(id uuid.UUID) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}

// Snapshot returns a copy of the tracked job.
func (r *Registry) Snapshot(id uuid.UUID) (models.Job, error) {
	t, ok := r.get(id)
	if !ok {
		return models.Job{}, ErrJobNotFound
	}
	return t.snapshot(), nil
}
