package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chesswatch/internal/constants"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is one asynchronous import request tracked by id.
type Job struct {
	ID         string    `json:"id"`
	Target     Target    `json:"target"`
	Status     JobStatus `json:"status"`
	Report     *Report   `json:"report,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// JobRegistry runs imports on a bounded worker pool and keeps per-job state
// keyed by id. It replaces scheduler-side polling of a shared queue: the
// only shared state is this registry, and workers communicate over a
// channel.
type JobRegistry struct {
	importer *Importer
	logger   zerolog.Logger

	mu    sync.RWMutex
	jobs  map[string]*Job
	tasks chan string

	workers int
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func NewJobRegistry(importer *Importer, logger zerolog.Logger) *JobRegistry {
	return &JobRegistry{
		importer: importer,
		logger:   logger,
		jobs:     make(map[string]*Job),
		tasks:    make(chan string, constants.JobQueueSize),
		workers:  constants.JobWorkers,
	}
}

// Start launches the worker pool. Workers exit when Stop is called.
func (r *JobRegistry) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	for w := 0; w < r.workers; w++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
	r.logger.Info().Int("workers", r.workers).Msg("import workers started")
}

// Stop stops accepting work and waits for in-flight jobs to finish.
func (r *JobRegistry) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info().Msg("import workers stopped")
}

// Enqueue registers a job and hands it to the pool, returning its id.
func (r *JobRegistry) Enqueue(target Target) (string, error) {
	job := &Job{
		ID:        uuid.NewString(),
		Target:    target,
		Status:    JobQueued,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	select {
	case r.tasks <- job.ID:
		return job.ID, nil
	default:
		r.mu.Lock()
		delete(r.jobs, job.ID)
		r.mu.Unlock()
		return "", fmt.Errorf("import queue is full")
	}
}

// Get returns a snapshot of a job's state.
func (r *JobRegistry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

func (r *JobRegistry) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-r.tasks:
			r.run(ctx, id)
		}
	}
}

func (r *JobRegistry) run(ctx context.Context, id string) {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	job.Status = JobRunning
	target := job.Target
	r.mu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, constants.ImportTimeout)
	defer cancel()

	report, err := r.importer.ImportOne(runCtx, target.Platform, target.Username, target.Limit)

	r.mu.Lock()
	defer r.mu.Unlock()
	job.FinishedAt = time.Now().UTC()
	job.Report = &report
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
		r.logger.Error().Err(err).Str("job_id", id).Msg("import job failed")
		return
	}
	job.Status = JobCompleted
}
