// Package scheduler implements the Queue & Scheduler (SPEC_FULL §4.1): a
// fixed-period tick loop that selects at most one job per tick, subject to
// capacity, and dispatches it to the Pipeline on its own goroutine so that
// up to max_concurrent_jobs jobs run concurrently across ticks, each one
// strictly sequential within itself. The teacher is a request-driven HTTP
// service with no analogue of its own; this package is built in the
// teacher's idiom (interfaces, options pattern, structured logging) over
// the tick/capacity/priority-fetch structure of the original worker loop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maauso/clipforge-api/internal/apperr"
	"github.com/maauso/clipforge-api/internal/model"
	"github.com/maauso/clipforge-api/internal/storage"
	"github.com/maauso/clipforge-api/internal/store"
)

// defaultTickInterval is the fixed period between dispatch attempts,
// matching the original worker's modal.Period(seconds=10).
const defaultTickInterval = 10 * time.Second

// Runner is the subset of *pipeline.Pipeline the scheduler depends on,
// kept as an interface so tests can substitute a fake without spinning up
// real media/synth/storage collaborators.
type Runner interface {
	Run(ctx context.Context, job *model.Job, gen *model.Generation) (finalPath string, creditsCharged int, err error)
	RunLegacySingleChunk(ctx context.Context, job *model.Job, gen *model.Generation) (finalPath string, creditsCharged int, err error)
}

// Scheduler owns the tick loop. Each tick selects at most one job, but a
// selected job's pipeline run is dispatched onto its own goroutine rather
// than blocking the tick: the store's PROCESSING row count (not the tick
// loop) is the true capacity gate, so up to max_concurrent_jobs jobs can
// be in flight at once, each one strictly sequential within itself.
type Scheduler struct {
	store    store.Store
	pipeline Runner
	storage  storage.Storage
	logger   *slog.Logger

	tickInterval time.Duration
	outputPrefix string

	wg sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickInterval overrides the default 10s tick period.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithOutputPrefix overrides the object-storage key prefix final
// artifacts are published under (default "outputs").
func WithOutputPrefix(prefix string) Option {
	return func(s *Scheduler) {
		if prefix != "" {
			s.outputPrefix = prefix
		}
	}
}

// New constructs a Scheduler from its collaborators.
func New(st store.Store, runner Runner, storageClient storage.Storage, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:        st,
		pipeline:     runner,
		storage:      storageClient,
		logger:       logger,
		tickInterval: defaultTickInterval,
		outputPrefix: "outputs",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks, ticking at the configured interval until ctx is cancelled.
// Each tick is independent and idempotent: a tick-level error is logged
// and the loop continues to the next tick rather than exiting. On
// cancellation, Run waits for in-flight dispatches to drain before
// returning, so a shutdown never abandons a job mid-pipeline.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Wait blocks until every dispatched job's pipeline run has returned. It
// is exposed for tests and for callers that want to drain in-flight work
// outside of Run's own shutdown path.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Tick runs one dispatch attempt: capacity gate, priority fetch,
// cancellation probe, analysis gate, dispatch. It never returns an error;
// all failures are logged and leave the store in a consistent state for
// the next tick.
func (s *Scheduler) Tick(ctx context.Context) {
	limit, err := s.store.ReadMaxConcurrentJobs(ctx)
	if err != nil {
		s.logger.Error("scheduler: read concurrency limit failed", slog.String("error", err.Error()))
		return
	}
	active, err := s.store.CountProcessingJobs(ctx)
	if err != nil {
		s.logger.Error("scheduler: count processing jobs failed", slog.String("error", err.Error()))
		return
	}
	if active >= limit {
		s.logger.Info("scheduler: system saturated, skipping tick", slog.Int("active", active), slog.Int("limit", limit))
		return
	}

	job, err := s.store.PriorityFetchOne(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNoJobAvailable) {
			s.logger.Error("scheduler: priority fetch failed", slog.String("error", err.Error()))
		}
		return
	}

	gen, err := s.store.GetGeneration(ctx, job.GenerationID())
	if err != nil {
		s.logger.Error("scheduler: load generation failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
		s.releaseClaim(ctx, job.ID())
		return
	}

	if gen.IsCancelled() {
		s.logger.Info("scheduler: generation cancelled before dispatch, failing job", slog.String("job_id", job.ID()))
		// The claim must move through PROCESSING before FAILED: a freshly
		// claimed job cannot transition directly to a terminal status.
		if err := job.Start(); err != nil {
			s.logger.Error("scheduler: job start transition failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
			return
		}
		s.failJob(ctx, job, apperr.Cancelled)
		return
	}

	legacy := !job.Tier().RequiresAnalysisGate()
	if !legacy && job.AnalysisStatus() != model.AnalysisAnalyzed {
		s.logger.Info("scheduler: job not yet analyzed, releasing claim", slog.String("job_id", job.ID()))
		s.releaseClaim(ctx, job.ID())
		return
	}

	s.dispatch(ctx, job, gen, legacy)
}

func (s *Scheduler) releaseClaim(ctx context.Context, jobID string) {
	if err := s.store.ReleaseClaim(ctx, jobID); err != nil {
		s.logger.Error("scheduler: release claim failed", slog.String("job_id", jobID), slog.String("error", err.Error()))
	}
}

// dispatch claims the job synchronously (so the next tick's
// CountProcessingJobs observes it immediately) and then runs the pipeline
// on its own goroutine, letting the tick loop return and keep ticking
// while the job is in flight. Capacity is bounded by the store's
// PROCESSING row count, checked fresh at the top of every Tick, not by
// anything held in process memory.
func (s *Scheduler) dispatch(ctx context.Context, job *model.Job, gen *model.Generation, legacy bool) {
	if err := job.Start(); err != nil {
		s.logger.Error("scheduler: job start transition failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
		s.releaseClaim(ctx, job.ID())
		return
	}
	if err := s.store.UpdateJob(ctx, job); err != nil {
		s.logger.Error("scheduler: persist job start failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
	}

	s.logger.Info("scheduler: dispatching job",
		slog.String("job_id", job.ID()),
		slog.String("tier", string(job.Tier())),
		slog.Bool("legacy", legacy),
	)

	s.wg.Add(1)
	go s.run(ctx, job, gen, legacy)
}

// run executes one job's pipeline to completion and performs the final
// hand-off. It is the body of a dispatch goroutine: strictly sequential
// for this job, concurrent with any other job's run goroutine.
func (s *Scheduler) run(ctx context.Context, job *model.Job, gen *model.Generation, legacy bool) {
	defer s.wg.Done()

	var (
		finalPath string
		credits   int
		err       error
	)
	if legacy {
		finalPath, credits, err = s.pipeline.RunLegacySingleChunk(ctx, job, gen)
	} else {
		finalPath, credits, err = s.pipeline.Run(ctx, job, gen)
	}

	if err != nil {
		// The pipeline has already transitioned job/generation to FAILED
		// and persisted them; the scheduler's job here is only to log.
		s.logger.Error("scheduler: pipeline run failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
		return
	}

	s.finalizeSuccess(ctx, job, gen, finalPath, credits)
}

// finalizeSuccess performs the "final hand-off": publish the artifact the
// pipeline left on local disk, write the signed URL, and drive job and
// generation to COMPLETED.
func (s *Scheduler) finalizeSuccess(ctx context.Context, job *model.Job, gen *model.Generation, localPath string, credits int) {
	key := fmt.Sprintf("%s/%s/final.mp4", s.outputPrefix, job.ID())

	outputURL, err := s.publish(ctx, key, localPath)
	if err != nil {
		s.logger.Error("scheduler: publish final artifact failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
		s.failJob(ctx, job, "failed to publish final output")
		if ferr := gen.Fail(); ferr != nil {
			s.logger.Error("scheduler: generation fail transition failed", slog.String("job_id", job.ID()), slog.String("error", ferr.Error()))
		}
		if perr := s.store.UpdateGeneration(ctx, gen); perr != nil {
			s.logger.Error("scheduler: persist generation fail failed", slog.String("job_id", job.ID()), slog.String("error", perr.Error()))
		}
		return
	}

	if err := job.Complete(outputURL); err != nil {
		s.logger.Error("scheduler: job complete transition failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
	}
	if err := s.store.UpdateJob(ctx, job); err != nil {
		s.logger.Error("scheduler: persist job complete failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
	}

	if err := gen.Complete(outputURL, credits); err != nil {
		s.logger.Error("scheduler: generation complete transition failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
	}
	if err := s.store.UpdateGeneration(ctx, gen); err != nil {
		s.logger.Error("scheduler: persist generation complete failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
	}

	s.logger.Info("scheduler: job completed",
		slog.String("job_id", job.ID()),
		slog.Int("credits_charged", credits),
		slog.String("output_url", outputURL),
	)
}

func (s *Scheduler) publish(ctx context.Context, key, localPath string) (string, error) {
	f, err := openForUpload(localPath)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	if _, err := s.storage.UploadToS3(ctx, key, f); err != nil {
		return "", fmt.Errorf("upload final artifact: %w", err)
	}
	signed, err := s.storage.SignedURL(ctx, key)
	if err != nil {
		return "", fmt.Errorf("sign final artifact url: %w", err)
	}
	return signed, nil
}

func (s *Scheduler) failJob(ctx context.Context, job *model.Job, message string) {
	if err := job.Fail(message); err != nil {
		s.logger.Error("scheduler: job fail transition failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
		return
	}
	if err := s.store.UpdateJob(ctx, job); err != nil {
		s.logger.Error("scheduler: persist job fail failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
	}
}
