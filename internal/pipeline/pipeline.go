// Package pipeline implements the Chunked Production Pipeline: it takes an
// analyzed job through smart pre-trim, chunk-grid computation, a strictly
// sequential per-chunk synthesis loop, and final stitching, producing one
// muxed artifact on local disk for the caller to publish.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/maauso/clipforge-api/internal/apperr"
	"github.com/maauso/clipforge-api/internal/media"
	"github.com/maauso/clipforge-api/internal/model"
	"github.com/maauso/clipforge-api/internal/storage"
	"github.com/maauso/clipforge-api/internal/store"
	"github.com/maauso/clipforge-api/internal/synth"
	"github.com/maauso/clipforge-api/internal/workspace"
)

// legacyChunkDurationSeconds is the fixed chunk length for the
// tier-legacy single-chunk compatibility path.
const legacyChunkDurationSeconds = 9.0

// secondsPerChunkEstimate drives the estimated_completion_at projection
// set at the start of the chunk loop: now + 75s * N.
const secondsPerChunkEstimate = 75 * time.Second

// Config configures a Pipeline.
type Config struct {
	// WorkspaceBaseDir is the parent directory under which each job gets
	// a scoped scratch directory. Defaults to a clipforge-jobs directory
	// under os.TempDir().
	WorkspaceBaseDir string
	// WebhookURL, when non-empty, is forwarded to the synthesis client
	// so the provider can push a completion callback alongside polling.
	WebhookURL string
	// HTTPClient fetches master assets and external synthesis output.
	// Defaults to a client with the 120s download timeout.
	HTTPClient *http.Client
}

// Pipeline drives one job from analyzed input to a stitched local
// artifact. Concurrency across jobs is the caller's responsibility
// (the scheduler); each Run call processes its one job sequentially, and
// the scheduler may call Run for several jobs concurrently on one Pipeline.
type Pipeline struct {
	store      store.Store
	synth      synth.Client
	runner     media.Runner
	storage    storage.Storage
	logger     *slog.Logger
	httpClient *http.Client

	workspaceBaseDir string
	webhookURL       string
}

// New constructs a Pipeline from its collaborators.
func New(st store.Store, synthClient synth.Client, runner media.Runner, storageClient storage.Storage, logger *slog.Logger, cfg Config) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: downloadTimeout}
	}
	baseDir := cfg.WorkspaceBaseDir
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "clipforge-jobs")
	}
	return &Pipeline{
		store:            st,
		synth:            synthClient,
		runner:           runner,
		storage:          storageClient,
		logger:           logger,
		httpClient:       httpClient,
		workspaceBaseDir: baseDir,
		webhookURL:       cfg.WebhookURL,
	}
}

// Run executes the chunked production pipeline for an already-analyzed
// job. On success it returns a local path to the stitched artifact (and
// total credits charged) and leaves job/generation at the finalizing
// stage (95%); the caller is responsible for publishing the artifact and
// driving both to COMPLETED. On any terminal failure, Run itself marks
// job and generation FAILED and persists them before returning.
func (p *Pipeline) Run(ctx context.Context, job *model.Job, gen *model.Generation) (finalPath string, creditsCharged int, err error) {
	return p.run(ctx, job, gen, false)
}

// RunLegacySingleChunk routes a job through the tier-legacy fixed-9s
// single-chunk compatibility path, bypassing analyzer gating entirely.
// It reuses the same per-chunk step functions with N=1.
func (p *Pipeline) RunLegacySingleChunk(ctx context.Context, job *model.Job, gen *model.Generation) (finalPath string, creditsCharged int, err error) {
	return p.run(ctx, job, gen, true)
}

func (p *Pipeline) run(ctx context.Context, job *model.Job, gen *model.Generation, legacy bool) (string, int, error) {
	syncOffset, chunkDuration, err := p.checkPreconditions(job, legacy)
	if err != nil {
		return p.terminalFail(ctx, job, gen, err)
	}

	ws, release := workspace.Acquire(p.workspaceBaseDir, job.ID())
	defer release()

	videoPath := ws.Path("master_video.mp4")
	audioPath := ws.Path("master_audio.wav")

	if err := downloadToFile(ctx, p.httpClient, job.VideoURL(), videoPath); err != nil {
		return p.terminalFail(ctx, job, gen, apperr.Wrap(apperr.KindExternalService, "download master video", err))
	}
	if err := downloadToFile(ctx, p.httpClient, job.AudioURL(), audioPath); err != nil {
		return p.terminalFail(ctx, job, gen, apperr.Wrap(apperr.KindExternalService, "download master audio", err))
	}

	sourceDuration, err := p.runner.ProbeDuration(ctx, videoPath)
	if err != nil {
		return p.terminalFail(ctx, job, gen, apperr.Wrap(apperr.KindMedia, "probe source video duration", err))
	}
	if max := job.Tier().MaxSubmissionSeconds(); sourceDuration > max {
		return p.terminalFail(ctx, job, gen, apperr.New(apperr.KindTierRestriction,
			fmt.Sprintf("source duration %.2fs exceeds %s tier ceiling %.2fs", sourceDuration, job.Tier(), max)))
	}

	trimmedVideo, trimmedAudio, err := smartPreTrim(ctx, p.runner, ws, videoPath, audioPath, syncOffset)
	if err != nil {
		return p.terminalFail(ctx, job, gen, apperr.Wrap(apperr.KindMedia, "smart pre-trim", err))
	}

	gridDuration := sourceDuration
	if trimmedVideo != videoPath {
		d, err := p.runner.ProbeDuration(ctx, trimmedVideo)
		if err != nil {
			return p.terminalFail(ctx, job, gen, apperr.Wrap(apperr.KindMedia, "probe pre-trimmed video duration", err))
		}
		gridDuration = d
	}

	durations := chunkGrid(gridDuration, chunkDuration)
	if len(durations) == 0 {
		return p.terminalFail(ctx, job, gen, apperr.New(apperr.KindValidation, "chunk grid produced zero chunks"))
	}
	n := len(durations)

	chunks := make([]*model.Chunk, n)
	for i, d := range durations {
		c := model.NewChunk(job.ID(), i, float64(i)*chunkDuration, d, syncOffset)
		if err := p.store.InsertChunk(ctx, c); err != nil {
			return p.terminalFail(ctx, job, gen, apperr.Wrap(apperr.KindStorage, "insert chunk", err))
		}
		chunks[i] = c
	}

	if err := gen.Advance(model.StageProcessingChunk, 10); err != nil {
		p.logger.Warn("generation advance failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
	}
	gen.SetEstimatedCompletion(time.Now().Add(time.Duration(n) * secondsPerChunkEstimate))
	if err := p.store.UpdateGeneration(ctx, gen); err != nil {
		p.logger.Warn("generation persist failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
	}

	completedSegments := make([]string, 0, n)
	creditsTotal := 0
	completedCount := 0

	for i := 0; i < n; i++ {
		if gen.IsCancelled() {
			p.failRemaining(ctx, chunks[i:])
			return p.terminalFail(ctx, job, gen, apperr.New(apperr.KindCancellation, apperr.Cancelled))
		}

		if err := chunks[i].Start(); err != nil {
			p.logger.Error("chunk start failed", slog.String("job_id", job.ID()), slog.Int("chunk_index", i), slog.String("error", err.Error()))
			continue
		}
		p.persistChunkBestEffort(ctx, chunks[i])

		progress := 10 + (80*i)/n
		if err := gen.Advance(model.StageProcessingChunk, progress); err != nil {
			p.logger.Warn("generation advance failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
		}
		if err := p.store.UpdateGeneration(ctx, gen); err != nil {
			p.logger.Warn("generation persist failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
		}

		segPath, credits, err := p.processChunk(ctx, job, ws, chunks[i], i, trimmedVideo, trimmedAudio)
		if err != nil {
			p.logger.Error("chunk processing failed", slog.String("job_id", job.ID()), slog.Int("chunk_index", i), slog.String("error", err.Error()))
			if ferr := chunks[i].Fail(err.Error()); ferr != nil {
				p.logger.Error("chunk fail transition failed", slog.String("job_id", job.ID()), slog.Int("chunk_index", i), slog.String("error", ferr.Error()))
			}
			p.persistChunkBestEffort(ctx, chunks[i])
			continue
		}

		completedSegments = append(completedSegments, segPath)
		creditsTotal += credits
		completedCount++
	}

	if completedCount == 0 {
		return p.terminalFail(ctx, job, gen, apperr.New(apperr.KindExternalService, "all chunks failed"))
	}

	if err := gen.Advance(model.StageStitching, 90); err != nil {
		p.logger.Warn("generation advance failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
	}
	if err := p.store.UpdateGeneration(ctx, gen); err != nil {
		p.logger.Warn("generation persist failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
	}

	stitchedPath := ws.Path("final.mp4")
	if err := p.runner.Concat(ctx, completedSegments, stitchedPath); err != nil {
		return p.terminalFail(ctx, job, gen, apperr.Wrap(apperr.KindMedia, "stitch segments", err))
	}

	if err := gen.Advance(model.StageFinalizing, 95); err != nil {
		p.logger.Warn("generation advance failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
	}
	if err := p.store.UpdateGeneration(ctx, gen); err != nil {
		p.logger.Warn("generation persist failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
	}

	durablePath, err := p.persistFinalArtifact(ctx, job.ID(), stitchedPath)
	if err != nil {
		return p.terminalFail(ctx, job, gen, apperr.Wrap(apperr.KindStorage, "persist final artifact", err))
	}

	p.logger.Info("pipeline run reached finalizing stage",
		slog.String("job_id", job.ID()),
		slog.Int("chunk_count", n),
		slog.Int("completed_count", completedCount),
		slog.Int("credits_charged", creditsTotal),
	)

	return durablePath, creditsTotal, nil
}

// persistFinalArtifact copies the stitched artifact out of the per-job
// scratch directory into storage's own temp area, so the returned path
// outlives workspace release.
func (p *Pipeline) persistFinalArtifact(ctx context.Context, jobID, stitchedPath string) (string, error) {
	f, err := os.Open(stitchedPath) // #nosec G304 - stitchedPath is workspace-scoped, built internally
	if err != nil {
		return "", fmt.Errorf("open stitched artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	durablePath, err := p.storage.SaveTemp(ctx, fmt.Sprintf("final_%s.mp4", jobID), f)
	if err != nil {
		return "", fmt.Errorf("save final artifact: %w", err)
	}
	return durablePath, nil
}

// checkPreconditions validates the preconditions in SPEC_FULL §4.3 and
// returns the (sync_offset, chunk_duration) pair Run needs, or the fixed
// legacy pair when legacy is true.
func (p *Pipeline) checkPreconditions(job *model.Job, legacy bool) (syncOffset, chunkDuration float64, err error) {
	if len(job.TargetImages()) == 0 {
		return 0, 0, apperr.New(apperr.KindValidation, "job has no target images")
	}

	if legacy {
		return 0, legacyChunkDurationSeconds, nil
	}

	if job.Tier().RequiresAnalysisGate() && job.AnalysisStatus() != model.AnalysisAnalyzed {
		return 0, 0, apperr.New(apperr.KindValidation,
			fmt.Sprintf("job is not analyzed (analysis_status=%s)", job.AnalysisStatus()))
	}

	so, _, cd, ok := job.Analysis()
	if !ok || cd <= 0 {
		return 0, 0, apperr.New(apperr.KindValidation, "job has no usable chunk_duration")
	}
	return so, cd, nil
}

// terminalFail marks job and generation FAILED, persists both, and
// returns the zero-value result alongside cause.
func (p *Pipeline) terminalFail(ctx context.Context, job *model.Job, gen *model.Generation, cause error) (string, int, error) {
	msg := cause.Error()
	if apperr.Is(cause, apperr.KindCancellation) {
		msg = apperr.Cancelled
	}

	if err := job.Fail(msg); err != nil {
		p.logger.Error("job fail transition failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
	}
	if err := p.store.UpdateJob(ctx, job); err != nil {
		p.logger.Error("job persist failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
	}
	if err := gen.Fail(); err != nil {
		p.logger.Error("generation fail transition failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
	}
	if err := p.store.UpdateGeneration(ctx, gen); err != nil {
		p.logger.Error("generation persist failed", slog.String("job_id", job.ID()), slog.String("error", err.Error()))
	}

	p.logger.Error("pipeline run failed", slog.String("job_id", job.ID()), slog.String("error", msg))
	return "", 0, cause
}

// failRemaining marks every non-terminal chunk FAILED with the
// cancellation message, best-effort persisting each.
func (p *Pipeline) failRemaining(ctx context.Context, chunks []*model.Chunk) {
	for _, c := range chunks {
		if c.Status().IsTerminal() {
			continue
		}
		if err := c.Fail(apperr.Cancelled); err != nil {
			p.logger.Error("chunk cancellation fail transition failed", slog.String("chunk_id", c.ID()), slog.String("error", err.Error()))
			continue
		}
		p.persistChunkBestEffort(ctx, c)
	}
}

// persistChunkBestEffort implements the per-chunk "best-effort resilience
// on persistence errors" step: a single retry, since the chunk aggregate
// persists as one value rather than distinct columns, a minimal update is
// the same call repeated rather than a reduced field set.
func (p *Pipeline) persistChunkBestEffort(ctx context.Context, c *model.Chunk) {
	if err := p.store.UpdateChunk(ctx, c); err != nil {
		p.logger.Warn("chunk persist failed, retrying", slog.String("chunk_id", c.ID()), slog.String("error", err.Error()))
		if err := p.store.UpdateChunk(ctx, c); err != nil {
			p.logger.Error("chunk persist failed on retry", slog.String("chunk_id", c.ID()), slog.String("error", err.Error()))
		}
	}
}
