package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/maauso/clipforge-api/internal/analyzer"
	"github.com/maauso/clipforge-api/internal/media"
	"github.com/maauso/clipforge-api/internal/model"
	"github.com/maauso/clipforge-api/internal/pipeline"
	"github.com/maauso/clipforge-api/internal/storage"
	"github.com/maauso/clipforge-api/internal/store"
)

// downloadTimeout bounds every media asset fetch the HTTP layer performs
// on behalf of the analyze/preview endpoints, matching the 120s ceiling
// the pipeline itself applies to master-asset downloads.
const downloadTimeout = 120 * time.Second

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	store     store.Store
	analyzer  *analyzer.Analyzer
	runner    media.Runner
	storage   storage.Storage
	validator *validator.Validate
	logger    *slog.Logger

	httpClient          *http.Client
	webhookSharedSecret string
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithHTTPClient overrides the client used to fetch analyze/preview assets.
func WithHTTPClient(c *http.Client) HandlerOption {
	return func(h *Handlers) {
		if c != nil {
			h.httpClient = c
		}
	}
}

// WithWebhookSharedSecret gates /v1/analyze and the webhook endpoint
// behind a bearer shared secret. Empty disables the gate.
func WithWebhookSharedSecret(secret string) HandlerOption {
	return func(h *Handlers) {
		h.webhookSharedSecret = secret
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(st store.Store, an *analyzer.Analyzer, runner media.Runner, storageClient storage.Storage, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		store:      st,
		analyzer:   an,
		runner:     runner,
		storage:    storageClient,
		validator:  validator.New(),
		logger:     logger,
		httpClient: &http.Client{Timeout: downloadTimeout},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateJob handles POST /v1/jobs requests: admits a job in PENDING for
// the scheduler's tick loop to later dispatch.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	ctx := r.Context()
	generationID := req.GenerationID
	if generationID == "" {
		generationID = "gen_" + uuid.NewString()
		gen := model.NewGeneration(generationID)
		if err := h.store.InsertGeneration(ctx, gen); err != nil {
			h.logger.Error("failed to create generation", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to create generation", "GENERATION_CREATION_FAILED")
			return
		}
	}

	newJob, err := model.New(model.NewJobParams{
		GenerationID: generationID,
		Tier:         model.Tier(req.Tier),
		IsFirstTime:  req.IsFirstTime,
		VideoURL:     req.VideoURL,
		AudioURL:     req.AudioURL,
		TargetImages: req.TargetImages,
		Prompt:       req.Prompt,
		UserBPM:      req.UserBPM,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	if err := h.store.InsertJob(ctx, newJob); err != nil {
		h.logger.Error("failed to create job", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	h.logger.Info("job created",
		slog.String("job_id", newJob.ID()),
		slog.String("generation_id", generationID),
		slog.String("tier", string(newJob.Tier())),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:           newJob.ID(),
		GenerationID: generationID,
		Status:       string(newJob.Status()),
	})
}

// GetJob handles GET /v1/jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	foundJob, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job", slog.String("job_id", jobID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, JobResponse{
		ID:             foundJob.ID(),
		GenerationID:   foundJob.GenerationID(),
		Tier:           string(foundJob.Tier()),
		Status:         string(foundJob.Status()),
		AnalysisStatus: string(foundJob.AnalysisStatus()),
		OutputURL:      foundJob.OutputURL(),
		Error:          foundJob.ErrorMessage(),
	})
}

// GetGeneration handles GET /v1/generations/{id} requests.
func (h *Handlers) GetGeneration(w http.ResponseWriter, r *http.Request) {
	genID := r.PathValue("id")
	if genID == "" {
		writeError(w, http.StatusBadRequest, "generation ID is required", "MISSING_GENERATION_ID")
		return
	}

	gen, err := h.store.GetGeneration(r.Context(), genID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "generation not found", "GENERATION_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get generation", slog.String("generation_id", genID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get generation", "GENERATION_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, GenerationResponse{
		ID:                 gen.ID(),
		Status:             string(gen.Status()),
		CurrentStage:       string(gen.Stage()),
		ProgressPercentage: gen.ProgressPercentage(),
		FinalOutputPath:    gen.FinalOutputPath(),
		CostCredits:        gen.CostCredits(),
	})
}

// Analyze handles POST /v1/analyze requests.
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "invalid or missing bearer credential", "UNAUTHORIZED")
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	ctx := r.Context()
	if req.JobID != "" {
		if err := h.recordAnalysisQueued(ctx, req.JobID); err != nil {
			h.logger.Error("failed to persist queued-analysis checkpoint", slog.String("job_id", req.JobID), slog.String("error", err.Error()))
		}
	}

	workDir, cleanup, err := newScratchDir("analyze")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to allocate scratch space", "SCRATCH_FAILED")
		return
	}
	defer cleanup()

	videoPath := filepath.Join(workDir, "video.mp4")
	audioPath := filepath.Join(workDir, "audio.src")
	if err := downloadToFile(ctx, h.httpClient, req.Video, videoPath); err != nil {
		writeError(w, http.StatusBadRequest, "failed to download video: "+err.Error(), "DOWNLOAD_FAILED")
		return
	}
	if err := downloadToFile(ctx, h.httpClient, req.Audio, audioPath); err != nil {
		writeError(w, http.StatusBadRequest, "failed to download audio: "+err.Error(), "DOWNLOAD_FAILED")
		return
	}

	result, err := h.analyzer.Analyze(ctx, videoPath, audioPath, req.BPM)
	if err != nil {
		if req.JobID != "" {
			h.recordAnalysisFailure(ctx, req.JobID, err.Error())
		}
		h.logger.Error("analysis failed", slog.String("job_id", req.JobID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "analysis failed: "+err.Error(), "ANALYSIS_FAILED")
		return
	}

	if req.JobID != "" {
		if err := h.recordAnalysisSuccess(ctx, req.JobID, result); err != nil {
			h.logger.Error("failed to persist analysis result", slog.String("job_id", req.JobID), slog.String("error", err.Error()))
		}
	}

	writeJSON(w, http.StatusOK, AnalyzeResponse{
		Status:        "analyzed",
		JobID:         req.JobID,
		SyncOffset:    result.SyncOffset,
		BPM:           result.BPM,
		ChunkDuration: result.ChunkDuration,
		Analysis:      toAnalysisDiagnostics(result),
	})
}

// recordAnalysisQueued writes the 5% "queued analysis" progress
// checkpoint the moment an analyze request for a known job arrives,
// ahead of the 10% checkpoint recordAnalysisSuccess writes once analysis
// actually completes.
func (h *Handlers) recordAnalysisQueued(ctx context.Context, jobID string) error {
	j, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	gen, err := h.store.GetGeneration(ctx, j.GenerationID())
	if err != nil {
		return err
	}
	if err := gen.Advance(model.StageAnalyzing, 5); err != nil {
		return err
	}
	return h.store.UpdateGeneration(ctx, gen)
}

func (h *Handlers) recordAnalysisSuccess(ctx context.Context, jobID string, result analyzer.Result) error {
	j, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := j.SetAnalyzed(result.SyncOffset, result.BPM, result.ChunkDuration); err != nil {
		return err
	}
	if err := h.store.UpdateJob(ctx, j); err != nil {
		return err
	}

	gen, err := h.store.GetGeneration(ctx, j.GenerationID())
	if err != nil {
		return err
	}
	if err := gen.Advance(model.StageAnalyzing, 10); err != nil {
		return err
	}
	return h.store.UpdateGeneration(ctx, gen)
}

func (h *Handlers) recordAnalysisFailure(ctx context.Context, jobID, message string) {
	j, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		return
	}
	j.SetAnalysisFailed(message)
	if err := h.store.UpdateJob(ctx, j); err != nil {
		h.logger.Error("failed to persist analysis failure", slog.String("job_id", jobID), slog.String("error", err.Error()))
	}
}

func toAnalysisDiagnostics(result analyzer.Result) AnalysisDiagnostics {
	return AnalysisDiagnostics{
		BPM:           result.BPM,
		SyncOffset:    result.SyncOffset,
		ChunkDuration: result.ChunkDuration,
		OnsetDetection: OnsetDiagnostics{
			FallbackUsed:      result.OnsetFallbackUsed,
			FirstOnsetSeconds: result.FirstOnsetSeconds,
			Reason:            result.FallbackReason,
		},
	}
}

// Preview handles POST /v1/preview requests: runs the analyzer inline
// and emits per-chunk signed URLs for a dry-run display, without
// creating a Job or Generation row.
func (h *Handlers) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	ctx := r.Context()
	workDir, cleanup, err := newScratchDir("preview")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to allocate scratch space", "SCRATCH_FAILED")
		return
	}
	defer cleanup()

	videoPath := filepath.Join(workDir, "video.mp4")
	audioPath := filepath.Join(workDir, "audio.src")
	if err := downloadToFile(ctx, h.httpClient, req.VideoURL, videoPath); err != nil {
		writeError(w, http.StatusBadRequest, "failed to download video: "+err.Error(), "DOWNLOAD_FAILED")
		return
	}
	if err := downloadToFile(ctx, h.httpClient, req.AudioURL, audioPath); err != nil {
		writeError(w, http.StatusBadRequest, "failed to download audio: "+err.Error(), "DOWNLOAD_FAILED")
		return
	}

	result, err := h.analyzer.Analyze(ctx, videoPath, audioPath, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "analysis failed: "+err.Error(), "ANALYSIS_FAILED")
		return
	}

	videoDuration, err := h.runner.ProbeDuration(ctx, videoPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to probe video: "+err.Error(), "PROBE_FAILED")
		return
	}
	audioDuration, err := h.runner.ProbeDuration(ctx, audioPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to probe audio: "+err.Error(), "PROBE_FAILED")
		return
	}

	grid := pipeline.ChunkGrid(videoDuration, result.ChunkDuration)
	uniqueSuffix := uuid.NewString()
	chunks := make([]PreviewChunk, 0, len(grid))

	videoStart := 0.0
	for i, duration := range grid {
		videoChunkPath := filepath.Join(workDir, fmt.Sprintf("chunk_%03d_video.mp4", i))
		audioChunkPath := filepath.Join(workDir, fmt.Sprintf("chunk_%03d_audio.wav", i))

		if err := h.runner.SliceReencode(ctx, videoPath, videoChunkPath, videoStart, duration); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to slice preview video: "+err.Error(), "MEDIA_FAILED")
			return
		}
		audioStart := float64(i) * result.ChunkDuration
		if err := h.runner.ExtractAudioSlice(ctx, audioPath, audioChunkPath, audioStart, duration); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to slice preview audio: "+err.Error(), "MEDIA_FAILED")
			return
		}

		videoKey := fmt.Sprintf("chunk_previews/%s/chunk_%03d_video.mp4", uniqueSuffix, i)
		audioKey := fmt.Sprintf("chunk_previews/%s/chunk_%03d_audio.wav", uniqueSuffix, i)
		videoURL, err := h.uploadPreviewArtifact(ctx, videoKey, videoChunkPath)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to publish preview video: "+err.Error(), "STORAGE_FAILED")
			return
		}
		audioURL, err := h.uploadPreviewArtifact(ctx, audioKey, audioChunkPath)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to publish preview audio: "+err.Error(), "STORAGE_FAILED")
			return
		}

		chunk := PreviewChunk{
			ChunkIndex:    i,
			VideoChunkURL: videoURL,
			AudioChunkURL: audioURL,
			VideoStart:    videoStart,
			VideoEnd:      videoStart + duration,
			AudioStart:    audioStart,
			AudioEnd:      audioStart + duration,
		}
		if len(req.ImageURLs) > 0 {
			idx := i % len(req.ImageURLs)
			chunk.ImageURL = req.ImageURLs[idx]
			chunk.ImageIndex = &idx
		}
		chunks = append(chunks, chunk)
		videoStart += duration
	}

	writeJSON(w, http.StatusOK, PreviewResponse{
		VideoDuration: videoDuration,
		AudioDuration: audioDuration,
		NumChunks:     len(chunks),
		Chunks:        chunks,
		Analysis:      toAnalysisDiagnostics(result),
	})
}

// uploadPreviewArtifact uploads src under key, retrying once against a
// fresh key on failure (a delete-and-reupload stand-in for a backend
// that rejects a duplicate key with a conflict).
func (h *Handlers) uploadPreviewArtifact(ctx context.Context, key, src string) (string, error) {
	f, err := os.Open(src) // #nosec G304 - src is a scratch-dir path built internally
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	if _, err := h.storage.UploadToS3(ctx, key, f); err != nil {
		retryKey := key + "-" + uuid.NewString()
		f2, openErr := os.Open(src) // #nosec G304 - src is a scratch-dir path built internally
		if openErr != nil {
			return "", err
		}
		defer func() { _ = f2.Close() }()
		if _, retryErr := h.storage.UploadToS3(ctx, retryKey, f2); retryErr != nil {
			return "", retryErr
		}
		key = retryKey
	}
	return h.storage.SignedURL(ctx, key)
}

// Webhook handles POST /v1/webhook/{chunk_id} requests: the synthesis
// provider's out-of-band completion callback. Correlation is the sole
// responsibility here; the poll loop inside the pipeline remains the
// path of record for advancing a chunk's state.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "invalid or missing bearer credential", "UNAUTHORIZED")
		return
	}

	var req WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	correlationID := req.correlationID()
	if correlationID == "" {
		writeError(w, http.StatusBadRequest, "request_id or gateway_request_id is required", "MISSING_CORRELATION_ID")
		return
	}

	chunk, err := h.store.FindChunkBySynthRequestID(r.Context(), correlationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The poll loop may not yet have persisted this request id,
			// or it belongs to a different deployment; either way this
			// is not actionable here.
			writeJSON(w, http.StatusOK, map[string]string{"status": "no matching chunk"})
			return
		}
		h.logger.Error("webhook correlation lookup failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "correlation lookup failed", "WEBHOOK_LOOKUP_FAILED")
		return
	}

	h.logger.Info("webhook received",
		slog.String("chunk_id", chunk.ID()),
		slog.String("synth_request_id", correlationID),
		slog.String("provider_status", req.Status),
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func (h *Handlers) authorized(r *http.Request) bool {
	if h.webhookSharedSecret == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	return header == "Bearer "+h.webhookSharedSecret
}

func newScratchDir(prefix string) (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp("", "clipforge-"+prefix+"-")
	if err != nil {
		return "", nil, err
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

func downloadToFile(ctx context.Context, client *http.Client, rawURL, dst string) error {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build download request for %s: %w", rawURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download %s: status %d", rawURL, resp.StatusCode)
	}

	out, err := os.Create(dst) // #nosec G304 - dst is a scratch-dir path built internally
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
