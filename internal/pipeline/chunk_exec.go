package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/maauso/clipforge-api/internal/model"
	"github.com/maauso/clipforge-api/internal/synth"
	"github.com/maauso/clipforge-api/internal/workspace"
)

// processChunk runs steps 3-10 of the per-chunk loop for one chunk that
// has already been transitioned to PROCESSING by the caller. It returns
// the local path of the muxed segment and the credits charged on
// success; on any failure the caller is responsible for transitioning
// the chunk to FAILED and persisting it.
func (p *Pipeline) processChunk(ctx context.Context, job *model.Job, ws *workspace.Workspace, chunk *model.Chunk, index int, video, audio string) (string, int, error) {
	slicePath := ws.ChunkPath(index, "slice.mp4")
	if err := p.runner.SliceReencode(ctx, video, slicePath, chunk.VideoStartTime(), chunk.ChunkDuration()); err != nil {
		return "", 0, fmt.Errorf("slice video: %w", err)
	}
	if err := p.verifyVideoSlice(ctx, slicePath); err != nil {
		return "", 0, err
	}

	sliceKey := fmt.Sprintf("temp_chunks/%s/chunk_%03d.mp4", job.ID(), index)
	signedSliceURL, err := p.uploadAndSign(ctx, sliceKey, slicePath)
	if err != nil {
		return "", 0, fmt.Errorf("upload video slice: %w", err)
	}

	images := job.TargetImages()
	imageIndex := index % len(images)
	imageURL := images[imageIndex]

	requestedAt := time.Now()
	requestID, err := p.synth.Submit(ctx, synth.SubmitOptions{
		DriverVideoURL: signedSliceURL,
		TargetImageURL: imageURL,
		Prompt:         job.Prompt(),
		WebhookURL:     p.webhookURL,
	})
	if err != nil {
		return "", 0, fmt.Errorf("submit synthesis request: %w", err)
	}

	// synth_request_id must be persisted before the first poll
	// observation, since a webhook may reference it first.
	if err := chunk.SetSynthRequest(requestID, requestedAt); err != nil {
		return "", 0, fmt.Errorf("record synth request: %w", err)
	}
	if err := p.store.UpdateChunk(ctx, chunk); err != nil {
		return "", 0, fmt.Errorf("persist synth request: %w", err)
	}

	result, err := synth.Await(ctx, p.synth, requestID)
	if err != nil {
		return "", 0, fmt.Errorf("await synthesis result: %w", err)
	}
	if result.Status == synth.StatusFailed {
		return "", 0, fmt.Errorf("synthesis failed: %s", result.Error)
	}

	externalVideoPath := ws.ChunkPath(index, "external.mp4")
	if err := downloadToFile(ctx, p.httpClient, result.VideoURL, externalVideoPath); err != nil {
		return "", 0, fmt.Errorf("download synthesis output: %w", err)
	}

	durationI, err := p.runner.ProbeDuration(ctx, externalVideoPath)
	if err != nil {
		return "", 0, fmt.Errorf("probe synthesis output duration: %w", err)
	}

	audioSlicePath := ws.ChunkPath(index, "audio_slice.wav")
	// audio_start_time = i * chunk_duration: no added sync_offset term,
	// since smart pre-trim already absorbed it.
	if err := p.runner.ExtractAudioSlice(ctx, audio, audioSlicePath, chunk.VideoStartTime(), durationI); err != nil {
		return "", 0, fmt.Errorf("extract audio slice: %w", err)
	}
	chunk.SetAudioTiming(chunk.VideoStartTime(), durationI)
	p.persistChunkBestEffort(ctx, chunk)

	segmentPath := ws.ChunkPath(index, "segment.mp4")
	if err := p.runner.Mux(ctx, externalVideoPath, audioSlicePath, segmentPath); err != nil {
		return "", 0, fmt.Errorf("mux segment: %w", err)
	}

	segmentKey := fmt.Sprintf("outputs/%s/chunk_%03d.mp4", job.ID(), index)
	segmentURL, err := p.uploadFile(ctx, segmentKey, segmentPath)
	if err != nil {
		return "", 0, fmt.Errorf("upload segment: %w", err)
	}

	// The stored video_url is the muxed segment's object storage URL,
	// never the raw external synthesis URL.
	if err := chunk.Complete(segmentURL, imageURL, imageIndex, result.VideoURL, time.Now()); err != nil {
		return "", 0, fmt.Errorf("complete chunk: %w", err)
	}
	p.persistChunkBestEffort(ctx, chunk)

	return segmentPath, chunk.CreditsCharged(), nil
}

func (p *Pipeline) verifyVideoSlice(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat video slice: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("video slice is empty")
	}
	hasVideo, err := p.runner.ProbeHasVideo(ctx, path)
	if err != nil {
		return fmt.Errorf("probe video slice: %w", err)
	}
	if !hasVideo {
		return fmt.Errorf("video slice has no video stream")
	}
	return nil
}

func (p *Pipeline) uploadAndSign(ctx context.Context, key, localPath string) (string, error) {
	if _, err := p.uploadFile(ctx, key, localPath); err != nil {
		return "", err
	}
	signed, err := p.storage.SignedURL(ctx, key)
	if err != nil {
		return "", fmt.Errorf("sign url for %s: %w", key, err)
	}
	return signed, nil
}

func (p *Pipeline) uploadFile(ctx context.Context, key, localPath string) (string, error) {
	f, err := os.Open(localPath) // #nosec G304 - localPath is workspace-scoped, built internally
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	url, err := p.storage.UploadToS3(ctx, key, f)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return url, nil
}
