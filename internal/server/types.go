// Package server provides the HTTP server for the clipforge API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

// CreateJobRequest is the HTTP request body for creating a new job,
// PENDING-state admission into the queue the scheduler later dispatches from.
type CreateJobRequest struct {
	GenerationID string   `json:"generation_id,omitempty"`
	Tier         string   `json:"tier" validate:"required,oneof=demo label artist open_mic industry"`
	IsFirstTime  bool     `json:"is_first_time"`
	VideoURL     string   `json:"video_url" validate:"required,url"`
	AudioURL     string   `json:"audio_url" validate:"required,url"`
	TargetImages []string `json:"target_images" validate:"required,min=1,dive,url"`
	Prompt       string   `json:"prompt,omitempty" validate:"max=100"`
	UserBPM      *int     `json:"user_bpm,omitempty" validate:"omitempty,min=1,max=300"`
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	ID           string `json:"id"`
	GenerationID string `json:"generation_id"`
	Status       string `json:"status"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID             string `json:"id"`
	GenerationID   string `json:"generation_id"`
	Tier           string `json:"tier"`
	Status         string `json:"status"`
	AnalysisStatus string `json:"analysis_status"`
	OutputURL      string `json:"output_url,omitempty"`
	Error          string `json:"error,omitempty"`
}

// GenerationResponse is the HTTP response for getting a generation's rollup.
type GenerationResponse struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	CurrentStage       string `json:"current_stage,omitempty"`
	ProgressPercentage int    `json:"progress_percentage"`
	FinalOutputPath    string `json:"final_output_path,omitempty"`
	CostCredits        int    `json:"cost_credits"`
}

// AnalyzeRequest is the HTTP request body for POST /v1/analyze.
type AnalyzeRequest struct {
	Video string  `json:"video" validate:"required,url"`
	Audio string  `json:"audio" validate:"required,url"`
	JobID string  `json:"job_id,omitempty"`
	BPM   float64 `json:"bpm,omitempty"`
}

// OnsetDiagnostics reports the analyzer's onset-fallback decision.
type OnsetDiagnostics struct {
	FallbackUsed      bool    `json:"fallback_used"`
	FirstOnsetSeconds float64 `json:"first_onset_seconds,omitempty"`
	Reason            string  `json:"reason,omitempty"`
}

// AnalysisDiagnostics is the shared analysis result block embedded in
// both the analyze and preview responses.
type AnalysisDiagnostics struct {
	BPM            float64          `json:"bpm"`
	SyncOffset     float64          `json:"sync_offset"`
	ChunkDuration  float64          `json:"chunk_duration"`
	OnsetDetection OnsetDiagnostics `json:"onset_detection"`
}

// AnalyzeResponse is the HTTP response for POST /v1/analyze.
type AnalyzeResponse struct {
	Status        string              `json:"status"`
	JobID         string              `json:"job_id,omitempty"`
	SyncOffset    float64             `json:"sync_offset"`
	BPM           float64             `json:"bpm"`
	ChunkDuration float64             `json:"chunk_duration"`
	Analysis      AnalysisDiagnostics `json:"analysis"`
}

// PreviewRequest is the HTTP request body for POST /v1/preview.
type PreviewRequest struct {
	VideoURL  string   `json:"video_url" validate:"required,url"`
	AudioURL  string   `json:"audio_url" validate:"required,url"`
	ImageURLs []string `json:"image_urls,omitempty" validate:"omitempty,dive,url"`
}

// PreviewChunk is one dry-run chunk entry in the preview response.
type PreviewChunk struct {
	ChunkIndex    int     `json:"chunk_index"`
	VideoChunkURL string  `json:"video_chunk_url"`
	AudioChunkURL string  `json:"audio_chunk_url"`
	ImageURL      string  `json:"image_url,omitempty"`
	ImageIndex    *int    `json:"image_index,omitempty"`
	VideoStart    float64 `json:"video_start_time"`
	VideoEnd      float64 `json:"video_end_time"`
	AudioStart    float64 `json:"audio_start_time"`
	AudioEnd      float64 `json:"audio_end_time"`
}

// PreviewResponse is the HTTP response for POST /v1/preview.
type PreviewResponse struct {
	VideoDuration float64             `json:"video_duration"`
	AudioDuration float64             `json:"audio_duration"`
	NumChunks     int                 `json:"num_chunks"`
	Chunks        []PreviewChunk      `json:"chunks"`
	Analysis      AnalysisDiagnostics `json:"analysis"`
}

// WebhookRequest is the inbound payload from the synthesis provider's
// out-of-band completion callback. The correlator accepts either field
// name the provider may use for the synth request identifier.
type WebhookRequest struct {
	RequestID        string `json:"request_id,omitempty"`
	GatewayRequestID string `json:"gateway_request_id,omitempty"`
	Status           string `json:"status,omitempty"`
}

func (w WebhookRequest) correlationID() string {
	if w.RequestID != "" {
		return w.RequestID
	}
	return w.GatewayRequestID
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
