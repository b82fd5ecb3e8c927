package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// DownloadURLClient implements Client against a provider that returns a
// downloadable video URL directly in its result payload, one of the two
// real external gateway conventions this package is grounded on.
var _ Client = (*DownloadURLClient)(nil)

type DownloadURLClient struct {
	transport  transport
	endpoint   string
	modelID    string
}

// NewDownloadURLClient builds a Client for the download-URL provider
// shape. endpoint is the submit/status/result base URL; modelID selects
// the motion-control model variant.
func NewDownloadURLClient(credential CredentialSource, endpoint, modelID string, httpClient *http.Client) *DownloadURLClient {
	return &DownloadURLClient{
		transport: newTransport(credential, endpoint, httpClient),
		endpoint:  endpoint,
		modelID:   modelID,
	}
}

type downloadSubmitRequest struct {
	ModelName           string `json:"model_name"`
	DriverVideoURL       string `json:"driver_video_url"`
	ImageURL             string `json:"image_url"`
	Prompt               string `json:"prompt,omitempty"`
}

type downloadSubmitResponse struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
}

func (c *DownloadURLClient) Submit(ctx context.Context, opts SubmitOptions) (string, error) {
	reqBody := downloadSubmitRequest{
		ModelName:      c.modelID,
		DriverVideoURL: opts.DriverVideoURL,
		ImageURL:       opts.TargetImageURL,
		Prompt:         opts.Prompt,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("synth: marshal submit request: %w", err)
	}

	submitURL := withWebhook(c.endpoint+"/submit", opts.WebhookURL)

	var resp downloadSubmitResponse
	if err := c.transport.doWithRetry(ctx, http.MethodPost, submitURL, body, &resp); err != nil {
		return "", err
	}
	if resp.RequestID == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("synth: submit rejected: %s", resp.Error)
		}
		return "", ErrNoRequestIDReturned
	}
	return resp.RequestID, nil
}

type downloadStatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	videoURLShape
}

func (c *DownloadURLClient) Poll(ctx context.Context, requestID string) (PollResult, error) {
	if requestID == "" {
		return PollResult{}, ErrRequestIDRequired
	}
	var resp downloadStatusResponse
	statusURL := fmt.Sprintf("%s/status/%s", c.endpoint, requestID)
	if err := c.transport.doWithRetry(ctx, http.MethodGet, statusURL, nil, &resp); err != nil {
		return PollResult{}, err
	}

	result := PollResult{Status: mapStatus(resp.Status)}
	switch result.Status {
	case StatusCompleted:
		result.VideoURL = resp.url()
	case StatusFailed:
		result.Error = resp.Error
	}
	return result, nil
}

func (c *DownloadURLClient) FetchResult(ctx context.Context, requestID string) (PollResult, error) {
	if requestID == "" {
		return PollResult{}, ErrRequestIDRequired
	}
	var resp downloadStatusResponse
	resultURL := fmt.Sprintf("%s/result/%s", c.endpoint, requestID)
	if err := c.transport.doWithRetry(ctx, http.MethodGet, resultURL, nil, &resp); err != nil {
		return PollResult{}, err
	}
	result := PollResult{Status: mapStatus(resp.Status)}
	if result.Status == StatusCompleted {
		result.VideoURL = resp.url()
	}
	return result, nil
}

func mapStatus(raw string) Status {
	switch raw {
	case "IN_QUEUE", "QUEUED":
		return StatusInQueue
	case "IN_PROGRESS", "RUNNING", "PROCESSING":
		return StatusInProgress
	case "COMPLETED", "SUCCEEDED":
		return StatusCompleted
	case "FAILED", "ERROR":
		return StatusFailed
	default:
		return Status(raw)
	}
}
