package synth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
)

// ResultUploader persists a decoded inline result so this client can
// return a URL like DownloadURLClient does, keeping both provider shapes
// behind the same Client contract. The caller supplies the implementation;
// the storage package does not provide one.
type ResultUploader interface {
	UploadSynthResult(ctx context.Context, requestID string, data []byte) (url string, err error)
}

// InlineBase64Client implements Client against a provider that returns
// the generated video as an inline base64 payload rather than a
// downloadable URL — the second real gateway convention this package is
// grounded on.
var _ Client = (*InlineBase64Client)(nil)

type InlineBase64Client struct {
	transport transport
	endpoint  string
	modelID   string
	uploader  ResultUploader
}

// NewInlineBase64Client builds a Client for the inline-base64 provider
// shape, uploading decoded results via uploader to produce a stable URL.
func NewInlineBase64Client(credential CredentialSource, endpoint, modelID string, uploader ResultUploader, httpClient *http.Client) *InlineBase64Client {
	return &InlineBase64Client{
		transport: newTransport(credential, endpoint, httpClient),
		endpoint:  endpoint,
		modelID:   modelID,
		uploader:  uploader,
	}
}

type inlineSubmitRequest struct {
	InputType   string `json:"input_type"`
	ModelName   string `json:"model_name"`
	ImageURL    string `json:"image_url"`
	VideoURL    string `json:"video_url"`
	Prompt      string `json:"prompt,omitempty"`
}

type inlineSubmitResponse struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

func (c *InlineBase64Client) Submit(ctx context.Context, opts SubmitOptions) (string, error) {
	reqBody := inlineSubmitRequest{
		InputType: "image",
		ModelName: c.modelID,
		ImageURL:  opts.TargetImageURL,
		VideoURL:  opts.DriverVideoURL,
		Prompt:    opts.Prompt,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("synth: marshal submit request: %w", err)
	}

	submitURL := withWebhook(c.endpoint+"/run", opts.WebhookURL)

	var resp inlineSubmitResponse
	if err := c.transport.doWithRetry(ctx, http.MethodPost, submitURL, body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("synth: submit rejected: %s", resp.Error)
		}
		return "", ErrNoRequestIDReturned
	}
	return resp.ID, nil
}

type inlineStatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Output struct {
		VideoBase64 string `json:"video"`
	} `json:"output"`
}

func (c *InlineBase64Client) Poll(ctx context.Context, requestID string) (PollResult, error) {
	if requestID == "" {
		return PollResult{}, ErrRequestIDRequired
	}
	var resp inlineStatusResponse
	statusURL := fmt.Sprintf("%s/status/%s", c.endpoint, requestID)
	if err := c.transport.doWithRetry(ctx, http.MethodGet, statusURL, nil, &resp); err != nil {
		return PollResult{}, err
	}

	result := PollResult{Status: mapStatus(resp.Status)}
	switch result.Status {
	case StatusCompleted:
		url, err := c.decodeAndUpload(ctx, requestID, resp.Output.VideoBase64)
		if err != nil {
			return PollResult{}, err
		}
		result.VideoURL = url
	case StatusFailed:
		result.Error = resp.Error
	}
	return result, nil
}

func (c *InlineBase64Client) FetchResult(ctx context.Context, requestID string) (PollResult, error) {
	if requestID == "" {
		return PollResult{}, ErrRequestIDRequired
	}
	var resp inlineStatusResponse
	resultURL := fmt.Sprintf("%s/result/%s", c.endpoint, requestID)
	if err := c.transport.doWithRetry(ctx, http.MethodGet, resultURL, nil, &resp); err != nil {
		return PollResult{}, err
	}
	result := PollResult{Status: mapStatus(resp.Status)}
	if result.Status == StatusCompleted {
		url, err := c.decodeAndUpload(ctx, requestID, resp.Output.VideoBase64)
		if err != nil {
			return PollResult{}, err
		}
		result.VideoURL = url
	}
	return result, nil
}

func (c *InlineBase64Client) decodeAndUpload(ctx context.Context, requestID, encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("synth: decode inline result: %w", err)
	}
	url, err := c.uploader.UploadSynthResult(ctx, requestID, raw)
	if err != nil {
		return "", fmt.Errorf("synth: persist inline result: %w", err)
	}
	return url, nil
}
