package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	ErrRequestIDRequired = errors.New("synth: request id is required")
	ErrNoRequestIDReturned = errors.New("synth: submit response contained no request id")
)

// transport performs bearer-authenticated HTTP requests against the
// synthesis provider with exponential backoff on transient failures.
// Both provider adapters share this plumbing; they differ only in
// request/response shape.
type transport struct {
	credential CredentialSource
	httpClient *http.Client
	baseURL    string
	maxRetries uint64
	baseBackoff time.Duration
}

func newTransport(credential CredentialSource, baseURL string, httpClient *http.Client) transport {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return transport{
		credential:  credential,
		httpClient:  httpClient,
		baseURL:     baseURL,
		maxRetries:  3,
		baseBackoff: time.Second,
	}
}

// retryableTransportError wraps transport/5xx/429 failures, the only
// failures the backoff policy retries.
type retryableTransportError struct{ err error }

func (e *retryableTransportError) Error() string { return e.err.Error() }
func (e *retryableTransportError) Unwrap() error { return e.err }

func (t transport) doWithRetry(ctx context.Context, method, rawURL string, body []byte, out interface{}) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = t.baseBackoff
	bo := backoff.WithContext(backoff.WithMaxRetries(policy, t.maxRetries), ctx)

	operation := func() error {
		err := t.do(ctx, method, rawURL, body, out)
		if err == nil {
			return nil
		}
		var retryable *retryableTransportError
		if errors.As(err, &retryable) {
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(operation, bo); err != nil {
		return fmt.Errorf("synth: request failed after retries: %w", err)
	}
	return nil
}

func (t transport) do(ctx context.Context, method, rawURL string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("synth: build request: %w", err)
	}

	token, err := t.credential.Token()
	if err != nil {
		return fmt.Errorf("synth: obtain bearer token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return &retryableTransportError{err: fmt.Errorf("synth: transport error: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableTransportError{err: fmt.Errorf("synth: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 || resp.StatusCode == 429 {
			return &retryableTransportError{err: fmt.Errorf("synth: status %d: %s", resp.StatusCode, string(respBody))}
		}
		return fmt.Errorf("synth: status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("synth: unmarshal response: %w", err)
		}
	}
	return nil
}

func withWebhook(rawURL, webhookURL string) string {
	if webhookURL == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("webhook", webhookURL)
	u.RawQuery = q.Encode()
	return u.String()
}

// videoURLShape accepts both documented result shapes: a nested
// response.video.url, or a top-level video.url.
type videoURLShape struct {
	Response struct {
		Video struct {
			URL string `json:"url"`
		} `json:"video"`
	} `json:"response"`
	Video struct {
		URL string `json:"url"`
	} `json:"video"`
}

func (v videoURLShape) url() string {
	if v.Response.Video.URL != "" {
		return v.Response.Video.URL
	}
	return v.Video.URL
}
