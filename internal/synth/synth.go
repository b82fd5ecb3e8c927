// Package synth is the Synthesis API Client: single-shot submission,
// status polling with fallback, and result extraction against the
// external motion-control video API. Two concrete provider shapes (an
// inline-base64-result provider and a download-URL-result provider) are
// unified behind one Client interface, mirroring the teacher's
// generator.Generator abstraction over its two backing GPU gateways.
package synth

import (
	"context"
	"errors"
	"time"
)

// Status is the external synthesis job's lifecycle state.
type Status string

const (
	StatusInQueue    Status = "IN_QUEUE"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// IsTerminal reports whether the status admits no further poll transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SubmitOptions is the per-chunk synthesis request.
type SubmitOptions struct {
	DriverVideoURL string
	TargetImageURL string
	Prompt         string // at most 100 code points; longer prompts are rejected at job creation
	// WebhookURL, when non-empty, is passed as a query parameter (never
	// in the JSON body) so the provider can push a completion callback
	// that coexists with this client's own polling.
	WebhookURL string
}

// PollResult is the outcome of one status observation or result fetch.
type PollResult struct {
	Status   Status
	VideoURL string
	Error    string
}

// Client is the Synthesis API port: {Submit, Poll, FetchResult}.
type Client interface {
	// Submit posts a synthesis request and returns the provider's opaque
	// request id. Callers must persist this id before the first Poll,
	// since an out-of-band webhook may reference it first.
	Submit(ctx context.Context, opts SubmitOptions) (requestID string, err error)

	// Poll checks status once. It does not sleep or retry across
	// attempts; that loop lives in Await.
	Poll(ctx context.Context, requestID string) (PollResult, error)

	// FetchResult fetches the result object directly, bypassing the
	// status endpoint. Used both on COMPLETED status and as the
	// fallback path when the status endpoint itself is flaky.
	FetchResult(ctx context.Context, requestID string) (PollResult, error)
}

// Polling parameters from the external interface design.
const (
	pollInterval       = 5 * time.Second
	maxPollAttempts    = 60 // 60 * 5s = 5 minute ceiling
	transientThreshold = 10
	fallbackAfter      = 5
)

// ErrPollTimeout is returned by Await when maxPollAttempts is exhausted
// without observing a terminal status.
var ErrPollTimeout = errors.New("synth: polling exhausted without a terminal result")

// Await polls requestID to a terminal PollResult, implementing the
// status-endpoint-with-result-fallback contract: once transport errors
// on the status endpoint cross transientThreshold and at least
// fallbackAfter attempts have elapsed, every subsequent attempt also
// tries FetchResult directly before the next sleep.
func Await(ctx context.Context, client Client, requestID string) (PollResult, error) {
	transientErrors := 0

	for attempt := 1; attempt <= maxPollAttempts; attempt++ {
		result, err := client.Poll(ctx, requestID)
		if err != nil {
			transientErrors++
		} else if result.Status.IsTerminal() {
			return result, nil
		}

		if transientErrors > transientThreshold && attempt >= fallbackAfter {
			if fallback, ferr := client.FetchResult(ctx, requestID); ferr == nil && fallback.Status.IsTerminal() {
				return fallback, nil
			}
		}

		if attempt == maxPollAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return PollResult{}, ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	return PollResult{}, ErrPollTimeout
}
