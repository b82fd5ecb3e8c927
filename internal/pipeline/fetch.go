package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// downloadTimeout bounds every media asset fetch, per the concurrency
// model's 120s download ceiling.
const downloadTimeout = 120 * time.Second

// downloadToFile fetches rawURL and writes the body to dst, overwriting
// any existing file.
func downloadToFile(ctx context.Context, client *http.Client, rawURL, dst string) error {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("pipeline: build download request for %s: %w", rawURL, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("pipeline: download %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("pipeline: download %s: status %d", rawURL, resp.StatusCode)
	}

	f, err := os.Create(dst) // #nosec G304 - dst is a workspace-scoped path built internally
	if err != nil {
		return fmt.Errorf("pipeline: create %s: %w", dst, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("pipeline: write %s: %w", dst, err)
	}
	return nil
}
