package scheduler

import (
	"fmt"
	"os"
)

func openForUpload(path string) (*os.File, error) {
	f, err := os.Open(path) // #nosec G304 - path is produced internally by the pipeline
	if err != nil {
		return nil, fmt.Errorf("open final artifact: %w", err)
	}
	return f, nil
}
