// Package workspace scopes a job's intermediate files to one directory
// that is created on acquisition and torn down by the caller's deferred
// release, generalizing the teacher's storage.Storage.SaveTemp/CleanupTemp
// pairing into a single handle a pipeline run can hold for its lifetime.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Workspace is a job-scoped scratch directory.
type Workspace struct {
	Dir   string
	jobID string
}

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// ChunkPath builds the scratch path for a chunk-numbered intermediate
// file, e.g. ChunkPath(3, "video_slice.mp4").
func (w *Workspace) ChunkPath(index int, name string) string {
	return w.Path(fmt.Sprintf("chunk_%03d_%s", index, name))
}

// Acquire creates a scoped directory for jobID under baseDir and returns
// it along with a release function the caller must defer. If the
// directory can't be created, Acquire falls back to the process-wide
// temp directory rather than failing the caller outright, logging the
// degradation.
func Acquire(baseDir, jobID string) (*Workspace, func()) {
	dir := filepath.Join(baseDir, jobID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		slog.Warn("workspace: failed to create scoped directory, falling back to process temp dir",
			"job_id", jobID, "error", err)
		dir = os.TempDir()
	}

	w := &Workspace{Dir: dir, jobID: jobID}
	release := func() {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("workspace: cleanup failed", "job_id", jobID, "dir", dir, "error", err)
		}
	}
	return w, release
}
