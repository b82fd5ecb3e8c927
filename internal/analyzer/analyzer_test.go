package analyzer

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"testing"
)

func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
}

// createTestClipWithTone creates a short video whose audio track is a
// sine tone, used as a stand-in for both the "video" and "master audio"
// inputs Analyze expects.
func createTestClipWithTone(t *testing.T, path string, duration float64, freq int) {
	t.Helper()
	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=blue:s=64x64:d=%.1f", duration),
		"-f", "lavfi",
		"-i", fmt.Sprintf("sine=frequency=%d:duration=%.1f", freq, duration),
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-c:a", "aac",
		"-shortest",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test clip: %v\noutput: %s", err, output)
	}
}

func TestAnalyzer_Analyze_ProducesBoundedChunkDuration(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	video := filepath.Join(tmpDir, "video.mp4")
	audio := filepath.Join(tmpDir, "audio.mp4")
	createTestClipWithTone(t, video, 3.0, 440)
	createTestClipWithTone(t, audio, 3.0, 440)

	a := New("")
	result, err := a.Analyze(context.Background(), video, audio, 128)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.BPM != 128 {
		t.Errorf("expected user-supplied BPM to win, got %v", result.BPM)
	}
	if result.ChunkDuration <= 0 || result.ChunkDuration > maxChunkDurationSeconds {
		t.Errorf("chunk duration %v out of bounds", result.ChunkDuration)
	}
}

func TestAnalyzer_Analyze_IgnoresOutOfRangeUserBPM(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	video := filepath.Join(tmpDir, "video.mp4")
	audio := filepath.Join(tmpDir, "audio.mp4")
	createTestClipWithTone(t, video, 3.0, 440)
	createTestClipWithTone(t, audio, 3.0, 440)

	a := New("")
	result, err := a.Analyze(context.Background(), video, audio, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.BPM == 500 {
		t.Error("expected out-of-range user BPM to be ignored in favor of the library estimate")
	}
}
