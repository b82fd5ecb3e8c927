package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/maauso/clipforge-api/internal/media"
	"github.com/maauso/clipforge-api/internal/workspace"
)

// syncOffsetEpsilon is the dead zone below which sync_offset is treated
// as zero and no pre-trim is applied.
const syncOffsetEpsilon = 0.01

// smartPreTrim applies the sign-based pre-trim once, so chunk 0 starts at
// time zero in both streams and every later chunk is a flat offset in the
// chunk grid with no per-chunk delay filter needed at mux time.
func smartPreTrim(ctx context.Context, runner media.Runner, ws *workspace.Workspace, videoPath, audioPath string, syncOffset float64) (trimmedVideo, trimmedAudio string, err error) {
	if math.Abs(syncOffset) < syncOffsetEpsilon {
		return videoPath, audioPath, nil
	}

	if syncOffset > 0 {
		dst := ws.Path("video_pretrimmed.mp4")
		if err := runner.TrimReencode(ctx, videoPath, dst, syncOffset); err != nil {
			return "", "", fmt.Errorf("pipeline: pre-trim video head: %w", err)
		}
		return dst, audioPath, nil
	}

	// .m4a, not .wav: TrimReencode always writes an AAC audio stream,
	// which a WAV container can't carry.
	dst := ws.Path("audio_pretrimmed.m4a")
	if err := runner.TrimReencode(ctx, audioPath, dst, -syncOffset); err != nil {
		return "", "", fmt.Errorf("pipeline: pre-trim audio head: %w", err)
	}
	return videoPath, dst, nil
}
