package analyzer

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"

	"github.com/maauso/clipforge-api/internal/apperr"
)

// decodeMonoPCM shells out to ffmpeg to resample src to a headerless,
// mono, 16-bit little-endian PCM stream at sampleRate and returns it as
// normalized float64 samples in [-1, 1]. Asking ffmpeg to emit raw
// samples on stdout avoids needing a WAV container parser for audio this
// process itself produced.
func decodeMonoPCM(ctx context.Context, ffmpegPath, src string, sampleRate int) ([]float64, error) {
	args := []string{
		"-y",
		"-i", src,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"pipe:1",
	}
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Wrap(apperr.KindTimeout, "decode pcm cancelled", ctx.Err())
		}
		return nil, apperr.Wrap(apperr.KindMedia, "decode pcm: "+stderr.String(), err)
	}

	raw := stdout.Bytes()
	samples := make([]float64, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
		samples[i] = float64(v) / 32768.0
	}
	return samples, nil
}

func truncateSamples(samples []float64, maxLen int) []float64 {
	if len(samples) <= maxLen {
		return samples
	}
	return samples[:maxLen]
}
