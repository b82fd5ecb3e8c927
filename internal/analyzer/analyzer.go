// Package analyzer derives the sync offset, tempo, and per-chunk
// duration that the production pipeline needs before it can slice a job
// into chunks: how far the music is offset from the start of the user's
// video, how fast the track is, and how long each chunk should be to
// land on whole-measure boundaries without exceeding the synthesis
// service's per-request ceiling.
package analyzer

import (
	"context"
	"math"

	"github.com/maauso/clipforge-api/internal/apperr"
)

// correlationSampleRate is the common sample rate both alignment tracks
// are resampled to before cross-correlation.
const correlationSampleRate = 22050

// correlationWindowSeconds bounds how much of each track is correlated;
// enough to find where the music starts without paying for the whole
// file.
const correlationWindowSeconds = 15

// onsetFallbackThreshold is how close to zero the primary sync offset
// must be before the onset-based fallback is attempted.
const onsetFallbackThreshold = 0.1

// onsetMinOffsetSeconds is the minimum first-onset time worth trusting
// over a near-zero primary estimate.
const onsetMinOffsetSeconds = 0.3

// minUserBPM and maxUserBPM bound an accepted user-supplied tempo.
const (
	minUserBPM = 1.0
	maxUserBPM = 300.0
)

// Result is the outcome of analyzing a job's media pair.
type Result struct {
	SyncOffset          float64
	CorrelationStrength float64
	BPM                 float64
	LibraryBPM          float64
	ChunkDuration        float64
	OnsetFallbackUsed    bool
	FirstOnsetSeconds    float64
	FallbackReason       string
}

// Analyzer derives Result from a local video and a local master audio
// file, both already downloaded by the caller.
type Analyzer struct {
	ffmpegPath string
}

// New builds an Analyzer; an empty ffmpegPath defaults to "ffmpeg" on PATH.
func New(ffmpegPath string) *Analyzer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Analyzer{ffmpegPath: ffmpegPath}
}

// Analyze computes sync offset, tempo, and chunk duration for the given
// video/master-audio pair. userBPM <= 0 means no user-supplied tempo.
func (a *Analyzer) Analyze(ctx context.Context, videoPath, masterAudioPath string, userBPM float64) (Result, error) {
	masterFull, err := decodeMonoPCM(ctx, a.ffmpegPath, masterAudioPath, correlationSampleRate)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindMedia, "decode master audio", err)
	}
	videoFull, err := decodeMonoPCM(ctx, a.ffmpegPath, videoPath, correlationSampleRate)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindMedia, "decode video audio track", err)
	}

	windowSamples := correlationWindowSeconds * correlationSampleRate
	masterShort := truncateSamples(masterFull, windowSamples)
	videoShort := truncateSamples(videoFull, windowSamples)

	sync := estimateSyncOffset(masterShort, videoShort, correlationSampleRate)

	result := Result{
		SyncOffset:          sync.offsetSeconds,
		CorrelationStrength: sync.strength,
	}

	if math.Abs(result.SyncOffset) < onsetFallbackThreshold {
		env := onsetStrength(videoFull, correlationSampleRate)
		onsets := detectOnsets(env)
		if len(onsets) > 0 {
			firstOnset := onsetFrameToTime(onsets[0], correlationSampleRate)
			result.FirstOnsetSeconds = firstOnset
			if firstOnset > onsetMinOffsetSeconds {
				result.OnsetFallbackUsed = true
				result.FallbackReason = "primary cross-correlation offset was near zero; used first detected onset instead"
				result.SyncOffset = firstOnset
			} else {
				result.FallbackReason = "first onset too early to trust over the primary estimate"
			}
		} else {
			result.FallbackReason = "no onsets detected in video audio track"
		}
	}

	libraryBPM := estimateTempoBPM(onsetStrength(masterFull, correlationSampleRate), correlationSampleRate)
	result.LibraryBPM = libraryBPM

	if userBPM >= minUserBPM && userBPM <= maxUserBPM {
		result.BPM = userBPM
	} else {
		result.BPM = libraryBPM
	}
	if result.BPM <= 0 {
		return Result{}, apperr.New(apperr.KindMedia, "could not estimate a usable tempo")
	}

	result.ChunkDuration = computeChunkDuration(result.BPM)

	return result, nil
}
