package pipeline

import "math"

// minLastChunkSeconds is the floor below which a trailing remainder chunk
// is dropped rather than kept as its own synthesis request.
const minLastChunkSeconds = 3.0

// ChunkGrid exposes chunkGrid to callers outside the package (the
// preview endpoint needs the same grid math for its dry-run display).
func ChunkGrid(duration, chunkDuration float64) []float64 {
	return chunkGrid(duration, chunkDuration)
}

// chunkGrid computes the chunk grid: N_raw = ceil(duration/chunkDuration),
// dropping a trailing remainder shorter than minLastChunkSeconds when more
// than one chunk would otherwise exist. It returns the per-chunk duration
// (chunkDuration for every chunk but the last, which may be shorter).
func chunkGrid(duration, chunkDuration float64) []float64 {
	if chunkDuration <= 0 || duration <= 0 {
		return nil
	}

	nRaw := int(math.Ceil(duration / chunkDuration))
	if nRaw == 0 {
		nRaw = 1
	}

	lastDuration := duration - float64(nRaw-1)*chunkDuration
	dropped := lastDuration < minLastChunkSeconds && nRaw > 1
	n := nRaw
	if dropped {
		n = nRaw - 1
	}

	durations := make([]float64, n)
	for i := 0; i < n-1; i++ {
		durations[i] = chunkDuration
	}
	if dropped {
		// The trailing remainder is discarded outright, not folded into
		// the new last chunk; every kept chunk is a full chunkDuration.
		durations[n-1] = chunkDuration
	} else {
		durations[n-1] = lastDuration
	}
	return durations
}
