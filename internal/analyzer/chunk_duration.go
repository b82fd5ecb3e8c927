package analyzer

import "math"

// maxChunkDurationSeconds is the hard ceiling a chunk's duration must
// never exceed, regardless of tempo.
const maxChunkDurationSeconds = 9.0

// beatsPerMeasure assumes a fixed 4/4 time signature.
const beatsPerMeasure = 4

// computeChunkDuration derives the whole-measure-aligned chunk length for
// a given tempo: as many whole measures as fit in maxChunkDurationSeconds,
// never fewer than one.
func computeChunkDuration(bpm float64) float64 {
	secondsPerBeat := 60.0 / bpm
	secondsPerMeasure := secondsPerBeat * beatsPerMeasure

	measuresPerChunk := int(math.Floor(maxChunkDurationSeconds / secondsPerMeasure))
	if measuresPerChunk < 1 {
		measuresPerChunk = 1
	}
	chunkDuration := float64(measuresPerChunk) * secondsPerMeasure

	if chunkDuration > maxChunkDurationSeconds {
		measuresPerChunk--
		chunkDuration = float64(measuresPerChunk) * secondsPerMeasure
	}
	if chunkDuration < secondsPerMeasure {
		chunkDuration = secondsPerMeasure
	}
	return chunkDuration
}
