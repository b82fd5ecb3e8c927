package model

// JobStatus is the execution state of a Job.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"

	// jobClaimed is a transient marker used only inside the backing
	// store's priority-fetch critical section; it never escapes to a
	// caller and stands in for a database row-level exclusive lock.
	jobClaimed JobStatus = "__claimed__"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobPending:    {JobProcessing, jobClaimed},
	jobClaimed:    {JobProcessing, JobPending},
	JobProcessing: {JobCompleted, JobFailed},
	JobCompleted:  {},
	JobFailed:     {},
}

func (s JobStatus) canTransition(to JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return len(jobTransitions[s]) == 0
}

// AnalysisStatus tracks the Media Analyzer's progress against a Job.
type AnalysisStatus string

const (
	AnalysisPending   AnalysisStatus = "PENDING_ANALYSIS"
	AnalysisAnalyzing AnalysisStatus = "ANALYZING"
	AnalysisAnalyzed  AnalysisStatus = "ANALYZED"
	AnalysisFailed    AnalysisStatus = "FAILED"
)

// ChunkStatus is the per-chunk execution state.
type ChunkStatus string

const (
	ChunkPending    ChunkStatus = "PENDING"
	ChunkProcessing ChunkStatus = "PROCESSING"
	ChunkCompleted  ChunkStatus = "COMPLETED"
	ChunkFailed     ChunkStatus = "FAILED"
)

var chunkTransitions = map[ChunkStatus][]ChunkStatus{
	ChunkPending:    {ChunkProcessing, ChunkFailed},
	ChunkProcessing: {ChunkCompleted, ChunkFailed},
	ChunkCompleted:  {},
	ChunkFailed:     {},
}

func (s ChunkStatus) canTransition(to ChunkStatus) bool {
	for _, allowed := range chunkTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s ChunkStatus) IsTerminal() bool {
	return len(chunkTransitions[s]) == 0
}

// GenerationStatus is the user-facing rollup status.
type GenerationStatus string

const (
	GenerationPending    GenerationStatus = "pending"
	GenerationProcessing GenerationStatus = "processing"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationFailed     GenerationStatus = "failed"
	GenerationCancelled  GenerationStatus = "cancelled"
)

// IsActive reports whether progress_percentage is still expected to move
// forward for a generation in this status.
func (s GenerationStatus) IsActive() bool {
	return s == GenerationPending || s == GenerationProcessing
}

// GenerationStage is the human-facing phase label within an active
// generation, surfaced alongside progress_percentage.
type GenerationStage string

const (
	StageAnalyzing       GenerationStage = "analyzing"
	StageProcessing      GenerationStage = "processing"
	StageProcessingChunk GenerationStage = "processing_chunks"
	StageStitching       GenerationStage = "stitching"
	StageFinalizing      GenerationStage = "finalizing"
	StageCompleted       GenerationStage = "completed"
)
