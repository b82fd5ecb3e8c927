package model

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is a user submission awaiting or undergoing chunked production.
// Mutating methods hold the embedded mutex; Clone returns an independent
// snapshot for callers that must read without racing concurrent writers.
type Job struct {
	mu sync.RWMutex

	id           string
	createdAt    time.Time
	generationID string

	tier         Tier
	isFirstTime  bool
	videoURL     string
	audioURL     string
	targetImages []string
	prompt       string
	userBPM      *int

	syncOffset     *float64
	bpm            *float64
	chunkDuration  *float64
	analysisStatus AnalysisStatus

	status       JobStatus
	outputURL    string
	errorMessage string
}

// NewJobParams is the validated input set for New.
type NewJobParams struct {
	GenerationID string
	Tier         Tier
	IsFirstTime  bool
	VideoURL     string
	AudioURL     string
	TargetImages []string
	Prompt       string
	UserBPM      *int
}

// New constructs a Job in PENDING/PENDING_ANALYSIS with a fresh id.
func New(p NewJobParams) (*Job, error) {
	if p.VideoURL == "" {
		return nil, fmt.Errorf("video url is required")
	}
	if p.AudioURL == "" {
		return nil, fmt.Errorf("audio url is required")
	}
	if len(p.TargetImages) == 0 {
		return nil, fmt.Errorf("at least one target image is required")
	}
	if p.GenerationID == "" {
		return nil, fmt.Errorf("generation id is required")
	}
	if p.UserBPM != nil && (*p.UserBPM < 1 || *p.UserBPM > 300) {
		return nil, fmt.Errorf("user bpm %d out of range [1,300]", *p.UserBPM)
	}
	if len([]rune(p.Prompt)) > 100 {
		return nil, fmt.Errorf("prompt exceeds 100 code points")
	}

	images := make([]string, len(p.TargetImages))
	copy(images, p.TargetImages)

	return &Job{
		id:             "job_" + uuid.NewString(),
		createdAt:      time.Now(),
		generationID:   p.GenerationID,
		tier:           p.Tier,
		isFirstTime:    p.IsFirstTime,
		videoURL:       p.VideoURL,
		audioURL:       p.AudioURL,
		targetImages:   images,
		prompt:         p.Prompt,
		userBPM:        p.UserBPM,
		analysisStatus: AnalysisPending,
		status:         JobPending,
	}, nil
}

func (j *Job) ID() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.id
}

func (j *Job) GenerationID() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.generationID
}

func (j *Job) Tier() Tier {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.tier
}

func (j *Job) IsFirstTime() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.isFirstTime
}

func (j *Job) CreatedAt() time.Time {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.createdAt
}

func (j *Job) VideoURL() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.videoURL
}

func (j *Job) AudioURL() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.audioURL
}

func (j *Job) TargetImages() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	images := make([]string, len(j.targetImages))
	copy(images, j.targetImages)
	return images
}

func (j *Job) Prompt() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.prompt
}

// UserBPM returns the user-supplied tempo, ok=false if none was given.
func (j *Job) UserBPM() (bpm int, ok bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.userBPM == nil {
		return 0, false
	}
	return *j.userBPM, true
}

func (j *Job) OutputURL() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.outputURL
}

func (j *Job) ErrorMessage() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.errorMessage
}

func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

func (j *Job) AnalysisStatus() AnalysisStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.analysisStatus
}

// Analysis returns the nullable analysis outputs, ok=false until analyzed.
func (j *Job) Analysis() (syncOffset, bpm, chunkDuration float64, ok bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.syncOffset == nil || j.bpm == nil || j.chunkDuration == nil {
		return 0, 0, 0, false
	}
	return *j.syncOffset, *j.bpm, *j.chunkDuration, true
}

// SetAnalyzed records analysis outputs and flips analysis_status to
// ANALYZED. chunk_duration must already satisfy the <=9.0 invariant;
// callers (the analyzer) are responsible for enforcing the chunk-duration
// law before calling this.
func (j *Job) SetAnalyzed(syncOffset, bpm, chunkDuration float64) error {
	if chunkDuration <= 0 || chunkDuration > 9.0 {
		return fmt.Errorf("chunk duration %.3f violates invariant (0, 9.0]", chunkDuration)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.syncOffset = &syncOffset
	j.bpm = &bpm
	j.chunkDuration = &chunkDuration
	j.analysisStatus = AnalysisAnalyzed
	return nil
}

// SetAnalysisFailed records a terminal analyzer failure.
func (j *Job) SetAnalysisFailed(message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.analysisStatus = AnalysisFailed
	j.errorMessage = truncateMessage(message)
}

// Start transitions PENDING (or a held claim) -> PROCESSING.
func (j *Job) Start() error {
	return j.transition(JobProcessing)
}

// Claim flips PENDING to a transient claimed marker inside the backing
// store's priority-fetch critical section, standing in for a database
// row-level exclusive lock. Exported only for use by store
// implementations; ordinary callers use Start/Complete/Fail.
func (j *Job) Claim() error {
	return j.transition(jobClaimed)
}

// Release reverts a held claim back to PENDING, used when a claimed job
// fails a post-claim gate (e.g. the analyzer has not finished yet) and
// must be returned to the queue for a later tick.
func (j *Job) Release() error {
	return j.transition(JobPending)
}

// Complete transitions PROCESSING -> COMPLETED and records the output URL.
func (j *Job) Complete(outputURL string) error {
	j.mu.Lock()
	if !j.status.canTransition(JobCompleted) {
		from := j.status
		j.mu.Unlock()
		return fmt.Errorf("invalid job transition %s -> %s", from, JobCompleted)
	}
	j.status = JobCompleted
	j.outputURL = outputURL
	j.mu.Unlock()
	return nil
}

// Fail transitions PROCESSING -> FAILED and records the error message.
func (j *Job) Fail(message string) error {
	j.mu.Lock()
	if !j.status.canTransition(JobFailed) {
		from := j.status
		j.mu.Unlock()
		return fmt.Errorf("invalid job transition %s -> %s", from, JobFailed)
	}
	j.status = JobFailed
	j.errorMessage = truncateMessage(message)
	j.mu.Unlock()
	return nil
}

func (j *Job) transition(to JobStatus) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.status.canTransition(to) {
		return fmt.Errorf("invalid job transition %s -> %s", j.status, to)
	}
	j.status = to
	return nil
}

// Clone returns an independent snapshot safe for the caller to read
// without holding the job's lock.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	images := make([]string, len(j.targetImages))
	copy(images, j.targetImages)

	clone := &Job{
		id:             j.id,
		createdAt:      j.createdAt,
		generationID:   j.generationID,
		tier:           j.tier,
		isFirstTime:    j.isFirstTime,
		videoURL:       j.videoURL,
		audioURL:       j.audioURL,
		targetImages:   images,
		prompt:         j.prompt,
		analysisStatus: j.analysisStatus,
		status:         j.status,
		outputURL:      j.outputURL,
		errorMessage:   j.errorMessage,
	}
	if j.userBPM != nil {
		bpm := *j.userBPM
		clone.userBPM = &bpm
	}
	if j.syncOffset != nil {
		v := *j.syncOffset
		clone.syncOffset = &v
	}
	if j.bpm != nil {
		v := *j.bpm
		clone.bpm = &v
	}
	if j.chunkDuration != nil {
		v := *j.chunkDuration
		clone.chunkDuration = &v
	}
	return clone
}

func truncateMessage(s string) string {
	const max = 500
	if len(s) <= max {
		return s
	}
	return s[:max]
}
