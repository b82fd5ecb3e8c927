package model

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Chunk is one fixed-length span of a Job's chunk grid.
type Chunk struct {
	mu sync.RWMutex

	id         string
	jobID      string
	chunkIndex int

	status ChunkStatus

	videoStartTime float64
	videoEndTime   float64
	audioStartTime float64
	chunkDuration  float64
	syncOffset     float64

	synthRequestID  string
	synthRequestedAt time.Time
	synthCompletedAt time.Time
	synthVideoURL    string

	videoURL      string
	imageURL      string
	imageIndex    int
	creditsCharged int
	errorMessage   string
}

// NewChunk constructs a PENDING chunk for chunkIndex within jobID.
func NewChunk(jobID string, chunkIndex int, videoStartTime, chunkDuration, syncOffset float64) *Chunk {
	return &Chunk{
		id:             "chunk_" + uuid.NewString(),
		jobID:          jobID,
		chunkIndex:     chunkIndex,
		status:         ChunkPending,
		videoStartTime: videoStartTime,
		videoEndTime:   videoStartTime + chunkDuration,
		chunkDuration:  chunkDuration,
		syncOffset:     syncOffset,
	}
}

func (c *Chunk) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

func (c *Chunk) JobID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jobID
}

func (c *Chunk) Index() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chunkIndex
}

func (c *Chunk) Status() ChunkStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Chunk) VideoStartTime() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.videoStartTime
}

func (c *Chunk) ChunkDuration() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chunkDuration
}

func (c *Chunk) VideoURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.videoURL
}

func (c *Chunk) ErrorMessage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errorMessage
}

// Start transitions PENDING -> PROCESSING.
func (c *Chunk) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.status.canTransition(ChunkProcessing) {
		return fmt.Errorf("invalid chunk transition %s -> %s", c.status, ChunkProcessing)
	}
	c.status = ChunkProcessing
	return nil
}

// SetSynthRequest persists the synthesis request id before polling begins,
// satisfying the webhook-correlation invariant. It must be called while
// the chunk is PROCESSING.
func (c *Chunk) SetSynthRequest(requestID string, requestedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != ChunkProcessing {
		return fmt.Errorf("cannot set synth request on chunk in status %s", c.status)
	}
	c.synthRequestID = requestID
	c.synthRequestedAt = requestedAt
	return nil
}

func (c *Chunk) SynthRequestID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synthRequestID
}

// SetAudioTiming records the audio slice window (audio_start_time =
// i*chunk_duration) and the actual video slice duration once it's known
// (duration_i may differ from chunk_duration for the final chunk).
func (c *Chunk) SetAudioTiming(audioStartTime, videoSliceDuration float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioStartTime = audioStartTime
	c.videoEndTime = c.videoStartTime + videoSliceDuration
}

// Complete transitions PROCESSING -> COMPLETED, recording derived output.
func (c *Chunk) Complete(videoURL, imageURL string, imageIndex int, synthVideoURL string, completedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.status.canTransition(ChunkCompleted) {
		return fmt.Errorf("invalid chunk transition %s -> %s", c.status, ChunkCompleted)
	}
	c.status = ChunkCompleted
	c.videoURL = videoURL
	c.imageURL = imageURL
	c.imageIndex = imageIndex
	c.synthVideoURL = synthVideoURL
	c.synthCompletedAt = completedAt
	c.creditsCharged = int(c.chunkDuration)
	return nil
}

// Fail transitions to FAILED from any non-terminal status, recording a
// truncated error message. Used both for ordinary chunk failures and for
// forced cancellation ("Cancelled by user").
func (c *Chunk) Fail(message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.IsTerminal() {
		return fmt.Errorf("chunk already terminal at %s", c.status)
	}
	c.status = ChunkFailed
	c.errorMessage = truncateMessage(message)
	return nil
}

// CreditsCharged returns the credits billed for this chunk (0 unless
// COMPLETED).
func (c *Chunk) CreditsCharged() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creditsCharged
}

// Clone returns an independent snapshot safe for concurrent reads.
func (c *Chunk) Clone() *Chunk {
	c.mu.RLock()
	defer c.mu.RUnlock()
	clone := *c
	clone.mu = sync.RWMutex{}
	return &clone
}
