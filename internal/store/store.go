// Package store defines the backing store port for jobs, chunks, and
// generations, standing in for the relational store named as an
// out-of-scope external collaborator. The in-process implementation here
// is production-shaped: callers never see a different contract from a
// real RDBMS binding, only a different concurrency primitive underneath
// the priority fetch.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/maauso/clipforge-api/internal/model"
)

// ErrNotFound is returned when a lookup by id misses.
var ErrNotFound = errors.New("store: not found")

// ErrNoJobAvailable is returned by PriorityFetchOne when no PENDING job
// is eligible for dispatch on this tick.
var ErrNoJobAvailable = errors.New("store: no job available")

// Store is the backing-store port. Capabilities match the names used in
// the scheduler design: PriorityFetchOne, UpdateJob, InsertChunk,
// UpdateChunk, UpdateGeneration, ReadGenerationStatus,
// ReadMaxConcurrentJobs, plus the CRUD entry points the pipeline and
// HTTP layer need to create and read rows.
type Store interface {
	InsertJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	UpdateJob(ctx context.Context, job *model.Job) error

	// PriorityFetchOne selects and claims exactly one PENDING job under
	// the ordering in the scheduler design (is_first_time DESC, tier
	// weight DESC, created_at ASC), atomically with respect to
	// concurrent callers. Returns ErrNoJobAvailable if nothing is
	// eligible. The returned job has already been transitioned past
	// PENDING (claimed); callers must either Start it into PROCESSING
	// (via UpdateJob) or release it back to PENDING on a failed gate.
	PriorityFetchOne(ctx context.Context) (*model.Job, error)

	// ReleaseClaim reverts a claimed job back to PENDING, used when a
	// post-claim gate (the analysis gate) is not yet satisfied.
	ReleaseClaim(ctx context.Context, jobID string) error

	InsertChunk(ctx context.Context, chunk *model.Chunk) error
	GetChunk(ctx context.Context, id string) (*model.Chunk, error)
	UpdateChunk(ctx context.Context, chunk *model.Chunk) error
	ListChunksByJob(ctx context.Context, jobID string) ([]*model.Chunk, error)
	// FindChunkBySynthRequestID supports webhook correlation: a webhook
	// may arrive before the poll loop observes completion, and must
	// locate the chunk solely from the previously persisted request id.
	FindChunkBySynthRequestID(ctx context.Context, requestID string) (*model.Chunk, error)

	InsertGeneration(ctx context.Context, gen *model.Generation) error
	GetGeneration(ctx context.Context, id string) (*model.Generation, error)
	UpdateGeneration(ctx context.Context, gen *model.Generation) error
	ReadGenerationStatus(ctx context.Context, id string) (model.GenerationStatus, error)

	// CountProcessingJobs supports the scheduler's capacity gate.
	CountProcessingJobs(ctx context.Context) (int, error)
	ReadMaxConcurrentJobs(ctx context.Context) (int, error)
	SetMaxConcurrentJobs(ctx context.Context, n int) error
}

// InMemoryStore is the production-shaped in-process Store implementation.
// A single mutex guards all of its maps; PriorityFetchOne's scan-then-claim
// sequence runs inside one critical section, which is what makes the claim
// equivalent in effect to `SELECT ... FOR UPDATE SKIP LOCKED`.
type InMemoryStore struct {
	mu sync.Mutex

	jobs            map[string]*model.Job
	chunks          map[string]*model.Chunk
	chunksByJob     map[string][]string
	chunksBySynthID map[string]string
	generations     map[string]*model.Generation

	maxConcurrentJobs int
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty store with the given initial
// concurrency ceiling.
func NewInMemoryStore(maxConcurrentJobs int) *InMemoryStore {
	return &InMemoryStore{
		jobs:              make(map[string]*model.Job),
		chunks:            make(map[string]*model.Chunk),
		chunksByJob:       make(map[string][]string),
		chunksBySynthID:   make(map[string]string),
		generations:       make(map[string]*model.Generation),
		maxConcurrentJobs: maxConcurrentJobs,
	}
}

func (s *InMemoryStore) InsertJob(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID()] = job.Clone()
	return nil
}

func (s *InMemoryStore) GetJob(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

func (s *InMemoryStore) UpdateJob(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID()]; !ok {
		return ErrNotFound
	}
	s.jobs[job.ID()] = job.Clone()
	return nil
}

// PriorityFetchOne implements the ordering from the scheduler design:
// is_first_time DESC, tier weight DESC, created_at ASC. The scan and the
// claim happen under the same lock, so no two concurrent callers can
// observe and claim the same row.
func (s *InMemoryStore) PriorityFetchOne(_ context.Context) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*model.Job
	for _, j := range s.jobs {
		if j.Status() == model.JobPending {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoJobAvailable
	}

	sort.Slice(candidates, func(i, k int) bool {
		a, b := candidates[i], candidates[k]
		if a.IsFirstTime() != b.IsFirstTime() {
			return a.IsFirstTime()
		}
		if a.Tier().Weight() != b.Tier().Weight() {
			return a.Tier().Weight() > b.Tier().Weight()
		}
		return a.CreatedAt().Before(b.CreatedAt())
	})

	winner := candidates[0]
	if err := winner.Claim(); err != nil {
		return nil, err
	}
	s.jobs[winner.ID()] = winner
	return winner.Clone(), nil
}

func (s *InMemoryStore) ReleaseClaim(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if err := j.Release(); err != nil {
		return err
	}
	s.jobs[jobID] = j
	return nil
}

func (s *InMemoryStore) InsertChunk(_ context.Context, chunk *model.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := chunk.Clone()
	s.chunks[clone.ID()] = clone
	s.chunksByJob[clone.JobID()] = append(s.chunksByJob[clone.JobID()], clone.ID())
	return nil
}

func (s *InMemoryStore) GetChunk(_ context.Context, id string) (*model.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chunks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *InMemoryStore) UpdateChunk(_ context.Context, chunk *model.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunks[chunk.ID()]; !ok {
		return ErrNotFound
	}
	clone := chunk.Clone()
	s.chunks[clone.ID()] = clone
	if reqID := clone.SynthRequestID(); reqID != "" {
		s.chunksBySynthID[reqID] = clone.ID()
	}
	return nil
}

func (s *InMemoryStore) ListChunksByJob(_ context.Context, jobID string) ([]*model.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.chunksByJob[jobID]
	result := make([]*model.Chunk, 0, len(ids))
	for _, id := range ids {
		result = append(result, s.chunks[id].Clone())
	}
	sort.Slice(result, func(i, k int) bool { return result[i].Index() < result[k].Index() })
	return result, nil
}

func (s *InMemoryStore) FindChunkBySynthRequestID(_ context.Context, requestID string) (*model.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.chunksBySynthID[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.chunks[id].Clone(), nil
}

func (s *InMemoryStore) InsertGeneration(_ context.Context, gen *model.Generation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[gen.ID()] = gen.Clone()
	return nil
}

func (s *InMemoryStore) GetGeneration(_ context.Context, id string) (*model.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.generations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return g.Clone(), nil
}

func (s *InMemoryStore) UpdateGeneration(_ context.Context, gen *model.Generation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.generations[gen.ID()]; !ok {
		return ErrNotFound
	}
	s.generations[gen.ID()] = gen.Clone()
	return nil
}

func (s *InMemoryStore) ReadGenerationStatus(_ context.Context, id string) (model.GenerationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.generations[id]
	if !ok {
		return "", ErrNotFound
	}
	return g.Status(), nil
}

func (s *InMemoryStore) CountProcessingJobs(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status() == model.JobProcessing {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) ReadMaxConcurrentJobs(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxConcurrentJobs, nil
}

func (s *InMemoryStore) SetMaxConcurrentJobs(_ context.Context, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxConcurrentJobs = n
	return nil
}
