package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/maauso/clipforge-api/internal/apperr"
	"github.com/maauso/clipforge-api/internal/model"
	"github.com/maauso/clipforge-api/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fake-remote-bytes"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestJob(t *testing.T, srv *httptest.Server, st store.Store) (*model.Job, *model.Generation) {
	t.Helper()
	job, err := model.New(model.NewJobParams{
		GenerationID: "gen_" + t.Name(),
		Tier:         model.TierDemo,
		VideoURL:     srv.URL + "/video.mp4",
		AudioURL:     srv.URL + "/audio.wav",
		TargetImages: []string{srv.URL + "/image1.png", srv.URL + "/image2.png"},
		Prompt:       "a calm lip-sync clip",
	})
	if err != nil {
		t.Fatalf("model.New: %v", err)
	}
	if err := job.Start(); err != nil {
		t.Fatalf("job.Start: %v", err)
	}
	ctx := context.Background()
	if err := st.InsertJob(ctx, job); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	gen := model.NewGeneration(job.GenerationID())
	if err := st.InsertGeneration(ctx, gen); err != nil {
		t.Fatalf("InsertGeneration: %v", err)
	}
	return job, gen
}

func newTestPipeline(t *testing.T, st store.Store, synthClient *fakeSynth, runner *fakeRunner) *Pipeline {
	t.Helper()
	fs, err := newFakeStorage(t.TempDir())
	if err != nil {
		t.Fatalf("newFakeStorage: %v", err)
	}
	return New(st, synthClient, runner, fs, nil, Config{
		WorkspaceBaseDir: t.TempDir(),
		HTTPClient:       &http.Client{},
	})
}

func TestRun_HappyPath_TwoChunks(t *testing.T) {
	srv := newTestServer(t)
	st := store.NewInMemoryStore(10)
	job, gen := newTestJob(t, srv, st)
	if err := job.SetAnalyzed(0, 120.0, 9.0); err != nil {
		t.Fatalf("SetAnalyzed: %v", err)
	}

	runner := newFakeRunner(20.0) // -> chunk grid [9, 9]
	synthClient := &fakeSynth{videoURL: srv.URL + "/synth.mp4"}
	p := newTestPipeline(t, st, synthClient, runner)

	finalPath, credits, err := p.Run(context.Background(), job, gen)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if credits != 18 {
		t.Errorf("credits = %d, want 18", credits)
	}
	if _, statErr := os.Stat(finalPath); statErr != nil {
		t.Errorf("final artifact missing at %s: %v", finalPath, statErr)
	}
	if gen.Stage() != model.StageFinalizing || gen.ProgressPercentage() != 95 {
		t.Errorf("generation = (%s, %d%%), want (%s, 95%%)", gen.Stage(), gen.ProgressPercentage(), model.StageFinalizing)
	}

	chunks, err := st.ListChunksByJob(context.Background(), job.ID())
	if err != nil {
		t.Fatalf("ListChunksByJob: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("chunk count = %d, want 2", len(chunks))
	}
	for _, c := range chunks {
		if c.Status() != model.ChunkCompleted {
			t.Errorf("chunk %d status = %s, want COMPLETED", c.Index(), c.Status())
		}
	}
}

func TestRun_PreconditionFailure_NotAnalyzed(t *testing.T) {
	srv := newTestServer(t)
	st := store.NewInMemoryStore(10)
	job, gen := newTestJob(t, srv, st) // demo tier, never analyzed

	runner := newFakeRunner(20.0)
	synthClient := &fakeSynth{videoURL: srv.URL + "/synth.mp4"}
	p := newTestPipeline(t, st, synthClient, runner)

	_, _, err := p.Run(context.Background(), job, gen)
	if err == nil {
		t.Fatal("Run: expected error, got nil")
	}
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("Run err = %v, want KindValidation", err)
	}
	if job.Status() != model.JobFailed {
		t.Errorf("job status = %s, want FAILED", job.Status())
	}
	if gen.Status() != model.GenerationFailed {
		t.Errorf("generation status = %s, want failed", gen.Status())
	}
}

func TestRun_PartialFailure_OneChunkFailsStillCompletes(t *testing.T) {
	srv := newTestServer(t)
	st := store.NewInMemoryStore(10)
	job, gen := newTestJob(t, srv, st)
	if err := job.SetAnalyzed(0, 120.0, 9.0); err != nil {
		t.Fatalf("SetAnalyzed: %v", err)
	}

	runner := newFakeRunner(20.0) // -> chunk grid [9, 9]
	synthClient := &fakeSynth{videoURL: srv.URL + "/synth.mp4", failSubmit: map[int]bool{0: true}}
	p := newTestPipeline(t, st, synthClient, runner)

	finalPath, credits, err := p.Run(context.Background(), job, gen)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if credits != 9 {
		t.Errorf("credits = %d, want 9", credits)
	}
	if _, statErr := os.Stat(finalPath); statErr != nil {
		t.Errorf("final artifact missing: %v", statErr)
	}

	chunks, _ := st.ListChunksByJob(context.Background(), job.ID())
	if chunks[0].Status() != model.ChunkFailed {
		t.Errorf("chunk 0 status = %s, want FAILED", chunks[0].Status())
	}
	if chunks[1].Status() != model.ChunkCompleted {
		t.Errorf("chunk 1 status = %s, want COMPLETED", chunks[1].Status())
	}
}

func TestRun_AllChunksFail_JobFails(t *testing.T) {
	srv := newTestServer(t)
	st := store.NewInMemoryStore(10)
	job, gen := newTestJob(t, srv, st)
	if err := job.SetAnalyzed(0, 120.0, 9.0); err != nil {
		t.Fatalf("SetAnalyzed: %v", err)
	}

	runner := newFakeRunner(20.0)
	synthClient := &fakeSynth{videoURL: srv.URL + "/synth.mp4", failSubmit: map[int]bool{0: true, 1: true}}
	p := newTestPipeline(t, st, synthClient, runner)

	_, _, err := p.Run(context.Background(), job, gen)
	if err == nil {
		t.Fatal("Run: expected error, got nil")
	}
	if !apperr.Is(err, apperr.KindExternalService) {
		t.Errorf("Run err = %v, want KindExternalService", err)
	}
	if job.Status() != model.JobFailed {
		t.Errorf("job status = %s, want FAILED", job.Status())
	}
}

func TestRun_Cancellation_FailsRemainingChunks(t *testing.T) {
	srv := newTestServer(t)
	st := store.NewInMemoryStore(10)
	job, gen := newTestJob(t, srv, st)
	if err := job.SetAnalyzed(0, 120.0, 9.0); err != nil {
		t.Fatalf("SetAnalyzed: %v", err)
	}

	runner := newFakeRunner(20.0)
	runner.muxHook = func(dst string) {
		if containsChunkIndex(dst, 0) {
			if err := gen.Cancel(); err != nil {
				t.Fatalf("gen.Cancel: %v", err)
			}
		}
	}
	synthClient := &fakeSynth{videoURL: srv.URL + "/synth.mp4"}
	p := newTestPipeline(t, st, synthClient, runner)

	_, _, err := p.Run(context.Background(), job, gen)
	if err == nil {
		t.Fatal("Run: expected error, got nil")
	}
	if !apperr.Is(err, apperr.KindCancellation) {
		t.Errorf("Run err = %v, want KindCancellation", err)
	}

	chunks, _ := st.ListChunksByJob(context.Background(), job.ID())
	if chunks[0].Status() != model.ChunkCompleted {
		t.Errorf("chunk 0 status = %s, want COMPLETED (cancellation observed after it finished)", chunks[0].Status())
	}
	if chunks[1].Status() != model.ChunkFailed || chunks[1].ErrorMessage() != apperr.Cancelled {
		t.Errorf("chunk 1 = (%s, %q), want (FAILED, %q)", chunks[1].Status(), chunks[1].ErrorMessage(), apperr.Cancelled)
	}
}

func TestRunLegacySingleChunk_BypassesAnalyzerGate(t *testing.T) {
	srv := newTestServer(t)
	st := store.NewInMemoryStore(10)
	job, err := model.New(model.NewJobParams{
		GenerationID: "gen_legacy",
		Tier:         model.TierOpenMic,
		VideoURL:     srv.URL + "/video.mp4",
		AudioURL:     srv.URL + "/audio.wav",
		TargetImages: []string{srv.URL + "/image1.png"},
	})
	if err != nil {
		t.Fatalf("model.New: %v", err)
	}
	if err := job.Start(); err != nil {
		t.Fatalf("job.Start: %v", err)
	}
	ctx := context.Background()
	if err := st.InsertJob(ctx, job); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	gen := model.NewGeneration(job.GenerationID())
	if err := st.InsertGeneration(ctx, gen); err != nil {
		t.Fatalf("InsertGeneration: %v", err)
	}

	runner := newFakeRunner(9.0) // a single manual clip, exactly one chunk
	synthClient := &fakeSynth{videoURL: srv.URL + "/synth.mp4"}
	p := newTestPipeline(t, st, synthClient, runner)

	finalPath, credits, err := p.RunLegacySingleChunk(ctx, job, gen)
	if err != nil {
		t.Fatalf("RunLegacySingleChunk: %v", err)
	}
	if credits != 9 {
		t.Errorf("credits = %d, want 9", credits)
	}
	if _, statErr := os.Stat(finalPath); statErr != nil {
		t.Errorf("final artifact missing: %v", statErr)
	}

	chunks, _ := st.ListChunksByJob(ctx, job.ID())
	if len(chunks) != 1 {
		t.Fatalf("chunk count = %d, want 1", len(chunks))
	}
}

func containsChunkIndex(path string, index int) bool {
	want := []byte{}
	want = append(want, []byte("chunk_")...)
	want = append(want, byte('0'+index/100), byte('0'+(index/10)%10), byte('0'+index%10))
	return len(path) >= len(want) && indexOf(path, string(want)) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
