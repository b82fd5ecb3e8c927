package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/maauso/clipforge-api/internal/storage"
	"github.com/maauso/clipforge-api/internal/synth"
)

// fakeRunner implements media.Runner without touching a real ffmpeg
// binary: every slicing/muxing operation writes a small placeholder file
// so downstream os.Stat/os.Open calls succeed.
type fakeRunner struct {
	duration    float64
	hasVideo    bool
	probeErr    error
	sliceHook   func(dst string)
	muxHook     func(dst string)
}

func newFakeRunner(duration float64) *fakeRunner {
	return &fakeRunner{duration: duration, hasVideo: true}
}

func (f *fakeRunner) ProbeDuration(context.Context, string) (float64, error) {
	return f.duration, f.probeErr
}

func (f *fakeRunner) ProbeHasVideo(context.Context, string) (bool, error) {
	return f.hasVideo, nil
}

func (f *fakeRunner) TrimReencode(_ context.Context, _, dst string, _ float64) error {
	return writeDummyFile(dst)
}

func (f *fakeRunner) SliceCopy(_ context.Context, _, dst string, _, _ float64) error {
	return writeDummyFile(dst)
}

func (f *fakeRunner) SliceReencode(_ context.Context, _, dst string, _, _ float64) error {
	if f.sliceHook != nil {
		f.sliceHook(dst)
	}
	return writeDummyFile(dst)
}

func (f *fakeRunner) ExtractAudioSlice(_ context.Context, _, dst string, _, _ float64) error {
	return writeDummyFile(dst)
}

func (f *fakeRunner) Mux(_ context.Context, _, _, dst string) error {
	if err := writeDummyFile(dst); err != nil {
		return err
	}
	if f.muxHook != nil {
		f.muxHook(dst)
	}
	return nil
}

func (f *fakeRunner) Concat(_ context.Context, paths []string, dst string) error {
	if len(paths) == 0 {
		return errors.New("fakeRunner: no paths to concat")
	}
	return writeDummyFile(dst)
}

func writeDummyFile(dst string) error {
	return os.WriteFile(dst, []byte("fake-media-bytes"), 0600)
}

// fakeStorage wraps a real LocalStorage for SaveTemp/LoadTemp/CleanupTemp
// and fakes UploadToS3/SignedURL, recording every uploaded key.
type fakeStorage struct {
	*storage.LocalStorage
	uploaded map[string][]byte
}

func newFakeStorage(tempDir string) (*fakeStorage, error) {
	local, err := storage.NewLocalStorage(tempDir)
	if err != nil {
		return nil, err
	}
	return &fakeStorage{LocalStorage: local, uploaded: make(map[string][]byte)}, nil
}

func (f *fakeStorage) UploadToS3(_ context.Context, key string, data io.Reader) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.uploaded[key] = b
	return "https://fake-bucket.example/" + key, nil
}

func (f *fakeStorage) SignedURL(_ context.Context, key string) (string, error) {
	return "https://signed.example/" + key, nil
}

// fakeSynth implements synth.Client, completing every request on the
// first poll unless told to fail at submission for a given 0-based call.
type fakeSynth struct {
	videoURL    string
	submitCount int
	failSubmit  map[int]bool
}

func (f *fakeSynth) Submit(context.Context, synth.SubmitOptions) (string, error) {
	idx := f.submitCount
	f.submitCount++
	if f.failSubmit[idx] {
		return "", fmt.Errorf("fakeSynth: submit %d rejected", idx)
	}
	return fmt.Sprintf("req-%d", idx), nil
}

func (f *fakeSynth) Poll(context.Context, string) (synth.PollResult, error) {
	return synth.PollResult{Status: synth.StatusCompleted, VideoURL: f.videoURL}, nil
}

func (f *fakeSynth) FetchResult(ctx context.Context, requestID string) (synth.PollResult, error) {
	return f.Poll(ctx, requestID)
}
