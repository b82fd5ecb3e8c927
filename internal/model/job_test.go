package model

import "testing"

func validJobParams() NewJobParams {
	return NewJobParams{
		GenerationID: "gen-1",
		Tier:         TierArtist,
		VideoURL:     "https://example.com/v.mp4",
		AudioURL:     "https://example.com/a.wav",
		TargetImages: []string{"https://example.com/img.png"},
	}
}

func TestNew_Valid(t *testing.T) {
	job, err := New(validJobParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID() == "" {
		t.Error("expected job to have an ID")
	}
	if job.Status() != JobPending {
		t.Errorf("expected status %s, got %s", JobPending, job.Status())
	}
	if job.AnalysisStatus() != AnalysisPending {
		t.Errorf("expected analysis status %s, got %s", AnalysisPending, job.AnalysisStatus())
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *NewJobParams)
		wantErr bool
	}{
		{"missing video url", func(p *NewJobParams) { p.VideoURL = "" }, true},
		{"missing audio url", func(p *NewJobParams) { p.AudioURL = "" }, true},
		{"no target images", func(p *NewJobParams) { p.TargetImages = nil }, true},
		{"missing generation id", func(p *NewJobParams) { p.GenerationID = "" }, true},
		{"bpm too low", func(p *NewJobParams) { b := 0; p.UserBPM = &b }, true},
		{"bpm too high", func(p *NewJobParams) { b := 301; p.UserBPM = &b }, true},
		{"bpm valid boundary", func(p *NewJobParams) { b := 300; p.UserBPM = &b }, false},
		{"prompt too long", func(p *NewJobParams) {
			long := make([]rune, 101)
			for i := range long {
				long[i] = 'x'
			}
			p.Prompt = string(long)
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validJobParams()
			tt.mutate(&p)
			_, err := New(p)
			if tt.wantErr && err == nil {
				t.Errorf("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestJob_SetAnalyzed_EnforcesChunkDurationInvariant(t *testing.T) {
	job, _ := New(validJobParams())

	if err := job.SetAnalyzed(0.5, 120, 9.5); err == nil {
		t.Error("expected error for chunk duration exceeding 9.0")
	}
	if err := job.SetAnalyzed(0.5, 120, 0); err == nil {
		t.Error("expected error for non-positive chunk duration")
	}
	if err := job.SetAnalyzed(0.5, 120, 9.0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.AnalysisStatus() != AnalysisAnalyzed {
		t.Errorf("expected ANALYZED, got %s", job.AnalysisStatus())
	}
	offset, bpm, dur, ok := job.Analysis()
	if !ok || offset != 0.5 || bpm != 120 || dur != 9.0 {
		t.Errorf("unexpected analysis snapshot: %v %v %v %v", offset, bpm, dur, ok)
	}
}

func TestJob_Transitions(t *testing.T) {
	job, _ := New(validJobParams())

	if err := job.Complete("out"); err == nil {
		t.Error("expected error completing a PENDING job")
	}

	if err := job.Start(); err != nil {
		t.Fatalf("unexpected error starting job: %v", err)
	}
	if job.Status() != JobProcessing {
		t.Errorf("expected PROCESSING, got %s", job.Status())
	}

	if err := job.Start(); err == nil {
		t.Error("expected error starting an already-running job")
	}

	if err := job.Complete("https://example.com/out.mp4"); err != nil {
		t.Fatalf("unexpected error completing job: %v", err)
	}
	if job.Status() != JobCompleted {
		t.Errorf("expected COMPLETED, got %s", job.Status())
	}

	if err := job.Fail("late failure"); err == nil {
		t.Error("expected error failing an already-terminal job")
	}
}

func TestJob_Clone_Independence(t *testing.T) {
	job, _ := New(validJobParams())
	_ = job.Start()

	clone := job.Clone()
	_ = job.Complete("out")

	if clone.Status() != JobProcessing {
		t.Errorf("expected clone to retain PROCESSING snapshot, got %s", clone.Status())
	}
	if job.Status() != JobCompleted {
		t.Errorf("expected live job to have advanced to COMPLETED, got %s", job.Status())
	}
}
