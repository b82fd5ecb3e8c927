package analyzer

import "testing"

func TestOnsetStrength_ShortSignalReturnsNil(t *testing.T) {
	if got := onsetStrength(make([]float64, 10), 22050); got != nil {
		t.Errorf("expected nil for signal shorter than one frame, got %v", got)
	}
}

func TestDetectOnsets_FindsPeaks(t *testing.T) {
	env := []float64{0, 0, 0, 5, 1, 0, 0, 0, 6, 1, 0}
	onsets := detectOnsets(env)
	if len(onsets) == 0 {
		t.Fatal("expected at least one onset to be detected")
	}
}

func TestBacktrackToLocalMin(t *testing.T) {
	env := []float64{0, 1, 2, 5, 3}
	got := backtrackToLocalMin(env, 3)
	if got != 0 {
		t.Errorf("backtrackToLocalMin = %d, want 0", got)
	}
}

func TestMeanStd(t *testing.T) {
	mean, std := meanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if mean != 5 {
		t.Errorf("mean = %v, want 5", mean)
	}
	if std < 1.9 || std > 2.1 {
		t.Errorf("std = %v, want ~2.0", std)
	}
}
