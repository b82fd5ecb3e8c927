package analyzer

import "testing"

func TestEstimateTempoBPM_FindsDominantPeriod(t *testing.T) {
	sampleRate := 22050
	hopSeconds := float64(onsetHopSize) / float64(sampleRate)

	// Build a synthetic onset envelope with a spike every 0.5s (120bpm).
	periodFrames := int(0.5 / hopSeconds)
	env := make([]float64, periodFrames*20)
	for i := 0; i < len(env); i += periodFrames {
		env[i] = 1.0
	}

	got := estimateTempoBPM(env, sampleRate)
	if got < 110 || got > 130 {
		t.Errorf("estimateTempoBPM() = %v, want ~120", got)
	}
}

func TestEstimateTempoBPM_EmptyEnvelope(t *testing.T) {
	if got := estimateTempoBPM(nil, 22050); got != 0 {
		t.Errorf("expected 0 for empty envelope, got %v", got)
	}
}

func TestAutocorrelationAt(t *testing.T) {
	env := []float64{1, 0, 1, 0, 1, 0, 1, 0}
	// Lag 2 should score higher than lag 1 for this alternating pattern.
	if autocorrelationAt(env, 2) <= autocorrelationAt(env, 1) {
		t.Error("expected lag 2 to correlate more strongly than lag 1")
	}
}
