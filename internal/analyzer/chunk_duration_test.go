package analyzer

import "testing"

func TestComputeChunkDuration(t *testing.T) {
	tests := []struct {
		name string
		bpm  float64
		want float64
	}{
		// secondsPerMeasure = 4*60/120 = 2.0s; 4 measures = 8.0s <= 9.0
		{"120bpm", 120, 8.0},
		// secondsPerMeasure = 4*60/60 = 4.0s; 2 measures = 8.0s <= 9.0
		{"60bpm", 60, 8.0},
		// secondsPerMeasure = 4*60/20 = 12.0s, exceeds 9.0 outright;
		// measures_per_chunk floors to 0 then clamps to 1, then the
		// >9.0 postcondition reduces it to 0 measures, so the floor
		// postcondition takes over and lifts back to one measure.
		{"20bpm_measure_exceeds_ceiling", 20, 12.0},
		// secondsPerMeasure = 4*60/200 = 1.2s; floor(9/1.2)=7 measures = 8.4s
		{"200bpm", 200, 8.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeChunkDuration(tt.bpm)
			if diff := got - tt.want; diff > 0.01 || diff < -0.01 {
				t.Errorf("computeChunkDuration(%v) = %v, want %v", tt.bpm, got, tt.want)
			}
		})
	}
}

func TestComputeChunkDuration_NeverExceedsCeilingWhenMeasureFits(t *testing.T) {
	for bpm := 40.0; bpm <= 220.0; bpm += 1.0 {
		secondsPerMeasure := 4 * 60.0 / bpm
		got := computeChunkDuration(bpm)
		if secondsPerMeasure <= maxChunkDurationSeconds && got > maxChunkDurationSeconds+0.001 {
			t.Errorf("bpm=%v: chunk duration %v exceeds ceiling %v", bpm, got, maxChunkDurationSeconds)
		}
		if got < secondsPerMeasure-0.001 {
			t.Errorf("bpm=%v: chunk duration %v fell below one measure %v", bpm, got, secondsPerMeasure)
		}
	}
}
