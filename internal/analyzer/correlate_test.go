package analyzer

import (
	"math"
	"testing"
)

func sineWave(freq float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	return out
}

func TestEstimateSyncOffset_DetectsPositiveLag(t *testing.T) {
	sampleRate := 8000
	master := sineWave(440, sampleRate, sampleRate)

	// video's alignment track has 0.25s of silence before the music
	// starts, i.e. the music starts 0.25s into the video.
	lagSamples := sampleRate / 4
	video := make([]float64, len(master)+lagSamples)
	copy(video[lagSamples:], master)

	got := estimateSyncOffset(master, video, sampleRate)
	want := 0.25
	if diff := got.offsetSeconds - want; diff > 0.01 || diff < -0.01 {
		t.Errorf("offsetSeconds = %v, want ~%v", got.offsetSeconds, want)
	}
}

func TestEstimateSyncOffset_ZeroLagWhenAligned(t *testing.T) {
	sampleRate := 8000
	master := sineWave(440, sampleRate, sampleRate)
	video := append([]float64(nil), master...)

	got := estimateSyncOffset(master, video, sampleRate)
	if math.Abs(got.offsetSeconds) > 0.01 {
		t.Errorf("expected near-zero offset, got %v", got.offsetSeconds)
	}
}

func TestNextFFTLength(t *testing.T) {
	tests := map[int]int{1: 1, 2: 2, 3: 4, 5: 8, 1000: 1024}
	for in, want := range tests {
		if got := nextFFTLength(in); got != want {
			t.Errorf("nextFFTLength(%d) = %d, want %d", in, got, want)
		}
	}
}
