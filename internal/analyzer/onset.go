package analyzer

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	onsetFrameSize = 2048
	onsetHopSize   = 512
)

// onsetStrength computes a spectral-flux onset envelope over samples,
// one value per hop, following librosa.onset.onset_strength's approach:
// half-wave rectified frame-to-frame magnitude-spectrum difference,
// summed across frequency bins.
func onsetStrength(samples []float64, sampleRate int) []float64 {
	if len(samples) < onsetFrameSize {
		return nil
	}
	fft := fourier.NewFFT(onsetFrameSize)

	numFrames := (len(samples)-onsetFrameSize)/onsetHopSize + 1
	mags := make([][]float64, numFrames)
	frame := make([]float64, onsetFrameSize)
	for f := 0; f < numFrames; f++ {
		start := f * onsetHopSize
		copy(frame, samples[start:start+onsetFrameSize])
		window.Hann(frame)
		coeffs := fft.Coefficients(nil, frame)
		mag := make([]float64, len(coeffs))
		for i, c := range coeffs {
			mag[i] = cmplxAbs(c)
		}
		mags[f] = mag
	}

	env := make([]float64, numFrames)
	for f := 1; f < numFrames; f++ {
		var flux float64
		for i := range mags[f] {
			d := mags[f][i] - mags[f-1][i]
			if d > 0 {
				flux += d
			}
		}
		env[f] = flux
	}
	return env
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

// onsetFrameToTime converts a frame index produced by onsetStrength back
// to a time in seconds.
func onsetFrameToTime(frame int, sampleRate int) float64 {
	return float64(frame*onsetHopSize) / float64(sampleRate)
}

// detectOnsets finds local peaks in the onset envelope that exceed an
// adaptive threshold (mean plus a multiple of the standard deviation),
// then backtracks each to the preceding local minimum, mirroring
// librosa.onset.onset_detect(backtrack=True).
func detectOnsets(env []float64) []int {
	if len(env) == 0 {
		return nil
	}
	mean, std := meanStd(env)
	threshold := mean + 0.5*std

	var peaks []int
	for i := 1; i < len(env)-1; i++ {
		if env[i] > threshold && env[i] >= env[i-1] && env[i] >= env[i+1] {
			peaks = append(peaks, i)
		}
	}

	backtracked := make([]int, len(peaks))
	for i, p := range peaks {
		backtracked[i] = backtrackToLocalMin(env, p)
	}
	return backtracked
}

func backtrackToLocalMin(env []float64, peak int) int {
	i := peak
	for i > 0 && env[i-1] <= env[i] {
		i--
	}
	return i
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	std = math.Sqrt(sumSq / float64(len(values)))
	return mean, std
}
