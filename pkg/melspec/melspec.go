// Package melspec computes log mel spectrogram features from mono audio.
//
// This is the front-end of the transcription pipeline. Analysis windows are
// centered on their frames: the signal is zero-padded by FFTSize/2 on both
// ends, so a signal of L samples always yields
//
//	T = L/HopLength + 1
//
// frames, and frame t is centered on sample t*HopLength. An empty signal
// yields zero frames.
//
// The output is a [T][NumMels] float64 matrix of log mel energies, floored
// at 1e-10 before the log. [Extractor.Cepstral] additionally applies an
// orthonormal DCT-II for the cepstral-coefficient variant of the front-end.
//
// Default parameters match the shipped transcription model:
//
//	SampleRate: 44100
//	FFTSize:    2048
//	HopLength:  512
//	NumMels:    128
//	NumCoeffs:  20
package melspec

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// logFloor keeps silent bands away from log(0).
const logFloor = 1e-10

// Config controls spectrogram extraction parameters.
type Config struct {
	SampleRate int     // audio sample rate in Hz (default 44100)
	FFTSize    int     // FFT window size in samples (default 2048)
	HopLength  int     // hop between frame centers in samples (default 512)
	NumMels    int     // number of mel bands (default 128)
	NumCoeffs  int     // cepstral coefficients kept by Cepstral (default 20)
	MinFreq    float64 // lowest filterbank frequency (default 0)
	MaxFreq    float64 // highest filterbank frequency (0 means SampleRate/2)
}

// DefaultConfig returns the front-end parameters of the shipped model.
func DefaultConfig() Config {
	return Config{
		SampleRate: 44100,
		FFTSize:    2048,
		HopLength:  512,
		NumMels:    128,
		NumCoeffs:  20,
		MinFreq:    0,
	}
}

// Extractor computes log mel features from audio samples.
//
// An Extractor reuses internal FFT buffers and is not safe for concurrent
// use; create one per goroutine.
type Extractor struct {
	cfg     Config
	fft     *fourier.FFT
	window  []float64
	melBank [][]float64
	dct     [][]float64

	frame  []float64
	coeffs []complex128
	power  []float64
}

// New creates an Extractor with the given config.
func New(cfg Config) *Extractor {
	if cfg.MaxFreq <= 0 {
		cfg.MaxFreq = float64(cfg.SampleRate) / 2
	}
	halfFFT := cfg.FFTSize/2 + 1
	return &Extractor{
		cfg:     cfg,
		fft:     fourier.NewFFT(cfg.FFTSize),
		window:  hannWindow(cfg.FFTSize),
		melBank: melFilterBank(cfg.NumMels, cfg.FFTSize, cfg.SampleRate, cfg.MinFreq, cfg.MaxFreq),
		dct:     dctMatrix(cfg.NumCoeffs, cfg.NumMels),
		frame:   make([]float64, cfg.FFTSize),
		coeffs:  make([]complex128, halfFFT),
		power:   make([]float64, halfFFT),
	}
}

// NumFrames returns the frame count Extract produces for n input samples.
func (e *Extractor) NumFrames(n int) int {
	if n == 0 {
		return 0
	}
	return n/e.cfg.HopLength + 1
}

// Extract computes log mel features from normalized mono samples.
// Output: [T][NumMels] where T = NumFrames(len(samples)).
func (e *Extractor) Extract(samples []float64) [][]float64 {
	n := len(samples)
	if n == 0 {
		return nil
	}

	cfg := e.cfg
	halfFFT := cfg.FFTSize/2 + 1
	numFrames := e.NumFrames(n)
	features := make([][]float64, numFrames)

	for t := 0; t < numFrames; t++ {
		// Window centered on sample t*hop; out-of-range taps are zero.
		start := t*cfg.HopLength - cfg.FFTSize/2
		for i := 0; i < cfg.FFTSize; i++ {
			j := start + i
			if j < 0 || j >= n {
				e.frame[i] = 0
				continue
			}
			e.frame[i] = samples[j] * e.window[i]
		}

		e.fft.Coefficients(e.coeffs, e.frame)
		for k := 0; k < halfFFT; k++ {
			re := real(e.coeffs[k])
			im := imag(e.coeffs[k])
			e.power[k] = re*re + im*im
		}

		features[t] = applyMelBank(e.melBank, e.power)
	}

	return features
}

// Cepstral computes cepstral coefficients: Extract followed by an
// orthonormal DCT-II over each frame, keeping the first NumCoeffs.
// Output: [T][NumCoeffs].
func (e *Extractor) Cepstral(samples []float64) [][]float64 {
	mel := e.Extract(samples)
	out := make([][]float64, len(mel))
	for t, row := range mel {
		c := make([]float64, e.cfg.NumCoeffs)
		for k := 0; k < e.cfg.NumCoeffs; k++ {
			sum := 0.0
			for m, basis := range e.dct[k] {
				sum += basis * row[m]
			}
			c[k] = sum
		}
		out[t] = c
	}
	return out
}
