// Package wave loads PCM WAV audio into normalized mono float64 samples.
//
// This is the input stage of the transcription pipeline: decode, downmix
// stereo to mono, scale to [-1, 1], and resample to the configured rate
// when the file was recorded at a different one.
//
// Only 16-bit integer PCM is accepted. Compressed codecs, float WAVs and
// exotic bit depths fail with [ErrInvalidFormat].
package wave

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
	resampling "github.com/tphakala/go-audio-resampling"
)

var (
	// ErrInvalidFormat reports audio that is not 16-bit mono or stereo PCM.
	ErrInvalidFormat = errors.New("wave: invalid audio format")

	// ErrEmptyInput reports a file with zero audio samples.
	ErrEmptyInput = errors.New("wave: empty input")
)

// Clip is decoded mono audio at a known sample rate.
type Clip struct {
	Samples []float64 // normalized to [-1, 1]
	Rate    int       // Hz
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.Rate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.Rate)
}

// Load decodes a WAV file and returns mono samples at targetRate.
func Load(path string, targetRate int) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("wave: open %s: %w", path, err)
	}
	defer f.Close()

	clip, err := Decode(f, targetRate)
	if err != nil {
		return Clip{}, fmt.Errorf("wave: %s: %w", path, err)
	}
	return clip, nil
}

// Decode reads a WAV stream and returns mono samples at targetRate.
func Decode(r io.ReadSeeker, targetRate int) (Clip, error) {
	if targetRate <= 0 {
		return Clip{}, fmt.Errorf("wave: target rate must be positive, got %d", targetRate)
	}

	d := wav.NewDecoder(r)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return Clip{}, fmt.Errorf("read header: %v: %w", err, ErrInvalidFormat)
	}
	if d.WavAudioFormat != 1 {
		return Clip{}, fmt.Errorf("codec %d is not integer pcm: %w", d.WavAudioFormat, ErrInvalidFormat)
	}
	if d.BitDepth != 16 {
		return Clip{}, fmt.Errorf("expected 16-bit samples, got %d-bit: %w", d.BitDepth, ErrInvalidFormat)
	}
	if d.NumChans != 1 && d.NumChans != 2 {
		return Clip{}, fmt.Errorf("expected mono or stereo, got %d channels: %w", d.NumChans, ErrInvalidFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("read samples: %v: %w", err, ErrInvalidFormat)
	}
	if len(buf.Data) == 0 {
		return Clip{}, ErrEmptyInput
	}

	samples := normalize(buf.Data, buf.Format.NumChannels)
	srcRate := buf.Format.SampleRate
	if srcRate == targetRate {
		return Clip{Samples: samples, Rate: targetRate}, nil
	}

	out, err := resample(samples, srcRate, targetRate)
	if err != nil {
		return Clip{}, err
	}
	return Clip{Samples: out, Rate: targetRate}, nil
}

// normalize converts interleaved int16 PCM to mono [-1, 1] float64,
// averaging channel pairs when the source is stereo.
func normalize(data []int, channels int) []float64 {
	if channels == 2 {
		frames := len(data) / 2
		out := make([]float64, frames)
		for i := 0; i < frames; i++ {
			l := float64(data[i*2]) / 32768.0
			r := float64(data[i*2+1]) / 32768.0
			out[i] = (l + r) / 2
		}
		return out
	}
	out := make([]float64, len(data))
	for i, s := range data {
		out[i] = float64(s) / 32768.0
	}
	return out
}

// resample converts mono samples from srcRate to dstRate.
func resample(samples []float64, srcRate, dstRate int) ([]float64, error) {
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("wave: create resampler: %w", err)
	}
	out, err := rs.Process(samples)
	if err != nil {
		return nil, fmt.Errorf("wave: resample %d -> %d Hz: %w", srcRate, dstRate, err)
	}
	return out, nil
}
