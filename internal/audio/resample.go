package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Conform returns the clip at the target sample rate. The output length is
// fixed to the exact rate ratio so assembled durations stay predictable.
func Conform(clip Clip, sampleRate int) (Clip, error) {
	if clip.SampleRate == sampleRate || len(clip.Samples) == 0 {
		return Clip{SampleRate: sampleRate, Samples: clip.Samples}, nil
	}
	if clip.SampleRate <= 0 || sampleRate <= 0 {
		return Clip{}, fmt.Errorf("resample: invalid rates %d -> %d", clip.SampleRate, sampleRate)
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(clip.SampleRate),
		OutputRate: float64(sampleRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return Clip{}, fmt.Errorf("create resampler: %w", err)
	}

	input := make([]float64, len(clip.Samples))
	for i, s := range clip.Samples {
		input[i] = float64(s) / 32768.0
	}
	output, err := rs.Process(input)
	if err != nil {
		return Clip{}, fmt.Errorf("resample: %w", err)
	}

	want := int64(len(clip.Samples)) * int64(sampleRate) / int64(clip.SampleRate)
	samples := make([]int16, want)
	for i := 0; i < len(samples) && i < len(output); i++ {
		samples[i] = toInt16(output[i])
	}
	return Clip{SampleRate: sampleRate, Samples: samples}, nil
}
