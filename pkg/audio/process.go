package audio

import (
	"math"
)

// Trim returns the part of the clip between start and end seconds.
// Bounds are clamped to the clip; end <= 0 means the end of the clip.
func (c *Clip) Trim(start, end float64) *Clip {
	total := c.Seconds()
	if end <= 0 || end > total {
		end = total
	}
	start = clamp(start, 0, end)

	from := int(start * float64(c.SampleRate))
	to := int(end * float64(c.SampleRate))
	if to > len(c.Samples) {
		to = len(c.Samples)
	}
	if from > to {
		from = to
	}

	out := *c
	out.Samples = append([]float64(nil), c.Samples[from:to]...)
	return &out
}

// Peak returns the largest absolute sample value
func (c *Clip) Peak() float64 {
	var peak float64
	for _, s := range c.Samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}

// Power returns the mean squared sample value
func (c *Clip) Power() float64 {
	if len(c.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range c.Samples {
		sum += s * s
	}
	return sum / float64(len(c.Samples))
}

// Normalize scales the clip so that its peak sits at peakDB dBFS.
// Silent clips are returned unchanged.
func (c *Clip) Normalize(peakDB float64) *Clip {
	out := *c
	out.Samples = append([]float64(nil), c.Samples...)

	peak := c.Peak()
	if peak == 0 {
		return &out
	}
	gain := math.Pow(10, peakDB/20) / peak
	for i := range out.Samples {
		out.Samples[i] *= gain
	}
	return &out
}

// Quality holds the figures reported for a processed clip
type Quality struct {
	NoiseReductionDB float64
	SNRImprovementDB float64
	ConfidenceScore  float64
}

// Compare estimates how much quieter out is than in.
// Confidence falls as the change in level grows.
func Compare(in, out *Clip) Quality {
	const eps = 1e-10
	nr := 10 * math.Log10((in.Power()+eps)/(out.Power()+eps))
	return Quality{
		NoiseReductionDB: nr,
		SNRImprovementDB: nr,
		ConfidenceScore:  clamp(100-math.Abs(nr), 0, 100),
	}
}
