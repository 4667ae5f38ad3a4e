package audio

import (
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"

	"github.com/eligwz/spectrogram"
)

// SaveSpectrogram renders the clip as a width x height PNG at path
func SaveSpectrogram(c *Clip, path string, width, height int) error {
	if len(c.Samples) == 0 {
		return fmt.Errorf("cannot render spectrogram of an empty clip")
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid spectrogram size %dx%d", width, height)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	img := spectrogram.NewImage128(image.Rect(0, 0, width, height))
	black := spectrogram.ParseColor("000000")
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	// Hamming window, FFT, magnitude, linear scale
	spectrogram.Drawfft(
		img,
		c.Samples,
		uint32(c.SampleRate),
		uint32(height),
		false,
		false,
		true,
		false,
	)

	if err := spectrogram.SavePng(img, path); err != nil {
		return fmt.Errorf("failed to save spectrogram: %w", err)
	}
	return nil
}
