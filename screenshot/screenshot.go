// Package screenshot abstracts the platform screen-capture API as an opaque
// byte-producing provider. Capture is the one genuinely asynchronous
// operation in the system: the platform callback may take a while, so it
// honors context cancellation instead of blocking the caller indefinitely.
package screenshot

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"time"
)

// Shot is one captured frame.
type Shot struct {
	Data       []byte
	Format     string
	Width      int
	Height     int
	CapturedAt time.Time
}

// Provider produces screenshots of the app under test.
type Provider interface {
	Capture(ctx context.Context) (Shot, error)
}

// PlaceholderProvider renders a solid-color PNG at a fixed size. It stands
// in for the platform capture API in the demo build and in tests.
type PlaceholderProvider struct {
	Width  int
	Height int
	Fill   color.RGBA

	// Delay simulates platform capture latency.
	Delay time.Duration
}

// NewPlaceholderProvider returns a provider rendering a phone-sized frame.
func NewPlaceholderProvider() *PlaceholderProvider {
	return &PlaceholderProvider{
		Width:  390,
		Height: 844,
		Fill:   color.RGBA{R: 0x1e, G: 0x29, B: 0x3b, A: 0xff},
	}
}

// Capture renders the placeholder frame. The context deadline is respected
// both during the simulated delay and before encoding starts.
func (p *PlaceholderProvider) Capture(ctx context.Context) (Shot, error) {
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return Shot{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return Shot{}, err
	}

	img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			img.SetRGBA(x, y, p.Fill)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Shot{}, err
	}

	return Shot{
		Data:       buf.Bytes(),
		Format:     "png",
		Width:      p.Width,
		Height:     p.Height,
		CapturedAt: time.Now(),
	}, nil
}
