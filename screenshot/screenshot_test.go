package screenshot

import (
	"bytes"
	"context"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureProducesDecodablePNG(t *testing.T) {
	p := NewPlaceholderProvider()

	shot, err := p.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "png", shot.Format)
	assert.Equal(t, 390, shot.Width)
	assert.Equal(t, 844, shot.Height)
	assert.False(t, shot.CapturedAt.IsZero())

	img, err := png.Decode(bytes.NewReader(shot.Data))
	require.NoError(t, err)
	assert.Equal(t, 390, img.Bounds().Dx())
	assert.Equal(t, 844, img.Bounds().Dy())
}

func TestCaptureHonorsCancellation(t *testing.T) {
	p := NewPlaceholderProvider()
	p.Delay = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Capture(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second, "capture must abort on deadline, not wait out the delay")
}
