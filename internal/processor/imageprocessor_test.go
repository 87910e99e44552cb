package processor

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPrepareForOCRWithinBounds(t *testing.T) {
	data := encodePNG(t, 100, 50)

	out, mime, err := PrepareForOCR(data, "image/png", 200)
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.Equal(t, "image/png", mime)
}

func TestPrepareForOCRDownscales(t *testing.T) {
	data := encodePNG(t, 400, 100)

	out, mime, err := PrepareForOCR(data, "image/png", 200)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

func TestPrepareForOCRPortrait(t *testing.T) {
	data := encodePNG(t, 100, 400)

	out, mime, err := PrepareForOCR(data, "image/jpeg", 200)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Width)
	assert.Equal(t, 200, cfg.Height)
}

func TestPrepareForOCRUndecodable(t *testing.T) {
	out, mime, err := PrepareForOCR([]byte("not an image"), "image/jpeg", 200)
	require.NoError(t, err)
	assert.Equal(t, []byte("not an image"), out)
	assert.Equal(t, "image/jpeg", mime)
}
