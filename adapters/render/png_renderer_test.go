package render

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, payload string) (int, int) {
	t.Helper()
	require.True(t, strings.HasPrefix(payload, dataURLPrefix))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(payload, dataURLPrefix))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestRenderProducesPNGDataURL(t *testing.T) {
	payload, err := NewPNGRenderer().Render("aB3xyZ")
	require.NoError(t, err)

	w, h := decode(t, payload)
	assert.Equal(t, 150, w)
	assert.Equal(t, 50, h)
}

func TestRenderCustomSize(t *testing.T) {
	payload, err := NewPNGRenderer(WithSize(300, 80), WithNoiseLines(10)).Render("QWERTY")
	require.NoError(t, err)

	w, h := decode(t, payload)
	assert.Equal(t, 300, w)
	assert.Equal(t, 80, h)
}

func TestRenderIsNotDeterministic(t *testing.T) {
	r := NewPNGRenderer()
	first, err := r.Render("abcdef")
	require.NoError(t, err)
	second, err := r.Render("abcdef")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestRenderRejectsBadInput(t *testing.T) {
	_, err := NewPNGRenderer().Render("")
	assert.Error(t, err)

	_, err = NewPNGRenderer(WithSize(0, 10)).Render("abc")
	assert.Error(t, err)
}
