package imagehash

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradientPNG(t *testing.T, w, h int, invert bool) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x * 255) / w)
			if invert {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 0, Distance(0xFF, 0xFF))
	assert.Equal(t, 1, Distance(0, 1))
	assert.Equal(t, 64, Distance(0, ^Hash(0)))
}

func TestHashURLSameBytesSameHash(t *testing.T) {
	left := gradientPNG(t, 64, 64, false)
	right := gradientPNG(t, 64, 64, true)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a.png", "/a-copy.png":
			_, _ = w.Write(left)
		case "/b.png":
			_, _ = w.Write(right)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	h := NewHasher(NewFetcher(time.Second, 1<<20))
	ctx := context.Background()

	a, err := h.HashURL(ctx, srv.URL+"/a.png")
	require.NoError(t, err)
	aCopy, err := h.HashURL(ctx, srv.URL+"/a-copy.png")
	require.NoError(t, err)
	b, err := h.HashURL(ctx, srv.URL+"/b.png")
	require.NoError(t, err)

	assert.Equal(t, a, aCopy)
	assert.NotEqual(t, a, b)

	_, err = h.HashURL(ctx, srv.URL+"/missing.png")
	assert.Error(t, err)
}

func TestFetchSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	_, err := NewFetcher(time.Second, 1024).Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTooLarge)

	data, err := NewFetcher(time.Second, 0).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, data, 2048)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("definitely not an image"))
	assert.Error(t, err)
}

func TestOrient(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	red := color.RGBA{R: 255, A: 255}
	src.Set(0, 0, red)

	testCases := []struct {
		orientation int
		w, h        int
		x, y        int
	}{
		{1, 3, 2, 0, 0},
		{2, 3, 2, 2, 0},
		{3, 3, 2, 2, 1},
		{4, 3, 2, 0, 1},
		{6, 2, 3, 1, 0},
		{8, 2, 3, 0, 2},
	}

	for _, tc := range testCases {
		out := Orient(src, tc.orientation)
		assert.Equal(t, tc.w, out.Bounds().Dx(), "orientation %d", tc.orientation)
		assert.Equal(t, tc.h, out.Bounds().Dy(), "orientation %d", tc.orientation)
		r, _, _, _ := out.At(tc.x, tc.y).RGBA()
		assert.Equal(t, uint32(0xFFFF), r, "orientation %d", tc.orientation)
	}
}
