package imagehash

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Decode decodes image bytes in any registered format and applies the EXIF
// orientation so that rotated phone photos hash like their upright copies.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if o := Orientation(data); o != 1 {
		img = Orient(img, o)
	}
	return img, nil
}

// Orientation reads the EXIF orientation tag, defaulting to 1.
func Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

// Orient maps img into the upright frame described by an EXIF orientation.
func Orient(img image.Image, orientation int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.RGBA
	var to func(x, y int) (int, int)
	switch orientation {
	case 2:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
		to = func(x, y int) (int, int) { return w - 1 - x, y }
	case 3:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
		to = func(x, y int) (int, int) { return w - 1 - x, h - 1 - y }
	case 4:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
		to = func(x, y int) (int, int) { return x, h - 1 - y }
	case 5:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		to = func(x, y int) (int, int) { return y, x }
	case 6:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		to = func(x, y int) (int, int) { return h - 1 - y, x }
	case 7:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		to = func(x, y int) (int, int) { return h - 1 - y, w - 1 - x }
	case 8:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		to = func(x, y int) (int, int) { return y, w - 1 - x }
	default:
		return img
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := to(x, y)
			dst.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}
