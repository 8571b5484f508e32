// Package imagehash computes 64-bit perceptual hashes of remote images.
package imagehash

import (
	"context"
	"fmt"
	"image"
	"math/bits"

	"github.com/corona10/goimagehash"
)

// Hash is a 64-bit perceptual hash.
type Hash uint64

// Distance is the Hamming distance between two hashes.
func Distance(a, b Hash) int {
	return bits.OnesCount64(uint64(a ^ b))
}

// Perceptual computes the DCT perceptual hash of img.
func Perceptual(img image.Image) (Hash, error) {
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, fmt.Errorf("failed to hash image: %w", err)
	}
	return Hash(h.GetHash()), nil
}

// Hasher downloads, decodes and hashes images.
type Hasher struct {
	fetcher *Fetcher
}

func NewHasher(fetcher *Fetcher) *Hasher {
	return &Hasher{fetcher: fetcher}
}

// HashURL returns the perceptual hash of the image at imageURL.
func (h *Hasher) HashURL(ctx context.Context, imageURL string) (Hash, error) {
	data, err := h.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return 0, err
	}
	img, err := Decode(data)
	if err != nil {
		return 0, err
	}
	return Perceptual(img)
}
