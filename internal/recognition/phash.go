package recognition

import (
	"bytes"
	"fmt"
	"image"
	"math/bits"

	"golang.org/x/image/draw"
)

// duplicateHashDistance is the largest difference-hash Hamming distance at
// which two photos count as the same picture.
const duplicateHashDistance = 4

// DifferenceHash computes a 64-bit dHash of an image: the image is shrunk to
// 9x8 grayscale and each bit records whether a pixel is brighter than its
// right neighbour. Re-encoded or slightly resized copies hash alike.
func DifferenceHash(data []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to decode image: %w", err)
	}

	small := image.NewGray(image.Rect(0, 0, 9, 8))
	draw.BiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var hash uint64
	for y := range 8 {
		for x := range 8 {
			hash <<= 1
			if small.GrayAt(x, y).Y > small.GrayAt(x+1, y).Y {
				hash |= 1
			}
		}
	}
	return hash, nil
}

// HammingDistance counts the differing bits of two hashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
