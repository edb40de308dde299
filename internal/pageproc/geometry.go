package pageproc

import (
	"image"

	"github.com/disintegration/imaging"
)

// Split turns one decoded source image into the pages it holds, in reading
// order. Only landscape images (wider than tall) are split or rotated.
func Split(src image.Image, mode DoublePage, offset int) []image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= h {
		return []image.Image{src}
	}

	switch mode {
	case RotateLeft:
		return []image.Image{imaging.Rotate90(src)}
	case RotateRight:
		return []image.Image{imaging.Rotate270(src)}
	case LeftPageFirst, RightPageFirst:
	default:
		return []image.Image{src}
	}

	// A positive offset widens the left half.
	mid := w/2 + offset
	if mid < 1 {
		mid = 1
	}
	if mid > w-1 {
		mid = w - 1
	}
	left := imaging.Crop(src, image.Rect(b.Min.X, b.Min.Y, b.Min.X+mid, b.Max.Y))
	right := imaging.Crop(src, image.Rect(b.Min.X+mid, b.Min.Y, b.Max.X, b.Max.Y))

	if mode == LeftPageFirst {
		return []image.Image{left, right}
	}
	return []image.Image{right, left}
}
