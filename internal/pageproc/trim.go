package pageproc

import (
	"image"
	"math"
)

// TrimBox is the content rectangle of a page, right and bottom exclusive.
type TrimBox struct {
	Left, Top, Right, Bottom int
}

// Empty reports whether the box has no area on either axis.
func (b TrimBox) Empty() bool {
	return b.Right <= b.Left || b.Bottom <= b.Top
}

// Rect converts the box to an image rectangle.
func (b TrimBox) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

// notFound marks an edge for which no content line was seen.
const notFound = -2

// DetectTrimBox finds the content box of a grayscale-equivalent image with
// the given threshold and strategy. A blank page yields an empty box.
func DetectTrimBox(img *image.NRGBA, threshold int, method TrimMethod) TrimBox {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w == 0 || h == 0 {
		return TrimBox{}
	}

	var dark func(x0, y0, dx, dy, n int) bool
	switch method {
	case TrimAverage:
		local := averageThreshold(threshold)
		dark = func(x0, y0, dx, dy, n int) bool {
			sum := 0
			for k := 0; k < n; k++ {
				r, g, b := rgbAt(img, x0+k*dx, y0+k*dy)
				sum += r + g + b
			}
			return sum/3/n < local
		}
	default:
		dark = func(x0, y0, dx, dy, n int) bool {
			for k := 0; k < n; k++ {
				r, g, b := rgbAt(img, x0+k*dx, y0+k*dy)
				if r < threshold || g < threshold || b < threshold {
					return true
				}
			}
			return false
		}
	}

	box := TrimBox{Left: notFound, Top: notFound, Right: notFound, Bottom: notFound}

	for x := 0; x < w; x++ {
		if dark(x, 0, 0, 1, h) {
			box.Left = x - 1
			break
		}
	}
	for y := 0; y < h; y++ {
		if dark(0, y, 1, 0, w) {
			box.Top = y - 1
			break
		}
	}
	for x := w - 1; x >= 0; x-- {
		if dark(x, 0, 0, 1, h) {
			box.Right = x + 1
			break
		}
	}
	for y := h - 1; y >= 0; y-- {
		if dark(0, y, 1, 0, w) {
			box.Bottom = y + 1
			break
		}
	}

	return box.clamp()
}

// ContentBox is DetectTrimBox with the blank-page case resolved: an empty
// detection result becomes the full image.
func ContentBox(img *image.NRGBA, threshold int, method TrimMethod) TrimBox {
	box := DetectTrimBox(img, threshold, method)
	if box.Empty() {
		return TrimBox{Right: img.Rect.Dx(), Bottom: img.Rect.Dy()}
	}
	return box
}

// clamp pulls unset and negative bounds to zero, then keeps start <= end.
func (b TrimBox) clamp() TrimBox {
	b.Left = max(b.Left, 0)
	b.Top = max(b.Top, 0)
	b.Right = max(b.Right, 0)
	b.Bottom = max(b.Bottom, 0)
	if b.Left > b.Right {
		b.Left = b.Right
	}
	if b.Top > b.Bottom {
		b.Top = b.Bottom
	}
	return b
}

// averageThreshold moves T halfway towards white for line averages.
func averageThreshold(t int) int {
	return t + int(math.Round(float64(256-t)*0.5))
}

func rgbAt(img *image.NRGBA, x, y int) (int, int, int) {
	i := img.PixOffset(img.Rect.Min.X+x, img.Rect.Min.Y+y)
	return int(img.Pix[i]), int(img.Pix[i+1]), int(img.Pix[i+2])
}
