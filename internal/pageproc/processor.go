// Package pageproc turns decoded source images into fixed-size reader pages:
// double-page handling, grayscale, border trimming and canvas compositing.
package pageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	// imaging registers the other formats itself.
	_ "golang.org/x/image/webp"
)

// canvasRatio is the fixed width/height ratio of every output page.
const canvasRatio = 0.75

// ErrAspectRatio is returned for pages that would be wider than the canvas
// once scaled to the target height.
var ErrAspectRatio = errors.New("width / height ratio above 0.75")

// Processor renders pages with one immutable set of settings. It holds no
// per-page state and is safe for concurrent use.
type Processor struct {
	settings RenderSettings
}

// NewProcessor validates settings and returns a processor using them.
func NewProcessor(settings RenderSettings) (*Processor, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid render settings: %w", err)
	}
	return &Processor{settings: settings}, nil
}

// Settings returns the settings the processor renders with.
func (p *Processor) Settings() RenderSettings {
	return p.settings
}

// Page is one rendered output page. Err is ErrAspectRatio for rejected pages,
// in which case JPEG is nil.
type Page struct {
	JPEG []byte
	Err  error
}

// Decode opens a source image, honouring EXIF orientation.
func Decode(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// Render runs one decoded source image through geometry, compositing and
// encoding. It returns one or two pages in reading order.
func (p *Processor) Render(src image.Image) ([]Page, error) {
	parts := Split(src, p.settings.DoublePage, p.settings.Offset)
	pages := make([]Page, 0, len(parts))
	for _, part := range parts {
		canvas, err := p.Compose(part)
		if errors.Is(err, ErrAspectRatio) {
			pages = append(pages, Page{Err: err})
			continue
		}
		if err != nil {
			return nil, err
		}
		data, err := p.Encode(canvas)
		if err != nil {
			return nil, err
		}
		pages = append(pages, Page{JPEG: data})
	}
	return pages, nil
}

// Grayscale applies the fixed 0.3/0.59/0.11 luminance weights to every
// pixel, keeping alpha.
func Grayscale(img image.Image) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		y := 0.3*float64(c.R) + 0.59*float64(c.G) + 0.11*float64(c.B)
		v := uint8(math.Min(255, math.Round(y)))
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
}

// Compose grayscales and trims a page as configured, then scales it to the
// target height and draws it on a white canvas of fixed size.
func (p *Processor) Compose(page image.Image) (*image.NRGBA, error) {
	s := p.settings

	work := imaging.Clone(page)
	if s.Grayscale {
		work = Grayscale(work)
	}

	if s.Trimming {
		detect := work
		if !s.Grayscale {
			detect = Grayscale(work)
		}
		box := ContentBox(detect, s.Threshold, s.Method)
		work = imaging.Crop(work, box.Rect())
	}

	tw, th := work.Rect.Dx(), work.Rect.Dy()
	if tw == 0 || th == 0 {
		return nil, fmt.Errorf("empty page %dx%d", tw, th)
	}

	// Compared on the source ratio: an exact 3:4 page must fill the canvas
	// whatever the rounding of the scaled width.
	if tw*4 > th*3 {
		return nil, fmt.Errorf("%w: %dx%d", ErrAspectRatio, tw, th)
	}
	width := int(math.Round(float64(s.Height) * float64(tw) / float64(th)))
	width = max(width, 1)

	cw := canvasWidth(s.Height)
	scaled := imaging.Resize(work, width, s.Height, imaging.Lanczos)
	canvas := imaging.New(cw, s.Height, color.White)
	x := int(math.Round(float64(cw-width) * s.LeftMargin))
	return imaging.Overlay(canvas, scaled, image.Pt(x, 0), 1.0), nil
}

// Encode writes img as JPEG. With a size limit set, quality is lowered in
// steps of 5 down to 60 until the page fits; the smallest attempt is
// returned when it never does.
func (p *Processor) Encode(img image.Image) ([]byte, error) {
	quality := p.settings.Quality
	best, err := encodeJPEG(img, quality)
	if err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}
	if p.settings.MaxBytes <= 0 || len(best) <= p.settings.MaxBytes {
		return best, nil
	}

	for q := quality - 5; q >= minQuality; q -= 5 {
		candidate, err := encodeJPEG(img, q)
		if err != nil {
			return nil, fmt.Errorf("jpeg re-encode failed at quality %d: %w", q, err)
		}
		best = candidate
		if len(candidate) <= p.settings.MaxBytes {
			break
		}
	}
	return best, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func canvasWidth(height int) int {
	return int(math.Round(float64(height) * canvasRatio))
}
