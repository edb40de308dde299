package pageproc

import (
	"errors"
	"fmt"
	"strings"
)

// DoublePage selects how landscape source images are turned into pages.
type DoublePage int

const (
	DoublePageNone DoublePage = iota
	LeftPageFirst
	RightPageFirst
	RotateLeft
	RotateRight
)

// TrimMethod selects the border detection strategy.
type TrimMethod int

const (
	TrimAbsolute TrimMethod = iota
	TrimAverage
)

// TrimLevel is a named trim sensitivity.
type TrimLevel int

const (
	TrimHigh TrimLevel = iota
	TrimMedium
	TrimLow
	TrimNone
)

type enumInfo struct {
	key   string
	label string
}

var doublePageInfo = map[DoublePage]enumInfo{
	DoublePageNone: {"none", "None"},
	LeftPageFirst:  {"left-first", "Left Page First"},
	RightPageFirst: {"right-first", "Right Page First"},
	RotateLeft:     {"rotate-left", "Rotate Left"},
	RotateRight:    {"rotate-right", "Rotate Right"},
}

var trimMethodInfo = map[TrimMethod]enumInfo{
	TrimAbsolute: {"absolute", "Absolute"},
	TrimAverage:  {"average", "Average"},
}

var trimLevelInfo = map[TrimLevel]enumInfo{
	TrimHigh:   {"high", "High"},
	TrimMedium: {"medium", "Medium"},
	TrimLow:    {"low", "Low"},
	TrimNone:   {"none", "None"},
}

var trimLevelThresholds = map[TrimLevel]int{
	TrimHigh:   200,
	TrimMedium: 220,
	TrimLow:    240,
	TrimNone:   256,
}

// ErrUnknownValue is returned when parsing an unrecognised enum key.
var ErrUnknownValue = errors.New("unknown value")

// Label returns the display label, e.g. "Right Page First".
func (d DoublePage) Label() string {
	return doublePageInfo[d].label
}

// Key returns the command-line key, e.g. "right-first".
func (d DoublePage) Key() string {
	return doublePageInfo[d].key
}

func (d DoublePage) String() string {
	return d.Label()
}

func (m TrimMethod) Label() string {
	return trimMethodInfo[m].label
}

func (m TrimMethod) Key() string {
	return trimMethodInfo[m].key
}

func (m TrimMethod) String() string {
	return m.Label()
}

func (l TrimLevel) Label() string {
	return trimLevelInfo[l].label
}

func (l TrimLevel) Key() string {
	return trimLevelInfo[l].key
}

func (l TrimLevel) String() string {
	return l.Label()
}

// Threshold returns the sensitivity T of the level. Lower trims more.
func (l TrimLevel) Threshold() int {
	return trimLevelThresholds[l]
}

// ParseDoublePage accepts a key or a label, case-insensitively.
func ParseDoublePage(s string) (DoublePage, error) {
	for v, info := range doublePageInfo {
		if matches(s, info) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("double page mode %q: %w", s, ErrUnknownValue)
}

// ParseTrimMethod accepts a key or a label, case-insensitively.
func ParseTrimMethod(s string) (TrimMethod, error) {
	for v, info := range trimMethodInfo {
		if matches(s, info) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("trim method %q: %w", s, ErrUnknownValue)
}

// ParseTrimLevel accepts a key or a label, case-insensitively.
func ParseTrimLevel(s string) (TrimLevel, error) {
	for v, info := range trimLevelInfo {
		if matches(s, info) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("trim level %q: %w", s, ErrUnknownValue)
}

func matches(s string, info enumInfo) bool {
	s = strings.TrimSpace(s)
	return strings.EqualFold(s, info.key) || strings.EqualFold(s, info.label)
}

// DoublePageKeys lists the accepted keys in declaration order, for help text.
func DoublePageKeys() []string {
	return []string{
		DoublePageNone.Key(), LeftPageFirst.Key(), RightPageFirst.Key(),
		RotateLeft.Key(), RotateRight.Key(),
	}
}

// RenderSettings is the per-run rendering configuration. It is built once
// before a run and never changed while pages are processed.
type RenderSettings struct {
	Height     int
	Grayscale  bool
	Trimming   bool
	Threshold  int // 0..256, pixels with a channel below it are content
	Method     TrimMethod
	DoublePage DoublePage
	Offset     int
	LeftMargin float64 // 0..1 share of the free width placed left of the page
	Quality    int     // JPEG quality
	MaxBytes   int     // soft per-page size limit, 0 disables
}

const (
	DefaultHeight     = 744
	DefaultLeftMargin = 0.65
	DefaultQuality    = 85
	minQuality        = 60
)

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() RenderSettings {
	return RenderSettings{
		Height:     DefaultHeight,
		Grayscale:  true,
		Trimming:   true,
		Threshold:  TrimMedium.Threshold(),
		Method:     TrimAbsolute,
		DoublePage: RightPageFirst,
		LeftMargin: DefaultLeftMargin,
		Quality:    DefaultQuality,
	}
}

var (
	ErrInvalidHeight    = errors.New("height must be positive")
	ErrInvalidThreshold = errors.New("trim threshold must be between 0 and 256")
	ErrInvalidMargin    = errors.New("left margin must be between 0 and 1")
	ErrInvalidQuality   = errors.New("quality must be between 60 and 100")
)

// Validate reports the first out-of-range field.
func (s RenderSettings) Validate() error {
	if s.Height <= 0 {
		return ErrInvalidHeight
	}
	if s.Threshold < 0 || s.Threshold > 256 {
		return ErrInvalidThreshold
	}
	if s.LeftMargin < 0 || s.LeftMargin > 1 {
		return ErrInvalidMargin
	}
	if s.Quality < minQuality || s.Quality > 100 {
		return ErrInvalidQuality
	}
	if _, ok := doublePageInfo[s.DoublePage]; !ok {
		return fmt.Errorf("double page mode %d: %w", int(s.DoublePage), ErrUnknownValue)
	}
	if _, ok := trimMethodInfo[s.Method]; !ok {
		return fmt.Errorf("trim method %d: %w", int(s.Method), ErrUnknownValue)
	}
	return nil
}

// CanvasWidth is the fixed output width for the configured height.
func (s RenderSettings) CanvasWidth() int {
	return canvasWidth(s.Height)
}
