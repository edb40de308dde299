// Package config loads render profiles: YAML files holding the rendering and
// logging defaults of a conversion. Profiles are only read, never written.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cgourdon/MangaToEpub/internal/epub"
	"github.com/cgourdon/MangaToEpub/internal/pageproc"
)

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Profile is the on-disk form of the render settings. Enum values accept
// either the CLI key ("right-first") or the display label ("Right Page First").
type Profile struct {
	Height        int     `yaml:"height"`
	Grayscale     bool    `yaml:"grayscale"`
	Trimming      bool    `yaml:"trimming"`
	TrimLevel     string  `yaml:"trim_level"`
	TrimMethod    string  `yaml:"trim_method"`
	TrimThreshold *int    `yaml:"trim_threshold"` // overrides the level's threshold when set
	DoublePage    string  `yaml:"double_page"`
	Offset        int     `yaml:"offset"`
	LeftMargin    float64 `yaml:"left_margin"`
	Quality       int     `yaml:"quality"`
	MaxImageSize  int     `yaml:"max_image_size"` // bytes, 0 disables
	Language      string  `yaml:"language"`
	Workers       int     `yaml:"workers"`

	Logging LoggingConfig `yaml:"logging"`
}

var (
	ErrInvalidThreshold = errors.New("trim_threshold must be between 0 and 255")
	ErrInvalidWorkers   = errors.New("workers must not be negative")
	ErrInvalidMaxSize   = errors.New("max_image_size must not be negative")
)

// Defaults returns the profile used when no file is given.
func Defaults() Profile {
	s := pageproc.DefaultSettings()
	return Profile{
		Height:     s.Height,
		Grayscale:  s.Grayscale,
		Trimming:   s.Trimming,
		TrimLevel:  pageproc.TrimMedium.Key(),
		TrimMethod: s.Method.Key(),
		DoublePage: s.DoublePage.Key(),
		LeftMargin: s.LeftMargin,
		Quality:    s.Quality,
		Language:   epub.DefaultLanguage,
		Logging:    LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads the profile at path on top of Defaults and validates it.
// Unknown keys are rejected.
func Load(path string) (Profile, error) {
	p := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read profile: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return p, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("invalid profile %s: %w", path, err)
	}
	return p, nil
}

// Validate reports the first invalid field.
func (p Profile) Validate() error {
	if p.TrimThreshold != nil && (*p.TrimThreshold < 0 || *p.TrimThreshold > 255) {
		return ErrInvalidThreshold
	}
	if p.Workers < 0 {
		return ErrInvalidWorkers
	}
	if p.MaxImageSize < 0 {
		return ErrInvalidMaxSize
	}
	s, err := p.Settings()
	if err != nil {
		return err
	}
	return s.Validate()
}

// Settings converts the profile into render settings.
func (p Profile) Settings() (pageproc.RenderSettings, error) {
	level, err := pageproc.ParseTrimLevel(p.TrimLevel)
	if err != nil {
		return pageproc.RenderSettings{}, fmt.Errorf("trim_level: %w", err)
	}
	method, err := pageproc.ParseTrimMethod(p.TrimMethod)
	if err != nil {
		return pageproc.RenderSettings{}, fmt.Errorf("trim_method: %w", err)
	}
	mode, err := pageproc.ParseDoublePage(p.DoublePage)
	if err != nil {
		return pageproc.RenderSettings{}, fmt.Errorf("double_page: %w", err)
	}

	threshold := level.Threshold()
	if p.TrimThreshold != nil {
		threshold = *p.TrimThreshold
	}
	return pageproc.RenderSettings{
		Height:     p.Height,
		Grayscale:  p.Grayscale,
		Trimming:   p.Trimming,
		Threshold:  threshold,
		Method:     method,
		DoublePage: mode,
		Offset:     p.Offset,
		LeftMargin: p.LeftMargin,
		Quality:    p.Quality,
		MaxBytes:   p.MaxImageSize,
	}, nil
}
