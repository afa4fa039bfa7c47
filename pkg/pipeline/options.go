package pipeline

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/banner-cropper/pkg/cropper"
	"github.com/menta2k/banner-cropper/pkg/processing"
	"github.com/menta2k/banner-cropper/pkg/types"
)

// Mode selects which image the crop is cut from
type Mode int

const (
	// ModeSource detects on a fit-resized copy and crops the full
	// resolution source.
	ModeSource Mode = iota
	// ModeFill resizes the source to cover the target, then detects, plans
	// and crops on that copy. The output is exactly the target size.
	ModeFill
)

// ParseMode maps a config value onto a Mode
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "source":
		return ModeSource, nil
	case "fill":
		return ModeFill, nil
	}
	return ModeSource, fmt.Errorf("unknown crop mode: %s", s)
}

func (m Mode) String() string {
	if m == ModeFill {
		return "fill"
	}
	return "source"
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger used for per-job messages
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithProcessor replaces the image processor
func WithProcessor(proc *processing.Processor) Option {
	return func(p *Pipeline) { p.processor = proc }
}

// WithProfile sets the target geometry
func WithProfile(profile types.Profile) Option {
	return func(p *Pipeline) { p.profile = profile }
}

// WithCoordinatePolicy sets how detected regions are mapped onto the source
func WithCoordinatePolicy(policy cropper.CoordinatePolicy) Option {
	return func(p *Pipeline) { p.policy = policy }
}

// WithMode sets the crop mode
func WithMode(mode Mode) Option {
	return func(p *Pipeline) { p.mode = mode }
}

// WithOutput sets the encoded banner format (jpg, png or webp)
func WithOutput(format string, quality int, lossless bool) Option {
	return func(p *Pipeline) {
		p.format = format
		p.quality = quality
		p.lossless = lossless
	}
}

// WithTempDir sets where encoded banners are staged before upload
func WithTempDir(dir string) Option {
	return func(p *Pipeline) { p.tempDir = dir }
}

// WithDebugDir enables debug overlays written to dir
func WithDebugDir(dir string) Option {
	return func(p *Pipeline) { p.debugDir = dir }
}

// WithKeyPrefix sets the object key prefix passed to the store
func WithKeyPrefix(prefix string) Option {
	return func(p *Pipeline) { p.keyPrefix = prefix }
}
