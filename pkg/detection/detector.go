// Package detection finds regions of interest that a banner crop should keep
package detection

import (
	"context"
	"errors"
	"image"

	"github.com/menta2k/banner-cropper/pkg/types"
)

var (
	// ErrHaarUnavailable is returned when the binary was built without OpenCV
	ErrHaarUnavailable = errors.New("haar cascade detection requires the gocv build tag")
	// ErrUnparseable is returned when a vision model answer has no usable JSON
	ErrUnparseable = errors.New("unparseable detector answer")
)

// Detector is the interface for region detection backends. Regions are in
// the pixel space of the image passed in, relative to its origin. An empty
// result is valid; an error means detection itself failed.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]types.Region, error)
}

// DetectorFunc adapts a function to the Detector interface
type DetectorFunc func(ctx context.Context, img image.Image) ([]types.Region, error)

// Detect calls f
func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]types.Region, error) {
	return f(ctx, img)
}

// Nop never finds anything, so every crop falls back to the default position
type Nop struct{}

// Detect returns no regions
func (Nop) Detect(ctx context.Context, _ image.Image) ([]types.Region, error) {
	return nil, ctx.Err()
}
