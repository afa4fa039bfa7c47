//go:build !gocv

package detection

import (
	"context"
	"image"

	"github.com/menta2k/banner-cropper/pkg/types"
)

// HaarDetector is unavailable without the gocv build tag
type HaarDetector struct{}

// NewHaarDetector always fails without the gocv build tag
func NewHaarDetector(modelPath string) (*HaarDetector, error) {
	return nil, ErrHaarUnavailable
}

// Detect always fails without the gocv build tag
func (d *HaarDetector) Detect(ctx context.Context, img image.Image) ([]types.Region, error) {
	return nil, ErrHaarUnavailable
}

// Close does nothing
func (d *HaarDetector) Close() error { return nil }
