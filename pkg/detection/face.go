package detection

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"

	"github.com/menta2k/banner-cropper/pkg/types"
)

// FaceConfig holds pigo cascade parameters
type FaceConfig struct {
	MinSize      int     // smallest face side in pixels
	MaxSize      int     // largest face side in pixels
	ShiftFactor  float64 // sliding window stride as a fraction of the window
	ScaleFactor  float64 // window growth between passes
	IoUThreshold float64 // overlap above which detections are merged
	MinQuality   float32 // detections scoring lower are dropped
	Angle        float64 // in-plane rotation, 0..1 of 2*pi
}

// DefaultFaceConfig returns parameters tuned for detection inputs of a few
// hundred pixels
func DefaultFaceConfig() FaceConfig {
	return FaceConfig{
		MinSize:      20,
		MaxSize:      1000,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinQuality:   5.0,
	}
}

// FaceDetector finds frontal faces with a pigo cascade. The cascade is
// unpacked once and only read afterwards, so one detector can serve any
// number of goroutines.
type FaceDetector struct {
	classifier *pigo.Pigo
	config     FaceConfig
}

// LoadFaceDetector reads a pigo cascade file (e.g. "facefinder") from disk
func LoadFaceDetector(modelPath string, config FaceConfig) (*FaceDetector, error) {
	data, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read face model: %w", err)
	}
	return NewFaceDetector(data, config)
}

// NewFaceDetector unpacks a pigo cascade
func NewFaceDetector(cascade []byte, config FaceConfig) (d *FaceDetector, err error) {
	// pigo indexes into the packet without bounds checks
	defer func() {
		if r := recover(); r != nil {
			d, err = nil, fmt.Errorf("failed to unpack face model: %v", r)
		}
	}()

	if len(cascade) < 16 {
		return nil, fmt.Errorf("failed to unpack face model: %d bytes", len(cascade))
	}

	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack face model: %w", err)
	}

	return &FaceDetector{classifier: classifier, config: config}, nil
}

// Detect returns one square region per face
func (d *FaceDetector) Detect(ctx context.Context, img image.Image) ([]types.Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := imaging.Clone(img)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()
	if cols == 0 || rows == 0 {
		return nil, fmt.Errorf("empty image")
	}

	params := pigo.CascadeParams{
		MinSize:     d.config.MinSize,
		MaxSize:     min(d.config.MaxSize, cols, rows),
		ShiftFactor: d.config.ShiftFactor,
		ScaleFactor: d.config.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(src),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, d.config.Angle)
	dets = d.classifier.ClusterDetections(dets, d.config.IoUThreshold)

	var regions []types.Region
	for _, det := range dets {
		if det.Q < d.config.MinQuality {
			continue
		}
		side := float64(det.Scale)
		regions = append(regions, types.Region{
			X:      float64(det.Col) - side/2,
			Y:      float64(det.Row) - side/2,
			Width:  side,
			Height: side,
			Score:  float64(det.Q),
		})
	}

	return regions, nil
}
