//go:build gocv

package detection

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/menta2k/banner-cropper/pkg/types"
)

// HaarDetector finds faces with an OpenCV Haar cascade such as
// haarcascade_frontalface_alt.xml
type HaarDetector struct {
	mu         sync.Mutex // CascadeClassifier is not safe for concurrent use
	classifier gocv.CascadeClassifier
}

// NewHaarDetector loads the cascade XML file
func NewHaarDetector(modelPath string) (*HaarDetector, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("cascade file not found: %w", err)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(modelPath) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade: %s", modelPath)
	}

	return &HaarDetector{classifier: classifier}, nil
}

// Detect returns one region per detected face
func (d *HaarDetector) Detect(ctx context.Context, img image.Image) ([]types.Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBToGray)

	d.mu.Lock()
	rects := d.classifier.DetectMultiScale(gray)
	d.mu.Unlock()

	regions := make([]types.Region, 0, len(rects))
	for _, r := range rects {
		regions = append(regions, types.Region{
			X:      float64(r.Min.X),
			Y:      float64(r.Min.Y),
			Width:  float64(r.Dx()),
			Height: float64(r.Dy()),
		})
	}
	return regions, nil
}

// Close releases the classifier
func (d *HaarDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}
