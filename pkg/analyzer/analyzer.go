package analyzer

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	_ "golang.org/x/image/webp"

	"github.com/menta2k/banner-cropper/pkg/types"
)

// ImageAnalyzer derives geometry facts from images and decides whether they
// can be turned into a banner
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the image analyzer
type Config struct {
	Profile          types.Profile
	SupportedFormats []string
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{
		config: Config{
			Profile:          types.DefaultProfile,
			SupportedFormats: []string{"jpeg", "png", "gif", "webp"},
		},
	}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	if config.Profile.IsZero() {
		config.Profile = types.DefaultProfile
	}
	if len(config.SupportedFormats) == 0 {
		config.SupportedFormats = New().config.SupportedFormats
	}
	return &ImageAnalyzer{config: config}
}

// Profile returns the target geometry used for classification
func (a *ImageAnalyzer) Profile() types.Profile {
	return a.config.Profile
}

// Metrics holds the dimensions of a source image and its orientation
// classes. Every field is computed once at construction.
type Metrics struct {
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Ratio     float64 `json:"ratio"`
	Landscape bool    `json:"landscape"`
	Panoramic bool    `json:"panoramic"`
}

// NewMetrics classifies a width x height image against the profile.
// Landscape and Panoramic are evaluated independently of each other.
func NewMetrics(width, height int, profile types.Profile) Metrics {
	w, h := float64(width), float64(height)
	m := Metrics{Width: w, Height: h}
	if w > 0 {
		m.Ratio = h / w
	}
	m.Landscape = m.Ratio <= 1
	m.Panoramic = m.Ratio < profile.HeightRatio()
	return m
}

// MetricsOf returns the metrics of a decoded image
func (a *ImageAnalyzer) MetricsOf(img image.Image) Metrics {
	b := img.Bounds()
	return NewMetrics(b.Dx(), b.Dy(), a.config.Profile)
}

// Ping reads only the image header and returns the metrics of the file
func (a *ImageAnalyzer) Ping(path string) (Metrics, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to open image file: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to read image header: %w", err)
	}
	if !a.isFormatSupported(format) {
		return Metrics{}, fmt.Errorf("unsupported image format: %s", format)
	}

	return NewMetrics(cfg.Width, cfg.Height, a.config.Profile), nil
}

// IsEligible reports whether the image is at least as large as the target in
// both dimensions and is landscape oriented. Images are never upscaled.
func (a *ImageAnalyzer) IsEligible(m Metrics) bool {
	return IneligibleReason(m, a.config.Profile) == ""
}

// IneligibleReason explains why an image cannot be cropped, or returns ""
func IneligibleReason(m Metrics, profile types.Profile) string {
	switch {
	case m.Width < profile.Width():
		return fmt.Sprintf("width %.0f below %.0f", m.Width, profile.Width())
	case m.Height < profile.Height():
		return fmt.Sprintf("height %.0f below %.0f", m.Height, profile.Height())
	case !m.Landscape:
		return fmt.Sprintf("portrait orientation (ratio %.3f)", m.Ratio)
	}
	return ""
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}
