package detection

import (
	"context"
	"fmt"
	"image"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"

	"github.com/menta2k/banner-cropper/pkg/client"
	"github.com/menta2k/banner-cropper/pkg/processing"
	"github.com/menta2k/banner-cropper/pkg/types"
)

// DefaultPrompt asks a vision model for every face in the image
const DefaultPrompt = `You are a face locator.

Return JSON only:
{
  "subjects": [
    {"label": "face", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ],
  "description": "short neutral sentence (<= 20 words)"
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels). x,y is the top-left corner.
- One entry per visible human face, tight around the face.
- If there is no face, return {"subjects": [], "description": "..."}.
- Do not guess real identities.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// VisionConfig holds configuration for vision model detection
type VisionConfig struct {
	Model         string
	Prompt        string
	SendFormat    string  // jpg or png
	SendSize      int     // max long side sent to the model, 0 = original
	SendQuality   int     // JPEG quality of the image sent
	MinConfidence float64 // subjects below this are ignored
	RateLimit     float64 // max requests per second, 0 = unlimited
}

// DefaultVisionConfig returns defaults matching small local models
func DefaultVisionConfig() VisionConfig {
	return VisionConfig{
		Model:         "openbmb/minicpm-v4.5",
		Prompt:        DefaultPrompt,
		SendFormat:    "jpg",
		SendSize:      1024,
		SendQuality:   85,
		MinConfidence: 0.3,
	}
}

// VisionDetector asks a multimodal model (ollama or llama.cpp) where the
// faces are
type VisionDetector struct {
	client    client.VisionClient
	processor *processing.Processor
	config    VisionConfig
	limiter   *rate.Limiter
}

// NewVisionDetector creates a detector on top of a vision client
func NewVisionDetector(c client.VisionClient, config VisionConfig) *VisionDetector {
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	d := &VisionDetector{
		client:    c,
		processor: processing.NewProcessor(),
		config:    config,
	}
	if config.RateLimit > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	return d
}

// Detect sends the image to the model and converts its boxes into regions
func (d *VisionDetector) Detect(ctx context.Context, img image.Image) ([]types.Region, error) {
	data, err := d.processor.EncodeForModel(img, d.config.SendFormat, d.config.SendSize, d.config.SendQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image for model: %w", err)
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	raw, err := d.client.Query(ctx, d.config.Model, d.config.Prompt, data)
	if err != nil {
		return nil, err
	}

	result, err := ParseAnalysisResult(raw)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	var regions []types.Region
	for _, s := range subjectsOf(result) {
		if strings.EqualFold(strings.TrimSpace(s.Label), "none") {
			continue
		}
		if s.Confidence < d.config.MinConfidence {
			continue
		}
		box := normalizeBox(s.Box, b.Dx(), b.Dy())
		if box.W <= 0 || box.H <= 0 {
			continue
		}
		regions = append(regions, box.ToRegion(b.Dx(), b.Dy(), s.Confidence))
	}

	return regions, nil
}

// subjectsOf merges the list answer with the older single primary answer
func subjectsOf(result *types.AnalysisResult) []types.Primary {
	if len(result.Subjects) > 0 {
		return result.Subjects
	}
	if result.Primary.Label == "" && result.Primary.Box == (types.Box{}) {
		return nil
	}
	return []types.Primary{result.Primary}
}

// ParseAnalysisResult parses a vision model answer. Answers without JSON
// are an error rather than a guessed default.
func ParseAnalysisResult(raw string) (*types.AnalysisResult, error) {
	raw = sanitizeModelJSON(raw)

	if !strings.HasPrefix(raw, "{") {
		return nil, fmt.Errorf("%w: no JSON object in %q", ErrUnparseable, truncate(raw, 80))
	}

	var result types.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	return &result, nil
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing     = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// normalizeBox clamps a box to [0,1]. Models sometimes answer in pixels
// despite the prompt; those are converted with the image size.
func normalizeBox(b types.Box, imgW, imgH int) types.Box {
	if (b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1) && imgW > 0 && imgH > 0 {
		b = types.Box{
			X: b.X / float64(imgW),
			Y: b.Y / float64(imgH),
			W: b.W / float64(imgW),
			H: b.H / float64(imgH),
		}
	}

	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	return types.Box{
		X: x,
		Y: y,
		W: clamp(b.X+b.W, 0, 1) - x,
		H: clamp(b.Y+b.H, 0, 1) - y,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
