// Package pipeline turns source photographs into uploaded banners:
// decode, eligibility, resize, detect, plan, crop, encode and upload.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/banner-cropper/pkg/analyzer"
	"github.com/menta2k/banner-cropper/pkg/cropper"
	"github.com/menta2k/banner-cropper/pkg/detection"
	"github.com/menta2k/banner-cropper/pkg/processing"
	"github.com/menta2k/banner-cropper/pkg/storage"
	"github.com/menta2k/banner-cropper/pkg/types"
)

// Status is the outcome of one job
type Status string

const (
	StatusSkipped Status = "skipped"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Job is one image to turn into a banner
type Job struct {
	EntryID string
	Source  string // file path or http(s) URL
}

// Result describes what happened to a job. Window and Regions are in the
// coordinate space of the image the banner was cut from.
type Result struct {
	Job     Job
	Status  Status
	URL     string
	Reason  string // why a job was skipped
	Window  types.CropWindow
	Regions []types.Region
	Err     error
}

// Pipeline runs jobs. It keeps no per-job state and is safe for concurrent use
// as long as its detector and store are.
type Pipeline struct {
	detector  detection.Detector
	store     storage.Store
	processor *processing.Processor
	logger    logrus.FieldLogger
	profile   types.Profile
	policy    cropper.CoordinatePolicy
	mode      Mode
	format    string
	quality   int
	lossless  bool
	tempDir   string
	debugDir  string
	keyPrefix string

	analyzer *analyzer.ImageAnalyzer
	planner  *cropper.Planner
}

// New creates a pipeline. A nil detector behaves like detection.Nop.
func New(detector detection.Detector, store storage.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		detector: detector,
		store:    store,
		profile:  types.DefaultProfile,
		policy:   cropper.ScaleToSource,
		mode:     ModeSource,
		format:   "jpg",
		quality:  85,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.detector == nil {
		p.detector = detection.Nop{}
	}
	if p.processor == nil {
		p.processor = processing.NewProcessor()
	}
	if p.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		p.logger = l
	}
	if p.profile.IsZero() {
		p.profile = types.DefaultProfile
	}

	p.analyzer = analyzer.NewWithConfig(analyzer.Config{Profile: p.profile})
	p.planner = cropper.NewWithProfile(p.profile)
	return p
}

// Process runs a single job. Errors never escape the returned Result.
func (p *Pipeline) Process(ctx context.Context, job Job) Result {
	res := Result{Job: job}
	log := p.logger.WithFields(logrus.Fields{"entry_id": job.EntryID, "source": job.Source})

	if err := p.run(ctx, job, &res, log); err != nil {
		res.Status = StatusFailed
		res.Err = err
		log.WithError(err).Warn("banner failed")
		return res
	}

	switch res.Status {
	case StatusSkipped:
		log.WithField("reason", res.Reason).Info("banner skipped")
	case StatusSuccess:
		log.WithFields(logrus.Fields{
			"url":     res.URL,
			"regions": len(res.Regions),
			"x":       res.Window.X,
			"y":       res.Window.Y,
		}).Info("banner stored")
	}
	return res
}

func (p *Pipeline) run(ctx context.Context, job Job, res *Result, log logrus.FieldLogger) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if reason := p.pingReason(job.Source); reason != "" {
		res.Status = StatusSkipped
		res.Reason = reason
		return nil
	}

	src, err := p.processor.LoadImageSmart(ctx, job.Source)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}

	m := p.analyzer.MetricsOf(src)
	if !p.analyzer.IsEligible(m) {
		res.Status = StatusSkipped
		res.Reason = analyzer.IneligibleReason(m, p.profile)
		return nil
	}

	w, h := int(p.profile.Width()), int(p.profile.Height())
	var work image.Image
	if p.mode == ModeFill {
		work = p.processor.ResizeToCover(src, w, h)
	} else {
		work = p.processor.ResizeToFit(src, w, h)
	}
	if work.Bounds().Empty() {
		return fmt.Errorf("%w: empty image for %.0fx%.0f", ErrResize, m.Width, m.Height)
	}
	log.WithField("size", fmt.Sprintf("%dx%d", work.Bounds().Dx(), work.Bounds().Dy())).Debug("resized for detection")

	if err := ctx.Err(); err != nil {
		return err
	}

	regions, err := p.detector.Detect(ctx, work)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDetection, err)
	}

	target := src
	if p.mode == ModeFill {
		target = work
		m = p.analyzer.MetricsOf(work)
	} else if p.policy == cropper.ScaleToSource {
		wb := work.Bounds()
		regions = cropper.ScaleRegions(regions, float64(wb.Dx()), float64(wb.Dy()), m.Width, m.Height)
	}
	res.Regions = regions

	window, err := p.planner.Plan(m, regions)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPlan, err)
	}
	res.Window = window

	banner, err := p.processor.Crop(target, window)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPlan, err)
	}

	if p.debugDir != "" {
		p.writeDebug(job, target, regions, window, log)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := p.encode(job, banner)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	defer os.Remove(tmp)

	url, err := p.store.Store(ctx, tmp, storage.ObjectKey(p.keyPrefix, job.EntryID, p.ext()))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpload, err)
	}

	res.Status = StatusSuccess
	res.URL = url
	return nil
}

// pingReason rejects local files from their header alone. EXIF rotation can
// swap the decoded sides, so a file is only rejected when neither orientation
// is eligible. Unreadable headers are left to the full decode.
func (p *Pipeline) pingReason(source string) string {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return ""
	}
	m, err := p.analyzer.Ping(source)
	if err != nil {
		return ""
	}
	rotated := analyzer.NewMetrics(int(m.Height), int(m.Width), p.profile)
	if p.analyzer.IsEligible(m) || p.analyzer.IsEligible(rotated) {
		return ""
	}
	return analyzer.IneligibleReason(m, p.profile)
}

// encode writes the banner to a temp file and returns its path
func (p *Pipeline) encode(job Job, img image.Image) (string, error) {
	f, err := os.CreateTemp(p.tempDir, fmt.Sprintf("entry-%s-*.%s", tempSafe(job.EntryID), p.ext()))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	f.Close()

	if err := p.processor.SaveImage(img, path, p.format, p.quality, p.lossless); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (p *Pipeline) writeDebug(job Job, img image.Image, regions []types.Region, window types.CropWindow, log logrus.FieldLogger) {
	if err := os.MkdirAll(p.debugDir, 0755); err != nil {
		log.WithError(err).Warn("failed to create debug directory")
		return
	}
	overlay := p.processor.CreateDebugOverlay(img, regions, window)
	path := filepath.Join(p.debugDir, fmt.Sprintf("entry-%s-debug.png", tempSafe(job.EntryID)))
	if err := p.processor.SaveImage(overlay, path, "png", 0, false); err != nil {
		log.WithError(err).Warn("failed to write debug overlay")
		return
	}
	log.WithField("path", path).Debug("debug overlay written")
}

func (p *Pipeline) ext() string {
	switch f := strings.ToLower(p.format); f {
	case "", "jpeg":
		return "jpg"
	default:
		return f
	}
}

func tempSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == '*' || r == filepath.Separator {
			return '_'
		}
		return r
	}, s)
}

// ProcessAll runs jobs with at most workers in flight. Results keep the
// order of jobs; a failing job does not affect the others.
func (p *Pipeline) ProcessAll(ctx context.Context, jobs []Job, workers int) []Result {
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(jobs))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = p.Process(ctx, job)
			return nil
		})
	}
	g.Wait()
	return results
}
