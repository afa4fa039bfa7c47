// Package bannercropper turns photographs into fixed ratio banners
// (542x304 by default) that keep detected faces in frame.
//
// Basic usage:
//
//	cfg := bannercropper.DefaultConfig()
//	cfg.Detector.ModelPath = "./models/facefinder"
//	cfg.Storage.Dir = "./banners"
//
//	bc, err := bannercropper.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer bc.Close()
//
//	res := bc.ProcessFile(ctx, "12345", "photo.jpg")
//	fmt.Println(res.Status, res.URL)
//
// Images smaller than the banner or in portrait orientation are skipped,
// never upscaled. Panoramic images are cut horizontally around the faces
// (or the center), all others vertically (or from the top).
package bannercropper

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/banner-cropper/internal/config"
	"github.com/menta2k/banner-cropper/internal/log"
	"github.com/menta2k/banner-cropper/pkg/client"
	"github.com/menta2k/banner-cropper/pkg/cropper"
	"github.com/menta2k/banner-cropper/pkg/detection"
	"github.com/menta2k/banner-cropper/pkg/gemini"
	"github.com/menta2k/banner-cropper/pkg/llamacpp"
	"github.com/menta2k/banner-cropper/pkg/ollama"
	"github.com/menta2k/banner-cropper/pkg/pipeline"
	"github.com/menta2k/banner-cropper/pkg/storage"
	"github.com/menta2k/banner-cropper/pkg/types"
)

// Version of the banner cropper library
const Version = "1.0.0"

// Config is the full application configuration
type Config = config.Config

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return config.Default()
}

// BannerCropper wires a detector, a store and the crop pipeline together
type BannerCropper struct {
	config   *Config
	logger   logrus.FieldLogger
	pipeline *pipeline.Pipeline
	closers  []io.Closer
}

// New validates cfg and builds every component it names
func New(cfg *Config) (*BannerCropper, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return newWithLogger(cfg, log.NewLogger(log.Options{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		NoColor: cfg.Log.NoColor,
	}))
}

func newWithLogger(cfg *Config, logger logrus.FieldLogger) (*BannerCropper, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	bc := &BannerCropper{config: cfg, logger: logger}

	detector, err := bc.buildDetector()
	if err != nil {
		return nil, err
	}

	store, err := buildStore(cfg.Storage)
	if err != nil {
		bc.Close()
		return nil, err
	}

	policy, err := cropper.ParseCoordinatePolicy(cfg.Cropper.CoordinatePolicy)
	if err != nil {
		bc.Close()
		return nil, err
	}
	mode, err := pipeline.ParseMode(cfg.Cropper.Mode)
	if err != nil {
		bc.Close()
		return nil, err
	}

	bc.pipeline = pipeline.New(detector, store,
		pipeline.WithLogger(logger),
		pipeline.WithProfile(types.NewProfile(cfg.Profile.Width, cfg.Profile.HeightRatio)),
		pipeline.WithCoordinatePolicy(policy),
		pipeline.WithMode(mode),
		pipeline.WithOutput(cfg.Output.Format, cfg.Output.Quality, cfg.Output.Lossless),
		pipeline.WithTempDir(cfg.Output.TempDir),
		pipeline.WithDebugDir(cfg.Output.DebugDir),
		pipeline.WithKeyPrefix(cfg.Storage.Prefix),
	)

	logger.WithFields(logrus.Fields{
		"detector": cfg.Detector.Backend,
		"storage":  cfg.Storage.Backend,
		"mode":     mode.String(),
		"policy":   policy.String(),
	}).Debug("banner cropper ready")

	return bc, nil
}

func (bc *BannerCropper) buildDetector() (detection.Detector, error) {
	dc := bc.config.Detector

	switch dc.Backend {
	case "pigo":
		d, err := detection.LoadFaceDetector(dc.ModelPath, detection.FaceConfig{
			MinSize:      dc.Pigo.MinSize,
			MaxSize:      dc.Pigo.MaxSize,
			ShiftFactor:  dc.Pigo.ShiftFactor,
			ScaleFactor:  dc.Pigo.ScaleFactor,
			IoUThreshold: dc.Pigo.IoUThreshold,
			MinQuality:   float32(dc.Pigo.MinQuality),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create face detector: %w", err)
		}
		return d, nil

	case "vision":
		var c client.VisionClient
		var err error
		switch dc.Vision.Backend {
		case "llamacpp":
			c, err = llamacpp.NewClient(dc.Vision.URL)
		case "gemini":
			var gc *gemini.Client
			gc, err = gemini.NewClient(context.Background(), dc.Vision.APIKey)
			if err == nil {
				bc.closers = append(bc.closers, gc)
				c = gc
			}
		default:
			c, err = ollama.NewClient(dc.Vision.URL)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", dc.Vision.Backend, err)
		}

		vc := detection.DefaultVisionConfig()
		if dc.Vision.Model != "" {
			vc.Model = dc.Vision.Model
		}
		vc.SendSize = dc.Vision.SendSize
		vc.SendQuality = dc.Vision.SendQuality
		vc.MinConfidence = dc.Vision.MinConfidence
		vc.RateLimit = dc.Vision.RateLimit
		return detection.NewVisionDetector(c, vc), nil

	case "haar":
		d, err := detection.NewHaarDetector(dc.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create haar detector: %w", err)
		}
		bc.closers = append(bc.closers, d)
		return d, nil

	case "none":
		return detection.Nop{}, nil
	}

	return nil, fmt.Errorf("unknown detector backend: %s", dc.Backend)
}

func buildStore(sc config.StorageConfig) (storage.Store, error) {
	switch sc.Backend {
	case "s3":
		s, err := storage.NewS3Store(storage.S3Config{
			Bucket:          sc.Bucket,
			Region:          sc.Region,
			Endpoint:        sc.Endpoint,
			AccessKeyID:     sc.AccessKeyID,
			SecretAccessKey: sc.SecretAccessKey,
			ACL:             sc.ACL,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "local":
		s, err := storage.NewLocalStore(sc.Dir, sc.BaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage backend: %s", sc.Backend)
}

// ProcessFile turns one file or URL into a banner
func (bc *BannerCropper) ProcessFile(ctx context.Context, entryID, source string) pipeline.Result {
	return bc.pipeline.Process(ctx, pipeline.Job{EntryID: entryID, Source: source})
}

// ProcessAll runs jobs with the configured number of workers
func (bc *BannerCropper) ProcessAll(ctx context.Context, jobs []pipeline.Job) []pipeline.Result {
	return bc.pipeline.ProcessAll(ctx, jobs, bc.config.Workers)
}

// Close releases detector resources
func (bc *BannerCropper) Close() error {
	var errs []error
	for _, c := range bc.closers {
		errs = append(errs, c.Close())
	}
	bc.closers = nil
	return errors.Join(errs...)
}
