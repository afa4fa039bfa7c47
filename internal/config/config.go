package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Profile  ProfileConfig  `json:"profile"`
	Detector DetectorConfig `json:"detector"`
	Cropper  CropperConfig  `json:"cropper"`
	Output   OutputConfig   `json:"output"`
	Storage  StorageConfig  `json:"storage"`
	Workers  int            `json:"workers" validate:"min=1,max=64"`
	Log      LogConfig      `json:"log"`
}

// ProfileConfig holds the banner geometry
type ProfileConfig struct {
	Width       float64 `json:"width" validate:"gt=0"`
	HeightRatio float64 `json:"height_ratio" validate:"gt=0,lte=1"`
}

// DetectorConfig selects and tunes the region detector
type DetectorConfig struct {
	Backend   string       `json:"backend" validate:"oneof=pigo vision haar none"`
	ModelPath string       `json:"model_path" validate:"required_if=Backend pigo,required_if=Backend haar"`
	Pigo      PigoConfig   `json:"pigo"`
	Vision    VisionConfig `json:"vision"`
}

// PigoConfig holds face cascade parameters
type PigoConfig struct {
	MinSize      int     `json:"min_size" validate:"min=1"`
	MaxSize      int     `json:"max_size" validate:"gtefield=MinSize"`
	ShiftFactor  float64 `json:"shift_factor" validate:"gt=0,lte=1"`
	ScaleFactor  float64 `json:"scale_factor" validate:"gt=1"`
	IoUThreshold float64 `json:"iou_threshold" validate:"gte=0,lte=1"`
	MinQuality   float64 `json:"min_quality" validate:"gte=0"`
}

// VisionConfig holds settings for vision model detection
type VisionConfig struct {
	Backend       string  `json:"backend" validate:"oneof=ollama llamacpp gemini"`
	URL           string  `json:"url" validate:"omitempty,url"`
	APIKey        string  `json:"-"`
	Model         string  `json:"model"`
	SendSize      int     `json:"send_size" validate:"gte=0"`
	SendQuality   int     `json:"send_quality" validate:"min=1,max=100"`
	MinConfidence float64 `json:"min_confidence" validate:"gte=0,lte=1"`
	RateLimit     float64 `json:"rate_limit" validate:"gte=0"`
}

// CropperConfig holds crop placement settings
type CropperConfig struct {
	CoordinatePolicy string `json:"coordinate_policy" validate:"oneof=source detection"`
	Mode             string `json:"mode" validate:"oneof=source fill"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Format   string `json:"format" validate:"oneof=jpg png webp"`
	Quality  int    `json:"quality" validate:"min=1,max=100"`
	Lossless bool   `json:"lossless"`
	TempDir  string `json:"temp_dir"`
	DebugDir string `json:"debug_dir"`
}

// StorageConfig selects where banners are published
type StorageConfig struct {
	Backend         string `json:"backend" validate:"oneof=local s3"`
	Dir             string `json:"dir" validate:"required_if=Backend local"`
	BaseURL         string `json:"base_url" validate:"omitempty,url"`
	Bucket          string `json:"bucket" validate:"required_if=Backend s3"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint" validate:"omitempty,url"`
	Prefix          string `json:"prefix"`
	ACL             string `json:"acl"`
	AccessKeyID     string `json:"-"`
	SecretAccessKey string `json:"-"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level   string `json:"level" validate:"oneof=trace debug info warn warning error"`
	File    string `json:"file"`
	NoColor bool   `json:"no_color"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Profile: ProfileConfig{
			Width:       542,
			HeightRatio: 9.0 / 16.0,
		},
		Detector: DetectorConfig{
			Backend:   "pigo",
			ModelPath: "./models/facefinder",
			Pigo: PigoConfig{
				MinSize:      20,
				MaxSize:      1000,
				ShiftFactor:  0.1,
				ScaleFactor:  1.1,
				IoUThreshold: 0.2,
				MinQuality:   5.0,
			},
			Vision: VisionConfig{
				Backend:       "ollama",
				URL:           "http://localhost:11434",
				Model:         "openbmb/minicpm-v4.5",
				SendSize:      1024,
				SendQuality:   85,
				MinConfidence: 0.3,
			},
		},
		Cropper: CropperConfig{
			CoordinatePolicy: "source",
			Mode:             "source",
		},
		Output: OutputConfig{
			Format:  "jpg",
			Quality: 85,
		},
		Storage: StorageConfig{
			Backend: "local",
			Dir:     "./output",
			Prefix:  "banners",
		},
		Workers: 4,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Missing keys keep their
// default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			fe := errs[0]
			return fmt.Errorf("%s: failed %q validation (value %v)", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag(), fe.Value())
		}
		return err
	}
	return nil
}

// ApplyEnv loads envFile (if it exists) into the environment and overrides
// config values from BANNER_* and AWS_* variables
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	setString(&c.Detector.Backend, "BANNER_DETECTOR")
	setString(&c.Detector.ModelPath, "BANNER_MODEL_PATH")
	setString(&c.Detector.Vision.Backend, "BANNER_VISION_BACKEND")
	setString(&c.Detector.Vision.URL, "BANNER_VISION_URL")
	setString(&c.Detector.Vision.Model, "BANNER_VISION_MODEL")
	setString(&c.Detector.Vision.APIKey, "GEMINI_API_KEY")
	setString(&c.Cropper.CoordinatePolicy, "BANNER_COORDINATE_POLICY")
	setString(&c.Cropper.Mode, "BANNER_CROP_MODE")
	setString(&c.Output.Format, "BANNER_OUTPUT_FORMAT")
	setString(&c.Output.TempDir, "BANNER_TEMP_DIR")
	setString(&c.Output.DebugDir, "BANNER_DEBUG_DIR")
	setString(&c.Storage.Backend, "BANNER_STORAGE")
	setString(&c.Storage.Dir, "BANNER_STORAGE_DIR")
	setString(&c.Storage.BaseURL, "BANNER_BASE_URL")
	setString(&c.Storage.Prefix, "BANNER_KEY_PREFIX")
	setString(&c.Storage.Bucket, "AWS_BUCKET_NAME")
	setString(&c.Storage.Region, "AWS_REGION")
	setString(&c.Storage.Endpoint, "AWS_ENDPOINT")
	setString(&c.Storage.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&c.Storage.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	setString(&c.Log.Level, "BANNER_LOG_LEVEL")
	setString(&c.Log.File, "BANNER_LOG_FILE")

	if err := setInt(&c.Output.Quality, "BANNER_OUTPUT_QUALITY"); err != nil {
		return err
	}
	return setInt(&c.Workers, "BANNER_WORKERS")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "banner-cropper", "config.json")
}
