package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Expected default config to be valid, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		field  string
	}{
		{"unknown detector", func(c *Config) { c.Detector.Backend = "yolo" }, "Detector.Backend"},
		{"pigo without model", func(c *Config) { c.Detector.ModelPath = "" }, "Detector.ModelPath"},
		{"bad quality", func(c *Config) { c.Output.Quality = 0 }, "Output.Quality"},
		{"bad format", func(c *Config) { c.Output.Format = "gif" }, "Output.Format"},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = "s3" }, "Storage.Bucket"},
		{"zero workers", func(c *Config) { c.Workers = 0 }, "Workers"},
		{"bad policy", func(c *Config) { c.Cropper.CoordinatePolicy = "mixed" }, "Cropper.CoordinatePolicy"},
		{"bad scale factor", func(c *Config) { c.Detector.Pigo.ScaleFactor = 1 }, "Detector.Pigo.ScaleFactor"},
		{"bad height ratio", func(c *Config) { c.Profile.HeightRatio = 1.5 }, "Profile.HeightRatio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(c)
			err := c.Validate()
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Expected error about %s, got %v", tt.field, err)
			}
		})
	}
}

func TestNoModelNeededWithoutCascade(t *testing.T) {
	c := Default()
	c.Detector.Backend = "none"
	c.Detector.ModelPath = ""
	if err := c.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	c := Default()
	c.Workers = 8
	c.Storage.Backend = "s3"
	c.Storage.Bucket = "media"
	c.Storage.SecretAccessKey = "secret"
	if err := c.SaveToFile(path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "secret") {
		t.Error("Expected credentials to stay out of the config file")
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if loaded.Workers != 8 {
		t.Errorf("Expected 8 workers, got %d", loaded.Workers)
	}
	if loaded.Storage.Bucket != "media" {
		t.Errorf("Expected bucket media, got %s", loaded.Storage.Bucket)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"workers": 2}`), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if c.Workers != 2 {
		t.Errorf("Expected 2 workers, got %d", c.Workers)
	}
	if c.Profile.Width != 542 {
		t.Errorf("Expected default width 542, got %f", c.Profile.Width)
	}
	if c.Output.Format != "jpg" {
		t.Errorf("Expected default format jpg, got %s", c.Output.Format)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{"), 0644)
	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected error for malformed file")
	}
}

func TestApplyEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "BANNER_STORAGE=s3\nAWS_BUCKET_NAME=banners-bucket\nAWS_REGION=eu-central-1\n"
	if err := os.WriteFile(envFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BANNER_STORAGE", "")
	t.Setenv("AWS_BUCKET_NAME", "")
	t.Setenv("AWS_REGION", "")
	os.Unsetenv("BANNER_STORAGE")
	os.Unsetenv("AWS_BUCKET_NAME")
	os.Unsetenv("AWS_REGION")
	t.Setenv("BANNER_WORKERS", "3")

	c := Default()
	if err := c.ApplyEnv(envFile); err != nil {
		t.Fatalf("Failed to apply env: %v", err)
	}

	if c.Storage.Backend != "s3" {
		t.Errorf("Expected storage s3, got %s", c.Storage.Backend)
	}
	if c.Storage.Bucket != "banners-bucket" {
		t.Errorf("Expected bucket banners-bucket, got %s", c.Storage.Bucket)
	}
	if c.Storage.Region != "eu-central-1" {
		t.Errorf("Expected region eu-central-1, got %s", c.Storage.Region)
	}
	if c.Workers != 3 {
		t.Errorf("Expected 3 workers, got %d", c.Workers)
	}
}

func TestApplyEnvMissingFile(t *testing.T) {
	if err := Default().ApplyEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("Expected missing env file to be ignored, got %v", err)
	}
}

func TestApplyEnvBadNumber(t *testing.T) {
	t.Setenv("BANNER_WORKERS", "many")
	if err := Default().ApplyEnv(""); err == nil {
		t.Error("Expected error for non-numeric BANNER_WORKERS")
	}
}
