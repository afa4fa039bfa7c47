package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCollectJobs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"1001.jpg", "1002.png", "readme.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	jobs, err := collectJobs(dir, "")
	if err != nil {
		t.Fatalf("Failed to collect jobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].EntryID != "1001" || jobs[1].EntryID != "1002" {
		t.Errorf("Expected entry ids 1001 and 1002, got %s and %s", jobs[0].EntryID, jobs[1].EntryID)
	}

	jobs, err = collectJobs(filepath.Join(dir, "1001.jpg"), "abc")
	if err != nil || len(jobs) != 1 || jobs[0].EntryID != "abc" {
		t.Errorf("Expected single job with entry abc, got %v (%v)", jobs, err)
	}

	jobs, err = collectJobs("https://example.com/photos/77.jpg", "")
	if err != nil || len(jobs) != 1 || jobs[0].EntryID != "77" {
		t.Errorf("Expected URL job with entry 77, got %v (%v)", jobs, err)
	}

	if _, err := collectJobs(filepath.Join(dir, "missing"), ""); err == nil {
		t.Error("Expected error for missing input")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"workers": 6, "output": {"format": "webp"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BANNER_WORKERS", "")

	cfg, err := loadConfig(path, "")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Workers != 6 {
		t.Errorf("Expected 6 workers, got %d", cfg.Workers)
	}
	if cfg.Output.Format != "webp" {
		t.Errorf("Expected webp, got %s", cfg.Output.Format)
	}
	if cfg.Output.Quality != 85 {
		t.Errorf("Expected default quality 85, got %d", cfg.Output.Quality)
	}
}
