package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	bannercropper "github.com/menta2k/banner-cropper"
	"github.com/menta2k/banner-cropper/internal/config"
	"github.com/menta2k/banner-cropper/internal/log"
	"github.com/menta2k/banner-cropper/internal/utils"
	"github.com/menta2k/banner-cropper/pkg/pipeline"
)

func main() {
	var in, entry, configPath, envFile, debugDir string
	var workers int

	flag.StringVar(&in, "in", "", "input image path, directory or URL (jpg/png/gif/webp)")
	flag.StringVar(&entry, "entry", "", "entry id for a single input (defaults to the file name)")
	flag.StringVar(&configPath, "config", "", "config file (default "+config.GetConfigPath()+" if present)")
	flag.StringVar(&envFile, "env", ".env", "env file with BANNER_* and AWS_* overrides")
	flag.IntVar(&workers, "workers", 0, "parallel jobs (overrides config)")
	flag.StringVar(&debugDir, "debug", "", "write debug overlays to this directory")

	flag.Parse()
	if in == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -in photo.jpg|dir|URL [-entry id] [-config file] [-workers n] [-debug dir]\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	cfg, err := loadConfig(configPath, envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if debugDir != "" {
		cfg.Output.DebugDir = debugDir
	}

	log.NewLogger(log.Options{Level: cfg.Log.Level, File: cfg.Log.File, NoColor: cfg.Log.NoColor})

	jobs, err := collectJobs(in, entry)
	if err != nil {
		log.Fatal(log.Fields{"input": in, "error": err.Error()}, "failed to read input")
	}
	if len(jobs) == 0 {
		log.Fatal(log.Fields{"input": in}, "no images found")
	}

	if cfg.Output.TempDir != "" {
		if err := utils.EnsureDir(cfg.Output.TempDir); err != nil {
			log.Fatal(log.Fields{"dir": cfg.Output.TempDir, "error": err.Error()}, "failed to create temp dir")
		}
	}

	bc, err := bannercropper.New(cfg)
	if err != nil {
		log.Fatal(log.Fields{"error": err.Error()}, "failed to start")
	}
	defer bc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := bc.ProcessAll(ctx, jobs)

	counts := map[pipeline.Status]int{}
	for _, r := range results {
		counts[r.Status]++
		switch r.Status {
		case pipeline.StatusSuccess:
			fmt.Printf("%s\tsuccess\t%s\n", r.Job.EntryID, r.URL)
		case pipeline.StatusSkipped:
			fmt.Printf("%s\tskipped\t%s\n", r.Job.EntryID, r.Reason)
		default:
			fmt.Printf("%s\tfailed\t%v\n", r.Job.EntryID, r.Err)
		}
	}

	fields := log.Fields{
		"success": counts[pipeline.StatusSuccess],
		"skipped": counts[pipeline.StatusSkipped],
		"failed":  counts[pipeline.StatusFailed],
	}
	if counts[pipeline.StatusFailed] > 0 {
		log.Error(fields, "batch finished with failures")
		bc.Close()
		os.Exit(1)
	}
	log.Info(fields, "batch finished")
}

func loadConfig(path, envFile string) (*config.Config, error) {
	cfg := config.Default()
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(envFile); err != nil {
		return nil, err
	}
	return cfg, nil
}

func collectJobs(in, entry string) ([]pipeline.Job, error) {
	if utils.IsURL(in) || utils.FileExists(in) {
		if entry == "" {
			entry = utils.EntryID(in)
		}
		return []pipeline.Job{{EntryID: entry, Source: in}}, nil
	}

	if !utils.DirExists(in) {
		return nil, fmt.Errorf("%s: no such file or directory", in)
	}

	files, err := utils.ListImageFiles(in)
	if err != nil {
		return nil, err
	}
	jobs := make([]pipeline.Job, 0, len(files))
	for _, f := range files {
		jobs = append(jobs, pipeline.Job{EntryID: utils.EntryID(f), Source: f})
	}
	return jobs, nil
}
