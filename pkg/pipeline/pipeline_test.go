package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/banner-cropper/pkg/cropper"
	"github.com/menta2k/banner-cropper/pkg/detection"
	"github.com/menta2k/banner-cropper/pkg/types"
)

type storedObject struct {
	localPath string
	key       string
	size      image.Point
}

type fakeStore struct {
	mu      sync.Mutex
	objects []storedObject
	err     error
}

func (s *fakeStore) Store(ctx context.Context, localPath, key string) (string, error) {
	if s.err != nil {
		s.mu.Lock()
		s.objects = append(s.objects, storedObject{localPath: localPath, key: key})
		s.mu.Unlock()
		return "", s.err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = append(s.objects, storedObject{localPath: localPath, key: key, size: image.Pt(cfg.Width, cfg.Height)})
	return "https://cdn.example.com/" + key, nil
}

func (s *fakeStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func writeImage(t *testing.T, width, height int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{uint8(x % 256), uint8(y % 256), 120, 255})
		}
	}
	path := filepath.Join(t.TempDir(), fmt.Sprintf("src-%dx%d.png", width, height))
	require.NoError(t, imaging.Save(img, path))
	return path
}

func regionsAt(regions ...types.Region) detection.Detector {
	return detection.DetectorFunc(func(ctx context.Context, img image.Image) ([]types.Region, error) {
		return regions, nil
	})
}

func newTestPipeline(t *testing.T, d detection.Detector, store *fakeStore, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithTempDir(t.TempDir())}, opts...)
	return New(d, store, opts...)
}

func TestProcessSkipsIneligible(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
	}{
		{"too narrow", 541, 400},
		{"too short", 1000, 303},
		{"portrait", 800, 1200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			var detected bool
			d := detection.DetectorFunc(func(ctx context.Context, img image.Image) ([]types.Region, error) {
				detected = true
				return nil, nil
			})

			res := newTestPipeline(t, d, store).Process(context.Background(), Job{EntryID: "1", Source: writeImage(t, tt.width, tt.height)})

			assert.Equal(t, StatusSkipped, res.Status)
			assert.NoError(t, res.Err)
			assert.NotEmpty(t, res.Reason)
			assert.False(t, detected)
			assert.Zero(t, store.calls())
		})
	}
}

func TestProcessCentersPanoramicWithoutRegions(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(t, detection.Nop{}, store, WithKeyPrefix("banners"))

	res := p.Process(context.Background(), Job{EntryID: "42", Source: writeImage(t, 1000, 400)})
	require.NoError(t, res.Err)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, types.CropWindow{X: 229, Y: 0, Width: 542, Height: 304}, res.Window)
	require.Equal(t, 1, store.calls())

	obj := store.objects[0]
	assert.Equal(t, image.Pt(542, 304), obj.size)
	assert.Regexp(t, `^banners/42-.*\.jpg$`, obj.key)
	assert.Equal(t, "https://cdn.example.com/"+obj.key, res.URL)

	_, err := os.Stat(obj.localPath)
	assert.True(t, os.IsNotExist(err), "temp file should be removed")
}

func TestProcessTopBiasWithoutRegions(t *testing.T) {
	store := &fakeStore{}
	res := newTestPipeline(t, nil, store).Process(context.Background(), Job{EntryID: "7", Source: writeImage(t, 800, 600)})
	require.NoError(t, res.Err)

	assert.Equal(t, types.CropWindow{X: 0, Y: 0, Width: 542, Height: 304}, res.Window)
	assert.Equal(t, image.Pt(542, 304), store.objects[0].size)
}

func TestProcessCoordinatePolicy(t *testing.T) {
	// 2000x500 is fit to 542x136 for detection, a factor of 2000/542 on x.
	// A face centered at x=135.5 in detection space sits at x=500 in the source.
	face := types.Region{X: 125.5, Y: 20, Width: 20, Height: 20}
	src := writeImage(t, 2000, 500)

	t.Run("scale to source", func(t *testing.T) {
		res := newTestPipeline(t, regionsAt(face), &fakeStore{}).Process(context.Background(), Job{EntryID: "1", Source: src})
		require.NoError(t, res.Err)
		assert.InDelta(t, 229, res.Window.X, 1e-6)
		require.Len(t, res.Regions, 1)
		assert.InDelta(t, 500, res.Regions[0].X+res.Regions[0].Width/2, 1e-6)
	})

	t.Run("detection space", func(t *testing.T) {
		p := newTestPipeline(t, regionsAt(face), &fakeStore{}, WithCoordinatePolicy(cropper.DetectionSpace))
		res := p.Process(context.Background(), Job{EntryID: "1", Source: src})
		require.NoError(t, res.Err)
		assert.Equal(t, 0.0, res.Window.X)
	})
}

func TestProcessDetectionInputIsFitResized(t *testing.T) {
	var got image.Point
	d := detection.DetectorFunc(func(ctx context.Context, img image.Image) ([]types.Region, error) {
		got = img.Bounds().Size()
		return nil, nil
	})

	res := newTestPipeline(t, d, &fakeStore{}).Process(context.Background(), Job{EntryID: "1", Source: writeImage(t, 1200, 900)})
	require.NoError(t, res.Err)
	assert.Equal(t, image.Pt(405, 304), got)
}

func TestProcessFillMode(t *testing.T) {
	var got image.Point
	d := detection.DetectorFunc(func(ctx context.Context, img image.Image) ([]types.Region, error) {
		got = img.Bounds().Size()
		return []types.Region{{X: 200, Y: 300, Width: 40, Height: 40}}, nil
	})
	store := &fakeStore{}

	res := newTestPipeline(t, d, store, WithMode(ModeFill)).Process(context.Background(), Job{EntryID: "1", Source: writeImage(t, 1200, 800)})
	require.NoError(t, res.Err)

	assert.Equal(t, image.Pt(542, 361), got)
	// centroid 320 pushes the window to the bottom edge of the 361 high copy
	assert.Equal(t, types.CropWindow{X: 0, Y: 57, Width: 542, Height: 304}, res.Window)
	assert.Equal(t, image.Pt(542, 304), store.objects[0].size)
}

func TestProcessDetectionErrorFails(t *testing.T) {
	boom := errors.New("model unavailable")
	d := detection.DetectorFunc(func(ctx context.Context, img image.Image) ([]types.Region, error) {
		return nil, boom
	})
	store := &fakeStore{}

	res := newTestPipeline(t, d, store).Process(context.Background(), Job{EntryID: "1", Source: writeImage(t, 1000, 600)})

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrDetection)
	assert.ErrorIs(t, res.Err, boom)
	assert.Zero(t, store.calls())
}

func TestProcessDecodeErrors(t *testing.T) {
	garbage := filepath.Join(t.TempDir(), "garbage.jpg")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0644))

	for _, src := range []string{garbage, filepath.Join(t.TempDir(), "missing.jpg")} {
		res := newTestPipeline(t, nil, &fakeStore{}).Process(context.Background(), Job{EntryID: "1", Source: src})
		assert.Equal(t, StatusFailed, res.Status)
		assert.ErrorIs(t, res.Err, ErrDecode)
	}
}

func TestProcessUploadError(t *testing.T) {
	boom := errors.New("bucket gone")
	store := &fakeStore{err: boom}

	res := newTestPipeline(t, nil, store).Process(context.Background(), Job{EntryID: "1", Source: writeImage(t, 1000, 600)})

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrUpload)
	assert.ErrorIs(t, res.Err, boom)
	require.Equal(t, 1, store.calls())

	_, err := os.Stat(store.objects[0].localPath)
	assert.True(t, os.IsNotExist(err), "temp file should be removed")
}

func TestProcessEncodeError(t *testing.T) {
	res := newTestPipeline(t, nil, &fakeStore{}, WithOutput("tiff", 90, false)).
		Process(context.Background(), Job{EntryID: "1", Source: writeImage(t, 1000, 600)})

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrEncode)
}

func TestProcessCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestPipeline(t, nil, &fakeStore{}).Process(ctx, Job{EntryID: "1", Source: writeImage(t, 1000, 600)})
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestProcessWebpOutput(t *testing.T) {
	store := &fakeStore{}
	res := newTestPipeline(t, nil, store, WithOutput("webp", 80, false)).
		Process(context.Background(), Job{EntryID: "1", Source: writeImage(t, 1000, 600)})
	require.NoError(t, res.Err)
	assert.Regexp(t, `\.webp$`, store.objects[0].key)
	assert.Equal(t, image.Pt(542, 304), store.objects[0].size)
}

func TestProcessDebugOverlay(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "debug")
	res := newTestPipeline(t, nil, &fakeStore{}, WithDebugDir(dir)).
		Process(context.Background(), Job{EntryID: "9", Source: writeImage(t, 1000, 600)})
	require.NoError(t, res.Err)

	_, err := os.Stat(filepath.Join(dir, "entry-9-debug.png"))
	assert.NoError(t, err)
}

func TestProcessLogsEntryFields(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	src := writeImage(t, 541, 400)
	newTestPipeline(t, nil, &fakeStore{}, WithLogger(logger)).Process(context.Background(), Job{EntryID: "5", Source: src})

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "banner skipped", entry.Message)
	assert.Equal(t, "5", entry.Data["entry_id"])
	assert.Equal(t, src, entry.Data["source"])
}

func TestProcessAllIsolatesFailures(t *testing.T) {
	var inFlight, peak int32
	d := detection.DetectorFunc(func(ctx context.Context, img image.Image) ([]types.Region, error) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return nil, nil
	})

	good := writeImage(t, 1000, 600)
	jobs := []Job{
		{EntryID: "1", Source: good},
		{EntryID: "2", Source: filepath.Join(t.TempDir(), "missing.jpg")},
		{EntryID: "3", Source: writeImage(t, 600, 900)},
		{EntryID: "4", Source: good},
		{EntryID: "5", Source: good},
		{EntryID: "6", Source: good},
	}
	store := &fakeStore{}

	results := newTestPipeline(t, d, store).ProcessAll(context.Background(), jobs, 2)
	require.Len(t, results, len(jobs))

	want := []Status{StatusSuccess, StatusFailed, StatusSkipped, StatusSuccess, StatusSuccess, StatusSuccess}
	for i, r := range results {
		assert.Equal(t, jobs[i], r.Job)
		assert.Equal(t, want[i], r.Status, "job %s", r.Job.EntryID)
	}
	assert.Equal(t, 4, store.calls())
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeSource, "source": ModeSource, "fill": ModeFill} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		if in != "" {
			assert.Equal(t, in, got.String())
		}
	}

	_, err := ParseMode("stretch")
	assert.Error(t, err)
}

func TestProcessSkipsFromHeader(t *testing.T) {
	data, err := os.ReadFile(writeImage(t, 300, 200))
	require.NoError(t, err)

	// header only, the pixel data is cut off
	truncated := filepath.Join(t.TempDir(), "truncated.png")
	require.NoError(t, os.WriteFile(truncated, data[:100], 0644))

	res := newTestPipeline(t, nil, &fakeStore{}).Process(context.Background(), Job{EntryID: "1", Source: truncated})
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Contains(t, res.Reason, "width 300")
}
