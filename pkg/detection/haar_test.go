//go:build gocv

package detection

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaarDetectorInvalidPath(t *testing.T) {
	_, err := NewHaarDetector("/nonexistent/haarcascade_frontalface_alt.xml")
	assert.Error(t, err)
}

func TestHaarDetectorRuns(t *testing.T) {
	path := os.Getenv("BANNER_HAAR_MODEL")
	if path == "" {
		t.Skip("BANNER_HAAR_MODEL not set, skipping test")
	}

	d, err := NewHaarDetector(path)
	require.NoError(t, err)
	defer d.Close()

	regions, err := d.Detect(context.Background(), createTestImage(540, 304))
	require.NoError(t, err)
	for _, r := range regions {
		assert.Greater(t, r.Width, 0.0)
	}
}
