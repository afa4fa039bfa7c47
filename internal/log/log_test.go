package log

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, build(Options{Level: "debug"}).GetLevel())
	assert.Equal(t, logrus.InfoLevel, build(Options{Level: "chatty"}).GetLevel())
	assert.Equal(t, logrus.InfoLevel, build(Options{}).GetLevel())
}

func TestBuildFormatsFields(t *testing.T) {
	l := build(Options{NoColor: true})
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.WithFields(Fields{"entry_id": "42", "source": "a.jpg"}).Info("cropped")

	out := buf.String()
	assert.Contains(t, out, "cropped")
	assert.Contains(t, out, "[entry_id:42]")
	assert.Contains(t, out, "[source:a.jpg]")
}

func TestBuildWritesFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "banner-cropper.log")
	l := build(Options{File: file, NoColor: true})
	l.Info("hello")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestNewLoggerOnce(t *testing.T) {
	a := NewLogger(Options{Level: "warn"})
	b := NewLogger(Options{Level: "debug"})
	assert.Same(t, a, b)
	assert.Same(t, a, Logger())
}
