package logging

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"

	"github.com/ochairo/feedstock/internal/domain/interfaces"
)

func TestLogger_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info")

	logger.Info("fetched source", interfaces.F("recipe", "pathtemplater"), interfaces.F("bytes", 1024))

	out := buf.String()
	assert.Contains(t, out, "feedstock")
	assert.Contains(t, out, "fetched source")
	assert.Contains(t, out, "recipe=pathtemplater")
	assert.Contains(t, out, "bytes=1024")
}

func TestLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn")

	logger.Debug("hidden")
	logger.Info("hidden too")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	logger.SetLevel("debug")
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]log.Level{
		"debug":   log.DebugLevel,
		"INFO":    log.InfoLevel,
		"warning": log.WarnLevel,
		"error":   log.ErrorLevel,
		"":        log.InfoLevel,
		"verbose": log.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
