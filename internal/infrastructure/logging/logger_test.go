package logging

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLineFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWriter(Config{Level: "debug", Format: FormatLine}, &buf)
	require.NoError(t, err)

	logger.Warn("[trace_1:span_1] [tenant:acme] [user:u1] quota close")
	require.NoError(t, logger.Sync())

	line := strings.TrimSpace(buf.String())
	pattern := regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}\S* WARN \[trace_1:span_1\] \[tenant:acme\] \[user:u1\] quota close$`)
	assert.Regexp(t, pattern, line)
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWriter(Config{Level: "info"}, &buf)
	require.NoError(t, err)

	logger.Debug("dropped")
	logger.Info("kept", zap.String("k", "v"))

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"message":"kept"`)
	assert.Contains(t, out, `"k":"v"`)
}

func TestInvalidConfig(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Config{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	assert.Equal(t, FormatJSON, DefaultConfig().Format)
	assert.Equal(t, FormatConsole, DevelopmentConfig().Format)

	assert.NotNil(t, NewDefault())
	assert.NotNil(t, NewDevelopment())
}
