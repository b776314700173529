package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure_JSONFields(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	l := New()
	require.NoError(t, l.Configure(Config{Level: "debug", Format: "json"}))

	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.WithComponent("orchestrator").WithFields(Fields{"batch_id": 20230821}).Info("saved")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "saved", line["message"])
	assert.Equal(t, "orchestrator", line["component"])
	assert.Equal(t, "info", line["level"])
	assert.EqualValues(t, 20230821, line["batch_id"])
	assert.Contains(t, line, "timestamp")
}

func TestConfigure_InvalidLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	l := New()
	err := l.Configure(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestConfigure_InvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	l := New()
	err := l.Configure(Config{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestConfigure_EnvOverridesLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	l := New()
	require.NoError(t, l.Configure(Config{Level: "debug", Format: "text"}))
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())
}

func TestWithError_AddsErrorField(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	l := New()
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.WithComponent("storage").WithError(errors.New("boom")).Error("save failed")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "boom", line["error"])
}

func TestLogDuration(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	l := New()
	var buf bytes.Buffer
	l.SetOutput(&buf)

	LogDuration(l.WithComponent("pipeline"), "persist", 1500*time.Microsecond, nil)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "persist", line["operation"])
	assert.InDelta(t, 1.5, line["duration_ms"], 1e-9)
}

func TestSetLogger(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	l := New()
	SetLogger(l)
	assert.Same(t, l, GetLogger())

	SetLogger(nil)
	assert.Same(t, l, GetLogger())
}
