package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	defer log.SetOutput(log.StandardLogger().Out)
	defer log.SetFormatter(log.StandardLogger().Formatter)
	defer log.SetLevel(log.GetLevel())

	var buf bytes.Buffer
	require.NoError(t, Setup("warn", "json", &buf))
	assert.Equal(t, log.WarnLevel, log.GetLevel())

	log.WithField("component", "test").Info("hidden")
	log.WithField("component", "test").Warn("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "test", entry["component"])

	buf.Reset()
	require.NoError(t, Setup("debug", "text", &buf))
	log.WithField("component", "test").Debug("nested")
	assert.Contains(t, buf.String(), "[test]")
	assert.Contains(t, buf.String(), "nested")

	assert.Error(t, Setup("loud", "text", &buf))
}
