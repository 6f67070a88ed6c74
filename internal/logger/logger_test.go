package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Format: "json"}, &buf)

	l.Info().Msg("hidden")
	l.Warn().Str("k", "v").Msg("shown")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "v", entry["k"])
	assert.Equal(t, "warn", entry["level"])
}

func TestSearchLoggerTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	sl := NewSearchLogger(New(Config{Level: "debug", Format: "json"}, &buf))

	sl.StartRun("r1", "c101", 100, 21, 42)
	sl.RunComplete("r1", time.Second, 812.5, 11)
	sl.RunFailed("r1", errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, `"component":"search"`)
	assert.Contains(t, out, `"run_id":"r1"`)
	assert.Contains(t, out, `"routes":11`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLevel("DEBUG").String())
	assert.Equal(t, "info", parseLevel("bogus").String())
	assert.Equal(t, "disabled", parseLevel("off").String())
}
