package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLevels(t *testing.T) {
	tests := []struct {
		level Level
		want  zerolog.Level
	}{
		{DebugLevel, zerolog.DebugLevel},
		{InfoLevel, zerolog.InfoLevel},
		{WarnLevel, zerolog.WarnLevel},
		{ErrorLevel, zerolog.ErrorLevel},
		{"WARN", zerolog.WarnLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			Init(Config{Level: tt.level, JSONOutput: true, Output: &bytes.Buffer{}})
			assert.Equal(t, tt.want, zerolog.GlobalLevel())
		})
	}
}

func TestChildLoggers(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	l := WithComponent("editor")
	l1 := WithContentUID(l, "c1")
	l1.Info().Msg("committed")
	l2 := WithUser(WithComponent("api"), "alice")
	l2.Info().Msg("login")
	l3 := WithPageUID(WithUser(l, "bob"), "p1")
	l3.Info().Msg("page")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "editor", entry["component"])
	assert.Equal(t, "c1", entry["content_uid"])
	assert.Equal(t, "committed", entry["message"])

	entry = nil
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "api", entry["component"])
	assert.Equal(t, "alice", entry["user"])

	entry = nil
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &entry))
	assert.Equal(t, "editor", entry["component"])
	assert.Equal(t, "bob", entry["user"])
	assert.Equal(t, "p1", entry["page_uid"])
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	input := []byte("first line\n\nsecond line\n")
	n, err := Writer("raft").Write(input)
	require.NoError(t, err)
	assert.Equal(t, len(input), n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"component":"raft"`)
	assert.Contains(t, lines[1], "second line")
}
