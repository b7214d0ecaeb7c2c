package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dlerrors "github.com/tessro/decklink/internal/errors"
)

func TestTypedValue(t *testing.T) {
	tests := []struct {
		key   string
		value string
		want  any
	}{
		{"network.device_number", "3", 3},
		{"finder.passive", "true", true},
		{"finder.passive", "0", false},
		{"network.interface", "en0", "en0"},
		{"log.format", "json", "json"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			got, err := typedValue(tt.key, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTypedValueErrors(t *testing.T) {
	_, err := typedValue("finder.queue_size", "lots")
	assert.Error(t, err)

	_, err = typedValue("finder.passive", "maybe")
	assert.Error(t, err)

	_, err = typedValue("mixer.volume", "50")
	require.Error(t, err)
	assert.True(t, errors.Is(err, dlerrors.ErrInvalidConfig))
	assert.NotEmpty(t, dlerrors.GetSuggestion(err))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "a long...", TruncateString("a long title", 9))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTableWriter(&buf, "#", "NAME")
	tbl.Row("1", "CDJ-3000")
	tbl.Flush()
	assert.Equal(t, "#  NAME\n1  CDJ-3000\n", buf.String())
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeYAML(&buf, archiveInfo{Path: "set.dlk", Tracks: 2}))
	assert.Contains(t, buf.String(), "path: set.dlk")
	assert.Contains(t, buf.String(), "tracks: 2")
	assert.NotContains(t, buf.String(), "media")
}
