package components

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"github.com/tessro/decklink/internal/core"
)

func TestWaveformWidth(t *testing.T) {
	data := make([]byte, 400)
	for i := 0; i < len(data); i += 2 {
		data[i] = byte(i / 2 % 32)
	}
	preview := &core.WaveformPreview{Data: data}

	out := Waveform(preview, 30000, 60000, 40)
	assert.Equal(t, 40, lipgloss.Width(out))
	assert.Contains(t, out, "│")

	assert.Empty(t, Waveform(&core.WaveformPreview{}, 0, 0, 40))
	assert.NotContains(t, Waveform(preview, -1, 60000, 20), "│")
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"Jaguar", 10, "Jaguar"},
		{"Strings of Life", 8, "Strings…"},
		{"Jaguar", 0, ""},
		{"Jaguar", 1, "J"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncate(tt.in, tt.n))
	}
}

func TestFormatTimeAgo(t *testing.T) {
	now := time.Date(2024, 5, 1, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, "now", formatTimeAgo(now, now.Add(-10*time.Second)))
	assert.Equal(t, "5m", formatTimeAgo(now, now.Add(-5*time.Minute)))
	assert.Equal(t, "3h", formatTimeAgo(now, now.Add(-3*time.Hour)))
	assert.Equal(t, "Apr 28", formatTimeAgo(now, now.Add(-80*time.Hour)))
}

func TestDeckRenderEmpty(t *testing.T) {
	out := NewDeck().Render(DeckState{Player: 2, PositionMs: -1}, 40, 8, false)
	assert.True(t, strings.Contains(out, "Player 2"))
	assert.True(t, strings.Contains(out, "No track loaded"))
}
