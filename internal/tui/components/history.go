package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tessro/decklink/internal/core"
	"github.com/tessro/decklink/internal/tui/styles"
)

// HistoryEntry represents a track loaded on a deck
type HistoryEntry struct {
	Player   int
	Track    *core.TrackMetadata
	LoadedAt time.Time
}

// History displays recently loaded tracks
type History struct{}

// NewHistory creates a new History component
func NewHistory() *History {
	return &History{}
}

// Render renders the history panel
func (h *History) Render(entries []HistoryEntry, now time.Time, width, height int, focused bool) string {
	title := styles.PanelTitle("History", focused)

	var content string
	if len(entries) == 0 {
		content = styles.Muted.Render("No tracks loaded yet")
	} else {
		content = h.renderHistory(entries, now, width-4, height-4)
	}

	return styles.Panel(focused).
		Width(width).
		Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, "", content))
}

func (h *History) renderHistory(entries []HistoryEntry, now time.Time, width, maxLines int) string {
	lines := make([]string, 0, maxLines)

	// player tag (3) + separators (4)
	const overhead = 7

	for i, entry := range entries {
		if i >= maxLines {
			break
		}
		track := entry.Track
		if track == nil {
			continue
		}

		timeAgo := formatTimeAgo(now, entry.LoadedAt)
		available := width - overhead - len(timeAgo)
		title, artist := track.Title, track.Artist
		if len(title)+len(artist) > available {
			artistSpace := available / 3
			if artistSpace < 8 {
				artistSpace = 8
			}
			if artistSpace > len(artist) {
				artistSpace = len(artist)
			}
			title = truncate(title, available-artistSpace)
			artist = truncate(artist, artistSpace)
		}

		info := fmt.Sprintf("%s — %s", title, artist)
		padding := width - overhead - len(title) - len(artist) - len(timeAgo)
		if padding < 1 {
			padding = 1
		}
		lines = append(lines, fmt.Sprintf("%s %s%s%s",
			styles.Dim.Render(fmt.Sprintf("P%d", entry.Player)),
			info,
			lipgloss.NewStyle().Width(padding).Render(""),
			styles.Dim.Render(timeAgo)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func formatTimeAgo(now, t time.Time) string {
	d := now.Sub(t)
	if d < time.Minute {
		return "now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return t.Format("Jan 2")
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
