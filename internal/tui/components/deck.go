package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tessro/decklink/internal/beatgrid"
	"github.com/tessro/decklink/internal/core"
	"github.com/tessro/decklink/internal/songstructure"
	"github.com/tessro/decklink/internal/tail"
	"github.com/tessro/decklink/internal/timefinder"
	"github.com/tessro/decklink/internal/tui/styles"
)

// DeckState is everything known about one player's main deck.
type DeckState struct {
	Player    int
	Track     *core.TrackMetadata
	Art       *core.AlbumArt
	Grid      *beatgrid.BeatGrid
	Preview   *core.WaveformPreview
	Structure *songstructure.Structure
	Position  *timefinder.PositionUpdate
	// PositionMs is the interpolated position, -1 when unknown.
	PositionMs int64
}

var blocks = []rune(" ▁▂▃▄▅▆▇█")

// Deck displays one player
type Deck struct{}

// NewDeck creates a new Deck component
func NewDeck() *Deck {
	return &Deck{}
}

// Render renders a deck panel
func (d *Deck) Render(state DeckState, width, height int, focused bool) string {
	title := styles.PanelTitle(fmt.Sprintf("Player %d", state.Player), focused)

	var content string
	if state.Track == nil {
		content = styles.Muted.Render("No track loaded")
	} else {
		content = d.renderTrack(state, width-4)
	}

	return styles.Panel(focused).
		Width(width).
		Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, "", content))
}

func (d *Deck) renderTrack(state DeckState, width int) string {
	track := state.Track

	playing := state.Position != nil && state.Position.Playing
	icon := styles.StatusIcon(playing)
	title := styles.Title.Width(width - 4).Render(track.Title)
	artist := styles.Subtitle.Render(track.Artist)

	var info []string
	if track.Tempo > 0 {
		info = append(info, fmt.Sprintf("%.2f BPM", float64(track.Tempo)/100))
	}
	if track.Key != "" {
		info = append(info, track.Key)
	}
	var have []string
	if state.Art != nil {
		have = append(have, "art")
	}
	if state.Grid != nil {
		have = append(have, "grid")
	}
	if state.Structure != nil {
		have = append(have, "phrases")
	}
	if len(have) > 0 {
		info = append(info, strings.Join(have, "+"))
	}

	lines := []string{
		icon + " " + title,
		"  " + artist,
		"  " + styles.Dim.Render(strings.Join(info, " · ")),
		"",
	}
	if state.Preview != nil {
		lines = append(lines, Waveform(state.Preview, state.PositionMs, track.Length().Milliseconds(), width))
	}
	lines = append(lines, d.renderProgress(state, width), d.renderBeat(state))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (d *Deck) renderProgress(state DeckState, width int) string {
	total := state.Track.Length().Milliseconds()
	barWidth := width - 20
	if barWidth < 10 {
		barWidth = 10
	}
	percent := 0.0
	if total > 0 && state.PositionMs > 0 {
		percent = float64(state.PositionMs) / float64(total) * 100
	}
	remaining := int64(-1)
	if total > 0 && state.PositionMs >= 0 {
		remaining = total - state.PositionMs
	}
	return fmt.Sprintf("%s %s -%s",
		tail.FormatPosition(state.PositionMs), styles.ProgressBar(percent, barWidth), tail.FormatPosition(remaining))
}

func (d *Deck) renderBeat(state DeckState) string {
	if state.Grid == nil || state.Position == nil || state.Position.BeatNumber <= 0 {
		return styles.Dim.Render("bar -.-")
	}
	beat := state.Position.BeatNumber
	bar, err := state.Grid.BarOf(beat)
	if err != nil {
		return styles.Dim.Render("bar -.-")
	}
	within, _ := state.Grid.BeatWithinBar(beat)

	var dots strings.Builder
	for i := 1; i <= 4; i++ {
		switch {
		case i == within && i == 1:
			dots.WriteString(styles.Downbeat.Render("●"))
		case i == within:
			dots.WriteString(styles.Highlight.Render("●"))
		default:
			dots.WriteString(styles.Dim.Render("○"))
		}
	}
	out := fmt.Sprintf("bar %d.%d %s", bar, within, dots.String())
	if state.Structure != nil {
		if p := state.Structure.PhraseAt(beat); p != nil {
			out += "  " + styles.Muted.Render(state.Structure.PhraseName(p.Kind))
		}
	}
	return out
}

// Waveform renders a preview waveform squeezed into width columns with a
// playhead at positionMs.
func Waveform(preview *core.WaveformPreview, positionMs, totalMs int64, width int) string {
	segments := preview.Segments()
	if segments == 0 || width <= 0 {
		return ""
	}
	head := -1
	if totalMs > 0 && positionMs >= 0 {
		head = int(positionMs * int64(width) / totalMs)
	}
	var b strings.Builder
	for col := 0; col < width; col++ {
		seg := col * segments / width
		h := preview.Height(seg) * (len(blocks) - 1) / 31
		r := string(blocks[h])
		switch {
		case col == head:
			b.WriteString(styles.Downbeat.Render("│"))
		case head >= 0 && col < head:
			b.WriteString(styles.Dim.Render(r))
		default:
			b.WriteString(styles.Playing.Render(r))
		}
	}
	return b.String()
}
