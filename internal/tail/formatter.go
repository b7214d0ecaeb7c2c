package tail

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
)

// Formatter formats events for output.
type Formatter struct {
	showEmoji     bool
	showTimestamp bool
	template      *template.Template
}

// FormatterOption configures a Formatter.
type FormatterOption func(*Formatter)

// WithEmoji enables emoji output.
func WithEmoji(enabled bool) FormatterOption {
	return func(f *Formatter) {
		f.showEmoji = enabled
	}
}

// WithTimestamp enables timestamp output.
func WithTimestamp(enabled bool) FormatterOption {
	return func(f *Formatter) {
		f.showTimestamp = enabled
	}
}

// WithTemplate sets a custom format template.
func WithTemplate(tmpl string) FormatterOption {
	return func(f *Formatter) {
		if tmpl != "" {
			t, err := template.New("format").Parse(tmpl)
			if err == nil {
				f.template = t
			}
		}
	}
}

// NewFormatter creates a new formatter with the given options.
func NewFormatter(opts ...FormatterOption) *Formatter {
	f := &Formatter{
		showEmoji:     true,
		showTimestamp: false,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format formats an event as a string.
func (f *Formatter) Format(e Event) string {
	if f.template != nil {
		return f.formatTemplate(e)
	}
	return f.formatLine(e)
}

func (f *Formatter) formatLine(e Event) string {
	var parts []string
	if f.showTimestamp {
		parts = append(parts, e.Timestamp.Format("15:04:05"))
	}
	if f.showEmoji {
		parts = append(parts, eventEmoji(e.Type))
	}
	parts = append(parts, f.eventDescription(e))
	return strings.Join(parts, " ")
}

func (f *Formatter) formatTemplate(e Event) string {
	data := templateData{
		Type:      eventTypeName(e.Type),
		Emoji:     eventEmoji(e.Type),
		Timestamp: e.Timestamp,
		Time:      e.Timestamp.Format("15:04:05"),
		Player:    e.Deck.Player,
		HotCue:    e.Deck.HotCue,
	}
	if e.Track != nil {
		data.Title = e.Track.Title
		data.Artist = e.Track.Artist
		data.Album = e.Track.Album
	}
	if e.Device != nil {
		data.Device = e.Device.Name
		data.Player = e.Device.Number
	}
	if e.Position != nil {
		data.PositionMs = e.Position.PositionMs
		data.Beat = e.Position.BeatNumber
	}

	var buf bytes.Buffer
	if err := f.template.Execute(&buf, data); err != nil {
		return f.formatLine(e)
	}
	return buf.String()
}

type templateData struct {
	Type       string
	Emoji      string
	Timestamp  time.Time
	Time       string
	Player     int
	HotCue     int
	Title      string
	Artist     string
	Album      string
	Device     string
	PositionMs int64
	Beat       int
}

func deckLabel(e Event) string {
	if e.Deck.HotCue > 0 {
		return fmt.Sprintf("Player %d hot cue %d", e.Deck.Player, e.Deck.HotCue)
	}
	return fmt.Sprintf("Player %d", e.Deck.Player)
}

// FormatPosition renders milliseconds as m:ss.t.
func FormatPosition(ms int64) string {
	if ms < 0 {
		return "--:--"
	}
	return fmt.Sprintf("%d:%02d.%d", ms/60000, ms/1000%60, ms/100%10)
}

func (f *Formatter) eventDescription(e Event) string {
	switch e.Type {
	case EventDeviceFound:
		return fmt.Sprintf("Found %s (#%d) at %s", e.Device.Name, e.Device.Number, e.Device.Address)

	case EventDeviceLost:
		return fmt.Sprintf("Lost %s (#%d)", e.Device.Name, e.Device.Number)

	case EventMediaMounted:
		if e.Media != nil {
			return fmt.Sprintf("Media %s in %s: %s tracks, %s",
				e.Media.Name, e.Slot, humanize.Comma(int64(e.Media.TrackCount)), humanize.Bytes(uint64(e.Media.TotalSize)))
		}
		return fmt.Sprintf("Media mounted in %s", e.Slot)

	case EventMediaUnmounted:
		return fmt.Sprintf("Media removed from %s", e.Slot)

	case EventTrackLoaded:
		return fmt.Sprintf("%s loaded: %s - %s", deckLabel(e), e.Track.Artist, e.Track.Title)

	case EventTrackUnloaded:
		return fmt.Sprintf("%s empty", deckLabel(e))

	case EventArt:
		return fmt.Sprintf("%s artwork %s", deckLabel(e), humanize.Bytes(uint64(len(e.Art.Image))))

	case EventBeatGrid:
		return fmt.Sprintf("%s beat grid: %d beats", deckLabel(e), e.BeatGrid.BeatCount())

	case EventWaveform:
		if e.Detail != nil {
			return fmt.Sprintf("%s waveform detail: %d frames", deckLabel(e), e.Detail.Frames())
		}
		return fmt.Sprintf("%s waveform preview: %d segments", deckLabel(e), e.Preview.Segments())

	case EventStructure:
		return fmt.Sprintf("%s phrases: %d (%s)", deckLabel(e), len(e.Structure.Phrases), e.Structure.Mood)

	case EventPlay:
		return fmt.Sprintf("%s playing at %s (beat %d)", deckLabel(e),
			FormatPosition(e.Position.PositionMs), e.Position.BeatNumber)

	case EventPause:
		return fmt.Sprintf("%s stopped at %s", deckLabel(e), FormatPosition(e.Position.PositionMs))

	case EventPositionLost:
		return fmt.Sprintf("%s position unknown", deckLabel(e))

	default:
		return "Unknown event"
	}
}

func eventEmoji(t EventType) string {
	switch t {
	case EventDeviceFound:
		return "📡"
	case EventDeviceLost:
		return "👋"
	case EventMediaMounted:
		return "💾"
	case EventMediaUnmounted:
		return "⏏️"
	case EventTrackLoaded:
		return "🎵"
	case EventTrackUnloaded:
		return "⭕"
	case EventArt:
		return "🖼️"
	case EventBeatGrid:
		return "🥁"
	case EventWaveform:
		return "🌊"
	case EventStructure:
		return "🧩"
	case EventPlay:
		return "▶️"
	case EventPause:
		return "⏸️"
	case EventPositionLost:
		return "❓"
	default:
		return "❓"
	}
}

func eventTypeName(t EventType) string {
	switch t {
	case EventDeviceFound:
		return "device_found"
	case EventDeviceLost:
		return "device_lost"
	case EventMediaMounted:
		return "media_mounted"
	case EventMediaUnmounted:
		return "media_unmounted"
	case EventTrackLoaded:
		return "track_loaded"
	case EventTrackUnloaded:
		return "track_unloaded"
	case EventArt:
		return "art"
	case EventBeatGrid:
		return "beat_grid"
	case EventWaveform:
		return "waveform"
	case EventStructure:
		return "structure"
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventPositionLost:
		return "position_lost"
	default:
		return "unknown"
	}
}
