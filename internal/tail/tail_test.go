package tail

import (
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/decklink/internal/core"
	"github.com/tessro/decklink/internal/finder"
	"github.com/tessro/decklink/internal/timefinder"
)

func drain(w *Watcher) []Event {
	var out []Event
	for {
		select {
		case e := <-w.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}

func types(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestWatcherPlayStateTransitions(t *testing.T) {
	w := NewWatcher(clock.NewMock(), 16)

	w.OnPosition(2, &timefinder.PositionUpdate{Player: 2, Playing: true, PositionMs: 1000})
	w.OnPosition(2, &timefinder.PositionUpdate{Player: 2, Playing: true, PositionMs: 1500})
	w.OnPosition(2, &timefinder.PositionUpdate{Player: 2, Playing: false, PositionMs: 1600})
	w.OnPosition(2, nil)
	w.OnPosition(2, nil)

	assert.Equal(t, []EventType{EventPlay, EventPause, EventPositionLost}, types(drain(w)))
}

func TestWatcherFinderUpdates(t *testing.T) {
	w := NewWatcher(clock.NewMock(), 16)
	md := &core.TrackMetadata{Title: "Strings of Life", Artist: "Rhythim Is Rhythim"}

	w.OnMetadata(finder.Update[core.TrackMetadata]{Deck: core.MainDeck(1), Value: md})
	w.OnArt(finder.Update[core.AlbumArt]{Deck: core.MainDeck(1)})
	w.OnMetadata(finder.Update[core.TrackMetadata]{Deck: core.MainDeck(1)})

	events := drain(w)
	require.Len(t, events, 2)
	assert.Equal(t, EventTrackLoaded, events[0].Type)
	assert.Same(t, md, events[0].Track)
	assert.Equal(t, EventTrackUnloaded, events[1].Type)
}

func TestWatcherDropsWhenFull(t *testing.T) {
	w := NewWatcher(clock.NewMock(), 1)
	w.OnMount(core.MountEvent{Slot: core.NewSlotReference(1, core.SlotUSB), Mounted: true})
	w.OnMount(core.MountEvent{Slot: core.NewSlotReference(1, core.SlotUSB)})
	assert.Len(t, drain(w), 1)

	w.Stop()
	w.Stop()
	w.OnMount(core.MountEvent{Slot: core.NewSlotReference(1, core.SlotUSB)})
	_, open := <-w.Events()
	assert.False(t, open)
}

func TestFormatter(t *testing.T) {
	ts := time.Date(2024, 5, 1, 22, 15, 3, 0, time.UTC)
	device := &core.DeviceAnnouncement{Name: "CDJ-3000", Number: 2, Address: net.IPv4(169, 254, 1, 2)}
	track := &core.TrackMetadata{Title: "Jaguar", Artist: "DJ Rolando"}

	tests := []struct {
		name  string
		opts  []FormatterOption
		event Event
		want  string
	}{
		{
			name:  "track loaded",
			opts:  []FormatterOption{WithEmoji(false)},
			event: Event{Type: EventTrackLoaded, Deck: core.MainDeck(3), Track: track},
			want:  "Player 3 loaded: DJ Rolando - Jaguar",
		},
		{
			name:  "hot cue",
			opts:  []FormatterOption{WithEmoji(false)},
			event: Event{Type: EventTrackUnloaded, Deck: core.NewDeckReference(3, 2)},
			want:  "Player 3 hot cue 2 empty",
		},
		{
			name:  "timestamp and emoji",
			opts:  []FormatterOption{WithTimestamp(true)},
			event: Event{Type: EventDeviceLost, Timestamp: ts, Device: device},
			want:  "22:15:03 👋 Lost CDJ-3000 (#2)",
		},
		{
			name: "play",
			opts: []FormatterOption{WithEmoji(false)},
			event: Event{Type: EventPlay, Deck: core.MainDeck(1),
				Position: &timefinder.PositionUpdate{PositionMs: 83400, BeatNumber: 161}},
			want: "Player 1 playing at 1:23.4 (beat 161)",
		},
		{
			name:  "template",
			opts:  []FormatterOption{WithTemplate("{{.Type}} {{.Player}} {{.Title}}")},
			event: Event{Type: EventTrackLoaded, Deck: core.MainDeck(4), Track: track},
			want:  "track_loaded 4 Jaguar",
		},
		{
			name:  "bad template falls back",
			opts:  []FormatterOption{WithTemplate("{{.Nope}}"), WithEmoji(false)},
			event: Event{Type: EventPositionLost, Deck: core.MainDeck(2)},
			want:  "Player 2 position unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewFormatter(tt.opts...).Format(tt.event))
		})
	}
}

func TestFormatPosition(t *testing.T) {
	assert.Equal(t, "--:--", FormatPosition(-1))
	assert.Equal(t, "0:00.0", FormatPosition(0))
	assert.Equal(t, "10:05.9", FormatPosition(605999))
}
