package tail

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tessro/decklink/internal/beatgrid"
	"github.com/tessro/decklink/internal/core"
	"github.com/tessro/decklink/internal/dispatch"
	"github.com/tessro/decklink/internal/finder"
	"github.com/tessro/decklink/internal/session"
	"github.com/tessro/decklink/internal/songstructure"
	"github.com/tessro/decklink/internal/timefinder"
)

// EventType represents the type of deck event.
type EventType int

const (
	EventDeviceFound EventType = iota
	EventDeviceLost
	EventMediaMounted
	EventMediaUnmounted
	EventTrackLoaded
	EventTrackUnloaded
	EventArt
	EventBeatGrid
	EventWaveform
	EventStructure
	EventPlay
	EventPause
	EventPositionLost
)

// Event represents one change seen on the network.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Deck      core.DeckReference
	Device    *core.DeviceAnnouncement
	Slot      core.SlotReference
	Media     *core.MediaDetails
	Track     *core.TrackMetadata
	Art       *core.AlbumArt
	BeatGrid  *beatgrid.BeatGrid
	Preview   *core.WaveformPreview
	Detail    *core.WaveformDetail
	Structure *songstructure.Structure
	Position  *timefinder.PositionUpdate
}

// Watcher turns session notifications into a stream of events.
type Watcher struct {
	clock  clock.Clock
	events chan Event

	mu        sync.Mutex
	closed    bool
	playing   map[int]bool
	positions map[int]dispatch.Subscription
	unsub     []func()
	time      *timefinder.TimeFinder
}

// NewWatcher creates a watcher with a buffer of size events.
func NewWatcher(clk clock.Clock, size int) *Watcher {
	if clk == nil {
		clk = clock.New()
	}
	if size <= 0 {
		size = 64
	}
	return &Watcher{
		clock:     clk,
		events:    make(chan Event, size),
		playing:   make(map[int]bool),
		positions: make(map[int]dispatch.Subscription),
	}
}

// Events returns the channel of deck events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Attach subscribes to every source in s. Position events are followed for
// each player as it appears on the network.
func (w *Watcher) Attach(s *session.Session) {
	w.mu.Lock()
	w.time = s.Time
	w.mu.Unlock()

	add := func(fn func()) {
		w.mu.Lock()
		w.unsub = append(w.unsub, fn)
		w.mu.Unlock()
	}

	id := s.Discovery.AddListener(w.OnDevice)
	add(func() { s.Discovery.RemoveListener(id) })
	mid := s.Mounts.AddListener(w.OnMount)
	add(func() { s.Mounts.RemoveListener(mid) })

	add(follow(s.Metadata, w.OnMetadata))
	add(follow(s.Art, w.OnArt))
	add(follow(s.BeatGrids, w.OnBeatGrid))
	add(follow(s.WavePreviews, w.OnWavePreview))
	add(follow(s.WaveDetails, w.OnWaveDetail))
	add(follow(s.Structures, w.OnStructure))

	for _, d := range s.Discovery.Devices() {
		w.followPositions(d.Number)
	}
}

func follow[T any](f *finder.Finder[T], fn func(finder.Update[T])) func() {
	id := f.AddListener(fn)
	return func() { f.RemoveListener(id) }
}

func (w *Watcher) followPositions(player int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.time == nil || w.closed {
		return
	}
	if _, ok := w.positions[player]; ok {
		return
	}
	w.positions[player] = w.time.AddTrackPositionListener(player, func(u *timefinder.PositionUpdate) {
		w.OnPosition(player, u)
	})
}

// Stop unsubscribes and closes the event channel.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	unsub := w.unsub
	w.unsub = nil
	for player, id := range w.positions {
		w.time.RemoveTrackPositionListener(player, id)
	}
	w.mu.Unlock()

	for _, fn := range unsub {
		fn()
	}
	w.mu.Lock()
	close(w.events)
	w.mu.Unlock()
}

func (w *Watcher) emit(e Event) {
	e.Timestamp = w.clock.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.events <- e:
	default:
		// Drop event if channel is full
	}
}

// OnDevice reports devices joining and leaving.
func (w *Watcher) OnDevice(e core.DeviceEvent) {
	d := e.Device
	if e.Lost {
		w.emit(Event{Type: EventDeviceLost, Device: &d})
		return
	}
	w.emit(Event{Type: EventDeviceFound, Device: &d})
	w.followPositions(d.Number)
}

// OnMount reports media changes.
func (w *Watcher) OnMount(e core.MountEvent) {
	t := EventMediaUnmounted
	if e.Mounted {
		t = EventMediaMounted
	}
	w.emit(Event{Type: t, Slot: e.Slot, Media: e.Details})
}

// OnMetadata reports tracks being loaded and unloaded on main decks.
func (w *Watcher) OnMetadata(u finder.Update[core.TrackMetadata]) {
	if u.Value == nil {
		w.emit(Event{Type: EventTrackUnloaded, Deck: u.Deck})
		return
	}
	w.emit(Event{Type: EventTrackLoaded, Deck: u.Deck, Track: u.Value})
}

// OnArt reports artwork arriving.
func (w *Watcher) OnArt(u finder.Update[core.AlbumArt]) {
	if u.Value != nil {
		w.emit(Event{Type: EventArt, Deck: u.Deck, Art: u.Value})
	}
}

// OnBeatGrid reports beat grids arriving.
func (w *Watcher) OnBeatGrid(u finder.Update[beatgrid.BeatGrid]) {
	if u.Value != nil {
		w.emit(Event{Type: EventBeatGrid, Deck: u.Deck, BeatGrid: u.Value})
	}
}

// OnWavePreview reports preview waveforms arriving.
func (w *Watcher) OnWavePreview(u finder.Update[core.WaveformPreview]) {
	if u.Value != nil {
		w.emit(Event{Type: EventWaveform, Deck: u.Deck, Preview: u.Value})
	}
}

// OnWaveDetail reports detailed waveforms arriving.
func (w *Watcher) OnWaveDetail(u finder.Update[core.WaveformDetail]) {
	if u.Value != nil {
		w.emit(Event{Type: EventWaveform, Deck: u.Deck, Detail: u.Value})
	}
}

// OnStructure reports phrase analysis arriving.
func (w *Watcher) OnStructure(u finder.Update[songstructure.Structure]) {
	if u.Value != nil {
		w.emit(Event{Type: EventStructure, Deck: u.Deck, Structure: u.Value})
	}
}

// OnPosition reports play state transitions and lost positions. Individual
// position samples are not events.
func (w *Watcher) OnPosition(player int, u *timefinder.PositionUpdate) {
	deck := core.MainDeck(player)
	w.mu.Lock()
	was, known := w.playing[player]
	if u == nil {
		delete(w.playing, player)
	} else {
		w.playing[player] = u.Playing
	}
	w.mu.Unlock()

	switch {
	case u == nil:
		if known {
			w.emit(Event{Type: EventPositionLost, Deck: deck})
		}
	case u.Playing && (!known || !was):
		w.emit(Event{Type: EventPlay, Deck: deck, Position: u})
	case !u.Playing && (!known || was):
		w.emit(Event{Type: EventPause, Deck: deck, Position: u})
	}
}
