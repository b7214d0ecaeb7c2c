package finder

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/tessro/decklink/internal/core"
	"github.com/tessro/decklink/internal/dispatch"
)

// Load describes what a player's main deck holds, as reported upstream.
// Metadata is nil when the upstream has not resolved it, or when the deck is empty.
type Load struct {
	Player    int
	Track     core.DataReference
	TrackType core.TrackType
	Metadata  *core.TrackMetadata
}

// Empty reports whether the deck holds no track.
func (l Load) Empty() bool {
	return l.Track.ID == 0 || l.TrackType == core.TrackTypeNone
}

// Update reports a change in the attribute held for a deck. Value is nil
// when the attribute is gone.
type Update[T any] struct {
	Deck  core.DeckReference
	Value *T
}

// Upstream is a source of track load events.
type Upstream interface {
	AddListener(fn func(Load)) dispatch.Subscription
	RemoveListener(id dispatch.Subscription)
	// Snapshot returns what is loaded right now, one entry per player.
	Snapshot() []Load
}

// StatusLoads turns player status packets into load events. Every status is
// forwarded; finders ignore loads they have already resolved.
type StatusLoads struct {
	mu        sync.RWMutex
	current   map[int]Load
	listeners *dispatch.Listeners[Load]
}

// NewStatusLoads creates an empty status adapter.
func NewStatusLoads(logger *slog.Logger) *StatusLoads {
	return &StatusLoads{
		current:   make(map[int]Load),
		listeners: dispatch.NewListeners[Load]("status loads", logger),
	}
}

// OnStatus records and forwards the track a player reports.
func (s *StatusLoads) OnStatus(st *core.CdjStatus) {
	l := Load{Player: st.Player}
	if st.HasTrack() {
		l.Track = st.Track()
		l.TrackType = st.TrackType
	}
	s.mu.Lock()
	s.current[st.Player] = l
	s.mu.Unlock()
	s.listeners.Deliver(l)
}

// OnDevice forgets players that left the network.
func (s *StatusLoads) OnDevice(e core.DeviceEvent) {
	if !e.Lost {
		return
	}
	s.mu.Lock()
	delete(s.current, e.Device.Number)
	s.mu.Unlock()
}

func (s *StatusLoads) AddListener(fn func(Load)) dispatch.Subscription {
	return s.listeners.Add(fn)
}

func (s *StatusLoads) RemoveListener(id dispatch.Subscription) {
	s.listeners.Remove(id)
}

func (s *StatusLoads) Snapshot() []Load {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Load, 0, len(s.current))
	for _, l := range s.current {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Player < out[j].Player })
	return out
}

// MetadataLoads presents a metadata finder as the upstream of the other finders.
type MetadataLoads struct {
	f *Finder[core.TrackMetadata]
}

// NewMetadataLoads wraps a metadata finder.
func NewMetadataLoads(f *Finder[core.TrackMetadata]) *MetadataLoads {
	return &MetadataLoads{f: f}
}

func loadOf(player int, md *core.TrackMetadata) Load {
	if md == nil {
		return Load{Player: player}
	}
	return Load{Player: player, Track: md.Track, TrackType: md.TrackType, Metadata: md}
}

func (m *MetadataLoads) AddListener(fn func(Load)) dispatch.Subscription {
	return m.f.AddListener(func(u Update[core.TrackMetadata]) {
		if u.Deck.IsMain() {
			fn(loadOf(u.Deck.Player, u.Value))
		}
	})
}

func (m *MetadataLoads) RemoveListener(id dispatch.Subscription) {
	m.f.RemoveListener(id)
}

func (m *MetadataLoads) Snapshot() []Load {
	var out []Load
	for deck, md := range m.f.Loaded() {
		if deck.IsMain() {
			out = append(out, loadOf(deck.Player, md))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Player < out[j].Player })
	return out
}
