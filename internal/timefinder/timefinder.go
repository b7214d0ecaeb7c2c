// Package timefinder estimates where in its track each player is, anchored
// on beat and precise position packets and the track's beat grid.
package timefinder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tessro/decklink/internal/beatgrid"
	"github.com/tessro/decklink/internal/core"
	"github.com/tessro/decklink/internal/dispatch"
	"github.com/tessro/decklink/internal/finder"
)

// preciseWindow is how long after a precise position report beat packets
// are ignored for re-anchoring.
const preciseWindow = time.Second

// PositionUpdate is one position sample for a player.
type PositionUpdate struct {
	Player     int
	Timestamp  time.Time
	PositionMs int64
	BeatNumber int
	// Definitive samples are anchored on a beat or precise position report.
	Definitive bool
	Precise    bool
	FromBeat   bool
	Playing    bool
	Pitch      float64
	Reverse    bool
	BeatGrid   *beatgrid.BeatGrid
	// DurationMs bounds interpolation; zero when unknown.
	DurationMs int64
}

// Interpolate estimates the position at now.
func (u *PositionUpdate) Interpolate(now time.Time) int64 {
	if !u.Playing {
		return u.PositionMs
	}
	elapsed := float64(now.Sub(u.Timestamp)) / float64(time.Millisecond)
	delta := int64(elapsed * u.Pitch)
	if u.Reverse {
		delta = -delta
	}
	pos := u.PositionMs + delta
	if pos < 0 {
		pos = 0
	}
	if u.DurationMs > 0 && pos > u.DurationMs {
		pos = u.DurationMs
	}
	return pos
}

// Packets is the source of player status, beat and precise position packets.
// *prolink.Listener implements it.
type Packets interface {
	OnStatus(fn func(*core.CdjStatus)) dispatch.Subscription
	OnBeat(fn func(*core.Beat)) dispatch.Subscription
	OnPrecisePosition(fn func(*core.PrecisePosition)) dispatch.Subscription
	Remove(id dispatch.Subscription)
}

// BeatGrids supplies the grid of each player's loaded track.
type BeatGrids interface {
	AddListener(fn func(finder.Update[beatgrid.BeatGrid])) dispatch.Subscription
	RemoveListener(id dispatch.Subscription)
	Loaded() map[core.DeckReference]*beatgrid.BeatGrid
}

// Metadata supplies track durations.
type Metadata interface {
	Latest(player int) *core.TrackMetadata
}

type positionEvent struct {
	player int
	update *PositionUpdate
}

// TimeFinder tracks the position of every player. A player is either
// tracked, with a definitive sample to interpolate from, or unknown.
type TimeFinder struct {
	packets  Packets
	grids    BeatGrids
	metadata Metadata
	clock    clock.Clock
	logger   *slog.Logger

	mu        sync.RWMutex
	positions map[int]*PositionUpdate
	statuses  map[int]*core.CdjStatus
	tracks    map[int]core.DataReference
	beatGrids map[int]*beatgrid.BeatGrid
	precise   map[int]time.Time
	lengths   map[int]int64

	lmu       sync.Mutex
	listeners map[int]*dispatch.Listeners[*PositionUpdate]
	queue     *dispatch.Queue[positionEvent]

	lifecycle sync.Mutex
	running   bool
	stop      func()
	done      chan struct{}
	unsub     []func()
}

// New creates a stopped time finder. Any collaborator may be nil, in which
// case the matching On* handlers must be called directly.
func New(packets Packets, grids BeatGrids, metadata Metadata, clk clock.Clock, logger *slog.Logger) *TimeFinder {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &TimeFinder{
		packets:   packets,
		grids:     grids,
		metadata:  metadata,
		clock:     clk,
		logger:    logger,
		listeners: make(map[int]*dispatch.Listeners[*PositionUpdate]),
		queue:     dispatch.NewQueue[positionEvent]("positions", dispatch.DefaultQueueSize, logger),
	}
	t.reset()
	return t
}

func (t *TimeFinder) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions = make(map[int]*PositionUpdate)
	t.statuses = make(map[int]*core.CdjStatus)
	t.tracks = make(map[int]core.DataReference)
	t.beatGrids = make(map[int]*beatgrid.BeatGrid)
	t.precise = make(map[int]time.Time)
	t.lengths = make(map[int]int64)
}

// Start subscribes to the collaborators. Starting twice does nothing.
func (t *TimeFinder) Start() error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	if t.running {
		return nil
	}
	t.running = true

	if p := t.packets; p != nil {
		ids := []dispatch.Subscription{
			p.OnStatus(t.OnStatus),
			p.OnBeat(t.OnBeat),
			p.OnPrecisePosition(t.OnPrecisePosition),
		}
		t.unsub = append(t.unsub, func() {
			for _, id := range ids {
				p.Remove(id)
			}
		})
	}
	if g := t.grids; g != nil {
		id := g.AddListener(t.OnBeatGrid)
		t.unsub = append(t.unsub, func() { g.RemoveListener(id) })
		for deck, grid := range g.Loaded() {
			if deck.IsMain() {
				t.OnBeatGrid(finder.Update[beatgrid.BeatGrid]{Deck: deck, Value: grid})
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.done = done
	t.stop = cancel
	go func() {
		defer close(done)
		t.queue.Run(ctx, t.deliver)
	}()
	return nil
}

// Stop unsubscribes, reports every tracked player as unknown, and forgets
// all state. Stopping twice does nothing.
func (t *TimeFinder) Stop() {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	if !t.running {
		return
	}
	for _, fn := range t.unsub {
		fn()
	}
	t.unsub = nil
	t.stop()
	<-t.done
	t.queue.Discard()
	t.running = false

	t.mu.RLock()
	var tracked []int
	for p := range t.positions {
		tracked = append(tracked, p)
	}
	t.mu.RUnlock()
	t.reset()
	for _, p := range tracked {
		t.deliver(positionEvent{player: p})
	}
}

// Running reports whether the finder has been started.
func (t *TimeFinder) Running() bool {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	return t.running
}

// LatestPositionFor returns the last sample for player, or nil when its
// position is unknown.
func (t *TimeFinder) LatestPositionFor(player int) *PositionUpdate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if u := t.positions[player]; u != nil {
		cp := *u
		return &cp
	}
	return nil
}

// TimeFor returns the interpolated position of player in milliseconds, or
// -1 when it is unknown.
func (t *TimeFinder) TimeFor(player int) int64 {
	u := t.LatestPositionFor(player)
	if u == nil {
		return -1
	}
	return u.Interpolate(t.clock.Now())
}

// AddTrackPositionListener registers fn for samples of one player. fn
// receives nil when the position becomes unknown.
func (t *TimeFinder) AddTrackPositionListener(player int, fn func(*PositionUpdate)) dispatch.Subscription {
	t.lmu.Lock()
	l, ok := t.listeners[player]
	if !ok {
		l = dispatch.NewListeners[*PositionUpdate]("positions", t.logger)
		t.listeners[player] = l
	}
	t.lmu.Unlock()
	id := l.Add(fn)
	if u := t.LatestPositionFor(player); u != nil {
		t.queue.Offer(positionEvent{player: player, update: u})
	}
	return id
}

// RemoveTrackPositionListener unregisters a listener.
func (t *TimeFinder) RemoveTrackPositionListener(player int, id dispatch.Subscription) {
	t.lmu.Lock()
	l := t.listeners[player]
	t.lmu.Unlock()
	if l != nil {
		l.Remove(id)
	}
}

func (t *TimeFinder) deliver(e positionEvent) {
	t.lmu.Lock()
	l := t.listeners[e.player]
	t.lmu.Unlock()
	if l != nil {
		l.Deliver(e.update)
	}
}

func (t *TimeFinder) publish(player int, u *PositionUpdate) {
	var cp *PositionUpdate
	if u != nil {
		c := *u
		cp = &c
	}
	t.queue.Offer(positionEvent{player: player, update: cp})
}

// validGrid returns the grid for player's current track. Callers hold t.mu.
func (t *TimeFinder) validGrid(player int) *beatgrid.BeatGrid {
	grid := t.beatGrids[player]
	if grid == nil {
		return nil
	}
	if track, ok := t.tracks[player]; ok && grid.Track != track {
		return nil
	}
	return grid
}

// duration returns the best known length of player's track. Callers hold t.mu.
func (t *TimeFinder) duration(player int) int64 {
	if t.metadata != nil {
		if md := t.metadata.Latest(player); md != nil && md.Duration > 0 && md.Track == t.tracks[player] {
			return md.Length().Milliseconds()
		}
	}
	return t.lengths[player]
}

// invalidate forgets player's sample. Callers hold t.mu and must publish
// the returned value.
func (t *TimeFinder) invalidate(player int) bool {
	if _, ok := t.positions[player]; !ok {
		return false
	}
	delete(t.positions, player)
	return true
}

// OnBeatGrid records the grid of a player's newly loaded track. A grid that
// no longer matches the tracked sample makes the position unknown.
func (t *TimeFinder) OnBeatGrid(u finder.Update[beatgrid.BeatGrid]) {
	if !u.Deck.IsMain() {
		return
	}
	player := u.Deck.Player
	t.mu.Lock()
	if u.Value == nil {
		delete(t.beatGrids, player)
	} else {
		t.beatGrids[player] = u.Value
	}
	lost := false
	if pos := t.positions[player]; pos != nil && pos.BeatGrid != u.Value {
		lost = t.invalidate(player)
	}
	t.mu.Unlock()
	if lost {
		t.publish(player, nil)
	}
}

func (t *TimeFinder) now(ts time.Time) time.Time {
	if ts.IsZero() {
		return t.clock.Now()
	}
	return ts
}

// OnStatus tracks the loaded track and play state. A status alone never
// anchors a position, but it re-bases the current sample when the play
// state changes so later interpolation uses the new speed and direction.
func (t *TimeFinder) OnStatus(s *core.CdjStatus) {
	player := s.Player
	now := t.now(s.Timestamp)
	var publish bool
	var out *PositionUpdate

	t.mu.Lock()
	t.statuses[player] = s
	track := s.Track()
	if prev, ok := t.tracks[player]; !ok || prev != track {
		t.tracks[player] = track
		delete(t.lengths, player)
		delete(t.precise, player)
		publish = t.invalidate(player)
	}
	pos := t.positions[player]
	if pos != nil && t.validGrid(player) != pos.BeatGrid {
		publish = t.invalidate(player) || publish
		pos = nil
	}
	if pos != nil && (pos.Playing != s.Playing || pos.Pitch != s.Pitch || pos.Reverse != s.Reverse) {
		at := pos.Interpolate(now)
		next := *pos
		next.Timestamp = now
		next.PositionMs = at
		next.Definitive = false
		next.Precise = false
		next.FromBeat = false
		next.Playing = s.Playing
		next.Pitch = s.Pitch
		next.Reverse = s.Reverse
		if b, err := pos.BeatGrid.BeatAt(at); err == nil && b > 0 {
			next.BeatNumber = b
		}
		t.positions[player] = &next
		publish, out = true, &next
	}
	t.mu.Unlock()
	if publish {
		t.publish(player, out)
	}
}

// OnBeat anchors the player on the beat nearest its expected position.
func (t *TimeFinder) OnBeat(b *core.Beat) {
	player := b.Player
	now := t.now(b.Timestamp)

	t.mu.Lock()
	if last, ok := t.precise[player]; ok && now.Sub(last) < preciseWindow {
		t.mu.Unlock()
		return
	}
	grid := t.validGrid(player)
	if grid == nil || grid.BeatCount() == 0 {
		t.mu.Unlock()
		return
	}
	ref, ok := t.expected(player, grid, now)
	if !ok {
		t.mu.Unlock()
		return
	}
	beat := nearestBeat(grid, ref, b.BeatWithinBar)
	at, _ := grid.TimeAt(beat)
	status := t.statuses[player]
	u := &PositionUpdate{
		Player:     player,
		Timestamp:  now,
		PositionMs: at,
		BeatNumber: beat,
		Definitive: true,
		FromBeat:   true,
		Playing:    true,
		Pitch:      b.Pitch,
		Reverse:    status != nil && status.Reverse,
		BeatGrid:   grid,
		DurationMs: t.duration(player),
	}
	t.positions[player] = u
	t.mu.Unlock()
	t.publish(player, u)
}

// expected estimates where player should be at now, from its sample or
// from the beat number in its last status. Callers hold t.mu.
func (t *TimeFinder) expected(player int, grid *beatgrid.BeatGrid, now time.Time) (int64, bool) {
	if pos := t.positions[player]; pos != nil {
		return pos.Interpolate(now), true
	}
	s := t.statuses[player]
	if s == nil || s.BeatNumber <= 0 {
		return 0, false
	}
	at, err := grid.TimeAt(s.BeatNumber)
	if err != nil {
		return 0, false
	}
	if s.Playing && !s.Timestamp.IsZero() {
		at += int64(float64(now.Sub(s.Timestamp)/time.Millisecond) * s.Pitch)
	}
	return at, true
}

// nearestBeat picks the beat closest to ms, preferring one whose position
// in the bar matches the beat packet.
func nearestBeat(grid *beatgrid.BeatGrid, ms int64, withinBar int) int {
	first, _ := grid.BeatAt(ms)
	if first < 1 {
		first = 1
	}
	candidates := []int{first}
	if first < grid.BeatCount() {
		candidates = append(candidates, first+1)
	}
	best, bestDist := 0, int64(-1)
	for _, c := range candidates {
		at, _ := grid.TimeAt(c)
		dist := at - ms
		if dist < 0 {
			dist = -dist
		}
		if bar, _ := grid.BeatWithinBar(c); withinBar > 0 && bar == withinBar {
			return c
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = c, dist
		}
	}
	return best
}

// OnPrecisePosition re-anchors the player on an exact position report.
func (t *TimeFinder) OnPrecisePosition(p *core.PrecisePosition) {
	player := p.Player
	now := t.now(p.Timestamp)

	t.mu.Lock()
	t.precise[player] = now
	if p.TrackLength > 0 {
		t.lengths[player] = int64(p.TrackLength) * 1000
	}
	grid := t.validGrid(player)
	if grid == nil {
		t.mu.Unlock()
		return
	}
	beat := 0
	if grid.BeatCount() > 0 {
		if b, err := grid.BeatAt(p.PositionMs); err == nil && b > 0 {
			beat = b
		}
	}
	status := t.statuses[player]
	u := &PositionUpdate{
		Player:     player,
		Timestamp:  now,
		PositionMs: p.PositionMs,
		BeatNumber: beat,
		Definitive: true,
		Precise:    true,
		Playing:    status == nil || status.Playing,
		Pitch:      p.Pitch,
		Reverse:    status != nil && status.Reverse,
		BeatGrid:   grid,
		DurationMs: t.duration(player),
	}
	t.positions[player] = u
	t.mu.Unlock()
	t.publish(player, u)
}
