// Package finder keeps a per-deck hot cache of one track attribute kind up
// to date as players load tracks, resolving missing attributes through the
// provider chain and notifying listeners of every change.
package finder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/tessro/decklink/internal/archive"
	"github.com/tessro/decklink/internal/core"
	"github.com/tessro/decklink/internal/dbserver"
	"github.com/tessro/decklink/internal/dispatch"
	dlerrors "github.com/tessro/decklink/internal/errors"
	"github.com/tessro/decklink/internal/provider"
)

// Sessions runs functions against a player's database server.
// *dbserver.Manager implements it.
type Sessions interface {
	Do(ctx context.Context, player int, fn func(*dbserver.Client) error) error
}

// Devices reports players appearing and leaving.
type Devices interface {
	AddListener(fn func(core.DeviceEvent)) dispatch.Subscription
	RemoveListener(id dispatch.Subscription)
}

// Mounts reports media changes and the details of mounted media.
type Mounts interface {
	AddListener(fn func(core.MountEvent)) dispatch.Subscription
	RemoveListener(id dispatch.Subscription)
	Details(slot core.SlotReference) *core.MediaDetails
}

// Archives returns the archive attached to a slot, or nil.
type Archives interface {
	For(slot core.SlotReference) *archive.Reader
}

// Config tunes a finder.
type Config struct {
	// QueueSize bounds the pending update queue. Zero uses dispatch.DefaultQueueSize.
	QueueSize int
	// CacheSize enables an LRU of resolved values keyed by identity.
	CacheSize int
	// Passive disables network queries except against rekordbox collections.
	Passive bool
	Logger  *slog.Logger
}

// Deps are the collaborators a finder uses. Any of them may be nil.
type Deps struct {
	Upstream  Upstream
	Devices   Devices
	Mounts    Mounts
	Providers *provider.Registry
	Archives  Archives
	Sessions  Sessions
}

type entry[T any] struct {
	id    core.DataReference
	value *T
}

type eventKind int

const (
	eventLoad eventKind = iota
	eventMounted
	eventUnmounted
	eventDeviceLost
)

type event struct {
	kind   eventKind
	load   Load
	slot   core.SlotReference
	player int
}

type result[T any] struct {
	load  Load
	id    core.DataReference
	value *T
	err   error
}

// Finder maintains the hot cache for one attribute kind. Hot cache writes
// happen only on its worker goroutine; reads are safe from anywhere.
type Finder[T any] struct {
	kind   Kind[T]
	cfg    Config
	deps   Deps
	logger *slog.Logger

	queue     *dispatch.Queue[event]
	results   chan result[T]
	listeners *dispatch.Listeners[Update[T]]
	group     singleflight.Group
	cache     *lru.Cache[core.DataReference, *T]

	mu       sync.RWMutex
	hot      map[core.DeckReference]entry[T]
	inflight map[int]core.DataReference

	// worker only
	wanted map[int]Load

	lifecycle sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	unsub     []func()
}

// New creates a stopped finder for kind.
func New[T any](kind Kind[T], cfg Config, deps Deps) *Finder[T] {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("kind", kind.Name)
	f := &Finder[T]{
		kind:      kind,
		cfg:       cfg,
		deps:      deps,
		logger:    logger,
		queue:     dispatch.NewQueue[event](kind.Name, cfg.QueueSize, logger),
		listeners: dispatch.NewListeners[Update[T]](kind.Name, logger),
		hot:       make(map[core.DeckReference]entry[T]),
		inflight:  make(map[int]core.DataReference),
		wanted:    make(map[int]Load),
	}
	if cfg.CacheSize > 0 {
		c, err := lru.New[core.DataReference, *T](cfg.CacheSize)
		if err != nil {
			logger.Warn("cache disabled", "size", cfg.CacheSize, "error", err)
		} else {
			f.cache = c
		}
	}
	return f
}

// Name returns the attribute kind name.
func (f *Finder[T]) Name() string { return f.kind.Name }

// Start subscribes to the collaborators, launches the worker, and queues
// the loads already present upstream. Starting a running finder does nothing.
func (f *Finder[T]) Start() error {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()
	if f.running {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})
	f.results = make(chan result[T])
	f.running = true

	if u := f.deps.Upstream; u != nil {
		id := u.AddListener(f.Handle)
		f.unsub = append(f.unsub, func() { u.RemoveListener(id) })
	}
	if d := f.deps.Devices; d != nil {
		id := d.AddListener(func(e core.DeviceEvent) {
			if e.Lost {
				f.DeviceLost(e.Device.Number)
			}
		})
		f.unsub = append(f.unsub, func() { d.RemoveListener(id) })
	}
	if m := f.deps.Mounts; m != nil {
		id := m.AddListener(func(e core.MountEvent) {
			if e.Mounted {
				f.MediaMounted(e.Slot)
			} else {
				f.MediaUnmounted(e.Slot)
			}
		})
		f.unsub = append(f.unsub, func() { m.RemoveListener(id) })
	}

	go f.run(ctx, f.done, f.results)

	if f.deps.Upstream != nil {
		for _, l := range f.deps.Upstream.Snapshot() {
			f.Handle(l)
		}
	}
	f.logger.Debug("finder started")
	return nil
}

// Stop unsubscribes, stops the worker, clears the hot cache and reports the
// loss of every main deck entry. Stopping a stopped finder does nothing.
func (f *Finder[T]) Stop() {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()
	if !f.running {
		return
	}
	for _, fn := range f.unsub {
		fn()
	}
	f.unsub = nil
	f.cancel()
	<-f.done
	f.running = false
	f.queue.Discard()

	f.mu.Lock()
	var lost []core.DeckReference
	for deck := range f.hot {
		if deck.IsMain() {
			lost = append(lost, deck)
		}
	}
	f.hot = make(map[core.DeckReference]entry[T])
	f.inflight = make(map[int]core.DataReference)
	f.mu.Unlock()
	f.wanted = make(map[int]Load)
	if f.cache != nil {
		f.cache.Purge()
	}
	for _, deck := range lost {
		f.notify(deck, nil)
	}
	f.logger.Debug("finder stopped")
}

// Running reports whether the finder has been started.
func (f *Finder[T]) Running() bool {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()
	return f.running
}

// Handle queues a load event. It never blocks; when the queue is full the
// event is dropped.
func (f *Finder[T]) Handle(l Load) {
	f.queue.Offer(event{kind: eventLoad, load: l})
}

// MediaMounted retries decks waiting on media in slot, whose archive or
// details may now be available.
func (f *Finder[T]) MediaMounted(slot core.SlotReference) {
	f.queue.Offer(event{kind: eventMounted, slot: slot})
}

// MediaUnmounted evicts every entry whose identity lives in slot.
func (f *Finder[T]) MediaUnmounted(slot core.SlotReference) {
	f.queue.Offer(event{kind: eventUnmounted, slot: slot})
}

// DeviceLost evicts every entry belonging to player.
func (f *Finder[T]) DeviceLost(player int) {
	f.queue.Offer(event{kind: eventDeviceLost, player: player})
}

// Dropped returns how many events the queue has dropped.
func (f *Finder[T]) Dropped() uint64 {
	return f.queue.Dropped()
}

// AddListener registers fn for main deck changes.
func (f *Finder[T]) AddListener(fn func(Update[T])) dispatch.Subscription {
	return f.listeners.Add(fn)
}

// RemoveListener unregisters a listener.
func (f *Finder[T]) RemoveListener(id dispatch.Subscription) {
	f.listeners.Remove(id)
}

// Latest returns the value for a player's main deck, or nil.
func (f *Finder[T]) Latest(player int) *T {
	return f.LatestAt(core.MainDeck(player))
}

// LatestAt returns the value held for a deck, or nil.
func (f *Finder[T]) LatestAt(deck core.DeckReference) *T {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.hot[deck].value
}

// Loaded returns a copy of the hot cache.
func (f *Finder[T]) Loaded() map[core.DeckReference]*T {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[core.DeckReference]*T, len(f.hot))
	for deck, e := range f.hot {
		out[deck] = e.value
	}
	return out
}

// InFlight reports whether a fetch is outstanding for player.
func (f *Finder[T]) InFlight(player int) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.inflight[player]
	return ok
}

// Cached returns the LRU entry for an identity, if caching is enabled.
func (f *Finder[T]) Cached(id core.DataReference) (*T, bool) {
	if f.cache == nil {
		return nil, false
	}
	return f.cache.Peek(id)
}

func (f *Finder[T]) run(ctx context.Context, done chan struct{}, results <-chan result[T]) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-f.queue.C():
			f.process(ctx, ev)
		case r := <-results:
			f.complete(ctx, r)
		}
	}
}

func (f *Finder[T]) process(ctx context.Context, ev event) {
	switch ev.kind {
	case eventLoad:
		f.wanted[ev.load.Player] = ev.load
		f.update(ctx, ev.load)
	case eventMounted:
		for _, l := range f.wanted {
			id, ok := f.kind.Identity(l)
			if ok && id.SlotReference() == ev.slot && f.LatestAt(core.MainDeck(l.Player)) == nil {
				f.update(ctx, l)
			}
		}
	case eventUnmounted:
		f.forget(func(player int, id core.DataReference) bool {
			return id.SlotReference() == ev.slot
		})
		f.evict(func(_ core.DeckReference, id core.DataReference) bool {
			return id.SlotReference() == ev.slot
		})
	case eventDeviceLost:
		f.forget(func(player int, id core.DataReference) bool {
			return player == ev.player || id.Player == ev.player
		})
		f.evict(func(deck core.DeckReference, id core.DataReference) bool {
			return deck.Player == ev.player || id.Player == ev.player
		})
	}
}

// forget drops wanted loads that match, so fetches still running for them are
// discarded by complete instead of reinstalling evicted entries.
func (f *Finder[T]) forget(match func(player int, id core.DataReference) bool) {
	for player, l := range f.wanted {
		id, _ := f.kind.Identity(l)
		if match(player, id) {
			delete(f.wanted, player)
		}
	}
}

// update is the load handler: it decides whether the hot cache already
// answers l and starts a fetch when it does not.
func (f *Finder[T]) update(ctx context.Context, l Load) {
	main := core.MainDeck(l.Player)
	id, ok := f.kind.Identity(l)
	if !ok {
		f.clear(main)
		return
	}

	f.mu.RLock()
	current, has := f.hot[main]
	var reuse *entry[T]
	if !has || current.id != id {
		for deck, e := range f.hot {
			if deck != main && e.id == id {
				reuse = &e
				break
			}
		}
	}
	_, busy := f.inflight[l.Player]
	f.mu.RUnlock()

	switch {
	case has && current.id == id:
		return
	case reuse != nil:
		f.logger.Debug("reusing cached attribute", "player", l.Player, "id", id.String())
		f.install(l, id, reuse.value)
		return
	case busy:
		return
	}

	f.mu.Lock()
	f.inflight[l.Player] = id
	f.mu.Unlock()
	f.clear(main)
	go f.fetchAsync(ctx, f.results, l, id)
}

// fetchAsync runs on its own goroutine so a slow player never stalls the worker.
func (f *Finder[T]) fetchAsync(ctx context.Context, results chan<- result[T], l Load, id core.DataReference) {
	v, err := f.fetch(ctx, l, id)
	select {
	case results <- result[T]{load: l, id: id, value: v, err: err}:
	case <-ctx.Done():
	}
}

func (f *Finder[T]) complete(ctx context.Context, r result[T]) {
	f.mu.Lock()
	delete(f.inflight, r.load.Player)
	f.mu.Unlock()

	if r.err != nil {
		f.logger.Debug("attribute not found", "player", r.load.Player, "id", r.id.String(), "error", r.err)
	}
	want, wanted := f.wanted[r.load.Player]
	wantID, ok := f.kind.Identity(want)
	if !wanted || !ok {
		return
	}
	if wantID == r.id {
		if r.value != nil {
			if f.cache != nil {
				f.cache.Add(r.id, r.value)
			}
			f.install(want, r.id, r.value)
		}
		return
	}
	// The deck moved on while the fetch ran.
	f.logger.Debug("discarding stale attribute", "player", r.load.Player, "id", r.id.String())
	f.update(ctx, want)
}

// install stores v for the main deck of l's player and for every hot cue of
// the track, then notifies listeners.
func (f *Finder[T]) install(l Load, id core.DataReference, v *T) {
	main := core.MainDeck(l.Player)
	f.mu.Lock()
	f.hot[main] = entry[T]{id: id, value: v}
	for _, cue := range f.hotCues(l, v) {
		f.hot[core.NewDeckReference(l.Player, cue)] = entry[T]{id: id, value: v}
	}
	f.mu.Unlock()
	f.notify(main, v)
}

func (f *Finder[T]) hotCues(l Load, v *T) []int {
	if f.kind.HotCues != nil {
		return f.kind.HotCues(l, v)
	}
	return l.Metadata.HotCues()
}

// clear removes the main deck entry of a player, notifying if there was one.
func (f *Finder[T]) clear(main core.DeckReference) {
	f.mu.Lock()
	_, had := f.hot[main]
	delete(f.hot, main)
	f.mu.Unlock()
	if had {
		f.notify(main, nil)
	}
}

func (f *Finder[T]) evict(match func(core.DeckReference, core.DataReference) bool) {
	var lost []core.DeckReference
	f.mu.Lock()
	for deck, e := range f.hot {
		if match(deck, e.id) {
			delete(f.hot, deck)
			if deck.IsMain() {
				lost = append(lost, deck)
			}
		}
	}
	f.mu.Unlock()
	if f.cache != nil {
		for _, id := range f.cache.Keys() {
			if match(core.DeckReference{}, id) {
				f.cache.Remove(id)
			}
		}
	}
	for _, deck := range lost {
		f.notify(deck, nil)
	}
}

func (f *Finder[T]) notify(deck core.DeckReference, v *T) {
	if f.listeners.Len() == 0 {
		return
	}
	f.listeners.Deliver(Update[T]{Deck: deck, Value: v})
}

// fetch resolves id through the LRU and the provider chain. Concurrent
// fetches of the same identity share one lookup. Results enter the LRU in
// complete, on the worker goroutine.
func (f *Finder[T]) fetch(ctx context.Context, l Load, id core.DataReference) (*T, error) {
	if f.cache != nil {
		if v, ok := f.cache.Get(id); ok {
			return v, nil
		}
	}
	v, err, _ := f.group.Do(id.String(), func() (any, error) {
		return f.resolve(ctx, l, id)
	})
	if err != nil {
		return nil, err
	}
	t, _ := v.(*T)
	if t == nil {
		return nil, fmt.Errorf("%s %s: %w", f.kind.Name, id, dlerrors.ErrUnavailable)
	}
	return t, nil
}

// resolve tries registered providers, then the attached archive, then the
// player itself.
func (f *Finder[T]) resolve(ctx context.Context, l Load, id core.DataReference) (*T, error) {
	slot := id.SlotReference()
	var media *core.MediaDetails
	if f.deps.Mounts != nil {
		media = f.deps.Mounts.Details(slot)
	}

	if f.deps.Providers != nil && f.kind.FromProvider != nil {
		for _, p := range f.deps.Providers.For(media) {
			v, err := f.kind.FromProvider(ctx, p, media, id)
			if err != nil {
				f.logger.Debug("provider failed", "id", id.String(), "error", err)
				continue
			}
			if v != nil {
				return v, nil
			}
		}
	}

	if f.deps.Archives != nil && f.kind.FromProvider != nil {
		if r := f.deps.Archives.For(slot); r != nil {
			v, err := f.kind.FromProvider(ctx, r, media, id)
			if err != nil {
				f.logger.Warn("archive read failed", "slot", slot.String(), "id", id.String(), "error", err)
			} else if v != nil {
				return v, nil
			}
		}
	}

	if f.cfg.Passive && slot.Slot != core.SlotCollection {
		return nil, fmt.Errorf("%s %s: %w", f.kind.Name, id, dlerrors.ErrPassive)
	}
	if f.deps.Sessions == nil || f.kind.FromNetwork == nil {
		return nil, fmt.Errorf("%s %s: %w", f.kind.Name, id, dlerrors.ErrUnavailable)
	}
	return f.kind.FromNetwork(ctx, f.deps.Sessions, id, l)
}
