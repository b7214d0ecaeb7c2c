// Package session builds and owns every collaborator needed to follow the
// players on a network: discovery, packet listeners, database sessions,
// attached archives, one finder per attribute kind and the time finder.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/tessro/decklink/internal/archive"
	"github.com/tessro/decklink/internal/beatgrid"
	"github.com/tessro/decklink/internal/config"
	"github.com/tessro/decklink/internal/core"
	"github.com/tessro/decklink/internal/dbserver"
	"github.com/tessro/decklink/internal/dispatch"
	dlerrors "github.com/tessro/decklink/internal/errors"
	"github.com/tessro/decklink/internal/finder"
	"github.com/tessro/decklink/internal/prolink"
	"github.com/tessro/decklink/internal/provider"
	"github.com/tessro/decklink/internal/songstructure"
	"github.com/tessro/decklink/internal/timefinder"
)

// Options configures a Session.
type Options struct {
	Config *config.Config
	// Announce joins the network as a virtual player so players answer
	// database queries. Without it only rekordbox collections are queried.
	Announce bool
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Session is the top-level owner of a running client.
type Session struct {
	cfg    *config.Config
	clock  clock.Clock
	logger *slog.Logger

	Discovery *prolink.Discovery
	Packets   *prolink.Listener
	Mounts    *prolink.MountTracker
	Announcer *prolink.Announcer // nil unless announcing
	Databases *dbserver.Manager
	Providers *provider.Registry
	Archives  *archive.Attachments
	// AutoAttach is nil unless an auto-attach directory is configured.
	AutoAttach *archive.AutoAttacher

	Loads        *finder.StatusLoads
	Metadata     *finder.Finder[core.TrackMetadata]
	Art          *finder.Finder[core.AlbumArt]
	BeatGrids    *finder.Finder[beatgrid.BeatGrid]
	WavePreviews *finder.Finder[core.WaveformPreview]
	WaveDetails  *finder.Finder[core.WaveformDetail]
	Structures   *finder.Finder[songstructure.Structure]
	Time         *timefinder.TimeFinder

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	unsub   []func()
}

type startStopper interface {
	Start() error
	Stop()
}

// New builds a stopped session.
func New(opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		cfg:       cfg,
		clock:     clk,
		logger:    logger,
		Discovery: prolink.NewDiscovery(cfg.Network.Timeout(), clk, logger.With("component", "discovery")),
		Packets:   prolink.NewListener(clk, logger.With("component", "listener")),
		Mounts:    prolink.NewMountTracker(logger.With("component", "mounts")),
		Providers: provider.NewRegistry(),
		Archives:  archive.NewAttachments(logger.With("component", "archives")),
		Loads:     finder.NewStatusLoads(logger),
	}

	if opts.Announce {
		a, err := prolink.NewAnnouncer(cfg.Network.Interface, cfg.Network.DeviceName,
			cfg.Network.DeviceNumber, cfg.Network.AnnounceEvery(), clk, logger.With("component", "announcer"))
		if err != nil {
			return nil, dlerrors.WithSuggestion(fmt.Errorf("join network: %w", err),
				"set [network] interface to the interface connected to the players")
		}
		s.Announcer = a
		s.Mounts.QueryDetails = s.queryDetails
	}
	s.Databases = dbserver.NewManager(s.Discovery, cfg.Network.DeviceNumber, cfg.Finder.Timeout(),
		dbserver.WithLogger(logger.With("component", "dbserver")))

	if dir := cfg.Archive.AutoAttachDir; dir != "" {
		s.AutoAttach = archive.NewAutoAttacher(dir, s.Archives, logger.With("component", "autoattach"))
	}

	fcfg := finder.Config{
		QueueSize: cfg.Finder.QueueSize,
		Passive:   cfg.Finder.Passive || !opts.Announce,
		Logger:    logger,
	}
	deps := finder.Deps{
		Upstream:  s.Loads,
		Devices:   s.Discovery,
		Mounts:    s.Mounts,
		Providers: s.Providers,
		Archives:  s.Archives,
		Sessions:  s.Databases,
	}
	s.Metadata = finder.New(finder.MetadataKind(), fcfg, deps)

	deps.Upstream = finder.NewMetadataLoads(s.Metadata)
	artCfg := fcfg
	artCfg.CacheSize = cfg.Finder.ArtCacheSize
	s.Art = finder.New(finder.ArtKind(), artCfg, deps)
	s.BeatGrids = finder.New(finder.BeatGridKind(logger.With("component", "beatgrid")), fcfg, deps)
	s.WavePreviews = finder.New(finder.WaveformPreviewKind(), fcfg, deps)
	s.WaveDetails = finder.New(finder.WaveformDetailKind(), fcfg, deps)
	s.Structures = finder.New(finder.StructureKind(), fcfg, deps)

	s.Time = timefinder.New(s.Packets, s.BeatGrids, s.Metadata, clk, logger.With("component", "timefinder"))
	return s, nil
}

// Config returns the configuration the session was built with.
func (s *Session) Config() *config.Config { return s.cfg }

func (s *Session) queryDetails(slot core.SlotReference) {
	ip, ok := s.Discovery.Address(slot.Player)
	if !ok || s.Announcer == nil {
		return
	}
	go func() {
		if err := s.Announcer.QueryMedia(slot, ip); err != nil {
			s.logger.Warn("media query failed", "slot", slot.String(), "error", err)
		}
	}()
}

// finders returns every component with a Start/Stop lifecycle in start order.
func (s *Session) finders() []startStopper {
	return []startStopper{s.Metadata, s.Art, s.BeatGrids, s.WavePreviews, s.WaveDetails, s.Structures, s.Time}
}

// Start opens the sockets, wires the event sources together, attaches the
// configured archives and starts every finder. It fails if the session is
// already running.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("session: %w", dlerrors.ErrInvalidState)
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	if err := s.Discovery.Start(gctx); err != nil {
		cancel()
		return err
	}
	if err := s.Packets.Start(gctx); err != nil {
		s.Discovery.Stop()
		cancel()
		return err
	}

	s.subscribe()

	var attachErrs []error
	for _, a := range s.cfg.Archive.Attach {
		slot, err := core.ParseSlot(a.Slot)
		if err == nil {
			err = s.Archives.Attach(core.NewSlotReference(a.Player, slot), a.Path)
		}
		if err != nil {
			attachErrs = append(attachErrs, fmt.Errorf("attach %s: %w", a.Path, err))
		}
	}
	if err := errors.Join(attachErrs...); err != nil {
		s.logger.Warn("some archives were not attached", "error", err)
	}

	if s.AutoAttach != nil {
		if err := s.AutoAttach.Start(); err != nil {
			s.logger.Warn("auto-attach disabled", "dir", s.cfg.Archive.AutoAttachDir, "error", err)
		}
	}

	s.running = true
	s.cancel = cancel
	s.group = g
	for _, f := range s.finders() {
		if err := f.Start(); err != nil {
			s.stopLocked()
			return err
		}
	}

	if s.Announcer != nil {
		g.Go(func() error { return s.Announcer.Run(gctx) })
	}
	s.logger.Info("session started", "announce", s.Announcer != nil, "passive", s.cfg.Finder.Passive)
	return nil
}

func (s *Session) subscribe() {
	add := func(fn func()) { s.unsub = append(s.unsub, fn) }
	p := s.Packets

	for _, id := range []dispatch.Subscription{
		p.OnStatus(s.Mounts.OnStatus),
		p.OnStatus(s.Loads.OnStatus),
		p.OnMediaDetails(s.Mounts.OnMediaDetails),
	} {
		add(func() { p.Remove(id) })
	}

	d := s.Discovery
	for _, fn := range []func(core.DeviceEvent){
		s.Mounts.OnDevice,
		s.Loads.OnDevice,
		func(e core.DeviceEvent) {
			if e.Lost {
				s.Databases.Forget(e.Device.Number)
			}
		},
	} {
		id := d.AddListener(fn)
		add(func() { d.RemoveListener(id) })
	}

	m := s.Mounts
	mountFns := []func(core.MountEvent){s.Archives.OnMount}
	if s.AutoAttach != nil {
		mountFns = append(mountFns, s.AutoAttach.OnMount)
	}
	for _, fn := range mountFns {
		id := m.AddListener(fn)
		add(func() { m.RemoveListener(id) })
	}
}

// Stop stops the finders in reverse order, detaches archives and closes
// the sockets. Stopping a stopped session does nothing.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Session) stopLocked() {
	if !s.running {
		return
	}
	all := s.finders()
	for i := len(all) - 1; i >= 0; i-- {
		all[i].Stop()
	}
	for i := len(s.unsub) - 1; i >= 0; i-- {
		s.unsub[i]()
	}
	s.unsub = nil
	if s.AutoAttach != nil {
		s.AutoAttach.Stop()
	}
	s.Archives.Close()
	s.Packets.Stop()
	s.Discovery.Stop()
	s.cancel()
	if err := s.group.Wait(); err != nil {
		s.logger.Warn("announcer stopped", "error", err)
	}
	s.running = false
	s.logger.Info("session stopped")
}

// Running reports whether the session is started.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run starts the session, blocks until ctx is done and stops it.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// DatabaseFor returns a session runner for archive creation and ad hoc
// queries against one player. The session must be running.
func (s *Session) DatabaseFor(ctx context.Context, player int, fn func(*dbserver.Client) error) error {
	if !s.Running() {
		return dlerrors.WithSuggestion(fmt.Errorf("database for player %d: %w", player, dlerrors.ErrNotRunning),
			"start the session before querying players")
	}
	if _, ok := s.Discovery.Device(player); !ok {
		return dlerrors.WithSuggestion(fmt.Errorf("player %d: %w", player, dlerrors.ErrDeviceNotFound),
			"run 'decklink devices' to list the players on the network")
	}
	return s.Databases.Do(ctx, player, fn)
}
