package prolink

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/tessro/decklink/internal/core"
	"github.com/tessro/decklink/internal/dispatch"
)

// MountTracker derives media mount and unmount events from player status and
// remembers the details reported for each mounted slot.
type MountTracker struct {
	logger *slog.Logger

	// QueryDetails, when set, is called for each newly mounted slot so the
	// caller can ask the player to describe its media.
	QueryDetails func(core.SlotReference)

	mu      sync.RWMutex
	mounted map[core.SlotReference]*core.MediaDetails

	listeners *dispatch.Listeners[core.MountEvent]
}

// NewMountTracker creates an empty tracker.
func NewMountTracker(logger *slog.Logger) *MountTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &MountTracker{
		logger:    logger,
		mounted:   make(map[core.SlotReference]*core.MediaDetails),
		listeners: dispatch.NewListeners[core.MountEvent]("mounts", logger),
	}
}

// OnStatus updates the USB and SD slot state of the reporting player.
func (m *MountTracker) OnStatus(s *core.CdjStatus) {
	m.set(core.NewSlotReference(s.Player, core.SlotUSB), s.USBLoaded)
	m.set(core.NewSlotReference(s.Player, core.SlotSD), s.SDLoaded)
}

// OnDevice mounts the collection of rekordbox hosts and unmounts every slot
// of a device that left.
func (m *MountTracker) OnDevice(e core.DeviceEvent) {
	if e.Lost {
		for _, slot := range m.Mounted() {
			if slot.Player == e.Device.Number {
				m.set(slot, false)
			}
		}
		return
	}
	if e.Device.IsCollection() {
		m.set(core.NewSlotReference(e.Device.Number, core.SlotCollection), true)
	}
}

// OnMediaDetails records details for a mounted slot and re-announces the
// mount so listeners can match on them.
func (m *MountTracker) OnMediaDetails(d *core.MediaDetails) {
	m.mu.Lock()
	_, ok := m.mounted[d.Slot]
	if ok {
		m.mounted[d.Slot] = d
	}
	m.mu.Unlock()
	if !ok {
		m.logger.Debug("media details for unmounted slot", "slot", d.Slot.String())
		return
	}
	m.listeners.Deliver(core.MountEvent{Slot: d.Slot, Mounted: true, Details: d})
}

func (m *MountTracker) set(slot core.SlotReference, loaded bool) {
	m.mu.Lock()
	_, was := m.mounted[slot]
	switch {
	case loaded && !was:
		m.mounted[slot] = nil
	case !loaded && was:
		delete(m.mounted, slot)
	}
	m.mu.Unlock()

	if loaded == was {
		return
	}
	m.logger.Info("media changed", "slot", slot.String(), "mounted", loaded)
	m.listeners.Deliver(core.MountEvent{Slot: slot, Mounted: loaded})
	if loaded && m.QueryDetails != nil && slot.Slot != core.SlotCollection {
		m.QueryDetails(slot)
	}
}

// Mounted returns the slots that currently hold media.
func (m *MountTracker) Mounted() []core.SlotReference {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.SlotReference, 0, len(m.mounted))
	for s := range m.mounted {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Player != out[j].Player {
			return out[i].Player < out[j].Player
		}
		return out[i].Slot < out[j].Slot
	})
	return out
}

// IsMounted reports whether a slot holds media.
func (m *MountTracker) IsMounted(slot core.SlotReference) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.mounted[slot]
	return ok
}

// Details returns the media details known for a slot, or nil.
func (m *MountTracker) Details(slot core.SlotReference) *core.MediaDetails {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mounted[slot]
}

// AddListener registers fn for mount events.
func (m *MountTracker) AddListener(fn func(core.MountEvent)) dispatch.Subscription {
	return m.listeners.Add(fn)
}

// RemoveListener unregisters a mount listener.
func (m *MountTracker) RemoveListener(id dispatch.Subscription) {
	m.listeners.Remove(id)
}
