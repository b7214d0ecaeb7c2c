package archive

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/tessro/decklink/internal/core"
)

// Attachments maps slots to the archives standing in for their media.
type Attachments struct {
	logger *slog.Logger

	mu      sync.RWMutex
	readers map[core.SlotReference]*Reader
}

// NewAttachments creates an empty attachment table.
func NewAttachments(logger *slog.Logger) *Attachments {
	if logger == nil {
		logger = slog.Default()
	}
	return &Attachments{logger: logger, readers: make(map[core.SlotReference]*Reader)}
}

// Attach opens the archive at path and attaches it to slot, replacing any
// archive already attached there.
func (a *Attachments) Attach(slot core.SlotReference, path string) error {
	r, err := Open(path)
	if err != nil {
		return fmt.Errorf("attach %s to %s: %w", path, slot, err)
	}
	a.AttachReader(slot, r)
	return nil
}

// AttachReader attaches an already open archive. The table takes ownership
// and the reader logs through the table's logger from then on.
func (a *Attachments) AttachReader(slot core.SlotReference, r *Reader) {
	r.logger = a.logger.With("slot", slot.String())
	a.mu.Lock()
	old := a.readers[slot]
	a.readers[slot] = r
	a.mu.Unlock()
	if old != nil && old != r {
		_ = old.Close()
	}
	a.logger.Info("archive attached", "slot", slot.String(), "path", r.Path())
}

// Detach closes and removes the archive attached to slot, if any.
func (a *Attachments) Detach(slot core.SlotReference) {
	a.mu.Lock()
	r := a.readers[slot]
	delete(a.readers, slot)
	a.mu.Unlock()
	if r != nil {
		_ = r.Close()
		a.logger.Info("archive detached", "slot", slot.String(), "path", r.Path())
	}
}

// For returns the archive attached to slot, or nil.
func (a *Attachments) For(slot core.SlotReference) *Reader {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.readers[slot]
}

// Slots returns every slot with an attached archive.
func (a *Attachments) Slots() []core.SlotReference {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]core.SlotReference, 0, len(a.readers))
	for s := range a.readers {
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

// OnMount detaches the archive of a slot whose media was removed.
func (a *Attachments) OnMount(e core.MountEvent) {
	if !e.Mounted {
		a.Detach(e.Slot)
	}
}

// Close detaches everything.
func (a *Attachments) Close() {
	for _, s := range a.Slots() {
		a.Detach(s)
	}
}
