package archive

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/tessro/decklink/internal/core"
)

// AutoAttacher attaches archives to newly mounted media whose details match
// the details stored in the archive. Candidates come from a watched
// directory and from files added explicitly.
type AutoAttacher struct {
	dir         string
	attachments *Attachments
	logger      *slog.Logger

	mu         sync.Mutex
	candidates map[string]string // path -> media hash key

	watcher *fsnotify.Watcher
	closed  chan struct{}
	once    sync.Once
	pending  sync.WaitGroup
	attachMu sync.Mutex
}

// NewAutoAttacher creates an attacher feeding attachments. dir may be empty.
func NewAutoAttacher(dir string, attachments *Attachments, logger *slog.Logger) *AutoAttacher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoAttacher{
		dir:         dir,
		attachments: attachments,
		logger:      logger,
		candidates:  make(map[string]string),
		closed:      make(chan struct{}),
	}
}

func isArchiveFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".zip" || ext == ".dlma"
}

// AddFile registers an archive as a candidate. Archives that recorded no
// media details cannot be matched and are rejected.
func (a *AutoAttacher) AddFile(path string) error {
	r, err := Open(path)
	if err != nil {
		return err
	}
	details := r.MediaDetails()
	_ = r.Close()
	if details == nil {
		return fmt.Errorf("%s: archive has no media details to match", path)
	}
	a.mu.Lock()
	a.candidates[path] = details.HashKey()
	a.mu.Unlock()
	a.logger.Debug("archive candidate", "path", path, "media", details.Name)
	return nil
}

// RemoveFile forgets a candidate.
func (a *AutoAttacher) RemoveFile(path string) {
	a.mu.Lock()
	delete(a.candidates, path)
	a.mu.Unlock()
}

// Candidates returns the registered archive paths, sorted.
func (a *AutoAttacher) Candidates() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.candidates))
	for p := range a.candidates {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// match returns the first candidate, in path order, for the media key.
func (a *AutoAttacher) match(key string) string {
	for _, p := range a.Candidates() {
		a.mu.Lock()
		k := a.candidates[p]
		a.mu.Unlock()
		if k == key {
			return p
		}
	}
	return ""
}

// Start scans the directory and watches it for archives being added or removed.
func (a *AutoAttacher) Start() error {
	if a.dir == "" {
		return nil
	}
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", a.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !isArchiveFile(e.Name()) {
			continue
		}
		path := filepath.Join(a.dir, e.Name())
		if err := a.AddFile(path); err != nil {
			a.logger.Warn("ignoring archive", "path", path, "error", err)
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch %s: %w", a.dir, err)
	}
	if err := w.Add(a.dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", a.dir, err)
	}
	a.watcher = w
	go a.watchLoop()
	return nil
}

// Stop ends the directory watch and waits for attaches in progress.
func (a *AutoAttacher) Stop() {
	a.once.Do(func() {
		close(a.closed)
		if a.watcher != nil {
			_ = a.watcher.Close()
		}
	})
	a.pending.Wait()
}

func (a *AutoAttacher) watchLoop() {
	for {
		select {
		case <-a.closed:
			return
		case event, ok := <-a.watcher.Events:
			if !ok {
				return
			}
			if !isArchiveFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if err := a.AddFile(event.Name); err != nil {
					a.logger.Debug("archive not usable yet", "path", event.Name, "error", err)
				}
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				a.RemoveFile(event.Name)
			}
		case err, ok := <-a.watcher.Errors:
			if !ok {
				return
			}
			a.logger.Warn("archive watcher error", "error", err)
		}
	}
}

// OnMount attaches a matching archive once the details of newly mounted
// media are known. Slots that already have an archive are left alone. The
// archive is opened on its own goroutine since mount events arrive on the
// packet receive path.
func (a *AutoAttacher) OnMount(e core.MountEvent) {
	if !e.Mounted || e.Details == nil || a.attachments.For(e.Slot) != nil {
		return
	}
	path := a.match(e.Details.HashKey())
	if path == "" {
		return
	}
	select {
	case <-a.closed:
		return
	default:
	}
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		a.attach(e.Slot, path)
	}()
}

func (a *AutoAttacher) attach(slot core.SlotReference, path string) {
	a.attachMu.Lock()
	defer a.attachMu.Unlock()
	if a.attachments.For(slot) != nil {
		return
	}
	if err := a.attachments.Attach(slot, path); err != nil {
		a.logger.Warn("auto-attach failed", "slot", slot.String(), "path", path, "error", err)
		return
	}
	a.logger.Info("auto-attached archive", "slot", slot.String(), "path", path)
}
