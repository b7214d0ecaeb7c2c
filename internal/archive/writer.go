package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/klauspost/compress/zip"

	"github.com/tessro/decklink/internal/core"
	"github.com/tessro/decklink/internal/dbserver"
	dlerrors "github.com/tessro/decklink/internal/errors"
)

// Progress is called after every track with the number of tracks handled so
// far, the total, and the metadata of the track just handled (nil when it was
// skipped). Returning false cancels the archive.
type Progress func(done, total int, md *core.TrackMetadata) bool

// CreateOptions configure Create.
type CreateOptions struct {
	// PlaylistID is recorded in the version entry. Zero means the whole media.
	PlaylistID int
	// Media is stored so the archive can later be matched to mounted media.
	Media    *core.MediaDetails
	Progress Progress
	Logger   *slog.Logger
}

type writer struct {
	zw     *zip.Writer
	logger *slog.Logger
	art    map[int]bool
	err    error
}

// put writes one entry. After the first failure every later put is skipped
// and the error is kept in w.err.
func (w *writer) put(name string, data []byte) {
	if w.err != nil {
		return
	}
	var f io.Writer
	f, w.err = w.zw.Create(name)
	if w.err != nil {
		return
	}
	_, w.err = f.Write(data)
}

func (w *writer) putMessage(name string, m *dbserver.Message) {
	b, err := m.Encode()
	if err != nil {
		w.logger.Debug("cannot encode response", "entry", name, "error", err)
		return
	}
	w.put(name, b)
}

// Create writes an archive of trackIDs read from src to path, in order. A
// track whose metadata cannot be fetched is logged and skipped, and its error
// is collected in the result, whose Data is the number of tracks written.
// When ctx is canceled or opts.Progress returns false the partial file is
// removed and the returned error wraps errors.ErrCanceled.
func Create(ctx context.Context, path string, src Source, trackIDs []int, opts CreateOptions) (*dlerrors.PartialResult[int], error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	w := &writer{zw: zip.NewWriter(f), logger: logger, art: make(map[int]bool)}
	abort := func(cause error) (*dlerrors.PartialResult[int], error) {
		_ = w.zw.Close()
		_ = f.Close()
		if err := os.Remove(path); err != nil {
			logger.Warn("cannot remove partial archive", "path", path, "error", err)
		}
		return nil, cause
	}

	if opts.Media != nil && len(opts.Media.Raw) > 0 {
		w.put(detailsEntry, opts.Media.Raw)
	}

	res := &dlerrors.PartialResult[int]{}
	for i, id := range trackIDs {
		if err := ctx.Err(); err != nil {
			return abort(fmt.Errorf("%w: %v", dlerrors.ErrCanceled, err))
		}
		md, err := w.addTrack(ctx, src, id)
		if w.err != nil {
			return abort(fmt.Errorf("write archive: %w", w.err))
		}
		if err != nil {
			logger.Warn("skipping track", "id", id, "error", err)
			res.AddError(fmt.Errorf("track %d: %w", id, err))
		} else {
			res.Data++
		}
		if opts.Progress != nil && !opts.Progress(i+1, len(trackIDs), md) {
			logger.Info("archive creation canceled", "path", path, "done", i+1, "total", len(trackIDs))
			return abort(dlerrors.ErrCanceled)
		}
	}

	w.put(versionEntry, []byte(formatVersion(opts.PlaylistID, res.Data)))
	if w.err != nil {
		return abort(fmt.Errorf("write archive: %w", w.err))
	}
	if err := w.zw.Close(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("finish archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return res, nil
}

func (w *writer) addTrack(ctx context.Context, src Source, id int) (*core.TrackMetadata, error) {
	md, err := src.TrackMetadata(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := dbserver.EncodeMessages(md.Items)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	w.put(entry(metadataDir, id), items)
	if md.CueList != nil {
		w.putMessage(entry(cueListDir, id), md.CueList)
	}

	if art := md.Metadata.ArtworkID; art != 0 && !w.art[art] {
		img, err := src.AlbumArt(ctx, art)
		if err != nil {
			w.logger.Debug("artwork not archived", "id", id, "artwork", art, "error", err)
		} else {
			w.put(artworkEntry(art), img)
			w.art[art] = true
		}
	}

	if b, err := src.BeatGrid(ctx, id); err == nil {
		w.put(entry(beatGridDir, id), b)
	} else {
		w.logger.Debug("beat grid not archived", "id", id, "error", err)
	}
	if m, err := src.WaveformPreview(ctx, id); err == nil {
		w.putMessage(entry(wavePrevDir, id), m)
	} else {
		w.logger.Debug("waveform preview not archived", "id", id, "error", err)
	}
	if m, err := src.WaveformDetail(ctx, id); err == nil {
		w.putMessage(entry(waveformDir, id), m)
	} else {
		w.logger.Debug("waveform detail not archived", "id", id, "error", err)
	}
	if b, err := src.SongStructure(ctx, id); err == nil {
		w.put(entry(structureDir, id), b)
	} else {
		w.logger.Debug("song structure not archived", "id", id, "error", err)
	}
	return md.Metadata, nil
}
