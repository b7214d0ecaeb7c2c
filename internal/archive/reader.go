package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/tessro/decklink/internal/beatgrid"
	"github.com/tessro/decklink/internal/core"
	"github.com/tessro/decklink/internal/dbserver"
	dlerrors "github.com/tessro/decklink/internal/errors"
	"github.com/tessro/decklink/internal/prolink"
	"github.com/tessro/decklink/internal/songstructure"
)

// Reader gives read-only access to an archive. It is safe for concurrent use.
type Reader struct {
	path       string
	zr         *zip.ReadCloser
	files      map[string]*zip.File
	playlistID int
	trackCount int
	details    *core.MediaDetails
	logger     *slog.Logger
}

// Open opens the archive at path. Files without a valid version entry are
// rejected with an error wrapping errors.ErrFormat.
func Open(path string) (*Reader, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", dlerrors.ErrFormat, path, err)
	}
	r := &Reader{path: path, zr: zr, files: make(map[string]*zip.File, len(zr.File)), logger: slog.Default()}
	for _, f := range zr.File {
		r.files[f.Name] = f
	}

	version, ok, err := r.read(versionEntry)
	if err == nil && !ok {
		err = fmt.Errorf("%w: %s has no version entry", dlerrors.ErrFormat, path)
	}
	if err == nil {
		r.playlistID, r.trackCount, err = parseVersion(string(version))
	}
	if err != nil {
		_ = zr.Close()
		return nil, err
	}

	// Archives written without media details can still be attached by hand.
	if raw, ok, err := r.read(detailsEntry); err == nil && ok {
		if d, err := prolink.ParseMediaDetails(raw); err == nil {
			r.details = d
		}
	}
	return r, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.zr.Close()
}

// Path returns the file the archive was opened from.
func (r *Reader) Path() string { return r.path }

// PlaylistID returns the captured playlist, or 0 for the whole media.
func (r *Reader) PlaylistID() int { return r.playlistID }

// TrackCount returns the number of tracks recorded in the version entry.
func (r *Reader) TrackCount() int { return r.trackCount }

// MediaDetails returns the details of the media the archive was built from,
// or nil for archives that did not record them.
func (r *Reader) MediaDetails() *core.MediaDetails { return r.details }

// TrackIDs returns the ids of every track with stored metadata, ascending.
func (r *Reader) TrackIDs() []int {
	return r.ids(metadataDir, "")
}

// ArtworkIDs returns the ids of every stored artwork image, ascending.
func (r *Reader) ArtworkIDs() []int {
	return r.ids(artworkDir, artworkSuffix)
}

func (r *Reader) ids(dir, suffix string) []int {
	var out []int
	for name := range r.files {
		rest, ok := strings.CutPrefix(name, dir)
		if !ok {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSuffix(rest, suffix))
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// read returns the contents of an entry and whether it exists.
func (r *Reader) read(name string) ([]byte, bool, error) {
	f, ok := r.files[name]
	if !ok {
		return nil, false, nil
	}
	rc, err := f.Open()
	if err != nil {
		return nil, true, fmt.Errorf("open %s: %w", name, err)
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, true, fmt.Errorf("read %s: %w", name, err)
	}
	return b, true, nil
}

func (r *Reader) readMessage(name string) (*dbserver.Message, error) {
	b, ok, err := r.read(name)
	if err != nil || !ok {
		return nil, err
	}
	return dbserver.ReadMessage(bytes.NewReader(b))
}

// SupportedMedia returns the hash key of the media the archive was built from.
func (r *Reader) SupportedMedia() []string {
	if r.details == nil {
		return nil
	}
	return []string{r.details.HashKey()}
}

// TrackMetadata returns the stored metadata of a track, with its cue list.
func (r *Reader) TrackMetadata(ctx context.Context, media *core.MediaDetails, track core.DataReference) (*core.TrackMetadata, error) {
	b, ok, err := r.read(entry(metadataDir, track.ID))
	if err != nil || !ok {
		return nil, err
	}
	items, err := dbserver.ReadMessages(b)
	if err != nil {
		return nil, fmt.Errorf("metadata %d: %w", track.ID, err)
	}
	md := dbserver.TrackMetadataFromItems(track, core.TrackTypeRekordbox, items)
	md.CueList, err = r.CueList(ctx, media, track)
	if err != nil {
		return nil, err
	}
	return md, nil
}

// AlbumArt returns a stored artwork image.
func (r *Reader) AlbumArt(_ context.Context, _ *core.MediaDetails, art core.DataReference) (*core.AlbumArt, error) {
	b, ok, err := r.read(artworkEntry(art.ID))
	if err != nil || !ok {
		return nil, err
	}
	return &core.AlbumArt{Art: art, Image: b}, nil
}

// BeatGrid returns the stored beat grid of a track.
func (r *Reader) BeatGrid(_ context.Context, _ *core.MediaDetails, track core.DataReference) (*beatgrid.BeatGrid, error) {
	b, ok, err := r.read(entry(beatGridDir, track.ID))
	if err != nil || !ok {
		return nil, err
	}
	return beatgrid.FromPayload(track, b, beatgrid.WithLogger(r.logger))
}

// CueList returns the stored cue list of a track.
func (r *Reader) CueList(_ context.Context, _ *core.MediaDetails, track core.DataReference) (*core.CueList, error) {
	m, err := r.readMessage(entry(cueListDir, track.ID))
	if err != nil || m == nil {
		return nil, err
	}
	return dbserver.CueListFromMessage(m)
}

// WaveformPreview returns the stored preview waveform of a track.
func (r *Reader) WaveformPreview(_ context.Context, _ *core.MediaDetails, track core.DataReference) (*core.WaveformPreview, error) {
	m, err := r.readMessage(entry(wavePrevDir, track.ID))
	if err != nil || m == nil {
		return nil, err
	}
	return dbserver.WaveformPreviewFromMessage(track, m), nil
}

// WaveformDetail returns the stored scrolling waveform of a track.
func (r *Reader) WaveformDetail(_ context.Context, _ *core.MediaDetails, track core.DataReference) (*core.WaveformDetail, error) {
	m, err := r.readMessage(entry(waveformDir, track.ID))
	if err != nil || m == nil {
		return nil, err
	}
	return dbserver.WaveformDetailFromMessage(track, m), nil
}

// SongStructure returns the stored phrase analysis of a track.
func (r *Reader) SongStructure(_ context.Context, _ *core.MediaDetails, track core.DataReference) (*songstructure.Structure, error) {
	b, ok, err := r.read(entry(structureDir, track.ID))
	if err != nil || !ok {
		return nil, err
	}
	return songstructure.Parse(track, b)
}
