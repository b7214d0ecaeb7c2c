// Package archive reads and writes metadata archives: ZIP files holding the
// database responses for every track on a piece of media, so attributes can
// be found without querying the player.
package archive

import (
	"fmt"
	"strconv"
	"strings"

	dlerrors "github.com/tessro/decklink/internal/errors"
)

// FormatID prefixes the version entry of every archive this package writes.
const FormatID = "DLMetaArchive-1"

const root = "decklink-archive/"

// Entry names inside the archive.
const (
	versionEntry  = root + "version"
	detailsEntry  = root + "mediaDetails"
	metadataDir   = root + "metadata/"
	artworkDir    = root + "artwork/"
	beatGridDir   = root + "beatGrid/"
	cueListDir    = root + "cueList/"
	wavePrevDir   = root + "wavePrev/"
	waveformDir   = root + "waveform/"
	structureDir  = root + "songStructure/"
	artworkSuffix = ".jpg"
)

func entry(dir string, id int) string {
	return dir + strconv.Itoa(id)
}

func artworkEntry(id int) string {
	return artworkDir + strconv.Itoa(id) + artworkSuffix
}

func formatVersion(playlistID, trackCount int) string {
	return fmt.Sprintf("%s:%d:%d", FormatID, playlistID, trackCount)
}

// parseVersion validates a version entry and returns the playlist id and
// track count it records.
func parseVersion(v string) (playlistID, trackCount int, err error) {
	if !strings.HasPrefix(v, FormatID+":") {
		return 0, 0, fmt.Errorf("%w: unrecognized version %q", dlerrors.ErrFormat, v)
	}
	parts := strings.Split(strings.TrimSpace(v), ":")
	if len(parts) != 3 {
		return 0, 0, fmt.Errorf("%w: malformed version %q", dlerrors.ErrFormat, v)
	}
	if playlistID, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, fmt.Errorf("%w: playlist id: %v", dlerrors.ErrFormat, err)
	}
	if trackCount, err = strconv.Atoi(parts[2]); err != nil {
		return 0, 0, fmt.Errorf("%w: track count: %v", dlerrors.ErrFormat, err)
	}
	return playlistID, trackCount, nil
}
