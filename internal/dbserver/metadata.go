package dbserver

import (
	"log/slog"

	"github.com/tessro/decklink/internal/core"
)

// TrackMetadataFromItems builds track metadata from the rendered menu items
// of a metadata request. Unknown item types are ignored.
func TrackMetadataFromItems(track core.DataReference, trackType core.TrackType, items []*Message) *core.TrackMetadata {
	md := &core.TrackMetadata{Track: track, TrackType: trackType}
	for _, m := range items {
		if m.Type != MenuItem {
			continue
		}
		it, err := ParseItem(m)
		if err != nil {
			slog.Debug("skipping malformed menu item", "track", track.String(), "error", err)
			continue
		}
		switch {
		case it.Type == ItemTitle:
			md.Title = it.Label1
			md.ArtworkID = int(it.ArtworkID)
		case it.Type == ItemArtist:
			md.Artist = it.Label1
		case it.Type == ItemOriginalArtist:
			md.OriginalArtist = it.Label1
		case it.Type == ItemRemixer:
			md.Remixer = it.Label1
		case it.Type == ItemAlbum:
			md.Album = it.Label1
		case it.Type == ItemGenre:
			md.Genre = it.Label1
		case it.Type == ItemLabel:
			md.Label = it.Label1
		case it.Type == ItemKey:
			md.Key = it.Label1
		case it.Type == ItemComment:
			md.Comment = it.Label1
		case it.Type == ItemDateAdded:
			md.DateAdded = it.Label1
		case it.Type == ItemDuration:
			md.Duration = int(it.ID)
		case it.Type == ItemTempo:
			md.Tempo = int(it.ID)
		case it.Type == ItemRating:
			md.Rating = int(it.ID)
		case it.Type >= ItemColorNone && it.Type <= ItemColorBlue:
			md.Color = int(it.Type - ItemColorNone)
		}
	}
	return md
}
