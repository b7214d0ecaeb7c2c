package dbserver

import (
	"context"
	"fmt"

	"github.com/tessro/decklink/internal/core"
	dlerrors "github.com/tessro/decklink/internal/errors"
)

// TrackMetadataResult holds decoded metadata together with the raw responses
// it was built from.
type TrackMetadataResult struct {
	Metadata *core.TrackMetadata
	Items    []*Message // menu items and footer
	CueList  *Message   // nil when the player has none
}

// TrackMetadata requests and renders the metadata of a track, then its cue list.
func (c *Client) TrackMetadata(ctx context.Context, track core.DataReference, trackType core.TrackType) (*TrackMetadataResult, error) {
	req := MetadataReq
	if trackType == core.TrackTypeUnanalyzed || trackType == core.TrackTypeCDAudio {
		req = UnanalyzedReq
	}
	count, err := c.MenuRequest(ctx, req, MainMenu, track.Slot, trackType, Number4(uint32(track.ID)))
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("metadata for %s: %w", track, dlerrors.ErrUnavailable)
	}
	items, err := c.RenderMenuItems(ctx, MainMenu, track.Slot, trackType, 0, count)
	if err != nil {
		return nil, err
	}

	res := &TrackMetadataResult{
		Metadata: TrackMetadataFromItems(track, trackType, items),
		Items:    items,
	}
	if trackType == core.TrackTypeRekordbox {
		cues, err := c.CueListMessage(ctx, track)
		if err == nil {
			res.CueList = cues
			res.Metadata.CueList, err = CueListFromMessage(cues)
		}
		if err != nil {
			c.logger.Debug("no cue list", "track", track.String(), "error", err)
		}
	}
	return res, nil
}

func (c *Client) blobRequest(ctx context.Context, t MessageType, want MessageType, slot core.TrackSourceSlot, args ...Field) (*Message, error) {
	all := append([]Field{DMST(c.Posing, DataMenu, slot, core.TrackTypeRekordbox)}, args...)
	resp, err := c.Query(ctx, t, all...)
	if err != nil {
		return nil, err
	}
	if resp.Type != want {
		return nil, fmt.Errorf("%s: unexpected response %s", t, resp.Type)
	}
	if _, err := resp.BlobArg(3); err != nil {
		return nil, err
	}
	return resp, nil
}

// BlobOf returns the payload carried by a data response.
func BlobOf(m *Message) []byte {
	b, _ := m.BlobArg(3)
	return b
}

// CueListMessage requests the cue list of a track.
func (c *Client) CueListMessage(ctx context.Context, track core.DataReference) (*Message, error) {
	return c.blobRequest(ctx, CueListReq, CueListResp, track.Slot, Number4(uint32(track.ID)))
}

// CueListFromMessage decodes a cue list response.
func CueListFromMessage(m *Message) (*core.CueList, error) {
	return core.ParseCueList(BlobOf(m))
}

// AlbumArt requests artwork image bytes.
func (c *Client) AlbumArt(ctx context.Context, art core.DataReference) ([]byte, error) {
	resp, err := c.blobRequest(ctx, AlbumArtReq, AlbumArtResp, art.Slot, Number4(uint32(art.ID)))
	if err != nil {
		return nil, err
	}
	return BlobOf(resp), nil
}

// BeatGrid requests the raw beat grid payload of a track.
func (c *Client) BeatGrid(ctx context.Context, track core.DataReference) ([]byte, error) {
	resp, err := c.blobRequest(ctx, BeatGridReq, BeatGridResp, track.Slot, Number4(uint32(track.ID)))
	if err != nil {
		return nil, err
	}
	return BlobOf(resp), nil
}

// WaveformPreview requests the preview waveform response of a track.
func (c *Client) WaveformPreview(ctx context.Context, track core.DataReference) (*Message, error) {
	return c.blobRequest(ctx, WavePreviewReq, WavePreviewResp, track.Slot,
		Number4(1), Number4(uint32(track.ID)), Number4(0))
}

// WaveformPreviewFromMessage decodes a preview waveform response.
func WaveformPreviewFromMessage(track core.DataReference, m *Message) *core.WaveformPreview {
	return &core.WaveformPreview{Track: track, Data: BlobOf(m)}
}

// WaveformDetail requests the scrolling waveform response of a track.
func (c *Client) WaveformDetail(ctx context.Context, track core.DataReference) (*Message, error) {
	return c.blobRequest(ctx, WaveDetailReq, WaveDetailResp, track.Slot,
		Number4(uint32(track.ID)), Number4(0))
}

// WaveformDetailFromMessage decodes a scrolling waveform response. The first
// four bytes of the payload are a header.
func WaveformDetailFromMessage(track core.DataReference, m *Message) *core.WaveformDetail {
	data := BlobOf(m)
	if len(data) >= 4 {
		data = data[4:]
	}
	return &core.WaveformDetail{Track: track, Data: data}
}

// AnalysisTag requests one tagged section of a track's analysis file, for
// example "PSSI" from the ".EXT" file.
func (c *Client) AnalysisTag(ctx context.Context, track core.DataReference, fileExt, tag string) ([]byte, error) {
	resp, err := c.blobRequest(ctx, AnlzTagReq, AnlzTagResp, track.Slot,
		Number4(uint32(track.ID)), Number4(fourCC(tag)), Number4(fourCC(fileExt)))
	if err != nil {
		return nil, err
	}
	return BlobOf(resp), nil
}

// fourCC packs up to four characters in reverse order, as the players expect.
func fourCC(s string) uint32 {
	var v uint32
	for i := len(s) - 1; i >= 0; i-- {
		v = v<<8 | uint32(s[i])
	}
	return v
}

// TrackList returns the rekordbox ids of every track on the media in a slot,
// or of one playlist when playlistID is not zero.
func (c *Client) TrackList(ctx context.Context, slot core.TrackSourceSlot, playlistID int) ([]int, error) {
	var count int
	var err error
	if playlistID == 0 {
		count, err = c.MenuRequest(ctx, TrackMenuReq, MainMenu, slot, core.TrackTypeRekordbox, Number4(0))
	} else {
		count, err = c.MenuRequest(ctx, PlaylistReq, MainMenu, slot, core.TrackTypeRekordbox,
			Number4(0), Number4(uint32(playlistID)), Number4(0))
	}
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	items, err := c.RenderMenuItems(ctx, MainMenu, slot, core.TrackTypeRekordbox, 0, count)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, count)
	for _, m := range items {
		if m.Type != MenuItem {
			continue
		}
		id, err := m.NumberArg(1)
		if err != nil {
			return nil, err
		}
		ids = append(ids, int(id))
	}
	return ids, nil
}
