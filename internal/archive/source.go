package archive

import (
	"context"

	"github.com/tessro/decklink/internal/core"
	"github.com/tessro/decklink/internal/dbserver"
)

// Source supplies the raw responses an archive is built from. Methods return
// an error wrapping errors.ErrUnavailable when the item does not exist.
type Source interface {
	TrackMetadata(ctx context.Context, id int) (*dbserver.TrackMetadataResult, error)
	AlbumArt(ctx context.Context, artworkID int) ([]byte, error)
	BeatGrid(ctx context.Context, id int) ([]byte, error)
	WaveformPreview(ctx context.Context, id int) (*dbserver.Message, error)
	WaveformDetail(ctx context.Context, id int) (*dbserver.Message, error)
	SongStructure(ctx context.Context, id int) ([]byte, error)
}

// ClientSource reads from one slot through an open database connection.
type ClientSource struct {
	client *dbserver.Client
	slot   core.SlotReference
}

// NewClientSource returns a source for the media in slot.
func NewClientSource(client *dbserver.Client, slot core.SlotReference) *ClientSource {
	return &ClientSource{client: client, slot: slot}
}

func (s *ClientSource) ref(id int) core.DataReference {
	return core.NewDataReference(s.slot, id)
}

func (s *ClientSource) TrackMetadata(ctx context.Context, id int) (*dbserver.TrackMetadataResult, error) {
	return s.client.TrackMetadata(ctx, s.ref(id), core.TrackTypeRekordbox)
}

func (s *ClientSource) AlbumArt(ctx context.Context, artworkID int) ([]byte, error) {
	return s.client.AlbumArt(ctx, s.ref(artworkID))
}

func (s *ClientSource) BeatGrid(ctx context.Context, id int) ([]byte, error) {
	return s.client.BeatGrid(ctx, s.ref(id))
}

func (s *ClientSource) WaveformPreview(ctx context.Context, id int) (*dbserver.Message, error) {
	return s.client.WaveformPreview(ctx, s.ref(id))
}

func (s *ClientSource) WaveformDetail(ctx context.Context, id int) (*dbserver.Message, error) {
	return s.client.WaveformDetail(ctx, s.ref(id))
}

func (s *ClientSource) SongStructure(ctx context.Context, id int) ([]byte, error) {
	return s.client.AnalysisTag(ctx, s.ref(id), "EXT", "PSSI")
}
