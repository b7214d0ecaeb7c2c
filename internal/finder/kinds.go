package finder

import (
	"context"
	"log/slog"

	"github.com/tessro/decklink/internal/beatgrid"
	"github.com/tessro/decklink/internal/core"
	"github.com/tessro/decklink/internal/dbserver"
	"github.com/tessro/decklink/internal/provider"
	"github.com/tessro/decklink/internal/songstructure"
)

// Kind describes how one attribute kind is identified and resolved.
type Kind[T any] struct {
	Name string

	// Identity returns the key the attribute for l is cached under, or false
	// when the loaded track cannot carry this attribute.
	Identity func(l Load) (core.DataReference, bool)

	// FromProvider asks a provider or archive. A nil value means not found.
	FromProvider func(ctx context.Context, p provider.MetadataProvider, media *core.MediaDetails, id core.DataReference) (*T, error)

	// FromNetwork queries the player owning id.
	FromNetwork func(ctx context.Context, s Sessions, id core.DataReference, l Load) (*T, error)

	// HotCues lists the hot cues that share the value. Nil means the hot
	// cues of the load's metadata.
	HotCues func(l Load, v *T) []int
}

func session[T any](ctx context.Context, s Sessions, player int, fn func(*dbserver.Client) (*T, error)) (*T, error) {
	var out *T
	err := s.Do(ctx, player, func(c *dbserver.Client) error {
		var err error
		out, err = fn(c)
		return err
	})
	return out, err
}

// rekordboxTrack is the identity of attributes only analyzed tracks have.
func rekordboxTrack(l Load) (core.DataReference, bool) {
	if l.Metadata == nil || l.Metadata.TrackType != core.TrackTypeRekordbox || l.Metadata.Track.ID == 0 {
		return core.DataReference{}, false
	}
	return l.Metadata.Track, true
}

// MetadataKind resolves track metadata from status loads.
func MetadataKind() Kind[core.TrackMetadata] {
	return Kind[core.TrackMetadata]{
		Name: "metadata",
		Identity: func(l Load) (core.DataReference, bool) {
			if l.Empty() {
				return core.DataReference{}, false
			}
			return l.Track, true
		},
		FromProvider: func(ctx context.Context, p provider.MetadataProvider, media *core.MediaDetails, id core.DataReference) (*core.TrackMetadata, error) {
			return p.TrackMetadata(ctx, media, id)
		},
		FromNetwork: func(ctx context.Context, s Sessions, id core.DataReference, l Load) (*core.TrackMetadata, error) {
			return session(ctx, s, id.Player, func(c *dbserver.Client) (*core.TrackMetadata, error) {
				res, err := c.TrackMetadata(ctx, id, l.TrackType)
				if err != nil {
					return nil, err
				}
				return res.Metadata, nil
			})
		},
		HotCues: func(_ Load, md *core.TrackMetadata) []int {
			return md.HotCues()
		},
	}
}

// ArtKind resolves album art; its identity is the artwork id in the track's slot.
func ArtKind() Kind[core.AlbumArt] {
	return Kind[core.AlbumArt]{
		Name: "art",
		Identity: func(l Load) (core.DataReference, bool) {
			if l.Metadata == nil || l.Metadata.ArtworkID == 0 {
				return core.DataReference{}, false
			}
			return core.NewDataReference(l.Metadata.Track.SlotReference(), l.Metadata.ArtworkID), true
		},
		FromProvider: func(ctx context.Context, p provider.MetadataProvider, media *core.MediaDetails, id core.DataReference) (*core.AlbumArt, error) {
			return p.AlbumArt(ctx, media, id)
		},
		FromNetwork: func(ctx context.Context, s Sessions, id core.DataReference, _ Load) (*core.AlbumArt, error) {
			return session(ctx, s, id.Player, func(c *dbserver.Client) (*core.AlbumArt, error) {
				img, err := c.AlbumArt(ctx, id)
				if err != nil {
					return nil, err
				}
				return &core.AlbumArt{Art: id, Image: img}, nil
			})
		},
	}
}

// BeatGridKind resolves beat grids of analyzed tracks. Grids fetched from a
// player log through logger.
func BeatGridKind(logger *slog.Logger) Kind[beatgrid.BeatGrid] {
	return Kind[beatgrid.BeatGrid]{
		Name:     "beat grid",
		Identity: rekordboxTrack,
		FromProvider: func(ctx context.Context, p provider.MetadataProvider, media *core.MediaDetails, id core.DataReference) (*beatgrid.BeatGrid, error) {
			return p.BeatGrid(ctx, media, id)
		},
		FromNetwork: func(ctx context.Context, s Sessions, id core.DataReference, _ Load) (*beatgrid.BeatGrid, error) {
			return session(ctx, s, id.Player, func(c *dbserver.Client) (*beatgrid.BeatGrid, error) {
				payload, err := c.BeatGrid(ctx, id)
				if err != nil {
					return nil, err
				}
				return beatgrid.FromPayload(id, payload, beatgrid.WithLogger(logger))
			})
		},
	}
}

// WaveformPreviewKind resolves preview waveforms of analyzed tracks.
func WaveformPreviewKind() Kind[core.WaveformPreview] {
	return Kind[core.WaveformPreview]{
		Name:     "waveform preview",
		Identity: rekordboxTrack,
		FromProvider: func(ctx context.Context, p provider.MetadataProvider, media *core.MediaDetails, id core.DataReference) (*core.WaveformPreview, error) {
			return p.WaveformPreview(ctx, media, id)
		},
		FromNetwork: func(ctx context.Context, s Sessions, id core.DataReference, _ Load) (*core.WaveformPreview, error) {
			return session(ctx, s, id.Player, func(c *dbserver.Client) (*core.WaveformPreview, error) {
				m, err := c.WaveformPreview(ctx, id)
				if err != nil {
					return nil, err
				}
				return dbserver.WaveformPreviewFromMessage(id, m), nil
			})
		},
	}
}

// WaveformDetailKind resolves scrolling waveforms of analyzed tracks.
func WaveformDetailKind() Kind[core.WaveformDetail] {
	return Kind[core.WaveformDetail]{
		Name:     "waveform detail",
		Identity: rekordboxTrack,
		FromProvider: func(ctx context.Context, p provider.MetadataProvider, media *core.MediaDetails, id core.DataReference) (*core.WaveformDetail, error) {
			return p.WaveformDetail(ctx, media, id)
		},
		FromNetwork: func(ctx context.Context, s Sessions, id core.DataReference, _ Load) (*core.WaveformDetail, error) {
			return session(ctx, s, id.Player, func(c *dbserver.Client) (*core.WaveformDetail, error) {
				m, err := c.WaveformDetail(ctx, id)
				if err != nil {
					return nil, err
				}
				return dbserver.WaveformDetailFromMessage(id, m), nil
			})
		},
	}
}

// StructureKind resolves phrase analysis. Only providers that implement
// provider.StructureProvider are asked.
func StructureKind() Kind[songstructure.Structure] {
	return Kind[songstructure.Structure]{
		Name:     "song structure",
		Identity: rekordboxTrack,
		FromProvider: func(ctx context.Context, p provider.MetadataProvider, media *core.MediaDetails, id core.DataReference) (*songstructure.Structure, error) {
			sp, ok := p.(provider.StructureProvider)
			if !ok {
				return nil, nil
			}
			return sp.SongStructure(ctx, media, id)
		},
		FromNetwork: func(ctx context.Context, s Sessions, id core.DataReference, _ Load) (*songstructure.Structure, error) {
			return session(ctx, s, id.Player, func(c *dbserver.Client) (*songstructure.Structure, error) {
				tag, err := c.AnalysisTag(ctx, id, "EXT", "PSSI")
				if err != nil {
					return nil, err
				}
				return songstructure.Parse(id, tag)
			})
		},
	}
}
