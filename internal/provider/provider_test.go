package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tessro/decklink/internal/beatgrid"
	"github.com/tessro/decklink/internal/core"
)

type stub struct{ media []string }

func (s stub) SupportedMedia() []string { return s.media }
func (stub) TrackMetadata(context.Context, *core.MediaDetails, core.DataReference) (*core.TrackMetadata, error) {
	return nil, nil
}
func (stub) AlbumArt(context.Context, *core.MediaDetails, core.DataReference) (*core.AlbumArt, error) {
	return nil, nil
}
func (stub) BeatGrid(context.Context, *core.MediaDetails, core.DataReference) (*beatgrid.BeatGrid, error) {
	return nil, nil
}
func (stub) CueList(context.Context, *core.MediaDetails, core.DataReference) (*core.CueList, error) {
	return nil, nil
}
func (stub) WaveformPreview(context.Context, *core.MediaDetails, core.DataReference) (*core.WaveformPreview, error) {
	return nil, nil
}
func (stub) WaveformDetail(context.Context, *core.MediaDetails, core.DataReference) (*core.WaveformDetail, error) {
	return nil, nil
}

func TestRegistryFor(t *testing.T) {
	media := &core.MediaDetails{Name: "USB", TotalSize: 1 << 30}
	other := &core.MediaDetails{Name: "OTHER", TotalSize: 2 << 30}

	r := NewRegistry()
	universal := stub{}
	specific := stub{media: []string{media.HashKey()}}
	r.Add(universal)
	id := r.Add(specific)

	assert.Len(t, r.For(media), 2)
	assert.Len(t, r.For(other), 1)
	assert.Len(t, r.For(nil), 1)

	r.Remove(id)
	assert.Equal(t, 1, r.Len())
	assert.Len(t, r.For(media), 1)
}
