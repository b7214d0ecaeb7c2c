// Package provider defines sources of track attributes that can answer
// without querying a player, and the registry the finders consult.
package provider

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tessro/decklink/internal/beatgrid"
	"github.com/tessro/decklink/internal/core"
	"github.com/tessro/decklink/internal/dispatch"
	"github.com/tessro/decklink/internal/songstructure"
)

// MetadataProvider answers attribute requests for the media it supports.
// Each method returns nil with a nil error when it has nothing for the item.
type MetadataProvider interface {
	// SupportedMedia lists the hash keys of the media this provider serves.
	// An empty list means every media.
	SupportedMedia() []string

	TrackMetadata(ctx context.Context, media *core.MediaDetails, track core.DataReference) (*core.TrackMetadata, error)
	AlbumArt(ctx context.Context, media *core.MediaDetails, art core.DataReference) (*core.AlbumArt, error)
	BeatGrid(ctx context.Context, media *core.MediaDetails, track core.DataReference) (*beatgrid.BeatGrid, error)
	CueList(ctx context.Context, media *core.MediaDetails, track core.DataReference) (*core.CueList, error)
	WaveformPreview(ctx context.Context, media *core.MediaDetails, track core.DataReference) (*core.WaveformPreview, error)
	WaveformDetail(ctx context.Context, media *core.MediaDetails, track core.DataReference) (*core.WaveformDetail, error)
}

// StructureProvider is implemented by providers that also know phrase analysis.
type StructureProvider interface {
	SongStructure(ctx context.Context, media *core.MediaDetails, track core.DataReference) (*songstructure.Structure, error)
}

// Registry holds the registered providers in registration order.
type Registry struct {
	mu        sync.RWMutex
	order     []dispatch.Subscription
	providers map[dispatch.Subscription]MetadataProvider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[dispatch.Subscription]MetadataProvider)}
}

// Add registers a provider and returns a handle for removing it.
func (r *Registry) Add(p MetadataProvider) dispatch.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := dispatch.Subscription(uuid.NewString())
	r.providers[id] = p
	r.order = append(r.order, id)
	return id
}

// Remove unregisters a provider.
func (r *Registry) Remove(id dispatch.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, id)
	for i, s := range r.order {
		if s == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// For returns the providers that serve the given media. When media is
// unknown only universal providers match.
func (r *Registry) For(media *core.MediaDetails) []MetadataProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []MetadataProvider
	key := media.HashKey()
	for _, id := range r.order {
		p := r.providers[id]
		if Supports(p, key) {
			out = append(out, p)
		}
	}
	return out
}

// Supports reports whether p serves the media with the given hash key.
func Supports(p MetadataProvider, key string) bool {
	supported := p.SupportedMedia()
	if len(supported) == 0 {
		return true
	}
	if key == "" {
		return false
	}
	for _, s := range supported {
		if s == key {
			return true
		}
	}
	return false
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
