package core

import (
	"fmt"

	"github.com/mitchellh/hashstructure/v2"
)

// MediaDetails describes the media mounted in a slot.
type MediaDetails struct {
	Slot          SlotReference `json:"slot"`
	Name          string        `json:"name"`
	CreationDate  string        `json:"creation_date"`
	MediaType     TrackType     `json:"media_type"`
	TrackCount    int           `json:"track_count"`
	PlaylistCount int           `json:"playlist_count"`
	Color         int           `json:"color"`
	TotalSize     int64         `json:"total_size"`
	FreeSpace     int64         `json:"free_space"`

	// Raw is the packet the details were parsed from, kept so archives can store it.
	Raw []byte `json:"-"`
}

// mediaIdentity is the part of the details that stays stable while media is in use.
type mediaIdentity struct {
	Name          string
	CreationDate  string
	MediaType     TrackType
	TrackCount    int
	PlaylistCount int
	TotalSize     int64
}

// HashKey identifies the physical media independently of the slot it is mounted in.
// Free space is excluded because it changes as history playlists are written.
func (m *MediaDetails) HashKey() string {
	if m == nil {
		return ""
	}
	h, err := hashstructure.Hash(mediaIdentity{
		Name:          m.Name,
		CreationDate:  m.CreationDate,
		MediaType:     m.MediaType,
		TrackCount:    m.TrackCount,
		PlaylistCount: m.PlaylistCount,
		TotalSize:     m.TotalSize,
	}, hashstructure.FormatV2, nil)
	if err != nil {
		return fmt.Sprintf("%s/%s/%d", m.Name, m.CreationDate, m.TotalSize)
	}
	return fmt.Sprintf("%016x", h)
}

// Matches reports whether two details describe the same physical media.
func (m *MediaDetails) Matches(other *MediaDetails) bool {
	if m == nil || other == nil {
		return false
	}
	return m.HashKey() == other.HashKey()
}

// MountEvent reports media being inserted into or removed from a slot.
type MountEvent struct {
	Slot    SlotReference
	Mounted bool
	Details *MediaDetails
}
