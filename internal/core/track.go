package core

import "time"

// TrackMetadata holds the descriptive attributes of a loaded track.
type TrackMetadata struct {
	Track          DataReference `json:"track"`
	TrackType      TrackType     `json:"track_type"`
	Title          string        `json:"title"`
	Artist         string        `json:"artist"`
	OriginalArtist string        `json:"original_artist,omitempty"`
	Remixer        string        `json:"remixer,omitempty"`
	Album          string        `json:"album,omitempty"`
	Genre          string        `json:"genre,omitempty"`
	Label          string        `json:"label,omitempty"`
	Key            string        `json:"key,omitempty"`
	Comment        string        `json:"comment,omitempty"`
	DateAdded      string        `json:"date_added,omitempty"`
	Duration       int           `json:"duration"` // seconds
	Tempo          int           `json:"tempo"`    // bpm * 100
	Rating         int           `json:"rating"`
	Color          int           `json:"color"`
	ArtworkID      int           `json:"artwork_id"`
	CueList        *CueList      `json:"cue_list,omitempty"`
}

// Length returns the track duration.
func (m *TrackMetadata) Length() time.Duration {
	if m == nil {
		return 0
	}
	return time.Duration(m.Duration) * time.Second
}

// HotCues returns the hot cue numbers present in the track's cue list.
func (m *TrackMetadata) HotCues() []int {
	if m == nil {
		return nil
	}
	return m.CueList.HotCueNumbers()
}

// AlbumArt is the image data for a track's artwork.
type AlbumArt struct {
	Art   DataReference
	Image []byte
}

// WaveformPreview is the small whole-track waveform shown above the jog wheel.
// Each segment is two bytes: height (low five bits) and whiteness (low three bits).
type WaveformPreview struct {
	Track DataReference
	Data  []byte
}

// Segments returns the number of columns in the preview.
func (w *WaveformPreview) Segments() int {
	if w == nil {
		return 0
	}
	return len(w.Data) / 2
}

// Height returns the height (0-31) of a preview column.
func (w *WaveformPreview) Height(segment int) int {
	if segment < 0 || segment >= w.Segments() {
		return 0
	}
	return int(w.Data[segment*2] & 0x1f)
}

// Whiteness returns the brightness (0-7) of a preview column.
func (w *WaveformPreview) Whiteness(segment int) int {
	if segment < 0 || segment >= w.Segments() {
		return 0
	}
	return int(w.Data[segment*2+1] & 0x07)
}

// WaveformDetail is the scrolling waveform, one byte per half-frame (1/150 s).
type WaveformDetail struct {
	Track DataReference
	Data  []byte
}

// Frames returns the number of half-frames covered.
func (w *WaveformDetail) Frames() int {
	if w == nil {
		return 0
	}
	return len(w.Data)
}

// Height returns the height (0-31) of a half-frame.
func (w *WaveformDetail) Height(frame int) int {
	if frame < 0 || frame >= w.Frames() {
		return 0
	}
	return int(w.Data[frame] & 0x1f)
}

// Intensity returns the color intensity (0-7) of a half-frame.
func (w *WaveformDetail) Intensity(frame int) int {
	if frame < 0 || frame >= w.Frames() {
		return 0
	}
	return int(w.Data[frame] >> 5)
}

// FrameForTime converts milliseconds to a half-frame index.
func FrameForTime(ms int64) int {
	return int(ms * 150 / 1000)
}
