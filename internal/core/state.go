package core

import "time"

// CdjStatus is the subset of a player status packet the engine cares about.
type CdjStatus struct {
	Player            int
	Timestamp         time.Time
	TrackSourcePlayer int
	TrackSourceSlot   TrackSourceSlot
	TrackType         TrackType
	RekordboxID       int
	Playing           bool
	Reverse           bool
	Pitch             float64 // playback speed multiplier, 1.0 is normal
	BPM               int     // track tempo * 100, 0 when unknown
	BeatNumber        int     // 0 when unknown
	BeatWithinBar     int
	USBLoaded         bool
	SDLoaded          bool
}

// HasTrack returns true if the status reports a loaded track.
func (s *CdjStatus) HasTrack() bool {
	return s != nil && s.TrackType != TrackTypeNone && s.RekordboxID != 0
}

// Track returns the reference of the loaded track, or the zero reference.
func (s *CdjStatus) Track() DataReference {
	if !s.HasTrack() {
		return DataReference{}
	}
	return DataReference{Player: s.TrackSourcePlayer, Slot: s.TrackSourceSlot, ID: s.RekordboxID}
}

// EffectiveTempo returns the playing tempo after pitch adjustment.
func (s *CdjStatus) EffectiveTempo() float64 {
	if s == nil || s.BPM == 0 {
		return 0
	}
	return float64(s.BPM) / 100 * s.Pitch
}

// Beat is sent by a player each time it plays a beat.
type Beat struct {
	Player        int
	Timestamp     time.Time
	Pitch         float64
	BPM           int
	BeatWithinBar int
}

// PrecisePosition is the frequent position report sent by newer players.
type PrecisePosition struct {
	Player      int
	Timestamp   time.Time
	TrackLength int   // seconds
	PositionMs  int64 // milliseconds
	Pitch       float64
	BPM         int // track tempo * 100
}
