package core

import "fmt"

// TrackSourceSlot identifies the media slot a track was loaded from.
type TrackSourceSlot int

const (
	SlotNoTrack    TrackSourceSlot = 0
	SlotCD         TrackSourceSlot = 1
	SlotSD         TrackSourceSlot = 2
	SlotUSB        TrackSourceSlot = 3
	SlotCollection TrackSourceSlot = 4
)

func (s TrackSourceSlot) String() string {
	switch s {
	case SlotNoTrack:
		return "none"
	case SlotCD:
		return "cd"
	case SlotSD:
		return "sd"
	case SlotUSB:
		return "usb"
	case SlotCollection:
		return "collection"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

// ParseSlot converts a slot name as typed on the command line.
func ParseSlot(name string) (TrackSourceSlot, error) {
	switch name {
	case "cd":
		return SlotCD, nil
	case "sd":
		return SlotSD, nil
	case "usb":
		return SlotUSB, nil
	case "collection", "rekordbox":
		return SlotCollection, nil
	}
	return SlotNoTrack, fmt.Errorf("unknown slot %q (must be cd, sd, usb, or collection)", name)
}

// TrackType describes how a loaded track can be queried.
type TrackType int

const (
	TrackTypeNone       TrackType = 0
	TrackTypeRekordbox  TrackType = 1
	TrackTypeUnanalyzed TrackType = 2
	TrackTypeCDAudio    TrackType = 5
)

func (t TrackType) String() string {
	switch t {
	case TrackTypeNone:
		return "none"
	case TrackTypeRekordbox:
		return "rekordbox"
	case TrackTypeUnanalyzed:
		return "unanalyzed"
	case TrackTypeCDAudio:
		return "cd-audio"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// DeckReference names a player's main deck (HotCue 0) or one of its hot-cue slots.
// It is a plain comparable value and is used directly as a map key.
type DeckReference struct {
	Player int
	HotCue int
}

// NewDeckReference returns the reference for the given player and hot cue.
func NewDeckReference(player, hotCue int) DeckReference {
	return DeckReference{Player: player, HotCue: hotCue}
}

// MainDeck returns the reference to a player's main playback deck.
func MainDeck(player int) DeckReference {
	return DeckReference{Player: player}
}

// IsMain reports whether the reference names the main playback deck.
func (d DeckReference) IsMain() bool {
	return d.HotCue == 0
}

func (d DeckReference) String() string {
	if d.HotCue == 0 {
		return fmt.Sprintf("player %d", d.Player)
	}
	return fmt.Sprintf("player %d hot cue %d", d.Player, d.HotCue)
}

// SlotReference names a mountable media location on a player.
type SlotReference struct {
	Player int
	Slot   TrackSourceSlot
}

// NewSlotReference returns the reference for the given player and slot.
func NewSlotReference(player int, slot TrackSourceSlot) SlotReference {
	return SlotReference{Player: player, Slot: slot}
}

func (s SlotReference) String() string {
	return fmt.Sprintf("player %d %s", s.Player, s.Slot)
}

// DataReference identifies one item (track, artwork, analysis file) inside a slot.
type DataReference struct {
	Player int
	Slot   TrackSourceSlot
	ID     int
}

// NewDataReference returns the reference for an item in the given slot.
func NewDataReference(slot SlotReference, id int) DataReference {
	return DataReference{Player: slot.Player, Slot: slot.Slot, ID: id}
}

// SlotReference returns the slot the item lives in.
func (r DataReference) SlotReference() SlotReference {
	return SlotReference{Player: r.Player, Slot: r.Slot}
}

// IsZero reports whether the reference names nothing.
func (r DataReference) IsZero() bool {
	return r == DataReference{}
}

func (r DataReference) String() string {
	return fmt.Sprintf("%d:%s:%d", r.Player, r.Slot, r.ID)
}
