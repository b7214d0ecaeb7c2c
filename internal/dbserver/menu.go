package dbserver

import (
	"fmt"

	"github.com/tessro/decklink/internal/core"
)

// MenuID selects where the player would render a response.
type MenuID uint8

const (
	MainMenu MenuID = 1
	DataMenu MenuID = 8
)

// DMST packs the posing player, target menu, slot and track type into the
// first argument of most requests.
func DMST(posing int, menu MenuID, slot core.TrackSourceSlot, trackType core.TrackType) Field {
	return Number4(uint32(posing&0xff)<<24 | uint32(menu)<<16 | uint32(slot&0xff)<<8 | uint32(trackType&0xff))
}

// ItemType identifies what a menu item describes.
type ItemType uint16

const (
	ItemAlbum          ItemType = 0x02
	ItemTitle          ItemType = 0x04
	ItemGenre          ItemType = 0x06
	ItemArtist         ItemType = 0x07
	ItemRating         ItemType = 0x0a
	ItemDuration       ItemType = 0x0b
	ItemTempo          ItemType = 0x0d
	ItemLabel          ItemType = 0x0e
	ItemKey            ItemType = 0x0f
	ItemColorNone      ItemType = 0x13
	ItemColorBlue      ItemType = 0x1b
	ItemComment        ItemType = 0x23
	ItemOriginalArtist ItemType = 0x28
	ItemRemixer        ItemType = 0x29
	ItemDateAdded      ItemType = 0x2e
)

// Item is the decoded form of a menu item response.
type Item struct {
	ID        uint32
	Label1    string
	Label2    string
	Type      ItemType
	ArtworkID uint32
}

// ParseItem decodes a menu item message.
func ParseItem(m *Message) (Item, error) {
	if m.Type != MenuItem {
		return Item{}, fmt.Errorf("expected menu item, got %s", m.Type)
	}
	if len(m.Args) < 7 {
		return Item{}, fmt.Errorf("menu item has %d arguments", len(m.Args))
	}
	var it Item
	var err error
	if it.ID, err = m.NumberArg(1); err != nil {
		return Item{}, err
	}
	if it.Label1, err = m.TextArg(3); err != nil {
		return Item{}, err
	}
	if it.Label2, err = m.TextArg(5); err != nil {
		return Item{}, err
	}
	t, err := m.NumberArg(6)
	if err != nil {
		return Item{}, err
	}
	it.Type = ItemType(t & 0xffff)
	if len(m.Args) > 8 {
		it.ArtworkID, _ = m.NumberArg(8)
	}
	return it, nil
}

// NewItem builds a menu item message in the layout the players send.
func NewItem(txn uint32, it Item) *Message {
	return NewMessage(txn, MenuItem,
		Number4(0),
		Number4(it.ID),
		Number4(uint32(len(it.Label1)+1)*2),
		Text(it.Label1),
		Number4(uint32(len(it.Label2)+1)*2),
		Text(it.Label2),
		Number4(uint32(it.Type)),
		Number4(0),
		Number4(it.ArtworkID),
		Number4(0),
		Number4(0),
		Number4(0),
	)
}
