// Package prolink receives and sends the UDP packets players use to announce
// themselves and report what they are playing.
package prolink

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"golang.org/x/text/encoding/unicode"

	"github.com/tessro/decklink/internal/core"
)

// Ports used by the protocol.
const (
	AnnouncePort = 50000
	BeatPort     = 50001
	StatusPort   = 50002
)

// Magic starts every packet.
var Magic = []byte("Qspt1WmJOL")

// Packet type bytes, found at offset 0x0a.
const (
	typeKeepAlive       = 0x06
	typeMediaQuery      = 0x05
	typeMediaResponse   = 0x06
	typeCdjStatus       = 0x0a
	typePrecisePosition = 0x0b
	typeBeat            = 0x28
)

const (
	keepAliveLen       = 0x36
	beatLen            = 0x60
	precisePositionLen = 0x3c
	cdjStatusMinLen    = 0xcc
	mediaResponseLen   = 0xc0
	mediaQueryLen      = 0x30
	deviceNameLen      = 20
)

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// packetType validates the header and returns the type byte.
func packetType(b []byte) (byte, error) {
	if len(b) < 0x0b || !bytes.Equal(b[:len(Magic)], Magic) {
		return 0, fmt.Errorf("not a protocol packet")
	}
	return b[0x0a], nil
}

func u16(b []byte, off int) int { return int(binary.BigEndian.Uint16(b[off:])) }
func u24(b []byte, off int) int {
	return int(b[off])<<16 | int(b[off+1])<<8 | int(b[off+2])
}
func u32(b []byte, off int) uint32 { return binary.BigEndian.Uint32(b[off:]) }

func deviceName(b []byte) string {
	return string(bytes.TrimRight(b[0x0c:0x0c+deviceNameLen], "\x00"))
}

// ParseKeepAlive decodes a device announcement received on AnnouncePort.
func ParseKeepAlive(b []byte, now time.Time) (*core.DeviceAnnouncement, error) {
	t, err := packetType(b)
	if err != nil {
		return nil, err
	}
	if t != typeKeepAlive || len(b) < keepAliveLen {
		return nil, fmt.Errorf("not a keep-alive packet (type 0x%02x, %d bytes)", t, len(b))
	}
	return &core.DeviceAnnouncement{
		Name:     deviceName(b),
		Number:   int(b[0x24]),
		MAC:      net.HardwareAddr(append([]byte(nil), b[0x26:0x2c]...)),
		Address:  net.IPv4(b[0x2c], b[0x2d], b[0x2e], b[0x2f]),
		LastSeen: now,
	}, nil
}

// BuildKeepAlive encodes the announcement a virtual player broadcasts.
func BuildKeepAlive(name string, number int, mac net.HardwareAddr, ip net.IP) []byte {
	b := make([]byte, keepAliveLen)
	copy(b, Magic)
	b[0x0a] = typeKeepAlive
	copy(b[0x0c:0x0c+deviceNameLen], name)
	b[0x20] = 0x01
	b[0x21] = 0x02
	binary.BigEndian.PutUint16(b[0x22:], keepAliveLen)
	b[0x24] = byte(number)
	b[0x25] = 0x01
	copy(b[0x26:0x2c], mac)
	if v4 := ip.To4(); v4 != nil {
		copy(b[0x2c:0x30], v4)
	}
	b[0x30] = 0x01
	b[0x34] = 0x01
	return b
}

// pitchMultiplier converts a 24-bit pitch value, where 0x100000 is normal speed.
func pitchMultiplier(raw int) float64 {
	return float64(raw) / 0x100000
}

// ParseBeat decodes a beat packet received on BeatPort.
func ParseBeat(b []byte, now time.Time) (*core.Beat, error) {
	t, err := packetType(b)
	if err != nil {
		return nil, err
	}
	if t != typeBeat || len(b) < beatLen {
		return nil, fmt.Errorf("not a beat packet (type 0x%02x, %d bytes)", t, len(b))
	}
	return &core.Beat{
		Player:        int(b[0x21]),
		Timestamp:     now,
		Pitch:         pitchMultiplier(u24(b, 0x55)),
		BPM:           u16(b, 0x5a),
		BeatWithinBar: int(b[0x5c]),
	}, nil
}

// ParsePrecisePosition decodes a precise position packet received on BeatPort.
func ParsePrecisePosition(b []byte, now time.Time) (*core.PrecisePosition, error) {
	t, err := packetType(b)
	if err != nil {
		return nil, err
	}
	if t != typePrecisePosition || len(b) < precisePositionLen {
		return nil, fmt.Errorf("not a precise position packet (type 0x%02x, %d bytes)", t, len(b))
	}
	pitch := int32(u32(b, 0x2c))
	return &core.PrecisePosition{
		Player:      int(b[0x21]),
		Timestamp:   now,
		TrackLength: int(u32(b, 0x24)),
		PositionMs:  int64(u32(b, 0x28)),
		Pitch:       1 + float64(pitch)/10000,
		BPM:         int(u32(b, 0x38)) * 10,
	}, nil
}

// ParseCdjStatus decodes a player status packet received on StatusPort.
func ParseCdjStatus(b []byte, now time.Time) (*core.CdjStatus, error) {
	t, err := packetType(b)
	if err != nil {
		return nil, err
	}
	if t != typeCdjStatus || len(b) < cdjStatusMinLen {
		return nil, fmt.Errorf("not a status packet (type 0x%02x, %d bytes)", t, len(b))
	}
	playing := b[0x89]&0x40 != 0
	s := &core.CdjStatus{
		Player:            int(b[0x21]),
		Timestamp:         now,
		TrackSourcePlayer: int(b[0x28]),
		TrackSourceSlot:   core.TrackSourceSlot(b[0x29]),
		TrackType:         core.TrackType(b[0x2a]),
		RekordboxID:       int(u32(b, 0x2c)),
		Playing:           playing,
		Reverse:           playing && b[0x9d] == 0x01,
		Pitch:             pitchMultiplier(u24(b, 0x8d)),
		USBLoaded:         b[0x6f] == 0,
		SDLoaded:          b[0x73] == 0,
		BeatWithinBar:     int(b[0xa6]),
	}
	if bpm := u16(b, 0x92); bpm != 0xffff {
		s.BPM = bpm
	}
	if beat := u32(b, 0xa0); beat != 0xffffffff {
		s.BeatNumber = int(beat)
	}
	return s, nil
}

// IsMediaResponse reports whether a StatusPort packet carries media details.
func IsMediaResponse(b []byte) bool {
	t, err := packetType(b)
	return err == nil && t == typeMediaResponse && len(b) >= mediaResponseLen
}

func utf16Field(b []byte) string {
	text, err := utf16be.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	if i := bytes.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}
	return string(text)
}

// ParseMediaDetails decodes a media query response. The raw packet is kept.
func ParseMediaDetails(b []byte) (*core.MediaDetails, error) {
	if !IsMediaResponse(b) {
		return nil, fmt.Errorf("not a media response packet (%d bytes)", len(b))
	}
	return &core.MediaDetails{
		Slot:          core.NewSlotReference(int(b[0x27]), core.TrackSourceSlot(b[0x2b])),
		Name:          utf16Field(b[0x2c:0x6c]),
		CreationDate:  utf16Field(b[0x6c:0x84]),
		TrackCount:    u16(b, 0xa6),
		Color:         int(b[0xa8]),
		MediaType:     core.TrackType(b[0xaa]),
		PlaylistCount: u16(b, 0xae),
		TotalSize:     int64(binary.BigEndian.Uint64(b[0xb0:])),
		FreeSpace:     int64(binary.BigEndian.Uint64(b[0xb8:])),
		Raw:           append([]byte(nil), b...),
	}, nil
}

// BuildMediaQuery asks a player to describe the media in one of its slots.
func BuildMediaQuery(name string, number int, ip net.IP, slot core.SlotReference) []byte {
	b := make([]byte, mediaQueryLen)
	copy(b, Magic)
	b[0x0a] = typeMediaQuery
	copy(b[0x0c:0x0c+deviceNameLen], name)
	b[0x20] = 0x01
	b[0x22] = byte(number)
	b[0x24] = 0x0c
	if v4 := ip.To4(); v4 != nil {
		copy(b[0x25:0x29], v4)
	}
	b[0x2c] = byte(slot.Player)
	b[0x2f] = byte(slot.Slot)
	return b
}
