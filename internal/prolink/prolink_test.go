package prolink

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/decklink/internal/core"
)

func header(size int, t byte) []byte {
	b := make([]byte, size)
	copy(b, Magic)
	b[0x0a] = t
	return b
}

func statusPacket(player int, track core.DataReference, playing bool, beat int) []byte {
	b := header(0xd4, typeCdjStatus)
	b[0x21] = byte(player)
	b[0x28] = byte(track.Player)
	b[0x29] = byte(track.Slot)
	b[0x2a] = byte(core.TrackTypeRekordbox)
	binary.BigEndian.PutUint32(b[0x2c:], uint32(track.ID))
	b[0x6f] = 0    // usb loaded
	b[0x73] = 0x04 // sd empty
	if playing {
		b[0x89] = 0x40
	}
	b[0x8d], b[0x8e], b[0x8f] = 0x10, 0x00, 0x00
	binary.BigEndian.PutUint16(b[0x92:], 12800)
	binary.BigEndian.PutUint32(b[0xa0:], uint32(beat))
	b[0xa6] = 3
	return b
}

func TestParseKeepAliveRoundTrip(t *testing.T) {
	mac := net.HardwareAddr{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	now := time.Unix(1000, 0)
	ann, err := ParseKeepAlive(BuildKeepAlive("CDJ-3000", 3, mac, net.ParseIP("192.168.1.30")), now)
	require.NoError(t, err)
	assert.Equal(t, "CDJ-3000", ann.Name)
	assert.Equal(t, 3, ann.Number)
	assert.Equal(t, mac, ann.MAC)
	assert.True(t, ann.Address.Equal(net.ParseIP("192.168.1.30")))
	assert.Equal(t, now, ann.LastSeen)

	_, err = ParseKeepAlive([]byte("garbage"), now)
	assert.Error(t, err)
}

func TestParseCdjStatus(t *testing.T) {
	track := core.DataReference{Player: 2, Slot: core.SlotUSB, ID: 77}
	s, err := ParseCdjStatus(statusPacket(1, track, true, 33), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Player)
	assert.Equal(t, track, s.Track())
	assert.True(t, s.Playing)
	assert.False(t, s.Reverse)
	assert.InDelta(t, 1.0, s.Pitch, 1e-9)
	assert.Equal(t, 12800, s.BPM)
	assert.Equal(t, 33, s.BeatNumber)
	assert.Equal(t, 3, s.BeatWithinBar)
	assert.True(t, s.USBLoaded)
	assert.False(t, s.SDLoaded)

	p := statusPacket(1, track, false, -1)
	binary.BigEndian.PutUint16(p[0x92:], 0xffff)
	s, err = ParseCdjStatus(p, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, s.BPM)
	assert.Equal(t, 0, s.BeatNumber)
}

func TestParseBeatAndPrecisePosition(t *testing.T) {
	b := header(beatLen, typeBeat)
	b[0x21] = 4
	b[0x55], b[0x56], b[0x57] = 0x10, 0x80, 0x00 // +3.125%
	binary.BigEndian.PutUint16(b[0x5a:], 12000)
	b[0x5c] = 2
	beat, err := ParseBeat(b, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 4, beat.Player)
	assert.InDelta(t, 1.03125, beat.Pitch, 1e-9)
	assert.Equal(t, 12000, beat.BPM)
	assert.Equal(t, 2, beat.BeatWithinBar)

	p := header(precisePositionLen, typePrecisePosition)
	p[0x21] = 2
	binary.BigEndian.PutUint32(p[0x24:], 300)
	binary.BigEndian.PutUint32(p[0x28:], 65432)
	pitch := int32(-250)
	binary.BigEndian.PutUint32(p[0x2c:], uint32(pitch))
	binary.BigEndian.PutUint32(p[0x38:], 1280)
	pos, err := ParsePrecisePosition(p, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 300, pos.TrackLength)
	assert.Equal(t, int64(65432), pos.PositionMs)
	assert.InDelta(t, 0.975, pos.Pitch, 1e-9)
	assert.Equal(t, 12800, pos.BPM)
}

func mediaPacket(slot core.SlotReference, name string, tracks int) []byte {
	b := header(mediaResponseLen, typeMediaResponse)
	b[0x27] = byte(slot.Player)
	b[0x2b] = byte(slot.Slot)
	for i, r := range name {
		binary.BigEndian.PutUint16(b[0x2c+2*i:], uint16(r))
	}
	binary.BigEndian.PutUint16(b[0xa6:], uint16(tracks))
	binary.BigEndian.PutUint64(b[0xb0:], 32<<30)
	binary.BigEndian.PutUint64(b[0xb8:], 8<<30)
	return b
}

func TestParseMediaDetails(t *testing.T) {
	slot := core.NewSlotReference(3, core.SlotUSB)
	pkt := mediaPacket(slot, "GIGBAG", 812)
	d, err := ParseMediaDetails(pkt)
	require.NoError(t, err)
	assert.Equal(t, slot, d.Slot)
	assert.Equal(t, "GIGBAG", d.Name)
	assert.Equal(t, 812, d.TrackCount)
	assert.Equal(t, int64(32<<30), d.TotalSize)
	assert.Equal(t, pkt, d.Raw)
}

func TestDiscoveryFoundAndLost(t *testing.T) {
	clk := clock.NewMock()
	d := NewDiscovery(10*time.Second, clk, nil)
	var events []core.DeviceEvent
	d.AddListener(func(e core.DeviceEvent) { events = append(events, e) })

	pkt := BuildKeepAlive("CDJ-2000NXS2", 2, net.HardwareAddr{1, 2, 3, 4, 5, 6}, net.ParseIP("10.0.0.2"))
	d.Handle(pkt)
	d.Handle(pkt)
	require.Len(t, events, 1)
	assert.False(t, events[0].Lost)

	ip, ok := d.Address(2)
	require.True(t, ok)
	assert.True(t, ip.Equal(net.ParseIP("10.0.0.2")))

	clk.Add(5 * time.Second)
	d.Handle(pkt)
	clk.Add(6 * time.Second)
	d.Expire()
	assert.Len(t, d.Devices(), 1)

	clk.Add(5 * time.Second)
	d.Expire()
	require.Len(t, events, 2)
	assert.True(t, events[1].Lost)
	assert.Empty(t, d.Devices())
}

func TestMountTracker(t *testing.T) {
	m := NewMountTracker(nil)
	var events []core.MountEvent
	var queried []core.SlotReference
	m.QueryDetails = func(s core.SlotReference) { queried = append(queried, s) }
	m.AddListener(func(e core.MountEvent) { events = append(events, e) })

	usb := core.NewSlotReference(1, core.SlotUSB)
	m.OnStatus(&core.CdjStatus{Player: 1, USBLoaded: true})
	m.OnStatus(&core.CdjStatus{Player: 1, USBLoaded: true})
	require.Len(t, events, 1)
	assert.Equal(t, core.MountEvent{Slot: usb, Mounted: true}, events[0])
	assert.Equal(t, []core.SlotReference{usb}, queried)

	details := &core.MediaDetails{Slot: usb, Name: "STICK"}
	m.OnMediaDetails(details)
	require.Len(t, events, 2)
	assert.Same(t, details, events[1].Details)
	assert.Same(t, details, m.Details(usb))

	m.OnDevice(core.DeviceEvent{Device: core.DeviceAnnouncement{Number: 1}, Lost: true})
	require.Len(t, events, 3)
	assert.False(t, events[2].Mounted)
	assert.False(t, m.IsMounted(usb))

	m.OnDevice(core.DeviceEvent{Device: core.DeviceAnnouncement{Number: 0x11, Name: "rekordbox"}})
	assert.True(t, m.IsMounted(core.NewSlotReference(0x11, core.SlotCollection)))
}

func TestListenerHandleRoutesPackets(t *testing.T) {
	l := NewListener(clock.NewMock(), nil)
	var statuses []*core.CdjStatus
	var media []*core.MediaDetails
	l.OnStatus(func(s *core.CdjStatus) { statuses = append(statuses, s) })
	l.OnMediaDetails(func(m *core.MediaDetails) { media = append(media, m) })

	l.Handle(statusPacket(2, core.DataReference{Player: 2, Slot: core.SlotSD, ID: 5}, false, 1))
	l.Handle(mediaPacket(core.NewSlotReference(2, core.SlotSD), "SD", 3))
	l.Handle([]byte("nonsense"))

	assert.Len(t, statuses, 1)
	assert.Len(t, media, 1)
}
