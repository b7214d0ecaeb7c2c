package core

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeckReferenceIsValueIdentity(t *testing.T) {
	a := NewDeckReference(2, 0)
	b := NewDeckReference(2, 0)
	assert.Equal(t, a, b)
	assert.True(t, a == b)
	assert.True(t, a.IsMain())
	assert.False(t, NewDeckReference(2, 3).IsMain())

	m := map[DeckReference]string{a: "main"}
	assert.Equal(t, "main", m[MainDeck(2)])
}

func TestDataReferenceSlot(t *testing.T) {
	ref := DataReference{Player: 3, Slot: SlotUSB, ID: 42}
	assert.Equal(t, NewSlotReference(3, SlotUSB), ref.SlotReference())
	assert.False(t, ref.IsZero())
	assert.True(t, DataReference{}.IsZero())
	assert.Equal(t, ref, NewDataReference(NewSlotReference(3, SlotUSB), 42))
}

func TestParseSlot(t *testing.T) {
	tests := []struct {
		in   string
		want TrackSourceSlot
		err  bool
	}{
		{"usb", SlotUSB, false},
		{"sd", SlotSD, false},
		{"rekordbox", SlotCollection, false},
		{"floppy", SlotNoTrack, true},
	}
	for _, tt := range tests {
		got, err := ParseSlot(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestStatusTrack(t *testing.T) {
	s := &CdjStatus{Player: 1, TrackSourcePlayer: 2, TrackSourceSlot: SlotSD, TrackType: TrackTypeRekordbox, RekordboxID: 7}
	assert.Equal(t, DataReference{Player: 2, Slot: SlotSD, ID: 7}, s.Track())

	empty := &CdjStatus{Player: 1}
	assert.False(t, empty.HasTrack())
	assert.True(t, empty.Track().IsZero())
}

func cueEntry(loop bool, hotCue byte, halfFrames, loopEnd uint32) []byte {
	b := make([]byte, cueEntrySize)
	if loop {
		b[0] = 1
	}
	b[1] = 1
	b[2] = hotCue
	binary.LittleEndian.PutUint32(b[12:], halfFrames)
	binary.LittleEndian.PutUint32(b[16:], loopEnd)
	return b
}

func TestParseCueList(t *testing.T) {
	var raw []byte
	raw = append(raw, cueEntry(false, 2, 300, 0)...)
	raw = append(raw, cueEntry(true, 0, 150, 450)...)
	raw = append(raw, make([]byte, cueEntrySize)...) // unused slot
	raw = append(raw, cueEntry(false, 1, 1500, 0)...)

	list, err := ParseCueList(raw)
	require.NoError(t, err)
	require.Equal(t, 3, list.Len())

	assert.Equal(t, int64(1000), list.Entries[0].CueTime)
	assert.True(t, list.Entries[0].IsLoop)
	assert.Equal(t, int64(3000), list.Entries[0].LoopTime)
	assert.Equal(t, []int{1, 2}, list.HotCueNumbers())
	assert.Equal(t, int64(10000), list.HotCue(1).CueTime)
	assert.Nil(t, list.HotCue(3))

	_, err = ParseCueList(make([]byte, 10))
	assert.Error(t, err)
}

func TestMediaHashKeyIgnoresFreeSpaceAndSlot(t *testing.T) {
	a := &MediaDetails{Slot: NewSlotReference(1, SlotUSB), Name: "STICK", CreationDate: "2024-01-01", TrackCount: 10, TotalSize: 1 << 30, FreeSpace: 100}
	b := *a
	b.Slot = NewSlotReference(3, SlotSD)
	b.FreeSpace = 50
	assert.True(t, a.Matches(&b))

	b.TrackCount = 11
	assert.False(t, a.Matches(&b))
	assert.False(t, a.Matches(nil))
}

func TestWaveformAccessors(t *testing.T) {
	p := &WaveformPreview{Data: []byte{0x3f, 0x0f, 0x05, 0x02}}
	assert.Equal(t, 2, p.Segments())
	assert.Equal(t, 31, p.Height(0))
	assert.Equal(t, 7, p.Whiteness(0))
	assert.Equal(t, 0, p.Height(5))

	d := &WaveformDetail{Data: []byte{0xe3}}
	assert.Equal(t, 3, d.Height(0))
	assert.Equal(t, 7, d.Intensity(0))
	assert.Equal(t, 150, FrameForTime(1000))
}
