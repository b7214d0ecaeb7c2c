package songstructure

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/decklink/internal/core"
)

var track = core.DataReference{Player: 2, Slot: core.SlotSD, ID: 12}

func buildTag(mood Mood, endBeat int, phrases []Phrase) []byte {
	out := make([]byte, headerSize+len(phrases)*entrySize)
	copy(out, PSSI)
	binary.BigEndian.PutUint32(out[4:], headerSize)
	binary.BigEndian.PutUint32(out[8:], uint32(len(out)))
	binary.BigEndian.PutUint32(out[0x0c:], entrySize)
	binary.BigEndian.PutUint16(out[0x10:], uint16(len(phrases)))
	binary.BigEndian.PutUint16(out[0x12:], uint16(mood))
	binary.BigEndian.PutUint16(out[0x1a:], uint16(endBeat))
	out[0x1e] = 3
	for i, p := range phrases {
		e := out[headerSize+i*entrySize:]
		binary.BigEndian.PutUint16(e[0:], uint16(p.Index))
		binary.BigEndian.PutUint16(e[2:], uint16(p.Beat))
		binary.BigEndian.PutUint16(e[4:], uint16(p.Kind))
		if p.Fill {
			e[21] = 1
		}
		binary.BigEndian.PutUint16(e[22:], uint16(p.BeatFill))
	}
	return out
}

var phrases = []Phrase{
	{Index: 1, Beat: 1, Kind: 1},
	{Index: 2, Beat: 33, Kind: 2, Fill: true, BeatFill: 61},
	{Index: 3, Beat: 65, Kind: 5},
}

func TestParse(t *testing.T) {
	s, err := Parse(track, buildTag(MoodHigh, 129, phrases))
	require.NoError(t, err)

	assert.Equal(t, MoodHigh, s.Mood)
	assert.Equal(t, 129, s.EndBeat)
	assert.Equal(t, 3, s.Bank)
	assert.Equal(t, phrases, s.Phrases)
	assert.Equal(t, "Chorus", s.PhraseName(5))
}

func TestParseMasked(t *testing.T) {
	plain := buildTag(MoodMid, 129, phrases)
	masked := unmask(plain, len(phrases)) // masking is its own inverse

	s, err := Parse(track, masked)
	require.NoError(t, err)
	assert.Equal(t, MoodMid, s.Mood)
	assert.Equal(t, phrases, s.Phrases)
	assert.Equal(t, masked, s.Raw())
}

func TestPhraseAt(t *testing.T) {
	s, err := Parse(track, buildTag(MoodLow, 129, phrases))
	require.NoError(t, err)

	assert.Nil(t, s.PhraseAt(0))
	assert.Equal(t, 1, s.PhraseAt(32).Index)
	assert.Equal(t, 2, s.PhraseAt(33).Index)
	assert.Equal(t, 3, s.PhraseAt(100).Index)
	assert.Nil(t, s.PhraseAt(129))
}

func TestParseRejectsOtherTags(t *testing.T) {
	_, err := Parse(track, make([]byte, 4))
	assert.Error(t, err)

	tag := buildTag(MoodHigh, 0, nil)
	copy(tag, "PQTZ")
	_, err = Parse(track, tag)
	assert.Error(t, err)
}
