// Package songstructure parses the phrase analysis (PSSI tag) that rekordbox
// stores for tracks analyzed with phrase detection.
package songstructure

import (
	"encoding/binary"
	"fmt"

	"github.com/tessro/decklink/internal/core"
)

// PSSI is the analysis-file tag that carries phrase analysis.
const PSSI = "PSSI"

const (
	headerSize = 0x20
	entrySize  = 24
	maskStart  = 0x12
)

var maskKey = [19]byte{
	0xcb, 0xe1, 0xee, 0xfa, 0xe5, 0xee, 0xad, 0xee, 0xe9, 0xd2,
	0xe9, 0xeb, 0xe1, 0xe9, 0xf3, 0xe8, 0xe9, 0xf4, 0xe1,
}

// Mood is the overall character rekordbox assigned to a track.
type Mood int

const (
	MoodHigh Mood = 1
	MoodMid  Mood = 2
	MoodLow  Mood = 3
)

func (m Mood) String() string {
	switch m {
	case MoodHigh:
		return "high"
	case MoodMid:
		return "mid"
	case MoodLow:
		return "low"
	default:
		return fmt.Sprintf("mood(%d)", int(m))
	}
}

// Phrase is one section of the track.
type Phrase struct {
	Index    int
	Beat     int
	Kind     int
	Fill     bool
	BeatFill int
}

// Structure is the phrase analysis of a track.
type Structure struct {
	Track   core.DataReference
	Mood    Mood
	EndBeat int
	Bank    int
	Phrases []Phrase

	raw []byte
}

// Parse decodes a PSSI tag, unmasking it first if it was written in the
// obfuscated form used by newer exports.
func Parse(track core.DataReference, tag []byte) (*Structure, error) {
	if len(tag) < headerSize {
		return nil, fmt.Errorf("PSSI tag too short (%d bytes)", len(tag))
	}
	if string(tag[:4]) != PSSI {
		return nil, fmt.Errorf("expected %s tag, got %q", PSSI, tag[:4])
	}
	raw := append([]byte(nil), tag...)
	data := raw
	count := int(binary.BigEndian.Uint16(tag[0x10:0x12]))
	if binary.BigEndian.Uint16(tag[0x12:0x14]) > 20 {
		data = unmask(tag, count)
	}

	if entryLen := int(binary.BigEndian.Uint32(data[0x0c:0x10])); entryLen != entrySize {
		return nil, fmt.Errorf("PSSI entry size %d, want %d", entryLen, entrySize)
	}
	if headerSize+count*entrySize > len(data) {
		return nil, fmt.Errorf("PSSI tag declares %d phrases but holds %d bytes", count, len(data)-headerSize)
	}

	s := &Structure{
		Track:   track,
		Mood:    Mood(binary.BigEndian.Uint16(data[0x12:0x14])),
		EndBeat: int(binary.BigEndian.Uint16(data[0x1a:0x1c])),
		Bank:    int(data[0x1e]),
		Phrases: make([]Phrase, count),
		raw:     raw,
	}
	for i := 0; i < count; i++ {
		e := data[headerSize+i*entrySize:]
		s.Phrases[i] = Phrase{
			Index:    int(binary.BigEndian.Uint16(e[0:2])),
			Beat:     int(binary.BigEndian.Uint16(e[2:4])),
			Kind:     int(binary.BigEndian.Uint16(e[4:6])),
			Fill:     e[21] != 0,
			BeatFill: int(binary.BigEndian.Uint16(e[22:24])),
		}
	}
	return s, nil
}

// unmask returns a copy of tag with the XOR mask removed.
func unmask(tag []byte, count int) []byte {
	out := append([]byte(nil), tag...)
	for i := maskStart; i < len(out); i++ {
		out[i] ^= maskKey[(i-maskStart)%len(maskKey)] + byte(count)
	}
	return out
}

// Raw returns the tag bytes as received, for archiving.
func (s *Structure) Raw() []byte {
	return s.raw
}

// PhraseAt returns the phrase containing a beat, or nil before the first phrase.
func (s *Structure) PhraseAt(beat int) *Phrase {
	var found *Phrase
	for i := range s.Phrases {
		if s.Phrases[i].Beat > beat {
			break
		}
		found = &s.Phrases[i]
	}
	if found != nil && s.EndBeat > 0 && beat >= s.EndBeat {
		return nil
	}
	return found
}

// PhraseName returns the display name of a phrase kind for the track's mood.
func (s *Structure) PhraseName(kind int) string {
	var names map[int]string
	switch s.Mood {
	case MoodHigh:
		names = highPhrases
	case MoodMid:
		names = midPhrases
	case MoodLow:
		names = lowPhrases
	}
	if name, ok := names[kind]; ok {
		return name
	}
	return fmt.Sprintf("phrase(%d)", kind)
}

var highPhrases = map[int]string{
	1: "Intro", 2: "Up", 3: "Down", 5: "Chorus", 6: "Outro",
}

var midPhrases = map[int]string{
	1: "Intro", 2: "Verse 1", 3: "Verse 2", 4: "Verse 3", 5: "Verse 4",
	6: "Verse 5", 7: "Verse 6", 8: "Bridge", 9: "Chorus", 10: "Outro",
}

var lowPhrases = map[int]string{
	1: "Intro", 2: "Verse 1", 3: "Verse 1", 4: "Verse 1", 5: "Verse 2",
	6: "Verse 2", 7: "Verse 2", 8: "Bridge", 9: "Chorus", 10: "Outro",
}
