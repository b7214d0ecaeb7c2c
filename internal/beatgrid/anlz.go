package beatgrid

import (
	"encoding/binary"
	"fmt"

	"github.com/tessro/decklink/internal/core"
)

// PQTZ is the analysis-file tag that carries a beat grid.
const PQTZ = "PQTZ"

const (
	pqtzHeaderSize = 0x18
	pqtzEntrySize  = 8
)

// FromAnalysisTag decodes a PQTZ section of a rekordbox analysis file.
// Entries are big-endian: beat within bar (u16), tempo * 100 (u16), time in ms (u32).
func FromAnalysisTag(track core.DataReference, tag []byte, opts ...Option) (*BeatGrid, error) {
	if len(tag) < pqtzHeaderSize {
		return nil, fmt.Errorf("PQTZ tag too short (%d bytes)", len(tag))
	}
	if string(tag[:4]) != PQTZ {
		return nil, fmt.Errorf("expected %s tag, got %q", PQTZ, tag[:4])
	}
	headerLen := int(binary.BigEndian.Uint32(tag[4:8]))
	if headerLen < pqtzHeaderSize || headerLen > len(tag) {
		return nil, fmt.Errorf("PQTZ header length %d out of range", headerLen)
	}
	count := int(binary.BigEndian.Uint32(tag[0x14:0x18]))
	if headerLen+count*pqtzEntrySize > len(tag) {
		return nil, fmt.Errorf("PQTZ tag declares %d beats but holds %d bytes", count, len(tag)-headerLen)
	}

	beatWithinBar := make([]int, count)
	bpm := make([]int, count)
	timeMs := make([]int64, count)
	for i := 0; i < count; i++ {
		base := headerLen + i*pqtzEntrySize
		beatWithinBar[i] = int(binary.BigEndian.Uint16(tag[base:]))
		bpm[i] = int(binary.BigEndian.Uint16(tag[base+2:]))
		timeMs[i] = int64(binary.BigEndian.Uint32(tag[base+4:]))
	}
	return New(track, beatWithinBar, bpm, timeMs, opts...)
}

// AnalysisTag encodes the grid as a PQTZ section.
func (g *BeatGrid) AnalysisTag() []byte {
	n := len(g.timeMs)
	out := make([]byte, pqtzHeaderSize+n*pqtzEntrySize)
	copy(out, PQTZ)
	binary.BigEndian.PutUint32(out[4:], pqtzHeaderSize)
	binary.BigEndian.PutUint32(out[8:], uint32(len(out)))
	binary.BigEndian.PutUint32(out[0x10:], 0x00800000)
	binary.BigEndian.PutUint32(out[0x14:], uint32(n))
	for i := 0; i < n; i++ {
		base := pqtzHeaderSize + i*pqtzEntrySize
		binary.BigEndian.PutUint16(out[base:], uint16(g.beatWithinBar[i]))
		binary.BigEndian.PutUint16(out[base+2:], uint16(g.bpm[i]))
		binary.BigEndian.PutUint32(out[base+4:], uint32(g.timeMs[i]))
	}
	return out
}
