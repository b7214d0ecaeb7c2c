package core

import (
	"encoding/binary"
	"fmt"
	"sort"
)

const cueEntrySize = 36

// CueEntry is a memory point, loop, or hot cue stored with a track.
type CueEntry struct {
	HotCue   int    `json:"hot_cue"` // 0 for memory points
	IsLoop   bool   `json:"is_loop"`
	CueTime  int64  `json:"cue_time"`  // milliseconds
	LoopTime int64  `json:"loop_time"` // milliseconds, loops only
	Comment  string `json:"comment,omitempty"`
}

// CueList holds a track's cue entries sorted by position.
type CueList struct {
	Entries []CueEntry `json:"entries"`
}

// ParseCueList decodes the cue-list payload returned by a player's database server.
func ParseCueList(raw []byte) (*CueList, error) {
	if len(raw)%cueEntrySize != 0 {
		return nil, fmt.Errorf("cue list payload length %d is not a multiple of %d", len(raw), cueEntrySize)
	}
	list := &CueList{}
	for offset := 0; offset+cueEntrySize <= len(raw); offset += cueEntrySize {
		entry := raw[offset : offset+cueEntrySize]
		flag := entry[1]
		hotCue := int(entry[2])
		if flag == 0 && hotCue == 0 {
			continue
		}
		e := CueEntry{
			HotCue:  hotCue,
			IsLoop:  entry[0] != 0,
			CueTime: halfFrameToTime(binary.LittleEndian.Uint32(entry[12:16])),
		}
		if e.IsLoop {
			e.LoopTime = halfFrameToTime(binary.LittleEndian.Uint32(entry[16:20]))
		}
		list.Entries = append(list.Entries, e)
	}
	sort.SliceStable(list.Entries, func(i, j int) bool {
		return list.Entries[i].CueTime < list.Entries[j].CueTime
	})
	return list, nil
}

// Len returns the number of entries.
func (c *CueList) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Entries)
}

// HotCueNumbers returns the distinct hot cue numbers in ascending order.
func (c *CueList) HotCueNumbers() []int {
	if c == nil {
		return nil
	}
	seen := make(map[int]bool)
	var out []int
	for _, e := range c.Entries {
		if e.HotCue != 0 && !seen[e.HotCue] {
			seen[e.HotCue] = true
			out = append(out, e.HotCue)
		}
	}
	sort.Ints(out)
	return out
}

// HotCue returns the entry for a hot cue number, or nil.
func (c *CueList) HotCue(n int) *CueEntry {
	if c == nil {
		return nil
	}
	for i := range c.Entries {
		if c.Entries[i].HotCue == n {
			return &c.Entries[i]
		}
	}
	return nil
}

// halfFrameToTime converts a position in half-frames (1/150 s) to milliseconds.
func halfFrameToTime(halfFrames uint32) int64 {
	return int64(halfFrames) * 100 / 15
}
